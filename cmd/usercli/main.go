// Package main provides the user CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/tunedl/internal/api/connect"
	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
	"github.com/osa030/tunedl/internal/domain/media"
)

var (
	app    = kingpin.New("tunedl-usercli", "tunedl download queue user client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("TUNEDL_SERVER").String()

	// enqueue command
	enqueueCmd     = app.Command("enqueue", "Add a download to the queue").Alias("add")
	enqueueURL     = enqueueCmd.Arg("url", "Source URL").Required().String()
	enqueueKind    = enqueueCmd.Flag("kind", "Resource kind").Short('k').Default("track").Enum("track", "album", "playlist", "artist")
	enqueueQuality = enqueueCmd.Flag("quality", "Audio quality (server default when empty)").Enum("low", "medium", "high", "lossless")
	enqueueFormat  = enqueueCmd.Flag("format", "Output format (server default when empty)").Enum("mp3", "flac", "ogg")
	enqueueTitle   = enqueueCmd.Flag("title", "Display title").String()
	enqueueArtist  = enqueueCmd.Flag("artist", "Display artist").String()

	// search command
	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search query").Required().Strings()
	searchType  = searchCmd.Flag("type", "Result type").Short('t').Default("all").Enum("all", "track", "album", "artist", "playlist")
	searchLimit = searchCmd.Flag("limit", "Maximum results").Default("10").Int()

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Follow queue changes").Alias("watch")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server)
	ctx := context.Background()

	var err error
	switch command {
	case enqueueCmd.FullCommand():
		err = enqueue(ctx, client)
	case searchCmd.FullCommand():
		err = search(ctx, strings.Join(*searchQuery, " "))
	case subscribeCmd.FullCommand():
		err = subscribe(ctx, client)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func enqueue(ctx context.Context, client *apiconnect.Client) error {
	id, err := client.Enqueue(ctx, item.Request{
		SourceURL: *enqueueURL,
		Kind:      item.Kind(*enqueueKind),
		Quality:   item.Quality(*enqueueQuality),
		Format:    item.Format(*enqueueFormat),
		Title:     *enqueueTitle,
		Artist:    *enqueueArtist,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Queued! Item ID: %s\n", id)
	return nil
}

// search calls the REST search endpoint; search is not part of the RPC service.
func search(ctx context.Context, query string) error {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", *searchType)
	params.Set("limit", strconv.Itoa(*searchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(*server, "/")+"/api/search?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return errors.Newf("search failed (%d): %s", resp.StatusCode, body.Error)
	}

	var page media.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}

	if len(page.Results) == 0 {
		fmt.Println("No results")
		return nil
	}
	for _, m := range page.Results {
		label := m.Title
		if m.Artist != "" && m.Type != media.TypeArtist {
			label = m.Artist + " - " + m.Title
		}
		fmt.Printf("%-8s %s\n         %s\n", m.Type, label, m.URL)
	}
	fmt.Printf("\n%d of %d results\n", len(page.Results), page.Total)
	return nil
}

func subscribe(ctx context.Context, client *apiconnect.Client) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Following queue changes. Press Ctrl+C to exit.")

	tracker := queue.NewTracker()
	first := true
	err := client.Watch(ctx, func(s queue.Snapshot) bool {
		transitions, removed := tracker.Observe(s)
		if first {
			first = false
			fmt.Printf("\n[v%d] === INITIAL STATE === %d items, %d/%d active\n",
				s.Version, len(s.Items), s.ActiveCount, s.ConcurrencyLimit)
			for _, it := range s.Items {
				fmt.Printf("  %-11s %s\n", it.Status, it.DisplayName())
			}
			return true
		}
		for _, t := range transitions {
			from := string(t.From)
			if from == "" {
				from = "new"
			}
			fmt.Printf("[v%d] %s: %s -> %s", s.Version, t.Item.DisplayName(), from, t.To)
			if t.Item.Error != "" {
				fmt.Printf(" (%s)", t.Item.Error)
			}
			fmt.Println()
		}
		for _, id := range removed {
			fmt.Printf("[v%d] %s removed\n", s.Version, id)
		}
		return true
	})

	fmt.Println("\nUnsubscribed")
	return err
}
