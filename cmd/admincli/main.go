// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/tunedl/internal/api/connect"
	"github.com/osa030/tunedl/internal/domain/item"
)

var (
	app     = kingpin.New("tunedl-admincli", "tunedl download queue admin client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("TUNEDL_SERVER").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	// status command
	statusCmd = app.Command("status", "Show the queue").Default()

	// pause / resume commands
	pauseCmd  = app.Command("pause", "Stop starting new downloads")
	resumeCmd = app.Command("resume", "Resume starting downloads")

	// item commands
	retryCmd      = app.Command("retry", "Retry a failed item")
	retryID       = retryCmd.Arg("item-id", "Item ID").Required().String()
	removeCmd     = app.Command("remove", "Remove an item, cancelling it if downloading").Alias("rm")
	removeID      = removeCmd.Arg("item-id", "Item ID").Required().String()
	itemPauseCmd  = app.Command("item-pause", "Hold a pending item")
	itemPauseID   = itemPauseCmd.Arg("item-id", "Item ID").Required().String()
	itemResumeCmd = app.Command("item-resume", "Release a held item")
	itemResumeID  = itemResumeCmd.Arg("item-id", "Item ID").Required().String()

	// limit command
	limitCmd   = app.Command("limit", "Set the number of simultaneous downloads")
	limitValue = limitCmd.Arg("n", "Concurrency limit").Required().Int()

	// clear command
	clearCmd      = app.Command("clear", "Remove items from the queue")
	clearFinished = clearCmd.Flag("finished", "Only remove completed and failed items").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case pauseCmd.FullCommand():
		err = done(client.PauseAll(ctx), "Queue paused")
	case resumeCmd.FullCommand():
		err = done(client.ResumeAll(ctx), "Queue resumed")
	case retryCmd.FullCommand():
		err = done(client.Retry(ctx, *retryID), "Item re-queued")
	case removeCmd.FullCommand():
		err = done(client.Remove(ctx, *removeID), "Item removed")
	case itemPauseCmd.FullCommand():
		err = done(client.PauseItem(ctx, *itemPauseID), "Item paused")
	case itemResumeCmd.FullCommand():
		err = done(client.ResumeItem(ctx, *itemResumeID), "Item resumed")
	case limitCmd.FullCommand():
		err = done(client.SetConcurrencyLimit(ctx, *limitValue), fmt.Sprintf("Concurrency limit set to %d", *limitValue))
	case clearCmd.FullCommand():
		err = clearQueue(ctx, client, *clearFinished)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func done(err error, msg string) error {
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func status(ctx context.Context, client *apiconnect.Client) error {
	s, err := client.Snapshot(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== QUEUE STATUS ===")
	state := "running"
	if s.Paused {
		state = "paused"
	}
	fmt.Printf("State: %s\n", state)
	fmt.Printf("Active: %d / %d\n", s.ActiveCount, s.ConcurrencyLimit)
	fmt.Printf("Items: %d / %d\n", len(s.Items), s.MaxItems)
	fmt.Printf("  pending=%d downloading=%d paused=%d completed=%d failed=%d\n",
		s.Stats.Pending, s.Stats.Downloading, s.Stats.Paused, s.Stats.Completed, s.Stats.Failed)

	if len(s.Items) == 0 {
		fmt.Println("\nQueue is empty")
		fmt.Println()
		return nil
	}

	fmt.Println()
	for _, it := range s.Items {
		printItem(it)
	}
	fmt.Println()
	return nil
}

func printItem(it item.Item) {
	fmt.Printf("%s  %-11s %5.1f%%  %-8s %s\n", it.ID, it.Status, it.Progress*100, it.Kind, it.DisplayName())
	if it.Error != "" {
		fmt.Printf("  error: %s\n", it.Error)
	}
	if d, ok := it.Duration(); ok {
		fmt.Printf("  took %s\n", d.Round(time.Second))
	}
}

func clearQueue(ctx context.Context, client *apiconnect.Client, finishedOnly bool) error {
	var (
		n   int
		err error
	)
	if finishedOnly {
		n, err = client.ClearFinished(ctx)
	} else {
		n, err = client.Clear(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d %s\n", n, plural(n, "item"))
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
