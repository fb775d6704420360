// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/tunedl/internal/api/connect"
	"github.com/osa030/tunedl/internal/api/httpapi"
	"github.com/osa030/tunedl/internal/app/filter"
	"github.com/osa030/tunedl/internal/app/history"
	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/app/search"
	"github.com/osa030/tunedl/internal/app/watch"
	"github.com/osa030/tunedl/internal/domain/item"
	"github.com/osa030/tunedl/internal/infra/config"
	"github.com/osa030/tunedl/internal/infra/lastfm"
	"github.com/osa030/tunedl/internal/infra/logger"
	"github.com/osa030/tunedl/internal/infra/metrics"
	"github.com/osa030/tunedl/internal/infra/simulated"
	"github.com/osa030/tunedl/internal/infra/spotify"
	"github.com/osa030/tunedl/internal/infra/store"
	"github.com/osa030/tunedl/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("tunedl-server", "tunedl download queue server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").Envar("TUNEDL_CONFIG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available admission filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

// dispatcher is a gateway whose running transfers can be awaited on shutdown.
type dispatcher interface {
	queue.Gateway
	Wait()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filters, err := buildFilters(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			zlog.Error().Msgf("Failed to close store: %v", err)
		}
	}()

	gw, err := newDispatcher(ctx, cfg)
	if err != nil {
		return err
	}

	coordinator, err := queue.New(gw, queue.Config{
		ConcurrencyLimit: cfg.Queue.ConcurrencyLimit,
		MaxItems:         cfg.Queue.MaxItems,
		DefaultQuality:   item.Quality(cfg.Download.Quality),
		DefaultFormat:    item.Format(cfg.Download.Format),
		Filters:          filters,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create coordinator")
	}

	recorder := history.NewRecorder(db, history.DefaultBuffer)
	recorder.Attach(coordinator)

	var metricsHandler http.Handler
	if !cfg.Metrics.Disabled {
		reg := metrics.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return errors.Wrap(err, "failed to register metrics")
		}
		m.Attach(coordinator)
		metricsHandler = metrics.Handler(reg)
	}

	searchSvc, catalog, err := newSearch(ctx, cfg)
	if err != nil {
		return err
	}

	var watchList httpapi.WatchList
	if cfg.Watch.Enabled {
		poller, err := watch.NewPoller(db, catalog, coordinator, watch.Config{Interval: cfg.Watch.Interval()})
		if err != nil {
			return errors.Wrap(err, "failed to create watch poller")
		}
		go poller.Run(ctx)
		watchList = poller
	}

	// Connect RPC and REST share one listener
	mux := http.NewServeMux()
	rpcPath, rpcHandler := apiconnect.NewQueueServiceHandler(
		apiconnect.NewQueueService(coordinator),
		connect.WithInterceptors(apiconnect.NewLoggingInterceptor()),
	)
	mux.Handle(rpcPath, rpcHandler)
	mux.Handle("/", httpapi.NewRouter(httpapi.Deps{
		Queue:        coordinator,
		Search:       searchSvc,
		History:      db,
		Watch:        watchList,
		DownloadPath: cfg.Download.Path,
		MetricsPath:  cfg.Metrics.Path,
		Metrics:      metricsHandler,
	}))

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.Server.Addr)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s backend=%s", listener.Addr(), cfg.Dispatch.Backend)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Execute startup hook if configured (after server is listening)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancelShutdown()

	// Stop the poller, then close the coordinator so streams end and transfers are cancelled
	cancel()
	coordinator.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	gw.Wait()
	recorder.Close()

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// newDispatcher creates the configured download gateway.
func newDispatcher(ctx context.Context, cfg *config.Config) (dispatcher, error) {
	switch cfg.Dispatch.Backend {
	case "simulated":
		zlog.Warn().Msg("Using simulated downloads; no files will be written")
		return simulated.New(simulated.Config{
			Steps: cfg.Dispatch.Simulated.Steps,
			Step:  time.Duration(cfg.Dispatch.Simulated.StepMs) * time.Millisecond,
		}), nil
	default:
		if cfg.Dispatch.YtDlp.AutoInstall {
			zlog.Info().Msg("Ensuring yt-dlp is installed...")
			if err := ytdlp.Install(ctx); err != nil {
				return nil, errors.Wrap(err, "failed to install yt-dlp")
			}
		}
		if err := os.MkdirAll(cfg.Download.Path, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create download directory")
		}
		return ytdlp.New(ytdlp.Config{
			Dir:              cfg.Download.Path,
			OutputTemplate:   cfg.Dispatch.YtDlp.OutputTemplate,
			ProgressInterval: time.Duration(cfg.Dispatch.YtDlp.ProgressIntervalMs) * time.Millisecond,
		}), nil
	}
}

// newSearch creates the search service and, when Spotify is configured, the watch catalog.
// Unconfigured backends stay nil so the service reports them unavailable.
func newSearch(ctx context.Context, cfg *config.Config) (*search.Service, watch.Catalog, error) {
	var searcher search.Searcher
	var catalog watch.Catalog
	if cfg.Spotify.Enabled() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create Spotify client")
		}
		searcher, catalog = client, client
	} else {
		zlog.Info().Msg("Spotify credentials not configured, search disabled")
	}

	var suggester search.Suggester
	if cfg.LastFM.Enabled() {
		client, err := lastfm.New(lastfm.Config{
			APIKey:   cfg.LastFM.APIKey,
			CacheTTL: time.Duration(cfg.LastFM.CacheTTLMin) * time.Minute,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create Last.fm client")
		}
		suggester = client
	} else {
		zlog.Info().Msg("Last.fm API key not configured, suggestions disabled")
	}

	return search.NewService(searcher, suggester), catalog, nil
}

// buildFilters creates the admission filter chain from config.
func buildFilters(cfg *config.Config) (*filter.Chain, error) {
	settings := make(map[string]filter.Settings, len(cfg.Filters))
	for name, fc := range cfg.Filters {
		settings[name] = filter.Settings{Enabled: fc.Enabled, Settings: fc.Settings}
	}
	return filter.Build(settings)
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
