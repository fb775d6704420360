// Package httpapi provides the REST API consumed by the web front end.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/app/search"
	"github.com/osa030/tunedl/internal/app/watch"
	"github.com/osa030/tunedl/internal/domain/history"
	"github.com/osa030/tunedl/internal/domain/item"
	domainwatch "github.com/osa030/tunedl/internal/domain/watch"
)

// Queue is the coordinator surface used by the REST API.
type Queue interface {
	Enqueue(ctx context.Context, req item.Request) (string, error)
	Snapshot() queue.Snapshot
	Stream(buffer int) (<-chan queue.Snapshot, func())
	Done() <-chan struct{}
	SetConcurrencyLimit(n int) error
	SetDefaults(quality item.Quality, format item.Format) error
	Defaults() (item.Quality, item.Format)
}

// HistoryStore reads and clears download history.
type HistoryStore interface {
	ListHistory(ctx context.Context, limit, offset int) ([]history.Entry, int, error)
	ClearHistory(ctx context.Context) (int, error)
}

// WatchList manages watched artists and playlists.
type WatchList interface {
	Add(ctx context.Context, req domainwatch.AddRequest) (domainwatch.Entry, error)
	List(ctx context.Context) ([]domainwatch.Entry, error)
	Remove(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (domainwatch.Entry, error)
	CheckNow(ctx context.Context, id string) (watch.Result, error)
}

// Deps holds the services behind the API. Watch and Metrics may be nil.
type Deps struct {
	Queue        Queue
	Search       *search.Service
	History      HistoryStore
	Watch        WatchList
	DownloadPath string
	MetricsPath  string
	Metrics      http.Handler
}

// Server serves the REST API.
type Server struct {
	Deps
}

// NewRouter creates the REST router.
func NewRouter(deps Deps) http.Handler {
	srv := &Server{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealth())
	if deps.Metrics != nil && deps.MetricsPath != "" {
		r.Method(http.MethodGet, deps.MetricsPath, deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", srv.handleGetQueue())
			r.Post("/", srv.handleEnqueue())
			r.Get("/events", srv.handleQueueEvents())
		})

		r.Get("/search", srv.handleSearch())
		r.Get("/search/suggestions", srv.handleSuggestions())

		r.Get("/history", srv.handleListHistory())
		r.Delete("/history", srv.handleClearHistory())

		r.Route("/watch", func(r chi.Router) {
			r.Use(srv.requireWatch)
			r.Get("/", srv.handleListWatches())
			r.Post("/", srv.handleAddWatch())
			r.Delete("/{watchID}", srv.handleRemoveWatch())
			r.Patch("/{watchID}", srv.handleUpdateWatch())
			r.Post("/{watchID}/check", srv.handleCheckWatch())
		})

		r.Get("/config", srv.handleGetConfig())
		r.Put("/config", srv.handleUpdateConfig())
	})

	return r
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
