package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/domain/item"
)

const (
	eventsBuffer      = 16
	heartbeatInterval = 15 * time.Second
)

func (s *Server) handleGetQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, s.Queue.Snapshot())
	}
}

func (s *Server) handleEnqueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req item.Request
		if !decodeJSON(w, r, &req) {
			return
		}

		id, err := s.Queue.Enqueue(r.Context(), req)
		if err != nil {
			respondWithError(w, err)
			return
		}

		respondWithJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// handleQueueEvents streams snapshots as server-sent events, starting with the current state.
func (s *Server) handleQueueEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		updates, cancel := s.Queue.Stream(eventsBuffer)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		current := s.Queue.Snapshot()
		if err := writeEvent(w, "snapshot", current.Version, current); err != nil {
			return
		}
		flusher.Flush()
		last := current.Version

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-s.Queue.Done():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if snap.Version <= last {
					continue
				}
				if err := writeEvent(w, "snapshot", snap.Version, snap); err != nil {
					zlog.Debug().Err(err).Msg("queue event stream closed")
					return
				}
				flusher.Flush()
				last = snap.Version
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, id uint64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, id, data)
	return err
}
