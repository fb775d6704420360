package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osa030/tunedl/internal/domain/watch"
)

type updateWatchRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleListWatches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.Watch.List(r.Context())
		if err != nil {
			respondWithError(w, err)
			return
		}
		if entries == nil {
			entries = []watch.Entry{}
		}
		respondWithJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handleAddWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req watch.AddRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		entry, err := s.Watch.Add(r.Context(), req)
		if err != nil {
			respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, entry)
	}
}

func (s *Server) handleRemoveWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Watch.Remove(r.Context(), chi.URLParam(r, "watchID")); err != nil {
			respondWithError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleUpdateWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateWatchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Active == nil {
			respondError(w, http.StatusBadRequest, "active is required")
			return
		}

		entry, err := s.Watch.SetActive(r.Context(), chi.URLParam(r, "watchID"), *req.Active)
		if err != nil {
			respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, entry)
	}
}

func (s *Server) handleCheckWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Watch.CheckNow(r.Context(), chi.URLParam(r, "watchID"))
		if err != nil {
			respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, res)
	}
}
