package httpapi

import (
	"net/http"

	"github.com/osa030/tunedl/internal/domain/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (s *Server) handleListHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := intParam(r, "limit", defaultHistoryLimit)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if limit == 0 {
			limit = defaultHistoryLimit
		}
		limit = min(limit, maxHistoryLimit)
		offset, err := intParam(r, "offset", 0)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		entries, total, err := s.History.ListHistory(r.Context(), limit, offset)
		if err != nil {
			respondWithError(w, err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}

		respondWithJSON(w, http.StatusOK, history.Page{
			Entries: entries,
			Total:   total,
			HasMore: offset+len(entries) < total,
		})
	}
}

func (s *Server) handleClearHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.History.ClearHistory(r.Context())
		if err != nil {
			respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]int{"removed": n})
	}
}
