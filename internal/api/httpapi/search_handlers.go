package httpapi

import (
	"net/http"

	"github.com/osa030/tunedl/internal/domain/media"
)

func (s *Server) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit, err := intParam(r, "limit", 0)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		offset, err := intParam(r, "offset", 0)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		page, err := s.Search.Search(r.Context(), q.Get("q"), media.SearchType(q.Get("type")), limit, offset)
		if err != nil {
			respondWithError(w, err)
			return
		}

		respondWithJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleSuggestions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suggestions, err := s.Search.Suggestions(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
	}
}
