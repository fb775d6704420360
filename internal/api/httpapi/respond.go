package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/app/search"
	"github.com/osa030/tunedl/internal/domain/watch"
	"github.com/osa030/tunedl/internal/infra/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zlog.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondWithJSON(w, code, map[string]string{"error": msg})
}

// respondWithError maps service errors onto status codes.
func respondWithError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	code := http.StatusInternalServerError
	switch {
	case queue.IsValidation(err), errors.As(err, &verrs),
		errors.Is(err, search.ErrInvalidQuery), errors.Is(err, watch.ErrUnsupportedSource):
		code = http.StatusBadRequest
	case queue.IsCapacity(err):
		code = http.StatusTooManyRequests
	case queue.IsNotFound(err), errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case queue.IsInvalidState(err), errors.Is(err, store.ErrDuplicate):
		code = http.StatusConflict
	case errors.Is(err, search.ErrUnavailable), errors.Is(err, queue.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		zlog.Error().Err(err).Msg("request failed")
	}
	respondError(w, code, err.Error())
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// intParam reads an optional non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Newf("%s must be a non-negative integer", name)
	}
	return n, nil
}
