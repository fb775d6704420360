package httpapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/osa030/tunedl/internal/domain/item"
)

// downloadConfig is the effective download preferences of the running server.
type downloadConfig struct {
	DownloadPath        string       `json:"downloadPath"`
	AudioQuality        item.Quality `json:"audioQuality"`
	DownloadFormat      item.Format  `json:"downloadFormat"`
	ConcurrentDownloads int          `json:"concurrentDownloads"`
	MaxItems            int          `json:"maxItems"`
}

// updateConfigRequest changes the runtime preferences. Omitted fields are kept.
type updateConfigRequest struct {
	AudioQuality        *string `json:"audioQuality" validate:"omitempty,oneof=low medium high lossless"`
	DownloadFormat      *string `json:"downloadFormat" validate:"omitempty,oneof=mp3 flac ogg"`
	ConcurrentDownloads *int    `json:"concurrentDownloads" validate:"omitempty,gte=1"`
}

var validate = validator.New()

func (s *Server) currentConfig() downloadConfig {
	quality, format := s.Queue.Defaults()
	snap := s.Queue.Snapshot()
	return downloadConfig{
		DownloadPath:        s.DownloadPath,
		AudioQuality:        quality,
		DownloadFormat:      format,
		ConcurrentDownloads: snap.ConcurrencyLimit,
		MaxItems:            snap.MaxItems,
	}
}

func (s *Server) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, s.currentConfig())
	}
}

func (s *Server) handleUpdateConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateConfigRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validate.Struct(req); err != nil {
			respondWithError(w, err)
			return
		}

		// the limit's upper bound is only known to the queue, so apply it first
		if req.ConcurrentDownloads != nil {
			if err := s.Queue.SetConcurrencyLimit(*req.ConcurrentDownloads); err != nil {
				respondWithError(w, err)
				return
			}
		}

		var quality item.Quality
		var format item.Format
		if req.AudioQuality != nil {
			quality = item.Quality(*req.AudioQuality)
		}
		if req.DownloadFormat != nil {
			format = item.Format(*req.DownloadFormat)
		}
		if err := s.Queue.SetDefaults(quality, format); err != nil {
			respondWithError(w, err)
			return
		}

		respondWithJSON(w, http.StatusOK, s.currentConfig())
	}
}
