package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			var ev *zerolog.Event
			switch {
			case status >= 500:
				ev = zlog.Error()
			case status >= 400:
				ev = zlog.Warn()
			default:
				ev = zlog.Debug()
			}
			ev.Msgf("http request: method=%s path=%s status=%d bytes=%d request_id=%s remote=%s duration=%s",
				r.Method, r.URL.Path, status, ww.BytesWritten(),
				middleware.GetReqID(r.Context()), r.RemoteAddr, time.Since(start))
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) requireWatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Watch == nil {
			respondError(w, http.StatusServiceUnavailable, "watch list is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}
