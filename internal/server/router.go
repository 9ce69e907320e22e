package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler builds the routes.
//
//	GET  /healthz
//	POST /users/{userID}/imports/{platform}   multipart "files"
//	GET  /users/{userID}/imports
//	GET  /users/{userID}/mode
//	PUT  /users/{userID}/mode
//	GET  /users/{userID}/top
//	GET  /imports/{jobID}
//	GET  /imports/{jobID}/events                Server-Sent Events
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Post("/imports/{platform}", s.handleCreateImport)
		r.Get("/imports", s.handleListImports)
		r.Get("/mode", s.handleGetMode)
		r.Put("/mode", s.handlePutMode)
		r.Get("/top", s.handleTop)
	})

	r.Route("/imports/{jobID}", func(r chi.Router) {
		r.Get("/", s.handleGetImport)
		r.Get("/events", s.handleImportEvents)
	})

	return r
}

// RequestLogger logs each request's method, path, status and duration.
func RequestLogger(l *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			l.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(started).Round(time.Millisecond),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
