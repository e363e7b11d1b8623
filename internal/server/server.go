// Package server provides the HTTP server of the face gift dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/personinfo"
	"github.com/ayusman/facegift/internal/server/api"
	"github.com/ayusman/facegift/internal/transcript"
)

// Config holds the server configuration. Nil sources leave their routes
// unmounted.
type Config struct {
	Addr      string
	StaticDir string

	Faces        api.FaceRegistry
	OnReset      func() error
	OnPersonInfo func(personinfo.Info) error
	Events       api.EventSource
	Transactions api.TransactionSource
	Transcript   *transcript.Buffer
	OnTranscript func(transcript.Segment)
	Amount       api.AmountParser

	Frames *FrameBuffer
	Hub    *Hub

	// Status adds fields to the health response.
	Status func() map[string]any

	// RequestTimeout bounds JSON requests. Streams are not bounded.
	RequestTimeout time.Duration
}

// Server is the dashboard HTTP server.
type Server struct {
	config     Config
	router     *chi.Mux
	httpServer *http.Server
	start      time.Time
	log        *zap.SugaredLogger
}

// New builds the router for config.
func New(config Config, log *zap.SugaredLogger) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
		log:    logging.OrNop(log),
	}

	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(chiMiddleware.Recoverer)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(s.config.RequestTimeout))
			r.Get("/health", s.handleHealth)

			if s.config.Faces != nil {
				api.NewFacesHandler(s.config.Faces, s.config.OnReset, s.log).OnPersonInfo(s.config.OnPersonInfo).Routes(r)
			}
			if s.config.Events != nil {
				api.NewEventsHandler(s.config.Events, s.config.Faces, s.log).Routes(r)
			}
			if s.config.Transactions != nil {
				api.NewTransactionsHandler(s.config.Transactions, s.log).Routes(r)
			}
			if s.config.Transcript != nil {
				api.NewTranscriptHandler(s.config.Transcript, s.config.OnTranscript).Routes(r)
			}
			if s.config.Amount != nil {
				api.NewAmountHandler(s.config.Amount).Routes(r)
			}
		})

		if s.config.Frames != nil {
			r.Get("/stream", NewStreamHandler(s.config.Frames).ServeHTTP)
		}
		if s.config.Hub != nil {
			r.Get("/ws", s.config.Hub.ServeHTTP)
		}
	})

	if s.config.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Status != nil {
		for k, v := range s.config.Status() {
			resp[k] = v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Infof("dashboard listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

// Shutdown stops accepting connections and closes websocket clients and
// open MJPEG streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down dashboard")
	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	if s.config.Frames != nil {
		s.config.Frames.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
