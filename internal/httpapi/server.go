// Package httpapi exposes the operator-facing HTTP surface: health,
// queue status, and the dashboard data feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jmeijer/socmon/internal/domain"
	"github.com/jmeijer/socmon/internal/orchestrator"
	"github.com/jmeijer/socmon/internal/report"
)

type Server struct {
	orchestrator *orchestrator.Orchestrator
	feed         *report.Feed
	logger       *zap.Logger
}

func NewServer(orch *orchestrator.Orchestrator, feed *report.Feed, logger *zap.Logger) *Server {
	return &Server{
		orchestrator: orch,
		feed:         feed,
		logger:       logger.Named("httpapi"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(RateLimit(20, 40))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/dashboard/{month}", s.handleDashboard)
	})
	return r
}

// Serve runs the HTTP server until ctx is canceled, then drains it.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orchestrator.RunStatus(r.Context())
	if err != nil {
		s.logger.Error("status request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not read status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Jobs:           status.Jobs,
		Accounts:       status.Accounts,
		ActiveAccounts: status.ActiveAccounts,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")
	if !domain.ValidMonth(month) {
		writeError(w, http.StatusBadRequest, "invalid_month", "month must be YYYY-MM")
		return
	}
	data, err := s.feed.Generate(r.Context(), month)
	if err != nil {
		s.logger.Error("dashboard request failed",
			zap.String("month", month), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not build dashboard data")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

type statusResponse struct {
	Jobs           any `json:"jobs"`
	Accounts       int `json:"accounts"`
	ActiveAccounts int `json:"active_accounts"`
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	payload := errorPayload{}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
