// Package server exposes the intervention endpoint and the monitor's ops
// surface over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/pulseguard/internal/history"
	"github.com/ppiankov/pulseguard/internal/journal"
	"github.com/ppiankov/pulseguard/internal/model"
	"github.com/ppiankov/pulseguard/internal/monitor"
)

// Intervener runs one intervention to completion.
type Intervener interface {
	Intervene(ctx context.Context, b model.Breach) (model.Outcome, error)
}

// StatusSource is the monitor as the ops surface reads it.
type StatusSource interface {
	Status() monitor.Status
	Trend(window time.Duration) history.TrendSummary
}

// JournalReader lists recorded interventions.
type JournalReader interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// TrendWindow is the window reported by GET /status.
const TrendWindow = time.Hour

// Server wraps a gin engine in an http.Server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// NewIntervention builds the server for POST /intervene.
func NewIntervention(iv Intervener, logger *slog.Logger) *Server {
	s := newServer(logger)
	s.engine.POST("/intervene", s.handleIntervene(iv))
	s.engine.GET("/healthz", handleHealth)
	return s
}

// NewOps builds the monitor's ops server: /metrics, /status and, when a
// journal is given, /interventions.
func NewOps(src StatusSource, j JournalReader, logger *slog.Logger) *Server {
	s := newServer(logger)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/status", handleStatus(src))
	s.engine.GET("/healthz", handleHealth)
	if j != nil {
		s.engine.GET("/interventions", handleInterventions(j))
	}
	return s
}

func newServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	return &Server{
		engine: engine,
		http: &http.Server{
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve listens on addr. Blocks until the server stops.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("http server listening", "addr", lis.Addr().String())
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.ServeOn(lis) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.GracefulStop(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

// GracefulStop stops accepting connections and waits for active requests.
func (s *Server) GracefulStop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleIntervene(iv Intervener) gin.HandlerFunc {
	return func(c *gin.Context) {
		var b model.Breach
		if err := c.ShouldBindJSON(&b); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid breach context: %v", err)})
			return
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.Type == "" {
			b.Type = model.BreachType
		}
		if b.Timestamp.IsZero() {
			b.Timestamp = time.Now().UTC()
		}

		out, err := iv.Intervene(c.Request.Context(), b)
		if out.InterventionID == "" {
			out.InterventionID = b.ID
		}
		if err != nil {
			s.logger.Error("intervention failed",
				"intervention_id", b.ID,
				"heart_rate", b.HeartRate,
				"risk", b.Risk,
				"error", err,
			)
			if out.Status == "" || out.Status == model.OutcomeCompleted {
				out.Status = model.OutcomeFailed
			}
			if out.Detail == "" {
				out.Detail = err.Error()
			}
			c.JSON(http.StatusInternalServerError, out)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

type statusResponse struct {
	monitor.Status
	Trend history.TrendSummary `json:"trend"`
}

func handleStatus(src StatusSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, statusResponse{
			Status: src.Status(),
			Trend:  src.Trend(TrendWindow),
		})
	}
}

func handleInterventions(j JournalReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		entries, err := j.List(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"interventions": entries})
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
