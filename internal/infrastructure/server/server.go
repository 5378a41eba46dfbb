package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platewise/platewise-api/internal/config"
	httpserver "github.com/platewise/platewise-api/internal/interface/http"
	"github.com/platewise/platewise-api/internal/observability"
)

// Version is stamped into the tracing resource.
var Version = "dev"

type Server struct {
	cfg        *config.Config
	httpServer *http.Server
}

func New(cfg *config.Config) *Server {
	return &Server{
		cfg: cfg,
	}
}

func (s *Server) Run() error {
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "platewise-api",
		ServiceVersion: Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		SampleRate:     s.cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Printf("[System] Warning: Tracer shutdown failed: %v", err)
		}
	}()

	// ==========================================
	// Initialize Dependencies (Dependency Injection)
	// ==========================================

	components, err := Build(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	// ==========================================
	// Initialize and Start HTTP Server
	// ==========================================

	apiServer := httpserver.NewServer(components.Engine, components.Resolver, components.Pipeline, float64(s.cfg.AggregateRadiusMax))
	handler := apiServer.RegisterRoutes()

	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("[System] Starting REST API Server on %s", s.cfg.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Error] HTTP server failed: %v", err)
		}
	}()

	<-stop
	log.Println("[System] Shutdown signal received. Draining connections...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Error] HTTP shutdown error: %v", err)
	}

	log.Println("[System] Server stopped gracefully.")
	return nil
}
