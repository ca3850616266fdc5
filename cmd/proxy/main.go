package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/toolbridge-go/proxy-api/internal/config"
	"github.com/toolbridge-go/proxy-api/internal/logging"
	"github.com/toolbridge-go/proxy-api/internal/markers"
	"github.com/toolbridge-go/proxy-api/internal/middleware"
	"github.com/toolbridge-go/proxy-api/internal/proxy"
	"github.com/toolbridge-go/proxy-api/internal/reqlog"
	"github.com/toolbridge-go/proxy-api/internal/transcoder"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Initialize(cfg.Server.Environment)

	// The marker set lives for the whole process so that tool-call
	// encodings written into conversation history on earlier turns still
	// parse on later ones.
	markerSet := markers.New()
	parser := transcoder.NewParser(markerSet)

	traces, err := reqlog.New(cfg.Log.Enabled, cfg.Log.Dir)
	if err != nil {
		log.Fatalf("Failed to prepare request log dir: %v", err)
	}

	handler := proxy.NewHandler(cfg, parser, traces)
	rateLimiter := middleware.NewRateLimiter(cfg.Proxy.RateLimit, cfg.Proxy.RateWindow)

	// Setup router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Recover)
	r.Use(middleware.NewCORS(cfg.Server.AllowOrigins))
	r.Use(rateLimiter.Limit)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Everything else is /<absolute-upstream-url>
	r.HandleFunc("/*", handler.Proxy)

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		// No write timeout: streamed completions run for minutes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Info("proxy listening", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logging.Info("server stopped")
}
