package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/threadsign/ideas-bot/internal/config"
	"github.com/threadsign/ideas-bot/internal/llm"
	"github.com/threadsign/ideas-bot/internal/notifications"
	"github.com/threadsign/ideas-bot/internal/pipeline"
	"github.com/threadsign/ideas-bot/internal/scheduler"
	"github.com/threadsign/ideas-bot/internal/store"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting ThreadSign Ideas Bot")

	ctx := context.Background()

	// Initialize Postgres store
	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize collaborators
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	sender := notifications.NewService(cfg)

	// Initialize pipeline service
	pipelineService := pipeline.NewService(cfg, st, llmClient, llmClient, sender)

	// Initialize scheduler
	schedulerService, err := scheduler.NewService(cfg, pipelineService)
	if err != nil {
		logrus.Fatalf("Failed to initialize scheduler: %v", err)
	}

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server for health checks and cron triggers
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Metrics endpoint
	router.HandleFunc("/metrics", metricsHandler(pipelineService)).Methods("GET")

	// Cron trigger endpoints, all guarded by the shared secret
	router.HandleFunc("/api/cron/daily-pipeline",
		requireCronSecret(cfg, dailyPipelineHandler(pipelineService))).Methods("GET")
	router.HandleFunc("/api/cron/generate-posts",
		requireCronSecret(cfg, ingestHandler(pipelineService))).Methods("GET")
	router.HandleFunc("/api/cron/generate-ideas",
		requireCronSecret(cfg, evaluateHandler(pipelineService))).Methods("GET")
	router.HandleFunc("/api/cron/send-email-digests",
		requireCronSecret(cfg, digestsHandler(pipelineService))).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // pipeline runs inline in the trigger handlers
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

// requireCronSecret rejects requests whose secret (query param or header)
// does not match the configured one, before any stage runs.
func requireCronSecret(cfg *config.Config, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.URL.Query().Get("secret")
		if secret == "" {
			secret = r.Header.Get("X-Cron-Secret")
		}
		if secret != cfg.CronSecret {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func metricsHandler(p *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(p.GetMetrics()))
	}
}

func dailyPipelineHandler(p *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := p.Run(r.Context())

		status := http.StatusOK
		if !report.Success && report.Results.Ingest == nil {
			// Nothing ran at all; report it as a server-side failure.
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, report)
	}
}

func ingestHandler(p *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Ingest(r.Context()))
	}
}

func evaluateHandler(p *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Evaluate(r.Context()))
	}
}

func digestsHandler(p *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.SendDigests(r.Context()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
