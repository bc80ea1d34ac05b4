package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/threadsign/ideas-bot/internal/config"
	"github.com/threadsign/ideas-bot/internal/llm"
	"github.com/threadsign/ideas-bot/internal/models"
	"github.com/threadsign/ideas-bot/internal/notifications"
	"github.com/threadsign/ideas-bot/internal/store"
)

// MinIdeaScore is the quality bar an idea's recomputed mean score must clear
// to be persisted.
const MinIdeaScore = 60

// Service runs the three-stage idea pipeline: ingest source posts, evaluate
// them into ideas, and deliver idea digests to subscribers. Each stage is
// idempotent and safe to re-run on its own schedule.
type Service struct {
	config    *config.Config
	store     store.Store
	generator llm.Generator
	scorer    llm.Scorer
	sender    notifications.EmailSender
	metrics   *Metrics
	mu        sync.RWMutex
}

// Metrics holds a snapshot of the most recent pipeline run
type Metrics struct {
	LastRun         time.Time `json:"last_run"`
	LastRunDuration string    `json:"last_run_duration"`
	LastRunSuccess  bool      `json:"last_run_success"`
	PostsGenerated  int       `json:"posts_generated"`
	PostsProcessed  int       `json:"posts_processed"`
	IdeasGenerated  int       `json:"ideas_generated"`
	EmailsSent      int       `json:"emails_sent"`
	ErrorCount      int       `json:"error_count"`
}

// NewService creates a new pipeline service
func NewService(cfg *config.Config, st store.Store, generator llm.Generator, scorer llm.Scorer, sender notifications.EmailSender) *Service {
	return &Service{
		config:    cfg,
		store:     st,
		generator: generator,
		scorer:    scorer,
		sender:    sender,
		metrics:   &Metrics{},
	}
}

// Run executes the three stages in order. Later stages depend on earlier
// stages' writes, so the order is fixed: ingest, evaluate, send digests.
// Each stage catches its own failures and reports them in its result; overall
// success is the conjunction of the three. Anything that still escapes a
// stage is caught here and reported as a top-level failure.
func (s *Service) Run(ctx context.Context) (report *models.PipelineReport) {
	start := time.Now()
	logrus.Info("Starting pipeline run")

	report = &models.PipelineReport{Message: "Daily pipeline completed"}
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Pipeline run panicked: %v", r)
			report.Success = false
			report.Message = fmt.Sprintf("pipeline failed: %v", r)
		}
		report.DurationMS = time.Since(start).Milliseconds()
		s.updateMetrics(report, time.Since(start))
		logrus.Infof("Pipeline run completed in %v (success=%t)", time.Since(start), report.Success)
	}()

	report.Results.Ingest = s.Ingest(ctx)
	report.Results.Evaluate = s.Evaluate(ctx)
	report.Results.Digests = s.SendDigests(ctx)

	report.Success = report.Results.Ingest.Success &&
		report.Results.Evaluate.Success &&
		report.Results.Digests.Success

	return report
}

func (s *Service) updateMetrics(report *models.PipelineReport, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	s.metrics.LastRunSuccess = report.Success

	errorCount := 0
	if ingest := report.Results.Ingest; ingest != nil {
		s.metrics.PostsGenerated = ingest.PostsGenerated
		if ingest.Error != "" {
			errorCount++
		}
	}
	if eval := report.Results.Evaluate; eval != nil {
		s.metrics.PostsProcessed = eval.PostsProcessed
		s.metrics.IdeasGenerated = eval.IdeasGenerated
		errorCount += len(eval.Errors)
		if eval.Error != "" {
			errorCount++
		}
	}
	if digests := report.Results.Digests; digests != nil {
		s.metrics.EmailsSent = digests.EmailsSent
		errorCount += len(digests.Errors)
		if digests.Error != "" {
			errorCount++
		}
	}
	s.metrics.ErrorCount = errorCount
}

// GetMetrics returns the last run's metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
