package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weatherapp/backend/internal/domain"
)

// LookupRecorder writes successful lookups to the lookup log in the background
type LookupRecorder struct {
	repo    domain.LookupRepository
	metrics *Metrics
	logger  *slog.Logger
	timeout time.Duration

	wgBg sync.WaitGroup // tracks background goroutines for graceful shutdown
}

// NewLookupRecorder creates a recorder backed by repo
func NewLookupRecorder(repo domain.LookupRepository, metrics *Metrics, logger *slog.Logger) *LookupRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupRecorder{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record persists a lookup asynchronously.
// The write is detached from the caller's context so closing a session does not drop it.
func (r *LookupRecorder) Record(sessionID, query string, w domain.Weather) {
	lookup := domain.Lookup{
		Query:     query,
		Unit:      w.Unit,
		Weather:   w,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}

	r.wgBg.Add(1)
	go func() {
		defer r.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		err := r.repo.SaveLookup(bgCtx, lookup)
		r.metrics.observeLookupSave(err)
		if err != nil {
			r.logger.Error("failed to save lookup", "query", query, "error", err)
		}
	}()
}

// Recent returns the newest lookups first
func (r *LookupRecorder) Recent(ctx context.Context, limit int) ([]domain.Lookup, error) {
	return r.repo.RecentLookups(ctx, limit)
}

// Health checks the lookup log storage
func (r *LookupRecorder) Health(ctx context.Context) error {
	return r.repo.Health(ctx)
}

// WaitBackground blocks until all background save goroutines complete.
// Call during graceful shutdown to avoid dropped writes.
func (r *LookupRecorder) WaitBackground() {
	r.wgBg.Wait()
}
