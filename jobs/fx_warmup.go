package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/rethread-erp/rethread-erp/internal/fx"
	jobmetrics "github.com/rethread-erp/rethread-erp/internal/jobs"
)

// FXWarmupJob primes the exchange-rate cache so posting paths rarely miss.
type FXWarmupJob struct {
	Source  *fx.Source
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewFXWarmupJob initialises the warmup handler.
func NewFXWarmupJob(source *fx.Source, logger *slog.Logger, metrics *jobmetrics.Metrics) *FXWarmupJob {
	return &FXWarmupJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle loads every configured rate into the cache.
func (j *FXWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("fx warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskFXWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var warmed int
	warmed, resultErr = j.Source.Warm(ctx)
	if resultErr != nil {
		return resultErr
	}
	if j.Logger != nil {
		j.Logger.Info("fx cache warmed", slog.Int("rates", warmed))
	}
	return nil
}
