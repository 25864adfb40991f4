package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hangarhq/hangar/pkg/artifact"
)

// Config holds worker pool settings.
type Config struct {
	Enabled      bool
	Concurrency  int
	MaxRetries   int
	PollInterval time.Duration
	ClaimTimeout time.Duration
	Retention    time.Duration
}

// DefaultConfig returns conservative worker defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Concurrency:  2,
		MaxRetries:   5,
		PollInterval: 5 * time.Second,
		ClaimTimeout: 2 * time.Minute,
		Retention:    7 * 24 * time.Hour,
	}
}

// WorkerPool drains the cleanup queue using a pool of goroutines.
type WorkerPool struct {
	store     *TaskStore
	artifacts artifact.Store
	cfg       Config
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *TaskStore, artifacts artifact.Store, cfg Config, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		store:     store,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger,
	}
}

// EnqueueRemoval queues one artifact for deletion. Satisfies the
// catalog's Remover interface. A queueing failure is logged, never
// propagated: the catalog row is already gone and the sweeper will
// not get a second chance, but that trade is deliberate.
func (wp *WorkerPool) EnqueueRemoval(locator string) {
	if _, err := wp.store.Enqueue(locator); err != nil {
		wp.logger.Error("failed to enqueue artifact removal", "locator", locator, "error", err)
	}
}

// Run starts the worker pool. It blocks until the context is
// cancelled, then waits for all workers to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if !wp.cfg.Enabled {
		wp.logger.Info("cleanup worker pool disabled")
		return
	}

	wp.logger.Info("cleanup worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.sweepLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("cleanup worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("cleanup worker pool stopped")
}

// workerLoop is the main loop for a single worker goroutine.
func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue rather than one task per tick; bulk
			// deletes (app cascades) queue many tasks at once.
			for wp.processOne(ctx, workerID) {
			}
		}
	}
}

// processOne claims and processes a single task. Reports whether a
// task was claimed so the caller can keep draining.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) bool {
	task, err := wp.store.Claim(wp.cfg.MaxRetries)
	if err != nil {
		wp.logger.Error("failed to claim cleanup task", "workerID", workerID, "error", err)
		return false
	}
	if task == nil {
		return false
	}

	if err := wp.artifacts.Remove(ctx, task.Locator); err != nil {
		wp.logger.Warn("artifact removal failed",
			"workerID", workerID, "taskID", task.ID,
			"locator", task.Locator, "attempt", task.AttemptCount, "error", err)
		if failErr := wp.store.Fail(task.ID, err.Error(), wp.cfg.MaxRetries); failErr != nil {
			wp.logger.Error("failed to mark cleanup task as failed", "taskID", task.ID, "error", failErr)
		}
		return true
	}

	if err := wp.store.Complete(task.ID); err != nil {
		wp.logger.Error("failed to mark cleanup task as complete", "taskID", task.ID, "error", err)
	}
	return true
}

// sweepLoop recovers stuck tasks and expires old terminal ones.
func (wp *WorkerPool) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if wp.cfg.ClaimTimeout > 0 {
				recovered, err := wp.store.RecoverStuck(wp.cfg.ClaimTimeout)
				if err != nil {
					wp.logger.Error("failed to recover stuck cleanup tasks", "error", err)
				} else if recovered > 0 {
					wp.logger.Info("recovered stuck cleanup tasks", "count", recovered)
				}
			}

			if wp.cfg.Retention > 0 {
				deleted, err := wp.store.DeleteOlderThan(time.Now().Add(-wp.cfg.Retention))
				if err != nil {
					wp.logger.Error("failed to expire old cleanup tasks", "error", err)
				} else if deleted > 0 {
					wp.logger.Info("expired old cleanup tasks", "count", deleted)
				}
			}
		}
	}
}
