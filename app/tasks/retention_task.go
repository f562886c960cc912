package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storysift/storysift/app/database"
	"github.com/storysift/storysift/app/dedup"
	"github.com/storysift/storysift/app/metrics"
)

// RetentionTask removes fingerprints older than the retention age from the
// duplicate index and from the database. Articles are never touched: only
// the ability to match new content against old fingerprints ages out.
type RetentionTask struct {
	Task
	index        dedup.Index
	fingerprints database.FingerprintRepository
	maxAge       time.Duration
}

func NewRetentionTask(index dedup.Index, fingerprints database.FingerprintRepository, maxAge time.Duration) *RetentionTask {
	return &RetentionTask{
		Task:         NewTask(TaskTypeRetention, "", 1),
		index:        index,
		fingerprints: fingerprints,
		maxAge:       maxAge,
	}
}

func (t *RetentionTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cutoff := time.Now().UTC().Add(-t.maxAge)

	swept, err := t.index.Sweep(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to sweep duplicate index: %w", err)
	}

	deleted, err := t.fingerprints.DeleteFingerprintsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete expired fingerprints: %w", err)
	}

	metrics.FingerprintsSwept.Add(float64(swept))

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"cutoff", cutoff,
		"swept", swept,
		"deleted", deleted)

	return nil
}
