package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/storysift/storysift/app/dedup"
)

func TestRetentionTaskSweepsOldFingerprints(t *testing.T) {
	params := dedup.DefaultParams()
	index := dedup.NewMemoryIndex(params)

	sketch := make([]uint64, params.HashCount)
	for i := range sketch {
		sketch[i] = uint64(i) + 1
	}

	now := time.Now().UTC()

	entries := []dedup.Entry{
		{ID: "stale", ArticleID: "article-stale", Sketch: sketch, Bucket: params.Bucket(now.Add(-30 * 24 * time.Hour))},
		{ID: "fresh", ArticleID: "article-fresh", Sketch: sketch, Bucket: params.Bucket(now)},
	}
	if err := index.Restore(entries); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	fingerprints := &MockFingerprintRepository{}
	maxAge := 14 * 24 * time.Hour

	task := NewRetentionTask(index, fingerprints, maxAge)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got := index.Size(); got != 1 {
		t.Errorf("index size = %d after sweep, want 1", got)
	}

	if len(fingerprints.deletedBefore) != 1 {
		t.Fatalf("got %d delete calls, want 1", len(fingerprints.deletedBefore))
	}

	cutoff := fingerprints.deletedBefore[0]
	want := now.Add(-maxAge)
	if cutoff.Before(want.Add(-time.Minute)) || cutoff.After(want.Add(time.Minute)) {
		t.Errorf("delete cutoff = %v, want about %v", cutoff, want)
	}
}

func TestRetentionTaskCanceledContext(t *testing.T) {
	index := dedup.NewMemoryIndex(dedup.DefaultParams())
	fingerprints := &MockFingerprintRepository{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewRetentionTask(index, fingerprints, time.Hour)
	if err := task.Execute(ctx); err == nil {
		t.Fatal("Execute() with canceled context should fail")
	}

	if len(fingerprints.deletedBefore) != 0 {
		t.Errorf("got %d delete calls, want 0", len(fingerprints.deletedBefore))
	}
}
