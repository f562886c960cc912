package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testParams() Params {
	params := DefaultParams()
	params.PendingWait = 2 * time.Second
	return params
}

func fingerprintOf(t *testing.T, params Params, sourceID, text string, bucket int64) *Fingerprint {
	t.Helper()

	shingles := Shingles(Tokenize(text), params.ShingleSize)
	if len(shingles) < params.MinShingles {
		t.Fatalf("fixture too short: %d shingles", len(shingles))
	}

	sketch := Sketch(shingles, params.HashCount)

	return &Fingerprint{
		ID:            fmt.Sprintf("fp-%s-%d", sourceID, time.Now().UnixNano()),
		SourceID:      sourceID,
		Sketch:        sketch,
		Bands:         BandSignatures(sketch, params.Bands, params.Rows),
		ContentLength: len(text),
		Bucket:        bucket,
	}
}

func TestProbeAndClaimNew(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)

	outcome, err := index.ProbeAndClaim(context.Background(), fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	if outcome.Status != StatusNew {
		t.Fatalf("Status = %s, want %s", outcome.Status, StatusNew)
	}
	if outcome.Claim == nil {
		t.Fatal("expected a claim for new content")
	}

	if err := outcome.Claim.Commit(context.Background(), "article-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if index.Size() != 1 {
		t.Errorf("Size() = %d, want 1", index.Size())
	}
}

func TestProbeAndClaimDuplicate(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	first, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}
	if err := first.Claim.Commit(ctx, "article-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	second, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-b", newsBody, 101))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	if second.Status != StatusDuplicate {
		t.Fatalf("Status = %s, want %s", second.Status, StatusDuplicate)
	}
	if second.ArticleID != "article-1" {
		t.Errorf("ArticleID = %s, want article-1", second.ArticleID)
	}
	if second.Similarity != 1.0 {
		t.Errorf("Similarity = %f, want 1.0 for identical text", second.Similarity)
	}

	if index.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after duplicate", index.Size())
	}
}

func TestProbeAndClaimOutsideWindow(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	maxDiff := int64(params.Window / params.BucketWidth)

	first, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}
	if err := first.Claim.Commit(ctx, "article-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	inside, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-b", newsBody, 100+maxDiff))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}
	if inside.Status != StatusDuplicate {
		t.Errorf("Status at window edge = %s, want %s", inside.Status, StatusDuplicate)
	}

	outside, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-c", newsBody, 100+maxDiff+1))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}
	if outside.Status != StatusNew {
		t.Errorf("Status past window edge = %s, want %s", outside.Status, StatusNew)
	}
}

func TestRollbackReclaims(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	first, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	if err := first.Claim.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if index.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after rollback", index.Size())
	}

	second, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-b", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	if second.Status != StatusNew {
		t.Errorf("Status = %s, want %s after previous claim rolled back", second.Status, StatusNew)
	}
}

func TestClaimLifecycle(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	outcome, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	if err := outcome.Claim.Commit(ctx, "article-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	// Committing again is a no-op, rolling back a committed claim is not.
	if err := outcome.Claim.Commit(ctx, "article-1"); err != nil {
		t.Errorf("repeated Commit() error = %v, want nil", err)
	}
	if err := outcome.Claim.Rollback(ctx); err == nil {
		t.Error("Rollback() after commit should fail")
	}
}

func TestPendingClaimResolvedByCommit(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	first, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}
	if first.Status != StatusNew {
		t.Fatalf("Status = %s, want %s", first.Status, StatusNew)
	}

	type result struct {
		outcome *Outcome
		err     error
	}
	results := make(chan result, 1)

	go func() {
		outcome, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-b", newsBody, 100))
		results <- result{outcome, err}
	}()

	// Give the prober time to find the pending claim and block on it.
	time.Sleep(50 * time.Millisecond)

	if err := first.Claim.Commit(ctx, "article-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	select {
	case res := <-results:
		if res.err != nil {
			t.Fatalf("concurrent ProbeAndClaim() error = %v", res.err)
		}
		if res.outcome.Status != StatusDuplicate {
			t.Errorf("Status = %s, want %s after winner committed", res.outcome.Status, StatusDuplicate)
		}
		if res.outcome.ArticleID != "article-1" {
			t.Errorf("ArticleID = %s, want article-1", res.outcome.ArticleID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent probe did not resolve after commit")
	}

	if index.Size() != 1 {
		t.Errorf("Size() = %d, want 1", index.Size())
	}
}

func TestPendingClaimResolvedByRollback(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	first, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	type result struct {
		outcome *Outcome
		err     error
	}
	results := make(chan result, 1)

	go func() {
		outcome, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-b", newsBody, 100))
		results <- result{outcome, err}
	}()

	time.Sleep(50 * time.Millisecond)

	if err := first.Claim.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	select {
	case res := <-results:
		if res.err != nil {
			t.Fatalf("concurrent ProbeAndClaim() error = %v", res.err)
		}
		if res.outcome.Status != StatusNew {
			t.Errorf("Status = %s, want %s after winner rolled back", res.outcome.Status, StatusNew)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent probe did not resolve after rollback")
	}
}

func TestConcurrentProbesSingleWinner(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	const workers = 8

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		newCount   int
		dupArticle = make(map[string]int)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			fp := fingerprintOf(t, params, fmt.Sprintf("source-%d", i), newsBody, 100)
			fp.ID = fmt.Sprintf("fp-%d", i)

			outcome, err := index.ProbeAndClaim(ctx, fp)
			if err != nil {
				t.Errorf("ProbeAndClaim() error = %v", err)
				return
			}

			switch outcome.Status {
			case StatusNew:
				if err := outcome.Claim.Commit(ctx, fmt.Sprintf("article-%d", i)); err != nil {
					t.Errorf("Commit() error = %v", err)
					return
				}
				mu.Lock()
				newCount++
				mu.Unlock()
			case StatusDuplicate:
				mu.Lock()
				dupArticle[outcome.ArticleID]++
				mu.Unlock()
			default:
				t.Errorf("unexpected status %s", outcome.Status)
			}
		}(i)
	}

	wg.Wait()

	if newCount != 1 {
		t.Errorf("got %d new outcomes, want exactly 1", newCount)
	}

	if len(dupArticle) != 1 {
		t.Errorf("duplicates resolved to %d distinct articles, want 1: %v", len(dupArticle), dupArticle)
	}

	for _, count := range dupArticle {
		if count != workers-1 {
			t.Errorf("got %d duplicates, want %d", count, workers-1)
		}
	}

	if index.Size() != 1 {
		t.Errorf("Size() = %d, want 1", index.Size())
	}
}

func TestRestore(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	sketch := Sketch(Shingles(Tokenize(newsBody), params.ShingleSize), params.HashCount)

	err := index.Restore([]Entry{
		{ID: "fp-1", ArticleID: "article-1", Sketch: sketch, Bucket: 100},
	})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if index.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 after restore", index.Size())
	}

	outcome, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-b", newsBody, 101))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	if outcome.Status != StatusDuplicate || outcome.ArticleID != "article-1" {
		t.Errorf("restored entry not matched: status %s, article %s", outcome.Status, outcome.ArticleID)
	}
}

func TestRestoreRejectsMismatchedSketch(t *testing.T) {
	index := NewMemoryIndex(testParams())

	err := index.Restore([]Entry{
		{ID: "fp-1", ArticleID: "article-1", Sketch: make([]uint64, 64), Bucket: 100},
	})
	if err == nil {
		t.Error("expected error for sketch not matching index parameters")
	}
}

func TestSweep(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	widthSeconds := int64(params.BucketWidth / time.Second)
	cutoff := time.Unix(1000*widthSeconds, 0)

	old, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}
	if err := old.Claim.Commit(ctx, "article-old"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	recent, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-b", newsBody, 2000))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}
	if recent.Status != StatusNew {
		// Bucket 2000 is far outside the window of bucket 100.
		t.Fatalf("Status = %s, want %s", recent.Status, StatusNew)
	}
	if err := recent.Claim.Commit(ctx, "article-recent"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	removed, err := index.Sweep(ctx, cutoff)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if removed != 1 {
		t.Errorf("Sweep() removed %d entries, want 1", removed)
	}
	if index.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after sweep", index.Size())
	}
}

func TestSweepSkipsPending(t *testing.T) {
	params := testParams()
	index := NewMemoryIndex(params)
	ctx := context.Background()

	outcome, err := index.ProbeAndClaim(ctx, fingerprintOf(t, params, "wire-a", newsBody, 100))
	if err != nil {
		t.Fatalf("ProbeAndClaim() error = %v", err)
	}

	removed, err := index.Sweep(ctx, time.Unix(1<<40, 0))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if removed != 0 {
		t.Errorf("Sweep() removed %d entries, want 0 while claim pending", removed)
	}

	if err := outcome.Claim.Commit(ctx, "article-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}
