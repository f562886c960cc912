package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storysift/storysift/app/adapters"
	"github.com/storysift/storysift/app/dedup"
	"github.com/storysift/storysift/app/enrich"
	"github.com/storysift/storysift/app/extract"
	"github.com/storysift/storysift/app/metrics"
	"github.com/storysift/storysift/app/sink"
	"github.com/storysift/storysift/app/sources"
)

// IngestTask runs one fetch attempt for one source: fetch, extract,
// deduplicate, enrich, persist. It reports exactly one scheduling result to
// the registry per execution, so backoff accounting stays aligned with
// attempts.
type IngestTask struct {
	Task
	Source    sources.Source
	registry  *sources.Registry
	adapters  *adapters.Registry
	extractor *extract.Extractor
	detector  *dedup.Detector
	enricher  enrich.Enricher
	sink      *sink.Sink
}

func NewIngestTask(source sources.Source, registry *sources.Registry, adapterRegistry *adapters.Registry,
	extractor *extract.Extractor, detector *dedup.Detector, enricher enrich.Enricher, articleSink *sink.Sink) *IngestTask {
	return &IngestTask{
		Task:      NewTask(TaskTypeIngest, source.ID, source.Weight),
		Source:    source,
		registry:  registry,
		adapters:  adapterRegistry,
		extractor: extractor,
		detector:  detector,
		enricher:  enricher,
		sink:      articleSink,
	}
}

type ingestStats struct {
	fetched    int
	new        int
	duplicates int
	short      int
	skipped    int
}

func (t *IngestTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		// Never started: release the source without recording an outcome
		// so it stays due after a restart.
		t.registry.AbortAttempt(t.Source.ID)
		return ctx.Err()
	default:
	}

	stats, result, runErr := t.run(ctx)

	now := time.Now().UTC()
	if err := t.registry.RecordResult(t.Source.ID, result, now, runErr); err != nil {
		slog.Error("Failed to record source result", "source", t.Source.ID, "result", string(result), "error", err)
	}

	metrics.JobsCompleted.WithLabelValues(t.Source.ID, string(result)).Inc()
	metrics.JobDuration.WithLabelValues(t.Source.ID).Observe(t.GetDuration().Seconds())

	if runErr != nil {
		return runErr
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"source", t.Source.ID,
		"duration", t.GetDuration(),
		"fetched", stats.fetched,
		"new", stats.new,
		"duplicates", stats.duplicates,
		"short", stats.short,
		"skipped", stats.skipped)

	return nil
}

// run executes the pipeline and maps its outcome onto a scheduling result.
// A policy denial reschedules without penalty, extraction failures are
// per-document and only fail the attempt when no document survives, and
// index or storage errors fail the attempt immediately.
func (t *IngestTask) run(ctx context.Context) (ingestStats, sources.Result, error) {
	var stats ingestStats

	adapter, err := t.adapters.Resolve(t.Source.Kind)
	if err != nil {
		return stats, sources.ResultFailure, err
	}

	docs, err := adapter.Fetch(ctx, t.Source)
	if err != nil {
		if errors.Is(err, adapters.ErrPolicyDenied) {
			return stats, sources.ResultDenied, err
		}
		return stats, sources.ResultFailure, fmt.Errorf("failed to fetch source: %w", err)
	}

	stats.fetched = len(docs)

	var firstErr error
	for _, doc := range docs {
		if ctx.Err() != nil {
			return stats, sources.ResultFailure, ctx.Err()
		}

		err := t.processDocument(ctx, doc, &stats)
		switch {
		case err == nil:
		case errors.Is(err, extract.ErrEmptyContent), errors.Is(err, extract.ErrUnsupportedLanguage):
			stats.skipped++
			if firstErr == nil {
				firstErr = err
			}
		default:
			return stats, sources.ResultFailure, err
		}
	}

	if stats.fetched > 0 && stats.skipped == stats.fetched {
		return stats, sources.ResultFailure, fmt.Errorf("all %d documents failed extraction: %w", stats.skipped, firstErr)
	}

	return stats, sources.ResultSuccess, nil
}

func (t *IngestTask) processDocument(ctx context.Context, doc adapters.RawDocument, stats *ingestStats) error {
	draft, err := t.extractor.Extract(doc)
	if err != nil {
		metrics.Documents.WithLabelValues(t.Source.ID, metrics.OutcomeExtractError).Inc()
		slog.Debug("Document skipped", "source", t.Source.ID, "url", doc.Hint.URL, "error", err)
		return err
	}

	decision, err := t.detector.Process(ctx, t.Source.ID, draft.Body, draft.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to probe duplicate index: %w", err)
	}

	switch decision.Status {
	case dedup.StatusDuplicate:
		metrics.Documents.WithLabelValues(t.Source.ID, metrics.OutcomeDuplicate).Inc()
		stats.duplicates++

		ref := sink.SourceRef{SourceID: t.Source.ID, URL: draft.URL, Title: draft.Title}
		if err := t.sink.AbsorbSource(ctx, decision.ArticleID, ref); err != nil {
			return err
		}

		slog.Debug("Near-duplicate absorbed", "source", t.Source.ID, "url", draft.URL,
			"article", decision.ArticleID, "similarity", decision.Similarity)
		return nil

	case dedup.StatusShort:
		metrics.Documents.WithLabelValues(t.Source.ID, metrics.OutcomeShort).Inc()
		stats.short++

		// Too little text to fingerprint reliably: persisted as unique,
		// never indexed.
		_, err := t.sink.Persist(ctx, draft, t.enrichDraft(ctx, draft), nil)
		return err

	case dedup.StatusNew:
		metrics.Documents.WithLabelValues(t.Source.ID, metrics.OutcomeNew).Inc()
		stats.new++

		articleID, err := t.sink.Persist(ctx, draft, t.enrichDraft(ctx, draft), decision.Fingerprint)
		if err != nil {
			if rollbackErr := decision.Claim.Rollback(ctx); rollbackErr != nil {
				slog.Warn("Failed to roll back index claim", "source", t.Source.ID, "url", draft.URL, "error", rollbackErr)
			}
			return err
		}

		if err := decision.Claim.Commit(ctx, articleID); err != nil {
			// The article is durable; the claim expires on its own and the
			// next sighting within the window re-indexes the content.
			slog.Warn("Failed to commit index claim", "source", t.Source.ID, "article", articleID, "error", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown dedup status: %s", decision.Status)
	}
}

// enrichDraft asks the enrichment service for entities and sentiment.
// Enrichment is best effort: on any failure the draft is persisted without
// it.
func (t *IngestTask) enrichDraft(ctx context.Context, draft *extract.ArticleDraft) *enrich.Enrichment {
	enrichment, err := t.enricher.Enrich(ctx, draft)
	if err != nil {
		metrics.EnrichmentFailures.Inc()
		slog.Debug("Enrichment unavailable, persisting without it", "source", t.Source.ID, "url", draft.URL, "error", err)
		return nil
	}

	return enrichment
}
