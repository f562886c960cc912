package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/storysift/storysift/app/database"
	"github.com/storysift/storysift/app/dedup"
	"github.com/storysift/storysift/app/enrich"
	"github.com/storysift/storysift/app/extract"
	"github.com/storysift/storysift/app/metrics"
	"github.com/storysift/storysift/app/search"
)

// ErrStorageUnavailable marks persistence failures. The job that hit one is
// reported as failed so the source is retried, and the caller must roll
// back any index claim taken for the draft.
var ErrStorageUnavailable = errors.New("storage unavailable")

// SourceRef identifies one source's sighting of a story.
type SourceRef struct {
	SourceID string
	URL      string
	Title    string
}

// Sink writes accepted drafts and duplicate absorptions to the database
// and mirrors them into the search index. Database writes are the job's
// durability line: their failure fails the job. Search writes are
// best-effort because the index can be rebuilt from the database.
type Sink struct {
	articles     database.ArticleRepository
	fingerprints database.FingerprintRepository
	indexer      search.Indexer
}

func NewSink(articles database.ArticleRepository, fingerprints database.FingerprintRepository, indexer search.Indexer) *Sink {
	return &Sink{
		articles:     articles,
		fingerprints: fingerprints,
		indexer:      indexer,
	}
}

// Persist stores a new representative article: the article row (idempotent
// on the canonical url hash), its fingerprint when it has one, and the
// reporting source's reference. Returns the article id.
func (s *Sink) Persist(ctx context.Context, draft *extract.ArticleDraft, enrichment *enrich.Enrichment, fp *dedup.Fingerprint) (string, error) {
	article := articleFromDraft(draft, enrichment)

	articleID, err := s.articles.UpsertArticle(article)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if fp != nil {
		err := s.fingerprints.InsertFingerprint(database.Fingerprint{
			ID:            fp.ID,
			ArticleID:     articleID,
			Sketch:        dedup.EncodeSketch(fp.Sketch),
			ContentLength: fp.ContentLength,
			TimeBucket:    fp.Bucket,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	err = s.articles.AddArticleSource(database.ArticleSource{
		ArticleID: articleID,
		SourceID:  draft.SourceID,
		URL:       draft.URL,
		Title:     draft.Title,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	article.ID = articleID
	s.upsertSearchDoc(ctx, article, []string{draft.SourceID})

	return articleID, nil
}

// AbsorbSource attaches a near-duplicate sighting to an existing article
// instead of creating a new one, and flags the article as the
// representative of its story cluster.
func (s *Sink) AbsorbSource(ctx context.Context, articleID string, ref SourceRef) error {
	err := s.articles.AddArticleSource(database.ArticleSource{
		ArticleID: articleID,
		SourceID:  ref.SourceID,
		URL:       ref.URL,
		Title:     ref.Title,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := s.articles.MarkRepresentative(articleID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.refreshSearchDoc(ctx, articleID)

	return nil
}

// refreshSearchDoc re-indexes an article with its current absorbed-source
// list. Read or index failures are logged and swallowed.
func (s *Sink) refreshSearchDoc(ctx context.Context, articleID string) {
	article, err := s.articles.GetArticle(articleID)
	if err != nil || article == nil {
		slog.Warn("Failed to load article for search refresh", "article", articleID, "error", err)
		return
	}

	refs, err := s.articles.GetArticleSources(articleID)
	if err != nil {
		slog.Warn("Failed to load article sources for search refresh", "article", articleID, "error", err)
		return
	}

	seen := make(map[string]bool, len(refs))
	sourceIDs := make([]string, 0, len(refs))
	for _, r := range refs {
		if !seen[r.SourceID] {
			seen[r.SourceID] = true
			sourceIDs = append(sourceIDs, r.SourceID)
		}
	}

	s.upsertSearchDoc(ctx, *article, sourceIDs)
}

func (s *Sink) upsertSearchDoc(ctx context.Context, article database.Article, sourceIDs []string) {
	entities := make([]search.Entity, 0, len(article.Entities))
	for _, e := range article.Entities {
		entities = append(entities, search.Entity{Name: e.Name, Type: e.Type})
	}

	doc := search.Document{
		URLHash:     article.URLHash,
		URL:         article.URL,
		Title:       article.Title,
		Body:        article.Body,
		Summary:     article.Summary,
		Author:      article.Author,
		Language:    article.Language,
		PublishedAt: article.PublishedAt,
		SourceID:    article.SourceID,
		Sources:     sourceIDs,
		Sentiment:   article.Sentiment,
		Entities:    entities,
	}

	if err := s.indexer.Upsert(ctx, doc); err != nil {
		metrics.SearchFailures.Inc()
		slog.Warn("Failed to upsert search document", "article", article.ID, "url_hash", article.URLHash, "error", err)
	}
}

func articleFromDraft(draft *extract.ArticleDraft, enrichment *enrich.Enrichment) database.Article {
	article := database.Article{
		ID:                 uuid.NewString(),
		URLHash:            draft.URLHash,
		URL:                draft.URL,
		Title:              draft.Title,
		Body:               draft.Body,
		Summary:            draft.Summary,
		Author:             draft.Author,
		ImageURL:           draft.ImageURL,
		Language:           draft.Language,
		PublishedAt:        draft.PublishedAt,
		PublishedEstimated: draft.PublishedEstimated,
		SourceID:           draft.SourceID,
		Entities:           []database.Entity{},
	}

	if enrichment != nil {
		for _, e := range enrichment.Entities {
			article.Entities = append(article.Entities, database.Entity{Name: e.Name, Type: e.Type})
		}
		article.Sentiment = enrichment.Sentiment
	}

	return article
}
