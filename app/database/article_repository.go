package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresArticleRepository handles database operations for articles
type PostgresArticleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) *PostgresArticleRepository {
	return &PostgresArticleRepository{db: db}
}

// UpsertArticle inserts an article or refreshes its content when the same
// canonical URL is seen again. The owning source and representative flag of
// an existing row are preserved. Returns the article id.
func (r *PostgresArticleRepository) UpsertArticle(article Article) (string, error) {
	entities, err := json.Marshal(article.Entities)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entities: %w", err)
	}
	if article.Entities == nil {
		entities = []byte("[]")
	}

	var id string
	err = r.db.QueryRow(`
		INSERT INTO articles (id, url_hash, url, title, body, summary, author, image_url,
		                      language, published_at, published_estimated, source_id,
		                      entities, sentiment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (url_hash) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			summary = EXCLUDED.summary,
			author = EXCLUDED.author,
			image_url = EXCLUDED.image_url,
			language = EXCLUDED.language,
			published_at = EXCLUDED.published_at,
			published_estimated = EXCLUDED.published_estimated,
			entities = EXCLUDED.entities,
			sentiment = EXCLUDED.sentiment,
			updated_at = NOW()
		RETURNING id
	`, article.ID, article.URLHash, article.URL, article.Title, article.Body,
		article.Summary, article.Author, article.ImageURL, article.Language,
		article.PublishedAt, article.PublishedEstimated, article.SourceID,
		entities, article.Sentiment).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("failed to upsert article: %w", err)
	}

	return id, nil
}

// AddArticleSource records a source's report of an article. Repeated reports
// of the same url from the same source are ignored.
func (r *PostgresArticleRepository) AddArticleSource(ref ArticleSource) error {
	_, err := r.db.Exec(`
		INSERT INTO article_sources (article_id, source_id, url, title)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id, source_id, url) DO NOTHING
	`, ref.ArticleID, ref.SourceID, ref.URL, ref.Title)

	if err != nil {
		return fmt.Errorf("failed to add article source: %w", err)
	}

	return nil
}

// MarkRepresentative flags an article as the retained representative of a
// duplicate cluster.
func (r *PostgresArticleRepository) MarkRepresentative(articleID string) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET representative = TRUE, updated_at = NOW()
		WHERE id = $1
	`, articleID)

	if err != nil {
		return fmt.Errorf("failed to mark article representative: %w", err)
	}

	return nil
}

// GetArticle retrieves an article by id
func (r *PostgresArticleRepository) GetArticle(articleID string) (*Article, error) {
	var article Article
	var entities []byte

	err := r.db.QueryRow(`
		SELECT id, url_hash, url, title, body, summary, author, image_url,
		       language, published_at, published_estimated, source_id,
		       entities, sentiment, representative, created_at, updated_at
		FROM articles
		WHERE id = $1
	`, articleID).Scan(
		&article.ID, &article.URLHash, &article.URL, &article.Title, &article.Body,
		&article.Summary, &article.Author, &article.ImageURL, &article.Language,
		&article.PublishedAt, &article.PublishedEstimated, &article.SourceID,
		&entities, &article.Sentiment, &article.Representative,
		&article.CreatedAt, &article.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	if err := json.Unmarshal(entities, &article.Entities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
	}

	return &article, nil
}

// GetArticleSources returns every source report for an article, oldest first
func (r *PostgresArticleRepository) GetArticleSources(articleID string) ([]ArticleSource, error) {
	rows, err := r.db.Query(`
		SELECT article_id, source_id, url, title, absorbed_at
		FROM article_sources
		WHERE article_id = $1
		ORDER BY absorbed_at, source_id
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get article sources: %w", err)
	}
	defer rows.Close()

	var refs []ArticleSource
	for rows.Next() {
		var ref ArticleSource
		if err := rows.Scan(&ref.ArticleID, &ref.SourceID, &ref.URL, &ref.Title, &ref.AbsorbedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article source row: %w", err)
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article source rows: %w", err)
	}

	return refs, nil
}

// GetArticleCount returns the total number of articles
func (r *PostgresArticleRepository) GetArticleCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM articles").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get article count: %w", err)
	}
	return count, nil
}
