package database

import (
	"fmt"
	"time"
)

// PostgresFingerprintRepository handles database operations for content sketches
type PostgresFingerprintRepository struct {
	db *DB
}

func NewFingerprintRepository(db *DB) *PostgresFingerprintRepository {
	return &PostgresFingerprintRepository{db: db}
}

// InsertFingerprint stores the sketch of a newly accepted article
func (r *PostgresFingerprintRepository) InsertFingerprint(fp Fingerprint) error {
	_, err := r.db.Exec(`
		INSERT INTO fingerprints (id, article_id, sketch, content_length, time_bucket)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, fp.ID, fp.ArticleID, fp.Sketch, fp.ContentLength, fp.TimeBucket)

	if err != nil {
		return fmt.Errorf("failed to insert fingerprint: %w", err)
	}

	return nil
}

// GetRecentFingerprints returns sketches stored since the given time, used
// to rebuild the in-memory duplicate index on startup.
func (r *PostgresFingerprintRepository) GetRecentFingerprints(since time.Time) ([]Fingerprint, error) {
	rows, err := r.db.Query(`
		SELECT id, article_id, sketch, content_length, time_bucket, created_at
		FROM fingerprints
		WHERE created_at >= $1
		ORDER BY created_at
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent fingerprints: %w", err)
	}
	defer rows.Close()

	var fingerprints []Fingerprint
	for rows.Next() {
		var fp Fingerprint
		if err := rows.Scan(&fp.ID, &fp.ArticleID, &fp.Sketch, &fp.ContentLength, &fp.TimeBucket, &fp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint row: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fingerprint rows: %w", err)
	}

	return fingerprints, nil
}

// DeleteFingerprintsBefore removes sketches older than the retention cutoff
func (r *PostgresFingerprintRepository) DeleteFingerprintsBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`
		DELETE FROM fingerprints
		WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete fingerprints: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted fingerprints: %w", err)
	}

	return deleted, nil
}
