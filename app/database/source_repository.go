package database

import (
	"fmt"
	"time"
)

// PostgresSourceRepository handles database operations for sources
type PostgresSourceRepository struct {
	db *DB
}

func NewSourceRepository(db *DB) *PostgresSourceRepository {
	return &PostgresSourceRepository{db: db}
}

// GetSources returns all known sources, including deactivated ones
func (r *PostgresSourceRepository) GetSources() ([]Source, error) {
	rows, err := r.db.Query(`
		SELECT id, name, kind, url, interval_seconds, weight, active,
		       last_success_at, last_attempt_at, next_attempt_at,
		       consecutive_failures, last_error, created_at, updated_at
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var source Source
		err := rows.Scan(
			&source.ID, &source.Name, &source.Kind, &source.URL,
			&source.IntervalSeconds, &source.Weight, &source.Active,
			&source.LastSuccessAt, &source.LastAttemptAt, &source.NextAttemptAt,
			&source.ConsecutiveFailures, &source.LastError,
			&source.CreatedAt, &source.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

// UpsertSource inserts a source or updates its configuration columns.
// Health columns are left untouched on conflict so a reload never resets
// backoff state.
func (r *PostgresSourceRepository) UpsertSource(source Source) error {
	_, err := r.db.Exec(`
		INSERT INTO sources (id, name, kind, url, interval_seconds, weight, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			url = EXCLUDED.url,
			interval_seconds = EXCLUDED.interval_seconds,
			weight = EXCLUDED.weight,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, source.ID, source.Name, source.Kind, source.URL, source.IntervalSeconds, source.Weight, source.Active)

	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	return nil
}

// SetSourceActive sets the active flag of a source
func (r *PostgresSourceRepository) SetSourceActive(sourceID string, active bool) error {
	_, err := r.db.Exec(`
		UPDATE sources
		SET active = $2, updated_at = NOW()
		WHERE id = $1
	`, sourceID, active)

	if err != nil {
		return fmt.Errorf("failed to set source active status: %w", err)
	}

	return nil
}

// UpdateSourceHealth writes the scheduling state of a source after an attempt
func (r *PostgresSourceRepository) UpdateSourceHealth(sourceID string, lastSuccessAt, lastAttemptAt, nextAttemptAt *time.Time, consecutiveFailures int, lastError string) error {
	_, err := r.db.Exec(`
		UPDATE sources
		SET last_success_at = $2,
		    last_attempt_at = $3,
		    next_attempt_at = $4,
		    consecutive_failures = $5,
		    last_error = $6,
		    updated_at = NOW()
		WHERE id = $1
	`, sourceID, lastSuccessAt, lastAttemptAt, nextAttemptAt, consecutiveFailures, lastError)

	if err != nil {
		return fmt.Errorf("failed to update source health: %w", err)
	}

	return nil
}
