package sources

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/storysift/storysift/app/database"
)

// Result classifies the outcome of a completed fetch attempt.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

type Options struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      float64
	MaxWeight   int
}

// Registry tracks every configured source together with its scheduling
// health. Health lives in memory and is written through to the database
// so it survives restarts. All methods are safe for concurrent use.
type Registry struct {
	repo    database.SourceRepository
	opts    Options
	mu      sync.RWMutex
	sources map[string]*Source
}

func NewRegistry(repo database.SourceRepository, opts Options) *Registry {
	if opts.MaxWeight < 1 {
		opts.MaxWeight = 1
	}

	return &Registry{
		repo:    repo,
		opts:    opts,
		sources: make(map[string]*Source),
	}
}

// Load merges a parsed configuration into the registry. Known sources keep
// their health and running state, new ones restore health from the database
// when present, and sources absent from the configuration are deactivated
// both in memory and in the database. Load is also used for reloads.
func (r *Registry) Load(configs []Config) error {
	rows, err := r.repo.GetSources()
	if err != nil {
		return fmt.Errorf("failed to load sources from database: %w", err)
	}

	persisted := make(map[string]database.Source, len(rows))
	for _, row := range rows {
		persisted[row.ID] = row
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	configured := make(map[string]bool, len(configs))

	for _, cfg := range configs {
		if cfg.Weight > r.opts.MaxWeight {
			slog.Warn("Source weight exceeds worker count, clamping", "source", cfg.ID, "weight", cfg.Weight, "max", r.opts.MaxWeight)
			cfg.Weight = r.opts.MaxWeight
		}

		configured[cfg.ID] = true

		if src, ok := r.sources[cfg.ID]; ok {
			src.Config = cfg
		} else {
			src = &Source{Config: cfg}
			if row, ok := persisted[cfg.ID]; ok {
				src.LastSuccessAt = row.LastSuccessAt
				src.LastAttemptAt = row.LastAttemptAt
				src.NextAttemptAt = row.NextAttemptAt
				src.ConsecutiveFailures = row.ConsecutiveFailures
				src.LastError = row.LastError
			}
			r.sources[cfg.ID] = src
		}

		if err := r.repo.UpsertSource(sourceRow(r.sources[cfg.ID])); err != nil {
			return fmt.Errorf("failed to upsert source %s: %w", cfg.ID, err)
		}
	}

	for id, src := range r.sources {
		if configured[id] || !src.Active {
			continue
		}

		src.Active = false

		if err := r.repo.SetSourceActive(id, false); err != nil {
			return fmt.Errorf("failed to deactivate source %s: %w", id, err)
		}

		slog.Info("Source removed from configuration, deactivated", "source", id)
	}

	return nil
}

// ListDue returns the sources eligible for a fetch attempt, oldest due time
// first with ties broken by id, taking sources while their combined weight
// fits in the given number of worker slots. Selection stops at the first
// source that does not fit so heavier sources are not starved.
func (r *Registry) ListDue(now time.Time, slots int) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]*Source, 0, len(r.sources))
	for _, src := range r.sources {
		if src.Due(now) {
			due = append(due, src)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		a, b := dueTime(due[i]), dueTime(due[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return due[i].ID < due[j].ID
	})

	selected := make([]Source, 0, len(due))
	for _, src := range due {
		if src.Weight > slots {
			break
		}
		slots -= src.Weight
		selected = append(selected, *src)
	}

	return selected
}

func dueTime(s *Source) time.Time {
	if s.NextAttemptAt == nil {
		return time.Time{}
	}
	return *s.NextAttemptAt
}

// BeginAttempt marks a source as running so no concurrent attempt can be
// dispatched for it. It returns false when the source is unknown, inactive
// or already running.
func (r *Registry) BeginAttempt(sourceID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[sourceID]
	if !ok || !src.Active || src.Running {
		return false
	}

	src.Running = true
	src.LastAttemptAt = &now

	return true
}

// AbortAttempt clears the running mark without recording an outcome. Used
// when a claimed source could not be handed to a worker.
func (r *Registry) AbortAttempt(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if src, ok := r.sources[sourceID]; ok {
		src.Running = false
	}
}

// RecordResult clears the running mark and reschedules the source. Success
// resets the failure streak and schedules the next attempt one interval out,
// failure grows an exponential backoff up to the configured maximum, and a
// policy denial reschedules like a success without touching the streak.
func (r *Registry) RecordResult(sourceID string, result Result, now time.Time, attemptErr error) error {
	r.mu.Lock()

	src, ok := r.sources[sourceID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown source: %s", sourceID)
	}

	src.Running = false

	switch result {
	case ResultSuccess:
		src.ConsecutiveFailures = 0
		src.LastSuccessAt = &now
		src.LastError = ""
		next := now.Add(r.jittered(src.Interval()))
		src.NextAttemptAt = &next
	case ResultDenied:
		if attemptErr != nil {
			src.LastError = attemptErr.Error()
		}
		next := now.Add(r.jittered(src.Interval()))
		src.NextAttemptAt = &next
	case ResultFailure:
		src.ConsecutiveFailures++
		if attemptErr != nil {
			src.LastError = attemptErr.Error()
		}
		next := now.Add(r.backoff(src.ConsecutiveFailures))
		src.NextAttemptAt = &next
	default:
		r.mu.Unlock()
		return fmt.Errorf("unknown result: %s", result)
	}

	row := sourceRow(src)
	r.mu.Unlock()

	if err := r.repo.UpdateSourceHealth(row.ID, row.LastSuccessAt, row.LastAttemptAt, row.NextAttemptAt, row.ConsecutiveFailures, row.LastError); err != nil {
		return fmt.Errorf("failed to persist source health: %w", err)
	}

	return nil
}

// backoff returns the delay before the next attempt after the given number
// of consecutive failures. The delay doubles per failure and saturates at
// the configured maximum. Jitter is deliberately not applied so the delay
// sequence stays monotonic.
func (r *Registry) backoff(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}

	shift := uint(failures - 1)
	if shift > 30 {
		return r.opts.BackoffMax
	}

	delay := r.opts.BackoffBase << shift
	if delay <= 0 || delay > r.opts.BackoffMax {
		return r.opts.BackoffMax
	}

	return delay
}

func (r *Registry) jittered(d time.Duration) time.Duration {
	if r.opts.Jitter <= 0 {
		return d
	}

	factor := 1 + r.opts.Jitter*(2*rand.Float64()-1)

	return time.Duration(float64(d) * factor)
}

func (r *Registry) Get(sourceID string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[sourceID]
	if !ok {
		return Source{}, false
	}

	return *src, true
}

// Snapshot returns a copy of every known source ordered by id, including
// deactivated ones.
func (r *Registry) Snapshot() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		snapshot = append(snapshot, *src)
	}

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].ID < snapshot[j].ID
	})

	return snapshot
}

func sourceRow(src *Source) database.Source {
	return database.Source{
		ID:                  src.ID,
		Name:                src.Name,
		Kind:                string(src.Kind),
		URL:                 src.URL,
		IntervalSeconds:     src.IntervalSeconds,
		Weight:              src.Weight,
		Active:              src.Active,
		LastSuccessAt:       src.LastSuccessAt,
		LastAttemptAt:       src.LastAttemptAt,
		NextAttemptAt:       src.NextAttemptAt,
		ConsecutiveFailures: src.ConsecutiveFailures,
		LastError:           src.LastError,
	}
}
