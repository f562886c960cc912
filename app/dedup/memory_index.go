package dedup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const numStripes = 128

type entryState int

const (
	statePending entryState = iota
	stateCommitted
)

type memEntry struct {
	id        string
	articleID string
	sketch    []uint64
	bands     []uint64
	bucket    int64
	state     entryState
	done      chan struct{} // closed when the entry commits or rolls back
}

// MemoryIndex is the single-process duplicate index. Probe-and-claim runs
// under per-band stripe locks so fingerprints that could collide are
// serialized while unrelated fingerprints proceed in parallel. Entry and
// band maps are guarded separately by mu, which is only ever taken inside
// a stripe section, never the other way around.
var _ Index = (*MemoryIndex)(nil)

type MemoryIndex struct {
	params  Params
	stripes [numStripes]sync.Mutex

	mu      sync.RWMutex
	entries map[string]*memEntry
	byBand  map[uint64]map[string]struct{}
}

func NewMemoryIndex(params Params) *MemoryIndex {
	return &MemoryIndex{
		params:  params,
		entries: make(map[string]*memEntry),
		byBand:  make(map[uint64]map[string]struct{}),
	}
}

// ProbeAndClaim looks for a committed near-duplicate of fp and, failing
// that, claims fp as pending. When the probe finds pending candidates from
// concurrent workers the claim is still taken first, then the candidates
// are awaited: earlier claims always win, so the wait graph follows claim
// order and cannot cycle.
func (idx *MemoryIndex) ProbeAndClaim(ctx context.Context, fp *Fingerprint) (*Outcome, error) {
	stripes := idx.lockStripes(fp.Bands)

	candidates := idx.collectCandidates(fp)

	var bestArticleID string
	var bestSim float64
	var pendings []*memEntry

	for _, cand := range candidates {
		if !idx.params.WithinWindow(fp.Bucket, cand.entry.bucket) {
			continue
		}

		sim := EstimatedJaccard(fp.Sketch, cand.entry.sketch)
		if sim < idx.params.Threshold {
			continue
		}

		if cand.state == stateCommitted {
			if sim > bestSim {
				bestArticleID = cand.articleID
				bestSim = sim
			}
		} else {
			pendings = append(pendings, cand.entry)
		}
	}

	if bestArticleID != "" {
		idx.unlockStripes(stripes)
		return &Outcome{Status: StatusDuplicate, ArticleID: bestArticleID, Similarity: bestSim}, nil
	}

	entry := &memEntry{
		id:     fp.ID,
		sketch: fp.Sketch,
		bands:  fp.Bands,
		bucket: fp.Bucket,
		state:  statePending,
		done:   make(chan struct{}),
	}

	idx.mu.Lock()
	idx.entries[entry.id] = entry
	for _, sig := range fp.Bands {
		ids, ok := idx.byBand[sig]
		if !ok {
			ids = make(map[string]struct{})
			idx.byBand[sig] = ids
		}
		ids[entry.id] = struct{}{}
	}
	idx.mu.Unlock()

	idx.unlockStripes(stripes)

	claim := &memClaim{idx: idx, entry: entry}

	for _, cand := range pendings {
		select {
		case <-cand.done:
		case <-time.After(idx.params.PendingWait):
			// Abandoned claim, likely a crashed or wedged worker.
			continue
		case <-ctx.Done():
			if err := claim.Rollback(context.Background()); err != nil {
				return nil, err
			}
			return nil, ctx.Err()
		}

		idx.mu.RLock()
		state := cand.state
		articleID := cand.articleID
		idx.mu.RUnlock()

		if state != stateCommitted {
			// Rolled back, the content never materialized.
			continue
		}

		if err := claim.Rollback(ctx); err != nil {
			return nil, err
		}

		return &Outcome{
			Status:     StatusDuplicate,
			ArticleID:  articleID,
			Similarity: EstimatedJaccard(fp.Sketch, cand.sketch),
		}, nil
	}

	return &Outcome{Status: StatusNew, Claim: claim}, nil
}

// candidate snapshots the mutable fields of an entry under mu so they can
// be evaluated without holding the lock.
type candidate struct {
	entry     *memEntry
	state     entryState
	articleID string
}

// collectCandidates snapshots every entry sharing a band with fp. Caller
// must hold the stripes covering fp's bands.
func (idx *MemoryIndex) collectCandidates(fp *Fingerprint) []candidate {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	var candidates []candidate

	for _, sig := range fp.Bands {
		for id := range idx.byBand[sig] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			if entry, ok := idx.entries[id]; ok {
				candidates = append(candidates, candidate{
					entry:     entry,
					state:     entry.state,
					articleID: entry.articleID,
				})
			}
		}
	}

	return candidates
}

// Restore loads committed fingerprints into the index, typically from the
// database after a restart.
func (idx *MemoryIndex) Restore(entries []Entry) error {
	closed := make(chan struct{})
	close(closed)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, e := range entries {
		bands := BandSignatures(e.Sketch, idx.params.Bands, idx.params.Rows)
		if bands == nil {
			return fmt.Errorf("fingerprint %s: sketch length %d does not match index parameters", e.ID, len(e.Sketch))
		}

		entry := &memEntry{
			id:        e.ID,
			articleID: e.ArticleID,
			sketch:    e.Sketch,
			bands:     bands,
			bucket:    e.Bucket,
			state:     stateCommitted,
			done:      closed,
		}

		idx.entries[entry.id] = entry
		for _, sig := range bands {
			ids, ok := idx.byBand[sig]
			if !ok {
				ids = make(map[string]struct{})
				idx.byBand[sig] = ids
			}
			ids[entry.id] = struct{}{}
		}
	}

	return nil
}

// Sweep drops committed entries whose bucket ended before the cutoff and
// returns how many were removed. Pending entries are never swept.
func (idx *MemoryIndex) Sweep(ctx context.Context, before time.Time) (int, error) {
	widthSeconds := int64(idx.params.BucketWidth / time.Second)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for id, entry := range idx.entries {
		if entry.state != stateCommitted {
			continue
		}

		bucketEnd := (entry.bucket + 1) * widthSeconds
		if bucketEnd > before.Unix() {
			continue
		}

		delete(idx.entries, id)
		idx.removeBandsLocked(entry)
		removed++
	}

	return removed, nil
}

// Size returns the number of indexed fingerprints, pending included.
func (idx *MemoryIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries)
}

func (idx *MemoryIndex) removeBandsLocked(entry *memEntry) {
	for _, sig := range entry.bands {
		if ids, ok := idx.byBand[sig]; ok {
			delete(ids, entry.id)
			if len(ids) == 0 {
				delete(idx.byBand, sig)
			}
		}
	}
}

// lockStripes locks the distinct stripes covering the given band signatures
// in ascending order so overlapping claims cannot deadlock.
func (idx *MemoryIndex) lockStripes(bands []uint64) []int {
	distinct := make(map[int]struct{}, len(bands))
	for _, sig := range bands {
		distinct[int(sig%numStripes)] = struct{}{}
	}

	stripes := make([]int, 0, len(distinct))
	for s := range distinct {
		stripes = append(stripes, s)
	}
	sort.Ints(stripes)

	for _, s := range stripes {
		idx.stripes[s].Lock()
	}

	return stripes
}

func (idx *MemoryIndex) unlockStripes(stripes []int) {
	for _, s := range stripes {
		idx.stripes[s].Unlock()
	}
}

type memClaim struct {
	idx   *MemoryIndex
	entry *memEntry
}

func (c *memClaim) Commit(ctx context.Context, articleID string) error {
	c.idx.mu.Lock()
	defer c.idx.mu.Unlock()

	if c.entry.state == stateCommitted {
		return nil
	}

	if _, ok := c.idx.entries[c.entry.id]; !ok {
		return fmt.Errorf("claim %s was already withdrawn", c.entry.id)
	}

	c.entry.state = stateCommitted
	c.entry.articleID = articleID
	close(c.entry.done)

	return nil
}

func (c *memClaim) Rollback(ctx context.Context) error {
	stripes := c.idx.lockStripes(c.entry.bands)
	defer c.idx.unlockStripes(stripes)

	c.idx.mu.Lock()
	defer c.idx.mu.Unlock()

	if c.entry.state == stateCommitted {
		return fmt.Errorf("claim %s was already committed", c.entry.id)
	}

	if _, ok := c.idx.entries[c.entry.id]; !ok {
		return nil
	}

	delete(c.idx.entries, c.entry.id)
	c.idx.removeBandsLocked(c.entry)
	close(c.entry.done)

	return nil
}
