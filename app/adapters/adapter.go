package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storysift/storysift/app/sources"
)

// Fetch failure classes. The scheduler maps them onto scheduling outcomes:
// a policy denial reschedules without penalty, everything else backs off.
var (
	ErrUnreachable  = errors.New("source unreachable")
	ErrTimeout      = errors.New("fetch timed out")
	ErrMalformed    = errors.New("malformed payload")
	ErrPolicyDenied = errors.New("fetch denied by robots policy")
)

// Hint carries metadata an adapter saw on the wire so extraction does not
// have to rediscover it from the payload.
type Hint struct {
	URL         string
	Title       string
	Author      string
	Summary     string
	ImageURL    string
	PublishedAt *time.Time
}

// RawDocument is one fetched item before extraction.
type RawDocument struct {
	SourceID    string
	FetchedAt   time.Time
	ContentType string
	Payload     []byte
	Hint        Hint
}

// Adapter fetches one kind of source. Implementations return one
// RawDocument per item found and classify failures using the sentinel
// errors above. A reachable source with no items is a success with an
// empty slice.
type Adapter interface {
	Kind() sources.Kind
	Fetch(ctx context.Context, source sources.Source) ([]RawDocument, error)
}

// Registry resolves a source kind to its adapter.
type Registry struct {
	adapters map[sources.Kind]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[sources.Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

func (r *Registry) Resolve(kind sources.Kind) (Adapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for kind %q", kind)
	}
	return adapter, nil
}
