package api

import (
	"github.com/storysift/storysift/app/database"
	"github.com/storysift/storysift/app/sources"
)

// SourceProvider exposes the registry views the API serves.
type SourceProvider interface {
	Snapshot() []sources.Source
	Get(sourceID string) (sources.Source, bool)
}

var _ SourceProvider = (*sources.Registry)(nil)

// Pinger reports database liveness for the health endpoint.
type Pinger interface {
	Ping() error
}

var _ Pinger = (*database.DB)(nil)

type Handler struct {
	sources  SourceProvider
	articles database.ArticleRepository
	db       Pinger
	reload   func() error
}
