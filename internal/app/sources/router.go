// Package sources assembles the track source layer: a prefix router over
// provider adapters, plus a resolving decorator that upgrades catalogue
// tracks to playable media.
package sources

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/app/pool"
	"github.com/tuneclash/tuneclash/internal/domain/track"
	"github.com/tuneclash/tuneclash/internal/infra/metrics"
)

// Router dispatches source queries to provider adapters by query prefix.
// Queries with no matching prefix go to the fallback adapter, which treats
// them as free-text category searches.
type Router struct {
	routes       []route
	fallback     pool.Source
	fallbackName string
}

type route struct {
	name   string
	prefix string
	source pool.Source
}

// NewRouter creates an empty router. Register at least one route or a
// fallback before use.
func NewRouter() *Router {
	return &Router{}
}

// Register adds a prefix route. Longer prefixes win over shorter ones
// regardless of registration order.
func (r *Router) Register(name, prefix string, source pool.Source) {
	r.routes = append(r.routes, route{name: name, prefix: prefix, source: source})
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
}

// SetFallback routes queries that match no registered prefix.
func (r *Router) SetFallback(name string, source pool.Source) {
	r.fallbackName = name
	r.fallback = source
}

// Fetch implements pool.Source.
func (r *Router) Fetch(ctx context.Context, sourceQuery string, size int) ([]track.Track, error) {
	query := strings.TrimSpace(sourceQuery)
	name, source := r.match(query)
	if source == nil {
		return nil, errors.Newf("no source adapter for query: %q", query)
	}

	tracks, err := source.Fetch(ctx, query, size)
	metrics.ObserveSourceFetch(name, err)
	if err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("source query served: adapter=%s tracks=%d", name, len(tracks))
	return tracks, nil
}

func (r *Router) match(query string) (string, pool.Source) {
	for _, rt := range r.routes {
		if strings.HasPrefix(query, rt.prefix) {
			return rt.name, rt.source
		}
	}
	return r.fallbackName, r.fallback
}
