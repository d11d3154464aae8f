package sources

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tuneclash/tuneclash/internal/app/pool"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const defaultResolveWorkers = 4

// Resolver locates a playable video for a catalogue track.
type Resolver interface {
	ResolveTrack(ctx context.Context, title, artist string) (track.Track, bool, error)
}

// ResolvingSource decorates a source so that tracks without playable media
// get a second chance: each one is looked up by title and artist against a
// video index, keeping its original metadata and preview. Tracks that still
// resolve to nothing pass through unchanged and are filtered downstream.
type ResolvingSource struct {
	inner    pool.Source
	resolver Resolver
	workers  int
}

// NewResolvingSource creates the decorator. workers bounds concurrent
// resolver calls per fetch; values below 1 select the default.
func NewResolvingSource(inner pool.Source, resolver Resolver, workers int) *ResolvingSource {
	if workers < 1 {
		workers = defaultResolveWorkers
	}
	return &ResolvingSource{inner: inner, resolver: resolver, workers: workers}
}

// Fetch implements pool.Source.
func (s *ResolvingSource) Fetch(ctx context.Context, sourceQuery string, size int) ([]track.Track, error) {
	tracks, err := s.inner.Fetch(ctx, sourceQuery, size)
	if err != nil {
		return nil, err
	}

	var pending []int
	for i := range tracks {
		if !tracks[i].Playable() && tracks[i].Title != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return tracks, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, i := range pending {
		i := i
		g.Go(func() error {
			hit, ok, err := s.resolver.ResolveTrack(gctx, tracks[i].Title, tracks[i].Artist)
			if err != nil {
				// Resolution failures are per-track: the pool builder drops
				// whatever stays unplayable.
				zlog.Debug().Err(err).Msgf("track resolution failed: title=%s artist=%s",
					tracks[i].Title, tracks[i].Artist)
				return nil
			}
			if !ok {
				return nil
			}
			tracks[i].SourceURL = hit.SourceURL
			if hit.DurationSec > 0 {
				tracks[i].DurationSec = hit.DurationSec
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "track resolution interrupted")
	}

	resolved := 0
	for _, i := range pending {
		if tracks[i].Playable() {
			resolved++
		}
	}
	zlog.Debug().Msgf("track resolution pass done: pending=%d resolved=%d", len(pending), resolved)
	return tracks, nil
}
