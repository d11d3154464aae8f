package pool

import (
	"context"
	"math/rand"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	// MinSize and MaxSize bound the candidate pool regardless of game length.
	MinSize = 24
	MaxSize = 100

	// maxFetchAttempts caps the grow-and-refetch loop within one build pass.
	maxFetchAttempts = 6
	// extraRetries is the number of additional build passes after the first.
	extraRetries = 3

	defaultFetchTimeout = 15 * time.Second
	defaultRetryDelay   = 900 * time.Millisecond
)

// TargetSize returns the candidate pool size for a game of the given length.
func TargetSize(rounds int) int {
	target := rounds + 3
	if v := rounds * 5; v > target {
		target = v
	}
	if target < MinSize {
		target = MinSize
	}
	if target > MaxSize {
		target = MaxSize
	}
	return target
}

// Result is a built pool split into answer tracks and MCQ distractors.
type Result struct {
	Answers     []track.Track
	Distractors []track.Track
}

// Builder acquires candidate tracks from a Source with retry, timeout and
// dedupe handling. The zero values of the optional fields fall back to the
// production defaults.
type Builder struct {
	Source Source

	// FetchTimeout bounds a single Source.Fetch call.
	FetchTimeout time.Duration
	// RetryDelay spaces the additional build passes.
	RetryDelay time.Duration
	// Shuffle randomises candidate order. Overridable for deterministic tests.
	Shuffle func(n int, swap func(i, j int))
}

// NewBuilder creates a Builder with production defaults.
func NewBuilder(source Source) *Builder {
	return &Builder{Source: source}
}

// Build assembles a pool large enough for the requested number of rounds.
// It retries transient shortfalls, returns rate-limit errors immediately,
// and classifies terminal shortfalls as NO_TRACKS_FOUND unless the upstream
// reported a more specific condition.
func (b *Builder) Build(ctx context.Context, sourceQuery string, rounds int) (*Result, error) {
	target := TargetSize(rounds)

	var lastErr error
	for pass := 0; pass <= extraRetries; pass++ {
		if pass > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				return nil, b.classify(lastErr)
			case <-time.After(b.retryDelay()):
			}
		}

		collected, err := b.collect(ctx, sourceQuery, target)
		if err != nil {
			if fault.Is(err, fault.CodeSpotifyRateLimited) {
				return nil, err
			}
			lastErr = err
			zlog.Warn().Msgf("pool build pass failed: pass=%d query=%s error=%v", pass, sourceQuery, err)
			continue
		}
		if len(collected) >= rounds {
			return b.split(collected, rounds), nil
		}
		lastErr = fault.Newf(fault.CodeNoTracksFound, "collected %d of %d tracks", len(collected), rounds)
		zlog.Debug().Msgf("pool build pass short: pass=%d collected=%d needed=%d", pass, len(collected), rounds)
	}
	return nil, b.classify(lastErr)
}

// classify maps the last build error to the code the start operation
// reports. Resolving and timeout conditions survive as-is; everything else
// collapses to NO_TRACKS_FOUND.
func (b *Builder) classify(lastErr error) error {
	switch {
	case lastErr == nil:
		return fault.New(fault.CodeNoTracksFound)
	case fault.Is(lastErr, fault.CodePlaylistTracksResolving),
		fault.Is(lastErr, fault.CodeTrackPoolLoadTimeout),
		fault.Is(lastErr, fault.CodeNoTracksFound):
		return lastErr
	default:
		return fault.Wrap(fault.CodeNoTracksFound, lastErr)
	}
}

// collect runs one build pass: fetch, filter, dedupe, grow the request size
// geometrically until the target is reached or the source is exhausted.
func (b *Builder) collect(ctx context.Context, sourceQuery string, target int) ([]track.Track, error) {
	var collected []track.Track
	seen := make(map[string]bool, target)

	requestSize := target
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		fetched, err := b.fetchOnce(ctx, sourceQuery, requestSize)
		if err != nil {
			return nil, err
		}

		kept := fetched[:0:0]
		for _, t := range fetched {
			if t.Playable() && !t.Promotional() {
				kept = append(kept, t)
			}
		}
		b.shuffleTracks(kept)

		added := 0
		for _, t := range kept {
			sig := t.Signature()
			if seen[sig] {
				continue
			}
			seen[sig] = true
			collected = append(collected, t)
			added++
			if len(collected) >= target {
				break
			}
		}
		if len(collected) >= target {
			break
		}
		if len(fetched) < requestSize {
			// Source exhausted; asking for more will not help.
			break
		}
		if added == 0 && requestSize >= MaxSize {
			break
		}
		requestSize *= 2
		if requestSize > MaxSize {
			requestSize = MaxSize
		}
	}
	return collected, nil
}

func (b *Builder) fetchOnce(ctx context.Context, sourceQuery string, size int) ([]track.Track, error) {
	ctx, cancel := context.WithTimeout(ctx, b.fetchTimeout())
	defer cancel()

	fetched, err := b.Source.Fetch(ctx, sourceQuery, size)
	if err != nil {
		if ctx.Err() != nil && fault.CodeOf(err) == "" {
			return nil, fault.Wrap(fault.CodeTrackPoolLoadTimeout, err)
		}
		return nil, err
	}
	return fetched, nil
}

// split shuffles once more and cuts the collected set into answers and
// distractors. Callers guarantee len(collected) >= rounds.
func (b *Builder) split(collected []track.Track, rounds int) *Result {
	b.shuffleTracks(collected)
	return &Result{
		Answers:     collected[:rounds],
		Distractors: collected[rounds:],
	}
}

func (b *Builder) shuffleTracks(tracks []track.Track) {
	shuffle := b.Shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

func (b *Builder) fetchTimeout() time.Duration {
	if b.FetchTimeout > 0 {
		return b.FetchTimeout
	}
	return defaultFetchTimeout
}

func (b *Builder) retryDelay() time.Duration {
	if b.RetryDelay > 0 {
		return b.RetryDelay
	}
	return defaultRetryDelay
}
