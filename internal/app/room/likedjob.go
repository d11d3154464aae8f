package room

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tuneclash/tuneclash/internal/app/pool"
	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/track"
	"github.com/tuneclash/tuneclash/internal/infra/metrics"
)

// contributor is the immutable snapshot of one eligible contributor, taken
// under the session lock when a build is armed.
type contributor struct {
	userID    string
	providers []track.Provider
}

// likedBuild is the outcome a finished job hands back for publishing.
type likedBuild struct {
	res      *pool.Result
	merged   int
	playable int
}

// triggerLikedBuild arms the background players-liked pool build. The caller
// holds s.mu. While a build is in flight only a rebuild flag is set; the
// running job re-arms exactly one follow-up before it finishes.
func (s *session) triggerLikedBuild() {
	if s.deps.Library == nil {
		return
	}
	if s.buildDone != nil {
		s.rebuild = true
		return
	}

	contributors := s.contributorSnapshot()
	if len(contributors) == 0 {
		s.build = buildMeta{}
		return
	}

	done := make(chan struct{})
	s.buildDone = done
	s.rebuild = false
	s.build = buildMeta{status: BuildBuilding, contributorsCount: len(contributors)}

	zlog.Info().Msgf("players-liked build started: room=%s contributors=%d", s.code, len(contributors))
	go s.runLikedBuild(done, s.cfgGen, s.totalRounds, contributors)
}

func (s *session) contributorSnapshot() []contributor {
	var out []contributor
	for _, p := range s.eligibleContributors() {
		out = append(out, contributor{userID: p.UserID, providers: p.ContributingProviders()})
	}
	return out
}

// runLikedBuild fetches and merges contributor libraries without holding the
// session lock, then commits the outcome. The done channel closes only after
// the commit so waiters always observe the published state.
func (s *session) runLikedBuild(done chan struct{}, gen, rounds int, contributors []contributor) {
	defer close(done)

	metrics.IncLikedBuildInflight()
	defer metrics.DecLikedBuildInflight()

	ctx, cancel := context.WithTimeout(s.ctx, likedBuildTimeout)
	defer cancel()

	built, err := s.collectLiked(ctx, rounds, contributors)
	s.commitLikedBuild(done, gen, rounds, built, err)
}

// collectLiked fans the library fetches out over a bounded worker group and
// merges the results into a shuffled answers/distractors split.
func (s *session) collectLiked(ctx context.Context, rounds int, contributors []contributor) (likedBuild, error) {
	size := s.cfg.Liked.MinTotalTracks
	if rounds > size {
		size = rounds
	}
	size += likedFetchBuffer

	var mu sync.Mutex
	var all []track.Track

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(likedFetchWorkers)
	for _, c := range contributors {
		c := c
		g.Go(func() error {
			tracks, err := s.deps.Library.FetchUserLikedTracks(gctx, LikedTracksRequest{
				UserID:               c.userID,
				Providers:            c.providers,
				Size:                 size,
				AllowExternalResolve: true,
			})
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, tracks...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return likedBuild{}, err
	}

	merged := track.Dedupe(all)
	playable := merged[:0:0]
	for _, t := range merged {
		if t.Playable() && !t.Promotional() {
			playable = append(playable, t)
		}
	}
	s.cfg.Shuffle(len(playable), func(i, j int) {
		playable[i], playable[j] = playable[j], playable[i]
	})

	answers := playable
	var distractors []track.Track
	if len(playable) > rounds {
		answers = playable[:rounds]
		distractors = playable[rounds:]
	}
	return likedBuild{
		res:      &pool.Result{Answers: answers, Distractors: distractors},
		merged:   len(merged),
		playable: len(playable),
	}, nil
}

// commitLikedBuild publishes a finished build under the session lock. Builds
// armed against an older source config are discarded, and a rebuild request
// accumulated while running re-arms the job.
func (s *session) commitLikedBuild(done chan struct{}, gen, rounds int, built likedBuild, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	if s.buildDone == done {
		s.buildDone = nil
	}

	switch {
	case gen != s.cfgGen:
		zlog.Debug().Msgf("players-liked build discarded: room=%s reason=stale_config", s.code)
	case err != nil:
		s.build.status = BuildFailed
		s.build.errorCode = likedBuildCode(err)
		s.build.retryAfterMs = fault.RetryAfterOf(err)
		s.build.lastBuiltAtMs = s.cfg.Clock().UnixMilli()
		zlog.Warn().Msgf("players-liked build failed: room=%s code=%s error=%v", s.code, s.build.errorCode, err)
	default:
		s.likedPool = built.res
		s.build.mergedTracksCount = built.merged
		s.build.playableTracksCount = built.playable
		s.build.lastBuiltAtMs = s.cfg.Clock().UnixMilli()
		if len(built.res.Answers) >= rounds {
			s.build.status = BuildReady
			s.build.errorCode = ""
		} else {
			s.build.status = BuildFailed
			s.build.errorCode = fault.CodeNoTracksFound
		}
		zlog.Info().Msgf("players-liked build finished: room=%s status=%s merged=%d playable=%d",
			s.code, s.build.status, built.merged, built.playable)
	}

	if s.rebuild {
		s.rebuild = false
		s.triggerLikedBuild()
	}
}

// likedBuildCode maps a build failure to its reported code. Context expiry
// means the 45s aggregate window lapsed.
func likedBuildCode(err error) fault.Code {
	if code := fault.CodeOf(err); code != "" {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.CodePlayersLibraryTimeout
	}
	return fault.CodeNoTracksFound
}
