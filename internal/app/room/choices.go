package room

import (
	"sort"

	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/domain/answer"
	"github.com/tuneclash/tuneclash/internal/domain/profile"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const choiceCount = 4

// buildRoundPlan derives the per-round answer mode for the committed pool.
// Rounds alternate mcq/text starting with mcq; an mcq round that cannot
// assemble four unique coherent choices is downgraded to text before the
// countdown starts.
func (s *session) buildRoundPlan() {
	s.roundModes = make([]Mode, s.totalRounds)
	s.roundChoices = make(map[int][]string, (s.totalRounds+1)/2)
	for i := range s.roundModes {
		round := i + 1
		if i%2 != 0 {
			s.roundModes[i] = ModeText
			continue
		}
		choices := s.buildChoices(round)
		if choices == nil {
			s.roundModes[i] = ModeText
			zlog.Debug().Msgf("mcq round downgraded to text: room=%s round=%d", s.code, round)
			continue
		}
		s.roundModes[i] = ModeMCQ
		s.roundChoices[round] = choices
	}
}

// buildChoices assembles the four options for an mcq round, or nil when the
// candidate pool cannot supply three coherent distractors. Candidates are
// the later answer tracks plus the distractor pool, ranked by profile
// coherence against the answer track.
func (s *session) buildChoices(round int) []string {
	correct := s.trackPool[round-1]
	correctLabel := correct.Label()
	correctKey := answer.Normalize(correctLabel)

	src := profile.Of(correct.Title, correct.Artist)
	minScore := profile.MinScore(src)

	type candidate struct {
		label string
		score int
	}
	var candidates []candidate
	consider := func(t track.Track) {
		label := t.Label()
		if answer.Normalize(label) == correctKey {
			return
		}
		candidates = append(candidates, candidate{
			label: label,
			score: profile.Coherence(src, profile.Of(t.Title, t.Artist), correct.Artist, t.Artist),
		})
	}
	for _, t := range s.trackPool[round:] {
		consider(t)
	}
	for _, t := range s.distractorPool {
		consider(t)
	}

	// Shuffle before the stable sort so equal scores tie-break randomly.
	s.cfg.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	choices := []string{correctLabel}
	seen := map[string]bool{correctKey: true}
	for _, c := range candidates {
		if c.score < minScore {
			// Sorted descending, so the rest are below threshold too.
			break
		}
		key := answer.Normalize(c.label)
		if seen[key] {
			continue
		}
		seen[key] = true
		choices = append(choices, c.label)
		if len(choices) == choiceCount {
			break
		}
	}
	if len(choices) < choiceCount {
		return nil
	}

	s.cfg.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}
