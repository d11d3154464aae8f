package room

import (
	"sort"

	"github.com/tuneclash/tuneclash/internal/domain/player"
)

// RankingEntry is one row of the final (or provisional) ranking.
type RankingEntry struct {
	Rank           int     `json:"rank"`
	PlayerID       string  `json:"playerId"`
	DisplayName    string  `json:"displayName"`
	Score          int     `json:"score"`
	LastRoundScore int     `json:"lastRoundScore"`
	Streak         int     `json:"streak"`
	MaxStreak      int     `json:"maxStreak"`
	CorrectAnswers int     `json:"correctAnswers"`
	AvgResponseMs  float64 `json:"avgResponseMs,omitempty"`
}

// Results is the ranking surface, servable both mid-game and once terminal.
type Results struct {
	RoomCode    string         `json:"roomCode"`
	State       string         `json:"state"`
	Final       bool           `json:"final"`
	Round       int            `json:"round"`
	TotalRounds int            `json:"totalRounds"`
	Rankings    []RankingEntry `json:"rankings"`
	ServerNowMs int64          `json:"serverNowMs"`
}

// rankPlayers orders players by score, then max streak, then mean correct
// response time (players without a correct answer rank after those with
// one). Join order breaks remaining ties via the stable sort.
func rankPlayers(players []*player.Player) []RankingEntry {
	ranked := make([]*player.Player, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.MaxStreak != b.MaxStreak {
			return a.MaxStreak > b.MaxStreak
		}
		avgA, okA := a.AvgCorrectResponseMs()
		avgB, okB := b.AvgCorrectResponseMs()
		switch {
		case okA && okB:
			return avgA < avgB
		case okA:
			return true
		default:
			return false
		}
	})

	out := make([]RankingEntry, 0, len(ranked))
	for i, p := range ranked {
		e := RankingEntry{
			Rank:           i + 1,
			PlayerID:       p.ID,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			LastRoundScore: p.LastRoundScore,
			Streak:         p.Streak,
			MaxStreak:      p.MaxStreak,
			CorrectAnswers: p.CorrectAnswers,
		}
		if avg, ok := p.AvgCorrectResponseMs(); ok {
			e.AvgResponseMs = avg
		}
		out = append(out, e)
	}
	return out
}

func (s *session) results(nowMs int64) *Results {
	return &Results{
		RoomCode:    s.code,
		State:       s.phase.String(),
		Final:       s.phase == PhaseResults,
		Round:       s.currentRound,
		TotalRounds: s.totalRounds,
		Rankings:    rankPlayers(s.players),
		ServerNowMs: nowMs,
	}
}
