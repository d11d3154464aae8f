// Package player provides the Player domain entity.
package player

import "github.com/tuneclash/tuneclash/internal/domain/track"

// LinkStatus represents the state of a provider account link.
type LinkStatus string

const (
	LinkStatusLinked    LinkStatus = "linked"
	LinkStatusNotLinked LinkStatus = "not_linked"
	LinkStatusExpired   LinkStatus = "expired"
)

// SyncStatus represents the state of a player's library import.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Library holds a player's per-provider contribution flags and link state.
type Library struct {
	IncludeInPool       map[track.Provider]bool       // Providers the player opted into the shared pool
	LinkedProviders     map[track.Provider]LinkStatus // Account link status per provider
	EstimatedTrackCount map[track.Provider]int        // Synced track counts per provider
	SyncStatus          SyncStatus
	LastError           string
}

// NewLibrary creates an empty library state.
func NewLibrary() Library {
	return Library{
		IncludeInPool:       make(map[track.Provider]bool),
		LinkedProviders:     make(map[track.Provider]LinkStatus),
		EstimatedTrackCount: make(map[track.Provider]int),
		SyncStatus:          SyncStatusIdle,
	}
}

// LinkState aggregates the link information applied for one provider.
type LinkState struct {
	Status          LinkStatus
	EstimatedTracks int
}

// Player represents a participant in a room.
type Player struct {
	ID          string // Room-scoped opaque ID ("p1", "p2", ...)
	UserID      string // Account ID, empty for anonymous guests
	DisplayName string
	JoinedAtMs  int64

	IsReady bool

	// Scoring state, reset on replay.
	Score           int
	LastRoundScore  int
	Streak          int
	MaxStreak       int
	TotalResponseMs int64 // Sum of response times over correct answers
	CorrectAnswers  int

	Library Library
}

// New creates a new player.
func New(id, displayName, userID string, joinedAtMs int64) *Player {
	return &Player{
		ID:          id,
		UserID:      userID,
		DisplayName: displayName,
		JoinedAtMs:  joinedAtMs,
		Library:     NewLibrary(),
	}
}

// ContributingProviders returns the providers whose tracks this player can
// feed into a players-liked pool: opted in, and either currently linked or
// already holding a synced library.
func (p *Player) ContributingProviders() []track.Provider {
	var out []track.Provider
	for provider, include := range p.Library.IncludeInPool {
		if !include {
			continue
		}
		if p.Library.LinkedProviders[provider] == LinkStatusLinked || p.Library.EstimatedTrackCount[provider] > 0 {
			out = append(out, provider)
		}
	}
	return out
}

// CanContribute reports whether the player counts as an eligible contributor.
// Anonymous guests never contribute.
func (p *Player) CanContribute() bool {
	return p.UserID != "" && len(p.ContributingProviders()) > 0
}

// ApplyLink updates one provider's link state.
func (p *Player) ApplyLink(provider track.Provider, state LinkState) {
	p.Library.LinkedProviders[provider] = state.Status
	if state.EstimatedTracks > 0 {
		p.Library.EstimatedTrackCount[provider] = state.EstimatedTracks
	}
}

// RecordAnswer folds one closed round into the player's totals.
func (p *Player) RecordAnswer(earned, nextStreak int, responseMs int64, correct bool) {
	p.Score += earned
	p.LastRoundScore = earned
	p.Streak = nextStreak
	if p.Streak > p.MaxStreak {
		p.MaxStreak = p.Streak
	}
	if correct {
		p.TotalResponseMs += responseMs
		p.CorrectAnswers++
	}
}

// AvgCorrectResponseMs returns the mean response time over correct answers.
// ok is false when the player has no correct answers yet.
func (p *Player) AvgCorrectResponseMs() (float64, bool) {
	if p.CorrectAnswers == 0 {
		return 0, false
	}
	return float64(p.TotalResponseMs) / float64(p.CorrectAnswers), true
}

// ResetForReplay zeroes the scoring state while keeping identity and library
// links. Contribution flags survive only for providers whose link is still
// valid or which already hold synced tracks.
func (p *Player) ResetForReplay() {
	p.IsReady = false
	p.Score = 0
	p.LastRoundScore = 0
	p.Streak = 0
	p.MaxStreak = 0
	p.TotalResponseMs = 0
	p.CorrectAnswers = 0

	for provider, include := range p.Library.IncludeInPool {
		if !include {
			continue
		}
		if p.Library.LinkedProviders[provider] != LinkStatusLinked && p.Library.EstimatedTrackCount[provider] == 0 {
			delete(p.Library.IncludeInPool, provider)
		}
	}
}
