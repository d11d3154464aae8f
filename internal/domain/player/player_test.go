package player

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuneclash/tuneclash/internal/domain/track"
)

func TestPlayer_CanContribute(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(p *Player)
		expected bool
	}{
		{
			name:     "anonymous guest never contributes",
			setup:    func(p *Player) { p.UserID = "" },
			expected: false,
		},
		{
			name: "user without opted-in providers",
			setup: func(p *Player) {
				p.Library.LinkedProviders[track.ProviderSpotify] = LinkStatusLinked
			},
			expected: false,
		},
		{
			name: "opted in with live link",
			setup: func(p *Player) {
				p.Library.IncludeInPool[track.ProviderSpotify] = true
				p.Library.LinkedProviders[track.ProviderSpotify] = LinkStatusLinked
			},
			expected: true,
		},
		{
			name: "opted in with expired link but synced tracks",
			setup: func(p *Player) {
				p.Library.IncludeInPool[track.ProviderDeezer] = true
				p.Library.LinkedProviders[track.ProviderDeezer] = LinkStatusExpired
				p.Library.EstimatedTrackCount[track.ProviderDeezer] = 150
			},
			expected: true,
		},
		{
			name: "opted in with expired link and no synced tracks",
			setup: func(p *Player) {
				p.Library.IncludeInPool[track.ProviderDeezer] = true
				p.Library.LinkedProviders[track.ProviderDeezer] = LinkStatusExpired
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("p1", "Alice", "user-1", 1000)
			tt.setup(p)
			assert.Equal(t, tt.expected, p.CanContribute())
		})
	}
}

func TestPlayer_RecordAnswer(t *testing.T) {
	p := New("p1", "Alice", "", 0)

	p.RecordAnswer(1500, 1, 2000, true)
	p.RecordAnswer(2250, 2, 4000, true)
	p.RecordAnswer(0, 0, 0, false)

	assert.Equal(t, 3750, p.Score)
	assert.Equal(t, 0, p.LastRoundScore)
	assert.Equal(t, 0, p.Streak)
	assert.Equal(t, 2, p.MaxStreak)
	assert.Equal(t, 2, p.CorrectAnswers)

	avg, ok := p.AvgCorrectResponseMs()
	assert.True(t, ok)
	assert.InDelta(t, 3000, avg, 0.001)
}

func TestPlayer_AvgCorrectResponseMs_NoCorrectAnswers(t *testing.T) {
	p := New("p1", "Alice", "", 0)
	_, ok := p.AvgCorrectResponseMs()
	assert.False(t, ok)
}

func TestPlayer_ResetForReplay(t *testing.T) {
	p := New("p1", "Alice", "user-1", 1000)
	p.IsReady = true
	p.Score = 4200
	p.Streak = 3
	p.MaxStreak = 3
	p.TotalResponseMs = 9000
	p.CorrectAnswers = 3

	p.Library.IncludeInPool[track.ProviderSpotify] = true
	p.Library.LinkedProviders[track.ProviderSpotify] = LinkStatusLinked
	p.Library.IncludeInPool[track.ProviderDeezer] = true
	p.Library.LinkedProviders[track.ProviderDeezer] = LinkStatusExpired

	p.ResetForReplay()

	assert.False(t, p.IsReady)
	assert.Zero(t, p.Score)
	assert.Zero(t, p.Streak)
	assert.Zero(t, p.MaxStreak)
	assert.Zero(t, p.TotalResponseMs)
	assert.Zero(t, p.CorrectAnswers)

	// Identity and valid links survive; stale opt-ins are dropped.
	assert.Equal(t, "user-1", p.UserID)
	assert.True(t, p.Library.IncludeInPool[track.ProviderSpotify])
	assert.False(t, p.Library.IncludeInPool[track.ProviderDeezer])
	assert.Equal(t, LinkStatusExpired, p.Library.LinkedProviders[track.ProviderDeezer])
}
