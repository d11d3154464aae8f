// Package room implements the blindtest room session engine: room lifecycle,
// the per-round state machine, track pool acquisition, scoring, and the
// snapshot surface that drives realtime clients.
package room

// Phase represents the room lifecycle phase.
type Phase int

const (
	PhaseWaiting     Phase = iota // Lobby, host configures the source
	PhaseCountdown                // Start accepted, first round imminent
	PhasePlaying                  // A round is open for answers
	PhaseReveal                   // Round closed, answer shown
	PhaseLeaderboard              // Standings between rounds
	PhaseResults                  // Final ranking, terminal except replay
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhaseReveal:
		return "reveal"
	case PhaseLeaderboard:
		return "leaderboard"
	case PhaseResults:
		return "results"
	default:
		return "unknown"
	}
}

// Mode is the answering mode of a round.
type Mode int

const (
	ModeMCQ  Mode = iota // Four choices, one correct
	ModeText             // Free text, fuzzy matched
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeMCQ:
		return "mcq"
	case ModeText:
		return "text"
	default:
		return "unknown"
	}
}

// SourceMode selects where the track pool comes from.
type SourceMode int

const (
	SourcePublicPlaylist SourceMode = iota // External playlist or query
	SourcePlayersLiked                     // Union of contributors' libraries
)

// String returns the string representation of the source mode.
func (s SourceMode) String() string {
	switch s {
	case SourcePublicPlaylist:
		return "public_playlist"
	case SourcePlayersLiked:
		return "players_liked"
	default:
		return "unknown"
	}
}

// SourceModeFromString parses a source mode name. ok is false for unknown values.
func SourceModeFromString(s string) (SourceMode, bool) {
	switch s {
	case "public_playlist":
		return SourcePublicPlaylist, true
	case "players_liked":
		return SourcePlayersLiked, true
	default:
		return SourcePublicPlaylist, false
	}
}

// BuildStatus is the state of the players-liked pool build.
type BuildStatus int

const (
	BuildIdle     BuildStatus = iota // No build attempted since last reset
	BuildBuilding                    // A build job is in flight
	BuildReady                       // Merged pool is usable
	BuildFailed                      // Last build failed, see ErrorCode
)

// String returns the string representation of the build status.
func (b BuildStatus) String() string {
	switch b {
	case BuildIdle:
		return "idle"
	case BuildBuilding:
		return "building"
	case BuildReady:
		return "ready"
	case BuildFailed:
		return "failed"
	default:
		return "unknown"
	}
}
