// Package fault provides the tagged error codes returned across the game's
// operation boundary.
package fault

import "github.com/cockroachdb/errors"

// Code identifies an operation failure.
type Code string

const (
	// Lookup failures.
	CodeRoomNotFound   Code = "ROOM_NOT_FOUND"
	CodePlayerNotFound Code = "PLAYER_NOT_FOUND"
	CodeTargetNotFound Code = "TARGET_NOT_FOUND"

	// Shape or phase violations.
	CodeRoomNotJoinable Code = "ROOM_NOT_JOINABLE"
	CodeInvalidPayload  Code = "INVALID_PAYLOAD"
	CodeInvalidMode     Code = "INVALID_MODE"
	CodeInvalidProvider Code = "INVALID_PROVIDER"
	CodeInvalidState    Code = "INVALID_STATE"

	// Authorization.
	CodeForbidden Code = "FORBIDDEN"
	CodeHostOnly  Code = "HOST_ONLY"

	// Start preconditions.
	CodeNoPlayers              Code = "NO_PLAYERS"
	CodeSourceNotSet           Code = "SOURCE_NOT_SET"
	CodePlayersLibraryNotReady Code = "PLAYERS_LIBRARY_NOT_READY"

	// Retryable pool acquisition states. These carry a retry hint.
	CodePlayersLibrarySyncing   Code = "PLAYERS_LIBRARY_SYNCING"
	CodePlaylistTracksResolving Code = "PLAYLIST_TRACKS_RESOLVING"
	CodeSpotifyRateLimited      Code = "SPOTIFY_RATE_LIMITED"

	// Final pool acquisition failures.
	CodeNoTracksFound Code = "NO_TRACKS_FOUND"

	// Timer-driven failures.
	CodeTrackPoolLoadTimeout      Code = "TRACK_POOL_LOAD_TIMEOUT"
	CodePlayersLibraryTimeout     Code = "PLAYERS_LIBRARY_TIMEOUT"
	CodePlayersLibrarySyncTimeout Code = "PLAYERS_LIBRARY_SYNC_TIMEOUT"
)

// Retryable reports whether callers should retry the operation after the
// advisory delay carried by the error.
func (c Code) Retryable() bool {
	switch c {
	case CodePlayersLibrarySyncing, CodePlaylistTracksResolving, CodeSpotifyRateLimited:
		return true
	}
	return false
}

// Error is a tagged operation failure. It wraps an optional cause and, for
// retryable codes, an advisory retry delay in milliseconds.
type Error struct {
	Code         Code
	RetryAfterMs int64
	cause        error
}

// New creates a tagged error without a cause.
func New(code Code) error {
	return &Error{Code: code}
}

// Newf creates a tagged error with a formatted cause message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, cause: errors.Newf(format, args...)}
}

// Wrap tags an underlying error with a code. Returns nil when cause is nil.
func Wrap(code Code, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, cause: cause}
}

// Retry creates a retryable tagged error carrying an advisory delay.
func Retry(code Code, retryAfterMs int64) error {
	return &Error{Code: code, RetryAfterMs: retryAfterMs}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.cause.Error()
	}
	return string(e.Code)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the tagged code from an error chain.
// Returns "" when the chain carries no tagged error.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// RetryAfterOf extracts the advisory retry delay from an error chain.
// Returns 0 when no tagged error is present or no delay was set.
func RetryAfterOf(err error) int64 {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.RetryAfterMs
	}
	return 0
}
