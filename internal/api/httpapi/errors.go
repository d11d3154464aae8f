package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/domain/fault"
)

// errorBody is the JSON envelope for every non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code         string `json:"code"`
	Message      string `json:"message,omitempty"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFault translates a tagged operation error into an HTTP response.
// Untagged errors are logged and masked as a plain 500.
func writeFault(w http.ResponseWriter, err error) {
	code := fault.CodeOf(err)
	if code == "" {
		zlog.Error().Err(err).Msgf("request failed without fault code")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code:    "INTERNAL",
			Message: "internal server error",
		}})
		return
	}

	detail := errorDetail{Code: string(code), Message: err.Error()}
	if ra := fault.RetryAfterOf(err); ra > 0 {
		detail.RetryAfterMs = ra
		// Advisory header in whole seconds, rounded up.
		w.Header().Set("Retry-After", strconv.FormatInt((ra+999)/1000, 10))
	}
	writeJSON(w, statusForCode(code), errorBody{Error: detail})
}

// writeInvalidPayload reports a malformed or failing-validation request body.
func writeInvalidPayload(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Code:    string(fault.CodeInvalidPayload),
		Message: err.Error(),
	}})
}

func statusForCode(code fault.Code) int {
	switch code {
	case fault.CodeRoomNotFound, fault.CodePlayerNotFound, fault.CodeTargetNotFound:
		return http.StatusNotFound
	case fault.CodeInvalidPayload, fault.CodeInvalidMode, fault.CodeInvalidProvider:
		return http.StatusBadRequest
	case fault.CodeForbidden, fault.CodeHostOnly:
		return http.StatusForbidden
	case fault.CodeRoomNotJoinable, fault.CodeInvalidState, fault.CodeNoPlayers,
		fault.CodeSourceNotSet, fault.CodePlayersLibraryNotReady,
		fault.CodePlayersLibrarySyncing, fault.CodePlaylistTracksResolving:
		return http.StatusConflict
	case fault.CodeSpotifyRateLimited:
		return http.StatusServiceUnavailable
	case fault.CodeNoTracksFound:
		return http.StatusUnprocessableEntity
	case fault.CodeTrackPoolLoadTimeout, fault.CodePlayersLibraryTimeout,
		fault.CodePlayersLibrarySyncTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
