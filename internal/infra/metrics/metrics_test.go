package metrics

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/tuneclash/tuneclash/internal/domain/fault"
)

func TestObserveSourceFetch_OutcomeMapping(t *testing.T) {
	read := func(provider, outcome string) float64 {
		return testutil.ToFloat64(sourceFetchTotal.WithLabelValues(provider, outcome))
	}

	before := read("deezer", "ok")
	ObserveSourceFetch("deezer", nil)
	assert.Equal(t, before+1, read("deezer", "ok"))

	before = read("spotify", "rate_limited")
	ObserveSourceFetch("spotify", fault.Retry(fault.CodeSpotifyRateLimited, 2000))
	assert.Equal(t, before+1, read("spotify", "rate_limited"))

	before = read("deezer", "resolving")
	ObserveSourceFetch("deezer", fault.Retry(fault.CodePlaylistTracksResolving, 1500))
	assert.Equal(t, before+1, read("deezer", "resolving"))

	before = read("animethemes", "error")
	ObserveSourceFetch("animethemes", errors.New("boom"))
	assert.Equal(t, before+1, read("animethemes", "error"))

	// Wrapped fault codes keep their classification.
	before = read("spotify", "rate_limited")
	ObserveSourceFetch("spotify", errors.Wrap(fault.Retry(fault.CodeSpotifyRateLimited, 2000), "fetch failed"))
	assert.Equal(t, before+1, read("spotify", "rate_limited"))
}

func TestRoomAndAnswerCounters(t *testing.T) {
	before := testutil.ToFloat64(roomsCreatedTotal.WithLabelValues("public"))
	IncRoomCreated(true)
	assert.Equal(t, before+1, testutil.ToFloat64(roomsCreatedTotal.WithLabelValues("public")))

	before = testutil.ToFloat64(answersSubmittedTotal.WithLabelValues("mcq", "true"))
	IncAnswerSubmitted("mcq", true)
	assert.Equal(t, before+1, testutil.ToFloat64(answersSubmittedTotal.WithLabelValues("mcq", "true")))
}
