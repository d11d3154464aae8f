// Package metrics exposes the game server's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tuneclash/tuneclash/internal/domain/fault"
)

var (
	sourceFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tuneclash_source_fetch_total",
		Help: "Track source fetches by provider adapter and outcome",
	}, []string{"provider", "outcome"}) // outcome=ok|rate_limited|resolving|error

	roomsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tuneclash_rooms_created_total",
		Help: "Rooms created by visibility",
	}, []string{"visibility"}) // visibility=public|private

	answersSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tuneclash_answers_submitted_total",
		Help: "Answer submissions by round mode and acceptance",
	}, []string{"mode", "accepted"})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tuneclash_active_rooms",
		Help: "Rooms currently held in memory (last sweep)",
	})

	likedBuildInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tuneclash_liked_build_inflight",
		Help: "Players-liked pool builds currently running",
	})
)

// ObserveSourceFetch records one source fetch. Retryable upstream states are
// tracked apart from hard failures.
func ObserveSourceFetch(provider string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case fault.Is(err, fault.CodeSpotifyRateLimited):
		outcome = "rate_limited"
	case fault.Is(err, fault.CodePlaylistTracksResolving):
		outcome = "resolving"
	default:
		outcome = "error"
	}
	sourceFetchTotal.WithLabelValues(provider, outcome).Inc()
}

func IncRoomCreated(public bool) {
	visibility := "private"
	if public {
		visibility = "public"
	}
	roomsCreatedTotal.WithLabelValues(visibility).Inc()
}

func IncAnswerSubmitted(mode string, accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	answersSubmittedTotal.WithLabelValues(mode, label).Inc()
}

func RecordActiveRooms(n int) { activeRooms.Set(float64(n)) }
func IncLikedBuildInflight()  { likedBuildInflight.Inc() }
func DecLikedBuildInflight()  { likedBuildInflight.Dec() }
