// Package notification posts finished-game results to external webhooks.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/app/room"
)

const defaultSendTimeout = 5 * time.Second

// Config represents webhook notifier configuration.
type Config struct {
	// URLs each receive one POST per finished game.
	URLs []string
	// SendTimeout bounds a single delivery attempt. Zero means 5s.
	SendTimeout time.Duration
}

// Webhook delivers match results to the configured URLs. It implements the
// room store's match recorder contract: deliveries run in parallel, each
// bounded by the send timeout, and failures never reach the caller.
type Webhook struct {
	urls       []string
	timeout    time.Duration
	httpClient *http.Client
}

// matchEvent is the delivery payload. EventID is fresh per finished game so
// receivers can de-duplicate across URLs and retries.
type matchEvent struct {
	EventID      string              `json:"eventId"`
	Type         string              `json:"type"`
	RoomCode     string              `json:"roomCode"`
	FinishedAtMs int64               `json:"finishedAtMs"`
	Rounds       int                 `json:"rounds"`
	Rankings     []room.RankingEntry `json:"rankings"`
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg Config) *Webhook {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Webhook{
		urls:       append([]string(nil), cfg.URLs...),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RecordMatch implements room.MatchRecorder. Per-URL failures are logged
// and dropped.
func (w *Webhook) RecordMatch(ctx context.Context, rec room.MatchRecord) error {
	if len(w.urls) == 0 {
		return nil
	}

	body, err := json.Marshal(matchEvent{
		EventID:      uuid.NewString(),
		Type:         "match.finished",
		RoomCode:     rec.RoomCode,
		FinishedAtMs: rec.FinishedAtMs,
		Rounds:       rec.Rounds,
		Rankings:     rec.Rankings,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode match event")
	}

	var wg sync.WaitGroup
	for _, url := range w.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if err := w.post(ctx, url, body); err != nil {
				zlog.Warn().Msgf("match webhook delivery failed: url=%s room=%s error=%v", url, rec.RoomCode, err)
			}
		}(url)
	}
	wg.Wait()
	return nil
}

func (w *Webhook) post(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("webhook status %d", resp.StatusCode)
	}
	return nil
}
