package room

import (
	"context"
	"sort"
	"strconv"

	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/domain/answer"
	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

// poolSuggestions lists the unique answer strings of the room's pool,
// sorted, for text-round autocompletion. Every form the matcher accepts is
// offered: the canonical label, the bare title and artist, and any cached
// romaji variant. Answers and distractors are mixed so the list gives
// nothing away.
func (s *session) poolSuggestions() []string {
	var tracks []track.Track
	switch {
	case len(s.trackPool) > 0:
		tracks = append(tracks, s.trackPool...)
		tracks = append(tracks, s.distractorPool...)
	case s.likedPool != nil:
		tracks = append(tracks, s.likedPool.Answers...)
		tracks = append(tracks, s.likedPool.Distractors...)
	}
	if len(tracks) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(tracks)*5)
	out := make([]string, 0, len(tracks)*5)
	add := func(v string) {
		key := answer.Normalize(v)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, v)
	}
	for _, t := range tracks {
		add(t.Label())
		add(t.Title)
		add(t.Artist)
		add(s.deps.romajiCached(t.Title))
		add(s.deps.romajiCached(t.Artist))
	}
	sort.Strings(out)
	if len(out) > s.cfg.SuggestionLimit {
		out = out[:s.cfg.SuggestionLimit]
	}
	return out
}

// RoomAnswerSuggestions returns the autocomplete corpus for a room. Pool
// labels come first; in players-liked mode the persistent library corpus is
// merged in afterwards, fetched without holding the session lock. Duplicate
// labels keep their first spelling.
func (st *Store) RoomAnswerSuggestions(ctx context.Context, code, playerID string) ([]string, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	s.progress(st.nowMs())
	if playerID != "" && s.findPlayer(playerID) == nil {
		s.mu.Unlock()
		return nil, fault.New(fault.CodePlayerNotFound)
	}
	labels := s.poolSuggestions()
	wantBulk := s.sourceMode == SourcePlayersLiked
	seed := s.code + ":" + strconv.FormatInt(s.createdAtMs, 10)
	s.mu.Unlock()

	if !wantBulk || st.deps.Suggestions == nil {
		return labels, nil
	}

	bulk, err := st.deps.Suggestions.BulkSuggestions(ctx, seed, bulkSuggestionRows, bulkSuggestionLimit)
	if err != nil {
		zlog.Warn().Msgf("bulk suggestions unavailable: room=%s error=%v", code, err)
		return labels, nil
	}

	seen := make(map[string]bool, len(labels)+len(bulk))
	out := make([]string, 0, len(labels)+len(bulk))
	add := func(label string) {
		key := answer.Normalize(label)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, label)
	}
	for _, label := range labels {
		add(label)
	}
	for _, label := range bulk {
		if len(out) >= bulkSuggestionLimit {
			break
		}
		add(label)
	}
	return out, nil
}
