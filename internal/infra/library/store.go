// Package library persists users' liked tracks and finished matches in
// SQLite. It backs the room engine's library, suggestion and match-recording
// contracts.
package library

import (
	"context"
	"database/sql"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tuneclash/tuneclash/internal/app/room"
	"github.com/tuneclash/tuneclash/internal/domain/answer"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	defaultFetchSize       = 200
	defaultBulkRows        = 16000
	defaultBulkSuggestions = 24000
	defaultResolveWorkers  = 4
)

// Resolver locates playable media for stored tracks that have none.
type Resolver interface {
	ResolveTrack(ctx context.Context, title, artist string) (track.Track, bool, error)
}

// Store is the SQLite-backed library store.
type Store struct {
	db             *sql.DB
	resolver       Resolver
	resolveWorkers int
}

// Config represents library store configuration.
type Config struct {
	// Path is the database file path, or ":memory:" for tests.
	Path string
	// Resolver, when set, upgrades stored tracks without playable media
	// during fetches that allow external resolution.
	Resolver Resolver
	// ResolveWorkers bounds concurrent resolver calls per fetch.
	ResolveWorkers int
}

// Open opens (and if needed creates) the library database.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// One connection keeps :memory: databases coherent and serialises
	// writers; the driver is in-process so there is no pool to win from.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to init schema")
	}

	workers := cfg.ResolveWorkers
	if workers <= 0 {
		workers = defaultResolveWorkers
	}

	zlog.Info().Msgf("library database opened: path=%s resolver=%t", cfg.Path, cfg.Resolver != nil)
	return &Store{db: db, resolver: cfg.Resolver, resolveWorkers: workers}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertLikedTracks stores a user's liked tracks. Rows already present are
// refreshed, but resolved media is never downgraded: an incoming row without
// a source URL keeps the stored one. Returns the number of rows stored.
func (s *Store) UpsertLikedTracks(ctx context.Context, userID string, nowMs int64, tracks []track.Track) (int, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stored := 0
	skipped := 0
	for _, t := range tracks {
		if !t.Provider.Known() || t.ID == "" || t.Title == "" {
			skipped++
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO library_tracks (user_id, provider, track_id, title, artist, preview_url, source_url, duration_sec, added_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, provider, track_id) DO UPDATE SET
				title = excluded.title,
				artist = excluded.artist,
				preview_url = CASE WHEN excluded.preview_url != '' THEN excluded.preview_url ELSE library_tracks.preview_url END,
				source_url = CASE WHEN excluded.source_url != '' THEN excluded.source_url ELSE library_tracks.source_url END,
				duration_sec = CASE WHEN excluded.duration_sec > 0 THEN excluded.duration_sec ELSE library_tracks.duration_sec END
		`, userID, string(t.Provider), t.ID, t.Title, t.Artist, t.PreviewURL, t.SourceURL, t.DurationSec, nowMs)
		if err != nil {
			return 0, errors.Wrap(err, "failed to upsert track")
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit")
	}

	zlog.Debug().Msgf("liked tracks upserted: user=%s stored=%d skipped=%d", userID, stored, skipped)
	return stored, nil
}

// CountUserTracks returns the user's stored track count per provider.
func (s *Store) CountUserTracks(ctx context.Context, userID string) (map[track.Provider]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, COUNT(*) FROM library_tracks WHERE user_id = ? GROUP BY provider
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count tracks")
	}
	defer rows.Close()

	out := make(map[track.Provider]int)
	for rows.Next() {
		var provider string
		var count int
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan count row")
		}
		out[track.Provider(provider)] = count
	}
	return out, rows.Err()
}

// FetchUserLikedTracks implements the room engine's library source. Rows come
// back in random order so repeated games draw different openers. When the
// request allows it, tracks without playable media are resolved and the
// upgrade is written back for future fetches.
func (s *Store) FetchUserLikedTracks(ctx context.Context, req room.LikedTracksRequest) ([]track.Track, error) {
	if req.UserID == "" {
		return nil, errors.New("user id is required")
	}
	size := req.Size
	if size <= 0 {
		size = defaultFetchSize
	}

	query := `
		SELECT provider, track_id, title, artist, preview_url, source_url, duration_sec
		FROM library_tracks
		WHERE user_id = ?`
	args := []any{req.UserID}
	if len(req.Providers) > 0 {
		query += ` AND provider IN (` + placeholders(len(req.Providers)) + `)`
		for _, p := range req.Providers {
			args = append(args, string(p))
		}
	}
	query += ` ORDER BY RANDOM() LIMIT ?`
	args = append(args, size)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query liked tracks")
	}
	defer rows.Close()

	var out []track.Track
	for rows.Next() {
		var t track.Track
		var provider string
		if err := rows.Scan(&provider, &t.ID, &t.Title, &t.Artist, &t.PreviewURL, &t.SourceURL, &t.DurationSec); err != nil {
			return nil, errors.Wrap(err, "failed to scan track row")
		}
		t.Provider = track.Provider(provider)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read track rows")
	}

	if req.AllowExternalResolve && s.resolver != nil {
		s.resolvePending(ctx, req.UserID, out)
	}
	return out, nil
}

// resolvePending upgrades unplayable tracks in place and persists successful
// resolutions. Failures leave the track as stored.
func (s *Store) resolvePending(ctx context.Context, userID string, tracks []track.Track) {
	var pending []int
	for i := range tracks {
		if !tracks[i].Playable() && tracks[i].Title != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return
	}

	var resolved []int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.resolveWorkers)
	for _, i := range pending {
		i := i
		g.Go(func() error {
			hit, ok, err := s.resolver.ResolveTrack(gctx, tracks[i].Title, tracks[i].Artist)
			if err != nil {
				zlog.Debug().Err(err).Msgf("library track resolution failed: title=%s", tracks[i].Title)
				return nil
			}
			if !ok {
				return nil
			}
			tracks[i].SourceURL = hit.SourceURL
			if hit.DurationSec > 0 {
				tracks[i].DurationSec = hit.DurationSec
			}
			mu.Lock()
			resolved = append(resolved, i)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, i := range resolved {
		t := tracks[i]
		_, err := s.db.ExecContext(ctx, `
			UPDATE library_tracks SET source_url = ?, duration_sec = ?
			WHERE user_id = ? AND provider = ? AND track_id = ?
		`, t.SourceURL, t.DurationSec, userID, string(t.Provider), t.ID)
		if err != nil {
			zlog.Warn().Err(err).Msgf("failed to persist resolved media: user=%s track=%s", userID, t.ID)
		}
	}
	zlog.Debug().Msgf("library tracks resolved: user=%s pending=%d resolved=%d", userID, len(pending), len(resolved))
}

// BulkSuggestions implements the room engine's suggestion source. The seed
// drives both which rows are sampled when the corpus exceeds maxRows and
// their ordering, so one room always sees the same corpus. Each sampled row
// contributes every string the matcher accepts: the combined label, the bare
// title and the bare artist.
func (s *Store) BulkSuggestions(ctx context.Context, seed string, maxRows, maxSuggestions int) ([]string, error) {
	if maxRows <= 0 {
		maxRows = defaultBulkRows
	}
	if maxSuggestions <= 0 {
		maxSuggestions = defaultBulkSuggestions
	}

	// The affine map over a prime modulus is a seed-keyed permutation of
	// rowid residues, so LIMIT takes a seed-dependent sample instead of the
	// oldest inserts.
	a, b := seedAffine(seed)
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, artist FROM library_tracks
		ORDER BY ((rowid % 999983) * ? + ?) % 999983, rowid
		LIMIT ?
	`, a, b, maxRows)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query suggestions")
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var title, artist string
		if err := rows.Scan(&title, &artist); err != nil {
			return nil, errors.Wrap(err, "failed to scan suggestion row")
		}
		if title == "" {
			continue
		}
		labels = append(labels, title)
		if artist != "" {
			labels = append(labels, title+" - "+artist, artist)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read suggestion rows")
	}

	rnd := rand.New(rand.NewSource(seedToInt64(seed)))
	rnd.Shuffle(len(labels), func(i, j int) {
		labels[i], labels[j] = labels[j], labels[i]
	})

	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		key := answer.Normalize(label)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, label)
		if len(out) >= maxSuggestions {
			break
		}
	}
	return out, nil
}

// RecordMatch implements the room engine's match recorder: one row per
// ranked player, grouped by a shared match id.
func (s *Store) RecordMatch(ctx context.Context, rec room.MatchRecord) error {
	if rec.RoomCode == "" {
		return errors.New("room code is required")
	}
	if len(rec.Rankings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	matchID := uuid.NewString()
	for _, e := range rec.Rankings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_history (id, match_id, room_code, finished_at_ms, rounds, rank, player_id, display_name, score, max_streak, correct_answers)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), matchID, rec.RoomCode, rec.FinishedAtMs, rec.Rounds,
			e.Rank, e.PlayerID, e.DisplayName, e.Score, e.MaxStreak, e.CorrectAnswers)
		if err != nil {
			return errors.Wrap(err, "failed to insert ranking row")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit")
	}

	zlog.Debug().Msgf("match recorded: room=%s match=%s players=%d", rec.RoomCode, matchID, len(rec.Rankings))
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func seedToInt64(seed string) int64 {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int64(h.Sum64())
}

// seedAffine derives the multiplier and offset of the row-sampling
// permutation. 999983 is prime, so any multiplier in [1, 999982] is
// invertible and the map visits every residue.
func seedAffine(seed string) (int64, int64) {
	const p = int64(999983)
	h := seedToInt64(seed)
	a := (h%(p-1)+(p-1))%(p-1) + 1
	b := ((h>>16)%p + p) % p
	return a, b
}
