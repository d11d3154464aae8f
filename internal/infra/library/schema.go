package library

import "database/sql"

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS library_tracks (
			user_id      TEXT NOT NULL,
			provider     TEXT NOT NULL,
			track_id     TEXT NOT NULL,
			title        TEXT NOT NULL,
			artist       TEXT NOT NULL DEFAULT '',
			preview_url  TEXT NOT NULL DEFAULT '',
			source_url   TEXT NOT NULL DEFAULT '',
			duration_sec INTEGER NOT NULL DEFAULT 0,
			added_at_ms  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, provider, track_id)
		);

		CREATE INDEX IF NOT EXISTS idx_library_tracks_user ON library_tracks(user_id);

		CREATE TABLE IF NOT EXISTS match_history (
			id              TEXT PRIMARY KEY,
			match_id        TEXT NOT NULL,
			room_code       TEXT NOT NULL,
			finished_at_ms  INTEGER NOT NULL,
			rounds          INTEGER NOT NULL,
			rank            INTEGER NOT NULL,
			player_id       TEXT NOT NULL,
			display_name    TEXT NOT NULL,
			score           INTEGER NOT NULL,
			max_streak      INTEGER NOT NULL,
			correct_answers INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_match_history_room ON match_history(room_code);
		CREATE INDEX IF NOT EXISTS idx_match_history_match ON match_history(match_id);
	`)
	return err
}
