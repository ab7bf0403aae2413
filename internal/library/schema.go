package library

// schemaStatements creates all library tables. Statements are idempotent so
// Migrate can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS storage_backends (
		name       TEXT PRIMARY KEY,
		config     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS songs (
		id         BIGSERIAL PRIMARY KEY,
		title      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS sources (
		id                   BIGSERIAL PRIMARY KEY,
		path                 TEXT NOT NULL,
		mime_type            TEXT NOT NULL,
		storage_backend_name TEXT NOT NULL REFERENCES storage_backends(name),
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS songs_to_sources (
		song_id   BIGINT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
		source_id BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		PRIMARY KEY (song_id, source_id)
	)`,

	`CREATE TABLE IF NOT EXISTS albums (
		title                 TEXT PRIMARY KEY,
		link                  TEXT,
		cover_image_source_id BIGINT REFERENCES sources(id),
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS artists (
		name            TEXT PRIMARY KEY,
		link            TEXT,
		image_source_id BIGINT REFERENCES sources(id),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS tags (
		name             TEXT PRIMARY KEY,
		background_color TEXT,
		text_color       TEXT,
		border_color     TEXT,
		artist_id        TEXT REFERENCES artists(name),
		album_id         TEXT REFERENCES albums(title),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS songs_to_tags (
		song_id BIGINT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
		tag_id  TEXT NOT NULL REFERENCES tags(name) ON DELETE CASCADE,
		PRIMARY KEY (song_id, tag_id)
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		username    TEXT PRIMARY KEY,
		hashed_pass TEXT NOT NULL,
		admin       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
