// Package postgres provides a PostgreSQL-backed implementation of [lore.Store].
//
// A single [pgxpool.Pool] serves every concern:
//
//   - entities and their aliases, with a pg_trgm GIN index for fuzzy name
//     matching;
//   - game logs, with a generated tsvector column ('simple' configuration) for
//     lexical ranking;
//   - embedded chunks, with a pgvector HNSW cosine index;
//   - chat sessions and messages;
//   - the response cache.
//
// The pgvector and pg_trgm extensions must be available in the target
// database; [Migrate] installs them via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	matches, _ := store.MatchAliases(ctx, "strider", lore.AliasQuery{Threshold: 0.3, Limit: 5})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Content DDL: entities, aliases, game logs.
// ─────────────────────────────────────────────────────────────────────────────

const ddlContent = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS entities (
    type         TEXT         NOT NULL,
    id           TEXT         NOT NULL,
    name         TEXT         NOT NULL,
    description  TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (type, id)
);

CREATE TABLE IF NOT EXISTS entity_aliases (
    id           BIGSERIAL    PRIMARY KEY,
    entity_type  TEXT         NOT NULL,
    entity_id    TEXT         NOT NULL,
    name         TEXT         NOT NULL,
    is_primary   BOOLEAN      NOT NULL DEFAULT false,
    FOREIGN KEY (entity_type, entity_id) REFERENCES entities (type, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_entity_aliases_entity
    ON entity_aliases (entity_type, entity_id);

CREATE INDEX IF NOT EXISTS idx_entity_aliases_name_trgm
    ON entity_aliases USING GIN (name gin_trgm_ops);

CREATE TABLE IF NOT EXISTS game_logs (
    id              TEXT         PRIMARY KEY,
    session_number  INTEGER      NOT NULL,
    title           TEXT         NOT NULL DEFAULT '',
    game_date       TEXT         NOT NULL DEFAULT '',
    summary         TEXT         NOT NULL DEFAULT '',
    full_text       TEXT         NOT NULL DEFAULT '',
    previous_id     TEXT         NOT NULL DEFAULT '',
    search          TSVECTOR     GENERATED ALWAYS AS (
        to_tsvector('simple', title || ' ' || summary || ' ' || full_text)
    ) STORED
);

CREATE INDEX IF NOT EXISTS idx_game_logs_session_number
    ON game_logs (session_number);

CREATE INDEX IF NOT EXISTS idx_game_logs_search
    ON game_logs USING GIN (search);
`

// ─────────────────────────────────────────────────────────────────────────────
// Conversation DDL: chat sessions, messages, response cache.
// ─────────────────────────────────────────────────────────────────────────────

const ddlChat = `
CREATE TABLE IF NOT EXISTS chat_sessions (
    id          TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL DEFAULT '',
    title       TEXT         NOT NULL DEFAULT '',
    summary     TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id                    TEXT              PRIMARY KEY,
    session_id            TEXT              NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
    message               TEXT              NOT NULL,
    response              TEXT              NOT NULL DEFAULT '',
    tokens_used           INTEGER           NOT NULL DEFAULT 0,
    similarity_threshold  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    content_types         TEXT[]            NOT NULL DEFAULT '{}',
    sources               JSONB             NOT NULL DEFAULT '{}',
    included_in_summary   BOOLEAN           NOT NULL DEFAULT false,
    created_at            TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created
    ON chat_messages (session_id, created_at);

CREATE TABLE IF NOT EXISTS query_cache (
    query_hash    TEXT         PRIMARY KEY,
    query_text    TEXT         NOT NULL,
    response      JSONB        NOT NULL,
    tokens_saved  INTEGER      NOT NULL DEFAULT 0,
    hit_count     INTEGER      NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expires_at    TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at
    ON query_cache (expires_at);
`

// ddlChunks returns the chunk DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT         PRIMARY KEY,
    owner_type   TEXT         NOT NULL,
    owner_id     TEXT         NOT NULL,
    chunk_index  INTEGER      NOT NULL DEFAULT 0,
    content      TEXT         NOT NULL,
    embedding    vector(%d)   NOT NULL,
    metadata     JSONB        NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_chunks_owner
    ON chunks (owner_type, owner_id);

CREATE INDEX IF NOT EXISTS idx_chunks_embedding
    ON chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions exist.
// It is idempotent (CREATE … IF NOT EXISTS) and safe to call on every start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlContent,
		ddlChunks(embeddingDimensions),
		ddlChat,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
