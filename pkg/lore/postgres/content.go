package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// UpsertEntity implements [lore.EntityStore]. The entity row and its full
// alias set are replaced in one transaction.
func (s *Store) UpsertEntity(ctx context.Context, e lore.Entity) error {
	if !e.Type.IsEntity() {
		return fmt.Errorf("entity store: upsert %q: invalid type %q", e.ID, e.Type)
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const upsert = `
			INSERT INTO entities (type, id, name, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (type, id) DO UPDATE SET
			    name        = EXCLUDED.name,
			    description = EXCLUDED.description,
			    updated_at  = now()`
		if _, err := tx.Exec(ctx, upsert, string(e.Type), e.ID, e.Name, e.Description); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM entity_aliases WHERE entity_type = $1 AND entity_id = $2`,
			string(e.Type), e.ID,
		); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, a := range e.AllAliases() {
			batch.Queue(
				`INSERT INTO entity_aliases (entity_type, entity_id, name, is_primary) VALUES ($1, $2, $3, $4)`,
				string(e.Type), e.ID, a.Name, a.Primary,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("entity store: upsert %s: %w", e.Ref(), err)
	}
	return nil
}

const selectEntities = `
	SELECT e.type, e.id, e.name, e.description,
	       COALESCE(array_agg(a.name ORDER BY a.id) FILTER (WHERE a.name IS NOT NULL AND NOT a.is_primary), '{}')
	FROM   entities e
	LEFT   JOIN entity_aliases a ON a.entity_type = e.type AND a.entity_id = e.id`

// Entities implements [lore.EntityStore].
func (s *Store) Entities(ctx context.Context, refs []lore.Ref) ([]lore.Entity, error) {
	if len(refs) == 0 {
		return []lore.Entity{}, nil
	}
	types := make([]string, len(refs))
	ids := make([]string, len(refs))
	for i, r := range refs {
		types[i], ids[i] = string(r.Type), r.ID
	}
	q := selectEntities + `
	WHERE  (e.type, e.id) IN (SELECT * FROM unnest($1::text[], $2::text[]))
	GROUP  BY e.type, e.id`

	rows, err := s.pool.Query(ctx, q, types, ids)
	if err != nil {
		return nil, fmt.Errorf("entity store: load entities: %w", err)
	}
	found, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("entity store: scan entities: %w", err)
	}
	byKey := make(map[string]lore.Entity, len(found))
	for _, e := range found {
		byKey[e.Ref().Key()] = e
	}
	out := make([]lore.Entity, 0, len(refs))
	for _, r := range refs {
		if e, ok := byKey[r.Key()]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListEntities implements [lore.EntityStore].
func (s *Store) ListEntities(ctx context.Context, f lore.EntityFilter) ([]lore.Entity, error) {
	var args []any
	where := ""
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = "WHERE e.type = $1"
	}
	q := selectEntities + "\n\t" + where + `
	GROUP  BY e.type, e.id
	ORDER  BY e.type, e.name`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("entity store: list entities: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanEntity)
	if err != nil {
		return nil, fmt.Errorf("entity store: scan entities: %w", err)
	}
	if out == nil {
		out = []lore.Entity{}
	}
	return out, nil
}

func scanEntity(row pgx.CollectableRow) (lore.Entity, error) {
	var (
		e   lore.Entity
		typ string
	)
	if err := row.Scan(&typ, &e.ID, &e.Name, &e.Description, &e.Aliases); err != nil {
		return lore.Entity{}, err
	}
	e.Type = lore.ContentType(typ)
	return e, nil
}

// MatchAliases implements [lore.AliasIndex] using pg_trgm similarity().
func (s *Store) MatchAliases(ctx context.Context, phrase string, q lore.AliasQuery) ([]lore.AliasMatch, error) {
	args := []any{phrase, q.Threshold} // $1 = phrase, $2 = threshold
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := "similarity(name, $1) > $2"
	if q.MinLength > 0 {
		conditions += " AND char_length(name) >= " + next(q.MinLength)
	}
	limitClause := ""
	if q.Limit > 0 {
		limitClause = "LIMIT " + next(q.Limit)
	}

	query := fmt.Sprintf(`
		SELECT name, entity_type, entity_id, similarity(name, $1) AS sim
		FROM   entity_aliases
		WHERE  %s
		ORDER  BY sim DESC, entity_type, entity_id, name
		%s`, conditions, limitClause)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("alias index: match: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lore.AliasMatch, error) {
		var (
			m   lore.AliasMatch
			typ string
			sim float32
		)
		if err := row.Scan(&m.Alias, &typ, &m.Entity.ID, &sim); err != nil {
			return lore.AliasMatch{}, err
		}
		m.Entity.Type = lore.ContentType(typ)
		m.Similarity = float64(sim)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("alias index: scan rows: %w", err)
	}
	if out == nil {
		out = []lore.AliasMatch{}
	}
	return out, nil
}

// UpsertGameLog implements [lore.LogStore].
func (s *Store) UpsertGameLog(ctx context.Context, g lore.GameLog) error {
	const q = `
		INSERT INTO game_logs
		    (id, session_number, title, game_date, summary, full_text, previous_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    session_number = EXCLUDED.session_number,
		    title          = EXCLUDED.title,
		    game_date      = EXCLUDED.game_date,
		    summary        = EXCLUDED.summary,
		    full_text      = EXCLUDED.full_text,
		    previous_id    = EXCLUDED.previous_id`

	_, err := s.pool.Exec(ctx, q, g.ID, g.SessionNumber, g.Title, g.GameDate, g.Summary, g.FullText, g.PreviousID)
	if err != nil {
		return fmt.Errorf("log store: upsert %q: %w", g.ID, err)
	}
	return nil
}

const selectGameLogs = `
	SELECT id, session_number, title, game_date, summary, full_text, previous_id
	FROM   game_logs`

// GameLogs implements [lore.LogStore].
func (s *Store) GameLogs(ctx context.Context, ids []string) ([]lore.GameLog, error) {
	if len(ids) == 0 {
		return []lore.GameLog{}, nil
	}
	rows, err := s.pool.Query(ctx, selectGameLogs+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("log store: load logs: %w", err)
	}
	found, err := pgx.CollectRows(rows, scanGameLog)
	if err != nil {
		return nil, fmt.Errorf("log store: scan logs: %w", err)
	}
	byID := make(map[string]lore.GameLog, len(found))
	for _, g := range found {
		byID[g.ID] = g
	}
	out := make([]lore.GameLog, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// AllGameLogs implements [lore.LogStore].
func (s *Store) AllGameLogs(ctx context.Context) ([]lore.GameLog, error) {
	rows, err := s.pool.Query(ctx, selectGameLogs+` ORDER BY session_number, id`)
	if err != nil {
		return nil, fmt.Errorf("log store: list logs: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanGameLog)
	if err != nil {
		return nil, fmt.Errorf("log store: scan logs: %w", err)
	}
	if out == nil {
		out = []lore.GameLog{}
	}
	return out, nil
}

func scanGameLog(row pgx.CollectableRow) (lore.GameLog, error) {
	var g lore.GameLog
	err := row.Scan(&g.ID, &g.SessionNumber, &g.Title, &g.GameDate, &g.Summary, &g.FullText, &g.PreviousID)
	return g, err
}
