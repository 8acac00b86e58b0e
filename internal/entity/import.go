package entity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// Indexer chunks and embeds content for retrieval.
type Indexer interface {
	IndexEntity(ctx context.Context, e lore.Entity) (int, error)
	IndexGameLog(ctx context.Context, g lore.GameLog) (int, error)
}

// Report summarises an import.
type Report struct {
	Entities int
	Logs     int
	Chunks   int
}

// Importer writes campaigns into the content stores.
type Importer struct {
	entities lore.EntityStore
	logs     lore.LogStore
	indexer  Indexer
}

// NewImporter creates an [Importer]. A nil indexer stores content without
// embedding it.
func NewImporter(entities lore.EntityStore, logs lore.LogStore, indexer Indexer) *Importer {
	return &Importer{entities: entities, logs: logs, indexer: indexer}
}

// Import validates cf and upserts its entities and logs, then indexes each
// record. Logs without an explicit previous link are linked to the log of the
// preceding session number. An error aborts the import; the report counts
// what was written so far.
func (im *Importer) Import(ctx context.Context, cf *CampaignFile) (Report, error) {
	var rep Report
	if err := Validate(cf); err != nil {
		return rep, fmt.Errorf("entity: invalid campaign: %w", err)
	}

	for _, d := range cf.Entities {
		e := d.Entity()
		if err := im.entities.UpsertEntity(ctx, e); err != nil {
			return rep, fmt.Errorf("entity: store %s: %w", e.Ref(), err)
		}
		rep.Entities++
		n, err := im.index(ctx, func(ctx context.Context) (int, error) { return im.indexer.IndexEntity(ctx, e) })
		if err != nil {
			return rep, fmt.Errorf("entity: index %s: %w", e.Ref(), err)
		}
		rep.Chunks += n
	}

	for _, g := range LinkLogs(cf.Logs) {
		if err := im.logs.UpsertGameLog(ctx, g); err != nil {
			return rep, fmt.Errorf("entity: store log %q: %w", g.ID, err)
		}
		rep.Logs++
		n, err := im.index(ctx, func(ctx context.Context) (int, error) { return im.indexer.IndexGameLog(ctx, g) })
		if err != nil {
			return rep, fmt.Errorf("entity: index log %q: %w", g.ID, err)
		}
		rep.Chunks += n
	}

	slog.Info("entity: campaign imported",
		"campaign", cf.Campaign.Name,
		"entities", rep.Entities,
		"logs", rep.Logs,
		"chunks", rep.Chunks,
	)
	return rep, nil
}

func (im *Importer) index(ctx context.Context, fn func(context.Context) (int, error)) (int, error) {
	if im.indexer == nil {
		return 0, nil
	}
	return fn(ctx)
}

// LinkLogs converts defs into game logs ordered by session number, filling
// in missing previous links from that order.
func LinkLogs(defs []LogDef) []lore.GameLog {
	logs := make([]lore.GameLog, len(defs))
	for i, d := range defs {
		logs[i] = d.GameLog()
	}
	slices.SortStableFunc(logs, func(a, b lore.GameLog) int { return a.SessionNumber - b.SessionNumber })
	for i := 1; i < len(logs); i++ {
		if logs[i].PreviousID == "" {
			logs[i].PreviousID = logs[i-1].ID
		}
	}
	return logs
}

// Merge appends the entities and logs of other to cf. Logs without a
// session number are numbered after the highest session already in cf.
func (cf *CampaignFile) Merge(other *CampaignFile) {
	if other == nil {
		return
	}
	if cf.Campaign.Name == "" {
		cf.Campaign = other.Campaign
	}
	cf.Entities = append(cf.Entities, other.Entities...)

	next := 0
	for _, l := range cf.Logs {
		next = max(next, l.SessionNumber)
	}
	for _, l := range other.Logs {
		if l.SessionNumber <= 0 {
			next++
			l.SessionNumber = next
		} else {
			next = max(next, l.SessionNumber)
		}
		if strings.TrimSpace(l.Summary) == "" {
			l.Summary = firstSentence(l.FullText)
		}
		cf.Logs = append(cf.Logs, l)
	}
}

// firstSentence returns the first sentence of text, used as a fallback
// summary for imported notes.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}
