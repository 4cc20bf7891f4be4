package activity

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-credentials/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RepositoryConfig wires the Bun-backed activity repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*LogEntry]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Filter narrows a feed query.
type Filter struct {
	UserID uuid.UUID
	Verbs  []string
	Since  *time.Time
	Until  *time.Time
	Cursor *Cursor
	Limit  int
}

// Page is one slice of a feed. NextCursor is nil on the last page.
type Page struct {
	Records    []types.ActivityRecord
	NextCursor *Cursor
}

// Stats aggregates counts grouped by verb.
type Stats struct {
	Total  int
	ByVerb map[string]int
}

// Repository persists activity logs and exposes query helpers.
type Repository struct {
	store repository.Repository[*LogEntry]
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the default activity sink.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("activity: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*LogEntry]{
			NewRecord: func() *LogEntry { return &LogEntry{} },
			GetID: func(entry *LogEntry) uuid.UUID {
				if entry == nil {
					return uuid.Nil
				}
				return entry.ID
			},
			SetID: func(entry *LogEntry, id uuid.UUID) {
				if entry != nil {
					entry.ID = id
				}
			},
		})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}

	return &Repository{
		store: repo,
		db:    cfg.DB,
		clock: clock,
		idGen: idGen,
	}, nil
}

var _ types.ActivitySink = (*Repository)(nil)

// Log persists an activity record into the database.
func (r *Repository) Log(ctx context.Context, record types.ActivityRecord) error {
	entry := toLogEntry(record)
	if entry.ID == uuid.Nil {
		entry.ID = r.idGen.UUID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	_, err := r.store.Create(ctx, entry)
	return err
}

// List returns a feed page, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) (Page, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	rows, _, err := r.store.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return ApplyCursorPagination(applyFilter(q, filter), filter.Cursor, limit+1)
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		page.NextCursor = &Cursor{OccurredAt: last.CreatedAt, ID: last.ID}
	}
	page.Records = make([]types.ActivityRecord, 0, len(rows))
	for _, row := range rows {
		page.Records = append(page.Records, toActivityRecord(row))
	}
	return page, nil
}

// Stats counts entries by verb for the filter's user and time window.
func (r *Repository) Stats(ctx context.Context, filter Filter) (Stats, error) {
	stats := Stats{ByVerb: make(map[string]int)}
	if r.db == nil {
		return stats, errors.New("activity: stats requires bun DB")
	}
	query := r.db.NewSelect().
		Table("auth_activity").
		ColumnExpr("COUNT(*) AS total").
		ColumnExpr("verb").
		Group("verb")
	query = applyFilter(query, filter)

	type row struct {
		Verb  string `bun:"verb"`
		Total int    `bun:"total"`
	}
	var rows []row
	if err := query.Scan(ctx, &rows); err != nil {
		return stats, err
	}
	for _, rec := range rows {
		stats.ByVerb[rec.Verb] = rec.Total
		stats.Total += rec.Total
	}
	return stats, nil
}

func applyFilter(q *bun.SelectQuery, filter Filter) *bun.SelectQuery {
	if filter.UserID != uuid.Nil {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Verbs) > 0 {
		q = q.Where("verb IN (?)", bun.In(filter.Verbs))
	}
	if filter.Since != nil && !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Until != nil && !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	return q
}

func toLogEntry(record types.ActivityRecord) *LogEntry {
	return &LogEntry{
		ID:         record.ID,
		UserID:     record.UserID,
		Verb:       record.Verb,
		ObjectType: record.ObjectType,
		ObjectID:   record.ObjectID,
		Channel:    record.Channel,
		IP:         record.IP,
		Data:       cloneMap(record.Data),
		CreatedAt:  record.OccurredAt,
	}
}

func toActivityRecord(entry *LogEntry) types.ActivityRecord {
	if entry == nil {
		return types.ActivityRecord{}
	}
	return types.ActivityRecord{
		ID:         entry.ID,
		UserID:     entry.UserID,
		Verb:       entry.Verb,
		ObjectType: entry.ObjectType,
		ObjectID:   entry.ObjectID,
		Channel:    entry.Channel,
		IP:         entry.IP,
		Data:       cloneMap(entry.Data),
		OccurredAt: entry.CreatedAt,
	}
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
