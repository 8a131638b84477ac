package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ingest"
	"PaperTriage/internal/ports"
)

// PgxIface is the subset of *pgxpool.Pool the repository needs.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists catalog records and harvest checkpoints.
type PostgresRepository struct {
	pool  PgxIface
	close func()
}

var (
	_ ports.RecordStore     = (*PostgresRepository)(nil)
	_ ports.CheckpointStore = (*PostgresRepository)(nil)
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// NewPostgresRepository wraps an existing pool.
func NewPostgresRepository(pool PgxIface) *PostgresRepository {
	return &PostgresRepository{pool: pool, close: func() {}}
}

// OpenPostgres connects a pool to dsn and verifies it answers.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{pool: pool, close: pool.Close}, nil
}

// Close releases the pool when the repository owns it.
func (r *PostgresRepository) Close() {
	r.close()
}

// EnsureSchema creates the tables when they are missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert merges record into the stored row under a row lock. It reports
// whether anything was written.
func (r *PostgresRepository) Upsert(ctx context.Context, record domain.CatalogRecord) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query, args, err := psql.Select(recordColumns...).
		From(papersTable).
		Where(sq.Eq{"catalog_id": record.CatalogID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build lock query: %w", err)
	}

	var existing *domain.CatalogRecord
	stored, err := scanRecord(tx.QueryRow(ctx, query, args...))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("lock %s: %w", record.CatalogID, err)
	default:
		existing = &stored
	}

	merged, applied := ingest.Merge(existing, record)
	if !applied {
		return false, tx.Commit(ctx)
	}

	var write sq.Sqlizer
	if existing == nil {
		write, err = insertRecord(merged)
	} else {
		write = updateContent(merged)
	}
	if err != nil {
		return false, err
	}

	query, args, err = write.ToSql()
	if err != nil {
		return false, fmt.Errorf("build upsert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return false, fmt.Errorf("write %s: %w", record.CatalogID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return true, nil
}

func insertRecord(rec domain.CatalogRecord) (sq.Sqlizer, error) {
	tags, signals, err := encodeAnnotations(rec.Tags, rec.Signals)
	if err != nil {
		return nil, err
	}
	return psql.Insert(papersTable).
		Columns(recordColumns...).
		Values(
			rec.CatalogID, rec.Version, rec.Title, nonNil(rec.Authors), rec.Abstract,
			nonNil(rec.Categories), rec.PrimaryCategory, rec.SubmittedAt, rec.UpdatedAt,
			rec.Links.Abs, rec.Links.PDF, rec.Links.HTML, rec.Links.DOI,
			string(rec.State), tags, signals,
		), nil
}

// updateContent rewrites the versioned fields only; state, tags and signals
// belong to the reader.
func updateContent(rec domain.CatalogRecord) sq.Sqlizer {
	return psql.Update(papersTable).
		SetMap(map[string]any{
			"version":          rec.Version,
			"title":            rec.Title,
			"authors":          nonNil(rec.Authors),
			"abstract":         rec.Abstract,
			"categories":       nonNil(rec.Categories),
			"primary_category": rec.PrimaryCategory,
			"submitted_at":     rec.SubmittedAt,
			"updated_at":       rec.UpdatedAt,
			"abs_url":          rec.Links.Abs,
			"pdf_url":          rec.Links.PDF,
			"html_url":         rec.Links.HTML,
			"doi_url":          rec.Links.DOI,
		}).
		Where(sq.Eq{"catalog_id": rec.CatalogID})
}

// Get loads one record.
func (r *PostgresRepository) Get(ctx context.Context, catalogID string) (domain.CatalogRecord, error) {
	query, args, err := psql.Select(recordColumns...).
		From(papersTable).
		Where(sq.Eq{"catalog_id": catalogID}).
		ToSql()
	if err != nil {
		return domain.CatalogRecord{}, fmt.Errorf("build get: %w", err)
	}

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CatalogRecord{}, notFound(catalogID)
	}
	if err != nil {
		return domain.CatalogRecord{}, fmt.Errorf("get %s: %w", catalogID, err)
	}
	return rec, nil
}

// GetCandidates returns records matching filter, newest first. The query
// filter is a coarse ILIKE prefilter over title and abstract.
func (r *PostgresRepository) GetCandidates(ctx context.Context, filter ports.CandidateFilter) ([]domain.CatalogRecord, error) {
	sel := psql.Select(recordColumns...).From(papersTable)

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		sel = sel.Where(sq.Eq{"state": states})
	}
	if len(filter.Categories) > 0 {
		sel = sel.Where(sq.Expr("categories && ?", filter.Categories))
	}
	if terms := queryTerms(filter.Query); len(terms) > 0 {
		matchAny := sq.Or{}
		for _, term := range terms {
			pattern := "%" + term + "%"
			matchAny = append(matchAny, sq.ILike{"title": pattern}, sq.ILike{"abstract": pattern})
		}
		sel = sel.Where(matchAny)
	}

	query, args, err := sel.OrderBy("updated_at DESC", "catalog_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	records := make([]domain.CatalogRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

// SaveSignals replaces the signals document of one record.
func (r *PostgresRepository) SaveSignals(ctx context.Context, catalogID string, signals domain.Signals) error {
	payload, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	return r.updateOne(ctx, catalogID, "signals", payload)
}

// SetState moves a record to another triage queue.
func (r *PostgresRepository) SetState(ctx context.Context, catalogID string, state domain.TriageState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid state %q", state)
	}
	return r.updateOne(ctx, catalogID, "state", string(state))
}

// SetTags replaces the reader tags of one record.
func (r *PostgresRepository) SetTags(ctx context.Context, catalogID string, tags []string) error {
	payload, err := json.Marshal(nonNil(tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	return r.updateOne(ctx, catalogID, "tags", payload)
}

func (r *PostgresRepository) updateOne(ctx context.Context, catalogID, column string, value any) error {
	query, args, err := psql.Update(papersTable).
		Set(column, value).
		Where(sq.Eq{"catalog_id": catalogID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s update: %w", column, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(catalogID)
	}
	return nil
}

// Checkpoint reads a stored harvest position.
func (r *PostgresRepository) Checkpoint(ctx context.Context, key string) (string, bool, error) {
	query, args, err := psql.Select("value").
		From(checkpointsTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build checkpoint: %w", err)
	}

	var value string
	err = r.pool.QueryRow(ctx, query, args...).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	return value, true, nil
}

// SetCheckpoint stores a harvest position.
func (r *PostgresRepository) SetCheckpoint(ctx context.Context, key, value string) error {
	query, args, err := psql.Insert(checkpointsTable).
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build set checkpoint: %w", err)
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", key, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (domain.CatalogRecord, error) {
	var (
		rec     domain.CatalogRecord
		state   string
		tags    []byte
		signals []byte
	)
	err := row.Scan(
		&rec.CatalogID, &rec.Version, &rec.Title, &rec.Authors, &rec.Abstract,
		&rec.Categories, &rec.PrimaryCategory, &rec.SubmittedAt, &rec.UpdatedAt,
		&rec.Links.Abs, &rec.Links.PDF, &rec.Links.HTML, &rec.Links.DOI,
		&state, &tags, &signals,
	)
	if err != nil {
		return domain.CatalogRecord{}, err
	}

	rec.State = domain.TriageState(state)
	rec.Authors = nonNil(rec.Authors)
	rec.Categories = nonNil(rec.Categories)
	if err := json.Unmarshal(tags, &rec.Tags); err != nil {
		return domain.CatalogRecord{}, fmt.Errorf("decode tags: %w", err)
	}
	rec.Tags = nonNil(rec.Tags)
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &rec.Signals); err != nil {
			return domain.CatalogRecord{}, fmt.Errorf("decode signals: %w", err)
		}
	}
	return rec, nil
}

func encodeAnnotations(tags []string, signals domain.Signals) ([]byte, []byte, error) {
	tagJSON, err := json.Marshal(nonNil(tags))
	if err != nil {
		return nil, nil, fmt.Errorf("encode tags: %w", err)
	}
	signalJSON, err := json.Marshal(signals)
	if err != nil {
		return nil, nil, fmt.Errorf("encode signals: %w", err)
	}
	return tagJSON, signalJSON, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
