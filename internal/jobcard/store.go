package jobcard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const (
	// DefaultListLimit is used when ListJobs gets a non-positive limit
	DefaultListLimit = 50
	// MaxListLimit caps a single page
	MaxListLimit = 500
)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var jobColumns = []string{"id", "data", "created_at", "updated_at"}

// Store reads and writes job-card data in one tenant database
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store over a tenant database handle
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SaveSchema creates or replaces the schema of schemaType
func (s *Store) SaveSchema(ctx context.Context, schemaType string, schema json.RawMessage) (*Schema, error) {
	if !validDocument(schema) {
		return nil, ErrInvalidPayload
	}

	now := s.now().UTC()
	query, args, err := psq.Insert("settings").
		Columns("schema_type", "schema", "created_at", "updated_at").
		Values(schemaType, string(schema), now, now).
		Suffix("ON CONFLICT (schema_type) DO UPDATE SET schema = EXCLUDED.schema, updated_at = EXCLUDED.updated_at RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building schema upsert: %w", err)
	}

	out := &Schema{Type: schemaType, Schema: schema}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("saving schema: %w", err)
	}

	return out, nil
}

// GetSchema returns the saved schema of schemaType
func (s *Store) GetSchema(ctx context.Context, schemaType string) (*Schema, error) {
	query, args, err := psq.Select("schema", "created_at", "updated_at").
		From("settings").
		Where(sq.Eq{"schema_type": schemaType}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building schema query: %w", err)
	}

	out := &Schema{Type: schemaType}
	var raw []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSchemaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying schema: %w", err)
	}
	out.Schema = json.RawMessage(raw)

	return out, nil
}

// CreateJob stores a new job record
func (s *Store) CreateJob(ctx context.Context, data json.RawMessage) (*Job, error) {
	if !validDocument(data) {
		return nil, ErrInvalidPayload
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating job id: %w", err)
	}

	now := s.now().UTC()
	query, args, err := psq.Insert("job_cards").
		Columns(jobColumns...).
		Values(id.String(), string(data), now, now).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building job insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}

	return &Job{ID: id.String(), Data: data, CreatedAt: now, UpdatedAt: now}, nil
}

// ListJobs returns a page of jobs, newest first
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query, args, err := psq.Select(jobColumns...).
		From("job_cards").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building job list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading jobs: %w", err)
	}

	return jobs, nil
}

// GetJob returns one job
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}

	query, args, err := psq.Select(jobColumns...).
		From("job_cards").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building job query: %w", err)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// UpdateJob replaces the data of a job
func (s *Store) UpdateJob(ctx context.Context, id string, data json.RawMessage) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	if !validDocument(data) {
		return nil, ErrInvalidPayload
	}

	query, args, err := psq.Update("job_cards").
		Set("data", string(data)).
		Set("updated_at", s.now().UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING id, data, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building job update: %w", err)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// DeleteJob removes a job
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrJobNotFound
	}

	query, args, err := psq.Delete("job_cards").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building job delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job Job
		raw []byte
	)
	if err := row.Scan(&job.ID, &raw, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	job.Data = json.RawMessage(raw)
	return &job, nil
}
