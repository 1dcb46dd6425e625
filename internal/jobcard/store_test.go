package jobcard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const jobID = "01956a3c-7b2e-7c1a-9f00-3d2b1c0a9e11"

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestSaveSchema(t *testing.T) {
	s, mock := newMockStore(t)
	schema := json.RawMessage(`{"fields":[{"name":"customer","type":"text"}]}`)

	mock.ExpectQuery(`INSERT INTO settings .* ON CONFLICT \(schema_type\) DO UPDATE`).
		WithArgs(SchemaTypeJobCard, string(schema), fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(fixedNow.Add(-time.Hour), fixedNow))

	got, err := s.SaveSchema(context.Background(), SchemaTypeJobCard, schema)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-time.Hour), got.CreatedAt)
	assert.Equal(t, fixedNow, got.UpdatedAt)
	assert.JSONEq(t, string(schema), string(got.Schema))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSchemaRejectsInvalidJSON(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.SaveSchema(context.Background(), SchemaTypeJobCard, json.RawMessage(`{"fields":`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = s.SaveSchema(context.Background(), SchemaTypeJobCard, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT schema, created_at, updated_at FROM settings WHERE schema_type = \$1`).
		WithArgs(SchemaTypeJobCard).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "created_at", "updated_at"}).
			AddRow([]byte(`{"fields":[]}`), fixedNow, fixedNow))

	got, err := s.GetSchema(context.Background(), SchemaTypeJobCard)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":[]}`, string(got.Schema))
	assert.Equal(t, SchemaTypeJobCard, got.Type)
}

func TestGetSchemaNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT schema, created_at, updated_at FROM settings`).
		WillReturnRows(sqlmock.NewRows([]string{"schema", "created_at", "updated_at"}))

	_, err := s.GetSchema(context.Background(), SchemaTypeJobCard)
	assert.ErrorIs(t, err, ErrSchemaNotFound)
}

func TestCreateJob(t *testing.T) {
	s, mock := newMockStore(t)
	data := json.RawMessage(`{"customer":"Acme","device":"pump"}`)

	mock.ExpectExec(`INSERT INTO job_cards \(id,data,created_at,updated_at\) VALUES \(\$1,\$2,\$3,\$4\)`).
		WithArgs(sqlmock.AnyArg(), string(data), fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job, err := s.CreateJob(context.Background(), data)
	require.NoError(t, err)

	id, err := uuid.Parse(job.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, fixedNow, job.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobInsertError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New(`relation "job_cards" does not exist`)

	mock.ExpectExec(`INSERT INTO job_cards`).WillReturnError(boom)

	_, err := s.CreateJob(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, boom)
}

func TestListJobs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, data, created_at, updated_at FROM job_cards ORDER BY created_at DESC, id DESC LIMIT 2 OFFSET 4`).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow(jobID, []byte(`{"n":2}`), fixedNow, fixedNow).
			AddRow("01956a3c-7b2e-7c1a-9f00-3d2b1c0a9e10", []byte(`{"n":1}`), fixedNow.Add(-time.Minute), fixedNow))

	jobs, err := s.ListJobs(context.Background(), 2, 4)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, jobID, jobs[0].ID)
	assert.JSONEq(t, `{"n":1}`, string(jobs[1].Data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsClampsLimit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM job_cards ORDER BY created_at DESC, id DESC LIMIT 50 OFFSET 0`).
		WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectQuery(`FROM job_cards ORDER BY created_at DESC, id DESC LIMIT 500 OFFSET 0`).
		WillReturnRows(sqlmock.NewRows(jobColumns))

	jobs, err := s.ListJobs(context.Background(), 0, -3)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NotNil(t, jobs)

	_, err = s.ListJobs(context.Background(), 10000, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, data, created_at, updated_at FROM job_cards WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(jobID, []byte(`{"status":"open"}`), fixedNow, fixedNow))

	job, err := s.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"open"}`, string(job.Data))
}

func TestGetJobNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM job_cards WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows(jobColumns))

	_, err := s.GetJob(context.Background(), jobID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	// malformed ids never reach the database
	_, err = s.GetJob(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJob(t *testing.T) {
	s, mock := newMockStore(t)
	data := json.RawMessage(`{"status":"closed"}`)

	mock.ExpectQuery(`UPDATE job_cards SET data = \$1, updated_at = \$2 WHERE id = \$3 RETURNING id, data, created_at, updated_at`).
		WithArgs(string(data), fixedNow, jobID).
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(jobID, []byte(data), fixedNow.Add(-time.Hour), fixedNow))

	job, err := s.UpdateJob(context.Background(), jobID, data)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, job.UpdatedAt)
	assert.JSONEq(t, string(data), string(job.Data))
}

func TestUpdateJobNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE job_cards`).WillReturnRows(sqlmock.NewRows(jobColumns))

	_, err := s.UpdateJob(context.Background(), jobID, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = s.UpdateJob(context.Background(), jobID, json.RawMessage(`nope`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDeleteJob(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM job_cards WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM job_cards WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteJob(context.Background(), jobID))
	assert.ErrorIs(t, s.DeleteJob(context.Background(), jobID), ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
