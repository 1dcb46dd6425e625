// Package jobcard stores a tenant's job-card layout and job records in the
// tenant's own database.
package jobcard

import (
	"encoding/json"
	"errors"
	"time"
)

// SchemaTypeJobCard is the settings row holding the job-card layout
const SchemaTypeJobCard = "jobCard"

var (
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("job not found")
	// ErrSchemaNotFound is returned when no schema of the type was saved
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrInvalidPayload is returned for a body that is not a JSON document
	ErrInvalidPayload = errors.New("payload must be a JSON document")
)

// Schema is a saved layout definition
type Schema struct {
	Type      string          `json:"schema_type"`
	Schema    json.RawMessage `json:"schema"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Job is a job-card record. Data is stored as given.
type Job struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func validDocument(data json.RawMessage) bool {
	return len(data) > 0 && json.Valid(data)
}
