package jobs

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Kind identifies the handler a job is dispatched to.
type Kind string

const (
	KindParsePaper      Kind = "PARSE_PAPER"
	KindExtractElements Kind = "EXTRACT_ELEMENTS"
	KindLinkLibrary     Kind = "LINK_LIBRARY"
)

// Status is the job state machine position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Payload keys shared between enqueuers and handlers.
const (
	PayloadPaperID   = "paper_id"
	PayloadLibraryID = "library_id"
	PayloadCutoff    = "cutoff"
)

// JSONMap is a schemaless jsonb column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// String returns the payload value under key if it is a string.
func (m JSONMap) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Job is a durable unit of work.
type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Kind        Kind       `bun:"kind,notnull" json:"kind"`
	Payload     JSONMap    `bun:"payload,type:jsonb" json:"payload"`
	Status      Status     `bun:"status,notnull" json:"status"`
	Attempts    int        `bun:"attempts,notnull" json:"attempts"`
	MaxAttempts int        `bun:"max_attempts,notnull" json:"max_attempts"`
	RetryAfter  *time.Time `bun:"retry_after" json:"retry_after,omitempty"`
	ClaimedBy   *string    `bun:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time `bun:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	FinishedAt  *time.Time `bun:"finished_at" json:"finished_at,omitempty"`
	Result      JSONMap    `bun:"result,type:jsonb" json:"result,omitempty"`
	Error       string     `bun:"error,nullzero" json:"error,omitempty"`
	Progress    JSONMap    `bun:"progress,type:jsonb" json:"progress,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone returns a deep-enough copy for handing across goroutines.
func (j *Job) Clone() *Job {
	c := *j
	c.Payload = cloneMap(j.Payload)
	c.Result = cloneMap(j.Result)
	c.Progress = cloneMap(j.Progress)
	return &c
}

func cloneMap(m JSONMap) JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
