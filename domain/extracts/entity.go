// Package extracts holds the structured knowledge elements pulled out
// of papers (claims, methods, observations), their embeddings, and the
// typed links the linking engine writes between them.
package extracts

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Type discriminates the three extract kinds.
type Type string

const (
	TypeClaim       Type = "claim"
	TypeMethod      Type = "method"
	TypeObservation Type = "observation"
)

// Link categories and types. Duplicate, variant and contradiction are
// semantically symmetric; premise and all claim-to-observation types
// are directional.
const (
	CategoryClaimToClaim       = "claim_to_claim"
	CategoryClaimToObservation = "claim_to_observation"

	LinkDuplicate      = "duplicate"
	LinkVariant        = "variant"
	LinkContradiction  = "contradiction"
	LinkPremise        = "premise"
	LinkSupports       = "supports"
	LinkContradicts    = "contradicts"
	LinkContextualizes = "contextualizes"
)

// Content keys used across extract and link content bags.
const (
	ContentText            = "text"
	ContentRephrasedClaim  = "rephrased_claim"
	ContentName            = "name"
	ContentMethodSummary   = "method_summary"
	ContentMethodReference = "method_reference"
	ContentLinkCategory    = "link_category"
	ContentLinkType        = "link_type"
	ContentReasoning       = "reasoning"
)

// JSONMap is a schemaless jsonb bag.
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

// String returns the content value under key if it is a string.
func (m JSONMap) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Extract is an immutable knowledge element produced by one extraction
// run. Each run writes a fresh set; consumers must apply the
// latest-per-(paper,type) filter.
type Extract struct {
	bun.BaseModel `bun:"table:extracts,alias:e"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	PaperID   uuid.UUID `bun:"paper_id,type:uuid,notnull" json:"paper_id"`
	JobID     uuid.UUID `bun:"job_id,type:uuid,notnull" json:"job_id"`
	Type      Type      `bun:"type,notnull" json:"type"`
	Content   JSONMap   `bun:"content,type:jsonb" json:"content"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Text returns the best display text for the extract: claims prefer
// the rephrased form.
func (e *Extract) Text() string {
	if e.Type == TypeClaim {
		if t := e.Content.String(ContentRephrasedClaim); t != "" {
			return t
		}
	}
	return e.Content.String(ContentText)
}

// ExtractVector is the embedding for one extract, when embeddable.
type ExtractVector struct {
	bun.BaseModel `bun:"table:extract_vectors,alias:ev"`

	ExtractID uuid.UUID `bun:"extract_id,pk,type:uuid" json:"extract_id"`
	Embedding []float32 `bun:"embedding,array" json:"embedding"`
}

// ExtractLink is a typed relation between two extracts. Uniqueness on
// (from_id, to_id) absorbs duplicate writes across linking re-runs.
type ExtractLink struct {
	bun.BaseModel `bun:"table:extract_links,alias:el"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	FromID    uuid.UUID `bun:"from_id,type:uuid,notnull" json:"from_id"`
	ToID      uuid.UUID `bun:"to_id,type:uuid,notnull" json:"to_id"`
	Content   JSONMap   `bun:"content,type:jsonb" json:"content"`
	JobID     uuid.UUID `bun:"job_id,type:uuid,notnull" json:"job_id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
