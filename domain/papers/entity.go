package papers

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Metadata is the schemaless paper metadata bag (authors, abstract,
// reference counts and whatever else parsing surfaces).
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
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

// Paper is an uploaded PDF, content-addressed by sha256 so identical
// bytes collapse to one row.
type Paper struct {
	bun.BaseModel `bun:"table:papers,alias:p"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Filename    string    `bun:"filename,notnull" json:"filename"`
	StoragePath string    `bun:"storage_path,notnull" json:"storage_path"`
	ParsedPath  *string   `bun:"parsed_path" json:"parsed_path,omitempty"`
	SHA256      string    `bun:"sha256,notnull" json:"sha256"`
	Metadata    Metadata  `bun:"metadata,type:jsonb" json:"metadata"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Parsed reports whether a PARSE_PAPER job has produced TEI for this
// paper.
func (p *Paper) Parsed() bool {
	return p.ParsedPath != nil && *p.ParsedPath != ""
}
