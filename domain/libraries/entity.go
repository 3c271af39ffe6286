package libraries

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Library is a user's named collection of papers, the unit over which
// linking runs.
type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Title     string    `bun:"title,notnull" json:"title"`
	OwnerID   *string   `bun:"owner_id" json:"owner_id,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// LibraryPaper is the membership row; added_at drives the "paper moved
// into this library" half of the unlinked rule.
type LibraryPaper struct {
	bun.BaseModel `bun:"table:library_papers,alias:lp"`

	LibraryID uuid.UUID `bun:"library_id,pk,type:uuid" json:"library_id"`
	PaperID   uuid.UUID `bun:"paper_id,pk,type:uuid" json:"paper_id"`
	AddedAt   time.Time `bun:"added_at,notnull" json:"added_at"`
}

// ProcessingStatus is the per-library pipeline view for the UI.
type ProcessingStatus struct {
	PapersProcessing int  `json:"papers_processing"`
	LibraryLinking   bool `json:"library_linking"`
}
