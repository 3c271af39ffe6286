package extracts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func extract(paperID, jobID uuid.UUID, typ Type, createdAt time.Time) *Extract {
	return &Extract{
		ID:        uuid.New(),
		PaperID:   paperID,
		JobID:     jobID,
		Type:      typ,
		CreatedAt: createdAt,
	}
}

func TestLatestPerPaperType(t *testing.T) {
	paper := uuid.New()
	oldJob := uuid.New()
	newJob := uuid.New()
	base := time.Now().UTC()

	all := []*Extract{
		extract(paper, oldJob, TypeClaim, base),
		extract(paper, oldJob, TypeClaim, base),
		extract(paper, newJob, TypeClaim, base.Add(time.Hour)),
		extract(paper, newJob, TypeClaim, base.Add(time.Hour)),
		extract(paper, newJob, TypeClaim, base.Add(time.Hour)),
		// Methods were only produced by the old run; they survive.
		extract(paper, oldJob, TypeMethod, base),
	}

	latest := LatestPerPaperType(all)

	var claims, methods int
	for _, e := range latest {
		switch e.Type {
		case TypeClaim:
			assert.Equal(t, newJob, e.JobID)
			claims++
		case TypeMethod:
			assert.Equal(t, oldJob, e.JobID)
			methods++
		}
	}
	assert.Equal(t, 3, claims)
	assert.Equal(t, 1, methods)
}

func TestLatestPerPaperType_IndependentPerPaper(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	j1, j2 := uuid.New(), uuid.New()
	base := time.Now().UTC()

	all := []*Extract{
		extract(p1, j1, TypeClaim, base),
		extract(p2, j2, TypeClaim, base.Add(time.Minute)),
	}

	latest := LatestPerPaperType(all)
	assert.Len(t, latest, 2, "each paper keeps its own newest run")
}

func TestLatestPerPaperType_TieBreaksByJobID(t *testing.T) {
	paper := uuid.New()
	ts := time.Now().UTC()

	jobA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	jobB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	all := []*Extract{
		extract(paper, jobA, TypeClaim, ts),
		extract(paper, jobB, TypeClaim, ts),
	}

	latest := LatestPerPaperType(all)
	assert.Len(t, latest, 1)
	assert.Equal(t, jobB, latest[0].JobID, "equal timestamps resolve to the greater job ID")
}

func TestLatestPerPaperType_Empty(t *testing.T) {
	assert.Nil(t, LatestPerPaperType(nil))
}

func TestExtract_Text(t *testing.T) {
	claim := &Extract{Type: TypeClaim, Content: JSONMap{
		ContentText:           "original wording",
		ContentRephrasedClaim: "standalone wording",
	}}
	assert.Equal(t, "standalone wording", claim.Text())

	bare := &Extract{Type: TypeClaim, Content: JSONMap{ContentText: "original wording"}}
	assert.Equal(t, "original wording", bare.Text())

	obs := &Extract{Type: TypeObservation, Content: JSONMap{ContentText: "n=40, p<0.05"}}
	assert.Equal(t, "n=40, p<0.05", obs.Text())
}
