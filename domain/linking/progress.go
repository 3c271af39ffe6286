package linking

import (
	"github.com/google/uuid"

	"github.com/litgraph/litgraph/internal/jobs"
)

// Progress keys inside the job's opaque progress bag.
const (
	progressC2CDone = "c2c_done"
	progressC2ODone = "c2o_done"
)

// Progress records which input claims previous attempts of this job
// already processed, per phase. The schema is private to the linking
// handler; the job store treats it as opaque.
type Progress struct {
	C2CDone map[uuid.UUID]bool
	C2ODone map[uuid.UUID]bool
}

// ParseProgress reads a progress bag, tolerating missing keys and
// unparseable entries from partially written checkpoints.
func ParseProgress(m jobs.JSONMap) *Progress {
	return &Progress{
		C2CDone: parseIDSet(m, progressC2CDone),
		C2ODone: parseIDSet(m, progressC2ODone),
	}
}

func parseIDSet(m jobs.JSONMap, key string) map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	if m == nil {
		return out
	}
	raw, ok := m[key].([]any)
	if !ok {
		return out
	}
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			out[id] = true
		}
	}
	return out
}

// ToMap serializes progress for PutProgress.
func (p *Progress) ToMap() jobs.JSONMap {
	return jobs.JSONMap{
		progressC2CDone: idList(p.C2CDone),
		progressC2ODone: idList(p.C2ODone),
	}
}

func idList(set map[uuid.UUID]bool) []any {
	out := make([]any, 0, len(set))
	for id := range set {
		out = append(out, id.String())
	}
	return out
}
