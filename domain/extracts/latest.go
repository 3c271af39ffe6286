package extracts

import (
	"sort"

	"github.com/google/uuid"
)

type paperType struct {
	paperID uuid.UUID
	typ     Type
}

// LatestPerPaperType filters extracts down to the newest extraction
// run per (paper, type): the set sharing the newest job_id seen in a
// created_at-descending scan. Ties on created_at break by job ID
// descending so the winner is stable. Input order is preserved in the
// result.
func LatestPerPaperType(all []*Extract) []*Extract {
	if len(all) == 0 {
		return nil
	}

	sorted := make([]*Extract, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].JobID.String() > sorted[j].JobID.String()
	})

	winners := make(map[paperType]uuid.UUID)
	for _, e := range sorted {
		key := paperType{e.PaperID, e.Type}
		if _, seen := winners[key]; !seen {
			winners[key] = e.JobID
		}
	}

	out := make([]*Extract, 0, len(all))
	for _, e := range all {
		if winners[paperType{e.PaperID, e.Type}] == e.JobID {
			out = append(out, e)
		}
	}
	return out
}
