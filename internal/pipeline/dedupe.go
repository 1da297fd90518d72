package pipeline

import (
	"github.com/FranksOps/reelrank/internal/model"
)

// Dedupe merges per-query candidate lists into one sequence of unique
// accounts in first-seen order (query order, then position within the
// query). The first occurrence of an id wins. Candidates without an id are
// dropped. When max > 0 the result is capped at max accounts.
func Dedupe(perQuery [][]model.AccountCandidate, max int) []model.AccountCandidate {
	total := 0
	for _, cs := range perQuery {
		total += len(cs)
	}

	seen := make(map[string]struct{}, total)
	out := make([]model.AccountCandidate, 0, total)

	// One pass over the concatenation, not one per query.
	for _, cs := range perQuery {
		for _, c := range cs {
			if c.PK == "" {
				continue
			}
			if _, dup := seen[c.PK]; dup {
				continue
			}
			seen[c.PK] = struct{}{}
			out = append(out, c)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}
