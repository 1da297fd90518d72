package pipeline

import (
	"cmp"
	"slices"

	"github.com/FranksOps/reelrank/internal/model"
)

// compareReels orders by views descending, then capture time descending.
func compareReels(a, b model.Reel) int {
	if c := cmp.Compare(b.Views, a.Views); c != 0 {
		return c
	}
	return cmp.Compare(b.TakenAt, a.TakenAt)
}

// Rank returns a new slice holding the topK best reels. The sort is stable,
// so full ties keep their input order. Truncation happens after sorting.
func Rank(reels []model.Reel, topK int) []model.Reel {
	if topK <= 0 {
		return []model.Reel{}
	}

	out := make([]model.Reel, len(reels))
	copy(out, reels)
	slices.SortStableFunc(out, compareReels)

	if len(out) > topK {
		out = out[:topK:topK]
	}
	return out
}
