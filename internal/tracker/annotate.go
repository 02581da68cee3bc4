package tracker

import (
	"github.com/ghtracker/pkg/models"
)

// Annotate recomputes every derived field of items from q. It overwrites whatever
// was there before, so applying it twice gives the same result as applying it once.
// Overrides are looked up by issue number, and an explicit override wins over the
// closed state, including none.
func Annotate(items []models.Item, q *models.QueryDefinition) {
	ignored := make(map[int]struct{}, len(q.IgnoredIssues))
	for _, n := range q.IgnoredIssues {
		ignored[n] = struct{}{}
	}

	for i := range items {
		item := items[i].StripDerived()

		item.DetectedType = DetectType(item)

		if _, ok := ignored[item.Number]; ok {
			item.IsIgnored = true
		}

		switch status, ok := q.StatusOverrides[item.Number]; {
		case ok:
			item.CustomStatus = status
		case item.IsClosed():
			item.CustomStatus = models.StatusDone
		default:
			item.CustomStatus = models.StatusNone
		}

		item.CustomNote = q.Notes[item.Number]

		items[i] = item
	}
}
