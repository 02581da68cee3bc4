package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/ghtracker/pkg/models"
)

// fingerprintInput is the subset of a query that determines which items are fetched.
// Field order is fixed by the struct so the encoding is canonical.
type fingerprintInput struct {
	Repositories       []string           `json:"repositories"`
	Conditions         []models.Condition `json:"conditions"`
	ConditionLogic     models.Logic       `json:"condition_logic"`
	State              models.State       `json:"state"`
	IncludeDiscussions bool               `json:"include_discussions"`
	MaxAgeMonths       int                `json:"max_age_months"`
}

// Fingerprint returns a stable hex digest of the fetch-relevant part of q.
// Repository and condition order, the name, the description and all annotations
// do not affect the result.
func Fingerprint(q *models.QueryDefinition) string {
	in := fingerprintInput{
		Repositories:       q.RepositoryNames(),
		Conditions:         append([]models.Condition(nil), q.Conditions...),
		ConditionLogic:     q.ConditionLogic,
		State:              q.State,
		IncludeDiscussions: q.IncludeDiscussions,
		MaxAgeMonths:       q.MaxAgeMonths,
	}
	if in.Conditions == nil {
		in.Conditions = []models.Condition{}
	}

	sort.Strings(in.Repositories)
	sort.SliceStable(in.Conditions, func(i, j int) bool {
		a, b := in.Conditions[i], in.Conditions[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		if a.CaseSensitive != b.CaseSensitive {
			return !a.CaseSensitive
		}
		return !a.Negate && b.Negate
	})

	// Marshal of plain strings, bools and ints cannot fail
	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
