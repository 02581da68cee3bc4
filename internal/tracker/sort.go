package tracker

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/ghtracker/pkg/models"
)

// SortKey selects the explicit ordering of a listing
type SortKey string

const (
	SortStatus  SortKey = "status"
	SortType    SortKey = "type"
	SortNumber  SortKey = "number"
	SortRepo    SortKey = "repo"
	SortTitle   SortKey = "title"
	SortUpdated SortKey = "updated"
)

// SortKeys lists the keys in cycling order
var SortKeys = []SortKey{SortStatus, SortType, SortNumber, SortRepo, SortTitle, SortUpdated}

// ParseSortKey converts a flag value into a SortKey
func ParseSortKey(s string) (SortKey, error) {
	for _, k := range SortKeys {
		if string(k) == strings.ToLower(s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// DefaultDescending reports the natural direction of key: newest and highest first
// for updated and number, alphabetical otherwise
func DefaultDescending(key SortKey) bool {
	return key == SortUpdated || key == SortNumber
}

// Sort applies the default order: type, repository, most recently updated, title
func Sort(items []models.Item) {
	slices.SortStableFunc(items, func(a, b models.Item) int {
		if c := cmp.Compare(a.DetectedType, b.DetectedType); c != 0 {
			return c
		}
		if c := cmp.Compare(a.RepositoryName, b.RepositoryName); c != 0 {
			return c
		}
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
}

// SortBy orders items by key. desc reverses the whole comparison, tie breakers included.
func SortBy(items []models.Item, key SortKey, desc bool) {
	compare := comparator(key)
	slices.SortStableFunc(items, func(a, b models.Item) int {
		if desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
}

func comparator(key SortKey) func(a, b models.Item) int {
	switch key {
	case SortStatus:
		return func(a, b models.Item) int {
			if c := cmp.Compare(a.CustomStatus, b.CustomStatus); c != 0 {
				return c
			}
			return a.UpdatedAt.Compare(b.UpdatedAt)
		}
	case SortType:
		return func(a, b models.Item) int {
			if c := cmp.Compare(a.DetectedType, b.DetectedType); c != 0 {
				return c
			}
			return a.UpdatedAt.Compare(b.UpdatedAt)
		}
	case SortNumber:
		return func(a, b models.Item) int {
			return cmp.Compare(a.Number, b.Number)
		}
	case SortRepo:
		return func(a, b models.Item) int {
			if c := cmp.Compare(a.RepositoryName, b.RepositoryName); c != 0 {
				return c
			}
			return a.UpdatedAt.Compare(b.UpdatedAt)
		}
	case SortTitle:
		return func(a, b models.Item) int {
			return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		}
	default:
		return func(a, b models.Item) int {
			return a.UpdatedAt.Compare(b.UpdatedAt)
		}
	}
}
