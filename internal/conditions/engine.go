// Package conditions evaluates query conditions against a single item.
package conditions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ghtracker/pkg/models"
)

var (
	// ErrUnknownConditionType is returned for a condition type without a matcher
	ErrUnknownConditionType = errors.New("unknown condition type")
	// ErrUnknownLogic is returned for a logic other than "and" or "or"
	ErrUnknownLogic = errors.New("unknown condition logic")
)

// Accepted layouts for created_after / updated_after values. Values without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Evaluate reports whether item satisfies conditions combined with logic.
// An empty condition list always matches.
func Evaluate(item models.Item, conditions []models.Condition, logic models.Logic) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	switch logic {
	case models.LogicAnd:
		for _, c := range conditions {
			ok, err := check(item, c)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case models.LogicOr:
		for _, c := range conditions {
			ok, err := check(item, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownLogic, logic)
	}
}

// Validate checks a condition set without an item so that a bad query fails before any fetch
func Validate(conditions []models.Condition, logic models.Logic) error {
	if logic != models.LogicAnd && logic != models.LogicOr {
		return fmt.Errorf("%w: %q", ErrUnknownLogic, logic)
	}
	for i, c := range conditions {
		switch c.Type {
		case models.ConditionLabel, models.ConditionTitleContains, models.ConditionBodyContains,
			models.ConditionAuthor, models.ConditionAssignee:
		case models.ConditionCreatedAfter, models.ConditionUpdatedAfter:
			if _, err := ParseTimestamp(c.Value); err != nil {
				return fmt.Errorf("condition %d: %w", i, err)
			}
		default:
			return fmt.Errorf("condition %d: %w: %q", i, ErrUnknownConditionType, c.Type)
		}
	}
	return nil
}

// check applies one condition including its negation
func check(item models.Item, c models.Condition) (bool, error) {
	ok, err := match(item, c)
	if err != nil {
		return false, err
	}
	if c.Negate {
		return !ok, nil
	}
	return ok, nil
}

func match(item models.Item, c models.Condition) (bool, error) {
	switch c.Type {
	case models.ConditionLabel:
		for _, l := range item.Labels {
			if l.Name == c.Value {
				return true, nil
			}
		}
		return false, nil
	case models.ConditionTitleContains:
		return contains(item.Title, c.Value, c.CaseSensitive), nil
	case models.ConditionBodyContains:
		if item.Body == "" {
			return false, nil
		}
		return contains(item.Body, c.Value, c.CaseSensitive), nil
	case models.ConditionAuthor:
		return item.Author == c.Value, nil
	case models.ConditionAssignee:
		if item.Assignee == "" {
			return false, nil
		}
		return item.Assignee == c.Value, nil
	case models.ConditionCreatedAfter:
		ts, err := ParseTimestamp(c.Value)
		if err != nil {
			return false, err
		}
		return !item.CreatedAt.Before(ts), nil
	case models.ConditionUpdatedAfter:
		ts, err := ParseTimestamp(c.Value)
		if err != nil {
			return false, err
		}
		return !item.UpdatedAt.Before(ts), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownConditionType, c.Type)
	}
}

func contains(haystack, needle string, caseSensitive bool) bool {
	if !caseSensitive {
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	return strings.Contains(haystack, needle)
}

// ParseTimestamp parses an absolute timestamp in one of the accepted layouts
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}
