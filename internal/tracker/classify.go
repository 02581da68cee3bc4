package tracker

import (
	"strings"

	"github.com/ghtracker/pkg/models"
)

var (
	bugLabels      = []string{"bug"}
	featureLabels  = []string{"feature", "enhancement", "feature request"}
	questionLabels = []string{"question"}
)

// DetectType classifies an item from its labels, then title tags, then its kind
func DetectType(item models.Item) models.ItemType {
	labels := make(map[string]struct{}, len(item.Labels))
	for _, l := range item.Labels {
		labels[strings.ToLower(l.Name)] = struct{}{}
	}
	hasAny := func(names []string) bool {
		for _, n := range names {
			if _, ok := labels[n]; ok {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny(bugLabels):
		return models.TypeBug
	case hasAny(featureLabels):
		return models.TypeFeature
	case hasAny(questionLabels):
		return models.TypeQuestion
	}

	title := strings.ToLower(item.Title)
	switch {
	case strings.Contains(title, "[bug]"):
		return models.TypeBug
	case strings.Contains(title, "[feature]"), strings.Contains(title, "[feat]"):
		return models.TypeFeature
	case strings.Contains(title, "[question]"):
		return models.TypeQuestion
	}

	if item.IsDiscussion {
		return models.TypeDiscussion
	}
	return models.TypeIssue
}
