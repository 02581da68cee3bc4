package tracker

import (
	"strconv"
	"strings"

	"github.com/ghtracker/pkg/models"
)

// Search keeps the items whose number, title, repository, labels, author or body
// contain text, ignoring case. An empty text keeps everything.
func Search(items []models.Item, text string) []models.Item {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return items
	}

	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if matchesText(item, text) {
			out = append(out, item)
		}
	}
	return out
}

func matchesText(item models.Item, text string) bool {
	fields := []string{
		strconv.Itoa(item.Number),
		item.Title,
		item.RepositoryName,
		item.Author,
		item.Body,
	}
	fields = append(fields, item.LabelNames()...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), text) {
			return true
		}
	}
	return false
}

// Visible drops ignored items unless showIgnored is set
func Visible(items []models.Item, showIgnored bool) []models.Item {
	if showIgnored {
		return items
	}
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if !item.IsIgnored {
			out = append(out, item)
		}
	}
	return out
}
