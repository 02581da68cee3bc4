package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ConditionType identifies which field of an item a Condition inspects
type ConditionType string

const (
	ConditionLabel         ConditionType = "label"
	ConditionTitleContains ConditionType = "title_contains"
	ConditionBodyContains  ConditionType = "body_contains"
	ConditionAuthor        ConditionType = "author"
	ConditionAssignee      ConditionType = "assignee"
	ConditionCreatedAfter  ConditionType = "created_after"
	ConditionUpdatedAfter  ConditionType = "updated_after"
)

// ConditionTypes lists every condition type the engine understands
var ConditionTypes = []ConditionType{
	ConditionLabel,
	ConditionTitleContains,
	ConditionBodyContains,
	ConditionAuthor,
	ConditionAssignee,
	ConditionCreatedAfter,
	ConditionUpdatedAfter,
}

// Logic controls how a list of conditions is combined
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// State filters issues by their open/closed state
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateAll    State = "all"
)

// Status is a user-assigned tracking status
type Status string

const (
	StatusNone           Status = "none"
	StatusInProgress     Status = "in_progress"
	StatusBlocked        Status = "blocked"
	StatusFuture         Status = "future"
	StatusInvestigating  Status = "investigating"
	StatusReady          Status = "ready"
	StatusWaiting        Status = "waiting"
	StatusDone           Status = "done"
	StatusHelpWantedOS   Status = "help_wanted_os"
	StatusHelpWantedTeam Status = "help_wanted_team"
)

// Statuses is the cycling order used by the annotation workflow
var Statuses = []Status{
	StatusNone,
	StatusInProgress,
	StatusBlocked,
	StatusFuture,
	StatusInvestigating,
	StatusReady,
	StatusWaiting,
	StatusDone,
	StatusHelpWantedOS,
	StatusHelpWantedTeam,
}

// ParseStatus converts a string into a known Status
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Next returns the status following s in the cycling order
func (s Status) Next() Status {
	for i, st := range Statuses {
		if st == s {
			return Statuses[(i+1)%len(Statuses)]
		}
	}
	return StatusNone
}

// ItemType is the classification derived from labels and title tags
type ItemType string

const (
	TypeBug        ItemType = "bug"
	TypeFeature    ItemType = "feature"
	TypeQuestion   ItemType = "question"
	TypeDiscussion ItemType = "discussion"
	TypeIssue      ItemType = "issue"
)

// RepositoryRef points at a single repository
type RepositoryRef struct {
	Owner string `json:"owner" yaml:"owner" validate:"required"`
	Repo  string `json:"repo" yaml:"repo" validate:"required"`
}

// FullName returns the owner/repo form
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// ParseRepositoryRef parses "owner/repo"
func ParseRepositoryRef(s string) (RepositoryRef, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepositoryRef{}, fmt.Errorf("invalid repository %q: expected 'owner/repo'", s)
	}
	return RepositoryRef{Owner: parts[0], Repo: parts[1]}, nil
}

// Condition is a single filter predicate
type Condition struct {
	Type          ConditionType `json:"type" yaml:"type" validate:"required"`
	Value         string        `json:"value" yaml:"value"`
	CaseSensitive bool          `json:"case_sensitive" yaml:"case_sensitive"`
	Negate        bool          `json:"negate" yaml:"negate"`
}

type conditionAlias Condition

// UnmarshalYAML defaults CaseSensitive to true when the document omits it
func (c *Condition) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := conditionAlias{CaseSensitive: true}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*c = Condition(raw)
	return nil
}

// UnmarshalJSON defaults CaseSensitive to true when the document omits it
func (c *Condition) UnmarshalJSON(data []byte) error {
	raw := conditionAlias{CaseSensitive: true}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Condition(raw)
	return nil
}

// QueryDefinition describes what to fetch, how to filter it and the user's annotations
type QueryDefinition struct {
	Name               string          `json:"name" yaml:"name" validate:"required"`
	Description        string          `json:"description,omitempty" yaml:"description,omitempty"`
	Repositories       []RepositoryRef `json:"repositories" yaml:"repositories" validate:"required,min=1,dive"`
	Conditions         []Condition     `json:"conditions" yaml:"conditions" validate:"dive"`
	ConditionLogic     Logic           `json:"condition_logic" yaml:"condition_logic" validate:"oneof=and or"`
	State              State           `json:"state" yaml:"state" validate:"oneof=open closed all"`
	IncludeDiscussions bool            `json:"include_discussions" yaml:"include_discussions"`
	MaxAgeMonths       int             `json:"max_age_months" yaml:"max_age_months" validate:"gte=1"`
	IgnoredIssues      []int           `json:"ignored_issues" yaml:"ignored_issues"`
	Notes              map[int]string  `json:"notes" yaml:"notes"`
	StatusOverrides    map[int]Status  `json:"status_overrides" yaml:"status_overrides" validate:"dive,oneof=none in_progress blocked future investigating ready waiting done help_wanted_os help_wanted_team"`
}

// ApplyDefaults fills the fields a document may leave out
func (q *QueryDefinition) ApplyDefaults() {
	if q.ConditionLogic == "" {
		q.ConditionLogic = LogicAnd
	}
	if q.State == "" {
		q.State = StateOpen
	}
	if q.MaxAgeMonths == 0 {
		q.MaxAgeMonths = 12
	}
	if q.Notes == nil {
		q.Notes = make(map[int]string)
	}
	if q.StatusOverrides == nil {
		q.StatusOverrides = make(map[int]Status)
	}
}

// IsIgnored reports whether number is on the ignore list
func (q *QueryDefinition) IsIgnored(number int) bool {
	for _, n := range q.IgnoredIssues {
		if n == number {
			return true
		}
	}
	return false
}

// Ignore adds number to the ignore list. It is a no-op when already present.
func (q *QueryDefinition) Ignore(number int) {
	if q.IsIgnored(number) {
		return
	}
	q.IgnoredIssues = append(q.IgnoredIssues, number)
	sort.Ints(q.IgnoredIssues)
}

// Unignore removes number from the ignore list
func (q *QueryDefinition) Unignore(number int) {
	kept := q.IgnoredIssues[:0]
	for _, n := range q.IgnoredIssues {
		if n != number {
			kept = append(kept, n)
		}
	}
	q.IgnoredIssues = kept
}

// SetStatus records a status override; StatusNone clears it
func (q *QueryDefinition) SetStatus(number int, status Status) {
	if q.StatusOverrides == nil {
		q.StatusOverrides = make(map[int]Status)
	}
	if status == StatusNone {
		delete(q.StatusOverrides, number)
		return
	}
	q.StatusOverrides[number] = status
}

// SetNote records a note; an empty note clears it
func (q *QueryDefinition) SetNote(number int, note string) {
	if q.Notes == nil {
		q.Notes = make(map[int]string)
	}
	if note == "" {
		delete(q.Notes, number)
		return
	}
	q.Notes[number] = note
}

// RepositoryNames returns owner/repo for every configured repository
func (q *QueryDefinition) RepositoryNames() []string {
	names := make([]string, 0, len(q.Repositories))
	for _, r := range q.Repositories {
		names = append(names, r.FullName())
	}
	return names
}

// Label is an issue or discussion label
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// Item is an issue or a discussion in a single normalized shape
type Item struct {
	ID             string     `json:"id"`
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	Body           string     `json:"body,omitempty"`
	State          string     `json:"state"`
	URL            string     `json:"url"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	Author         string     `json:"author"`
	Assignee       string     `json:"assignee,omitempty"`
	Assignees      []string   `json:"assignees,omitempty"`
	Labels         []Label    `json:"labels,omitempty"`
	CommentCount   int        `json:"comment_count"`
	RepositoryName string     `json:"repository_name"`
	IsDiscussion   bool       `json:"is_discussion"`

	// Derived on every read, never authoritative in the cache
	DetectedType ItemType `json:"detected_type,omitempty"`
	CustomStatus Status   `json:"custom_status,omitempty"`
	CustomNote   string   `json:"custom_note,omitempty"`
	IsIgnored    bool     `json:"is_ignored,omitempty"`
}

// Key returns the repository-scoped identity of the item
func (i Item) Key() string {
	return fmt.Sprintf("%s#%d", i.RepositoryName, i.Number)
}

// LabelNames returns the label names in their original order
func (i Item) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// IsClosed reports whether the item is in the closed state
func (i Item) IsClosed() bool {
	return i.State == string(StateClosed)
}

// StripDerived returns a copy of the item without annotation or classification data
func (i Item) StripDerived() Item {
	i.DetectedType = ""
	i.CustomStatus = ""
	i.CustomNote = ""
	i.IsIgnored = false
	return i
}
