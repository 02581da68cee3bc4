package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ghtracker/pkg/models"
)

func testQuery() *models.QueryDefinition {
	q := &models.QueryDefinition{
		Name: "Bugs",
		Repositories: []models.RepositoryRef{
			{Owner: "acme", Repo: "api"},
			{Owner: "acme", Repo: "web"},
		},
		Conditions: []models.Condition{
			{Type: models.ConditionLabel, Value: "bug", CaseSensitive: true},
			{Type: models.ConditionAuthor, Value: "octocat", CaseSensitive: true},
		},
	}
	q.ApplyDefaults()
	return q
}

func testItems() []models.Item {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return []models.Item{
		{
			ID: "I_1", Number: 1, Title: "First", State: "open",
			URL: "https://github.com/acme/api/issues/1", CreatedAt: created, UpdatedAt: created,
			Author: "octocat", Labels: []models.Label{{Name: "bug", Color: "d73a4a"}},
			RepositoryName: "acme/api",
			DetectedType:   models.TypeBug, CustomStatus: models.StatusBlocked,
			CustomNote: "look later", IsIgnored: true,
		},
		{
			ID: "I_2", Number: 2, Title: "Second", State: "closed",
			CreatedAt: created, UpdatedAt: created.Add(time.Hour), RepositoryName: "acme/web",
		},
	}
}

func TestFingerprint_IgnoresNameAndAnnotations(t *testing.T) {
	a := testQuery()
	b := testQuery()
	b.Name = "Renamed"
	b.Description = "something else"
	b.Ignore(42)
	b.SetNote(1, "note")
	b.SetStatus(2, models.StatusDone)

	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_IgnoresOrdering(t *testing.T) {
	a := testQuery()
	b := testQuery()
	b.Repositories[0], b.Repositories[1] = b.Repositories[1], b.Repositories[0]
	b.Conditions[0], b.Conditions[1] = b.Conditions[1], b.Conditions[0]

	require.Equal(t, Fingerprint(a), Fingerprint(b))
	// the query itself is left untouched
	require.Equal(t, "web", b.Repositories[0].Repo)
}

func TestFingerprint_ChangesWithFetchFields(t *testing.T) {
	base := Fingerprint(testQuery())

	mutations := map[string]func(q *models.QueryDefinition){
		"state":       func(q *models.QueryDefinition) { q.State = models.StateAll },
		"logic":       func(q *models.QueryDefinition) { q.ConditionLogic = models.LogicOr },
		"discussions": func(q *models.QueryDefinition) { q.IncludeDiscussions = true },
		"age":         func(q *models.QueryDefinition) { q.MaxAgeMonths = 3 },
		"repo": func(q *models.QueryDefinition) {
			q.Repositories = append(q.Repositories, models.RepositoryRef{Owner: "acme", Repo: "cli"})
		},
		"negate":      func(q *models.QueryDefinition) { q.Conditions[0].Negate = true },
		"case":        func(q *models.QueryDefinition) { q.Conditions[1].CaseSensitive = false },
		"value":       func(q *models.QueryDefinition) { q.Conditions[0].Value = "crash" },
		"no filters":  func(q *models.QueryDefinition) { q.Conditions = nil },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			q := testQuery()
			mutate(q)
			require.NotEqual(t, base, Fingerprint(q))
		})
	}
}

func TestStore_RoundTripStripsDerivedFields(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	q := testQuery()
	items := testItems()
	require.NoError(t, store.Set(q, items))

	got, ok := store.Get(q)
	require.True(t, ok)

	want := []models.Item{items[0].StripDerived(), items[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cached items mismatch (-want +got):\n%s", diff)
	}

	// caller's slice is not modified by the write
	require.Equal(t, models.StatusBlocked, items[0].CustomStatus)
}

func TestStore_WritesBothArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	q := testQuery()
	require.NoError(t, store.Set(q, testItems()))

	fp := Fingerprint(q)
	require.FileExists(t, filepath.Join(dir, fp+".json"))
	require.FileExists(t, filepath.Join(dir, fp+".meta.json"))

	infos, err := store.Info()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, fp, infos[0].Fingerprint)
	require.Equal(t, "Bugs", infos[0].TemplateName)
	require.Equal(t, 2, infos[0].IssueCount)
	require.Equal(t, []string{"acme/api", "acme/web"}, infos[0].Repositories)
	require.False(t, infos[0].Expired)
}

func TestStore_EmptyResultIsNotCached(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(testQuery(), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, ok := store.Get(testQuery())
	require.False(t, ok)
}

func TestStore_TTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store, err := NewStore(t.TempDir(), WithClock(clock))
	require.NoError(t, err)

	q := testQuery()
	require.NoError(t, store.Set(q, testItems()))

	now = now.Add(23 * time.Hour)
	_, ok := store.Get(q)
	require.True(t, ok, "fresh entry should hit")

	now = now.Add(2 * time.Hour)
	_, ok = store.Get(q)
	require.False(t, ok, "entry older than 24h should miss")

	infos, err := store.Info()
	require.NoError(t, err)
	require.True(t, infos[0].Expired)
}

func TestStore_CorruptArtifactsAreMisses(t *testing.T) {
	tests := map[string]func(dir, fp string){
		"corrupt items": func(dir, fp string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, fp+".json"), []byte("[{"), 0o644))
		},
		"corrupt metadata": func(dir, fp string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, fp+".meta.json"), []byte("nope"), 0o644))
		},
		"missing items": func(dir, fp string) {
			require.NoError(t, os.Remove(filepath.Join(dir, fp+".json")))
		},
		"missing metadata": func(dir, fp string) {
			require.NoError(t, os.Remove(filepath.Join(dir, fp+".meta.json")))
		},
	}

	for name, damage := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			store, err := NewStore(dir)
			require.NoError(t, err)

			q := testQuery()
			require.NoError(t, store.Set(q, testItems()))
			damage(dir, Fingerprint(q))

			items, ok := store.Get(q)
			require.False(t, ok)
			require.Nil(t, items)
		})
	}
}

func TestStore_Invalidate(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	bugs := testQuery()
	other := testQuery()
	other.State = models.StateClosed

	require.NoError(t, store.Set(bugs, testItems()))
	require.NoError(t, store.Set(other, testItems()))

	require.NoError(t, store.Invalidate(bugs))
	_, ok := store.Get(bugs)
	require.False(t, ok)
	_, ok = store.Get(other)
	require.True(t, ok)

	// invalidating a missing entry is fine
	require.NoError(t, store.Invalidate(bugs))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))
	removed, err := store.InvalidateAll()
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.FileExists(t, filepath.Join(dir, "notes.txt"))

	_, ok = store.Get(other)
	require.False(t, ok)
}

func TestStore_Disabled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, Disabled())
	require.NoError(t, err)

	require.NoError(t, store.Set(testQuery(), testItems()))
	_, ok := store.Get(testQuery())
	require.False(t, ok)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory(0, 0)
	items := testItems()
	m.Add("issues:acme/api:open:12", items)

	items[0].Title = "mutated by caller"

	got, ok := m.Get("issues:acme/api:open:12")
	require.True(t, ok)
	require.Equal(t, "First", got[0].Title)

	got[1].Title = "mutated by reader"
	again, _ := m.Get("issues:acme/api:open:12")
	require.Equal(t, "Second", again[1].Title)
}

func TestMemory_ExpiresAndPurges(t *testing.T) {
	m := NewMemory(4, 20*time.Millisecond)
	m.Add("a", testItems())
	require.Equal(t, 1, m.Len())

	require.Eventually(t, func() bool {
		_, ok := m.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)

	m.Add("b", testItems())
	m.Purge()
	_, ok := m.Get("b")
	require.False(t, ok)
}
