package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ghtracker/pkg/models"
)

const (
	// DefaultMemoryTTL bounds how long raw fetch results are reused within a process
	DefaultMemoryTTL = 10 * time.Minute
	// DefaultMemorySize is the maximum number of memoized fetches
	DefaultMemorySize = 256
)

// Memory is the ephemeral tier. It stores raw per-repository fetch results and
// hands out copies so callers cannot mutate what is cached.
type Memory struct {
	lru *expirable.LRU[string, []models.Item]
}

// NewMemory returns an empty ephemeral tier
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	return &Memory{lru: expirable.NewLRU[string, []models.Item](size, nil, ttl)}
}

// Get returns a copy of the items stored under key
func (m *Memory) Get(key string) ([]models.Item, bool) {
	items, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	return copyItems(items), true
}

// Add stores a copy of items under key
func (m *Memory) Add(key string, items []models.Item) {
	m.lru.Add(key, copyItems(items))
}

// Purge drops every entry
func (m *Memory) Purge() {
	m.lru.Purge()
}

// Len returns the number of live entries
func (m *Memory) Len() int {
	return m.lru.Len()
}

func copyItems(items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	copy(out, items)
	return out
}
