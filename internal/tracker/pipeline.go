package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ghtracker/internal/cache"
	"github.com/ghtracker/internal/conditions"
	"github.com/ghtracker/internal/providers"
	"github.com/ghtracker/internal/retry"
	"github.com/ghtracker/pkg/models"
)

// Origin tells where a result's items came from
type Origin string

const (
	OriginCache   Origin = "cache"
	OriginNetwork Origin = "network"
)

// LoadOptions controls a single Load
type LoadOptions struct {
	// ForceRefresh skips both cache tiers and refetches
	ForceRefresh bool
}

// Result is the annotated, default-sorted outcome of a Load
type Result struct {
	RunID    string        `json:"run_id"`
	Items    []models.Item `json:"items"`
	Origin   Origin        `json:"origin"`
	Failures []Failure     `json:"failures,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Pipeline owns one fetcher with its ephemeral tier and shares a durable store
type Pipeline struct {
	fetcher *Fetcher
	store   *cache.Store
	log     zerolog.Logger
}

// PipelineConfig holds the dependencies of a Pipeline
type PipelineConfig struct {
	Source     providers.Source
	Store      *cache.Store
	Policy     retry.Policy
	MemorySize int
	MemoryTTL  time.Duration
	Logger     zerolog.Logger
}

// NewPipeline wires a fetcher and a fresh ephemeral tier around cfg.Source
func NewPipeline(cfg PipelineConfig) *Pipeline {
	memo := cache.NewMemory(cfg.MemorySize, cfg.MemoryTTL)
	return &Pipeline{
		fetcher: NewFetcher(cfg.Source, cfg.Policy, memo, cfg.Logger),
		store:   cfg.Store,
		log:     cfg.Logger,
	}
}

// Fetcher exposes the underlying fetcher
func (p *Pipeline) Fetcher() *Fetcher { return p.fetcher }

// Load returns the items selected by q. A durable cache hit skips fetching; either way
// the items are annotated from q and sorted in the default order. Results with reported
// failures are returned but not cached.
func (p *Pipeline) Load(ctx context.Context, q *models.QueryDefinition, opts LoadOptions) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Str("template", q.Name).Logger()

	if err := conditions.Validate(q.Conditions, q.ConditionLogic); err != nil {
		return nil, fmt.Errorf("query %q: %w", q.Name, err)
	}

	result := &Result{RunID: runID}

	if opts.ForceRefresh {
		if p.store != nil {
			if err := p.store.Invalidate(q); err != nil {
				log.Warn().Err(err).Msg("failed to invalidate cache entry")
			}
		}
		p.fetcher.PurgeMemory()
		log.Info().Msg("forced refresh, cache bypassed")
	} else if p.store != nil {
		if items, ok := p.store.Get(q); ok {
			result.Items = items
			result.Origin = OriginCache
		}
	}

	if result.Origin == "" {
		fetcher := *p.fetcher
		fetcher.log = log
		fetcher.policy.Logger = log

		items, failures := fetcher.FetchAll(ctx, q)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load %q: %w", q.Name, err)
		}
		result.Items = items
		result.Failures = failures
		result.Origin = OriginNetwork

		switch {
		case p.store == nil:
		case len(failures) > 0:
			log.Warn().Int("failures", len(failures)).Msg("partial result not cached")
		default:
			if err := p.store.Set(q, items); err != nil {
				log.Warn().Err(err).Msg("failed to write cache entry")
			}
		}
	}

	if result.Items == nil {
		result.Items = []models.Item{}
	}
	Annotate(result.Items, q)
	Sort(result.Items)
	result.Elapsed = time.Since(start)

	log.Info().
		Str("origin", string(result.Origin)).
		Int("items", len(result.Items)).
		Int("failures", len(result.Failures)).
		Dur("elapsed", result.Elapsed).
		Msg("query loaded")
	return result, nil
}
