// Package discovery infers typed relationships between cloud resources.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/santoshpalla27/topograph/internal/metrics"
	"github.com/santoshpalla27/topograph/internal/provider"
	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
)

const (
	DefaultWorkers          = 8
	DefaultExtractorTimeout = 10 * time.Second
	DefaultBudget           = 60 * time.Second
)

// Config bounds a discovery run. Zero values take the defaults above.
type Config struct {
	Workers          int           `yaml:"workers"`
	ExtractorTimeout time.Duration `yaml:"extractor_timeout"`
	Budget           time.Duration `yaml:"budget"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ExtractorTimeout <= 0 {
		c.ExtractorTimeout = DefaultExtractorTimeout
	}
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	return c
}

// Result is the outcome of one discovery run.
type Result struct {
	RunID         string             `json:"runId"`
	Relationships []api.Relationship `json:"relationships"`
	Stats         Stats              `json:"stats"`
	Failures      []Failure          `json:"failures,omitempty"`
}

// Stats summarizes a run.
type Stats struct {
	Resources  int `json:"resources"`
	Candidates int `json:"candidates"`
	Duplicates int `json:"duplicates"`
	Failures   int `json:"failures"`
	TimedOut   int `json:"timedOut"`
}

// Failure is a resource whose extractor contributed no edges because it failed.
type Failure struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// Engine runs the per-type extractors over a resource set.
type Engine struct {
	provider provider.Provider
	cfg      Config
	logger   zerolog.Logger
	metrics  *metrics.Collector
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the base logger. Runs add a run_id field.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records run metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// NewEngine creates an engine backed by p.
func NewEngine(p provider.Provider, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		provider: p,
		cfg:      cfg.withDefaults(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the state shared by every extractor of one discovery invocation.
type run struct {
	provider provider.Provider
	idx      *index
	rules    *RuleCache
}

type outcome struct {
	edges    []api.Relationship
	err      error
	timedOut bool
}

// Discover runs every extractor over all and returns the deduplicated edge set.
// A nil focus returns the whole graph; otherwise only edges touching focus are returned,
// though extraction always covers all so edges leaving the focus set are found.
// An error is returned only when ctx is cancelled; per-resource failures land in Result.Failures.
func (e *Engine) Discover(ctx context.Context, all, focus []api.Resource) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := e.logger.With().Str("run_id", runID).Logger()

	if err := ctx.Err(); err != nil {
		e.metrics.ObserveRun("cancelled", time.Since(start))
		return nil, fmt.Errorf("discovery run %s: %w", runID, err)
	}

	logger.Debug().
		Int("resources", len(all)).
		Int("focus", len(focus)).
		Msg("Starting relationship discovery")

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()

	rn := &run{
		provider: e.provider,
		idx:      newIndex(all),
		rules:    NewRuleCache(e.provider),
	}

	outcomes := make([]outcome, len(all))
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for i := range all {
		i := i
		g.Go(func() error {
			outcomes[i] = rn.extractWithTimeout(runCtx, i, e.cfg.ExtractorTimeout)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		e.metrics.ObserveRun("cancelled", time.Since(start))
		return nil, fmt.Errorf("discovery run %s: %w", runID, err)
	}

	result := &Result{
		RunID: runID,
		Stats: Stats{Resources: len(all)},
	}

	var candidates []api.Relationship
	for i, o := range outcomes {
		r := all[i]
		if o.err != nil {
			f := Failure{
				ResourceID:   r.ID,
				ResourceType: string(r.Type),
				Code:         failureCode(o),
				Message:      o.err.Error(),
			}
			result.Failures = append(result.Failures, f)
			result.Stats.Failures++
			reason := "error"
			if o.timedOut {
				result.Stats.TimedOut++
				reason = "timeout"
			}
			e.metrics.ExtractorFailed(string(r.Type), reason)
			logger.Warn().
				Str("resource_id", r.ID).
				Str("resource_type", string(r.Type)).
				Str("code", f.Code).
				Err(o.err).
				Msg("Extractor failed, resource contributes no relationships")
			continue
		}
		candidates = append(candidates, o.edges...)
	}

	assembly := Assemble(candidates, rn.idx.has)
	result.Stats.Candidates = len(candidates)
	result.Stats.Duplicates = assembly.Duplicates
	result.Relationships = FilterFocus(assembly.Relationships, focus)

	hits, misses := rn.rules.Stats()
	e.metrics.GroupLookups(hits, misses)
	for _, rel := range result.Relationships {
		e.metrics.AddRelationship(string(rel.Type))
	}
	e.metrics.ObserveRun("success", time.Since(start))

	logger.Info().
		Int("resources", len(all)).
		Int("relationships", len(result.Relationships)).
		Int("duplicates", assembly.Duplicates).
		Int("failures", result.Stats.Failures).
		Int("timed_out", result.Stats.TimedOut).
		Int64("group_cache_hits", hits).
		Int64("group_cache_misses", misses).
		Dur("duration", time.Since(start)).
		Msg("Relationship discovery complete")

	return result, nil
}

// extractWithTimeout runs one extractor under its own deadline. A panic or timeout is
// reported as a failed outcome so sibling extractors are unaffected.
func (rn *run) extractWithTimeout(ctx context.Context, pos int, timeout time.Duration) outcome {
	r := rn.idx.resources[pos]
	ctx, cancel := context.WithTimeout(provider.WithRegion(ctx, r.Region), timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: topoerrors.NewExtractionError(r.ID, fmt.Errorf("extractor panic: %v", p))}
			}
		}()
		edges, err := rn.extract(ctx, pos)
		done <- outcome{edges: edges, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() != nil {
			o.timedOut = true
		}
		return o
	case <-ctx.Done():
		return outcome{err: topoerrors.NewTimeoutError(r.ID), timedOut: true}
	}
}

func failureCode(o outcome) string {
	if o.timedOut {
		return topoerrors.ErrCodeExtractionTimeout
	}
	if code := topoerrors.Code(o.err); code != "" {
		return code
	}
	return topoerrors.ErrCodeExtractionFailed
}
