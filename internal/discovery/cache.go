package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/santoshpalla27/topograph/internal/provider"
)

// RuleCache memoizes security group rule sets for the lifetime of one discovery run.
// Concurrent requests for the same group share a single provider call.
type RuleCache struct {
	provider provider.Provider

	mu      sync.Mutex
	entries map[string]*ruleEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type ruleEntry struct {
	done  chan struct{}
	rules *provider.SecurityGroupRules
	err   error
}

// NewRuleCache returns an empty cache backed by p.
func NewRuleCache(p provider.Provider) *RuleCache {
	return &RuleCache{
		provider: p,
		entries:  make(map[string]*ruleEntry),
	}
}

// Get returns the rules of groupID, fetching them at most once per cache.
// Context errors are not cached. A waiter whose own context is still live when the
// fetching caller gives up takes over the fetch instead of inheriting that error.
func (c *RuleCache) Get(ctx context.Context, groupID string) (*provider.SecurityGroupRules, error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[groupID]
		if !ok {
			e = &ruleEntry{done: make(chan struct{})}
			c.entries[groupID] = e
			c.mu.Unlock()
			c.misses.Add(1)
			return c.fetch(ctx, groupID, e)
		}
		c.mu.Unlock()

		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if isContextError(e.err) && ctx.Err() == nil {
			continue
		}
		c.hits.Add(1)
		return e.rules, e.err
	}
}

func (c *RuleCache) fetch(ctx context.Context, groupID string, e *ruleEntry) (*provider.SecurityGroupRules, error) {
	e.rules, e.err = c.provider.SecurityGroupRules(ctx, groupID)
	if isContextError(e.err) {
		c.mu.Lock()
		delete(c.entries, groupID)
		c.mu.Unlock()
	}
	close(e.done)
	return e.rules, e.err
}

func isContextError(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// Stats reports cache hits and misses so far.
func (c *RuleCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
