package types

import "sync"

// GenerationCounter is the process-wide map of TenantShardId to its current
// Generation. It is the only mechanism that makes object-storage deletions
// safe in the presence of a split-brain page server: a node holding a stale
// generation cannot convince the controller, via validate, that its pending
// deletes refer to live state.
type GenerationCounter struct {
	mu   sync.Mutex
	gens map[TenantShardId]Generation
}

// NewGenerationCounter returns an empty counter.
func NewGenerationCounter() *GenerationCounter {
	return &GenerationCounter{gens: make(map[TenantShardId]Generation)}
}

// Current returns the current generation for id, or InvalidGeneration if the
// shard has never been attached.
func (c *GenerationCounter) Current(id TenantShardId) Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id]
}

// Bump atomically advances id's generation and returns the new value.
func (c *GenerationCounter) Bump(id TenantShardId) Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.gens[id].Next()
	c.gens[id] = next
	return next
}

// Set forces id's generation to g, used when restoring from a persisted
// snapshot. It never moves the generation backward.
func (c *GenerationCounter) Set(id TenantShardId, g Generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g > c.gens[id] {
		c.gens[id] = g
	}
}

// Snapshot returns a copy of the whole counter map, for persistence.
func (c *GenerationCounter) Snapshot() map[TenantShardId]Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[TenantShardId]Generation, len(c.gens))
	for k, v := range c.gens {
		out[k] = v
	}
	return out
}
