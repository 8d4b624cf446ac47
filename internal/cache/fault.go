package cache

import "sync"

// FaultCache tracks consecutive fault counts per source. The controller
// increments on every failed actuator write and clears on success; the health
// monitor reads the streaks to decide when a backend is considered unhealthy.
type FaultCache struct {
	mu     sync.RWMutex
	faults map[string]int
}

// NewFaultCache creates a new FaultCache
func NewFaultCache() *FaultCache {
	return &FaultCache{
		faults: make(map[string]int),
	}
}

// Get retrieves the current consecutive fault count for a source
func (c *FaultCache) Get(source string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.faults[source]
}

// Inc increments the fault streak for a source and returns the new count
func (c *FaultCache) Inc(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[source]++
	return c.faults[source]
}

// Clear ends the fault streak for a source
func (c *FaultCache) Clear(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.faults, source)
}

// Reset clears all fault streaks
func (c *FaultCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = make(map[string]int)
}
