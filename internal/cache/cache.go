package cache

import (
	"sync"

	"github.com/openrover/drived/pkg/drive"
)

// SnapshotCache holds the most recent controller snapshot so status commands
// and the live stream can read loop state without touching the controller.
// The control loop writes here every tick, so reads must stay cheap.
type SnapshotCache struct {
	m    sync.Mutex
	last drive.Snapshot
	set  bool
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{}
}

// Put stores the latest snapshot.
func (c *SnapshotCache) Put(s drive.Snapshot) {
	c.m.Lock()
	defer c.m.Unlock()
	c.last = s
	c.set = true
}

// Get returns the latest snapshot. ok is false until the first tick lands.
func (c *SnapshotCache) Get() (drive.Snapshot, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.last, c.set
}

// Reset clears the cache, used when a session ends.
func (c *SnapshotCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.last = drive.Snapshot{}
	c.set = false
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
