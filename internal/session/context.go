package session

import (
	"sync"

	"github.com/openrover/drived/internal/model"
)

// Context holds the active drive session. The blackbox writers and command
// handlers read it concurrently with session start/end.
type Context struct {
	mu      sync.RWMutex
	Session *model.Session
}

// NewContext creates a new Context with no active session
func NewContext() *Context {
	return &Context{
		Session: &model.Session{SessionName: "No session active"},
	}
}

// GetSession returns the current session
func (c *Context) GetSession() *model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Session
}

// SetSession sets the current session
func (c *Context) SetSession(s *model.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session = s
}

// Active reports whether a session has been started and persisted.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Session != nil && c.Session.ID != 0
}

// Clear ends the current session.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session = &model.Session{SessionName: "No session active"}
}
