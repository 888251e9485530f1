package reconcile

import (
	"sync"
)

// Claims records which source file owns each destination path during one
// run. All methods are goroutine-safe.
type Claims struct {
	mu     sync.Mutex
	owners map[string]string // destination → source
}

func NewClaims() *Claims {
	return &Claims{owners: make(map[string]string)}
}

// Claim gives dest to src unless another source already holds it.
func (c *Claims) Claim(src, dest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[dest]
	if ok && owner != src {
		return false
	}
	c.owners[dest] = src
	return true
}

// Owner returns the source that claimed dest, if any.
func (c *Claims) Owner(dest string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.owners[dest]
	return o, ok
}
