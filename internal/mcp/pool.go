package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/log"
)

// Pool caches live adapters keyed by a composite id so that
// repeated resolution within a build reuses connections rather
// than reconnecting. Adapters are shared across concurrent
// agent constructions and are not owned by any one execution.
type Pool struct {
	mu       sync.Mutex
	adapters map[string]*Adapter
}

// NewPool returns an empty adapter pool.
func NewPool() *Pool {
	return &Pool{adapters: make(map[string]*Adapter)}
}

var defaultPool = NewPool()

// DefaultPool returns the process-wide adapter pool.
func DefaultPool() *Pool {
	return defaultPool
}

// Key builds the composite pool key for an agent/server pair.
func Key(agentKey string, server *models.MCPServer) string {
	return fmt.Sprintf("%s:%s", agentKey, server.ID)
}

// Get returns the pooled adapter for the key, connecting one if
// absent. The critical section covers the connect so concurrent
// callers for the same key share a single connection attempt.
func (p *Pool) Get(ctx context.Context, key string, server *models.MCPServer, opts ConnectOptions) (*Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.adapters[key]; ok {
		return a, nil
	}

	a, err := Connect(ctx, server, opts)
	if err != nil {
		return nil, err
	}

	p.adapters[key] = a
	log.Debug("mcp adapter pooled", "key", key, "server", server.Name, "tools", len(a.Tools()))

	return a, nil
}

// Release drops the adapter for the key, if present.
func (p *Pool) Release(key string) {
	p.mu.Lock()
	delete(p.adapters, key)
	p.mu.Unlock()
}

// Size returns the number of pooled adapters.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.adapters)
}

// Shutdown clears the pool.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.adapters = make(map[string]*Adapter)
	p.mu.Unlock()
}
