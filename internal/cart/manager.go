package cart

import (
	"context"
	"sync"
	"time"

	"storefront-service/internal/kv"
)

type trackedCart struct {
	cart      *Cart
	expiresAt time.Time
}

// Manager hands out carts per session. Once a cart degrades, the manager
// keeps the in-memory copy so later requests in the session see it instead
// of the stale persisted one. A kept cart is released ttl after its last
// mutation, the same lifetime a persisted cart gets.
type Manager struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	degraded map[string]trackedCart
}

func NewManager(store kv.Store, ttl time.Duration) *Manager {
	return &Manager{
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		degraded: make(map[string]trackedCart),
	}
}

func (m *Manager) Get(ctx context.Context, sessionID string) (*Cart, error) {
	m.mu.Lock()
	m.sweep()
	tracked, ok := m.degraded[sessionID]
	m.mu.Unlock()
	if ok {
		return tracked.cart, nil
	}
	return Load(ctx, m.store, sessionID, m.ttl)
}

// Track records c if it has degraded and extends its lifetime. Call it after
// every mutation.
func (m *Manager) Track(c *Cart) {
	if !c.Degraded() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded[c.SessionID()] = trackedCart{cart: c, expiresAt: m.now().Add(m.ttl)}
}

// Len returns the number of degraded carts currently kept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	return len(m.degraded)
}

// sweep drops expired carts. Callers hold m.mu.
func (m *Manager) sweep() {
	now := m.now()
	for sessionID, tracked := range m.degraded {
		if !now.Before(tracked.expiresAt) {
			delete(m.degraded, sessionID)
		}
	}
}
