// Package cart holds the per-session shopping selection: product id to
// quantity, never prices.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-service/internal/kv"
)

// SchemaVersion is written into every persisted envelope. Envelopes with any
// other version are discarded on load.
const SchemaVersion = 1

const keyPrefix = "storefront:cart:"

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var (
	// ErrPersistenceDegraded means the cart could not be saved after one retry.
	// The in-memory state is intact and keeps working for the session.
	ErrPersistenceDegraded = errors.New("cart persistence degraded")
	ErrUnknownPrice        = errors.New("no price for product")
)

type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PriceLookup supplies the current price of a product.
type PriceLookup func(productID string) (decimal.Decimal, error)

type envelope struct {
	Version   int            `json:"version"`
	Items     map[string]int `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Cart struct {
	mu        sync.Mutex
	sessionID string
	items     map[string]int
	store     kv.Store
	ttl       time.Duration
	degraded  bool
	now       func() time.Time
}

func Key(sessionID string) string {
	return keyPrefix + sessionID
}

// New returns an empty cart bound to sessionID without reading storage.
func New(store kv.Store, sessionID string, ttl time.Duration) *Cart {
	return &Cart{
		sessionID: sessionID,
		items:     make(map[string]int),
		store:     store,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Load reads the persisted cart for sessionID. A missing, undecodable or
// foreign-version envelope yields an empty cart.
func Load(ctx context.Context, store kv.Store, sessionID string, ttl time.Duration) (*Cart, error) {
	c := New(store, sessionID, ttl)

	raw, err := store.Get(ctx, Key(sessionID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return c, nil
		}
		logger.Error().Err(err).Msgf("Error loading cart for session %s", sessionID)
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("Discarding undecodable cart")
		return c, nil
	}
	if env.Version != SchemaVersion {
		logger.Warn().Str("session_id", sessionID).Int("version", env.Version).Msg("Discarding cart with unsupported schema version")
		return c, nil
	}

	for productID, qty := range env.Items {
		if qty > 0 {
			c.items[productID] = qty
		}
	}
	return c, nil
}

func (c *Cart) SessionID() string {
	return c.sessionID
}

// Degraded reports whether the cart has stopped persisting.
func (c *Cart) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// SetQuantity replaces the quantity of productID. qty <= 0 removes the entry.
func (c *Cart) SetQuantity(ctx context.Context, productID string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if qty <= 0 {
		delete(c.items, productID)
	} else {
		c.items[productID] = qty
	}
	return c.persist(ctx)
}

// Add increases the quantity of productID by qty, capped at knownStock.
func (c *Cart) Add(ctx context.Context, productID string, qty, knownStock int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.items[productID] + qty
	if next > knownStock {
		next = knownStock
	}
	if next <= 0 {
		delete(c.items, productID)
	} else {
		c.items[productID] = next
	}
	return c.persist(ctx)
}

func (c *Cart) Remove(ctx context.Context, productID string) error {
	return c.SetQuantity(ctx, productID, 0)
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]int)
	return c.persist(ctx)
}

// Quantity returns the quantity held for productID, 0 if absent.
func (c *Cart) Quantity(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[productID]
}

// Items returns the entries ordered by product id.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, 0, len(c.items))
	for productID, qty := range c.items {
		out = append(out, Item{ProductID: productID, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Total sums qty × lookup(productID) over every entry.
func (c *Cart) Total(lookup PriceLookup) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range c.Items() {
		price, err := lookup(item.ProductID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w %s: %v", ErrUnknownPrice, item.ProductID, err)
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total, nil
}

// persist writes the full mapping, retrying once. Callers hold c.mu.
func (c *Cart) persist(ctx context.Context) error {
	if c.degraded {
		return nil
	}

	payload, err := json.Marshal(envelope{
		Version:   SchemaVersion,
		Items:     c.items,
		UpdatedAt: c.now().UTC(),
	})
	if err != nil {
		return err
	}

	for attempt := 1; attempt <= 2; attempt++ {
		err = c.store.Set(ctx, Key(c.sessionID), string(payload), c.ttl)
		if err == nil {
			return nil
		}
		logger.Warn().Err(err).Msgf("Attempt %d: failed to persist cart for session %s", attempt, c.sessionID)
	}

	c.degraded = true
	logger.Error().Err(err).Str("session_id", c.sessionID).Msg("Cart persistence degraded, keeping cart in memory")
	return fmt.Errorf("%w: %v", ErrPersistenceDegraded, err)
}
