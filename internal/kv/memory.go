package kv

import (
	"context"
	"sync"
	"time"
)

const (
	OpGet   = "GET"
	OpSet   = "SET"
	OpSetNX = "SETNX"
	OpDel   = "DEL"
)

type entry struct {
	value     string
	expiresAt time.Time
}

type fault struct {
	err       error
	remaining int
}

// MemoryStore is an in-process Store for local runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]entry
	faults map[string]*fault
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]entry),
		faults: make(map[string]*fault),
		now:    time.Now,
	}
}

// FailOn makes op fail with err. times <= 0 fails every call until ClearFaults.
func (m *MemoryStore) FailOn(op string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if times <= 0 {
		times = -1
	}
	m.faults[op] = &fault{err: err, remaining: times}
}

func (m *MemoryStore) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[string]*fault)
}

func (m *MemoryStore) fault(op string) error {
	f, ok := m.faults[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(m.faults, op)
		}
	}
	return f.err
}

func (m *MemoryStore) lookup(key string) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return entry{}, false
	}
	return e, true
}

func (m *MemoryStore) put(key, value string, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = e
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpGet); err != nil {
		return "", err
	}
	e, ok := m.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpSet); err != nil {
		return err
	}
	m.put(key, value, ttl)
	return nil
}

func (m *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpSetNX); err != nil {
		return false, err
	}
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

func (m *MemoryStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpDel); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}
