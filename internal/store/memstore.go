package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Interceptor runs before every MemoryStore call; a non-nil error fails the call
// without touching the data.
type Interceptor func(op, table string, filter Filter) error

// MemoryStore is an in-process Store with the same matching and patch semantics
// as SQLStore. It backs local runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	tables      map[string][]Row
	faults      map[string]error
	interceptor Interceptor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Row),
		faults: make(map[string]error),
	}
}

// FailOn makes every op on table return err until ClearFaults is called.
func (m *MemoryStore) FailOn(op, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op+":"+table] = err
}

// Intercept installs fn as the interceptor, replacing any previous one.
func (m *MemoryStore) Intercept(fn Interceptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interceptor = fn
}

func (m *MemoryStore) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[string]error)
	m.interceptor = nil
}

// Rows returns a copy of every row in table.
func (m *MemoryStore) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Seed appends rows to table without validation or fault checks.
func (m *MemoryStore) Seed(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], copyRow(r))
	}
}

func (m *MemoryStore) fault(op, table string, filter Filter) error {
	if err, ok := m.faults[op+":"+table]; ok {
		return err
	}
	if m.interceptor != nil {
		return m.interceptor(op, table, filter)
	}
	return nil
}

func (m *MemoryStore) Select(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(err, OpSelect, table)
	}
	if err := validateIdentifier(table); err != nil {
		return nil, wrapError(err, OpSelect, table)
	}
	if err := validateFilter(filter); err != nil {
		return nil, wrapError(err, OpSelect, table)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpSelect, table, filter); err != nil {
		return nil, wrapError(err, OpSelect, table)
	}

	var out []Row
	for _, r := range m.tables[table] {
		if matches(r, filter) {
			out = append(out, copyRow(r))
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := m.InsertMany(ctx, table, []Row{row}); err != nil {
		return nil, err
	}
	return copyRow(row), nil
}

func (m *MemoryStore) InsertMany(ctx context.Context, table string, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return wrapError(err, OpInsert, table)
	}
	if len(rows) == 0 {
		return nil
	}
	// Reuse the SQL builder for identical validation.
	if _, _, err := buildInsert(table, rows); err != nil {
		return wrapError(err, OpInsert, table)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpInsert, table, nil); err != nil {
		return wrapError(err, OpInsert, table)
	}
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], copyRow(r))
	}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, table string, filter Filter, patch Patch) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapError(err, OpUpdate, table)
	}
	if _, _, err := buildUpdate(table, filter, patch); err != nil {
		return 0, wrapError(err, OpUpdate, table)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpUpdate, table, filter); err != nil {
		return 0, wrapError(err, OpUpdate, table)
	}

	var affected int64
	for _, r := range m.tables[table] {
		if !matches(r, filter) {
			continue
		}
		for col, v := range patch {
			if inc, ok := v.(Increment); ok {
				r[col] = addDelta(r[col], inc.Delta)
				continue
			}
			r[col] = v
		}
		affected++
	}
	return affected, nil
}

func matches(r Row, filter Filter) bool {
	for _, c := range filter {
		cmp, ok := compareValues(r[c.Field], c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case "=":
			ok = cmp == 0
		case "!=":
			ok = cmp != 0
		case "<":
			ok = cmp < 0
		case "<=":
			ok = cmp <= 0
		case ">":
			ok = cmp > 0
		case ">=":
			ok = cmp >= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

func compareValues(a, b interface{}) (int, bool) {
	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Cmp(db), true
		}
		return 0, false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		return 1, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Zero, false
}

func addDelta(current interface{}, delta int64) interface{} {
	switch n := current.(type) {
	case int:
		return int64(n) + delta
	case int32:
		return int64(n) + delta
	case int64:
		return n + delta
	case float64:
		return n + float64(delta)
	case decimal.Decimal:
		return n.Add(decimal.NewFromInt(delta))
	case nil:
		return delta
	}
	return current
}
