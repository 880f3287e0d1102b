// Package store is the request/response client for the remote tabular data service.
// No call is part of a transaction with any other call.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Operation names used in OpError and fault injection.
const (
	OpSelect = "SELECT"
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
)

var (
	ErrInvalidIdentifier   = errors.New("invalid table or column name")
	ErrUnsupportedOperator = errors.New("unsupported filter operator")
	ErrEmptyPatch          = errors.New("update patch is empty")
	ErrEmptyFilter         = errors.New("update without filter is not allowed")
	ErrColumnMismatch      = errors.New("rows in a batch insert must share the same columns")
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var supportedOperators = map[string]bool{
	"=":  true,
	"!=": true,
	"<":  true,
	"<=": true,
	">":  true,
	">=": true,
}

// Row is a single record keyed by column name.
type Row map[string]interface{}

// Condition compares one column against a value.
type Condition struct {
	Field    string
	Operator string
	Value    interface{}
}

// Filter is a conjunction of conditions. An empty filter matches every row.
type Filter []Condition

func Eq(field string, value interface{}) Condition  { return Condition{field, "=", value} }
func Gte(field string, value interface{}) Condition { return Condition{field, ">=", value} }
func Lt(field string, value interface{}) Condition  { return Condition{field, "<", value} }

// Patch maps columns to new values. A value of type Increment is applied
// relative to the stored value inside the same statement.
type Patch map[string]interface{}

// Increment adjusts a numeric column by Delta as part of an update.
type Increment struct {
	Delta int64
}

// Add returns an Increment patch value.
func Add(delta int64) Increment {
	return Increment{Delta: delta}
}

// Store is the minimum surface the storefront needs from the remote data service.
type Store interface {
	Select(ctx context.Context, table string, filter Filter) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// InsertMany writes all rows in one statement: either every row is stored or none is.
	InsertMany(ctx context.Context, table string, rows []Row) error
	// Update returns the number of rows matched by filter.
	Update(ctx context.Context, table string, filter Filter, patch Patch) (int64, error)
}

// OpError carries the operation and table a remote call failed on.
type OpError struct {
	Op    string
	Table string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s [operation=%s, table=%s]", e.Err.Error(), e.Op, e.Table)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func wrapError(err error, op, table string) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, Table: table, Err: err}
}

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

func validateFilter(filter Filter) error {
	for _, c := range filter {
		if err := validateIdentifier(c.Field); err != nil {
			return err
		}
		if !supportedOperators[c.Operator] {
			return fmt.Errorf("%w: %q", ErrUnsupportedOperator, c.Operator)
		}
	}
	return nil
}

// sortedColumns returns the keys of m in a stable order so generated SQL is deterministic.
func sortedColumns(m map[string]interface{}) []string {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
