package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Row accessors accept the value shapes produced by the mysql and postgres
// drivers as well as the Go values kept by MemoryStore.

func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) Int(col string) (int64, error) {
	switch v := r[col].(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case decimal.Decimal:
		return v.IntPart(), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case nil:
		return 0, fmt.Errorf("column %s is null", col)
	default:
		return 0, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func (r Row) Decimal(col string) (decimal.Decimal, error) {
	switch v := r[col].(type) {
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	case []byte:
		return decimal.NewFromString(string(v))
	case nil:
		return decimal.Zero, fmt.Errorf("column %s is null", col)
	default:
		return decimal.Zero, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func (r Row) Bool(col string) (bool, error) {
	switch v := r[col].(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		return strconv.ParseBool(v)
	case []byte:
		return strconv.ParseBool(string(v))
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func (r Row) Time(col string) (time.Time, error) {
	switch v := r[col].(type) {
	case time.Time:
		return v, nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
