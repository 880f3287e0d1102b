package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// SQLStore implements Store over a MySQL or PostgreSQL connection pool.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Connect opens a pool for driver ("mysql" or "postgres") and pings it,
// retrying up to attempts times before giving up.
func Connect(driver, dsn string, attempts int, wait time.Duration) (*sqlx.DB, error) {
	if attempts < 1 {
		attempts = 1
	}

	var db *sqlx.DB
	var err error
	for i := 0; i < attempts; i++ {
		db, err = sqlx.Connect(driver, dsn)
		if err == nil {
			log.Info().Str("driver", driver).Msg("Connected to remote store")
			return db, nil
		}
		log.Warn().Err(err).Msgf("Retry %d: failed to connect to %s store", i+1, driver)
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("failed to connect to %s store after %d attempts: %w", driver, attempts, err)
}

func (s *SQLStore) Select(ctx context.Context, table string, filter Filter) ([]Row, error) {
	query, args, err := buildSelect(table, filter)
	if err != nil {
		return nil, wrapError(err, OpSelect, table)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, wrapError(err, OpSelect, table)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		raw := make(map[string]interface{})
		if err := rows.MapScan(raw); err != nil {
			return nil, wrapError(err, OpSelect, table)
		}
		result = append(result, normalizeRow(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err, OpSelect, table)
	}
	return result, nil
}

func (s *SQLStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	query, args, err := buildInsert(table, []Row{row})
	if err != nil {
		return nil, wrapError(err, OpInsert, table)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return nil, wrapError(err, OpInsert, table)
	}
	return copyRow(row), nil
}

func (s *SQLStore) InsertMany(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := buildInsert(table, rows)
	if err != nil {
		return wrapError(err, OpInsert, table)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return wrapError(err, OpInsert, table)
}

func (s *SQLStore) Update(ctx context.Context, table string, filter Filter, patch Patch) (int64, error) {
	query, args, err := buildUpdate(table, filter, patch)
	if err != nil {
		return 0, wrapError(err, OpUpdate, table)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, wrapError(err, OpUpdate, table)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapError(err, OpUpdate, table)
	}
	return affected, nil
}

func buildWhere(filter Filter) (string, []interface{}) {
	if len(filter) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filter))
	args := make([]interface{}, 0, len(filter))
	for _, c := range filter {
		clauses = append(clauses, fmt.Sprintf("%s %s ?", c.Field, c.Operator))
		args = append(args, c.Value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildSelect(table string, filter Filter) (string, []interface{}, error) {
	if err := validateIdentifier(table); err != nil {
		return "", nil, err
	}
	if err := validateFilter(filter); err != nil {
		return "", nil, err
	}
	where, args := buildWhere(filter)
	return "SELECT * FROM " + table + where, args, nil
}

// buildInsert renders one multi-row INSERT; every row must carry the columns of the first.
func buildInsert(table string, rows []Row) (string, []interface{}, error) {
	if err := validateIdentifier(table); err != nil {
		return "", nil, err
	}
	cols := sortedColumns(rows[0])
	for _, c := range cols {
		if err := validateIdentifier(c); err != nil {
			return "", nil, err
		}
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	groups := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*len(cols))
	for _, row := range rows {
		if len(row) != len(cols) {
			return "", nil, ErrColumnMismatch
		}
		for _, c := range cols {
			v, ok := row[c]
			if !ok {
				return "", nil, ErrColumnMismatch
			}
			args = append(args, v)
		}
		groups = append(groups, placeholders)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(groups, ", "))
	return query, args, nil
}

func buildUpdate(table string, filter Filter, patch Patch) (string, []interface{}, error) {
	if err := validateIdentifier(table); err != nil {
		return "", nil, err
	}
	if len(patch) == 0 {
		return "", nil, ErrEmptyPatch
	}
	if len(filter) == 0 {
		return "", nil, ErrEmptyFilter
	}
	if err := validateFilter(filter); err != nil {
		return "", nil, err
	}

	cols := sortedColumns(patch)
	sets := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols)+len(filter))
	for _, c := range cols {
		if err := validateIdentifier(c); err != nil {
			return "", nil, err
		}
		switch v := patch[c].(type) {
		case Increment:
			sets = append(sets, fmt.Sprintf("%s = %s + ?", c, c))
			args = append(args, v.Delta)
		default:
			sets = append(sets, c+" = ?")
			args = append(args, v)
		}
	}

	where, whereArgs := buildWhere(filter)
	args = append(args, whereArgs...)
	return fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where), args, nil
}

// normalizeRow turns driver byte slices into strings so rows compare the same across drivers.
func normalizeRow(raw map[string]interface{}) Row {
	row := make(Row, len(raw))
	for k, v := range raw {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
			continue
		}
		row[k] = v
	}
	return row
}
