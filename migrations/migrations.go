package migrations

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *sql.DB and *sqlx.DB.
type Execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

var retryWait = 1 * time.Second

var mysqlStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price DECIMAL(14,2) NOT NULL,
		stock INT NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		total_amount DECIMAL(14,2) NOT NULL,
		shipping_fee DECIMAL(14,2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		shipping_address TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_orders_user_id (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id VARCHAR(64) PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		price DECIMAL(14,2) NOT NULL,
		INDEX idx_order_items_order_id (order_id),
		FOREIGN KEY (order_id) REFERENCES orders(id)
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id VARCHAR(64) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		views BIGINT NOT NULL DEFAULT 0
	)`,
}

var postgresStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price NUMERIC(14,2) NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		total_amount NUMERIC(14,2) NOT NULL,
		shipping_fee NUMERIC(14,2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		payment_method VARCHAR(32) NOT NULL,
		shipping_address TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id VARCHAR(64) PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL REFERENCES orders(id),
		product_id VARCHAR(64) NOT NULL,
		quantity INTEGER NOT NULL,
		price NUMERIC(14,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items (order_id)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id VARCHAR(64) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		views BIGINT NOT NULL DEFAULT 0
	)`,
}

// AutoMigrate creates the storefront tables for driver if they do not exist,
// retrying each statement up to retries more times.
func AutoMigrate(driver string, retries int, db Execer) error {
	var statements []string
	switch driver {
	case "mysql":
		statements = mysqlStatements
	case "postgres":
		statements = postgresStatements
	default:
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	for i, query := range statements {
		_, err := db.Exec(query)
		for attempt := 1; err != nil && attempt <= retries; attempt++ {
			log.Warn().Err(err).Msgf("Retry %d: migration statement %d failed", attempt, i+1)
			time.Sleep(retryWait)
			_, err = db.Exec(query)
		}
		if err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	log.Info().Str("driver", driver).Int("statements", len(statements)).Msg("Migrations applied")
	return nil
}
