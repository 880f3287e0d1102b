package entity

import "github.com/shopspring/decimal"

// Product is the authoritative catalog record owned by the remote store.
// Anything the storefront holds is a snapshot of it.
type Product struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	Active bool            `json:"active"`
}

/*
Schema for products table:
CREATE TABLE products (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	price DECIMAL(14,2) NOT NULL,
	stock INT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE
);
*/
