// Package store is the data access layer for the plugin catalog. It
// keeps SQL queries separate from the ingestion and distribution logic.
package store

import (
	"database/sql"
	"errors"
)

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// IsNotFound reports whether err means a lookup matched no row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func exists(row *sql.Row) (bool, error) {
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
