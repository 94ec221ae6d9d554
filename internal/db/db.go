// Package db opens the Postgres connection.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/unclebandit/outreach-engine/internal/config"
)

func Open(cfg *config.Config) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}
