package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/intellicloud/netsentry/pkg/models"
)

// PostgresStore implements AlertStore and Blocklist on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying pool for components that share it.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateAlert inserts one alert and returns its assigned id.
func (s *PostgresStore) CreateAlert(clientID *int64, ruleID, severity, title string, details models.FlowEvent) (int64, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}

	var id int64
	err = s.db.QueryRow(`
		INSERT INTO alerts (client_id, rule_id, severity, title, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, clientID, ruleID, severity, title, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create alert: %w", err)
	}
	return id, nil
}

// BlockIP inserts a blocklist entry; inserting an existing
// (client_id, ip_address) pair is a no-op.
func (s *PostgresStore) BlockIP(clientID *int64, ip, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO ip_blocklist (client_id, ip_address, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, clientID, ip, reason)
	if err != nil {
		return fmt.Errorf("block ip: %w", err)
	}
	return nil
}

// IsIPBlocked reports whether ip appears in the blocklist for any client.
func (s *PostgresStore) IsIPBlocked(ip string) (bool, error) {
	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM ip_blocklist
		WHERE ip_address = $1
		LIMIT 1
	`, ip).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blocklist lookup: %w", err)
	}
	return true, nil
}
