package config

import (
	"fmt"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	if cfg.Database.Driver == DriverSQLite {
		// A single writer connection; transactions queue on it instead of failing with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	// Create tables if they don't exist
	if err := createTables(db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB, driver string) error {
	serial := "BIGSERIAL PRIMARY KEY"
	if driver == DriverSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	tables := []string{
		// Users hold the balance; the CHECK keeps it non-negative
		`CREATE TABLE IF NOT EXISTS users (
			id {{serial}},
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			password VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			last_withdrawal BIGINT NOT NULL,
			birthday VARCHAR(10),
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rarities (
			value INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			colour INTEGER NOT NULL DEFAULT 0,
			weight DOUBLE PRECISION NOT NULL CHECK (weight >= 0),
			refund BIGINT NOT NULL DEFAULT 0,
			upgrade_cost BIGINT,
			auto_upgrade BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS batches (
			name VARCHAR(255) PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			image_url TEXT,
			series VARCHAR(255) NOT NULL,
			rarity INTEGER NOT NULL REFERENCES rarities(value),
			batch VARCHAR(255) NOT NULL REFERENCES batches(name)
		)`,
		`CREATE TABLE IF NOT EXISTS packs (
			name VARCHAR(255) PRIMARY KEY,
			cost BIGINT NOT NULL CHECK (cost >= 0),
			description TEXT NOT NULL DEFAULT '',
			start_date VARCHAR(10) NOT NULL,
			end_date VARCHAR(10)
		)`,
		`CREATE TABLE IF NOT EXISTS batch_in_pack (
			pack VARCHAR(255) NOT NULL REFERENCES packs(name) ON DELETE CASCADE,
			batch VARCHAR(255) NOT NULL REFERENCES batches(name) ON DELETE CASCADE,
			rarity INTEGER NOT NULL REFERENCES rarities(value),
			weight DOUBLE PRECISION NOT NULL CHECK (weight >= 0),
			PRIMARY KEY (pack, batch, rarity)
		)`,
		// A user owns at most one waifu per character
		`CREATE TABLE IF NOT EXISTS waifus (
			id {{serial}},
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			character_id BIGINT NOT NULL REFERENCES characters(id),
			rarity INTEGER NOT NULL REFERENCES rarities(value),
			UNIQUE (user_id, character_id)
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(strings.ReplaceAll(table, "{{serial}}", serial)); err != nil {
			return err
		}
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_waifus_user_id ON waifus(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_characters_batch ON characters(batch)",
		"CREATE INDEX IF NOT EXISTS idx_batch_in_pack_pack_rarity ON batch_in_pack(pack, rarity)",
	}

	for _, idx := range indexes {
		_, err := db.Exec(idx)
		if err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
