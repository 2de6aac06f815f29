// Package testutil provides testing utilities for the scan service.
// It includes a testcontainers PostgreSQL setup with the production
// schema and fixture helpers for the domain entities.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "scanflow_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "scanflow_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateSchema creates the production schema used by the scan service
func (c *PostgresContainer) CreateSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS reference_products (
			id TEXT PRIMARY KEY,
			internal_code TEXT NOT NULL UNIQUE,
			client_code TEXT UNIQUE,
			revision_index TEXT NOT NULL DEFAULT '',
			packaging_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS production_lines (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			line_type TEXT NOT NULL DEFAULT '',
			throughput_target INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS production_orders (
			id TEXT PRIMARY KEY,
			order_number TEXT NOT NULL UNIQUE,
			reference_id TEXT NOT NULL REFERENCES reference_products(id),
			total_quantity DOUBLE PRECISION NOT NULL CHECK (total_quantity >= 1),
			status TEXT NOT NULL DEFAULT 'EN_COURS',
			line_id TEXT REFERENCES production_lines(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS handling_units (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES production_orders(id),
			unit_number TEXT NOT NULL,
			planned_quantity DOUBLE PRECISION NOT NULL,
			actual_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'A_SCANNER',
			quality TEXT NOT NULL DEFAULT 'EN_ATTENTE',
			forced BOOLEAN NOT NULL DEFAULT false,
			forced_justification TEXT,
			scanned_at TIMESTAMPTZ,
			operator_id TEXT,
			sequence_counter INTEGER NOT NULL DEFAULT 0,
			comment TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (order_id, unit_number)
		);

		CREATE TABLE IF NOT EXISTS scan_history (
			id TEXT PRIMARY KEY,
			order_id TEXT REFERENCES production_orders(id),
			handling_unit_id TEXT REFERENCES handling_units(id),
			scanned_reference TEXT NOT NULL DEFAULT '',
			scanned_quantity TEXT NOT NULL DEFAULT '',
			scanned_quality TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL,
			error_type TEXT NOT NULL DEFAULT 'AUCUNE',
			forced BOOLEAN NOT NULL DEFAULT false,
			comment TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL DEFAULT '{}',
			operator_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS reference_sequences (
			reference_id TEXT PRIMARY KEY REFERENCES reference_products(id),
			last_value INTEGER NOT NULL DEFAULT 0
		);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// TruncateAll empties every table between tests
func (c *PostgresContainer) TruncateAll(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE scan_history, reference_sequences, handling_units,
			production_orders, production_lines, reference_products CASCADE
	`)
	return err
}
