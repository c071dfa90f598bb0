package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/astrolabe-io/astrolabe/internal/config"
	"github.com/astrolabe-io/astrolabe/internal/storage"
)

const defaultMigrationTable = "schema_migrations"

var (
	// ErrDatabaseURLEmpty is returned when DATABASE_URL is not set.
	ErrDatabaseURLEmpty = errors.New("DATABASE_URL cannot be empty")
	// ErrMigrationTableEmpty is returned when MIGRATION_TABLE resolves to an empty name.
	ErrMigrationTableEmpty = errors.New("MIGRATION_TABLE cannot be empty")
	// ErrMigrationsPathMissing is returned when MIGRATIONS_PATH names a missing directory.
	ErrMigrationsPathMissing = errors.New("migrations directory does not exist")
)

// Config holds all configuration for the migration tool.
type Config struct {
	databaseURL string

	// MigrationsPath optionally replaces the embedded schema with a directory
	// on disk. Empty selects the embedded schema.
	MigrationsPath string

	// MigrationTable is the name of the table to track migrations.
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		databaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationsPath: config.GetEnvStr("MIGRATIONS_PATH", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", defaultMigrationTable),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid and resolves MigrationsPath.
func (c *Config) Validate() error {
	if c.databaseURL == "" {
		return ErrDatabaseURLEmpty
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableEmpty
	}

	if c.MigrationsPath == "" {
		return nil
	}

	absPath, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	c.MigrationsPath = absPath

	if info, err := os.Stat(c.MigrationsPath); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMigrationsPathMissing, c.MigrationsPath)
	}

	return nil
}

// MaskDatabaseURL returns DATABASE_URL with its password masked.
func (c *Config) MaskDatabaseURL() string {
	return storage.NewPostgresConfig(c.databaseURL).MaskDatabaseURL()
}

// String returns a string representation of the configuration (safe for logging).
func (c *Config) String() string {
	source := c.MigrationsPath
	if source == "" {
		source = "embedded"
	}

	return fmt.Sprintf("Config{DatabaseURL: %s, Migrations: %s, MigrationTable: %s}",
		c.MaskDatabaseURL(), source, c.MigrationTable)
}
