package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/config"
)

// Backend names a persistence implementation.
type Backend string

// Supported backends.
const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendREST     Backend = "rest"
)

const (
	defaultSQLitePath      = "astrolabe.db"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultRESTTimeout     = 30 * time.Second
	defaultRESTRPS         = 10.0
	defaultMigrationTable  = "schema_migrations"

	visibleKeyChars = 4
	minMaskableKey  = 16
)

var (
	// ErrDatabaseURLEmpty is returned when the postgres backend has no database url.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")
	// ErrSQLitePathEmpty is returned when the sqlite backend has no file path.
	ErrSQLitePathEmpty = errors.New("sqlite path cannot be empty")
	// ErrRESTURLEmpty is returned when the rest backend has no base url.
	ErrRESTURLEmpty = errors.New("rest URL cannot be empty")
	// ErrRESTKeyEmpty is returned when the rest backend has no api key.
	ErrRESTKeyEmpty = errors.New("rest API key cannot be empty")
	// ErrUnknownBackend is returned for an unrecognised ASTROLABE_BACKEND value.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Config selects a backend and carries the settings for all of them.
type Config struct {
	Backend Backend

	// SQLite
	SQLitePath string

	// PostgreSQL
	databaseURL     string
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of connections
	ConnMaxIdleTime time.Duration // Maximum idle time for connections
	MigrationTable  string        // golang-migrate version table
	AutoMigrate     bool          // Apply embedded migrations when the store opens

	// REST (PostgREST-compatible hosted database)
	RESTURL               string
	restKey               string
	RESTTimeout           time.Duration
	RESTRequestsPerSecond float64
}

// LoadConfig loads storage configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Backend:               Backend(strings.ToLower(config.GetEnvStr("ASTROLABE_BACKEND", string(BackendSQLite)))),
		SQLitePath:            config.GetEnvStr("SQLITE_PATH", defaultSQLitePath),
		databaseURL:           config.GetEnvStr("DATABASE_URL", ""), // Private, may carry credentials.
		MaxOpenConns:          config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:          config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime:       config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime:       config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		MigrationTable:        config.GetEnvStr("MIGRATION_TABLE", defaultMigrationTable),
		AutoMigrate:           config.GetEnvBool("ASTROLABE_AUTO_MIGRATE", false),
		RESTURL:               strings.TrimRight(config.GetEnvStr("SUPABASE_URL", ""), "/"),
		restKey:               config.GetEnvStr("SUPABASE_KEY", ""),
		RESTTimeout:           config.GetEnvDuration("SUPABASE_TIMEOUT", defaultRESTTimeout),
		RESTRequestsPerSecond: config.GetEnvFloat("SUPABASE_RPS", defaultRESTRPS),
	}
}

// NewSQLiteConfig returns a configuration for the embedded backend at path.
func NewSQLiteConfig(path string) *Config {
	return &Config{Backend: BackendSQLite, SQLitePath: path}
}

// NewPostgresConfig returns a configuration for the postgres backend with pool defaults.
func NewPostgresConfig(databaseURL string) *Config {
	return &Config{
		Backend:         BackendPostgres,
		databaseURL:     databaseURL,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
		MigrationTable:  defaultMigrationTable,
	}
}

// NewRESTConfig returns a configuration for the hosted REST backend.
func NewRESTConfig(baseURL, key string) *Config {
	return &Config{
		Backend:               BackendREST,
		RESTURL:               strings.TrimRight(baseURL, "/"),
		restKey:               key,
		RESTTimeout:           defaultRESTTimeout,
		RESTRequestsPerSecond: defaultRESTRPS,
	}
}

// Validate checks the settings required by the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return ErrSQLitePathEmpty
		}
	case BackendPostgres:
		if strings.TrimSpace(c.databaseURL) == "" {
			return ErrDatabaseURLEmpty
		}
	case BackendREST:
		if strings.TrimSpace(c.RESTURL) == "" {
			return ErrRESTURLEmpty
		}

		if strings.TrimSpace(c.restKey) == "" {
			return ErrRESTKeyEmpty
		}
	default:
		return fmt.Errorf("%w: %q (expected sqlite, postgres or rest)", ErrUnknownBackend, c.Backend)
	}

	return nil
}

// Target returns a log-safe description of where data is stored.
func (c *Config) Target() string {
	switch c.Backend {
	case BackendSQLite:
		return c.SQLitePath
	case BackendPostgres:
		return c.MaskDatabaseURL()
	case BackendREST:
		return c.RESTURL
	default:
		return ""
	}
}

// MaskDatabaseURL returns a masked databaseURL safe for logging.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	// Find the scheme separator
	schemeEnd := strings.Index(c.databaseURL, "://")
	if schemeEnd == -1 {
		return c.databaseURL
	}

	// The last @ separates userinfo from host
	afterScheme := c.databaseURL[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		return c.databaseURL
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		return c.databaseURL
	}

	username := userInfo[:colonIndex]
	if userInfo[colonIndex+1:] == "" {
		return c.databaseURL
	}

	return c.databaseURL[:schemeEnd] + "://" + username + ":***" + afterScheme[lastAtIndex:]
}

// MaskedRESTKey returns the REST api key masked for logging.
func (c *Config) MaskedRESTKey() string {
	return MaskKey(c.restKey)
}

// MaskKey masks a secret for logging. Keys of 16 characters or more keep their
// first and last four characters; shorter keys are masked completely.
func MaskKey(key string) string {
	if len(key) < minMaskableKey {
		return strings.Repeat("*", len(key))
	}

	return key[:visibleKeyChars] + strings.Repeat("*", len(key)-2*visibleKeyChars) + key[len(key)-visibleKeyChars:]
}
