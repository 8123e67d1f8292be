// Package sql defines the relational-database capability every
// pkg/database/sql/adapters/{driver} package implements over GORM.
package sql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/openfactory/assetstream/pkg/database"
)

// Config configures a relational database connection.
type Config struct {
	Driver database.Driver `env:"DB_DRIVER" env-default:"postgres"`

	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`
	SSLMode  string `env:"DB_SSLMODE" env-default:"disable"`

	SSLRootCert string `env:"DB_SSL_ROOT_CERT"`
	SSLCert     string `env:"DB_SSL_CERT"`
	SSLKey      string `env:"DB_SSL_KEY"`

	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"50"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
}

// SQL is the capability surface the grouping projection (pkg/grouping)
// depends on: a GORM handle, optionally resolved per shard key, and
// lifecycle control.
type SQL interface {
	// Get returns the primary database connection bound to ctx.
	Get(ctx context.Context) *gorm.DB

	// GetShard resolves the connection responsible for key. Single-instance
	// adapters return the primary connection unconditionally.
	GetShard(ctx context.Context, key string) (*gorm.DB, error)

	// Close releases all connections held by the adapter.
	Close() error
}
