package database

import (
	"context"

	"gorm.io/gorm"
)

// DB is the broad connection-manager surface InstrumentedManager wraps.
// The grouping projection only ever needs the relational half (Get,
// GetShard); GetDocument/GetKV/GetVector exist for parity with other
// storage kinds this platform's adapters cover and are not exercised here.
type DB interface {
	Get(ctx context.Context) *gorm.DB
	GetShard(ctx context.Context, key string) (*gorm.DB, error)
	GetDocument(ctx context.Context) interface{}
	GetKV(ctx context.Context) interface{}
	GetVector(ctx context.Context) interface{}
	Close() error
}
