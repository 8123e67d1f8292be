package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openfactory/assetstream/pkg/logger"
)

// gormLogger bridges GORM's logger.Interface onto the platform's slog
// logger so query traces carry the same trace-correlated, redacted,
// sampled handler chain as everything else.
type gormLogger struct {
	level gormlogger.LogLevel
}

// NewGORMLogger returns a GORM logger that writes through logger.L().
func NewGORMLogger() gormlogger.Interface {
	return &gormLogger{level: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.L().InfoContext(ctx, msg, "args", args)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.L().WarnContext(ctx, msg, "args", args)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.L().ErrorContext(ctx, msg, "args", args)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	sql, rows := fc()
	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		logger.L().ErrorContext(ctx, "gorm query failed", "sql", sql, "rows", rows, "duration", elapsed, "error", err)
	case elapsed > 200*time.Millisecond && l.level >= gormlogger.Warn:
		logger.L().WarnContext(ctx, "slow gorm query", "sql", sql, "rows", rows, "duration", elapsed)
	case l.level >= gormlogger.Info:
		logger.L().DebugContext(ctx, "gorm query", "sql", sql, "rows", rows, "duration", elapsed)
	}
}
