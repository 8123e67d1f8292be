// Package grouping implements the Grouping Strategy: resolving an asset
// identifier to its group, enumerating active groups, and materializing
// per-group derived streams over the grouping projection.
//
// Grounded on routing_layer/app/core/controller/grouping_strategy.py's
// UNSLevelGroupingStrategy, restated over a gorm-backed relational
// projection (pkg/database/sql) in place of a ksqlDB pull-query client —
// the SQL-like stream processor itself is out of scope (spec §1) and is
// modeled here as a plain table this strategy reads from and records
// derived-stream declarations into.
package grouping

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openfactory/assetstream/pkg/database/sql"
	"github.com/openfactory/assetstream/pkg/errors"
)

// Strategy is the capability set the Routing Controller depends on (spec
// §4.4). It is one of the two variation points in the platform (the other
// being the Deployment Backend); alternative implementations are
// pluggable behind this interface.
type Strategy interface {
	// GroupForAsset resolves assetUUID to its group name. found is false
	// when the asset has no row at the configured level.
	GroupForAsset(ctx context.Context, assetUUID string) (group string, found bool, err error)

	// AllGroups enumerates every distinct group value currently present
	// at the configured level.
	AllGroups(ctx context.Context) ([]string, error)

	// AssetsInGroup enumerates every asset currently mapped to group.
	AssetsInGroup(ctx context.Context, group string) ([]string, error)

	// CreateDerivedStream declares group's derived topic. Idempotent: a
	// no-op if the stream already exists.
	CreateDerivedStream(ctx context.Context, group string) error

	// RemoveDerivedStream tears down group's derived topic. Idempotent on
	// absent.
	RemoveDerivedStream(ctx context.Context, group string) error

	// IsReady reports whether the projection is reachable, with a reason
	// when it is not.
	IsReady(ctx context.Context) (bool, string)
}

// TopicName returns the per-group topic name convention (spec §6).
func TopicName(group string) string {
	return fmt.Sprintf("asset_stream_%s_topic", group)
}

// ConsumerGroupID returns the per-group consumer-group id convention (spec §6).
func ConsumerGroupID(group string) string {
	return fmt.Sprintf("asset_stream_%s_consumer_group", group)
}

// UNSLevelStrategy groups assets by one level of the unified namespace
// (site / area / workcenter / ...), resolved against a relational
// projection table.
type UNSLevelStrategy struct {
	db    sql.SQL
	level string
}

// New creates a UNSLevelStrategy grouping by level (e.g. "workcenter"),
// reading/writing through db.
func New(db sql.SQL, level string) *UNSLevelStrategy {
	return &UNSLevelStrategy{db: db, level: level}
}

func (s *UNSLevelStrategy) GroupForAsset(ctx context.Context, assetUUID string) (string, bool, error) {
	var row assetUNSMap
	err := s.gorm(ctx).
		Where("level = ? AND asset_uuid = ?", s.level, assetUUID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Unavailable("failed to resolve group for asset", err)
	}
	return row.Value, true, nil
}

func (s *UNSLevelStrategy) AllGroups(ctx context.Context) ([]string, error) {
	var values []string
	err := s.gorm(ctx).Model(&assetUNSMap{}).
		Where("level = ?", s.level).
		Distinct("value").
		Pluck("value", &values).Error
	if err != nil {
		return nil, errors.Unavailable("failed to enumerate groups", err)
	}
	return values, nil
}

func (s *UNSLevelStrategy) AssetsInGroup(ctx context.Context, group string) ([]string, error) {
	var assets []string
	err := s.gorm(ctx).Model(&assetUNSMap{}).
		Where("level = ? AND value = ?", s.level, group).
		Pluck("asset_uuid", &assets).Error
	if err != nil {
		return nil, errors.Unavailable("failed to enumerate assets in group", err)
	}
	return assets, nil
}

// CreateDerivedStream records group's derived topic. The literal value is
// escaped before being folded into the declaration even though the
// lookup itself uses bound parameters, preserving the escaping discipline
// the projection's query language mandates for any interpolated fragment
// (spec §4.4).
func (s *UNSLevelStrategy) CreateDerivedStream(ctx context.Context, group string) error {
	escaped := EscapeLiteral(group)
	stream := derivedStream{
		Level: s.level,
		Group: group,
		Topic: TopicName(escaped),
	}
	err := s.gorm(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&stream).Error
	if err != nil {
		return errors.Unavailable("failed to create derived stream", err)
	}
	return nil
}

func (s *UNSLevelStrategy) RemoveDerivedStream(ctx context.Context, group string) error {
	err := s.gorm(ctx).
		Where("level = ? AND group_name = ?", s.level, group).
		Delete(&derivedStream{}).Error
	if err != nil {
		return errors.Unavailable("failed to remove derived stream", err)
	}
	return nil
}

func (s *UNSLevelStrategy) IsReady(ctx context.Context) (bool, string) {
	if err := s.gorm(ctx).Exec("SELECT 1").Error; err != nil {
		return false, "grouping projection unreachable: " + err.Error()
	}
	return true, ""
}

func (s *UNSLevelStrategy) gorm(ctx context.Context) *gorm.DB {
	return s.db.Get(ctx)
}
