package grouping

import "time"

// assetUNSMap is a row of the grouping projection: which value a given
// asset holds at a given level of the unified namespace (site / area /
// workcenter / ...). The default deployment populates this from the
// enriched upstream stream; the Go adapter reads it as a plain table
// rather than a ksqlDB pull query.
type assetUNSMap struct {
	AssetUUID string `gorm:"primaryKey;column:asset_uuid"`
	Level     string `gorm:"primaryKey;column:level"`
	Value     string `gorm:"column:value;index"`
}

func (assetUNSMap) TableName() string { return "asset_uns_map" }

// derivedStream records a group's materialized per-group topic, so
// CreateDerivedStream can be idempotent without re-issuing DDL.
type derivedStream struct {
	Level     string `gorm:"primaryKey;column:level"`
	Group     string `gorm:"primaryKey;column:group_name"`
	Topic     string `gorm:"column:topic"`
	CreatedAt time.Time
}

func (derivedStream) TableName() string { return "derived_streams" }
