package grouping

import "gorm.io/gorm"

// Migrate creates/updates the grouping projection's tables. Call once at
// startup against the configured sql.SQL connection.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&assetUNSMap{}, &derivedStream{})
}
