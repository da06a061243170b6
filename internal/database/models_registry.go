package database

import "appleverse/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.IdentityRecord{},
		&models.Apple{},
	}
}
