package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AllModels returns all models for migration
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&APIKey{},
		&APILog{},
		&NewsArticle{},
		&Drink{},
		&Setting{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// ensureID assigns a random UUID to a zero primary key.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
