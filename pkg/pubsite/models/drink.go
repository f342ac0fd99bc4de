package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DrinkCategories lists menu sections in display order.
var DrinkCategories = []string{"beer", "wine", "cocktails", "spirits", "softdrinks", "hotdrinks"}

// Drink is a menu item
type Drink struct {
	ID            uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	NameDE        string    `gorm:"column:name_de;size:100;not null" json:"name_de"`
	NameEN        string    `gorm:"column:name_en;size:100;not null" json:"name_en"`
	DescriptionDE string    `gorm:"column:description_de;size:500" json:"description_de"`
	DescriptionEN string    `gorm:"column:description_en;size:500" json:"description_en"`
	Category      string    `gorm:"size:20;not null;index" json:"category"`
	Price         float64   `gorm:"not null" json:"price"`
	Volume        string    `gorm:"size:20" json:"volume"`
	IsAvailable   bool      `gorm:"not null" json:"is_available"`
	SortOrder     int       `gorm:"not null" json:"sort_order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (d *Drink) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
