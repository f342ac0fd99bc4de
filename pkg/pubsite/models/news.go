package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// News categories
const (
	CategoryEvents  = "events"
	CategoryMenu    = "menu"
	CategoryGeneral = "general"
)

// NewsCategories lists the accepted article categories.
var NewsCategories = []string{CategoryEvents, CategoryMenu, CategoryGeneral}

// DefaultAuthorName is used when an article is submitted without an author.
const DefaultAuthorName = "Berliner Pub"

// DefaultReadTime is the estimated read time in minutes used when none is given.
const DefaultReadTime = 5

// NewsArticle is a bilingual news post
type NewsArticle struct {
	ID          uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	Slug        string     `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Category    string     `gorm:"size:20;not null;index" json:"category"`
	TitleDE     string     `gorm:"column:title_de;size:200;not null" json:"title_de"`
	TitleEN     string     `gorm:"column:title_en;size:200;not null" json:"title_en"`
	ExcerptDE   string     `gorm:"column:excerpt_de;size:500;not null" json:"excerpt_de"`
	ExcerptEN   string     `gorm:"column:excerpt_en;size:500;not null" json:"excerpt_en"`
	ContentDE   string     `gorm:"column:content_de;type:text;not null" json:"content_de"`
	ContentEN   string     `gorm:"column:content_en;type:text;not null" json:"content_en"`
	ImageURL    *string    `gorm:"size:2048" json:"image_url"`
	ReadTime    int        `gorm:"not null" json:"read_time"`
	AuthorName  string     `gorm:"size:100;not null" json:"author_name"`
	IsPublished bool       `gorm:"not null;index:idx_news_published,priority:1" json:"is_published"`
	PublishedAt *time.Time `gorm:"index:idx_news_published,priority:2" json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName keeps the table name used by the public site.
func (NewsArticle) TableName() string {
	return "news"
}

func (n *NewsArticle) BeforeCreate(tx *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
