package news

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxInsertAttempts bounds retries after a slug unique-constraint conflict.
const MaxInsertAttempts = 3

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveSlug lowercases title, collapses every run of characters outside
// [a-z0-9] to one hyphen and trims hyphens from both ends.
func DeriveSlug(title string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

// BaseSlug picks the caller's slug or derives one from the English title,
// falling back to the German title. A title with no usable characters yields "news".
func BaseSlug(in *Input) string {
	if in.Slug != "" {
		return in.Slug
	}
	source := in.TitleEN
	if source == "" {
		source = in.TitleDE
	}
	if slug := DeriveSlug(source); slug != "" {
		return slug
	}
	return "news"
}

// SlugExists reports whether an article other than excludeID uses slug.
func SlugExists(ctx context.Context, db *gorm.DB, slug string, excludeID uuid.UUID) (bool, error) {
	query := db.WithContext(ctx).Model(&models.NewsArticle{}).Where("slug = ?", slug)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func suffixed(base string, now time.Time, attempt int) string {
	return fmt.Sprintf("%s-%d", base, now.UnixMilli()+int64(attempt))
}

// ResolveSlug returns base when it is free, otherwise base with a -{epoch_ms} suffix.
func ResolveSlug(ctx context.Context, db *gorm.DB, base string, now time.Time) (string, error) {
	exists, err := SlugExists(ctx, db, base, uuid.Nil)
	if err != nil {
		return "", fmt.Errorf("check slug: %w", err)
	}
	if !exists {
		return base, nil
	}
	return suffixed(base, now, 0), nil
}

// CreateUnique inserts article and, when the slug loses a race against a
// concurrent insert, retries with a fresh timestamp suffix on base.
func CreateUnique(ctx context.Context, db *gorm.DB, article *models.NewsArticle, base string, now func() time.Time) error {
	for attempt := 1; ; attempt++ {
		err := db.WithContext(ctx).Create(article).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt >= MaxInsertAttempts {
			return err
		}
		article.ID = uuid.Nil
		article.Slug = suffixed(base, now(), attempt)
	}
}
