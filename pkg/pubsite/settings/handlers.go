package settings

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxKeyLength = 100

// Handler handles site settings
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new settings handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Upsert writes every pair of values, replacing existing keys
func Upsert(db *gorm.DB, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.Setting, 0, len(values))
	for k, v := range values {
		rows = append(rows, models.Setting{Key: k, Value: v, UpdatedAt: now})
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

// Public returns all settings as a key/value object
func (h *Handler) Public(c *gin.Context) {
	var settings []models.Setting
	if err := h.db.Find(&settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}

	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}
	c.JSON(http.StatusOK, values)
}

// List returns all settings with their update times
func (h *Handler) List(c *gin.Context) {
	var settings []models.Setting
	if err := h.db.Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// Update upserts the submitted key/value pairs
func (h *Handler) Update(c *gin.Context) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Settings must be an object of string values"})
		return
	}

	for key := range values {
		if key == "" || utf8.RuneCountInString(key) > maxKeyLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Setting keys must be 1 to 100 characters"})
			return
		}
	}

	if err := Upsert(h.db, values); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}

	h.List(c)
}

// Delete removes one setting
func (h *Handler) Delete(c *gin.Context) {
	// "key" is a reserved word in MySQL; address the row by primary key
	result := h.db.Delete(&models.Setting{Key: c.Param("key")})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete setting"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Setting deleted"})
}

// RegisterRoutes registers admin settings routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/settings", h.List)
	rg.PUT("/settings", h.Update)
	rg.DELETE("/settings/:key", h.Delete)
}

// RegisterPublicRoutes registers the public settings read
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/settings", h.Public)
}
