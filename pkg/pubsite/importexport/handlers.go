package importexport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/drinks"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"gorm.io/gorm"
)

// Handler handles menu import/export requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// MenuFile is the exchange format of the drinks menu
type MenuFile struct {
	ExportedAt time.Time      `json:"exported_at"`
	Drinks     []drinks.Input `json:"drinks"`
}

// ImportRequest represents an import request. Replace clears the menu first.
type ImportRequest struct {
	Drinks  []drinks.Input `json:"drinks" binding:"required"`
	Replace bool           `json:"replace"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Import loads drinks into the menu. Invalid items are reported and skipped;
// an item whose English name already exists in its category is skipped.
func Import(db *gorm.DB, items []drinks.Input, replace bool) (ImportResult, error) {
	result := ImportResult{Errors: []string{}}

	err := db.Transaction(func(tx *gorm.DB) error {
		if replace {
			if err := tx.Where("1 = 1").Delete(&models.Drink{}).Error; err != nil {
				return err
			}
		}

		for i, item := range items {
			if err := binding.Validator.ValidateStruct(&item); err != nil {
				result.Errors = append(result.Errors, "drink "+strconv.Itoa(i)+": "+err.Error())
				result.Skipped++
				continue
			}

			var count int64
			if err := tx.Model(&models.Drink{}).
				Where("name_en = ? AND category = ?", item.NameEN, item.Category).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				result.Skipped++
				continue
			}

			drink := item.Drink()
			if err := tx.Create(&drink).Error; err != nil {
				return err
			}
			result.Imported++
		}
		return nil
	})
	return result, err
}

// Export returns the whole menu in menu order
func Export(db *gorm.DB) (MenuFile, error) {
	var rows []models.Drink
	if err := db.Find(&rows).Error; err != nil {
		return MenuFile{}, err
	}
	drinks.SortMenu(rows)

	file := MenuFile{ExportedAt: time.Now().UTC(), Drinks: make([]drinks.Input, len(rows))}
	for i, d := range rows {
		file.Drinks[i] = drinks.ToInput(d)
	}
	return file, nil
}

// ImportMenu handles POST /menu/import
func (h *Handler) ImportMenu(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := Import(h.db, req.Drinks, req.Replace)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import menu"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportMenu handles GET /menu/export
func (h *Handler) ExportMenu(c *gin.Context) {
	file, err := Export(h.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch drinks"})
		return
	}

	// Set content disposition for download
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=pubsite-menu.json")
	}

	c.JSON(http.StatusOK, file)
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/menu/import", h.ImportMenu)
	rg.GET("/menu/export", h.ExportMenu)
}
