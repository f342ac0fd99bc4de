package drinks

import (
	"errors"
	"net/http"
	"slices"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handler handles menu requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new drinks handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Input is a menu item as submitted by the admin panel, an import file or a seed file.
type Input struct {
	NameDE        string  `json:"name_de" yaml:"name_de" binding:"required,max=100"`
	NameEN        string  `json:"name_en" yaml:"name_en" binding:"required,max=100"`
	DescriptionDE string  `json:"description_de" yaml:"description_de" binding:"max=500"`
	DescriptionEN string  `json:"description_en" yaml:"description_en" binding:"max=500"`
	Category      string  `json:"category" yaml:"category" binding:"required,oneof=beer wine cocktails spirits softdrinks hotdrinks"`
	Price         float64 `json:"price" yaml:"price" binding:"min=0"`
	Volume        string  `json:"volume" yaml:"volume" binding:"max=20"`
	IsAvailable   *bool   `json:"is_available" yaml:"is_available"`
	SortOrder     int     `json:"sort_order" yaml:"sort_order"`
}

// Drink builds the row for in. Items are available unless stated otherwise.
func (in Input) Drink() models.Drink {
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	return models.Drink{
		NameDE:        in.NameDE,
		NameEN:        in.NameEN,
		DescriptionDE: in.DescriptionDE,
		DescriptionEN: in.DescriptionEN,
		Category:      in.Category,
		Price:         in.Price,
		Volume:        in.Volume,
		IsAvailable:   available,
		SortOrder:     in.SortOrder,
	}
}

// ToInput is the inverse of Input.Drink, used for export.
func ToInput(d models.Drink) Input {
	available := d.IsAvailable
	return Input{
		NameDE:        d.NameDE,
		NameEN:        d.NameEN,
		DescriptionDE: d.DescriptionDE,
		DescriptionEN: d.DescriptionEN,
		Category:      d.Category,
		Price:         d.Price,
		Volume:        d.Volume,
		IsAvailable:   &available,
		SortOrder:     d.SortOrder,
	}
}

// UpdateRequest is a partial update; absent fields are unchanged
type UpdateRequest struct {
	NameDE        *string  `json:"name_de" binding:"omitempty,min=1,max=100"`
	NameEN        *string  `json:"name_en" binding:"omitempty,min=1,max=100"`
	DescriptionDE *string  `json:"description_de" binding:"omitempty,max=500"`
	DescriptionEN *string  `json:"description_en" binding:"omitempty,max=500"`
	Category      *string  `json:"category" binding:"omitempty,oneof=beer wine cocktails spirits softdrinks hotdrinks"`
	Price         *float64 `json:"price" binding:"omitempty,min=0"`
	Volume        *string  `json:"volume" binding:"omitempty,max=20"`
	IsAvailable   *bool    `json:"is_available"`
	SortOrder     *int     `json:"sort_order"`
}

func (r UpdateRequest) updates() map[string]interface{} {
	updates := make(map[string]interface{})
	if r.NameDE != nil {
		updates["name_de"] = *r.NameDE
	}
	if r.NameEN != nil {
		updates["name_en"] = *r.NameEN
	}
	if r.DescriptionDE != nil {
		updates["description_de"] = *r.DescriptionDE
	}
	if r.DescriptionEN != nil {
		updates["description_en"] = *r.DescriptionEN
	}
	if r.Category != nil {
		updates["category"] = *r.Category
	}
	if r.Price != nil {
		updates["price"] = *r.Price
	}
	if r.Volume != nil {
		updates["volume"] = *r.Volume
	}
	if r.IsAvailable != nil {
		updates["is_available"] = *r.IsAvailable
	}
	if r.SortOrder != nil {
		updates["sort_order"] = *r.SortOrder
	}
	return updates
}

// SortMenu orders drinks by menu section, then sort order, then English name.
func SortMenu(drinks []models.Drink) {
	slices.SortStableFunc(drinks, func(a, b models.Drink) int {
		if d := slices.Index(models.DrinkCategories, a.Category) - slices.Index(models.DrinkCategories, b.Category); d != 0 {
			return d
		}
		if d := a.SortOrder - b.SortOrder; d != 0 {
			return d
		}
		switch {
		case a.NameEN < b.NameEN:
			return -1
		case a.NameEN > b.NameEN:
			return 1
		}
		return 0
	})
}

func (h *Handler) find(c *gin.Context) (models.Drink, bool) {
	var drink models.Drink
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid drink ID"})
		return drink, false
	}
	if err := h.db.First(&drink, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Drink not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch drink"})
		}
		return drink, false
	}
	return drink, true
}

func (h *Handler) query(c *gin.Context, availableOnly bool) ([]models.Drink, error) {
	query := h.db.Model(&models.Drink{})
	if availableOnly {
		query = query.Where("is_available = ?", true)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var drinks []models.Drink
	if err := query.Find(&drinks).Error; err != nil {
		return nil, err
	}
	SortMenu(drinks)
	return drinks, nil
}

// Menu returns the available drinks for the public menu page
func (h *Handler) Menu(c *gin.Context) {
	drinks, err := h.query(c, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch menu"})
		return
	}
	c.JSON(http.StatusOK, drinks)
}

// List returns every drink for the admin panel
func (h *Handler) List(c *gin.Context) {
	drinks, err := h.query(c, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch drinks"})
		return
	}
	c.JSON(http.StatusOK, drinks)
}

// Get returns a single drink
func (h *Handler) Get(c *gin.Context) {
	drink, ok := h.find(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, drink)
}

// Create adds a drink to the menu
func (h *Handler) Create(c *gin.Context) {
	var req Input
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	drink := req.Drink()
	if err := h.db.Create(&drink).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create drink"})
		return
	}

	c.JSON(http.StatusCreated, drink)
}

// Update applies a partial update
func (h *Handler) Update(c *gin.Context) {
	drink, ok := h.find(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if updates := req.updates(); len(updates) > 0 {
		if err := h.db.Model(&drink).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update drink"})
			return
		}
	}

	h.db.First(&drink, "id = ?", drink.ID)
	c.JSON(http.StatusOK, drink)
}

// Delete removes a drink
func (h *Handler) Delete(c *gin.Context) {
	drink, ok := h.find(c)
	if !ok {
		return
	}

	if err := h.db.Delete(&drink).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete drink"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Drink deleted"})
}

// RegisterRoutes registers admin drink routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/drinks", h.List)
	rg.POST("/drinks", h.Create)
	rg.GET("/drinks/:id", h.Get)
	rg.PUT("/drinks/:id", h.Update)
	rg.DELETE("/drinks/:id", h.Delete)
}

// RegisterPublicRoutes registers the public menu
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/menu", h.Menu)
}
