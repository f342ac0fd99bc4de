package news

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler serves the admin news CRUD and the public read path
type Handler struct {
	db  *gorm.DB
	now func() time.Time
}

// NewHandler creates a new news handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Summary is the list representation used on the public news page
type Summary struct {
	ID          uuid.UUID  `json:"id"`
	Slug        string     `json:"slug"`
	Category    string     `json:"category"`
	TitleDE     string     `json:"title_de"`
	TitleEN     string     `json:"title_en"`
	ExcerptDE   string     `json:"excerpt_de"`
	ExcerptEN   string     `json:"excerpt_en"`
	ImageURL    *string    `json:"image_url"`
	ReadTime    int        `json:"read_time"`
	AuthorName  string     `json:"author_name"`
	PublishedAt *time.Time `json:"published_at"`
}

func toSummary(a models.NewsArticle) Summary {
	return Summary{
		ID:          a.ID,
		Slug:        a.Slug,
		Category:    a.Category,
		TitleDE:     a.TitleDE,
		TitleEN:     a.TitleEN,
		ExcerptDE:   a.ExcerptDE,
		ExcerptEN:   a.ExcerptEN,
		ImageURL:    a.ImageURL,
		ReadTime:    a.ReadTime,
		AuthorName:  a.AuthorName,
		PublishedAt: a.PublishedAt,
	}
}

// DecodeBody parses a JSON object keeping numbers exact. ok is false when the
// body is not valid JSON; a valid non-object body yields a nil map and ok true.
func DecodeBody(raw []byte) (body map[string]any, ok bool) {
	if !utf8.Valid(raw) || !json.Valid(raw) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	body, _ = v.(map[string]any)
	return body, true
}

// NotObject is reported when the body is JSON but not an object.
var NotObject = FieldError{Field: "body", Message: "must be a JSON object"}

func paging(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid news ID"})
		return uuid.Nil, false
	}
	return id, true
}

// ListPublished returns published articles, newest first
func (h *Handler) ListPublished(c *gin.Context) {
	limit, offset := paging(c)

	query := h.db.Model(&models.NewsArticle{}).Where("is_published = ?", true)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch news"})
		return
	}

	var articles []models.NewsArticle
	if err := query.Order("published_at DESC").Limit(limit).Offset(offset).Find(&articles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch news"})
		return
	}

	data := make([]Summary, len(articles))
	for i, a := range articles {
		data[i] = toSummary(a)
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "total": total})
}

// GetPublished returns one published article by slug
func (h *Handler) GetPublished(c *gin.Context) {
	var article models.NewsArticle
	err := h.db.Where("slug = ? AND is_published = ?", c.Param("slug"), true).First(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch article"})
		return
	}
	c.JSON(http.StatusOK, article)
}

// List returns all articles for the admin panel
func (h *Handler) List(c *gin.Context) {
	limit, offset := paging(c)

	query := h.db.Model(&models.NewsArticle{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if published := c.Query("published"); published != "" {
		query = query.Where("is_published = ?", published == "true")
	}
	if q := c.Query("q"); q != "" {
		like := "%" + q + "%"
		query = query.Where("title_de LIKE ? OR title_en LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch news"})
		return
	}

	var articles []models.NewsArticle
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&articles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch news"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": articles, "total": total})
}

// Get returns a single article by ID
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var article models.NewsArticle
	if err := h.db.First(&article, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *Handler) readBody(c *gin.Context) (map[string]any, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"})
		return nil, false
	}
	body, ok := DecodeBody(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"})
		return nil, false
	}
	if body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": []FieldError{NotObject}})
		return nil, false
	}
	return body, true
}

// Create creates an article from the admin panel. An explicit slug that is
// already taken is a conflict; a derived one gets a timestamp suffix.
func (h *Handler) Create(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	in, errs := ParseInput(body)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": errs})
		return
	}

	ctx := c.Request.Context()
	now := h.now()
	base := BaseSlug(in)

	slug := base
	if in.Slug != "" {
		exists, err := SlugExists(ctx, h.db, base, uuid.Nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check slug"})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{"error": "This slug is already taken"})
			return
		}
	} else {
		var err error
		if slug, err = ResolveSlug(ctx, h.db, base, now); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check slug"})
			return
		}
	}

	article := in.Article(slug, now)
	if err := CreateUnique(ctx, h.db, &article, base, h.now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create news article"})
		return
	}

	c.JSON(http.StatusCreated, article)
}

// Update applies a partial update
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var article models.NewsArticle
	if err := h.db.First(&article, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	body, ok := h.readBody(c)
	if !ok {
		return
	}

	values, errs := ArticleSchema.Validate(body, true)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": errs})
		return
	}

	updates := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		updates[k] = v
	}
	if raw, present := body["image_url"]; present && raw == nil {
		updates["image_url"] = nil
	}

	if slug, ok := values["slug"].(string); ok && slug != article.Slug {
		exists, err := SlugExists(c.Request.Context(), h.db, slug, article.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check slug"})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{"error": "This slug is already taken"})
			return
		}
	}

	if published, ok := values["is_published"].(bool); ok && published && article.PublishedAt == nil {
		updates["published_at"] = h.now()
	}

	if len(updates) > 0 {
		if err := h.db.Model(&article).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "This slug is already taken"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update article"})
			return
		}
	}

	h.db.First(&article, "id = ?", id)
	c.JSON(http.StatusOK, article)
}

// Delete deletes an article
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result := h.db.Delete(&models.NewsArticle{}, "id = ?", id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete article"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Article deleted"})
}

// RegisterRoutes registers admin news routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/news", h.List)
	rg.POST("/news", h.Create)
	rg.GET("/news/:id", h.Get)
	rg.PUT("/news/:id", h.Update)
	rg.DELETE("/news/:id", h.Delete)
}

// RegisterPublicRoutes registers the public read path
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/news", h.ListPublished)
	rg.GET("/news/:slug", h.GetPublished)
}
