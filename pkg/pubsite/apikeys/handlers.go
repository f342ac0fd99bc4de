package apikeys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/berlinerpub/pubsite/pkg/pubsite/newsapi"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// KeyLength is the length of the generated API key in bytes (32 bytes = 64 hex chars)
	KeyLength = 32
	// KeyPrefix marks generated keys so they are recognizable in headers and logs
	KeyPrefix = "pub_"

	defaultPageSize = 50
	maxPageSize     = 200
	maxRateLimit    = 100000
)

// Handler handles API key administration and the audit log views
type Handler struct {
	db     *gorm.DB
	window *newsapi.LogWindowLimiter
}

// NewHandler creates a new API keys handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, window: newsapi.NewLogWindowLimiter(db, nil)}
}

// APIKeyResponse represents an API key in responses. The secret is reduced to its prefix.
type APIKeyResponse struct {
	ID          uuid.UUID  `json:"id"`
	KeyName     string     `json:"key_name"`
	KeyPrefix   string     `json:"key_prefix"`
	IsActive    bool       `json:"is_active"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastUsed    *time.Time `json:"last_used"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateAPIKeyResponse includes the full key (only shown once)
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"api_key"`
}

// KeyDetailResponse adds the usage of the current rate-limit window
type KeyDetailResponse struct {
	APIKeyResponse
	WindowRequests int64 `json:"window_requests"`
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	KeyName     string     `json:"key_name" binding:"required,max=100"`
	Permissions []string   `json:"permissions"`
	RateLimit   *int       `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// UpdateAPIKeyRequest is a partial update; absent fields are unchanged.
// ClearExpiry removes the expiry.
type UpdateAPIKeyRequest struct {
	KeyName     *string    `json:"key_name" binding:"omitempty,min=1,max=100"`
	IsActive    *bool      `json:"is_active"`
	Permissions *[]string  `json:"permissions"`
	RateLimit   *int       `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

func toResponse(key models.APIKey) APIKeyResponse {
	permissions := key.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return APIKeyResponse{
		ID:          key.ID,
		KeyName:     key.KeyName,
		KeyPrefix:   key.Prefix(),
		IsActive:    key.IsActive,
		Permissions: permissions,
		RateLimit:   key.RateLimit,
		ExpiresAt:   key.ExpiresAt,
		LastUsed:    key.LastUsed,
		CreatedAt:   key.CreatedAt,
		UpdatedAt:   key.UpdatedAt,
	}
}

// GenerateAPIKey generates a new random API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return KeyPrefix + hex.EncodeToString(bytes), nil
}

func validPermissions(permissions []string) bool {
	for _, p := range permissions {
		if !slices.Contains(models.KnownPermissions, p) {
			return false
		}
	}
	return true
}

func validRateLimit(limit int) bool {
	return limit >= 1 && limit <= maxRateLimit
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) find(c *gin.Context) (models.APIKey, bool) {
	var key models.APIKey
	id, ok := parseID(c)
	if !ok {
		return key, false
	}
	if err := h.db.First(&key, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API key"})
		}
		return key, false
	}
	return key, true
}

// Create creates a new API key
func (h *Handler) Create(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	permissions := req.Permissions
	if permissions == nil {
		permissions = []string{models.PermissionNewsCreate}
	}
	if !validPermissions(permissions) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown permission"})
		return
	}

	rateLimit := models.DefaultRateLimit
	if req.RateLimit != nil {
		rateLimit = *req.RateLimit
	}
	if !validRateLimit(rateLimit) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit must be between 1 and 100000"})
		return
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be in the future"})
		return
	}

	// Generate the key
	secret, err := GenerateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
		return
	}

	key := models.APIKey{
		KeyName:     req.KeyName,
		Key:         secret,
		IsActive:    true,
		Permissions: permissions,
		RateLimit:   rateLimit,
	}
	if req.ExpiresAt != nil {
		expires := req.ExpiresAt.UTC()
		key.ExpiresAt = &expires
	}

	if err := h.db.Create(&key).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
		return
	}

	// Return the full key - this is the only time it's visible
	c.JSON(http.StatusCreated, CreateAPIKeyResponse{APIKeyResponse: toResponse(key), Key: secret})
}

// List returns all API keys, newest first
func (h *Handler) List(c *gin.Context) {
	var keys []models.APIKey
	if err := h.db.Order("created_at DESC").Find(&keys).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API keys"})
		return
	}

	responses := make([]APIKeyResponse, len(keys))
	for i, key := range keys {
		responses[i] = toResponse(key)
	}

	c.JSON(http.StatusOK, responses)
}

// Get returns one API key with its current window usage
func (h *Handler) Get(c *gin.Context) {
	key, ok := h.find(c)
	if !ok {
		return
	}

	count, err := h.window.Count(c.Request.Context(), key.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count API key usage"})
		return
	}

	c.JSON(http.StatusOK, KeyDetailResponse{APIKeyResponse: toResponse(key), WindowRequests: count})
}

// Update changes name, activity, permissions, rate limit or expiry of a key
func (h *Handler) Update(c *gin.Context) {
	key, ok := h.find(c)
	if !ok {
		return
	}

	var req UpdateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.KeyName != nil {
		key.KeyName = *req.KeyName
	}
	if req.IsActive != nil {
		key.IsActive = *req.IsActive
	}
	if req.Permissions != nil {
		if !validPermissions(*req.Permissions) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown permission"})
			return
		}
		key.Permissions = *req.Permissions
	}
	if req.RateLimit != nil {
		if !validRateLimit(*req.RateLimit) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit must be between 1 and 100000"})
			return
		}
		key.RateLimit = *req.RateLimit
	}
	switch {
	case req.ClearExpiry:
		key.ExpiresAt = nil
	case req.ExpiresAt != nil:
		expires := req.ExpiresAt.UTC()
		key.ExpiresAt = &expires
	}

	if err := h.db.Save(&key).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update API key"})
		return
	}

	c.JSON(http.StatusOK, toResponse(key))
}

// Delete deletes an API key. Its audit rows are kept.
func (h *Handler) Delete(c *gin.Context) {
	key, ok := h.find(c)
	if !ok {
		return
	}

	if err := h.db.Delete(&key).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete API key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

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

func (h *Handler) listLogs(c *gin.Context, query *gorm.DB) {
	if status := c.Query("status"); status != "" {
		code, err := strconv.Atoi(status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
			return
		}
		query = query.Where("response_status = ?", code)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API logs"})
		return
	}

	limit, offset := paging(c)
	var logs []models.APILog
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs, "total": total})
}

// Logs returns the audit rows of one key
func (h *Handler) Logs(c *gin.Context) {
	key, ok := h.find(c)
	if !ok {
		return
	}
	h.listLogs(c, h.db.Model(&models.APILog{}).Where("api_key_id = ?", key.ID))
}

// ListLogs returns all gateway audit rows
func (h *Handler) ListLogs(c *gin.Context) {
	h.listLogs(c, h.db.Model(&models.APILog{}))
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.GET("/api-keys/:id", h.Get)
	rg.PATCH("/api-keys/:id", h.Update)
	rg.DELETE("/api-keys/:id", h.Delete)
	rg.GET("/api-keys/:id/logs", h.Logs)
	rg.GET("/api-logs", h.ListLogs)
}
