package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/auth"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/berlinerpub/pubsite/pkg/pubsite/newsapi"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrLastAdmin is returned when a change would leave the site without an admin.
var ErrLastAdmin = errors.New("cannot remove the last admin")

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
}

// CreateUserRequest represents the request to create a panel account
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"max=100"`
	Role     string `json:"role"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=100"`
	Role     *string `json:"role"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

// StatsResponse holds the dashboard counters
type StatsResponse struct {
	TotalNews       int64 `json:"total_news"`
	PublishedNews   int64 `json:"published_news"`
	TotalDrinks     int64 `json:"total_drinks"`
	AvailableDrinks int64 `json:"available_drinks"`
	TotalUsers      int64 `json:"total_users"`
	ActiveAPIKeys   int64 `json:"active_api_keys"`
	GatewayCalls24h int64 `json:"gateway_calls_24h"`
	GatewayErrors   int64 `json:"gateway_errors_24h"`
}

func toUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *Handler) findUser(c *gin.Context) (models.User, bool) {
	var user models.User
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return user, false
	}
	if err := h.db.First(&user, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return user, false
	}
	return user, true
}

// ensureOtherAdmin fails with ErrLastAdmin unless an admin other than user exists.
func ensureOtherAdmin(tx *gorm.DB, user models.User) error {
	if user.Role != models.RoleAdmin {
		return nil
	}
	var admins int64
	if err := tx.Model(&models.User{}).
		Where("role = ? AND id <> ?", models.RoleAdmin, user.ID).
		Count(&admins).Error; err != nil {
		return err
	}
	if admins == 0 {
		return ErrLastAdmin
	}
	return nil
}

// ListUsers returns all users (admin only)
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = toUserResponse(user)
	}

	c.JSON(http.StatusOK, responses)
}

// CreateUser creates a panel account (admin only)
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := models.RoleEditor
	if req.Role != "" {
		role = models.Role(req.Role)
	}
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Name:         req.Name,
		Role:         role,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

// GetUser returns a single user by ID (admin only)
func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateUser updates name, role or password of a user (admin only)
func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		updates["password_hash"] = hash
	}

	demote := false
	if req.Role != nil {
		role := models.Role(*req.Role)
		if !role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		updates["role"] = role
		demote = user.Role == models.RoleAdmin && role != models.RoleAdmin
	}

	if len(updates) > 0 {
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if demote {
				if err := ensureOtherAdmin(tx, user); err != nil {
					return err
				}
			}
			return tx.Model(&user).Updates(updates).Error
		})
		if errors.Is(err, ErrLastAdmin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote the last admin"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	// Reload user
	h.db.First(&user, "id = ?", user.ID)
	c.JSON(http.StatusOK, toUserResponse(user))
}

// DeleteUser deletes a user (admin only)
func (h *Handler) DeleteUser(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	// Prevent admin from deleting themselves
	if currentUserID, _ := auth.GetUserID(c); currentUserID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureOtherAdmin(tx, user); err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if errors.Is(err, ErrLastAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete the last admin"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns dashboard counters
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse
	since := time.Now().UTC().Add(-24 * time.Hour)

	h.db.Model(&models.NewsArticle{}).Count(&stats.TotalNews)
	h.db.Model(&models.NewsArticle{}).Where("is_published = ?", true).Count(&stats.PublishedNews)
	h.db.Model(&models.Drink{}).Count(&stats.TotalDrinks)
	h.db.Model(&models.Drink{}).Where("is_available = ?", true).Count(&stats.AvailableDrinks)
	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.APIKey{}).Where("is_active = ?", true).Count(&stats.ActiveAPIKeys)

	h.db.Model(&models.APILog{}).
		Where("endpoint = ? AND created_at > ?", newsapi.Endpoint, since).
		Count(&stats.GatewayCalls24h)
	h.db.Model(&models.APILog{}).
		Where("endpoint = ? AND created_at > ? AND response_status >= ?", newsapi.Endpoint, since, http.StatusBadRequest).
		Count(&stats.GatewayErrors)

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.POST("/users", h.CreateUser)
	rg.GET("/users/:id", h.GetUser)
	rg.PATCH("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
