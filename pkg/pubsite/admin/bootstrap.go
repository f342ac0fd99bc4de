package admin

import (
	"strings"

	"github.com/berlinerpub/pubsite/pkg/pubsite/auth"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"gorm.io/gorm"
)

// EnsureAdmin creates an admin account with the given credentials if no admin
// exists yet. It reports whether an account was created.
func EnsureAdmin(db *gorm.DB, email, password string) (bool, error) {
	// Check if any admin user exists
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}

	adminUser := models.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         "Admin",
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
	}
	if err := db.Create(&adminUser).Error; err != nil {
		return false, err
	}
	return true, nil
}
