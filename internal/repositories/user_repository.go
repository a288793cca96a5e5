package repositories

import "carsi/internal/models"

// AdminUserRepository defines the interface for admin account data access.
type AdminUserRepository interface {
	Create(user *models.AdminUser) error
	GetByUsername(username string) (*models.AdminUser, error)
	GetByEmail(email string) (*models.AdminUser, error)
	GetByID(id string) (*models.AdminUser, error)
}
