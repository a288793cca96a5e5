package repositories

import (
	"fmt"

	"carsi/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMAdminUserRepository is a GORM implementation of AdminUserRepository.
type GORMAdminUserRepository struct {
	db *gorm.DB
}

// NewGORMAdminUserRepository creates a new instance of
// GORMAdminUserRepository.
func NewGORMAdminUserRepository(db *gorm.DB) *GORMAdminUserRepository {
	return &GORMAdminUserRepository{
		db: db,
	}
}

// Create creates a new admin user in the database.
func (r *GORMAdminUserRepository) Create(user *models.AdminUser) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}

// GetByUsername retrieves an admin user by their username.
func (r *GORMAdminUserRepository) GetByUsername(username string) (*models.AdminUser, error) {
	var user models.AdminUser
	if err := r.db.First(&user, "username = ?", username).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("admin user with username %s not found", username)
		}
		return nil, fmt.Errorf("failed to get admin user by username %s: %w", username, err)
	}
	return &user, nil
}

// GetByEmail retrieves an admin user by their email.
func (r *GORMAdminUserRepository) GetByEmail(email string) (*models.AdminUser, error) {
	var user models.AdminUser
	if err := r.db.First(&user, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("admin user with email %s not found", email)
		}
		return nil, fmt.Errorf("failed to get admin user by email %s: %w", email, err)
	}
	return &user, nil
}

// GetByID retrieves an admin user by their ID.
func (r *GORMAdminUserRepository) GetByID(id string) (*models.AdminUser, error) {
	var user models.AdminUser
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("admin user with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get admin user by ID %s: %w", id, err)
	}
	return &user, nil
}
