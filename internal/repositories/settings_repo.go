package repositories

import (
	"fmt"
	"sync"

	"carsi/internal/models"

	"gorm.io/gorm"
)

// SettingsRepository defines the interface for reading the payment
// settings singleton. Defaults are supplied by the service when no record
// has been stored.
type SettingsRepository interface {
	GetPayment() (*models.PaymentSettings, error)
	SavePayment(settings *models.PaymentSettings) error
}

// GORMSettingsRepository is a GORM implementation of SettingsRepository.
type GORMSettingsRepository struct {
	db *gorm.DB
}

// NewGORMSettingsRepository creates a new instance of GORMSettingsRepository.
func NewGORMSettingsRepository(db *gorm.DB) *GORMSettingsRepository {
	return &GORMSettingsRepository{
		db: db,
	}
}

// GetPayment retrieves the payment settings record. Returns
// gorm.ErrRecordNotFound wrapped when none has been stored yet.
func (r *GORMSettingsRepository) GetPayment() (*models.PaymentSettings, error) {
	var settings models.PaymentSettings
	if err := r.db.First(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment settings: %w", err)
	}
	return &settings, nil
}

// SavePayment upserts the singleton payment settings record.
func (r *GORMSettingsRepository) SavePayment(settings *models.PaymentSettings) error {
	settings.ID = 1
	if err := r.db.Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save payment settings: %w", err)
	}
	return nil
}

// MockSettingsRepository is an in-memory implementation of
// SettingsRepository.
type MockSettingsRepository struct {
	mu       sync.RWMutex
	settings *models.PaymentSettings
}

// NewMockSettingsRepository creates a new instance of
// MockSettingsRepository.
func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{}
}

// GetPayment returns the stored settings or an error when unset.
func (r *MockSettingsRepository) GetPayment() (*models.PaymentSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.settings == nil {
		return nil, fmt.Errorf("payment settings not found")
	}
	copied := *r.settings
	return &copied, nil
}

// SavePayment stores the settings.
func (r *MockSettingsRepository) SavePayment(settings *models.PaymentSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *settings
	r.settings = &copied
	return nil
}
