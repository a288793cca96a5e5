package services

import (
	"log"

	"carsi/internal/models"
	"carsi/internal/repositories"
)

// SettingsService supplies the bank account display fields shown on the
// bank-transfer step.
type SettingsService struct {
	repo repositories.SettingsRepository
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(repo repositories.SettingsRepository) *SettingsService {
	return &SettingsService{
		repo: repo,
	}
}

// GetPaymentSettings returns the stored payment settings, falling back to
// the defaults when none exist or the read fails. Empty stored fields also
// fall back individually, matching the storefront display behavior.
func (s *SettingsService) GetPaymentSettings() models.PaymentSettings {
	stored, err := s.repo.GetPayment()
	if err != nil {
		log.Printf("Payment settings unavailable, using defaults: %v", err)
		return models.DefaultPaymentSettings()
	}

	settings := *stored
	if settings.IBAN == "" {
		settings.IBAN = models.DefaultIBAN
	}
	if settings.AccountHolder == "" {
		settings.AccountHolder = models.DefaultAccountHolder
	}
	return settings
}

// SavePaymentSettings upserts the singleton payment settings record.
func (s *SettingsService) SavePaymentSettings(settings *models.PaymentSettings) error {
	return s.repo.SavePayment(settings)
}
