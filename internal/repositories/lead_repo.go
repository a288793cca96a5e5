package repositories

import (
	"fmt"
	"sync"

	"carsi/internal/models"

	"gorm.io/gorm"
)

// LeadRepository defines the interface for lead-capture writes. Both
// collections are write-only from the checkout flow.
type LeadRepository interface {
	CreateIncomplete(lead *models.IncompleteLead) error
	CreateCompleted(lead *models.CompletedLead) error
}

// GORMLeadRepository is a GORM implementation of LeadRepository.
type GORMLeadRepository struct {
	db *gorm.DB
}

// NewGORMLeadRepository creates a new instance of GORMLeadRepository.
func NewGORMLeadRepository(db *gorm.DB) *GORMLeadRepository {
	return &GORMLeadRepository{
		db: db,
	}
}

// CreateIncomplete stores an abandoned-cart follow-up snapshot.
func (r *GORMLeadRepository) CreateIncomplete(lead *models.IncompleteLead) error {
	if err := r.db.Create(lead).Error; err != nil {
		return fmt.Errorf("failed to create incomplete lead: %w", err)
	}
	return nil
}

// CreateCompleted stores a completed-checkout contact record.
func (r *GORMLeadRepository) CreateCompleted(lead *models.CompletedLead) error {
	if err := r.db.Create(lead).Error; err != nil {
		return fmt.Errorf("failed to create completed lead: %w", err)
	}
	return nil
}

// MockLeadRepository is an in-memory implementation of LeadRepository.
type MockLeadRepository struct {
	mu         sync.Mutex
	Incomplete []models.IncompleteLead
	Completed  []models.CompletedLead
	FailWrites bool // when set, every write returns an error
}

// NewMockLeadRepository creates a new instance of MockLeadRepository.
func NewMockLeadRepository() *MockLeadRepository {
	return &MockLeadRepository{}
}

// CreateIncomplete appends an incomplete lead.
func (r *MockLeadRepository) CreateIncomplete(lead *models.IncompleteLead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites {
		return fmt.Errorf("lead store unavailable")
	}
	lead.ID = uint(len(r.Incomplete) + 1)
	r.Incomplete = append(r.Incomplete, *lead)
	return nil
}

// CreateCompleted appends a completed lead.
func (r *MockLeadRepository) CreateCompleted(lead *models.CompletedLead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWrites {
		return fmt.Errorf("lead store unavailable")
	}
	lead.ID = uint(len(r.Completed) + 1)
	r.Completed = append(r.Completed, *lead)
	return nil
}
