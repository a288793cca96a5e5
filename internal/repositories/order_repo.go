package repositories

import (
	"carsi/internal/models"
)

// OrderRepository defines the interface for order data access. GetAll
// returns orders newest-first, matching the admin review ordering.
type OrderRepository interface {
	GetAll() ([]models.Order, error)
	GetByID(id string) (*models.Order, error)
	Create(order *models.Order) error
	Update(order *models.Order) error
	UpdateStatus(id string, status models.OrderStatus) error
	Delete(id string) error
}
