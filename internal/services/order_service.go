package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"carsi/internal/models"
	"carsi/internal/repositories"
	"carsi/pkg/rabbitmq"
)

// Errors the admin handlers map to HTTP responses.
var (
	ErrConfirmationRequired = errors.New("deletion requires explicit confirmation")
	ErrNoReceipt            = errors.New("order has no receipt")
)

// StatusFilterAll matches every order status in the admin listing.
const StatusFilterAll = "all"

// OrderStats are per-status counts shown above the admin order list.
type OrderStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Shipped    int `json:"shipped"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

// OrderService handles the back-office order review: listing, filtering,
// status transitions and deletion.
type OrderService struct {
	orderRepo repositories.OrderRepository
	events    rabbitmq.Publisher
}

// NewOrderService creates a new OrderService. events may be nil when no
// broker is configured.
func NewOrderService(orderRepo repositories.OrderRepository, events rabbitmq.Publisher) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		events:    events,
	}
}

// ListOrders returns orders newest-first, narrowed by a free-text search
// (order ID, customer first/last name case-insensitive, phone substring)
// and a status filter ("all" or empty passes everything). Stats always
// cover the unfiltered set.
func (s *OrderService) ListOrders(search string, statusFilter string) ([]models.Order, OrderStats, error) {
	orders, err := s.orderRepo.GetAll()
	if err != nil {
		return nil, OrderStats{}, fmt.Errorf("failed to list orders: %w", err)
	}

	stats := OrderStats{Total: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusProcessing:
			stats.Processing++
		case models.StatusShipped:
			stats.Shipped++
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusCancelled:
			stats.Cancelled++
		}
	}

	filtered := make([]models.Order, 0, len(orders))
	query := strings.ToLower(strings.TrimSpace(search))
	for _, o := range orders {
		if query != "" && !matchesQuery(o, query) {
			continue
		}
		if statusFilter != "" && statusFilter != StatusFilterAll && o.Status.String() != statusFilter {
			continue
		}
		filtered = append(filtered, o)
	}

	return filtered, stats, nil
}

// matchesQuery applies the admin free-text search to one order.
func matchesQuery(o models.Order, query string) bool {
	return strings.Contains(strings.ToLower(o.ID), query) ||
		strings.Contains(strings.ToLower(o.Customer.FirstName), query) ||
		strings.Contains(strings.ToLower(o.Customer.LastName), query) ||
		strings.Contains(o.Customer.Phone, query)
}

// GetOrder retrieves a single order by its ID.
func (s *OrderService) GetOrder(id string) (*models.Order, error) {
	return s.orderRepo.GetByID(id)
}

// UpdateOrderStatus applies a validated status transition and publishes a
// best-effort status event.
func (s *OrderService) UpdateOrderStatus(id string, status models.OrderStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid order status: %s", status)
	}

	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		return err
	}
	if err := order.Transition(status); err != nil {
		return err
	}
	if err := s.orderRepo.UpdateStatus(id, status); err != nil {
		return fmt.Errorf("failed to update order status for order %s: %w", id, err)
	}

	if s.events != nil {
		err := s.events.PublishEvent("order.status_updated", map[string]interface{}{
			"order_id": id,
			"status":   status.String(),
		})
		if err != nil {
			log.Printf("Warning: failed to publish status event for order %s: %v", id, err)
		}
	}
	return nil
}

// DeleteOrder permanently removes an order. The destructive action is
// gated behind an explicit confirmation flag.
func (s *OrderService) DeleteOrder(id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	if err := s.orderRepo.Delete(id); err != nil {
		return err
	}
	if s.events != nil {
		err := s.events.PublishEvent("order.deleted", map[string]interface{}{
			"order_id": id,
		})
		if err != nil {
			log.Printf("Warning: failed to publish delete event for order %s: %v", id, err)
		}
	}
	return nil
}

// ReceiptURL returns the stored receipt location for read-only viewing.
// It never mutates order state.
func (s *OrderService) ReceiptURL(id string) (string, error) {
	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		return "", err
	}
	if order.ReceiptURL == "" {
		return "", ErrNoReceipt
	}
	return order.ReceiptURL, nil
}
