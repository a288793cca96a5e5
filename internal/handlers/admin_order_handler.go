package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"carsi/internal/models"
	"carsi/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AdminOrderHandler handles the back-office order review endpoints.
type AdminOrderHandler struct {
	service *services.OrderService
}

// NewAdminOrderHandler creates a new AdminOrderHandler.
func NewAdminOrderHandler(service *services.OrderService) *AdminOrderHandler {
	return &AdminOrderHandler{
		service: service,
	}
}

// RegisterRoutes registers the admin order routes with the Fiber app.
// They must sit behind the admin auth middleware.
func (h *AdminOrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleListOrders)
	orderRoutes.Get("/:id", h.HandleGetOrder)
	orderRoutes.Patch("/:id/status", h.HandleUpdateStatus)
	orderRoutes.Delete("/:id", h.HandleDeleteOrder)
	orderRoutes.Get("/:id/receipt", h.HandleGetReceipt)
}

// HandleListOrders lists orders newest-first, narrowed by the free-text
// search and status filter query parameters.
func (h *AdminOrderHandler) HandleListOrders(c *fiber.Ctx) error {
	search := c.Query("search")
	status := c.Query("status", services.StatusFilterAll)

	orders, stats, err := h.service.ListOrders(search, status)
	if err != nil {
		log.Printf("Error listing orders: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve orders",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"orders": orders,
		"stats":  stats,
	})
}

// HandleGetOrder retrieves a single order by its ID.
func (h *AdminOrderHandler) HandleGetOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")
	order, err := h.service.GetOrder(orderID)
	if err != nil {
		log.Printf("Error getting order by ID %s: %v", orderID, err)
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve order",
			"error":   err.Error(),
		})
	}
	return c.JSON(order)
}

// HandleUpdateStatus applies a status transition to an order.
func (h *AdminOrderHandler) HandleUpdateStatus(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var updateData struct {
		Status models.OrderStatus `json:"status"`
	}

	if err := c.BodyParser(&updateData); err != nil {
		log.Printf("Error parsing request body for status update: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body for status update",
			"error":   err.Error(),
		})
	}

	if updateData.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Status is required for order status update.",
		})
	}

	if err := h.service.UpdateOrderStatus(orderID, updateData.Status); err != nil {
		log.Printf("Error updating order status for order %s: %v", orderID, err)
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		if strings.Contains(err.Error(), "invalid") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": fmt.Sprintf("Order update failed: %v", err.Error()),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not update order status",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Order %s status updated successfully to %s", orderID, updateData.Status),
	})
}

// HandleDeleteOrder permanently deletes an order. The ?confirm=true query
// parameter is the explicit confirmation gate.
func (h *AdminOrderHandler) HandleDeleteOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")
	confirmed := c.QueryBool("confirm")

	if err := h.service.DeleteOrder(orderID, confirmed); err != nil {
		if errors.Is(err, services.ErrConfirmationRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Deleting an order cannot be undone; repeat the request with confirm=true",
			})
		}
		log.Printf("Error deleting order %s: %v", orderID, err)
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not delete order",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Order %s deleted", orderID),
	})
}

// HandleGetReceipt returns the stored receipt URL for viewing. Read-only;
// order state is never mutated here.
func (h *AdminOrderHandler) HandleGetReceipt(c *fiber.Ctx) error {
	orderID := c.Params("id")
	url, err := h.service.ReceiptURL(orderID)
	if err != nil {
		if errors.Is(err, services.ErrNoReceipt) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order %s has no receipt", orderID),
			})
		}
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": fmt.Sprintf("Order with ID %s not found", orderID),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not retrieve receipt",
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"receipt_url": url,
	})
}
