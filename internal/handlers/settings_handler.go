package handlers

import (
	"fmt"
	"log"

	"carsi/internal/models"
	"carsi/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// SettingsHandler serves the storefront payment settings.
type SettingsHandler struct {
	service  *services.SettingsService
	validate *validator.Validate
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(service *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the public settings routes with the Fiber app.
func (h *SettingsHandler) RegisterRoutes(router fiber.Router) {
	settingsRoutes := router.Group("/settings")
	settingsRoutes.Get("/payment", h.HandleGetPaymentSettings)
}

// RegisterAdminRoutes registers the settings management routes. They must
// sit behind the admin auth middleware.
func (h *SettingsHandler) RegisterAdminRoutes(router fiber.Router) {
	settingsRoutes := router.Group("/settings")
	settingsRoutes.Put("/payment", h.HandleSavePaymentSettings)
}

// HandleGetPaymentSettings returns the bank transfer details shown to
// customers. Missing settings fall back to defaults so checkout never
// renders an empty IBAN.
func (h *SettingsHandler) HandleGetPaymentSettings(c *fiber.Ctx) error {
	return c.JSON(h.service.GetPaymentSettings())
}

// HandleSavePaymentSettings updates the bank transfer details.
func (h *SettingsHandler) HandleSavePaymentSettings(c *fiber.Ctx) error {
	var settings models.PaymentSettings
	if err := c.BodyParser(&settings); err != nil {
		log.Printf("Error parsing payment settings body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(settings); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}

	if err := h.service.SavePaymentSettings(&settings); err != nil {
		log.Printf("Error saving payment settings: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not save payment settings",
			"error":   err.Error(),
		})
	}
	return c.JSON(settings)
}
