package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"

	"carsi/internal/models"
	"carsi/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CheckoutHandler handles HTTP requests for the checkout flow.
type CheckoutHandler struct {
	checkout *services.CheckoutService
	settings *services.SettingsService
	validate *validator.Validate
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkout *services.CheckoutService, settings *services.SettingsService) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		settings: settings,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the checkout routes with the Fiber app.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	checkoutRoutes := router.Group("/checkout")
	checkoutRoutes.Post("/", h.HandleStartCheckout)
	checkoutRoutes.Get("/:id", h.HandleGetSession)
	checkoutRoutes.Put("/:id/personal", h.HandlePersonalInfo)
	checkoutRoutes.Put("/:id/city", h.HandleSelectCity)
	checkoutRoutes.Get("/:id/districts", h.HandleDistricts)
	checkoutRoutes.Put("/:id/address", h.HandleAddress)
	checkoutRoutes.Post("/:id/submit", h.HandleSubmit)
	checkoutRoutes.Post("/:id/receipt", h.HandleReceipt)
	checkoutRoutes.Post("/:id/complete", h.HandleComplete)
	checkoutRoutes.Post("/:id/back", h.HandleBack)
}

// StartCheckoutRequest is the cart snapshot opening a session.
type StartCheckoutRequest struct {
	Cart []models.CartLine `json:"cart" validate:"required,min=1,dive"`
}

// sessionResponse is the wire view of a checkout session.
type sessionResponse struct {
	ID           string                 `json:"id"`
	Step         string                 `json:"step"`
	OrderNumber  string                 `json:"order_number"`
	OrderID      string                 `json:"order_id,omitempty"`
	Cart         []models.CartLine      `json:"cart"`
	Draft        services.CheckoutDraft `json:"draft"`
	Districts    []string               `json:"districts"`
	DistrictsErr bool                   `json:"districts_failed"`
	Quote        services.Quote         `json:"quote"`
}

func (h *CheckoutHandler) sessionView(session *services.CheckoutSession) sessionResponse {
	quote, _ := h.checkout.Quote(session.ID)
	districts := session.Districts
	if districts == nil {
		districts = []string{}
	}
	return sessionResponse{
		ID:           session.ID,
		Step:         session.Step.String(),
		OrderNumber:  session.OrderNumber,
		OrderID:      session.OrderID,
		Cart:         session.Cart,
		Draft:        session.Draft,
		Districts:    districts,
		DistrictsErr: session.DistrictsErr,
		Quote:        quote,
	}
}

// checkoutError maps state machine errors to HTTP responses.
func checkoutError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Checkout session not found",
		})
	case errors.Is(err, services.ErrCardNotAccepted):
		// Recoverable: the buyer must return to method selection.
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message":  "Only bank transfer payments are accepted for this order. Switch the payment method to continue.",
			"code":     "card_not_accepted",
			"discount": services.BankTransferDiscountPercent,
		})
	case errors.Is(err, services.ErrWrongStep):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "Action not allowed in the current checkout step",
		})
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrStepIncomplete),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrUnknownProvince),
		errors.Is(err, services.ErrDistrictMismatch),
		errors.Is(err, services.ErrInvalidCargo),
		errors.Is(err, services.ErrInvalidPayment):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	}
	log.Printf("Checkout error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Checkout operation failed",
		"error":   err.Error(),
	})
}

// HandleStartCheckout opens a checkout session over a cart snapshot.
func (h *CheckoutHandler) HandleStartCheckout(c *fiber.Ctx) error {
	var req StartCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing start checkout body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
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

	session, err := h.checkout.StartSession(req.Cart)
	if err != nil {
		return checkoutError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(h.sessionView(session))
}

// HandleGetSession returns the current session state.
func (h *CheckoutHandler) HandleGetSession(c *fiber.Ctx) error {
	session, err := h.checkout.GetSession(c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(h.sessionView(session))
}

// HandlePersonalInfo submits the step-1 form.
func (h *CheckoutHandler) HandlePersonalInfo(c *fiber.Ctx) error {
	var input services.PersonalInfoInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.checkout.SubmitPersonalInfo(c.Params("id"), input); err != nil {
		return checkoutError(c, err)
	}
	session, err := h.checkout.GetSession(c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(h.sessionView(session))
}

// SelectCityRequest picks the shipping province.
type SelectCityRequest struct {
	City string `json:"city"`
}

// HandleSelectCity records the province choice and clears the stale
// district selection.
func (h *CheckoutHandler) HandleSelectCity(c *fiber.Ctx) error {
	var req SelectCityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.checkout.SelectCity(c.Params("id"), req.City); err != nil {
		return checkoutError(c, err)
	}
	session, err := h.checkout.GetSession(c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(h.sessionView(session))
}

// HandleDistricts resolves the district list for the session's city.
func (h *CheckoutHandler) HandleDistricts(c *fiber.Ctx) error {
	districts, failed, err := h.checkout.ResolveDistricts(c.Context(), c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(fiber.Map{
		"districts": districts,
		"failed":    failed,
	})
}

// HandleAddress submits the step-2 form.
func (h *CheckoutHandler) HandleAddress(c *fiber.Ctx) error {
	var input services.AddressInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.checkout.SubmitAddress(c.Params("id"), input); err != nil {
		return checkoutError(c, err)
	}
	session, err := h.checkout.GetSession(c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(h.sessionView(session))
}

// HandleSubmit confirms courier and payment method. For bank transfer the
// order is persisted and the bank account details are returned for the
// transfer step; card submissions are rejected with a recoverable notice.
func (h *CheckoutHandler) HandleSubmit(c *fiber.Ctx) error {
	var input services.ShippingInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	order, err := h.checkout.Submit(c.Context(), c.Params("id"), input)
	if err != nil {
		return checkoutError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total,
		"payment":      h.settings.GetPaymentSettings(),
	})
}

// HandleReceipt attaches an uploaded receipt file to the session.
func (h *CheckoutHandler) HandleReceipt(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "A 'receipt' file is required",
			"error":   err.Error(),
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Could not open uploaded file",
			"error":   err.Error(),
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Could not read uploaded file",
			"error":   err.Error(),
		})
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if err := h.checkout.AttachReceipt(c.Params("id"), fileHeader.Filename, contentType, data); err != nil {
		return checkoutError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":  "Receipt attached",
		"filename": fileHeader.Filename,
	})
}

// HandleComplete finishes the bank-transfer step: uploads the attached
// receipt (if any), records it on the order and clears the cart.
func (h *CheckoutHandler) HandleComplete(c *fiber.Ctx) error {
	if err := h.checkout.CompletePayment(c.Context(), c.Params("id")); err != nil {
		return checkoutError(c, err)
	}
	session, err := h.checkout.GetSession(c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":      "Order received",
		"order_number": session.OrderNumber,
		"order_id":     session.OrderID,
	})
}

// HandleBack steps the session to the previous state without losing form
// data.
func (h *CheckoutHandler) HandleBack(c *fiber.Ctx) error {
	if err := h.checkout.Back(c.Params("id")); err != nil {
		return checkoutError(c, err)
	}
	session, err := h.checkout.GetSession(c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(h.sessionView(session))
}
