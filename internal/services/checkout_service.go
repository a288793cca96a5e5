package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"carsi/internal/models"
	"carsi/internal/repositories"
	"carsi/pkg/blobstore"
	"carsi/pkg/rabbitmq"
	"carsi/pkg/turkiye"

	"github.com/google/uuid"
)

// CheckoutStep identifies where a checkout session currently is.
type CheckoutStep int

const (
	StepPersonalInfo CheckoutStep = iota
	StepAddress
	StepPaymentSelect
	StepBankTransfer
	StepComplete
)

// String returns the wire name of the step.
func (s CheckoutStep) String() string {
	switch s {
	case StepPersonalInfo:
		return "personal_info"
	case StepAddress:
		return "address"
	case StepPaymentSelect:
		return "payment_select"
	case StepBankTransfer:
		return "bank_transfer"
	case StepComplete:
		return "complete"
	}
	return "unknown"
}

// Sentinel errors the handlers map to HTTP responses.
var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrWrongStep        = errors.New("action not allowed in the current step")
	ErrStepIncomplete   = errors.New("current step is not complete")
	ErrInvalidEmail     = errors.New("email address is not valid")
	ErrUnknownProvince  = errors.New("city is not a known province")
	ErrDistrictMismatch = errors.New("district does not belong to the selected city")
	ErrInvalidCargo     = errors.New("unknown cargo company")
	ErrInvalidPayment   = errors.New("unknown payment method")
	ErrCardNotAccepted  = errors.New("only bank transfer payments can complete this order")
)

// Basic syntactic check only; the address is optional anyway.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var nonDigits = regexp.MustCompile(`\D`)

// CheckoutDraft is the accumulated form state of one checkout session.
// Going back never erases it.
type CheckoutDraft struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code"`
	OrderNote  string `json:"order_note"`

	CargoCompany  string               `json:"cargo_company"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

// receiptFile is a receipt attached during the bank-transfer step, held
// until the buyer confirms payment completion.
type receiptFile struct {
	name        string
	contentType string
	data        []byte
}

// CheckoutSession is one buyer's in-flight checkout.
type CheckoutSession struct {
	ID          string
	Step        CheckoutStep
	Cart        []models.CartLine
	Draft       CheckoutDraft
	OrderNumber string // 7-digit display label, not unique
	OrderID     string // set once the order is persisted

	// Districts resolved for districtsCity; a lookup result for any other
	// city is stale and discarded.
	Districts     []string
	districtsCity string
	DistrictsErr  bool

	receipt      *receiptFile
	leadCaptured bool
	CreatedAt    time.Time
}

// PersonalInfoInput is the step-1 form payload.
type PersonalInfoInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// AddressInput is the step-2 form payload. City is selected separately so
// districts can be resolved before submission.
type AddressInput struct {
	Address    string `json:"address"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code"`
	OrderNote  string `json:"order_note"`
}

// ShippingInput is the step-3 payload confirming courier and payment
// method.
type ShippingInput struct {
	CargoCompany  string               `json:"cargo_company"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

// CheckoutService drives the checkout state machine. Sessions are held in
// memory; every durable effect goes through the injected repositories.
type CheckoutService struct {
	orderRepo repositories.OrderRepository
	leadRepo  repositories.LeadRepository
	geo       turkiye.Lookup
	receipts  blobstore.Store
	events    rabbitmq.Publisher

	mu       sync.RWMutex
	sessions map[string]*CheckoutSession

	orderNumberFn func() string // overridable for tests
}

// NewCheckoutService creates a new CheckoutService. events may be nil when
// no broker is configured.
func NewCheckoutService(
	orderRepo repositories.OrderRepository,
	leadRepo repositories.LeadRepository,
	geo turkiye.Lookup,
	receipts blobstore.Store,
	events rabbitmq.Publisher,
) *CheckoutService {
	return &CheckoutService{
		orderRepo:     orderRepo,
		leadRepo:      leadRepo,
		geo:           geo,
		receipts:      receipts,
		events:        events,
		sessions:      make(map[string]*CheckoutSession),
		orderNumberFn: generateOrderNumber,
	}
}

// generateOrderNumber produces the 7-digit display number shown to the
// buyer. It is a human-friendly label only; the persisted UUID is the
// authoritative identifier.
func generateOrderNumber() string {
	return fmt.Sprintf("%d", 1000000+rand.Intn(9000000))
}

// StartSession opens a checkout session over a cart snapshot. An empty
// cart is a precondition failure, not a state.
func (s *CheckoutService) StartSession(cart []models.CartLine) (*CheckoutSession, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range cart {
		if line.Price <= 0 || line.Quantity <= 0 {
			return nil, fmt.Errorf("invalid cart line for product %s", line.ProductID)
		}
	}

	snapshot := make([]models.CartLine, len(cart))
	copy(snapshot, cart)

	session := &CheckoutSession{
		ID:          uuid.New().String(),
		Step:        StepPersonalInfo,
		Cart:        snapshot,
		OrderNumber: s.orderNumberFn(),
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// GetSession returns a copy-safe pointer to the session.
func (s *CheckoutService) GetSession(id string) (*CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Quote prices the session's cart under the currently selected payment
// method. Recomputed on every call, never cached.
func (s *CheckoutService) Quote(id string) (Quote, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return Quote{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeTotal(session.Cart, session.Draft.PaymentMethod), nil
}

// isStep1Valid reports whether the personal-info step can be left.
func isStep1Valid(d CheckoutDraft) bool {
	if d.FirstName == "" || d.LastName == "" || d.Phone == "" {
		return false
	}
	return d.Email == "" || emailPattern.MatchString(d.Email)
}

// isStep2Valid reports whether the address step can be left.
func isStep2Valid(d CheckoutDraft) bool {
	return d.Address != "" && d.City != "" && d.District != ""
}

// isStep3Valid reports whether the payment-select step can be submitted.
func isStep3Valid(d CheckoutDraft) bool {
	return d.CargoCompany != "" && d.PaymentMethod != ""
}

// SubmitPersonalInfo stores the step-1 fields and advances to the address
// step. The abandoned-cart lead snapshot is written exactly once per
// session, best-effort; its failure never blocks the transition.
func (s *CheckoutService) SubmitPersonalInfo(id string, input PersonalInfoInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Step != StepPersonalInfo {
		return ErrWrongStep
	}

	if input.Email != "" && !emailPattern.MatchString(input.Email) {
		return ErrInvalidEmail
	}

	session.Draft.FirstName = strings.TrimSpace(input.FirstName)
	session.Draft.LastName = strings.TrimSpace(input.LastName)
	session.Draft.Phone = nonDigits.ReplaceAllString(input.Phone, "")
	session.Draft.Email = strings.TrimSpace(input.Email)

	if !isStep1Valid(session.Draft) {
		return ErrStepIncomplete
	}

	if !session.leadCaptured {
		session.leadCaptured = true
		lead := &models.IncompleteLead{
			FirstName: session.Draft.FirstName,
			LastName:  session.Draft.LastName,
			Phone:     session.Draft.Phone,
			Email:     session.Draft.Email,
			Step:      int(session.Step),
			Status:    "incomplete",
		}
		if err := s.leadRepo.CreateIncomplete(lead); err != nil {
			// Advisory telemetry only; log and move on.
			log.Printf("Warning: failed to save incomplete lead for session %s: %v", session.ID, err)
		} else {
			s.publishEvent("lead.captured", map[string]interface{}{
				"phone": session.Draft.Phone,
				"email": session.Draft.Email,
			})
		}
	}

	session.Step = StepAddress
	return nil
}

// SelectCity records the chosen province and clears any previously
// selected district and district list. A stale district from a prior city
// is never retained.
func (s *CheckoutService) SelectCity(id string, city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Step != StepAddress {
		return ErrWrongStep
	}
	if city != "" && !turkiye.IsProvince(city) {
		return ErrUnknownProvince
	}

	session.Draft.City = city
	session.Draft.District = ""
	session.Districts = nil
	session.districtsCity = ""
	session.DistrictsErr = false
	return nil
}

// ResolveDistricts queries the geography directory for the session's
// current city and stores the result on the session. The result is tagged
// with the originating city; if the draft's city changed while the lookup
// was in flight, the response is discarded. Lookup failure degrades to an
// empty list with the failed flag set.
func (s *CheckoutService) ResolveDistricts(ctx context.Context, id string) ([]string, bool, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.RUnlock()
		return nil, false, ErrSessionNotFound
	}
	city := session.Draft.City
	s.mu.RUnlock()

	if city == "" {
		return []string{}, false, nil
	}

	districts, lookupErr := s.geo.Districts(ctx, city)

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok = s.sessions[id]
	if !ok {
		return nil, false, ErrSessionNotFound
	}
	if session.Draft.City != city {
		// Superseded by a newer city selection; do not repopulate.
		return session.Districts, session.DistrictsErr, nil
	}

	if lookupErr != nil {
		log.Printf("Warning: district lookup failed for %s: %v", city, lookupErr)
		session.Districts = []string{}
		session.districtsCity = city
		session.DistrictsErr = true
		return session.Districts, true, nil
	}

	session.Districts = districts
	session.districtsCity = city
	session.DistrictsErr = false
	return districts, false, nil
}

// SubmitAddress stores the step-2 fields and advances to payment
// selection. The district must belong to the district set resolved for
// the currently selected city.
func (s *CheckoutService) SubmitAddress(id string, input AddressInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Step != StepAddress {
		return ErrWrongStep
	}

	if input.District != "" {
		if session.districtsCity != session.Draft.City || !containsString(session.Districts, input.District) {
			return ErrDistrictMismatch
		}
	}

	session.Draft.Address = strings.TrimSpace(input.Address)
	session.Draft.District = input.District
	session.Draft.PostalCode = strings.TrimSpace(input.PostalCode)
	session.Draft.OrderNote = strings.TrimSpace(input.OrderNote)

	if !isStep2Valid(session.Draft) {
		return ErrStepIncomplete
	}

	session.Step = StepPaymentSelect
	return nil
}

// Submit confirms courier and payment method and, for bank transfer,
// persists the order. Card is presented as selectable but is never a
// valid terminal path: submission with card is rejected outright and no
// order is created. On a storage failure the session stays in the
// payment-select step so the buyer can retry.
func (s *CheckoutService) Submit(ctx context.Context, id string, input ShippingInput) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Step != StepPaymentSelect {
		return nil, ErrWrongStep
	}

	if input.CargoCompany != "" && !models.IsValidCargoCompany(input.CargoCompany) {
		return nil, ErrInvalidCargo
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.IsValid() {
		return nil, ErrInvalidPayment
	}

	session.Draft.CargoCompany = input.CargoCompany
	session.Draft.PaymentMethod = input.PaymentMethod

	if !isStep3Valid(session.Draft) {
		return nil, ErrStepIncomplete
	}

	// Recoverable: the buyer is sent back to method selection.
	if session.Draft.PaymentMethod == models.PaymentCard {
		return nil, ErrCardNotAccepted
	}

	// Came back from the bank-transfer step and submitted again: the order
	// already exists, re-advance without repeating side effects.
	if session.OrderID != "" {
		order, err := s.orderRepo.GetByID(session.OrderID)
		if err != nil {
			return nil, fmt.Errorf("failed to load submitted order: %w", err)
		}
		session.Step = StepBankTransfer
		return order, nil
	}

	quote := ComputeTotal(session.Cart, session.Draft.PaymentMethod)

	items := make([]models.OrderItem, 0, len(session.Cart))
	for _, line := range session.Cart {
		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.Price,
			Quantity:  line.Quantity,
			Image:     line.Image,
		})
	}

	order := &models.Order{
		ID:          uuid.New().String(),
		OrderNumber: session.OrderNumber,
		Customer: models.Customer{
			FirstName: session.Draft.FirstName,
			LastName:  session.Draft.LastName,
			Phone:     session.Draft.Phone,
			Email:     session.Draft.Email,
		},
		ShippingAddress: models.ShippingAddress{
			Address:    session.Draft.Address,
			City:       session.Draft.City,
			District:   session.Draft.District,
			PostalCode: session.Draft.PostalCode,
			OrderNote:  session.Draft.OrderNote,
		},
		Items:         items,
		Total:         quote.Total,
		OriginalTotal: quote.OriginalTotal,
		Discount:      quote.DiscountPercent,
		CargoCompany:  session.Draft.CargoCompany,
		PaymentMethod: session.Draft.PaymentMethod,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentAwaiting,
	}

	if err := s.orderRepo.Create(order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if session.Draft.Email != "" {
		lead := &models.CompletedLead{
			FirstName:  session.Draft.FirstName,
			LastName:   session.Draft.LastName,
			Phone:      session.Draft.Phone,
			Email:      session.Draft.Email,
			Address:    session.Draft.Address,
			City:       session.Draft.City,
			District:   session.Draft.District,
			PostalCode: session.Draft.PostalCode,
			OrderID:    order.ID,
			Status:     "completed",
		}
		if err := s.leadRepo.CreateCompleted(lead); err != nil {
			log.Printf("Warning: failed to save completed lead for order %s: %v", order.ID, err)
		}
	}

	s.publishEvent("order.created", map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status.String(),
		"total":        order.Total,
	})

	session.OrderID = order.ID
	session.Step = StepBankTransfer
	return order, nil
}

// AttachReceipt holds an uploaded receipt file on the session until the
// buyer confirms the payment. Replaces any previously attached file.
func (s *CheckoutService) AttachReceipt(id string, filename string, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Step != StepBankTransfer {
		return ErrWrongStep
	}
	if len(data) == 0 {
		return fmt.Errorf("receipt file is empty")
	}

	session.receipt = &receiptFile{
		name:        filename,
		contentType: contentType,
		data:        data,
	}
	return nil
}

// ReceiptAttached reports whether the session has a pending receipt file.
func (s *CheckoutService) ReceiptAttached(id string) (bool, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return session.receipt != nil, nil
}

// CompletePayment finishes the bank-transfer step. If a receipt is
// attached it is uploaded and recorded on the order first; an upload or
// update failure keeps the session in the bank-transfer step so the buyer
// can retry. On success the cart is cleared unconditionally, receipt or
// not, and the session reaches its terminal state.
func (s *CheckoutService) CompletePayment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Step != StepBankTransfer {
		return ErrWrongStep
	}

	if session.receipt != nil && session.OrderID != "" {
		key := fmt.Sprintf("receipts/%s_%d_%s", session.OrderID, time.Now().UnixMilli(), session.receipt.name)
		url, err := s.receipts.Put(ctx, key, session.receipt.contentType,
			int64(len(session.receipt.data)), bytes.NewReader(session.receipt.data))
		if err != nil {
			return fmt.Errorf("failed to upload receipt: %w", err)
		}

		order, err := s.orderRepo.GetByID(session.OrderID)
		if err != nil {
			return fmt.Errorf("failed to load order for receipt attachment: %w", err)
		}
		order.AttachReceipt(url, time.Now())
		if err := s.orderRepo.Update(order); err != nil {
			return fmt.Errorf("failed to record receipt on order %s: %w", order.ID, err)
		}

		s.publishEvent("order.receipt_uploaded", map[string]interface{}{
			"order_id":    order.ID,
			"receipt_url": url,
		})
	}

	session.Cart = nil
	session.receipt = nil
	session.Step = StepComplete
	return nil
}

// Back steps the session to the previous state. Form data is retained and
// no side effects run.
func (s *CheckoutService) Back(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	switch session.Step {
	case StepAddress, StepPaymentSelect, StepBankTransfer:
		session.Step--
		return nil
	}
	return ErrWrongStep
}

// publishEvent emits a storefront event best-effort. Caller must hold no
// expectation of delivery.
func (s *CheckoutService) publishEvent(eventType string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(eventType, payload); err != nil {
		log.Printf("Warning: failed to publish %s event: %v", eventType, err)
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
