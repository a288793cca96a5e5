package services_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"carsi/internal/models"
	"carsi/internal/repositories"
	"carsi/internal/services"
	"carsi/pkg/blobstore"

	"github.com/stretchr/testify/assert"
)

// stubLookup is a canned geography directory. onLookup runs while no
// service lock is held, which lets tests interleave a city change with an
// in-flight district fetch.
type stubLookup struct {
	districts map[string][]string
	err       error
	onLookup  func(city string)
}

func (s *stubLookup) Districts(_ context.Context, city string) ([]string, error) {
	if s.onLookup != nil {
		s.onLookup(city)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.districts[city], nil
}

// recordingPublisher captures published event types in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishEvent(eventType string, _ map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) Count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// failingStore rejects every upload.
type failingStore struct{}

func (failingStore) Put(_ context.Context, key string, _ string, _ int64, _ io.Reader) (string, error) {
	return "", fmt.Errorf("upload of %s refused", key)
}

type checkoutFixture struct {
	svc       *services.CheckoutService
	orderRepo *repositories.MockOrderRepository
	leadRepo  *repositories.MockLeadRepository
	receipts  *blobstore.MemoryStore
	events    *recordingPublisher
	geo       *stubLookup
}

func newCheckoutFixture() *checkoutFixture {
	f := &checkoutFixture{
		orderRepo: repositories.NewMockOrderRepository(),
		leadRepo:  repositories.NewMockLeadRepository(),
		receipts:  blobstore.NewMemoryStore(),
		events:    &recordingPublisher{},
		geo: &stubLookup{districts: map[string][]string{
			"İstanbul": {"Beşiktaş", "Kadıköy"},
			"Ankara":   {"Çankaya", "Keçiören"},
		}},
	}
	f.svc = services.NewCheckoutService(f.orderRepo, f.leadRepo, f.geo, f.receipts, f.events)
	return f
}

func testCart() []models.CartLine {
	return []models.CartLine{
		{ProductID: "p1", Name: "Kilim", Price: 1000.00, Quantity: 1},
		{ProductID: "p2", Name: "Semaver", Price: 1000.00, Quantity: 1},
	}
}

// advanceToPaymentSelect walks a fresh session to the payment-select step.
func advanceToPaymentSelect(t *testing.T, f *checkoutFixture) *services.CheckoutSession {
	t.Helper()

	session, err := f.svc.StartSession(testCart())
	assert.NoError(t, err)

	err = f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "0555 123 45 67", Email: "ayse@example.com",
	})
	assert.NoError(t, err)

	assert.NoError(t, f.svc.SelectCity(session.ID, "İstanbul"))
	_, failed, err := f.svc.ResolveDistricts(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.False(t, failed)

	err = f.svc.SubmitAddress(session.ID, services.AddressInput{
		Address: "Moda Cad. 1", District: "Kadıköy", PostalCode: "34710",
	})
	assert.NoError(t, err)
	assert.Equal(t, services.StepPaymentSelect, session.Step)
	return session
}

func TestStartSession_EmptyCartRejected(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.StartSession(nil)
	assert.ErrorIs(t, err, services.ErrEmptyCart)

	_, err = f.svc.StartSession([]models.CartLine{})
	assert.ErrorIs(t, err, services.ErrEmptyCart)
}

func TestStartSession_InvalidCartLineRejected(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.StartSession([]models.CartLine{
		{ProductID: "p1", Name: "Kilim", Price: 0, Quantity: 1},
	})
	assert.Error(t, err)

	_, err = f.svc.StartSession([]models.CartLine{
		{ProductID: "p1", Name: "Kilim", Price: 100, Quantity: 0},
	})
	assert.Error(t, err)
}

func TestStartSession_SnapshotsCart(t *testing.T) {
	f := newCheckoutFixture()
	cart := testCart()

	session, err := f.svc.StartSession(cart)
	assert.NoError(t, err)

	// Mutating the caller's slice must not reach the session.
	cart[0].Price = 1
	assert.Equal(t, 1000.00, session.Cart[0].Price)
}

func TestSubmitPersonalInfo_NormalizesAndAdvances(t *testing.T) {
	f := newCheckoutFixture()
	session, _ := f.svc.StartSession(testCart())

	err := f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "  Ayşe ", LastName: "Demir", Phone: "+90 (555) 123-45-67", Email: "ayse@example.com",
	})

	assert.NoError(t, err)
	assert.Equal(t, services.StepAddress, session.Step)
	assert.Equal(t, "Ayşe", session.Draft.FirstName)
	assert.Equal(t, "905551234567", session.Draft.Phone)
}

func TestSubmitPersonalInfo_Validation(t *testing.T) {
	f := newCheckoutFixture()
	session, _ := f.svc.StartSession(testCart())

	err := f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567", Email: "not an email",
	})
	assert.ErrorIs(t, err, services.ErrInvalidEmail)

	err = f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir",
	})
	assert.ErrorIs(t, err, services.ErrStepIncomplete)
	assert.Equal(t, services.StepPersonalInfo, session.Step)

	// Email is optional.
	err = f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
	})
	assert.NoError(t, err)
}

func TestLeadCapture_ExactlyOncePerSession(t *testing.T) {
	f := newCheckoutFixture()
	session, _ := f.svc.StartSession(testCart())
	input := services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
	}

	assert.NoError(t, f.svc.SubmitPersonalInfo(session.ID, input))
	assert.NoError(t, f.svc.Back(session.ID))
	assert.NoError(t, f.svc.SubmitPersonalInfo(session.ID, input))

	assert.Len(t, f.leadRepo.Incomplete, 1)
	assert.Equal(t, 1, f.events.Count("lead.captured"))
	assert.Equal(t, "05551234567", f.leadRepo.Incomplete[0].Phone)
	assert.Equal(t, "incomplete", f.leadRepo.Incomplete[0].Status)
}

func TestLeadCapture_FailureDoesNotBlockTransition(t *testing.T) {
	f := newCheckoutFixture()
	f.leadRepo.FailWrites = true
	session, _ := f.svc.StartSession(testCart())

	err := f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
	})

	assert.NoError(t, err)
	assert.Equal(t, services.StepAddress, session.Step)
	assert.Empty(t, f.leadRepo.Incomplete)
	assert.Equal(t, 0, f.events.Count("lead.captured"))
}

func TestSelectCity_UnknownProvinceRejected(t *testing.T) {
	f := newCheckoutFixture()
	session, _ := f.svc.StartSession(testCart())
	assert.NoError(t, f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
	}))

	err := f.svc.SelectCity(session.ID, "Atlantis")
	assert.ErrorIs(t, err, services.ErrUnknownProvince)
}

func TestSelectCity_ClearsDistrictState(t *testing.T) {
	f := newCheckoutFixture()
	session, _ := f.svc.StartSession(testCart())
	assert.NoError(t, f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
	}))

	assert.NoError(t, f.svc.SelectCity(session.ID, "İstanbul"))
	districts, failed, err := f.svc.ResolveDistricts(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.False(t, failed)
	assert.Equal(t, []string{"Beşiktaş", "Kadıköy"}, districts)

	// Picking a new city drops the previous list; Kadıköy must not leak
	// into an Ankara address.
	assert.NoError(t, f.svc.SelectCity(session.ID, "Ankara"))
	assert.Empty(t, session.Districts)
	assert.Empty(t, session.Draft.District)

	err = f.svc.SubmitAddress(session.ID, services.AddressInput{
		Address: "Moda Cad. 1", District: "Kadıköy",
	})
	assert.ErrorIs(t, err, services.ErrDistrictMismatch)
}

func TestResolveDistricts_StaleResponseDiscarded(t *testing.T) {
	f := newCheckoutFixture()
	session, _ := f.svc.StartSession(testCart())
	assert.NoError(t, f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
	}))
	assert.NoError(t, f.svc.SelectCity(session.ID, "İstanbul"))

	// The buyer switches to Ankara while the İstanbul lookup is in flight.
	f.geo.onLookup = func(city string) {
		if city == "İstanbul" {
			assert.NoError(t, f.svc.SelectCity(session.ID, "Ankara"))
		}
	}

	_, failed, err := f.svc.ResolveDistricts(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.False(t, failed)
	assert.Empty(t, session.Districts, "İstanbul's districts must not repopulate an Ankara draft")
	assert.Equal(t, "Ankara", session.Draft.City)

	f.geo.onLookup = nil
	districts, failed, err := f.svc.ResolveDistricts(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.False(t, failed)
	assert.Equal(t, []string{"Çankaya", "Keçiören"}, districts)
}

func TestResolveDistricts_LookupFailureDegrades(t *testing.T) {
	f := newCheckoutFixture()
	f.geo.err = fmt.Errorf("connection refused")
	session, _ := f.svc.StartSession(testCart())
	assert.NoError(t, f.svc.SubmitPersonalInfo(session.ID, services.PersonalInfoInput{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
	}))
	assert.NoError(t, f.svc.SelectCity(session.ID, "İstanbul"))

	districts, failed, err := f.svc.ResolveDistricts(context.Background(), session.ID)
	assert.NoError(t, err, "lookup failure is not a session failure")
	assert.True(t, failed)
	assert.Empty(t, districts)
	assert.Equal(t, "İstanbul", session.Draft.City, "city selection survives the failed lookup")

	// No district is selectable, so the address step cannot be left yet.
	err = f.svc.SubmitAddress(session.ID, services.AddressInput{
		Address: "Moda Cad. 1", District: "Kadıköy",
	})
	assert.ErrorIs(t, err, services.ErrDistrictMismatch)

	// The directory recovers and the same step succeeds.
	f.geo.err = nil
	_, failed, err = f.svc.ResolveDistricts(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.False(t, failed)
	assert.NoError(t, f.svc.SubmitAddress(session.ID, services.AddressInput{
		Address: "Moda Cad. 1", District: "Kadıköy",
	}))
}

func TestSubmit_CardRejectedWithoutSideEffects(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)

	_, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentCard,
	})

	assert.ErrorIs(t, err, services.ErrCardNotAccepted)
	assert.Equal(t, services.StepPaymentSelect, session.Step)
	orders, _ := f.orderRepo.GetAll()
	assert.Empty(t, orders, "a rejected card submission must not create an order")
	assert.Equal(t, 0, f.events.Count("order.created"))

	// Switching to bank transfer recovers the same session.
	order, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.NoError(t, err)
	assert.NotNil(t, order)
	assert.Equal(t, services.StepBankTransfer, session.Step)
}

func TestSubmit_BankTransferCreatesPendingOrder(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)

	order, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "aras", PaymentMethod: models.PaymentBankTransfer,
	})

	assert.NoError(t, err)
	assert.Equal(t, session.OrderNumber, order.OrderNumber)
	assert.Equal(t, 2000.00, order.OriginalTotal)
	assert.Equal(t, 1640.00, order.Total)
	assert.Equal(t, 18, order.Discount)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, models.PaymentAwaiting, order.PaymentStatus)
	assert.Equal(t, "aras", order.CargoCompany)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, "Kilim", order.Items[0].Name)
	assert.Equal(t, "Kadıköy", order.ShippingAddress.District)

	assert.Equal(t, 1, f.events.Count("order.created"))

	// The buyer left an email, so a completed-checkout contact is kept.
	assert.Len(t, f.leadRepo.Completed, 1)
	assert.Equal(t, order.ID, f.leadRepo.Completed[0].OrderID)

	stored, err := f.orderRepo.GetByID(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.Total, stored.Total)
}

func TestSubmit_InvalidSelectionsRejected(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)

	_, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "acme-express", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.ErrorIs(t, err, services.ErrInvalidCargo)

	_, err = f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: "bitcoin",
	})
	assert.ErrorIs(t, err, services.ErrInvalidPayment)

	_, err = f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici",
	})
	assert.ErrorIs(t, err, services.ErrStepIncomplete)
}

func TestSubmit_AfterBackDoesNotDuplicateOrder(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)

	first, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.NoError(t, err)

	assert.NoError(t, f.svc.Back(session.ID))
	assert.Equal(t, services.StepPaymentSelect, session.Step)

	second, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	orders, _ := f.orderRepo.GetAll()
	assert.Len(t, orders, 1)
	assert.Equal(t, 1, f.events.Count("order.created"))
	assert.Len(t, f.leadRepo.Completed, 1)
}

func TestCompletePayment_UploadsReceiptAndClearsCart(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)
	order, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.NoError(t, err)

	err = f.svc.AttachReceipt(session.ID, "dekont.pdf", "application/pdf", []byte("%PDF-1.4 receipt"))
	assert.NoError(t, err)
	attached, err := f.svc.ReceiptAttached(session.ID)
	assert.NoError(t, err)
	assert.True(t, attached)

	assert.NoError(t, f.svc.CompletePayment(context.Background(), session.ID))

	assert.Equal(t, services.StepComplete, session.Step)
	assert.Nil(t, session.Cart)

	stored, err := f.orderRepo.GetByID(order.ID)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.ReceiptURL, "memory://receipts/"))
	assert.Contains(t, stored.ReceiptURL, order.ID)
	assert.Contains(t, stored.ReceiptURL, "dekont.pdf")
	assert.Equal(t, models.PaymentPendingVerification, stored.PaymentStatus)
	assert.NotNil(t, stored.ReceiptUploadedAt)
	assert.Equal(t, 1, f.events.Count("order.receipt_uploaded"))
}

func TestCompletePayment_WithoutReceipt(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)
	order, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.NoError(t, err)

	assert.NoError(t, f.svc.CompletePayment(context.Background(), session.ID))

	// The cart is cleared whether or not a receipt was uploaded.
	assert.Equal(t, services.StepComplete, session.Step)
	assert.Nil(t, session.Cart)

	stored, _ := f.orderRepo.GetByID(order.ID)
	assert.Empty(t, stored.ReceiptURL)
	assert.Equal(t, models.PaymentAwaiting, stored.PaymentStatus)
	assert.Equal(t, 0, f.events.Count("order.receipt_uploaded"))
}

func TestCompletePayment_UploadFailureKeepsStep(t *testing.T) {
	f := newCheckoutFixture()
	f.svc = services.NewCheckoutService(f.orderRepo, f.leadRepo, f.geo, failingStore{}, f.events)
	session := advanceToPaymentSelect(t, f)
	_, err := f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.NoError(t, err)
	assert.NoError(t, f.svc.AttachReceipt(session.ID, "dekont.jpg", "image/jpeg", []byte("jpeg")))

	err = f.svc.CompletePayment(context.Background(), session.ID)

	assert.Error(t, err)
	assert.Equal(t, services.StepBankTransfer, session.Step, "the buyer must be able to retry")
	assert.NotNil(t, session.Cart)
}

func TestBack_RetainsDraftAndGuardsFirstStep(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)

	assert.NoError(t, f.svc.Back(session.ID))
	assert.Equal(t, services.StepAddress, session.Step)
	assert.Equal(t, "Kadıköy", session.Draft.District)

	assert.NoError(t, f.svc.Back(session.ID))
	assert.Equal(t, services.StepPersonalInfo, session.Step)
	assert.Equal(t, "Ayşe", session.Draft.FirstName)

	assert.ErrorIs(t, f.svc.Back(session.ID), services.ErrWrongStep)
}

func TestWrongStepAndUnknownSession(t *testing.T) {
	f := newCheckoutFixture()
	session, _ := f.svc.StartSession(testCart())

	err := f.svc.SubmitAddress(session.ID, services.AddressInput{Address: "Moda Cad. 1"})
	assert.ErrorIs(t, err, services.ErrWrongStep)

	_, err = f.svc.Submit(context.Background(), session.ID, services.ShippingInput{})
	assert.ErrorIs(t, err, services.ErrWrongStep)

	err = f.svc.CompletePayment(context.Background(), session.ID)
	assert.ErrorIs(t, err, services.ErrWrongStep)

	_, err = f.svc.GetSession("no-such-session")
	assert.ErrorIs(t, err, services.ErrSessionNotFound)

	err = f.svc.SubmitPersonalInfo("no-such-session", services.PersonalInfoInput{})
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
}

func TestQuote_FollowsSelectedMethod(t *testing.T) {
	f := newCheckoutFixture()
	session := advanceToPaymentSelect(t, f)

	quote, err := f.svc.Quote(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2000.00, quote.Total, "no method selected yet")

	_, err = f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentCard,
	})
	assert.ErrorIs(t, err, services.ErrCardNotAccepted)

	quote, err = f.svc.Quote(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2000.00, quote.Total, "card pays full price")

	_, err = f.svc.Submit(context.Background(), session.ID, services.ShippingInput{
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	})
	assert.NoError(t, err)

	quote, err = f.svc.Quote(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1640.00, quote.Total)
	assert.Equal(t, 18, quote.DiscountPercent)
}
