package services

import (
	"regexp"
	"testing"

	"carsi/internal/models"
	"carsi/internal/repositories"
	"carsi/pkg/blobstore"

	"github.com/stretchr/testify/assert"
)

func TestGenerateOrderNumber_SevenDigits(t *testing.T) {
	pattern := regexp.MustCompile(`^[1-9]\d{6}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, pattern, generateOrderNumber())
	}
}

func TestStartSession_UsesOrderNumberGenerator(t *testing.T) {
	svc := NewCheckoutService(
		repositories.NewMockOrderRepository(),
		repositories.NewMockLeadRepository(),
		nil,
		blobstore.NewMemoryStore(),
		nil,
	)
	svc.orderNumberFn = func() string { return "1234567" }

	session, err := svc.StartSession([]models.CartLine{
		{ProductID: "p1", Name: "Kilim", Price: 100, Quantity: 1},
	})

	assert.NoError(t, err)
	assert.Equal(t, "1234567", session.OrderNumber)
	assert.NotEmpty(t, session.ID, "session ID must be generated independently of the display number")
	assert.NotEqual(t, session.OrderNumber, session.ID)
}

func TestStepGuards(t *testing.T) {
	valid := CheckoutDraft{
		FirstName: "Ayşe", LastName: "Demir", Phone: "05551234567",
		Address: "Moda Cad. 1", City: "İstanbul", District: "Kadıköy",
		CargoCompany: "yurtici", PaymentMethod: models.PaymentBankTransfer,
	}
	assert.True(t, isStep1Valid(valid))
	assert.True(t, isStep2Valid(valid))
	assert.True(t, isStep3Valid(valid))

	noPhone := valid
	noPhone.Phone = ""
	assert.False(t, isStep1Valid(noPhone))

	badEmail := valid
	badEmail.Email = "not-an-email"
	assert.False(t, isStep1Valid(badEmail))

	optionalEmail := valid
	optionalEmail.Email = ""
	assert.True(t, isStep1Valid(optionalEmail))

	noDistrict := valid
	noDistrict.District = ""
	assert.False(t, isStep2Valid(noDistrict))

	noMethod := valid
	noMethod.PaymentMethod = ""
	assert.False(t, isStep3Valid(noMethod))
}

func TestCheckoutStep_String(t *testing.T) {
	assert.Equal(t, "personal_info", StepPersonalInfo.String())
	assert.Equal(t, "address", StepAddress.String())
	assert.Equal(t, "payment_select", StepPaymentSelect.String())
	assert.Equal(t, "bank_transfer", StepBankTransfer.String())
	assert.Equal(t, "complete", StepComplete.String())
}
