package services_test

import (
	"testing"

	"carsi/internal/models"
	"carsi/internal/services"

	"github.com/stretchr/testify/assert"
)

func TestComputeTotal_BankTransferDiscount(t *testing.T) {
	cart := []models.CartLine{
		{ProductID: "p1", Name: "Kilim", Price: 1000.00, Quantity: 1},
		{ProductID: "p2", Name: "Semaver", Price: 1000.00, Quantity: 1},
	}

	quote := services.ComputeTotal(cart, models.PaymentBankTransfer)

	assert.Equal(t, 2000.00, quote.OriginalTotal)
	assert.Equal(t, 1640.00, quote.Total)
	assert.Equal(t, 18, quote.DiscountPercent)
}

func TestComputeTotal_CardPaysFullPrice(t *testing.T) {
	cart := []models.CartLine{
		{ProductID: "p1", Name: "Kilim", Price: 1000.00, Quantity: 2},
	}

	quote := services.ComputeTotal(cart, models.PaymentCard)

	assert.Equal(t, 2000.00, quote.OriginalTotal)
	assert.Equal(t, 2000.00, quote.Total)
	assert.Equal(t, 0, quote.DiscountPercent)
}

func TestComputeTotal_NoMethodSelected(t *testing.T) {
	cart := []models.CartLine{
		{ProductID: "p1", Name: "Kilim", Price: 149.90, Quantity: 1},
	}

	quote := services.ComputeTotal(cart, "")

	assert.Equal(t, 149.90, quote.OriginalTotal)
	assert.Equal(t, 149.90, quote.Total)
	assert.Equal(t, 0, quote.DiscountPercent)
}

func TestComputeTotal_RoundsToWholeKurus(t *testing.T) {
	cart := []models.CartLine{
		{ProductID: "p1", Name: "Fincan", Price: 99.99, Quantity: 1},
	}

	// 99.99 * 0.82 = 81.9918, rounded to 81.99
	quote := services.ComputeTotal(cart, models.PaymentBankTransfer)

	assert.Equal(t, 81.99, quote.Total)
}

func TestComputeTotal_QuantityMultiplies(t *testing.T) {
	cart := []models.CartLine{
		{ProductID: "p1", Name: "Fincan", Price: 25.50, Quantity: 4},
		{ProductID: "p2", Name: "Tepsi", Price: 10.00, Quantity: 3},
	}

	quote := services.ComputeTotal(cart, models.PaymentCard)

	assert.Equal(t, 132.00, quote.OriginalTotal)
}
