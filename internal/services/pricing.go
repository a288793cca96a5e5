package services

import (
	"math"

	"carsi/internal/models"
)

// BankTransferDiscountPercent is the cash discount applied when the buyer
// pays by bank transfer instead of card.
const BankTransferDiscountPercent = 18

// Quote is the order total computed for a cart snapshot under a payment
// method.
type Quote struct {
	OriginalTotal   float64 `json:"original_total"`
	Total           float64 `json:"total"`
	DiscountPercent int     `json:"discount_percent"`
}

// ComputeTotal prices a cart snapshot under the selected payment method.
// Bank transfer carries the cash discount; card pays full price. Pure
// function, safe to call on every selection change.
func ComputeTotal(lines []models.CartLine, method models.PaymentMethod) Quote {
	original := models.CartTotal(lines)
	if method == models.PaymentBankTransfer {
		return Quote{
			OriginalTotal:   original,
			Total:           roundCurrency(original * (1 - float64(BankTransferDiscountPercent)/100)),
			DiscountPercent: BankTransferDiscountPercent,
		}
	}
	return Quote{
		OriginalTotal:   original,
		Total:           original,
		DiscountPercent: 0,
	}
}

// roundCurrency rounds to whole kurus to keep discounted totals stable.
func roundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}
