package models

import "time"

// PaymentSettings is the singleton record supplying the bank account shown
// on the bank-transfer step.
type PaymentSettings struct {
	ID            uint      `json:"-" gorm:"primaryKey"`
	IBAN          string    `json:"iban"`
	AccountHolder string    `json:"account_holder"`
	BankName      string    `json:"bank_name"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Defaults used when no settings record has been stored yet.
const (
	DefaultIBAN          = "TR12 3456 7890 1234 5678 9012 34"
	DefaultAccountHolder = "1001 ÇARŞI TİCARET A.Ş."
)

// DefaultPaymentSettings returns the fallback bank account display fields.
func DefaultPaymentSettings() PaymentSettings {
	return PaymentSettings{
		IBAN:          DefaultIBAN,
		AccountHolder: DefaultAccountHolder,
		BankName:      "",
	}
}
