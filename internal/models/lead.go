package models

import "time"

// IncompleteLead is a fire-and-forget snapshot of a buyer who finished the
// personal-info step but has not (yet) completed checkout. Written once per
// session for abandoned-cart follow-up; never read back by the checkout flow.
type IncompleteLead struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Step      int       `json:"step"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CompletedLead is written when an order is submitted with an email present,
// linking the contact to the order for follow-up mailing.
type CompletedLead struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	District   string    `json:"district"`
	PostalCode string    `json:"postal_code"`
	OrderID    string    `json:"order_id" gorm:"type:varchar(36);index"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
