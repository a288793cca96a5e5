package models

// CartLine is one product entry in the buyer's cart. A read-only snapshot
// of the cart is taken when a checkout session starts.
type CartLine struct {
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Image     string  `json:"image"`
}

// CartTotal sums unit price times quantity over the given lines.
func CartTotal(lines []CartLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Price * float64(line.Quantity)
	}
	return total
}
