package extract

import "github.com/shopspring/decimal"

// Charge IDs that carry meaning for downstream allocation.
const (
	ChargeTax      = "tax"
	ChargeService  = "service"
	ChargeDiscount = "discount"
)

// ReceiptData is the normalized result of reading one receipt
type ReceiptData struct {
	Items    []LineItem `json:"items"`
	BillInfo BillInfo   `json:"billInfo"`
	Charges  []Charge   `json:"charges"`
}

// LineItem is a purchasable entry on the receipt.
// Price is the line total for Quantity units.
type LineItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// UnitPrice returns the price of a single unit, rounded to cents
func (i LineItem) UnitPrice() float64 {
	if i.Quantity <= 1 {
		return i.Price
	}
	v, _ := decimal.NewFromFloat(i.Price).
		DivRound(decimal.NewFromInt(int64(i.Quantity)), 2).
		Float64()
	return v
}

// BillInfo holds receipt-level metadata
type BillInfo struct {
	RestaurantName string `json:"restaurantName"`
	Date           string `json:"date,omitempty"` // YYYY-MM-DD, empty when unknown
	Currency       string `json:"currency"`
}

// Charge is a bill-level adjustment such as tax, service or discount
type Charge struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Charge returns the charge with the given ID, or nil
func (r *ReceiptData) Charge(id string) *Charge {
	for i := range r.Charges {
		if r.Charges[i].ID == id {
			return &r.Charges[i]
		}
	}
	return nil
}

// ItemsTotal sums item prices
func (r *ReceiptData) ItemsTotal() float64 {
	sum := decimal.Zero
	for _, it := range r.Items {
		sum = sum.Add(decimal.NewFromFloat(it.Price))
	}
	v, _ := sum.Round(2).Float64()
	return v
}

// GrandTotal is the items total plus every charge
func (r *ReceiptData) GrandTotal() float64 {
	sum := decimal.NewFromFloat(r.ItemsTotal())
	for _, c := range r.Charges {
		sum = sum.Add(decimal.NewFromFloat(c.Amount))
	}
	v, _ := sum.Round(2).Float64()
	return v
}

// Clone returns a deep copy so callers can edit without touching the original
func (r *ReceiptData) Clone() *ReceiptData {
	if r == nil {
		return nil
	}
	out := &ReceiptData{BillInfo: r.BillInfo}
	if r.Items != nil {
		out.Items = append([]LineItem(nil), r.Items...)
	}
	if r.Charges != nil {
		out.Charges = append([]Charge(nil), r.Charges...)
	}
	return out
}
