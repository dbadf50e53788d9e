package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// ErrInvalidStructured means an upstream structured payload could not be used
var ErrInvalidStructured = errors.New("invalid structured receipt")

// structuredSchema describes the receipt object vision models and
// webhooks return alongside or instead of raw text
const structuredSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "restaurant": {"type": ["string", "null"]},
    "restaurantName": {"type": ["string", "null"]},
    "date": {"type": ["string", "null"]},
    "currency": {"type": ["string", "null"]},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": ["string", "null"]},
          "price": {"type": ["number", "null"]},
          "quantity": {"type": ["integer", "number", "string", "null"]}
        }
      }
    },
    "charges": {
      "type": ["object", "null"],
      "properties": {
        "tax": {"type": ["number", "null"]},
        "service_charge": {"type": ["number", "null"]},
        "discount": {"type": ["number", "null"]}
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt.json", strings.NewReader(structuredSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("receipt.json")
})

type structuredReceipt struct {
	Restaurant     string `json:"restaurant"`
	RestaurantName string `json:"restaurantName"`
	Date           string `json:"date"`
	Currency       string `json:"currency"`
	Items          []struct {
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Quantity any     `json:"quantity"`
	} `json:"items"`
	Charges *struct {
		Tax           *float64 `json:"tax"`
		ServiceCharge *float64 `json:"service_charge"`
		Discount      *float64 `json:"discount"`
	} `json:"charges"`
}

// FromStructured normalizes a structured receipt payload. A top-level array
// uses its first element. Item prices are line totals; items failing the
// usual name and price checks are dropped, and a discount is always stored
// as a non-positive amount.
func (e *Extractor) FromStructured(raw []byte, hints []string) (*ReceiptData, error) {
	obj, err := firstObject(raw)
	if err != nil {
		return nil, err
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(obj, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStructured, err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStructured, err)
	}

	var in structuredReceipt
	if err := json.Unmarshal(obj, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStructured, err)
	}

	t, err := e.tablesFor(hints)
	if err != nil {
		return nil, err
	}

	out := &ReceiptData{Items: []LineItem{}}
	for _, it := range in.Items {
		c := candidate{name: it.Name, price: decimal.NewFromFloat(it.Price), qty: parseQuantity(it.Quantity)}
		item, ok := t.validate(c, e.maxPrice)
		if !ok {
			continue
		}
		// structured prices already cover the whole line
		item.Price = toFloat(c.price)
		out.Items = append(out.Items, item)
	}
	if len(out.Items) == 0 {
		return nil, ErrNoItemsDetected
	}

	tax, service := decimal.Zero, decimal.Zero
	var discount *decimal.Decimal
	if in.Charges != nil {
		if in.Charges.Tax != nil {
			tax = decimal.NewFromFloat(*in.Charges.Tax)
		}
		if in.Charges.ServiceCharge != nil {
			service = decimal.NewFromFloat(*in.Charges.ServiceCharge)
		}
		if in.Charges.Discount != nil {
			d := decimal.NewFromFloat(*in.Charges.Discount).Abs().Neg()
			discount = &d
		}
	}
	out.Charges = t.seedCharges(tax, service)
	if discount != nil {
		out.Charges = append(out.Charges, Charge{ID: ChargeDiscount, Name: "Discount", Amount: toFloat(*discount)})
	}

	name := in.Restaurant
	if name == "" {
		name = in.RestaurantName
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = t.currency
	}
	out.BillInfo = BillInfo{
		RestaurantName: strings.TrimSpace(name),
		Date:           t.normalizeDate(strings.TrimSpace(in.Date)),
		Currency:       currency,
	}
	return out, nil
}

// FromStructured normalizes a structured payload with the default configuration
func FromStructured(raw []byte, hints []string) (*ReceiptData, error) {
	return defaultExtractor().FromStructured(raw, hints)
}

func firstObject(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidStructured)
	}
	if raw[0] != '[' {
		return raw, nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStructured, err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrInvalidStructured)
	}
	return arr[0], nil
}

// parseQuantity reads a number or numeric string; anything else counts as one
func parseQuantity(v any) int {
	var s string
	switch q := v.(type) {
	case float64:
		if q >= 1 {
			return int(q)
		}
		return 1
	case string:
		s = strings.TrimSpace(q)
	default:
		return 1
	}
	if q, err := strconv.Atoi(s); err == nil && q >= 1 {
		return q
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 {
		return int(f)
	}
	return 1
}
