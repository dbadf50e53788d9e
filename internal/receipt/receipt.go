package receipt

import (
	"time"

	"github.com/zombor/splitbill/internal/extract"
)

// ScanResult is a receipt read from an uploaded image
type ScanResult struct {
	ID         string               `json:"id"`
	Receipt    *extract.ReceiptData `json:"receipt"`
	Confidence float64              `json:"confidence"`
	Method     string               `json:"method"`
	Variant    string               `json:"variant"`
	Filename   string               `json:"filename,omitempty"`
	ScannedAt  time.Time            `json:"scanned_at"`
}

// Language is a supported language hint
type Language struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}
