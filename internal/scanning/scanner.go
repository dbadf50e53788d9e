package scanning

import (
	"context"
	"encoding/json"
)

// Variant kinds produced by the image normalizer
const (
	VariantEnhanced = "enhanced"
	VariantOriginal = "original"
	// VariantDocument carries the untouched PDF bytes for text-layer readers
	VariantDocument = "document"
)

// Variant is one rendition of the uploaded receipt. Data is PNG except for
// VariantDocument.
type Variant struct {
	Kind string
	Data []byte
}

// Recognition is what a recognizer read from one variant
type Recognition struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..100
	Method     string  `json:"method"`
	Variant    string  `json:"variant"`
	// Structured is an optional receipt payload some models return next to
	// the transcription
	Structured json.RawMessage `json:"structured,omitempty"`
}

// empty reports whether nothing usable was recognized
func (r *Recognition) empty() bool {
	return r == nil || (len(r.Text) == 0 && len(r.Structured) == 0)
}

// Recognizer reads receipt text from an image
type Recognizer interface {
	// Recognize reads one variant. hints are language codes such as "eng".
	Recognize(ctx context.Context, v Variant, hints []string) (*Recognition, error)
	// Close releases resources held by the recognizer
	Close() error
}
