package extract

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Config holds the tuning thresholds of the line scanner
type Config struct {
	// MaxItemPrice rejects item prices at or above it as OCR misreads
	MaxItemPrice float64
	// MissLimit consecutive non-item lines end the item block
	MissLimit int
	// SeekWindow is the last line index that may be skipped while no item
	// section marker has been seen
	SeekWindow int
}

// DefaultConfig returns the thresholds tuned on restaurant receipts
func DefaultConfig() Config {
	return Config{
		MaxItemPrice: 1000,
		MissLimit:    5,
		SeekWindow:   5,
	}
}

// Extractor turns recognized receipt text into ReceiptData. It is safe for
// concurrent use.
type Extractor struct {
	cfg      Config
	maxPrice decimal.Decimal
	registry *Registry
	tables   sync.Map // hint key -> *tables
}

// New creates an Extractor with the built-in locales plus extra ones
func New(cfg Config, extra ...Locale) (*Extractor, error) {
	if cfg.MaxItemPrice <= 0 {
		return nil, fmt.Errorf("max item price must be positive, got %v", cfg.MaxItemPrice)
	}
	if cfg.MissLimit <= 0 {
		return nil, fmt.Errorf("miss limit must be positive, got %d", cfg.MissLimit)
	}
	if cfg.SeekWindow < 0 {
		return nil, fmt.Errorf("seek window must not be negative, got %d", cfg.SeekWindow)
	}
	registry, err := NewRegistry(extra...)
	if err != nil {
		return nil, fmt.Errorf("building locale registry: %w", err)
	}
	e := &Extractor{
		cfg:      cfg,
		maxPrice: decimal.NewFromFloat(cfg.MaxItemPrice),
		registry: registry,
	}
	// fail fast on bad locale fragments
	for _, l := range registry.Languages() {
		if _, err := e.tablesFor([]string{l.Code}); err != nil {
			return nil, fmt.Errorf("locale %s: %w", l.Code, err)
		}
	}
	return e, nil
}

var defaultExtractor = sync.OnceValue(func() *Extractor {
	e, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return e
})

// Extract reads text with the default configuration
func Extract(text string, hints []string) (*ReceiptData, error) {
	return defaultExtractor().Extract(text, hints)
}

// Languages lists the locales the extractor knows about
func (e *Extractor) Languages() []Locale {
	return e.registry.Languages()
}

// Extract parses raw recognized text. hints are language codes such as
// "eng" or "tha"; unknown codes are ignored.
func (e *Extractor) Extract(text string, hints []string) (*ReceiptData, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, ErrNoTextRecognized
	}
	t, err := e.tablesFor(hints)
	if err != nil {
		return nil, err
	}

	st := scanner{t: t, cfg: e.cfg, maxPrice: e.maxPrice}.run(lines)
	if len(st.items) == 0 {
		return nil, ErrNoItemsDetected
	}

	name := st.name
	if name == "" {
		name = st.fallback
	}
	return &ReceiptData{
		Items: st.items,
		BillInfo: BillInfo{
			RestaurantName: name,
			Date:           st.date,
			Currency:       t.currency,
		},
		Charges: t.seedCharges(st.tax, st.service),
	}, nil
}

func (t *tables) seedCharges(tax, service decimal.Decimal) []Charge {
	return []Charge{
		{ID: ChargeTax, Name: t.taxName, Amount: toFloat(tax)},
		{ID: ChargeService, Name: t.serviceName, Amount: toFloat(service)},
	}
}

func (e *Extractor) tablesFor(hints []string) (*tables, error) {
	locales := e.registry.resolve(hints)
	codes := make([]string, len(locales))
	for i, l := range locales {
		codes[i] = l.Code
	}
	key := strings.Join(codes, "+")
	if t, ok := e.tables.Load(key); ok {
		return t.(*tables), nil
	}
	t, err := compileTables(locales)
	if err != nil {
		return nil, err
	}
	actual, _ := e.tables.LoadOrStore(key, t)
	return actual.(*tables), nil
}
