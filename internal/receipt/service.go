package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/splitbill/internal/extract"
	"github.com/zombor/splitbill/internal/scanning"
)

// ErrInvalidInput is returned for requests the service cannot act on
var ErrInvalidInput = errors.New("invalid input")

// IDGenerator generates unique IDs for scans
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Scanner turns an uploaded image into receipt data
type Scanner interface {
	Process(ctx context.Context, data []byte, contentType string, hints []string) (*scanning.Result, error)
}

// Parser extracts receipt data from already recognized text
type Parser interface {
	Extract(text string, hints []string) (*extract.ReceiptData, error)
	Languages() []extract.Locale
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt scanning operations
type Service struct {
	scanner      Scanner
	parser       Parser
	source       scanning.Source
	defaultHints []string
	idGenerator  IDGenerator
	timeSource   TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(scanner Scanner, parser Parser, source scanning.Source, defaultHints []string) *Service {
	return NewServiceWithDeps(scanner, parser, source, defaultHints, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(scanner Scanner, parser Parser, source scanning.Source, defaultHints []string, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		scanner:      scanner,
		parser:       parser,
		source:       source,
		defaultHints: defaultHints,
		idGenerator:  idGen,
		timeSource:   timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = strings.TrimSpace(base[:maxLen])
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// hints returns the request hints, or the configured defaults when none were given
func (s *Service) hints(requested []string) []string {
	var out []string
	for _, h := range requested {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		return s.defaultHints
	}
	return out
}

// ScanReceipt recognizes an uploaded receipt image or PDF
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string, hints []string) (*ScanResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	id := s.idGenerator.Generate()
	hints = s.hints(hints)

	result, err := s.scanner.Process(ctx, data, contentType, hints)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"id", id,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"languages", hints,
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	scan := &ScanResult{
		ID:         id,
		Receipt:    result.Receipt,
		Confidence: result.Recognition.Confidence,
		Method:     result.Recognition.Method,
		Variant:    result.Recognition.Variant,
		ScannedAt:  s.timeSource.Now(),
	}
	if filename != "" {
		scan.Filename = sanitizeFilename(filename)
	}

	slog.Info("Scanned receipt",
		"id", id,
		"items", len(scan.Receipt.Items),
		"confidence", scan.Confidence,
		"method", scan.Method,
		"variant", scan.Variant,
	)
	return scan, nil
}

// ScanURL fetches a receipt image from a URL or object reference and scans it
func (s *Service) ScanURL(ctx context.Context, ref string, hints []string) (*ScanResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: image URL is required", ErrInvalidInput)
	}
	if s.source == nil {
		return nil, fmt.Errorf("fetching image: %w", scanning.ErrUnsupportedSource)
	}

	data, contentType, err := s.source.Fetch(ctx, ref)
	if err != nil {
		slog.Error("Failed to fetch receipt image", "ref", ref, "error", err)
		return nil, fmt.Errorf("fetching image: %w", err)
	}
	return s.ScanReceipt(ctx, filepath.Base(ref), data, contentType, hints)
}

// ParseText extracts receipt data from text recognized elsewhere
func (s *Service) ParseText(text string, hints []string) (*extract.ReceiptData, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	data, err := s.parser.Extract(text, s.hints(hints))
	if err != nil {
		return nil, fmt.Errorf("parsing text: %w", err)
	}
	return data, nil
}

// Languages lists the supported language hints
func (s *Service) Languages() []Language {
	locales := s.parser.Languages()
	out := make([]Language, 0, len(locales))
	for _, l := range locales {
		out = append(out, Language{Code: l.Code, Name: l.Name, Currency: l.Currency})
	}
	return out
}

// Export renders receipt data as an XLSX workbook and returns it with a download filename
func (s *Service) Export(data *extract.ReceiptData) ([]byte, string, error) {
	if data == nil || len(data.Items) == 0 {
		return nil, "", fmt.Errorf("%w: receipt has no items", ErrInvalidInput)
	}
	out, err := ExportXLSX(data)
	if err != nil {
		return nil, "", fmt.Errorf("exporting receipt: %w", err)
	}
	name := data.BillInfo.RestaurantName
	if data.BillInfo.Date != "" {
		name += " " + data.BillInfo.Date
	}
	return out, sanitizeFilename(name + ".xlsx"), nil
}
