package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/splitbill/internal/extract"
)

// ErrLowConfidence is returned when the best recognition falls below the
// minimum confidence and the pipeline is configured to reject it
var ErrLowConfidence = errors.New("recognition confidence too low")

// PipelineConfig tunes the confidence-gated retry
type PipelineConfig struct {
	// MinConfidence below which the original variant is tried too
	MinConfidence float64
	// RejectLowConfidence fails scans whose best attempt is still below
	// MinConfidence instead of only logging a warning
	RejectLowConfidence bool
	// Timeout bounds a whole scan
	Timeout time.Duration
}

// DefaultPipelineConfig returns the standard thresholds
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinConfidence: 30,
		Timeout:       30 * time.Second,
	}
}

// Result is the outcome of a scan
type Result struct {
	Receipt     *extract.ReceiptData
	Recognition *Recognition
}

// Pipeline normalizes an upload, recognizes it with a confidence-gated
// retry and extracts the receipt
type Pipeline struct {
	recognizer Recognizer
	textLayer  Recognizer
	extractor  *extract.Extractor
	cfg        PipelineConfig
}

// NewPipeline creates a Pipeline
func NewPipeline(recognizer Recognizer, extractor *extract.Extractor, cfg PipelineConfig) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPipelineConfig().Timeout
	}
	return &Pipeline{recognizer: recognizer, extractor: extractor, cfg: cfg}
}

// WithTextLayer sets a recognizer tried on the raw document before any
// rendering, used for digital PDFs
func (p *Pipeline) WithTextLayer(r Recognizer) *Pipeline {
	p.textLayer = r
	return p
}

// Process scans one uploaded image or PDF
func (p *Pipeline) Process(ctx context.Context, data []byte, contentType string, hints []string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	rec, err := p.recognize(ctx, data, contentType, hints)
	if err != nil {
		return nil, err
	}
	if rec.empty() {
		return nil, extract.ErrNoTextRecognized
	}

	if rec.Confidence < p.cfg.MinConfidence {
		slog.Warn("Low recognition confidence",
			"confidence", rec.Confidence,
			"method", rec.Method,
			"variant", rec.Variant,
		)
		if p.cfg.RejectLowConfidence {
			return nil, fmt.Errorf("%w: %.0f", ErrLowConfidence, rec.Confidence)
		}
	}

	receipt, err := p.extract(rec, hints)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{Receipt: receipt, Recognition: rec}, nil
}

func (p *Pipeline) recognize(ctx context.Context, data []byte, contentType string, hints []string) (*Recognition, error) {
	mimeType := normalizeMimeType(contentType)
	if p.textLayer != nil && isPDF(data, mimeType) {
		rec, err := p.textLayer.Recognize(ctx, Variant{Kind: VariantDocument, Data: data}, hints)
		switch {
		case err != nil:
			slog.Warn("PDF text layer unreadable, rendering instead", "error", err)
		case !rec.empty():
			return rec, nil
		}
	}

	pngData, _, err := PrepareImage(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}
	variants, err := Variants(pngData)
	if err != nil {
		return nil, fmt.Errorf("building variants: %w", err)
	}
	return p.best(ctx, variants, hints)
}

// best recognizes variants in order, stopping at the first whose confidence
// reaches MinConfidence, and keeps the highest-confidence attempt
func (p *Pipeline) best(ctx context.Context, variants []Variant, hints []string) (*Recognition, error) {
	var (
		best    *Recognition
		lastErr error
	)
	for _, v := range variants {
		rec, err := p.recognizer.Recognize(ctx, v, hints)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("Recognition attempt failed", "variant", v.Kind, "error", err)
			lastErr = err
			continue
		}
		if rec.Variant == "" {
			rec.Variant = v.Kind
		}
		if best == nil || rec.Confidence > best.Confidence {
			best = rec
		}
		if best.Confidence >= p.cfg.MinConfidence && !best.empty() {
			break
		}
	}
	if best == nil {
		return nil, fmt.Errorf("recognizing receipt: %w", lastErr)
	}
	return best, nil
}

// extract prefers a structured payload that yields items and falls back to
// the recognized text
func (p *Pipeline) extract(rec *Recognition, hints []string) (*extract.ReceiptData, error) {
	if len(rec.Structured) > 0 {
		receipt, err := p.extractor.FromStructured(rec.Structured, hints)
		if err == nil {
			return receipt, nil
		}
		slog.Warn("Structured payload unusable, parsing text", "error", err)
	}
	if rec.Text == "" {
		return nil, extract.ErrNoItemsDetected
	}
	return p.extractor.Extract(rec.Text, hints)
}
