package scanning

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MethodPDFText identifies text read from a PDF text layer
const MethodPDFText = "pdf-text"

// PDFText reads the embedded text layer of digital PDF receipts. Scanned
// PDFs have no text layer and yield an empty recognition.
type PDFText struct{}

// Recognize reads the text layer of a VariantDocument
func (PDFText) Recognize(ctx context.Context, v Variant, _ []string) (*Recognition, error) {
	if v.Kind != VariantDocument {
		return nil, fmt.Errorf("pdf text layer needs a %s variant, got %s", VariantDocument, v.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := pdfText(v.Data)
	if err != nil {
		return nil, err
	}
	rec := &Recognition{Text: text, Method: MethodPDFText, Variant: v.Kind}
	if text != "" {
		rec.Confidence = 100
	}
	return rec, nil
}

// Close is a no-op
func (PDFText) Close() error {
	return nil
}

func pdfText(data []byte) (text string, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		for _, row := range rows {
			var b strings.Builder
			for _, t := range row.Content {
				b.WriteString(t.S)
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
