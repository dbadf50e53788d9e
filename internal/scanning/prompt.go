package scanning

import (
	"fmt"
	"strings"
)

// recognitionPrompt is the shared prompt used by all LLM providers for reading receipts
const recognitionPrompt = `You are reading a restaurant receipt. Transcribe every line of text exactly as printed, top to bottom, one receipt line per output line. Keep prices, quantities and currency symbols as they appear. Do not translate, summarize or reorder.

Then extract the receipt:

1. **Restaurant**: the business name at the top of the receipt.
2. **Date**: the transaction date in YYYY-MM-DD format.
3. **Currency**: the ISO 4217 code (e.g. USD, THB, JPY).
4. **Items**: every ordered item with its name, the price printed for the line, and the quantity (default 1).
5. **Charges**: tax, service charge and discount amounts as numbers.

Return ONLY valid JSON in this exact format:
{
  "text": "line 1\nline 2\n...",
  "confidence": 0,
  "receipt": {
    "restaurant": "Name",
    "date": "YYYY-MM-DD",
    "currency": "USD",
    "items": [{"name": "Item", "price": 0.00, "quantity": 1}],
    "charges": {"tax": 0.00, "service_charge": 0.00, "discount": 0.00}
  }
}

Important:
- confidence is your estimate from 0 to 100 of how legible the receipt was
- Prices must be numbers, not strings
- Do not list totals, subtotals, payments or change as items
- If you cannot find a field, use null for that field
- If the image is not a receipt, return {"text": "", "confidence": 0, "receipt": null}
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// promptFor appends the expected languages to the shared prompt
func promptFor(hints []string) string {
	names := languageNames(hints)
	if len(names) == 0 {
		return recognitionPrompt
	}
	return fmt.Sprintf("%s\n\nThe receipt is most likely written in: %s.", recognitionPrompt, strings.Join(names, ", "))
}

var languageLabels = map[string]string{
	"eng":     "English",
	"chi_sim": "Simplified Chinese",
	"chi_tra": "Traditional Chinese",
	"jpn":     "Japanese",
	"kor":     "Korean",
	"tha":     "Thai",
	"vie":     "Vietnamese",
	"fra":     "French",
	"spa":     "Spanish",
	"deu":     "German",
	"ita":     "Italian",
}

func languageNames(hints []string) []string {
	var out []string
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if name, ok := languageLabels[h]; ok {
			out = append(out, name)
		} else if h != "" {
			out = append(out, h)
		}
	}
	return out
}
