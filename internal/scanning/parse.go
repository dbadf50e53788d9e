package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// defaultModelConfidence is assumed when a model omits its own estimate
const defaultModelConfidence = 80

type modelResponse struct {
	Text       *string         `json:"text"`
	Confidence *float64        `json:"confidence"`
	Receipt    json.RawMessage `json:"receipt"`
}

// parseRecognitionJSON parses the JSON response of a vision model
func parseRecognitionJSON(text string) (*Recognition, error) {
	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	body := []byte(text[startIdx : endIdx+1])

	var resp modelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	rec := &Recognition{Confidence: defaultModelConfidence}
	if resp.Text != nil {
		rec.Text = strings.TrimSpace(*resp.Text)
	}
	if resp.Confidence != nil {
		rec.Confidence = clampConfidence(*resp.Confidence)
	}

	switch {
	case isJSONObject(resp.Receipt):
		rec.Structured = resp.Receipt
	case resp.Text == nil && bytes.Contains(body, []byte(`"items"`)):
		// the model skipped the envelope and returned the receipt itself
		rec.Structured = json.RawMessage(body)
	}
	return rec, nil
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '{' || raw[0] == '[')
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
