package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// dateFormats are tried in order when the model returns a non-ISO date.
var dateFormats = []string{
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// extractJSON pulls the outermost brace-delimited span out of a model reply.
// Vision models frequently wrap the JSON in markdown fences or chatty
// introductions, so the reply cannot be fed to json.Unmarshal directly.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parseReceiptJSON parses and normalizes the model's reply into Fields.
func parseReceiptJSON(text string) (*Fields, error) {
	jsonText, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	// The prompt asks for null on unknown fields, so decode through a
	// pointer-valued shadow struct rather than Fields itself.
	var raw struct {
		Merchant      *string  `json:"merchant"`
		Date          *string  `json:"date"`
		Amount        *float64 `json:"amount"`
		Currency      *string  `json:"currency"`
		TransactionID *string  `json:"transactionId"`
		Category      *string  `json:"category"`
	}
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	fields := &Fields{}
	if raw.Merchant != nil {
		fields.Merchant = strings.TrimSpace(*raw.Merchant)
	}
	if raw.Date != nil {
		fields.Date = normalizeDate(*raw.Date)
	}
	if raw.Amount != nil {
		fields.Amount = math.Max(0, *raw.Amount)
	}
	if raw.Currency != nil {
		fields.Currency = strings.ToUpper(strings.TrimSpace(*raw.Currency))
	}
	if raw.TransactionID != nil {
		fields.TransactionID = strings.TrimSpace(*raw.TransactionID)
	}
	if raw.Category != nil && strings.TrimSpace(*raw.Category) != "" {
		fields.Category = CoerceCategory(*raw.Category)
	}

	return fields, nil
}

// normalizeDate converts whatever date string the model produced to
// YYYY-MM-DD, or empty when it cannot be parsed at all.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		return d.Format("2006-01-02")
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, raw); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
