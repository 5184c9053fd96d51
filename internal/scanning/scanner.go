package scanning

// Fields contains the structured data extracted from a receipt image.
// Optional fields are empty strings (or 0 for Amount) when the model could
// not determine them.
type Fields struct {
	Merchant      string  `json:"merchant"`
	Date          string  `json:"date"` // YYYY-MM-DD, empty when unknown
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	TransactionID string  `json:"transactionId"`
	Category      string  `json:"category"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts structured fields
	ScanReceipt(imageData []byte, contentType string) (*Fields, error)
	// Close closes the scanner and releases resources
	Close() error
}
