package receipt

import "time"

const (
	// StatusCompleted is the only status ingestion produces; the pipeline
	// is synchronous end-to-end and has no pending state.
	StatusCompleted = "completed"

	// DefaultCurrency is applied when extraction finds no currency code.
	DefaultCurrency = "USD"

	// UnknownMerchant is applied when extraction finds no merchant name.
	UnknownMerchant = "Unknown"

	// ScanErrorMerchant marks receipts whose extraction call failed
	// entirely. The record is still created so ingestion never blocks on
	// extraction failure.
	ScanErrorMerchant = "Scan Error"

	// NoImageURL is the sentinel stored when every storage backend failed.
	// The structured data is the primary asset; the image is best-effort.
	NoImageURL = "no-image"

	// ManualEntryURL marks receipts entered by hand, with no backing image.
	ManualEntryURL = "manual_entry"
)

// Receipt represents one expense transaction, with or without a backing image.
//
// ImageHash and TransactionID carry unique indexes: the database constraint is
// the authoritative duplicate signal, and the resolver's application-level
// checks are an early exit that produces the richer duplicate response.
type Receipt struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	URL           string     `json:"url"`
	ImageHash     string     `gorm:"uniqueIndex;size:64" json:"image_hash"`
	TransactionID *string    `gorm:"uniqueIndex" json:"transaction_id,omitempty"`
	Merchant      string     `json:"merchant"`
	Date          *time.Time `json:"date,omitempty"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Category      string     `json:"category"`
	Account       string     `json:"account"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Filter narrows a receipt listing.
type Filter struct {
	Category string
	Account  string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Summary aggregates spending for the dashboard and the assistant.
type Summary struct {
	Count       int64              `json:"count"`
	Total       float64            `json:"total"`
	MonthToDate float64            `json:"month_to_date"`
	YearToDate  float64            `json:"year_to_date"`
	ByCategory  map[string]float64 `json:"by_category"`
	ByAccount   map[string]float64 `json:"by_account"`
}
