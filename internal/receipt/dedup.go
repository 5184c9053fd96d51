package receipt

import (
	"context"
	"fmt"
	"time"

	"github.com/karthikv/expense-scanner/internal/scanning"
)

// Duplicate reasons, in the order the checks run.
const (
	ReasonExactFile     = "exact_file"
	ReasonTransactionID = "transaction_id"
	ReasonSmartMatch    = "smart_match"
)

// Duplicate describes why an upload was rejected and which persisted
// receipt it collided with.
type Duplicate struct {
	Reason   string   `json:"reason"`
	Message  string   `json:"message"`
	Existing *Receipt `json:"existingReceipt"`
}

// Resolver applies the three duplicate checks against the store, stopping
// at the first match:
//
//  1. exact_file — same content hash; cheapest and most certain, and the
//     only check that does not depend on extraction quality, so it runs
//     before the extraction call.
//  2. transaction_id — the most reliable non-file signal.
//  3. smart_match — same merchant, date, and amount; a heuristic that can
//     false-positive on legitimately repeated identical purchases.
//
// The checks are read-only and not atomic with the insert; the unique
// indexes on image hash and transaction id are the backstop for races.
type Resolver struct {
	db             DB
	strictMerchant bool
}

// NewResolver creates a Resolver. With strictMerchant false the smart
// match ignores case and surrounding whitespace in merchant names.
func NewResolver(db DB, strictMerchant bool) *Resolver {
	return &Resolver{db: db, strictMerchant: strictMerchant}
}

// CheckExactFile runs the content-hash check.
func (r *Resolver) CheckExactFile(ctx context.Context, hash string) (*Duplicate, error) {
	existing, err := r.db.FindByImageHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	return &Duplicate{
		Reason:   ReasonExactFile,
		Message:  "This exact image was already uploaded",
		Existing: existing,
	}, nil
}

// CheckExtracted runs the transaction-id check and then the smart match
// against the extracted fields. date is the parsed transaction date, nil
// when extraction produced none.
func (r *Resolver) CheckExtracted(ctx context.Context, fields scanning.Fields, date *time.Time) (*Duplicate, error) {
	if fields.TransactionID != "" {
		existing, err := r.db.FindByTransactionID(ctx, fields.TransactionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Duplicate{
				Reason:   ReasonTransactionID,
				Message:  fmt.Sprintf("Duplicate: Transaction ID %s already exists", fields.TransactionID),
				Existing: existing,
			}, nil
		}
	}

	// Smart match needs all three fields; a zero amount counts as missing.
	if fields.Merchant == "" || date == nil || fields.Amount == 0 {
		return nil, nil
	}
	existing, err := r.db.FindByMerchantDateAmount(ctx, fields.Merchant, *date, fields.Amount, r.strictMerchant)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	return &Duplicate{
		Reason:   ReasonSmartMatch,
		Message:  fmt.Sprintf("Duplicate found: %s - $%.2f on %s", fields.Merchant, fields.Amount, date.Format("2006-01-02")),
		Existing: existing,
	}, nil
}
