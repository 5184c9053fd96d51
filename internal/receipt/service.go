package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/karthikv/expense-scanner/internal/scanning"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config carries the tunables the ingestion pipeline shares. One injected
// value instead of scattered literals: the resolver, the extraction
// defaults, and manual entry all read from here.
type Config struct {
	// DefaultAccount is applied when an upload names no account.
	DefaultAccount string

	// StrictMerchantMatch makes the smart-match merchant comparison
	// exact instead of case/whitespace-insensitive.
	StrictMerchantMatch bool
}

// ScanResult is the outcome of one upload: either a created receipt or a
// duplicate verdict. A duplicate is a normal outcome, not an error.
type ScanResult struct {
	Receipt   *Receipt
	Duplicate *Duplicate
}

// ManualEntry is a receipt entered by hand, with no backing image.
type ManualEntry struct {
	Merchant string  `json:"merchant"`
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Account  string  `json:"account"`
}

// UpdateRequest is a partial edit; nil fields are left untouched. Identity
// and creation timestamp cannot be changed.
type UpdateRequest struct {
	Merchant *string  `json:"merchant"`
	Date     *string  `json:"date"`
	Amount   *float64 `json:"amount"`
	Category *string  `json:"category"`
	Account  *string  `json:"account"`
	Status   *string  `json:"status"`
}

// Service owns the ingestion pipeline and receipt operations
type Service struct {
	db         DB
	scanner    scanning.Scanner
	uploader   Uploader
	local      *LocalStorage // nil on ephemeral filesystems
	resolver   *Resolver
	cfg        Config
	timeSource TimeSource
}

// NewService creates a new Service with the default time source. local may
// be nil when running where filesystem writes are not durable.
func NewService(db DB, scanner scanning.Scanner, uploader Uploader, local *LocalStorage, cfg Config) *Service {
	return NewServiceWithDeps(db, scanner, uploader, local, cfg, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, uploader Uploader, local *LocalStorage, cfg Config, timeSource TimeSource) *Service {
	return &Service{
		db:         db,
		scanner:    scanner,
		uploader:   uploader,
		local:      local,
		resolver:   NewResolver(db, cfg.StrictMerchantMatch),
		cfg:        cfg,
		timeSource: timeSource,
	}
}

// ProcessUpload runs the ingestion pipeline for one uploaded image:
// hash, exact-file check, extraction, transaction-id and smart-match
// checks, storage, insert. Strictly forward, no retries.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, contentType, account string) (*ScanResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	// Exact-file check runs before the extraction call: it is the
	// cheapest signal and saves a model round trip for re-uploads.
	if dup, err := s.resolver.CheckExactFile(ctx, hash); err != nil {
		return nil, err
	} else if dup != nil {
		return &ScanResult{Duplicate: dup}, nil
	}

	fields := s.extractFields(data, contentType)
	// Amounts persist rounded to cents, so the duplicate checks must
	// compare the rounded value too.
	fields.Amount = roundAmount(fields.Amount)
	date := parseTxDate(fields.Date)

	if dup, err := s.resolver.CheckExtracted(ctx, fields, date); err != nil {
		return nil, err
	} else if dup != nil {
		return &ScanResult{Duplicate: dup}, nil
	}

	// Partition storage by transaction date when we have one.
	partition := s.timeSource.Now()
	if date != nil {
		partition = *date
	}
	storedName := storageFilename(fields.Merchant, filename, s.timeSource.Now())
	url, err := s.uploader.Upload(ctx, storedName, partition.Format("2006"), partition.Format("01"), data)
	if err != nil {
		slog.Warn("storage upload failed, storing without image", "filename", storedName, "error", err)
		url = NoImageURL
	}

	receipt := s.buildReceipt(url, hash, fields, date, account)
	if err := s.db.SaveReceipt(ctx, receipt); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// A racing upload won the insert; the unique index is the
			// authoritative signal, so answer with the winner.
			return s.duplicateFromConstraint(ctx, hash, fields, date)
		}
		return nil, err
	}

	slog.Info("receipt ingested",
		"id", receipt.ID,
		"merchant", receipt.Merchant,
		"amount", receipt.Amount,
		"url", receipt.URL,
	)
	return &ScanResult{Receipt: receipt}, nil
}

// extractFields calls the scanner and substitutes the degraded placeholder
// on any failure, so ingestion never blocks on extraction.
func (s *Service) extractFields(data []byte, contentType string) scanning.Fields {
	fields, err := s.scanner.ScanReceipt(data, contentType)
	if err != nil {
		slog.Error("receipt extraction failed, using placeholder fields",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return scanning.Fields{
			Merchant: ScanErrorMerchant,
			Date:     s.timeSource.Now().Format("2006-01-02"),
			Amount:   0,
		}
	}
	return *fields
}

func (s *Service) buildReceipt(url, hash string, fields scanning.Fields, date *time.Time, account string) *Receipt {
	merchant := fields.Merchant
	if merchant == "" {
		merchant = UnknownMerchant
	}
	currency := fields.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	category := fields.Category
	if category == "" {
		category = scanning.CategoryOther
	}
	if account == "" {
		account = s.cfg.DefaultAccount
	}
	var transactionID *string
	if fields.TransactionID != "" {
		id := fields.TransactionID
		transactionID = &id
	}

	return &Receipt{
		URL:           url,
		ImageHash:     hash,
		TransactionID: transactionID,
		Merchant:      merchant,
		Date:          date,
		Amount:        roundAmount(fields.Amount),
		Currency:      currency,
		Category:      category,
		Account:       account,
		Status:        StatusCompleted,
	}
}

// duplicateFromConstraint maps a uniqueness violation back to a duplicate
// verdict by re-reading the conflicting row.
func (s *Service) duplicateFromConstraint(ctx context.Context, hash string, fields scanning.Fields, date *time.Time) (*ScanResult, error) {
	if dup, err := s.resolver.CheckExactFile(ctx, hash); err == nil && dup != nil {
		return &ScanResult{Duplicate: dup}, nil
	}
	if dup, err := s.resolver.CheckExtracted(ctx, fields, date); err == nil && dup != nil {
		return &ScanResult{Duplicate: dup}, nil
	}
	return nil, ErrDuplicate
}

// CreateManual creates a receipt from a manual entry form.
func (s *Service) CreateManual(ctx context.Context, entry ManualEntry) (*Receipt, error) {
	if entry.Merchant == "" || entry.Amount == 0 || entry.Category == "" {
		return nil, fmt.Errorf("merchant, amount and category are required")
	}

	now := s.timeSource.Now()
	date := parseTxDate(entry.Date)
	if date == nil {
		date = &now
	}
	account := entry.Account
	if account == "" {
		account = s.cfg.DefaultAccount
	}
	// Nanosecond resolution keeps rapid back-to-back entries off the
	// unique indexes.
	transactionID := fmt.Sprintf("MANUAL_%d", now.UnixNano())

	receipt := &Receipt{
		URL:           ManualEntryURL,
		ImageHash:     fmt.Sprintf("manual_%d", now.UnixNano()),
		TransactionID: &transactionID,
		Merchant:      entry.Merchant,
		Date:          date,
		Amount:        roundAmount(entry.Amount),
		Currency:      DefaultCurrency,
		Category:      scanning.CoerceCategory(entry.Category),
		Account:       account,
		Status:        StatusCompleted,
	}
	if err := s.db.SaveReceipt(ctx, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(ctx context.Context, id uint) (*Receipt, error) {
	return s.db.GetReceipt(ctx, id)
}

// ListReceipts returns receipts matching the filter
func (s *Service) ListReceipts(ctx context.Context, filter Filter) ([]*Receipt, error) {
	return s.db.ListReceipts(ctx, filter)
}

// UpdateReceipt applies a partial edit to a receipt
func (s *Service) UpdateReceipt(ctx context.Context, id uint, req UpdateRequest) (*Receipt, error) {
	updates := make(map[string]any)
	if req.Merchant != nil {
		updates["merchant"] = *req.Merchant
	}
	if req.Date != nil {
		date := parseTxDate(*req.Date)
		if date == nil {
			return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", *req.Date)
		}
		updates["date"] = *date
	}
	if req.Amount != nil {
		updates["amount"] = roundAmount(*req.Amount)
	}
	if req.Category != nil {
		updates["category"] = scanning.CoerceCategory(*req.Category)
	}
	if req.Account != nil {
		updates["account"] = *req.Account
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		return s.db.GetReceipt(ctx, id)
	}
	return s.db.UpdateReceipt(ctx, id, updates)
}

// DeleteReceipt removes a receipt, moving a locally stored image to the
// trash directory first. The image move is best-effort; the row delete is
// what counts.
func (s *Service) DeleteReceipt(ctx context.Context, id uint) error {
	receipt, err := s.db.GetReceipt(ctx, id)
	if err != nil {
		return err
	}

	if s.local != nil && s.local.Manages(receipt.URL) {
		trashPath, err := s.local.Trash(receipt.URL)
		if err != nil {
			slog.Warn("failed to move image to trash", "url", receipt.URL, "error", err)
		} else {
			slog.Info("moved image to trash", "url", receipt.URL, "trash_path", trashPath)
		}
	}

	return s.db.DeleteReceipt(ctx, id)
}

// ReceiptImage returns the image bytes for a locally stored receipt.
func (s *Service) ReceiptImage(ctx context.Context, id uint) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if s.local == nil || !s.local.Manages(receipt.URL) {
		return nil, "", fmt.Errorf("receipt image is not stored locally")
	}
	data, err := s.local.Read(receipt.URL)
	if err != nil {
		return nil, "", err
	}
	return data, contentTypeFor(receipt.URL, data), nil
}

// Summary computes dashboard aggregates
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	return s.db.Summarize(ctx, s.timeSource.Now())
}

var (
	merchantCleanRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
	filenameCleanRe = regexp.MustCompile(`[^a-zA-Z0-9.\-]`)
)

// storageFilename builds the stored name: merchant part, timestamp, then
// the sanitized original name, so files sort and read usefully on disk.
func storageFilename(merchant, original string, now time.Time) string {
	merchantPart := merchantCleanRe.ReplaceAllString(merchant, "_")
	if merchantPart == "" || merchantPart == "_" {
		merchantPart = "receipt"
	}
	safeName := filenameCleanRe.ReplaceAllString(filepath.Base(original), "")
	if safeName == "" {
		safeName = "upload"
	}
	return fmt.Sprintf("%s_%d_%s", merchantPart, now.UnixMilli(), safeName)
}

func parseTxDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &d
}

func roundAmount(amount float64) float64 {
	return math.Round(math.Max(0, amount)*100) / 100
}

func contentTypeFor(url string, data []byte) string {
	switch strings.ToLower(filepath.Ext(url)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic", ".heif":
		return "image/heic"
	}
	return http.DetectContentType(data)
}
