package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a receipt does not exist.
var ErrNotFound = errors.New("receipt not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// on image hash or transaction id. Callers treat it as a duplicate verdict,
// not a failure: it is the signal that closes the check-then-act race the
// resolver's lookups leave open.
var ErrDuplicate = errors.New("duplicate receipt")

// DB defines the interface for receipt persistence
type DB interface {
	// SaveReceipt inserts a receipt, returning ErrDuplicate on a
	// uniqueness violation
	SaveReceipt(ctx context.Context, receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(ctx context.Context, id uint) (*Receipt, error)

	// ListReceipts returns receipts matching the filter, newest date first
	ListReceipts(ctx context.Context, filter Filter) ([]*Receipt, error)

	// UpdateReceipt applies a partial update and returns the updated row
	UpdateReceipt(ctx context.Context, id uint, updates map[string]any) (*Receipt, error)

	// DeleteReceipt removes a receipt row
	DeleteReceipt(ctx context.Context, id uint) error

	// FindByImageHash returns the receipt with the given content hash, or
	// (nil, nil) when none exists
	FindByImageHash(ctx context.Context, hash string) (*Receipt, error)

	// FindByTransactionID returns the receipt with the given transaction
	// id, or (nil, nil) when none exists
	FindByTransactionID(ctx context.Context, transactionID string) (*Receipt, error)

	// FindByMerchantDateAmount returns a receipt matching all three
	// fields, or (nil, nil). With loose matching the merchant comparison
	// ignores case and surrounding whitespace.
	FindByMerchantDateAmount(ctx context.Context, merchant string, date time.Time, amount float64, strict bool) (*Receipt, error)

	// Summarize computes dashboard aggregates relative to now
	Summarize(ctx context.Context, now time.Time) (*Summary, error)

	// Close closes the database connection
	Close() error
}

// GormDB implements the DB interface on SQLite through GORM.
type GormDB struct {
	db *gorm.DB
}

// NewGormDB opens (or creates) the SQLite database at path and migrates the
// receipts table. TranslateError is required so uniqueness violations
// surface as gorm.ErrDuplicatedKey.
func NewGormDB(path string) (*GormDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&Receipt{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &GormDB{db: db}, nil
}

// SaveReceipt inserts a new receipt row
func (g *GormDB) SaveReceipt(ctx context.Context, receipt *Receipt) error {
	err := g.db.WithContext(ctx).Create(receipt).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("inserting receipt: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt by ID
func (g *GormDB) GetReceipt(ctx context.Context, id uint) (*Receipt, error) {
	var receipt Receipt
	err := g.db.WithContext(ctx).First(&receipt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return &receipt, nil
}

// ListReceipts returns receipts matching the filter, newest date first
func (g *GormDB) ListReceipts(ctx context.Context, filter Filter) ([]*Receipt, error) {
	q := g.db.WithContext(ctx).Model(&Receipt{})
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Account != "" {
		q = q.Where("account = ?", filter.Account)
	}
	if filter.From != nil {
		q = q.Where("date >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("date <= ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	receipts := make([]*Receipt, 0)
	if err := q.Order("date desc, id desc").Find(&receipts).Error; err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// UpdateReceipt applies a partial update and returns the updated row
func (g *GormDB) UpdateReceipt(ctx context.Context, id uint, updates map[string]any) (*Receipt, error) {
	res := g.db.WithContext(ctx).Model(&Receipt{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("updating receipt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return g.GetReceipt(ctx, id)
}

// DeleteReceipt removes a receipt row
func (g *GormDB) DeleteReceipt(ctx context.Context, id uint) error {
	res := g.db.WithContext(ctx).Delete(&Receipt{}, id)
	if res.Error != nil {
		return fmt.Errorf("deleting receipt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByImageHash returns the receipt with the given content hash
func (g *GormDB) FindByImageHash(ctx context.Context, hash string) (*Receipt, error) {
	return g.findFirst(ctx, "image_hash = ?", hash)
}

// FindByTransactionID returns the receipt with the given transaction id
func (g *GormDB) FindByTransactionID(ctx context.Context, transactionID string) (*Receipt, error) {
	return g.findFirst(ctx, "transaction_id = ?", transactionID)
}

// FindByMerchantDateAmount returns a receipt matching all three fields
func (g *GormDB) FindByMerchantDateAmount(ctx context.Context, merchant string, date time.Time, amount float64, strict bool) (*Receipt, error) {
	if strict {
		return g.findFirst(ctx, "merchant = ? AND date = ? AND amount = ?", merchant, date, amount)
	}
	folded := strings.ToLower(strings.TrimSpace(merchant))
	return g.findFirst(ctx, "LOWER(TRIM(merchant)) = ? AND date = ? AND amount = ?", folded, date, amount)
}

func (g *GormDB) findFirst(ctx context.Context, query string, args ...any) (*Receipt, error) {
	var receipt Receipt
	err := g.db.WithContext(ctx).Where(query, args...).First(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up receipt: %w", err)
	}
	return &receipt, nil
}

// Summarize computes dashboard aggregates relative to now
func (g *GormDB) Summarize(ctx context.Context, now time.Time) (*Summary, error) {
	summary := &Summary{
		ByCategory: make(map[string]float64),
		ByAccount:  make(map[string]float64),
	}

	model := func() *gorm.DB { return g.db.WithContext(ctx).Model(&Receipt{}) }

	if err := model().Count(&summary.Count).Error; err != nil {
		return nil, fmt.Errorf("counting receipts: %w", err)
	}
	if err := model().Select("COALESCE(SUM(amount), 0)").Scan(&summary.Total).Error; err != nil {
		return nil, fmt.Errorf("summing total: %w", err)
	}

	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	startOfYear := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	if err := model().Select("COALESCE(SUM(amount), 0)").
		Where("date >= ?", startOfMonth).Scan(&summary.MonthToDate).Error; err != nil {
		return nil, fmt.Errorf("summing month to date: %w", err)
	}
	if err := model().Select("COALESCE(SUM(amount), 0)").
		Where("date >= ?", startOfYear).Scan(&summary.YearToDate).Error; err != nil {
		return nil, fmt.Errorf("summing year to date: %w", err)
	}

	type groupTotal struct {
		Key   string
		Total float64
	}
	var byCategory []groupTotal
	if err := model().Select("category AS key, COALESCE(SUM(amount), 0) AS total").
		Group("category").Scan(&byCategory).Error; err != nil {
		return nil, fmt.Errorf("summing by category: %w", err)
	}
	for _, row := range byCategory {
		summary.ByCategory[row.Key] = row.Total
	}

	var byAccount []groupTotal
	if err := model().Select("account AS key, COALESCE(SUM(amount), 0) AS total").
		Group("account").Scan(&byAccount).Error; err != nil {
		return nil, fmt.Errorf("summing by account: %w", err)
	}
	for _, row := range byAccount {
		summary.ByAccount[row.Key] = row.Total
	}

	return summary, nil
}

// Close closes the database connection
func (g *GormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
