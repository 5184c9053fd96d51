package receipt

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GormDB", func() {
	var (
		ctx context.Context
		db  *GormDB
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = NewGormDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	newReceipt := func(hash string) *Receipt {
		date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
		return &Receipt{
			URL:       "/uploads/2024/06/receipt.jpg",
			ImageHash: hash,
			Merchant:  "CVS Pharmacy",
			Date:      &date,
			Amount:    25.99,
			Currency:  "USD",
			Category:  "Meals & Entertainment",
			Account:   "Personal",
			Status:    StatusCompleted,
		}
	}

	Describe("SaveReceipt", func() {
		It("should assign an ID on insert", func() {
			r := newReceipt("hash-1")
			Expect(db.SaveReceipt(ctx, r)).To(Succeed())
			Expect(r.ID).NotTo(BeZero())
		})

		It("should return ErrDuplicate for a repeated image hash", func() {
			Expect(db.SaveReceipt(ctx, newReceipt("hash-1"))).To(Succeed())

			second := newReceipt("hash-1")
			second.Merchant = "Somewhere Else"
			Expect(db.SaveReceipt(ctx, second)).To(MatchError(ErrDuplicate))
		})

		It("should return ErrDuplicate for a repeated transaction id", func() {
			txid := "TXN-1234"
			first := newReceipt("hash-1")
			first.TransactionID = &txid
			Expect(db.SaveReceipt(ctx, first)).To(Succeed())

			second := newReceipt("hash-2")
			second.TransactionID = &txid
			Expect(db.SaveReceipt(ctx, second)).To(MatchError(ErrDuplicate))
		})

		It("should allow many receipts without a transaction id", func() {
			Expect(db.SaveReceipt(ctx, newReceipt("hash-1"))).To(Succeed())
			Expect(db.SaveReceipt(ctx, newReceipt("hash-2"))).To(Succeed())
		})
	})

	Describe("GetReceipt", func() {
		It("should return ErrNotFound for a missing ID", func() {
			_, err := db.GetReceipt(ctx, 9999)
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should round-trip a saved receipt", func() {
			r := newReceipt("hash-1")
			Expect(db.SaveReceipt(ctx, r)).To(Succeed())

			got, err := db.GetReceipt(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Merchant).To(Equal("CVS Pharmacy"))
			Expect(got.Amount).To(Equal(25.99))
		})
	})

	Describe("FindByImageHash", func() {
		It("should return nil, nil when nothing matches", func() {
			got, err := db.FindByImageHash(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("should find a saved receipt by hash", func() {
			r := newReceipt("hash-1")
			Expect(db.SaveReceipt(ctx, r)).To(Succeed())

			got, err := db.FindByImageHash(ctx, "hash-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.ID).To(Equal(r.ID))
		})
	})

	Describe("FindByTransactionID", func() {
		It("should return nil, nil when nothing matches", func() {
			got, err := db.FindByTransactionID(ctx, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("should find a saved receipt by transaction id", func() {
			txid := "TXN-1234"
			r := newReceipt("hash-1")
			r.TransactionID = &txid
			Expect(db.SaveReceipt(ctx, r)).To(Succeed())

			got, err := db.FindByTransactionID(ctx, "TXN-1234")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.ID).To(Equal(r.ID))
		})
	})

	Describe("FindByMerchantDateAmount", func() {
		var date time.Time

		BeforeEach(func() {
			date = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
			Expect(db.SaveReceipt(ctx, newReceipt("hash-1"))).To(Succeed())
		})

		When("matching loosely", func() {
			It("should ignore merchant case", func() {
				got, err := db.FindByMerchantDateAmount(ctx, "cvs pharmacy", date, 25.99, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).NotTo(BeNil())
			})

			It("should ignore surrounding whitespace", func() {
				got, err := db.FindByMerchantDateAmount(ctx, "  CVS Pharmacy  ", date, 25.99, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).NotTo(BeNil())
			})

			It("should still require the date to match", func() {
				got, err := db.FindByMerchantDateAmount(ctx, "CVS Pharmacy", date.AddDate(0, 0, 1), 25.99, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(BeNil())
			})

			It("should still require the amount to match", func() {
				got, err := db.FindByMerchantDateAmount(ctx, "CVS Pharmacy", date, 26.99, false)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(BeNil())
			})
		})

		When("matching strictly", func() {
			It("should require the exact merchant name", func() {
				got, err := db.FindByMerchantDateAmount(ctx, "cvs pharmacy", date, 25.99, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(BeNil())

				got, err = db.FindByMerchantDateAmount(ctx, "CVS Pharmacy", date, 25.99, true)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).NotTo(BeNil())
			})
		})
	})

	Describe("ListReceipts", func() {
		BeforeEach(func() {
			older := newReceipt("hash-1")
			d1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
			older.Date = &d1
			older.Category = "Travel"
			older.Account = "Business"
			Expect(db.SaveReceipt(ctx, older)).To(Succeed())

			newer := newReceipt("hash-2")
			d2 := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
			newer.Date = &d2
			Expect(db.SaveReceipt(ctx, newer)).To(Succeed())
		})

		It("should return receipts newest first", func() {
			receipts, err := db.ListReceipts(ctx, Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(2))
			Expect(receipts[0].ImageHash).To(Equal("hash-2"))
			Expect(receipts[1].ImageHash).To(Equal("hash-1"))
		})

		It("should filter by category", func() {
			receipts, err := db.ListReceipts(ctx, Filter{Category: "Travel"})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].ImageHash).To(Equal("hash-1"))
		})

		It("should filter by account", func() {
			receipts, err := db.ListReceipts(ctx, Filter{Account: "Business"})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
		})

		It("should filter by date range", func() {
			from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
			receipts, err := db.ListReceipts(ctx, Filter{From: &from})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].ImageHash).To(Equal("hash-2"))
		})

		It("should honor the limit", func() {
			receipts, err := db.ListReceipts(ctx, Filter{Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
		})
	})

	Describe("UpdateReceipt", func() {
		It("should apply the updates and return the new row", func() {
			r := newReceipt("hash-1")
			Expect(db.SaveReceipt(ctx, r)).To(Succeed())

			updated, err := db.UpdateReceipt(ctx, r.ID, map[string]any{
				"merchant": "Walgreens",
				"amount":   30.00,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Merchant).To(Equal("Walgreens"))
			Expect(updated.Amount).To(Equal(30.00))
			Expect(updated.Category).To(Equal("Meals & Entertainment"))
		})

		It("should return ErrNotFound for a missing receipt", func() {
			_, err := db.UpdateReceipt(ctx, 9999, map[string]any{"merchant": "X"})
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("DeleteReceipt", func() {
		It("should remove the row", func() {
			r := newReceipt("hash-1")
			Expect(db.SaveReceipt(ctx, r)).To(Succeed())

			Expect(db.DeleteReceipt(ctx, r.ID)).To(Succeed())
			_, err := db.GetReceipt(ctx, r.ID)
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should return ErrNotFound for a missing receipt", func() {
			Expect(db.DeleteReceipt(ctx, 9999)).To(MatchError(ErrNotFound))
		})

		It("should free the image hash for re-upload", func() {
			r := newReceipt("hash-1")
			Expect(db.SaveReceipt(ctx, r)).To(Succeed())
			Expect(db.DeleteReceipt(ctx, r.ID)).To(Succeed())

			Expect(db.SaveReceipt(ctx, newReceipt("hash-1"))).To(Succeed())
		})
	})

	Describe("Summarize", func() {
		BeforeEach(func() {
			now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

			inMonth := newReceipt("hash-1")
			d1 := now.AddDate(0, 0, -5)
			inMonth.Date = &d1
			inMonth.Amount = 100
			Expect(db.SaveReceipt(ctx, inMonth)).To(Succeed())

			inYear := newReceipt("hash-2")
			d2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
			inYear.Date = &d2
			inYear.Amount = 50
			inYear.Category = "Travel"
			inYear.Account = "Business"
			Expect(db.SaveReceipt(ctx, inYear)).To(Succeed())

			lastYear := newReceipt("hash-3")
			d3 := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
			lastYear.Date = &d3
			lastYear.Amount = 25
			Expect(db.SaveReceipt(ctx, lastYear)).To(Succeed())
		})

		It("should compute the aggregates relative to now", func() {
			summary, err := db.Summarize(ctx, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Count).To(Equal(int64(3)))
			Expect(summary.Total).To(Equal(175.0))
			Expect(summary.MonthToDate).To(Equal(100.0))
			Expect(summary.YearToDate).To(Equal(150.0))
			Expect(summary.ByCategory).To(HaveKeyWithValue("Travel", 50.0))
			Expect(summary.ByCategory).To(HaveKeyWithValue("Meals & Entertainment", 125.0))
			Expect(summary.ByAccount).To(HaveKeyWithValue("Business", 50.0))
			Expect(summary.ByAccount).To(HaveKeyWithValue("Personal", 125.0))
		})

		It("should return zeroes on an empty database", func() {
			empty, err := NewGormDB(filepath.Join(GinkgoT().TempDir(), "empty.db"))
			Expect(err).NotTo(HaveOccurred())
			defer empty.Close()

			summary, err := empty.Summarize(ctx, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Count).To(BeZero())
			Expect(summary.Total).To(BeZero())
		})
	})
})
