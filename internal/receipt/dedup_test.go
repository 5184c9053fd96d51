package receipt

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/karthikv/expense-scanner/internal/scanning"
)

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		db       *mockDB
		resolver *Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMockDB()
		resolver = NewResolver(db, false)
	})

	Describe("CheckExtracted", func() {
		It("should prefer the transaction-id reason when both checks would match", func() {
			txid := "T-9"
			date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			existing := &Receipt{
				ImageHash:     "hash-1",
				TransactionID: &txid,
				Merchant:      "Acme",
				Date:          &date,
				Amount:        42.50,
			}
			Expect(db.SaveReceipt(ctx, existing)).To(Succeed())

			fields := scanning.Fields{
				Merchant:      "Acme",
				Amount:        42.50,
				TransactionID: "T-9",
			}
			dup, err := resolver.CheckExtracted(ctx, fields, &date)
			Expect(err).NotTo(HaveOccurred())
			Expect(dup).NotTo(BeNil())
			Expect(dup.Reason).To(Equal(ReasonTransactionID))
		})

		It("should skip the smart match when any of the triple is missing", func() {
			date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			existing := &Receipt{ImageHash: "hash-1", Merchant: "Acme", Date: &date, Amount: 42.50}
			Expect(db.SaveReceipt(ctx, existing)).To(Succeed())

			dup, err := resolver.CheckExtracted(ctx, scanning.Fields{Merchant: "Acme", Amount: 42.50}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(dup).To(BeNil())

			dup, err = resolver.CheckExtracted(ctx, scanning.Fields{Amount: 42.50}, &date)
			Expect(err).NotTo(HaveOccurred())
			Expect(dup).To(BeNil())

			dup, err = resolver.CheckExtracted(ctx, scanning.Fields{Merchant: "Acme"}, &date)
			Expect(err).NotTo(HaveOccurred())
			Expect(dup).To(BeNil())
		})

		It("should yield the same verdict on repeated runs over an unchanged store", func() {
			date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			existing := &Receipt{ImageHash: "hash-1", Merchant: "Acme", Date: &date, Amount: 42.50}
			Expect(db.SaveReceipt(ctx, existing)).To(Succeed())

			fields := scanning.Fields{Merchant: "Acme", Amount: 42.50}
			first, err := resolver.CheckExtracted(ctx, fields, &date)
			Expect(err).NotTo(HaveOccurred())
			second, err := resolver.CheckExtracted(ctx, fields, &date)
			Expect(err).NotTo(HaveOccurred())

			Expect(first).NotTo(BeNil())
			Expect(second).NotTo(BeNil())
			Expect(second.Reason).To(Equal(first.Reason))
			Expect(second.Existing.ID).To(Equal(first.Existing.ID))
		})
	})

	Describe("CheckExactFile", func() {
		It("should return nil for an unseen hash", func() {
			dup, err := resolver.CheckExactFile(ctx, "unseen")
			Expect(err).NotTo(HaveOccurred())
			Expect(dup).To(BeNil())
		})

		It("should name the conflicting record", func() {
			existing := &Receipt{ImageHash: "hash-1", Merchant: "Acme"}
			Expect(db.SaveReceipt(ctx, existing)).To(Succeed())

			dup, err := resolver.CheckExactFile(ctx, "hash-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(dup).NotTo(BeNil())
			Expect(dup.Reason).To(Equal(ReasonExactFile))
			Expect(dup.Existing.ID).To(Equal(existing.ID))
		})
	})
})
