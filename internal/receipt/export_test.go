package receipt

import (
	"bytes"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Export", func() {
	var receipts []*Receipt

	BeforeEach(func() {
		date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
		receipts = []*Receipt{
			{
				Merchant: "CVS Pharmacy",
				Date:     &date,
				Amount:   25.9,
				Currency: "USD",
				Category: "Meals & Entertainment",
				Account:  "Personal",
				Status:   StatusCompleted,
				URL:      NoImageURL,
			},
			{
				Merchant: "Scan Error",
				Amount:   0,
				Currency: "USD",
				Category: "Other",
				Account:  "Personal",
				Status:   StatusCompleted,
				URL:      "/uploads/2024/06/receipt.jpg",
			},
		}
	})

	Describe("WriteCSV", func() {
		It("should format amounts with two decimals and leave missing dates empty", func() {
			var buf bytes.Buffer
			Expect(WriteCSV(&buf, receipts)).To(Succeed())

			lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
			Expect(lines).To(HaveLen(3))
			Expect(string(lines[1])).To(Equal("2024-06-10,CVS Pharmacy,25.90,USD,Meals & Entertainment,completed,no-image"))
			Expect(string(lines[2])).To(Equal(",Scan Error,0.00,USD,Other,completed,/uploads/2024/06/receipt.jpg"))
		})
	})

	Describe("BuildWorkbook", func() {
		It("should write one row per receipt under the header", func() {
			f, err := BuildWorkbook(receipts)
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			merchant, err := f.GetCellValue("Expenses", "C2")
			Expect(err).NotTo(HaveOccurred())
			Expect(merchant).To(Equal("CVS Pharmacy"))

			amount, err := f.GetCellValue("Expenses", "D2")
			Expect(err).NotTo(HaveOccurred())
			Expect(amount).To(Equal("25.9"))

			account, err := f.GetCellValue("Expenses", "G3")
			Expect(err).NotTo(HaveOccurred())
			Expect(account).To(Equal("Personal"))
		})
	})
})
