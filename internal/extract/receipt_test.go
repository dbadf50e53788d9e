package extract

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ReceiptData", func() {
	var data *ReceiptData

	BeforeEach(func() {
		data = &ReceiptData{
			Items: []LineItem{
				{Name: "Chicken Rice", Price: 31.80, Quantity: 2},
				{Name: "Iced Tea", Price: 4.00, Quantity: 1},
			},
			BillInfo: BillInfo{RestaurantName: "Hawker", Currency: "SGD"},
			Charges: []Charge{
				{ID: ChargeTax, Name: "Tax", Amount: 1.60},
				{ID: ChargeService, Name: "Service Charge", Amount: 3.00},
				{ID: ChargeDiscount, Name: "Discount", Amount: -5.00},
			},
		}
	})

	It("should derive unit prices", func() {
		Expect(data.Items[0].UnitPrice()).To(Equal(15.90))
		Expect(data.Items[1].UnitPrice()).To(Equal(4.00))
	})

	It("should total items", func() {
		Expect(data.ItemsTotal()).To(Equal(35.80))
	})

	It("should add charges to the grand total", func() {
		Expect(data.GrandTotal()).To(Equal(35.40))
	})

	It("should find charges by ID", func() {
		Expect(data.Charge(ChargeService).Amount).To(Equal(3.00))
		Expect(data.Charge("tip")).To(BeNil())
	})

	It("should clone deeply", func() {
		clone := data.Clone()
		Expect(clone).To(Equal(data))
		clone.Items[0].Name = "Changed"
		clone.Charges[0].Amount = 0
		Expect(data.Items[0].Name).To(Equal("Chicken Rice"))
		Expect(data.Charges[0].Amount).To(Equal(1.60))
	})

	It("should clone nil", func() {
		var empty *ReceiptData
		Expect(empty.Clone()).To(BeNil())
	})
})
