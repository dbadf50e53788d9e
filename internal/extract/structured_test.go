package extract

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FromStructured", func() {
	var (
		payload string
		data    *ReceiptData
		err     error
	)

	JustBeforeEach(func() {
		data, err = FromStructured([]byte(payload), []string{"eng"})
	})

	When("the payload is a webhook array", func() {
		BeforeEach(func() {
			payload = `[{
				"restaurant": " Sushi Bar ",
				"date": "2024-05-01T12:00:00Z",
				"currency": "jpy",
				"items": [
					{"name": "Salmon Nigiri", "price": 12.5, "quantity": 2},
					{"name": "", "price": 3},
					{"name": "Miso Soup", "price": 4, "quantity": "1"}
				],
				"charges": {"tax": 1.65, "service_charge": 2, "discount": 5}
			}]`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep line totals and drop invalid items", func() {
			Expect(data.Items).To(Equal([]LineItem{
				{Name: "Salmon Nigiri", Price: 12.5, Quantity: 2},
				{Name: "Miso Soup", Price: 4, Quantity: 1},
			}))
		})

		It("should store the discount as a negative amount", func() {
			Expect(data.Charges).To(Equal([]Charge{
				{ID: ChargeTax, Name: "Tax", Amount: 1.65},
				{ID: ChargeService, Name: "Service Charge", Amount: 2},
				{ID: ChargeDiscount, Name: "Discount", Amount: -5},
			}))
		})

		It("should normalize the bill info", func() {
			Expect(data.BillInfo).To(Equal(BillInfo{RestaurantName: "Sushi Bar", Date: "2024-05-01", Currency: "JPY"}))
		})
	})

	When("optional fields are missing", func() {
		BeforeEach(func() {
			payload = `{"restaurantName": "Cafe", "items": [{"name": "Tea", "price": 3}]}`
		})

		It("should fill defaults", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Items).To(Equal([]LineItem{{Name: "Tea", Price: 3, Quantity: 1}}))
			Expect(data.BillInfo).To(Equal(BillInfo{RestaurantName: "Cafe", Currency: "USD"}))
			Expect(data.Charges).To(HaveLen(2))
			Expect(data.Charge(ChargeDiscount)).To(BeNil())
		})
	})

	When("a discount is already negative", func() {
		BeforeEach(func() {
			payload = `{"items": [{"name": "Tea", "price": 3}], "charges": {"discount": -1.5}}`
		})

		It("should keep it negative", func() {
			Expect(data.Charge(ChargeDiscount).Amount).To(Equal(-1.5))
		})
	})

	When("a quantity is not a number", func() {
		BeforeEach(func() {
			payload = `{"items": [{"name": "Gyoza", "price": 6, "quantity": "two"}, {"name": "Ramen", "price": 24, "quantity": "2"}]}`
		})

		It("should count it as one", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Items).To(Equal([]LineItem{
				{Name: "Gyoza", Price: 6, Quantity: 1},
				{Name: "Ramen", Price: 24, Quantity: 2},
			}))
		})
	})

	DescribeTable("parseQuantity",
		func(v any, expected int) {
			Expect(parseQuantity(v)).To(Equal(expected))
		},
		Entry("integer", float64(3), 3),
		Entry("fraction", 2.5, 2),
		Entry("zero", float64(0), 1),
		Entry("numeric string", " 4 ", 4),
		Entry("word", "two", 1),
		Entry("null", nil, 1),
		Entry("boolean", true, 1),
	)

	DescribeTable("rejected payloads",
		func(raw string, target error) {
			_, err := FromStructured([]byte(raw), nil)
			Expect(errors.Is(err, target)).To(BeTrue(), "got %v", err)
		},
		Entry("not JSON", `not json`, ErrInvalidStructured),
		Entry("empty", ``, ErrInvalidStructured),
		Entry("empty array", `[]`, ErrInvalidStructured),
		Entry("items of the wrong type", `{"items": "nope"}`, ErrInvalidStructured),
		Entry("missing items", `{"restaurant": "Cafe"}`, ErrInvalidStructured),
		Entry("no usable items", `{"items": [{"name": "X", "price": 3}, {"name": "Tea", "price": 0}]}`, ErrNoItemsDetected),
	)
})
