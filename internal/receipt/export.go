package receipt

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/splitbill/internal/extract"
)

const (
	itemsSheet   = "Items"
	summarySheet = "Summary"
)

// ExportXLSX writes the receipt as a workbook with an Items sheet and a Summary sheet
func ExportXLSX(data *extract.ReceiptData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", itemsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}

	headers := []string{"Name", "Quantity", "Unit Price", "Price"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, h)
	}
	_ = f.SetCellStyle(itemsSheet, "A1", "D1", bold)

	for i, item := range data.Items {
		row := i + 2
		values := []interface{}{item.Name, item.Quantity, item.UnitPrice(), item.Price}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(itemsSheet, cell, v)
		}
	}
	_ = f.SetColWidth(itemsSheet, "A", "A", 40)
	_ = f.SetColWidth(itemsSheet, "B", "D", 14)

	summary := [][]interface{}{
		{"Restaurant", data.BillInfo.RestaurantName},
		{"Date", data.BillInfo.Date},
		{"Currency", data.BillInfo.Currency},
		{"Items Subtotal", data.ItemsTotal()},
	}
	for _, c := range data.Charges {
		summary = append(summary, []interface{}{c.Name, c.Amount})
	}
	summary = append(summary, []interface{}{"Grand Total", data.GrandTotal()})

	for i, pair := range summary {
		row := i + 1
		for col, v := range pair {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(summarySheet, cell, v)
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellStyle(summarySheet, cell, cell, bold)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	_ = f.SetColWidth(summarySheet, "B", "B", 30)

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
