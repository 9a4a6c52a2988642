package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/25x8/carrental/internal/carrental/models"
)

const earningsSheet = "Earnings"

var earningsHeaders = []string{
	"Booking ID", "Car ID", "Partner ID", "Total", "Commission %",
	"Partner share", "Platform share", "Paid at",
}

// EarningsWorkbook renders the per-booking earnings breakdown as a workbook
// with one row per paid booking followed by a totals row.
func EarningsWorkbook(lines []models.EarningLine) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", earningsSheet); err != nil {
		f.Close()
		return nil, err
	}

	for i, header := range earningsHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(earningsSheet, cell, header); err != nil {
			f.Close()
			return nil, err
		}
	}

	var total, partner, platform decimal.Decimal
	row := 2
	for _, line := range lines {
		paidAt := ""
		if line.PaidAt != nil {
			paidAt = line.PaidAt.UTC().Format("2006-01-02 15:04:05")
		}
		values := []any{
			line.BookingID,
			line.CarID,
			line.PartnerID,
			line.TotalAmount.InexactFloat64(),
			line.CommissionRate.InexactFloat64(),
			line.PartnerShare.InexactFloat64(),
			line.PlatformShare.InexactFloat64(),
			paidAt,
		}
		if err := setRow(f, row, values); err != nil {
			f.Close()
			return nil, err
		}
		total = total.Add(line.TotalAmount)
		partner = partner.Add(line.PartnerShare)
		platform = platform.Add(line.PlatformShare)
		row++
	}

	totals := []any{"Total", "", "", total.InexactFloat64(), "", partner.InexactFloat64(), platform.InexactFloat64(), ""}
	if err := setRow(f, row, totals); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(earningsSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
