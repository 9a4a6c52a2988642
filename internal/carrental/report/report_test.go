package report

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25x8/carrental/internal/carrental/models"
)

func line(bookingID int64, total, partner, platform string) models.EarningLine {
	paid := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return models.EarningLine{
		EarningEntry: models.EarningEntry{
			BookingID:   bookingID,
			CarID:       3,
			PartnerID:   1,
			TotalAmount: decimal.RequireFromString(total),
			PaidAt:      &paid,
		},
		CommissionRate: decimal.NewFromInt(10),
		PartnerShare:   decimal.RequireFromString(partner),
		PlatformShare:  decimal.RequireFromString(platform),
	}
}

func TestEarningsWorkbook(t *testing.T) {
	f, err := EarningsWorkbook([]models.EarningLine{
		line(1, "150", "135", "15"),
		line(2, "50", "45", "5"),
	})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Earnings"}, f.GetSheetList())

	header, err := f.GetCellValue("Earnings", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Booking ID", header)

	paidAt, err := f.GetCellValue("Earnings", "H2")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01 09:30:00", paidAt)

	label, err := f.GetCellValue("Earnings", "A4")
	require.NoError(t, err)
	assert.Equal(t, "Total", label)

	for cell, want := range map[string]string{"D4": "200", "F4": "180", "G4": "20"} {
		got, err := f.GetCellValue("Earnings", cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

func TestEarningsWorkbookEmpty(t *testing.T) {
	f, err := EarningsWorkbook(nil)
	require.NoError(t, err)
	defer f.Close()

	label, err := f.GetCellValue("Earnings", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Total", label)
}

func TestUPIPayURI(t *testing.T) {
	link, err := UPIPayURI("asha@okbank", "Asha K", decimal.NewFromInt(100), "payout 4")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "upi://pay?"))

	q, err := url.ParseQuery(strings.TrimPrefix(link, "upi://pay?"))
	require.NoError(t, err)
	assert.Equal(t, "asha@okbank", q.Get("pa"))
	assert.Equal(t, "Asha K", q.Get("pn"))
	assert.Equal(t, "100.00", q.Get("am"))
	assert.Equal(t, "INR", q.Get("cu"))
	assert.Equal(t, "payout 4", q.Get("tn"))

	_, err = UPIPayURI("not-an-upi", "", decimal.NewFromInt(1), "")
	assert.Error(t, err)
	_, err = UPIPayURI("asha@okbank", "", decimal.Zero, "")
	assert.Error(t, err)
}

func TestUPIQRCode(t *testing.T) {
	png, err := UPIQRCode("asha@okbank", "", decimal.RequireFromString("35.5"), "")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")))
}
