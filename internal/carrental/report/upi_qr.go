package report

import (
	"errors"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/25x8/carrental/internal/carrental/utils"
)

// UPIPayURI builds the upi://pay deep link a payer's app understands.
func UPIPayURI(upiID, payeeName string, amount decimal.Decimal, note string) (string, error) {
	if !utils.ValidateUPIID(upiID) {
		return "", errors.New("invalid UPI id")
	}
	if !amount.IsPositive() {
		return "", errors.New("amount must be positive")
	}

	q := url.Values{}
	q.Set("pa", upiID)
	if payeeName != "" {
		q.Set("pn", payeeName)
	}
	q.Set("am", amount.StringFixed(2))
	q.Set("cu", "INR")
	if note != "" {
		q.Set("tn", note)
	}
	return "upi://pay?" + q.Encode(), nil
}

// UPIQRCode returns a 256px PNG QR code of the UPI pay link.
func UPIQRCode(upiID, payeeName string, amount decimal.Decimal, note string) ([]byte, error) {
	link, err := UPIPayURI(upiID, payeeName, amount, note)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(link, qrcode.Medium, 256)
}
