package utils

import (
	"regexp"
	"strings"
)

var (
	ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	upiPattern  = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z][a-zA-Z0-9]{1,63}$`)
)

// IsDigits checks if a string is non-empty and contains only ASCII digits
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateIFSC checks an Indian Financial System Code: four bank letters,
// a literal zero, six branch characters.
func ValidateIFSC(code string) bool {
	return ifscPattern.MatchString(strings.ToUpper(strings.TrimSpace(code)))
}

// ValidateUPIID checks a virtual payment address of the form handle@provider
func ValidateUPIID(id string) bool {
	return upiPattern.MatchString(strings.TrimSpace(id))
}

// ValidateAccountNumber accepts 9 to 18 digit bank account numbers
func ValidateAccountNumber(number string) bool {
	number = strings.TrimSpace(number)
	return len(number) >= 9 && len(number) <= 18 && IsDigits(number)
}

// NormalizePhone strips formatting from a contact number and returns it with
// an optional leading '+'. ok is false when fewer than 7 or more than 15
// digits remain.
func NormalizePhone(phone string) (normalized string, ok bool) {
	phone = strings.TrimSpace(phone)
	plus := strings.HasPrefix(phone, "+")

	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '+':
		default:
			return "", false
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return "", false
	}
	if plus {
		return "+" + digits, true
	}
	return digits, true
}
