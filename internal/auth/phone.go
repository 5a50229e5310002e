package auth

import (
	"strings"

	"github.com/luckyshop/server/internal/apperr"
)

const (
	minPhoneDigits = 5
	maxPhoneDigits = 12
)

// NormalizePhone strips the trunk prefix ("09123456" -> "9123456") or the country code in front of the
// mobile prefix ("959123456" -> "9123456"). The result must be 5-12 digits.
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" || !isDigits(p) {
		return "", apperr.New(apperr.KindInvalidInput, "Invalid phone number")
	}
	switch {
	case strings.HasPrefix(p, "0"):
		p = p[1:]
	case strings.HasPrefix(p, "959"):
		p = p[2:]
	}
	if len(p) < minPhoneDigits || len(p) > maxPhoneDigits {
		return "", apperr.New(apperr.KindInvalidInput, "Phone number must be between 5 and 12 digits")
	}
	return p, nil
}

// MaskPhone masks a phone number for logging (e.g., 91****56)
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
