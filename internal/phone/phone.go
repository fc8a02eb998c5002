// Package phone canonicalizes customer phone numbers to E.164 before they
// are stored or looked up.
package phone

import (
	"errors"
	"strings"
)

var ErrInvalid = errors.New("invalid phone number")

// nationalDigits is the subscriber number length after the trunk prefix is
// dropped; longer bare numbers already carry the country code.
const nationalDigits = 9

// Normalize converts raw input into +<country code><subscriber> form.
//
//	"082 555 1234"   -> "+27825551234"
//	"+27 82 555 1234" -> "+27825551234"
//	"825551234"      -> "+27825551234"
//	"27825551234"    -> "+27825551234"
func Normalize(raw string, countryCode string) (string, error) {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalid
	}

	plus := strings.HasPrefix(trimmed, "+")
	digits := make([]byte, 0, len(trimmed))
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.' || (c == '+' && i == 0):
		default:
			return "", ErrInvalid
		}
	}
	number := string(digits)

	switch {
	case plus:
	case strings.HasPrefix(number, "00"):
		number = strings.TrimPrefix(number, "00")
	case strings.HasPrefix(number, "0"):
		number = countryCode + strings.TrimPrefix(number, "0")
	case countryCode != "" && strings.HasPrefix(number, countryCode) && len(number) >= len(countryCode)+nationalDigits:
	default:
		number = countryCode + number
	}

	// E.164 caps numbers at 15 digits.
	if len(number) < 8 || len(number) > 15 {
		return "", ErrInvalid
	}
	return "+" + number, nil
}
