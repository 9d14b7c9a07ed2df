package mpesa

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhoneFormat is returned when a phone number cannot be coerced
// into the 254XXXXXXXXX form the gateway requires.
var ErrInvalidPhoneFormat = errors.New("invalid phone number format")

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// NormalizePhone converts Kenyan mobile numbers into the 12-digit
// 254XXXXXXXXX form. Accepted inputs:
//
//	0712345678 / 0112345678  (local)
//	712345678 / 112345678    (local without leading zero)
//	+254712345678            (international)
//	254712345678             (already normalized)
func NormalizePhone(input string) (string, error) {
	phone := strings.TrimSpace(input)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.TrimPrefix(phone, "+")

	if phone == "" || !digitsOnly.MatchString(phone) {
		return "", ErrInvalidPhoneFormat
	}

	switch {
	case len(phone) == 12 && strings.HasPrefix(phone, "254"):
		// fall through to subscriber validation below
	case len(phone) == 10 && (strings.HasPrefix(phone, "07") || strings.HasPrefix(phone, "01")):
		phone = "254" + phone[1:]
	case len(phone) == 9 && (strings.HasPrefix(phone, "7") || strings.HasPrefix(phone, "1")):
		phone = "254" + phone
	default:
		return "", ErrInvalidPhoneFormat
	}

	subscriber := phone[3:]
	if len(subscriber) != 9 || (subscriber[0] != '7' && subscriber[0] != '1') {
		return "", ErrInvalidPhoneFormat
	}
	return phone, nil
}
