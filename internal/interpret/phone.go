package interpret

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// maxPhoneDigits is DDD (2) plus a nine-digit mobile number.
const maxPhoneDigits = 11

var canonicalPhone = regexp.MustCompile(`^\(\d{2}\) \d{5}-\d{4}$`)

// PhoneErr names the reason a phone number failed validation.
type PhoneErr string

const (
	PhoneErrNone      PhoneErr = ""
	PhoneErrEmpty     PhoneErr = "empty"
	PhoneErrBadFormat PhoneErr = "bad-format"
)

// PhoneValidation is the result of [ValidatePhone].
type PhoneValidation struct {
	Valid bool
	Err   PhoneErr
}

// Message returns the pt-BR text shown next to the phone input.
func (v PhoneValidation) Message() string {
	switch v.Err {
	case PhoneErrEmpty:
		return "Informe seu número de telefone."
	case PhoneErrBadFormat:
		return "Use o formato (DD) DDDDD-DDDD."
	default:
		return ""
	}
}

// PhoneDigits returns the digits of s, in order.
func PhoneDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhoneAsTyped renders raw progressively as "(DD) DDDDD-DDDD".
// Non-digits are dropped and digits beyond the eleventh are ignored, so the
// function is idempotent on its own output.
func FormatPhoneAsTyped(raw string) string {
	d := PhoneDigits(raw)
	if len(d) > maxPhoneDigits {
		d = d[:maxPhoneDigits]
	}
	switch {
	case len(d) == 0:
		return ""
	case len(d) <= 2:
		return "(" + d
	case len(d) <= 7:
		return "(" + d[:2] + ") " + d[2:]
	default:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	}
}

// ValidatePhone reports whether formatted is exactly "(DD) DDDDD-DDDD".
func ValidatePhone(formatted string) PhoneValidation {
	switch {
	case strings.TrimSpace(formatted) == "":
		return PhoneValidation{Err: PhoneErrEmpty}
	case canonicalPhone.MatchString(formatted):
		return PhoneValidation{Valid: true}
	default:
		return PhoneValidation{Err: PhoneErrBadFormat}
	}
}

// PhoneE164 converts a formatted phone to E.164 (e.g. "+5511999999999")
// using region as the default country.
func PhoneE164(formatted, region string) (string, error) {
	num, err := phonenumbers.Parse(PhoneDigits(formatted), region)
	if err != nil {
		return "", fmt.Errorf("interpret: parse phone: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("interpret: phone %q is not a valid %s number", formatted, region)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
