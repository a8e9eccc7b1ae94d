// Package privacy normalizes and pseudonymizes personal fields before they
// leave the service. The provider's matching contract requires plain,
// unsalted SHA-256 over normalized input, so raw email/phone/external-id
// values are hashed here and never transmitted or logged.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// callingCodes maps an ISO-3166 two-letter country hint to its international
// calling code. Extend as new markets appear.
var callingCodes = map[string]string{
	"CL": "56",
	"AR": "54",
	"UY": "598",
	"ES": "34",
	"US": "1",
}

// Hash returns the hex-encoded SHA-256 digest of the trimmed, lower-cased
// input. Deterministic and unsalted per the provider's matching contract.
func Hash(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizePhone converts a raw phone number to a best-effort E.164 form:
//
//   - non-digit characters are stripped (a leading "+" is preserved)
//   - a leading international dial prefix "00" is stripped
//   - if no country calling code is present, the leading zero of the
//     national number is stripped and the calling code for countryHint is
//     prepended
//
// This is not a numbering-plan validator. It never fails; malformed input
// produces a best guess, which downstream code hashes before transmission.
func NormalizePhone(raw, countryHint string) string {
	trimmed := strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(trimmed, "+")

	digits := keepDigits(trimmed)
	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
		hasPlus = true
	}

	if hasPlus {
		return "+" + digits
	}

	code, known := callingCodes[strings.ToUpper(strings.TrimSpace(countryHint))]
	if !known {
		return "+" + digits
	}

	// Already carries its own country code.
	if strings.HasPrefix(digits, code) {
		return "+" + digits
	}

	digits = strings.TrimPrefix(digits, "0")
	return "+" + code + digits
}

// HashPhone normalizes then hashes a raw phone number.
func HashPhone(raw, countryHint string) string {
	return Hash(NormalizePhone(raw, countryHint))
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
