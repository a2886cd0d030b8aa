package identity

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

const (
	nationalIDLength = 11
	orgIDLength      = 14
	partialLength    = 6
)

// maskRunes are the characters sources use to redact identifier digits.
const maskRunes = "*xX"

// NormalizeNationalID validates an 11-digit person id.
//
// A masked id with exactly 6 visible digits yields a Partial identifier.
// Otherwise the digits must be 11 long, not all equal, and both check digits
// must match the weighted mod-11 sums over positions 1-9 and 1-10.
func NormalizeNationalID(raw string) (domain.Identifier, error) {
	digits := onlyDigits(raw)
	if hasMask(raw) && len(digits) == partialLength {
		return domain.PartialIdentifier(digits, strings.TrimSpace(raw)), nil
	}
	if len(digits) != nationalIDLength {
		return domain.Identifier{}, fmt.Errorf("%w: national id %q has %d digits", domain.ErrInvalidIdentifier, raw, len(digits))
	}
	if allEqual(digits) {
		return domain.Identifier{}, fmt.Errorf("%w: national id %q is a trivial sequence", domain.ErrInvalidIdentifier, raw)
	}
	if checkDigit(digits, 9) != digitAt(digits, 9) || checkDigit(digits, 10) != digitAt(digits, 10) {
		return domain.Identifier{}, fmt.Errorf("%w: national id %q fails checksum", domain.ErrInvalidIdentifier, raw)
	}
	return domain.FullIdentifier(digits), nil
}

// NormalizeOrgID validates a 14-digit organisation id. Check digits are not verified.
func NormalizeOrgID(raw string) (domain.Identifier, error) {
	digits := onlyDigits(raw)
	if len(digits) != orgIDLength {
		return domain.Identifier{}, fmt.Errorf("%w: organisation id %q has %d digits", domain.ErrInvalidIdentifier, raw, len(digits))
	}
	if allEqual(digits) {
		return domain.Identifier{}, fmt.Errorf("%w: organisation id %q is a trivial sequence", domain.ErrInvalidIdentifier, raw)
	}
	return domain.FullIdentifier(digits), nil
}

// NormalizeAnyID dispatches on digit count: 14 digits is an organisation,
// anything else is treated as a person id. Sanction lists and donor columns
// mix both.
func NormalizeAnyID(raw string) (domain.Identifier, domain.EntityKind, error) {
	if !hasMask(raw) && len(onlyDigits(raw)) == orgIDLength {
		id, err := NormalizeOrgID(raw)
		return id, domain.EntityOrganization, err
	}
	id, err := NormalizeNationalID(raw)
	return id, domain.EntityPerson, err
}

// NationalIDCheckDigits computes both check digits for a 9-digit body.
func NationalIDCheckDigits(body string) (string, error) {
	if len(body) != 9 || len(onlyDigits(body)) != 9 {
		return "", fmt.Errorf("%w: body must be 9 digits", domain.ErrInvalidInput)
	}
	first := checkDigit(body, 9)
	withFirst := body + string(rune('0'+first))
	second := checkDigit(withFirst, 10)
	return string([]rune{rune('0' + first), rune('0' + second)}), nil
}

// checkDigit computes the mod-11 check digit over the first n digits,
// with weights n+1 down to 2. A remainder of 10 maps to 0.
func checkDigit(digits string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += digitAt(digits, i) * (n + 1 - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		return 0
	}
	return rem
}

func digitAt(s string, i int) int {
	return int(s[i] - '0')
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasMask(s string) bool {
	return strings.ContainsAny(s, maskRunes)
}

func allEqual(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
