package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

// nullTokens parse to zero instead of failing.
var nullTokens = map[string]bool{
	"":       true,
	"-":      true,
	"#NULO#": true,
	"#NE#":   true,
}

// ParseLocaleCurrency parses a pt-BR formatted amount: "." groups thousands
// and "," marks decimals. Null markers yield 0.
func ParseLocaleCurrency(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if nullTokens[strings.ToUpper(s)] {
		return 0, nil
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", domain.ErrValidation, raw)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// ParseDecimal parses machine-formatted numbers ("1234.56") as emitted by JSON
// APIs, falling back to the locale format when a comma or more than one dot
// is present.
func ParseDecimal(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, ",") || strings.Count(s, ".") > 1 || nullTokens[strings.ToUpper(s)] {
		return ParseLocaleCurrency(raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: number %q", domain.ErrValidation, raw)
	}
	return v, nil
}
