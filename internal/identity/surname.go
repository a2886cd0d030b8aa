package identity

import "strings"

// DefaultCommonSurnames are too frequent to suggest kinship.
var DefaultCommonSurnames = []string{
	"SILVA", "SANTOS", "OLIVEIRA", "SOUZA", "LIMA", "PEREIRA", "FERREIRA", "COSTA",
	"RODRIGUES", "ALVES", "NASCIMENTO", "CARVALHO", "GOMES", "MARTINS", "ARAUJO",
}

// generational suffixes are skipped when picking the last surname.
var generational = map[string]bool{
	"JUNIOR": true, "JR": true, "FILHO": true, "NETO": true, "SOBRINHO": true,
}

// LastSurname returns the final surname of a name, skipping generational suffixes.
func LastSurname(name string) string {
	parts := strings.Fields(NormalizeName(name))
	for i := len(parts) - 1; i > 0; i-- {
		if !generational[parts[i]] {
			return parts[i]
		}
	}
	return ""
}

// SurnameMatcher suggests kinship from surname similarity.
// It only ever produces hints.
type SurnameMatcher struct {
	excluded  map[string]bool
	minLength int
	threshold float64
}

// NewSurnameMatcher builds a matcher. Surnames shorter than minLength or in
// excluded never match. threshold is the minimum Jaro-Winkler similarity.
func NewSurnameMatcher(excluded []string, minLength int, threshold float64) *SurnameMatcher {
	m := &SurnameMatcher{
		excluded:  make(map[string]bool, len(excluded)),
		minLength: minLength,
		threshold: threshold,
	}
	for _, s := range excluded {
		m.excluded[NormalizeName(s)] = true
	}
	return m
}

// Eligible reports whether a surname can take part in a match.
func (m *SurnameMatcher) Eligible(surname string) bool {
	return len([]rune(surname)) >= m.minLength && !m.excluded[surname]
}

// Match compares the last surnames of two names.
// It returns the similarity and whether it clears the threshold.
func (m *SurnameMatcher) Match(nameA, nameB string) (float64, bool) {
	a, b := LastSurname(nameA), LastSurname(nameB)
	if !m.Eligible(a) || !m.Eligible(b) {
		return 0, false
	}
	sim := JaroWinkler(a, b)
	return sim, sim >= m.threshold
}
