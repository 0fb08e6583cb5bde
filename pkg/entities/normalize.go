package entities

import (
	"strings"
	"unicode"
)

// NormalizePlatform collapses whitespace and title-cases a platform name so
// that "ORION  stars" and "Orion Stars" denote the same platform.
func NormalizePlatform(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")

	var b strings.Builder
	b.Grow(len(collapsed))
	prevLetter := false
	for _, r := range collapsed {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

// MatchKey is the comparison form for platform and company names: trimmed,
// inner whitespace collapsed, upper-cased.
func MatchKey(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// CompanySet builds a lookup of MatchKey(company) for membership tests
func CompanySet(companies []string) map[string]struct{} {
	set := make(map[string]struct{}, len(companies))
	for _, c := range companies {
		if key := MatchKey(c); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}
