// Package destination turns free-form destination text into a canonical
// wilaya/commune pair.
package destination

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// Parts is the normalized form of a destination: a locality and, when the
// text carried one, a region hint.
type Parts []string

// Locality returns the first part, usually a commune name.
func (p Parts) Locality() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Hint returns the region hint, or "" when there is none.
func (p Parts) Hint() string {
	if len(p) < 2 {
		return ""
	}
	return p[1]
}

var countryTokens = map[string]struct{}{
	"algeria":    {},
	"algerie":    {},
	"dz":         {},
	"dza":        {},
	"dzair":      {},
	"djazair":    {},
	"el djazair": {},
	"al djazair": {},
	"jazair":     {},
	"al jazair":  {},
}

// IsCountryToken reports whether s, already normalized, names the country
// rather than a region.
func IsCountryToken(s string) bool {
	_, ok := countryTokens[s]
	return ok
}

// Normalize lower-cases s, transliterates it to ASCII, strips punctuation
// other than commas and splits it into at most two parts. Text without a
// comma yields a single locality part. Empty text yields no parts.
func Normalize(s string) Parts {
	var segments []string
	for _, seg := range strings.Split(clean(s), ",") {
		if seg = strings.Join(strings.Fields(seg), " "); seg != "" {
			segments = append(segments, seg)
		}
	}

	switch len(segments) {
	case 0:
		return nil
	case 1, 2:
		return Parts(segments)
	}

	hint := segments[len(segments)-1]
	for _, seg := range segments[1:] {
		if !IsCountryToken(seg) {
			hint = seg
			break
		}
	}
	return Parts{segments[0], hint}
}

// fold normalizes a single name the same way Normalize treats a segment.
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(clean(s), ",", " ")), " ")
}

func clean(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ',':
			b.WriteRune(r)
		case r == '\'' || r == '`':
			// dropped so that "M'Sila" folds to "msila"
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
