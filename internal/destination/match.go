package destination

import (
	"errors"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"deliverycost/internal/geo"
)

// ErrNotFound is returned when destination text matches no commune.
var ErrNotFound = errors.New("unresolved destination")

// Strategy names the rule that produced a Resolution.
type Strategy string

const (
	StrategyExact    Strategy = "exact"
	StrategyContains Strategy = "contains"
	StrategyToken    Strategy = "token"
	StrategyScored   Strategy = "scored"
	StrategyTypo     Strategy = "typo"
)

// Scores given to candidates when no wilaya scope is fixed. ScoreContainedIn
// is only reported by the scoped search, for a commune name found inside a
// longer address line.
const (
	ScoreExact       = 100
	ScorePrefix      = 90
	ScoreContains    = 70
	ScoreContainedIn = 60
	ScoreOther       = 50
	ScoreTypo        = 40
	minContainedLen = 3
	minTokenLen     = 3
	maxTypoDistance = 2
)

// Resolution is a destination resolved to a commune of a wilaya.
type Resolution struct {
	WilayaCode int          `json:"wilaya_code"`
	WilayaName string       `json:"wilaya_name"`
	Commune    string       `json:"commune"`
	ZoneTier   geo.ZoneTier `json:"zone_tier"`
	Strategy   Strategy     `json:"strategy"`
	Score      int          `json:"score"`
}

type communeEntry struct {
	commune geo.Commune
	key     string
	words   []string
}

type wilayaEntry struct {
	wilaya   geo.Wilaya
	key      string
	communes []communeEntry
}

// Matcher resolves normalized destination parts against the reference data.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	wilayas []wilayaEntry
	typo    float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithTypoTolerance enables a last-resort Jaro-Winkler match for misspelled
// communes. Candidates must reach threshold (0..1] and be within two edits.
func WithTypoTolerance(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 && threshold <= 1 {
			m.typo = threshold
		}
	}
}

// NewMatcher indexes dir for matching. Iteration order is ascending wilaya
// code, then commune declaration order; ties are broken by it.
func NewMatcher(dir *geo.Directory, opts ...Option) *Matcher {
	m := &Matcher{}
	for _, w := range dir.Wilayas() {
		we := wilayaEntry{wilaya: w, key: fold(w.Name)}
		for _, c := range w.Communes {
			key := fold(c.Name)
			we.communes = append(we.communes, communeEntry{commune: c, key: key, words: words(key)})
		}
		m.wilayas = append(m.wilayas, we)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ResolveText normalizes raw and resolves it.
func (m *Matcher) ResolveText(raw string) (Resolution, error) {
	return m.Resolve(Normalize(raw))
}

// Resolve finds the commune designated by parts. A region hint naming a
// wilaya restricts the search to it; a country hint, an unknown hint or a
// failed restricted search falls back to scoring communes of every wilaya.
func (m *Matcher) Resolve(parts Parts) (Resolution, error) {
	term := parts.Locality()
	if term == "" {
		return Resolution{}, ErrNotFound
	}

	var scope *wilayaEntry
	if hint := parts.Hint(); hint != "" && !IsCountryToken(hint) {
		scope = m.wilayaFor(hint)
	}
	if scope != nil {
		if r, ok := searchWilaya(scope, term); ok {
			return r, nil
		}
	}
	if r, ok := m.searchAll(term); ok {
		return r, nil
	}
	if m.typo > 0 {
		if r, ok := m.searchTypo(scope, term); ok {
			return r, nil
		}
	}
	return Resolution{}, ErrNotFound
}

// wilayaFor picks the wilaya a region hint refers to: exact name, numeric
// code, then containment in either direction.
func (m *Matcher) wilayaFor(hint string) *wilayaEntry {
	for i := range m.wilayas {
		if m.wilayas[i].key == hint {
			return &m.wilayas[i]
		}
	}
	if code, err := strconv.Atoi(hint); err == nil {
		for i := range m.wilayas {
			if m.wilayas[i].wilaya.Code == code {
				return &m.wilayas[i]
			}
		}
		return nil
	}
	for i := range m.wilayas {
		if containsEither(m.wilayas[i].key, hint) {
			return &m.wilayas[i]
		}
	}
	return nil
}

// searchWilaya looks for term among the communes of one wilaya, trying
// exact, containment and token-overlap matches in that order.
func searchWilaya(w *wilayaEntry, term string) (Resolution, bool) {
	for i := range w.communes {
		if w.communes[i].key == term {
			return resolution(w, &w.communes[i], StrategyExact, ScoreExact), true
		}
	}
	for i := range w.communes {
		if c := &w.communes[i]; containsEither(c.key, term) {
			return resolution(w, c, StrategyContains, containsScore(c.key, term)), true
		}
	}
	termWords := words(term)
	for i := range w.communes {
		if c := &w.communes[i]; sharesWord(c.words, termWords) {
			return resolution(w, c, StrategyToken, ScoreOther), true
		}
	}
	return Resolution{}, false
}

// searchAll scores every commune of every wilaya and keeps the first best.
func (m *Matcher) searchAll(term string) (Resolution, bool) {
	termWords := words(term)
	var (
		bestW *wilayaEntry
		bestC *communeEntry
		best  = -1
	)
	for i := range m.wilayas {
		w := &m.wilayas[i]
		for j := range w.communes {
			c := &w.communes[j]
			if c.key != term && !containsEither(c.key, term) && !sharesWord(c.words, termWords) {
				continue
			}
			if s := score(c.key, term); s > best {
				best, bestW, bestC = s, w, c
				if s == ScoreExact {
					return resolution(bestW, bestC, StrategyScored, best), true
				}
			}
		}
	}
	if bestC == nil {
		return Resolution{}, false
	}
	return resolution(bestW, bestC, StrategyScored, best), true
}

// searchTypo returns the commune most similar to term, preferring the scoped
// wilaya when one was fixed.
func (m *Matcher) searchTypo(scope *wilayaEntry, term string) (Resolution, bool) {
	candidates := m.wilayas
	if scope != nil {
		candidates = []wilayaEntry{*scope}
	}
	var (
		bestW *wilayaEntry
		bestC *communeEntry
		best  float64
	)
	for i := range candidates {
		w := &candidates[i]
		for j := range w.communes {
			c := &w.communes[j]
			sim := smetrics.JaroWinkler(term, c.key, 0.7, 4)
			if sim < m.typo || sim <= best {
				continue
			}
			if levenshtein.ComputeDistance(term, c.key) > maxTypoDistance {
				continue
			}
			best, bestW, bestC = sim, w, c
		}
	}
	if bestC == nil {
		if scope != nil {
			return m.searchTypo(nil, term)
		}
		return Resolution{}, false
	}
	return resolution(bestW, bestC, StrategyTypo, ScoreTypo), true
}

func resolution(w *wilayaEntry, c *communeEntry, s Strategy, sc int) Resolution {
	zone := c.commune.Zone
	if zone == "" {
		zone = w.wilaya.Zone
	}
	return Resolution{
		WilayaCode: w.wilaya.Code,
		WilayaName: w.wilaya.Name,
		Commune:    c.commune.Name,
		ZoneTier:   zone,
		Strategy:   s,
		Score:      sc,
	}
}

// score rates how well a commune name matches term.
func score(name, term string) int {
	switch {
	case name == term:
		return ScoreExact
	case strings.HasPrefix(name, term):
		return ScorePrefix
	case strings.Contains(name, term):
		return ScoreContains
	default:
		return ScoreOther
	}
}

// containsScore rates a containment match in either direction.
func containsScore(name, term string) int {
	if s := score(name, term); s != ScoreOther {
		return s
	}
	return ScoreContainedIn
}

// containsEither reports whether either string contains the other. The
// contained string must be at least minContainedLen bytes long.
func containsEither(a, b string) bool {
	if len(b) >= minContainedLen && strings.Contains(a, b) {
		return true
	}
	return len(a) >= minContainedLen && strings.Contains(b, a)
}

func words(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if len(w) >= minTokenLen {
			out = append(out, w)
		}
	}
	return out
}

func sharesWord(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
