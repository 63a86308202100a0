// Package geo holds the administrative reference data: the 58 wilayas, their
// communes and the zone tier that drives overweight pricing. The data is
// loaded once and is read-only afterwards.
package geo

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ZoneTier is the coarse delivery classification of a region.
type ZoneTier string

const (
	ZoneStandard ZoneTier = "standard"
	ZoneRemote   ZoneTier = "remote"
)

const (
	MinWilayaCode = 1
	MaxWilayaCode = 58
)

var ErrInvalidData = errors.New("invalid reference data")

//go:embed data/wilayas.yaml
var embedded []byte

// Commune is a municipality under exactly one wilaya. Zone is empty unless
// the commune overrides its wilaya's tier.
type Commune struct {
	Name       string   `yaml:"name"`
	WilayaCode int      `yaml:"-"`
	Zone       ZoneTier `yaml:"zone,omitempty"`
}

// UnmarshalYAML accepts either a bare commune name or a {name, zone} mapping.
func (c *Commune) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain Commune
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Commune(p)
	return nil
}

// Wilaya is a first-level administrative province.
type Wilaya struct {
	Code     int       `yaml:"code"`
	Name     string    `yaml:"name"`
	Zone     ZoneTier  `yaml:"zone"`
	Communes []Commune `yaml:"communes"`
}

// DisplayCode returns the zero-padded two digit code used on labels.
func (w Wilaya) DisplayCode() string {
	return fmt.Sprintf("%02d", w.Code)
}

// Directory is an immutable index over the wilayas and their communes.
// It is safe for concurrent use.
type Directory struct {
	wilayas []Wilaya
	byCode  map[int]int
	// communes maps wilaya code to commune key to position in Communes.
	communes map[int]map[string]int
}

type document struct {
	Wilayas []Wilaya `yaml:"wilayas"`
}

// Load parses and validates reference data in the embedded YAML layout.
func Load(r io.Reader) (*Directory, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return New(doc.Wilayas)
}

// New indexes the given wilayas. Wilayas are kept in ascending code order,
// communes in declaration order.
func New(wilayas []Wilaya) (*Directory, error) {
	d := &Directory{
		byCode:   make(map[int]int, len(wilayas)),
		communes: make(map[int]map[string]int, len(wilayas)),
	}
	ordered := make([]Wilaya, MaxWilayaCode+1)
	seen := make([]bool, MaxWilayaCode+1)
	for _, w := range wilayas {
		if w.Code < MinWilayaCode || w.Code > MaxWilayaCode {
			return nil, fmt.Errorf("%w: wilaya code %d out of range", ErrInvalidData, w.Code)
		}
		if seen[w.Code] {
			return nil, fmt.Errorf("%w: duplicate wilaya code %d", ErrInvalidData, w.Code)
		}
		if strings.TrimSpace(w.Name) == "" {
			return nil, fmt.Errorf("%w: wilaya %d has no name", ErrInvalidData, w.Code)
		}
		if w.Zone == "" {
			w.Zone = ZoneStandard
		}
		if w.Zone != ZoneStandard && w.Zone != ZoneRemote {
			return nil, fmt.Errorf("%w: wilaya %d has unknown zone %q", ErrInvalidData, w.Code, w.Zone)
		}
		seen[w.Code] = true
		ordered[w.Code] = w
	}

	for code := MinWilayaCode; code <= MaxWilayaCode; code++ {
		if !seen[code] {
			continue
		}
		w := ordered[code]
		idx := make(map[string]int, len(w.Communes))
		communes := make([]Commune, 0, len(w.Communes))
		for _, c := range w.Communes {
			key := Key(c.Name)
			if key == "" {
				return nil, fmt.Errorf("%w: wilaya %d has an unnamed commune", ErrInvalidData, code)
			}
			if _, dup := idx[key]; dup {
				return nil, fmt.Errorf("%w: duplicate commune %q in wilaya %d", ErrInvalidData, c.Name, code)
			}
			if c.Zone != "" && c.Zone != ZoneStandard && c.Zone != ZoneRemote {
				return nil, fmt.Errorf("%w: commune %q has unknown zone %q", ErrInvalidData, c.Name, c.Zone)
			}
			c.WilayaCode = code
			idx[key] = len(communes)
			communes = append(communes, c)
		}
		w.Communes = communes
		d.byCode[code] = len(d.wilayas)
		d.communes[code] = idx
		d.wilayas = append(d.wilayas, w)
	}
	return d, nil
}

var (
	defaultOnce sync.Once
	defaultDir  *Directory
	defaultErr  error
)

// Default returns the directory built from the embedded data set.
func Default() (*Directory, error) {
	defaultOnce.Do(func() {
		defaultDir, defaultErr = Load(bytes.NewReader(embedded))
	})
	return defaultDir, defaultErr
}

// MustDefault is Default for program start-up and tests.
func MustDefault() *Directory {
	d, err := Default()
	if err != nil {
		panic(err)
	}
	return d
}

// Wilayas returns every wilaya in ascending code order. The slice must not be
// modified.
func (d *Directory) Wilayas() []Wilaya {
	return d.wilayas
}

// Wilaya looks a wilaya up by code.
func (d *Directory) Wilaya(code int) (Wilaya, bool) {
	i, ok := d.byCode[code]
	if !ok {
		return Wilaya{}, false
	}
	return d.wilayas[i], true
}

// Commune finds a commune of the given wilaya by name, ignoring case,
// accents and punctuation.
func (d *Directory) Commune(code int, name string) (Commune, bool) {
	i, ok := d.communes[code][Key(name)]
	if !ok {
		return Commune{}, false
	}
	return d.wilayas[d.byCode[code]].Communes[i], true
}

// Zone returns the tier of a commune, falling back to its wilaya's tier.
// Unknown wilayas are standard.
func (d *Directory) Zone(code int, commune string) ZoneTier {
	if c, ok := d.Commune(code, commune); ok && c.Zone != "" {
		return c.Zone
	}
	if w, ok := d.Wilaya(code); ok {
		return w.Zone
	}
	return ZoneStandard
}

// Len returns the number of wilayas.
func (d *Directory) Len() int { return len(d.wilayas) }

// Key folds a place name into the form used for keys and comparisons:
// lower case, no diacritics, no apostrophes, single spaces between words.
func Key(s string) string {
	// Chained transformers carry state, so each call gets its own.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
