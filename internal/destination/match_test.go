package destination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverycost/internal/geo"
)

func newMatcher(t *testing.T, opts ...Option) *Matcher {
	t.Helper()
	return NewMatcher(geo.MustDefault(), opts...)
}

func TestResolveText(t *testing.T) {
	m := newMatcher(t)
	tests := []struct {
		in       string
		code     int
		wilaya   string
		commune  string
		strategy Strategy
	}{
		{"Oran, Algeria", 31, "Oran", "Oran", StrategyScored},
		{"Bir El Djir, Oran", 31, "Oran", "Bir El Djir", StrategyExact},
		{"Es Senia, Oran, Algérie", 31, "Oran", "Es Senia", StrategyExact},
		{"akbou, bejaia", 6, "Béjaïa", "Akbou", StrategyExact},
		{"Bab Ezzouar, Alger", 16, "Alger", "Bab Ezzouar", StrategyExact},
		{"Arzew, 31", 31, "Oran", "Arzew", StrategyExact},
		{"Sétif, Atlantis", 19, "Sétif", "Sétif", StrategyScored},
		{"Akbou, Oran", 6, "Béjaïa", "Akbou", StrategyScored},
		{"Mers El Kebir port, Oran", 31, "Oran", "Mers El Kébir", StrategyContains},
		{"Cite 500 logements Arzew, Oran", 31, "Oran", "Arzew", StrategyContains},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := m.ResolveText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.code, r.WilayaCode)
			assert.Equal(t, tt.wilaya, r.WilayaName)
			assert.Equal(t, tt.commune, r.Commune)
			assert.Equal(t, tt.strategy, r.Strategy)
		})
	}
}

func TestResolveScoresWithoutScope(t *testing.T) {
	m := newMatcher(t)

	r, err := m.ResolveText("Alger")
	require.NoError(t, err)
	assert.Equal(t, 16, r.WilayaCode)
	assert.Equal(t, "Alger Centre", r.Commune)
	assert.Equal(t, ScorePrefix, r.Score)

	r, err = m.ResolveText("Tizi")
	require.NoError(t, err)
	assert.Equal(t, "Tizi Ouzou", r.Commune)
	assert.Equal(t, ScorePrefix, r.Score)

	// An exact match later in iteration order beats earlier partial matches.
	r, err = m.ResolveText("El Oued, Algeria")
	require.NoError(t, err)
	assert.Equal(t, 39, r.WilayaCode)
	assert.Equal(t, ScoreExact, r.Score)
}

func TestResolveContainmentScores(t *testing.T) {
	m := newMatcher(t)

	r, err := m.ResolveText("Mers El Kebir port, Oran")
	require.NoError(t, err)
	assert.Equal(t, StrategyContains, r.Strategy)
	assert.Equal(t, ScoreContainedIn, r.Score)

	r, err = m.ResolveText("Cite 500 logements Arzew, Oran")
	require.NoError(t, err)
	assert.Equal(t, StrategyContains, r.Strategy)
	assert.Equal(t, ScoreContainedIn, r.Score)

	r, err = m.ResolveText("Bir El, Oran")
	require.NoError(t, err)
	assert.Equal(t, "Bir El Djir", r.Commune)
	assert.Equal(t, StrategyContains, r.Strategy)
	assert.Equal(t, ScorePrefix, r.Score)
}

func TestResolveWidensWhenHintedWilayaHasNoMatch(t *testing.T) {
	m := newMatcher(t)

	// Tlemcen has no commune called Oran, so every wilaya is searched.
	r, err := m.ResolveText("Oran, Tlemcen")
	require.NoError(t, err)
	assert.Equal(t, 31, r.WilayaCode)
	assert.Equal(t, "Oran", r.Commune)
	assert.Equal(t, StrategyScored, r.Strategy)
	assert.Equal(t, ScoreExact, r.Score)

	r, err = m.ResolveText("Maghnia, Tlemcen")
	require.NoError(t, err)
	assert.Equal(t, 13, r.WilayaCode)
	assert.Equal(t, StrategyExact, r.Strategy)
}

func TestResolveTieBreaksOnIterationOrder(t *testing.T) {
	m := newMatcher(t)
	r, err := m.ResolveText("Sidi")
	require.NoError(t, err)
	assert.Equal(t, 6, r.WilayaCode)
	assert.Equal(t, "Sidi Aïch", r.Commune)
	assert.Equal(t, ScorePrefix, r.Score)
}

func TestResolveZoneTier(t *testing.T) {
	m := newMatcher(t)

	r, err := m.ResolveText("Hassi Messaoud, Algeria")
	require.NoError(t, err)
	assert.Equal(t, geo.ZoneRemote, r.ZoneTier)

	r, err = m.ResolveText("Hassi R'Mel, Laghouat")
	require.NoError(t, err)
	assert.Equal(t, 3, r.WilayaCode)
	assert.Equal(t, geo.ZoneRemote, r.ZoneTier, "commune override applies")

	r, err = m.ResolveText("Aflou, Laghouat")
	require.NoError(t, err)
	assert.Equal(t, geo.ZoneStandard, r.ZoneTier)
}

func TestResolveNotFound(t *testing.T) {
	m := newMatcher(t)
	for _, in := range []string{"", " , ", "Nowhere", "Nowhere, Algeria", "Tlemcan"} {
		_, err := m.ResolveText(in)
		assert.ErrorIs(t, err, ErrNotFound, "input %q", in)
	}
}

func TestResolveTypoTolerance(t *testing.T) {
	m := newMatcher(t, WithTypoTolerance(0.9))

	r, err := m.ResolveText("Tlemcan")
	require.NoError(t, err)
	assert.Equal(t, 13, r.WilayaCode)
	assert.Equal(t, "Tlemcen", r.Commune)
	assert.Equal(t, StrategyTypo, r.Strategy)

	_, err = m.ResolveText("Nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveIsDeterministic(t *testing.T) {
	m := newMatcher(t)
	for _, in := range []string{"Oran, Algeria", "Sidi", "Ain, Algeria", "El Harrach, Alger"} {
		first, err1 := m.ResolveText(in)
		second, err2 := m.ResolveText(in)
		assert.Equal(t, err1, err2)
		assert.Equal(t, first, second, "input %q", in)
	}
}
