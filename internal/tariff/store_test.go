package tariff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFetchFoldsKeys(t *testing.T) {
	s := NewStore("memory")
	s.Put(Record{Service: "Yalidine", WilayaCode: 6, Commune: "Béjaïa", HomePrice: 450})

	r, err := s.FetchTariff(context.Background(), "yalidine", 6, "bejaia")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(450), r.HomePrice)
	assert.Equal(t, "memory", r.Source)

	r, err = s.FetchTariff(context.Background(), "yalidine", 6, "Akbou")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestStoreListSortedByCommune(t *testing.T) {
	s := NewStore("memory")
	s.Replace([]Record{
		{Service: "yalidine", WilayaCode: 31, Commune: "Oran", HomePrice: 400},
		{Service: "yalidine", WilayaCode: 31, Commune: "Arzew", HomePrice: 450},
		{Service: "yalidine", WilayaCode: 16, Commune: "Alger Centre", HomePrice: 400},
		{Service: "zr", WilayaCode: 31, Commune: "Oran", HomePrice: 380},
	})
	assert.Equal(t, 4, s.Len())

	rs, err := s.ListTariffs(context.Background(), "YALIDINE", 31)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "Arzew", rs[0].Commune)
	assert.Equal(t, "Oran", rs[1].Commune)
}

func TestRecordPrice(t *testing.T) {
	r := Record{HomePrice: 400}
	p, ok := r.Price(DeliveryHome)
	assert.True(t, ok)
	assert.Equal(t, int64(400), p)

	_, ok = r.Price(DeliveryOffice)
	assert.False(t, ok, "zero office price means not offered")
}

func TestParseDeliveryType(t *testing.T) {
	assert.Equal(t, DeliveryOffice, ParseDeliveryType(" Stopdesk "))
	assert.Equal(t, DeliveryOffice, ParseDeliveryType("office"))
	assert.Equal(t, DeliveryHome, ParseDeliveryType("home"))
	assert.Equal(t, DeliveryHome, ParseDeliveryType(""))
	assert.Equal(t, DeliveryHome, ParseDeliveryType("drone"))
}

func TestSupplementsWithDefaults(t *testing.T) {
	s := Supplements{OverweightRatePerKg: 70}.WithDefaults()
	assert.Equal(t, 0.01, s.CODRate)
	assert.Equal(t, 5.0, s.OverweightThresholdKg)
	assert.Equal(t, int64(70), s.OverweightRatePerKg)
	assert.Equal(t, int64(100), s.RemoteOverweightRatePerKg)
}

func TestSourceErrorMatchesBoth(t *testing.T) {
	err := &SourceError{Source: "postgres", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "postgres")
}
