package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tariffs/yalidine/31/oran", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"wilaya_name":  "Oran",
			"commune":      "Oran",
			"home_price":   400,
			"office_price": 350,
		})
	})
	mux.HandleFunc("/tariffs/yalidine/31", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"commune": "Arzew", "home_price": 450},
			{"commune": "Oran", "home_price": 400, "office_price": 350},
		})
	})
	mux.HandleFunc("/tariffs/yalidine/9/blida", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/tariffs/yalidine/19/setif", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTariff(t *testing.T) {
	api := newAPI(t)
	s := New(api.URL+"/", WithToken("secret"))

	r, err := s.FetchTariff(context.Background(), "Yalidine", 31, "Oran")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "yalidine", r.Service)
	assert.Equal(t, 31, r.WilayaCode)
	assert.Equal(t, int64(400), r.HomePrice)
	assert.Equal(t, int64(350), r.OfficePrice)
	assert.Equal(t, "remote", r.Source)
}

func TestFetchTariffNotFoundIsNoMatch(t *testing.T) {
	api := newAPI(t)
	s := New(api.URL, WithToken("secret"))

	r, err := s.FetchTariff(context.Background(), "yalidine", 58, "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestFetchTariffServerErrorFails(t *testing.T) {
	api := newAPI(t)
	s := New(api.URL)

	_, err := s.FetchTariff(context.Background(), "yalidine", 9, "Blida")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)

	_, err = s.FetchTariff(context.Background(), "yalidine", 19, "Sétif")
	assert.Error(t, err)
}

func TestFetchTariffHonoursContext(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(slow.URL).FetchTariff(ctx, "yalidine", 31, "Oran")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListTariffs(t *testing.T) {
	api := newAPI(t)
	rs, err := New(api.URL).ListTariffs(context.Background(), "yalidine", 31)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "Arzew", rs[0].Commune)
	assert.Equal(t, 31, rs[0].WilayaCode)
	assert.Equal(t, int64(0), rs[0].OfficePrice)
}
