// Package remote serves tariffs from a carrier pricing API over HTTP.
//
// The API answers
//
//	GET {base}/tariffs/{service}/{wilaya}/{commune}
//	GET {base}/tariffs/{service}/{wilaya}
//
// with a JSON tariff object or array. 404 means no tariff; any other
// non-2xx status is a failure.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deliverycost/internal/tariff"
)

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

type tariffDTO struct {
	Service     string             `json:"service"`
	WilayaCode  int                `json:"wilaya_code"`
	WilayaName  string             `json:"wilaya_name"`
	Commune     string             `json:"commune"`
	HomePrice   int64              `json:"home_price"`
	OfficePrice int64              `json:"office_price"`
	Supplements tariff.Supplements `json:"supplements"`
}

func (d tariffDTO) record(service string, wilayaCode int) tariff.Record {
	if d.Service == "" {
		d.Service = service
	}
	if d.WilayaCode == 0 {
		d.WilayaCode = wilayaCode
	}
	return tariff.Record{
		Service:     strings.ToLower(d.Service),
		WilayaCode:  d.WilayaCode,
		WilayaName:  d.WilayaName,
		Commune:     d.Commune,
		HomePrice:   max(d.HomePrice, 0),
		OfficePrice: max(d.OfficePrice, 0),
		Supplements: d.Supplements,
		Source:      "remote",
	}
}

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tariff api returned status %d", e.StatusCode)
}

// Source is a tariff API client.
type Source struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Source)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.httpClient = c }
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(s *Source) { s.token = token }
}

func New(baseURL string, opts ...Option) *Source {
	s := &Source{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// newHTTPClient has no overall timeout: the chain bounds each call through
// the request context.
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 2 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   2 * time.Second,
			ResponseHeaderTimeout: 2 * time.Second,
		},
	}
}

func (s *Source) Name() string { return "remote" }

func (s *Source) FetchTariff(ctx context.Context, service string, wilayaCode int, commune string) (*tariff.Record, error) {
	key := tariff.NewKey(service, wilayaCode, commune)
	var dto tariffDTO
	found, err := s.get(ctx, s.endpoint(key.Service, strconv.Itoa(wilayaCode), key.Commune), &dto)
	if err != nil || !found {
		return nil, err
	}
	if dto.Commune == "" {
		dto.Commune = commune
	}
	r := dto.record(key.Service, wilayaCode)
	return &r, nil
}

func (s *Source) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]tariff.Record, error) {
	service = strings.ToLower(strings.TrimSpace(service))
	var dtos []tariffDTO
	found, err := s.get(ctx, s.endpoint(service, strconv.Itoa(wilayaCode)), &dtos)
	if err != nil || !found {
		return nil, err
	}
	out := make([]tariff.Record, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.record(service, wilayaCode))
	}
	return out, nil
}

func (s *Source) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/tariffs/" + strings.Join(escaped, "/")
}

// get decodes a JSON body into out. It reports false without error on 404.
func (s *Source) get(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, &StatusError{StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return false, fmt.Errorf("decode tariff response: %w", err)
	}
	return true, nil
}
