package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"deliverycost/internal/engine"
	"deliverycost/internal/rate"
)

// Normalizer maps storefront checkout payloads into an engine.Quote.
type Normalizer interface {
	Normalize(body []byte) (engine.Quote, error)
}

// ErrMissingDestination is returned when a payload carries no usable
// address.
var ErrMissingDestination = errors.New("missing destination")

// NewNormalizer returns the normalizer used for POST /quote.
func NewNormalizer() Normalizer { return &DefaultNormalizer{} }

// DefaultNormalizer accepts our own Quote shape as well as the nested
// shipping address layouts sent by common storefronts.
type DefaultNormalizer struct{}

func (n *DefaultNormalizer) Normalize(body []byte) (engine.Quote, error) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return engine.Quote{}, err
	}

	dest := getString(payload, []string{"destination", "address", "shipping.destination", "shipping_address.address1"})
	if dest == "" {
		locality := getString(payload, []string{"commune", "city", "shipping.commune", "shipping.city", "shipping_address.city", "customer.city"})
		region := getString(payload, []string{"wilaya", "state", "province", "shipping.wilaya", "shipping.state", "shipping_address.province", "customer.wilaya"})
		dest = joinNonEmpty(locality, region)
	}
	if strings.TrimSpace(dest) == "" {
		return engine.Quote{}, ErrMissingDestination
	}

	q := engine.Quote{
		Service:       strings.TrimSpace(getString(payload, []string{"service", "carrier", "carrier_code", "shipping.service", "shipping_method"})),
		Destination:   dest,
		Weight:        getNumber(payload, []string{"weight", "weight_kg", "package.weight", "parcel.weight", "total_weight"}),
		DeclaredValue: getNumber(payload, []string{"declared_value", "cod_amount", "package.declared_value", "order_total", "total_price"}),
		DeliveryType:  getString(payload, []string{"delivery_type", "shipping.delivery_type", "shipping_type"}),
		Dimensions: rate.Dimensions{
			Length: getNumber(payload, []string{"dimensions.length", "package.length", "parcel.length", "length"}),
			Width:  getNumber(payload, []string{"dimensions.width", "package.width", "parcel.width", "width"}),
			Height: getNumber(payload, []string{"dimensions.height", "package.height", "parcel.height", "height"}),
		},
	}
	if q.DeliveryType == "" {
		if stop, ok := getAny(payload, []string{"is_stopdesk", "stop_desk", "shipping.is_stopdesk"}).(bool); ok && stop {
			q.DeliveryType = "office"
		}
	}
	return q, nil
}

// getString returns the first non-empty string from the candidate keys.
// Supports dot-path navigation for nested maps.
func getString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v := getPath(m, k); v != nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// getNumber returns the first candidate that reads as a number. Strings
// such as "1 200,50" are accepted.
func getNumber(m map[string]any, keys []string) float64 {
	for _, k := range keys {
		switch v := getPath(m, k).(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return finite(f)
			}
		case float64:
			return finite(v)
		case string:
			if strings.TrimSpace(v) != "" {
				return toFloat(v)
			}
		}
	}
	return 0
}

// getAny returns the first non-nil value from the candidate keys.
func getAny(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v := getPath(m, k); v != nil {
			return v
		}
	}
	return nil
}

// getPath navigates a dot-separated key into nested maps.
func getPath(m map[string]any, path string) any {
	var cur any = m
	for _, p := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := mm[p]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// toFloat parses a loosely formatted number. Anything unparseable is zero;
// rounding is left to the engine.
func toFloat(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(strings.ToUpper(s), "DA"), "DZD")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
