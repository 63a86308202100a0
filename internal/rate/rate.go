// Package rate turns a tariff and a parcel into a billable delivery price.
package rate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"deliverycost/internal/geo"
	"deliverycost/internal/numeric"
	"deliverycost/internal/tariff"
)

// ErrDeliveryTypeUnavailable means the tariff does not offer the delivery
// type the parcel needs.
var ErrDeliveryTypeUnavailable = errors.New("delivery type unavailable")

// DefaultVolumetricDivisor converts cm³ to volumetric kg.
const DefaultVolumetricDivisor = 5000

// Dimensions are in centimetres.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Volume returns L*W*H, or zero unless all three sides are positive.
func (d Dimensions) Volume() float64 {
	if d.Length <= 0 || d.Width <= 0 || d.Height <= 0 {
		return 0
	}
	return d.Length * d.Width * d.Height
}

// Package is the parcel being priced. Weight is in kilograms; DeclaredValue
// in minor currency units and only used for cash on delivery.
type Package struct {
	Weight        float64    `json:"weight"`
	Dimensions    Dimensions `json:"dimensions"`
	DeclaredValue float64    `json:"declared_value"`
}

// Result is the price breakdown. TotalPrice is BasePrice + OverweightFee +
// CODFee.
type Result struct {
	BasePrice        int64               `json:"base_price"`
	VolumetricWeight float64             `json:"volumetric_weight"`
	BillableWeight   float64             `json:"billable_weight"`
	OverweightFee    int64               `json:"overweight_fee"`
	CODFee           int64               `json:"cod_fee"`
	TotalPrice       int64               `json:"total_price"`
	DeliveryType     tariff.DeliveryType `json:"delivery_type"`
}

// Calculator applies the volumetric, overweight and COD rules. The zero
// value is not usable; build one with NewCalculator.
type Calculator struct {
	divisor float64
}

type Option func(*Calculator)

// WithVolumetricDivisor overrides the cm³ per kg divisor.
func WithVolumetricDivisor(d float64) Option {
	return func(c *Calculator) {
		if d > 0 {
			c.divisor = d
		}
	}
}

func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{divisor: DefaultVolumetricDivisor}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compute prices pkg against rec for the requested delivery type in the given
// zone. Parcels over the overweight threshold ship to an office; their base
// price stays the one of the requested type.
func (c *Calculator) Compute(rec tariff.Record, pkg Package, dt tariff.DeliveryType, zone geo.ZoneTier) (Result, error) {
	if dt != tariff.DeliveryOffice {
		dt = tariff.DeliveryHome
	}
	price, ok := rec.Price(dt)
	if !ok && dt == tariff.DeliveryOffice {
		return Result{}, fmt.Errorf("%w: %s has no office price for %s", ErrDeliveryTypeUnavailable, rec.Service, rec.Key())
	}
	supp := rec.Supplements.WithDefaults()

	res := Result{
		BasePrice:    numeric.CleanCost(float64(price)),
		DeliveryType: dt,
	}
	if v := pkg.Dimensions.Volume(); v > 0 {
		res.VolumetricWeight = numeric.CleanWeight(v / c.divisor)
	}
	res.BillableWeight = max(numeric.CleanWeight(pkg.Weight), res.VolumetricWeight)

	if res.BillableWeight > supp.OverweightThresholdKg {
		if _, ok := rec.Price(tariff.DeliveryOffice); !ok {
			return Result{}, fmt.Errorf("%w: %.2f kg needs office delivery, %s offers none for %s",
				ErrDeliveryTypeUnavailable, res.BillableWeight, rec.Service, rec.Key())
		}
		extraKg := decimal.NewFromFloat(res.BillableWeight).
			Sub(decimal.NewFromFloat(supp.OverweightThresholdKg)).
			Ceil()
		fee := extraKg.Mul(decimal.NewFromInt(supp.OverweightRate(zone))).InexactFloat64()
		res.OverweightFee = numeric.SmartRoundCost(numeric.CleanCost(fee))
		res.DeliveryType = tariff.DeliveryOffice
	}

	// Only the product is rounded; the declared value may carry cents.
	if declared := numeric.NonNegative(pkg.DeclaredValue); declared > 0 {
		cod := decimal.NewFromFloat(declared).Mul(decimal.NewFromFloat(supp.CODRate)).InexactFloat64()
		res.CODFee = numeric.CleanCost(cod)
	}

	res.TotalPrice = numeric.SumCosts(res.BasePrice, res.OverweightFee, res.CODFee)
	return res, nil
}
