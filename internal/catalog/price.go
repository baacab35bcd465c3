package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// OnSale reports whether the variant's sale applies at now. The window bounds
// are inclusive and either may be absent.
func OnSale(v Variant, now time.Time) bool {
	if !v.IsOnSale {
		return false
	}
	if v.SalePrice == nil && v.SalePercent <= 0 {
		return false
	}
	if v.SaleStart != nil && now.Before(*v.SaleStart) {
		return false
	}
	if v.SaleEnd != nil && now.After(*v.SaleEnd) {
		return false
	}
	return true
}

// FinalPrice is the unit price a customer pays for v at now. An explicit sale
// price wins over the percentage discount; the discounted amount is rounded
// half-up to a whole currency unit.
func FinalPrice(v Variant, now time.Time) int64 {
	if !OnSale(v, now) {
		return v.Price
	}
	if v.SalePrice != nil {
		return *v.SalePrice
	}

	pct := v.SalePercent
	if pct > 100 {
		pct = 100
	}

	return decimal.NewFromInt(v.Price).
		Mul(decimal.NewFromInt(int64(100 - pct))).
		Div(hundred).
		Round(0).
		IntPart()
}
