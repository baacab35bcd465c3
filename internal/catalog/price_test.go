package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestFinalPrice(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		variant Variant
		want    int64
	}{
		{
			name:    "not on sale",
			variant: Variant{Price: 100000},
			want:    100000,
		},
		{
			name:    "percent discount without window",
			variant: Variant{Price: 100000, IsOnSale: true, SalePercent: 20},
			want:    80000,
		},
		{
			name:    "explicit sale price wins",
			variant: Variant{Price: 100000, IsOnSale: true, SalePercent: 20, SalePrice: ptr(int64(75000))},
			want:    75000,
		},
		{
			name:    "explicit sale price without percent",
			variant: Variant{Price: 100000, IsOnSale: true, SalePrice: ptr(int64(90000))},
			want:    90000,
		},
		{
			name:    "flag off ignores discount",
			variant: Variant{Price: 100000, SalePercent: 20},
			want:    100000,
		},
		{
			name:    "flag on without discount",
			variant: Variant{Price: 100000, IsOnSale: true},
			want:    100000,
		},
		{
			name: "before window",
			variant: Variant{Price: 100000, IsOnSale: true, SalePercent: 20,
				SaleStart: ptr(now.Add(time.Hour))},
			want: 100000,
		},
		{
			name: "after window",
			variant: Variant{Price: 100000, IsOnSale: true, SalePercent: 20,
				SaleEnd: ptr(now.Add(-time.Hour))},
			want: 100000,
		},
		{
			name: "inside window",
			variant: Variant{Price: 100000, IsOnSale: true, SalePercent: 20,
				SaleStart: ptr(now.Add(-time.Hour)), SaleEnd: ptr(now.Add(time.Hour))},
			want: 80000,
		},
		{
			name: "window bounds are inclusive",
			variant: Variant{Price: 100000, IsOnSale: true, SalePercent: 20,
				SaleStart: ptr(now), SaleEnd: ptr(now)},
			want: 80000,
		},
		{
			name:    "rounds half up",
			variant: Variant{Price: 12345, IsOnSale: true, SalePercent: 10},
			want:    11111, // 11110.5
		},
		{
			name:    "rounds down below half",
			variant: Variant{Price: 99999, IsOnSale: true, SalePercent: 33},
			want:    66999, // 66999.33
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalPrice(tt.variant, now))
		})
	}
}
