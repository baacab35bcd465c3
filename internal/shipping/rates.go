package shipping

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultFee int64 = 50000

// Rates maps a destination city to its flat shipping fee. Lookups ignore case
// and surrounding spaces; unknown cities pay Default.
type Rates struct {
	Default int64            `yaml:"default"`
	Cities  map[string]int64 `yaml:"cities"`
}

func DefaultRates() Rates {
	return Rates{
		Default: DefaultFee,
		Cities: map[string]int64{
			"Hanoi":       30000,
			"Ho Chi Minh": 30000,
			"Da Nang":     40000,
			"Can Tho":     50000,
			"Hai Phong":   35000,
		},
	}
}

func (r Rates) Fee(city string) int64 {
	key := normalize(city)
	for name, fee := range r.Cities {
		if normalize(name) == key {
			return fee
		}
	}
	if r.Default > 0 {
		return r.Default
	}
	return DefaultFee
}

// LoadRates reads a YAML rate table. Cities listed in the file override the
// built-in table; an omitted default keeps DefaultFee.
func LoadRates(path string) (Rates, error) {
	rates := DefaultRates()
	if path == "" {
		return rates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, fmt.Errorf("failed to read shipping rates file: %w", err)
	}

	var file Rates
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rates{}, fmt.Errorf("invalid shipping rates file: %w", err)
	}

	if file.Default > 0 {
		rates.Default = file.Default
	}
	for city, fee := range file.Cities {
		if fee < 0 {
			return Rates{}, fmt.Errorf("invalid shipping fee %d for %s", fee, city)
		}
		rates.Cities[city] = fee
	}

	return rates, nil
}

func normalize(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
