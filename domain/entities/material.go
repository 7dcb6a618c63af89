package entities

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaterialAmount is a collected quantity of a raw material
type MaterialAmount struct {
	Name   string
	Amount decimal.Decimal
}

// PriceTable maps material names to unit values in the smallest currency unit
type PriceTable map[string]decimal.Decimal

// NormalizeMaterialName folds case and surrounding or repeated whitespace so
// "  Quantanium " and "quantanium" resolve to the same price
func NormalizeMaterialName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Lookup finds the unit price for a material name
func (p PriceTable) Lookup(name string) (decimal.Decimal, bool) {
	want := NormalizeMaterialName(name)
	for material, price := range p {
		if NormalizeMaterialName(material) == want {
			return price, true
		}
	}
	return decimal.Zero, false
}
