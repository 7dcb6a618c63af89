package payroll

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"minebot/bot/common"
	"minebot/domain/entities"

	"github.com/shopspring/decimal"
)

// Matches <@123>, <@!123> and bare ids
var donorPattern = regexp.MustCompile(`^(?:<@!?(\d+)>|(\d+))$`)

// parseDonorIDs reads user mentions or raw ids separated by spaces or commas
func parseDonorIDs(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})

	seen := make(map[int64]bool, len(fields))
	ids := make([]int64, 0, len(fields))
	for _, field := range fields {
		m := donorPattern.FindStringSubmatch(field)
		if m == nil {
			return nil, common.NewUserError(
				fmt.Sprintf("%q is not a user mention.", field),
				"invalid donor option",
			)
		}
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		id, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return nil, common.NewUserError(fmt.Sprintf("%q is not a valid user id.", field), "donor id out of range")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// parseMaterials reads "name=amount" pairs separated by commas
func parseMaterials(raw string) ([]entities.MaterialAmount, error) {
	pairs, err := parsePairs(raw, "materials")
	if err != nil {
		return nil, err
	}
	materials := make([]entities.MaterialAmount, 0, len(pairs))
	for _, p := range pairs {
		materials = append(materials, entities.MaterialAmount{Name: p.name, Amount: p.value})
	}
	return materials, nil
}

// parsePrices reads "name=unit price" pairs separated by commas
func parsePrices(raw string) (entities.PriceTable, error) {
	pairs, err := parsePairs(raw, "prices")
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	prices := make(entities.PriceTable, len(pairs))
	for _, p := range pairs {
		prices[entities.NormalizeMaterialName(p.name)] = p.value
	}
	return prices, nil
}

type pair struct {
	name  string
	value decimal.Decimal
}

func parsePairs(raw, option string) ([]pair, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var pairs []pair
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, common.NewUserError(
				fmt.Sprintf("Could not read %q in %s. Use name=amount, separated by commas.", entry, option),
				"malformed "+option+" option",
			)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || d.IsNegative() {
			return nil, common.NewUserError(
				fmt.Sprintf("%q is not a valid amount for %s.", strings.TrimSpace(value), name),
				"invalid "+option+" amount",
			)
		}
		pairs = append(pairs, pair{name: name, value: d})
	}
	return pairs, nil
}
