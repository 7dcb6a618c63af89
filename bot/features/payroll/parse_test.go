package payroll

import (
	"testing"

	"minebot/bot/common"
	"minebot/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDonorIDs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []int64
		wantErr bool
	}{
		{"empty", "", []int64{}, false},
		{"mentions", "<@1001> <@!1002>", []int64{1001, 1002}, false},
		{"commas and raw ids", "1001,1003, <@1002>", []int64{1001, 1003, 1002}, false},
		{"duplicates collapse", "<@1001> <@!1001>", []int64{1001}, false},
		{"role mention rejected", "<@&5000>", nil, true},
		{"text rejected", "alice", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDonorIDs(tt.raw)
			if tt.wantErr {
				_, userCaused := common.UserMessageFor(err)
				assert.True(t, userCaused)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMaterials(t *testing.T) {
	got, err := parseMaterials("Quantanium=32.5, laranite = 10 ,")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Quantanium", got[0].Name)
	assert.True(t, decimal.RequireFromString("32.5").Equal(got[0].Amount))
	assert.Equal(t, "laranite", got[1].Name)
	assert.True(t, decimal.NewFromInt(10).Equal(got[1].Amount))

	empty, err := parseMaterials("  ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseMaterials_Invalid(t *testing.T) {
	for _, raw := range []string{"quantanium", "=5", "quantanium=lots", "quantanium=-1"} {
		t.Run(raw, func(t *testing.T) {
			_, err := parseMaterials(raw)
			message, userCaused := common.UserMessageFor(err)
			assert.True(t, userCaused)
			assert.NotEmpty(t, message)
		})
	}
}

func TestParsePrices(t *testing.T) {
	prices, err := parsePrices("  Quantanium =88, Bexalite=44.25")
	require.NoError(t, err)

	price, ok := prices.Lookup("quantanium")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(88).Equal(price))
	_, ok = prices["bexalite"]
	assert.True(t, ok)

	none, err := parsePrices("")
	require.NoError(t, err)
	assert.Equal(t, entities.PriceTable(nil), none)
}
