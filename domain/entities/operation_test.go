package entities

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_Lifecycle(t *testing.T) {
	t.Parallel()

	op := &Operation{ID: 7, GuildID: 1, Status: OperationStatusPlanned}
	start := time.Date(2026, 1, 2, 20, 0, 0, 0, time.UTC)

	require.NoError(t, op.Activate(start))
	assert.True(t, op.IsActive())
	assert.Equal(t, start, *op.StartedAt)

	assert.Error(t, op.Activate(start), "active operation cannot be activated again")

	end := start.Add(2 * time.Hour)
	require.NoError(t, op.Close(end))
	assert.True(t, op.IsClosed())
	assert.Equal(t, 2*time.Hour, op.Elapsed(end.Add(time.Hour)))

	err := op.Close(end)
	var notActive *NotActiveError
	require.True(t, errors.As(err, &notActive))
	assert.Equal(t, int64(7), notActive.OperationID)
	assert.Equal(t, OperationStatusClosed, notActive.Status)
}

func TestOperation_RecordPayroll(t *testing.T) {
	t.Parallel()

	op := &Operation{ID: 1, Status: OperationStatusClosed}
	assert.False(t, op.HasPayroll())

	at := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	op.RecordPayroll(700000, 0, at)
	assert.True(t, op.HasPayroll())
	assert.Equal(t, int64(700000), *op.TotalValue)
	assert.Equal(t, int64(0), *op.UnallocatedValue)
}

func TestOperation_DisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Operation #3", (&Operation{ID: 3}).DisplayName())
	assert.Equal(t, "Aaron Halo run", (&Operation{ID: 3, Name: "Aaron Halo run"}).DisplayName())
}

func TestPriceTable_Lookup(t *testing.T) {
	t.Parallel()

	prices := PriceTable{"Quantanium": mustDecimal(t, "88.5")}

	price, ok := prices.Lookup("  quantanium ")
	require.True(t, ok)
	assert.Equal(t, "88.5", price.String())

	_, ok = prices.Lookup("laranite")
	assert.False(t, ok)
}
