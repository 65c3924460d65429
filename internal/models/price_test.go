package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricePointJSON(t *testing.T) {
	point := PricePoint{
		Time:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Price: decimal.RequireFromString("42000.125"),
	}

	raw, err := json.Marshal(point)
	require.NoError(t, err)
	assert.Equal(t, `[1704067200000,42000.125]`, string(raw))

	var decoded PricePoint
	require.NoError(t, json.Unmarshal([]byte(`[1704067200000, 42000.125]`), &decoded))
	assert.Equal(t, point.Time, decoded.Time)
	assert.True(t, point.Price.Equal(decoded.Price))

	assert.Error(t, json.Unmarshal([]byte(`{"time":1}`), &decoded))
}
