package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MarshalJSON encodes a point the way CoinGecko does: [unix millis, price].
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Time.UnixMilli(), json.Number(p.Price.String())})
}

func (p *PricePoint) UnmarshalJSON(data []byte) error {
	var raw [2]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ms, err := raw[0].Float64()
	if err != nil {
		return err
	}
	price, err := decimal.NewFromString(raw[1].String())
	if err != nil {
		return err
	}
	p.Time = time.UnixMilli(int64(ms)).UTC()
	p.Price = price
	return nil
}
