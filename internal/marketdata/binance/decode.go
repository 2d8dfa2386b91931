package binance

import (
	"bytes"
	"encoding/json"
	"fmt"

	"kline-service/internal/model"

	"github.com/shopspring/decimal"
)

// minFields is openTime, open, high, low, close, volume.
const minFields = 6

// decodeKlines validates an untrusted klines payload. Numeric fields may be
// JSON strings or JSON numbers.
func decodeKlines(body []byte, res model.Resolution) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := decodeRow(row, res)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func decodeRow(row []json.RawMessage, res model.Resolution) (model.Candle, error) {
	if len(row) < minFields {
		return model.Candle{}, fmt.Errorf("expected at least %d fields, got %d", minFields, len(row))
	}

	var vals [minFields]decimal.Decimal
	for j := 0; j < minFields; j++ {
		d, err := parseNumber(row[j])
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", j, err)
		}
		vals[j] = d
	}

	if !vals[0].IsInteger() {
		return model.Candle{}, fmt.Errorf("open time %s is not an integer", vals[0])
	}
	if !vals[0].BigInt().IsInt64() {
		return model.Candle{}, fmt.Errorf("open time %s out of range", vals[0])
	}

	c := model.Candle{
		Resolution: res,
		Timestamp:  vals[0].IntPart(),
		Open:       vals[1].InexactFloat64(),
		High:       vals[2].InexactFloat64(),
		Low:        vals[3].InexactFloat64(),
		Close:      vals[4].InexactFloat64(),
		Volume:     vals[5].InexactFloat64(),
	}
	if err := c.Validate(); err != nil {
		return model.Candle{}, err
	}
	return c, nil
}

// parseNumber accepts "123.45" or 123.45.
func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Decimal{}, fmt.Errorf("missing value")
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return decimal.Decimal{}, fmt.Errorf("not a number: %s", raw)
		}
		s = n.String()
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}
