package marketdata

import (
	"fmt"
	"strconv"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/bytedance/sonic"
)

// kline decodes the array form
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
type kline struct {
	model.Candle
}

func (k *kline) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: can't decode kline", err)
	}
	if len(raw) < 6 {
		return fmt.Errorf("kline has %d fields, want at least 6", len(raw))
	}

	openTime, ok := raw[0].(float64)
	if !ok {
		return fmt.Errorf("kline open time %v is not a number", raw[0])
	}

	values := make([]float64, 5)
	for i := range values {
		s, ok := raw[i+1].(string)
		if !ok {
			return fmt.Errorf("kline field %d %v is not a string", i+1, raw[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: can't parse kline field %d", err, i+1)
		}
		values[i] = v
	}

	k.Candle = model.Candle{
		StartTime: time.UnixMilli(int64(openTime)).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}
	return nil
}
