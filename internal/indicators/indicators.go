// Package indicators computes technical indicators over candle series.
//
// Every function is pure. A series shorter than the requested period yields an
// empty result instead of a partial one.
package indicators

import (
	"math"

	"github.com/STTM-NSU/paper-trader/internal/model"
)

// MidPrices returns (open+close)/2 of every candle.
func MidPrices(candles []model.Candle) []float64 {
	mids := make([]float64, 0, len(candles))
	for _, c := range candles {
		mids = append(mids, (c.Open+c.Close)/2)
	}
	return mids
}

// SMA returns the simple moving average of every full window, oldest first.
func SMA(data []float64, period int) []float64 {
	if period <= 0 || len(data) < period {
		return []float64{}
	}

	sma := make([]float64, 0, len(data)-period+1)
	var sum float64
	for i, v := range data {
		sum += v
		if i >= period {
			sum -= data[i-period]
		}
		if i >= period-1 {
			sma = append(sma, sum/float64(period))
		}
	}
	return sma
}

// EMA is seeded with the SMA of the first period values and then smoothed with
// k = 2/(period+1).
func EMA(data []float64, period int) []float64 {
	if period <= 0 || len(data) < period {
		return []float64{}
	}

	k := 2 / float64(period+1)
	ema := make([]float64, 0, len(data)-period+1)

	var seed float64
	for _, v := range data[:period] {
		seed += v
	}
	ema = append(ema, seed/float64(period))

	for _, v := range data[period:] {
		prev := ema[len(ema)-1]
		ema = append(ema, v*k+prev*(1-k))
	}
	return ema
}

// MACD is EMA(fast) - EMA(slow), aligned on the most recent values.
func MACD(data []float64, fast, slow int) []float64 {
	slowEMA := EMA(data, slow)
	fastEMA := EMA(data, fast)
	if len(slowEMA) == 0 || len(fastEMA) < len(slowEMA) {
		return []float64{}
	}

	fastEMA = fastEMA[len(fastEMA)-len(slowEMA):]
	macd := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	return macd
}

// RSI uses Wilder smoothing. A window without losses reads 100.
func RSI(data []float64, period int) []float64 {
	if period <= 0 || len(data) <= period {
		return []float64{}
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := data[i] - data[i-1]
		if change >= 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	p := float64(period)
	avgGain, avgLoss := gains/p, losses/p

	rsi := make([]float64, 0, len(data)-period)
	rsi = append(rsi, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(data); i++ {
		change := data[i] - data[i-1]
		gain, loss := 0.0, 0.0
		if change >= 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		rsi = append(rsi, rsiValue(avgGain, avgLoss))
	}
	return rsi
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// TrueRange starts at the second candle since it needs the previous close.
func TrueRange(candles []model.Candle) []float64 {
	if len(candles) < 2 {
		return []float64{}
	}

	tr := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high, low, prevClose := candles[i].High, candles[i].Low, candles[i-1].Close
		tr = append(tr, math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose))))
	}
	return tr
}

// ATR is the SMA of the true range.
func ATR(candles []model.Candle, period int) []float64 {
	return SMA(TrueRange(candles), period)
}

type VolumeStats struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
}

func Volume(candles []model.Candle) VolumeStats {
	if len(candles) == 0 {
		return VolumeStats{}
	}

	var sum float64
	for _, c := range candles {
		sum += c.Volume
	}
	return VolumeStats{
		Current: candles[len(candles)-1].Volume,
		Average: sum / float64(len(candles)),
	}
}

// Last returns the most recent value of a series, zero when it is empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
