// Package indicator provides pure, deterministic computations over trailing
// price windows: moving averages, RSI, Bollinger bands, ATR, MACD, and
// momentum scores. Every function returns errs.ErrInsufficientData when the
// window is shorter than the required period instead of producing partial
// values. All arithmetic is decimal; nothing here mutates its inputs.
package indicator

import (
	"github.com/shopspring/decimal"

	"kairos/internal/errs"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// SMA returns the simple moving average of the last period values.
func SMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 || len(values) < period {
		return decimal.Zero, errs.ErrInsufficientData
	}
	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// EMA returns the exponential moving average of the last values, seeded with
// the SMA of the first period values and smoothed with multiplier 2/(period+1).
func EMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 || len(values) < period {
		return decimal.Zero, errs.ErrInsufficientData
	}
	seed, err := SMA(values[:period], period)
	if err != nil {
		return decimal.Zero, err
	}
	mult := two.Div(decimal.NewFromInt(int64(period) + 1))
	ema := seed
	for _, v := range values[period:] {
		ema = v.Sub(ema).Mul(mult).Add(ema)
	}
	return ema, nil
}

// RSI returns the relative strength index over the last period price changes
// using Wilder smoothing. It needs period+1 closes.
func RSI(closes []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 || len(closes) < period+1 {
		return decimal.Zero, errs.ErrInsufficientData
	}

	p := decimal.NewFromInt(int64(period))
	avgGain, avgLoss := decimal.Zero, decimal.Zero
	for i := 1; i <= period; i++ {
		change := closes[i].Sub(closes[i-1])
		if change.IsPositive() {
			avgGain = avgGain.Add(change)
		} else {
			avgLoss = avgLoss.Add(change.Neg())
		}
	}
	avgGain = avgGain.Div(p)
	avgLoss = avgLoss.Div(p)

	pm1 := p.Sub(one)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i].Sub(closes[i-1])
		gain, loss := decimal.Zero, decimal.Zero
		if change.IsPositive() {
			gain = change
		} else {
			loss = change.Neg()
		}
		avgGain = avgGain.Mul(pm1).Add(gain).Div(p)
		avgLoss = avgLoss.Mul(pm1).Add(loss).Div(p)
	}

	if avgLoss.IsZero() {
		return hundred, nil
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(one.Add(rs))), nil
}

// StdDev returns the population standard deviation of the last period values.
func StdDev(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	mean, err := SMA(values, period)
	if err != nil {
		return decimal.Zero, err
	}
	sumSq := decimal.Zero
	for _, v := range values[len(values)-period:] {
		d := v.Sub(mean)
		sumSq = sumSq.Add(d.Mul(d))
	}
	variance := sumSq.Div(decimal.NewFromInt(int64(period)))
	return sqrt(variance), nil
}

// Bands holds one Bollinger band computation. Bandwidth is
// (upper-lower)/middle expressed as a fraction.
type Bands struct {
	Upper     decimal.Decimal
	Middle    decimal.Decimal
	Lower     decimal.Decimal
	Bandwidth decimal.Decimal
}

// Bollinger returns the bands middle ± stdMultiplier·stddev over the last
// period closes.
func Bollinger(closes []decimal.Decimal, period int, stdMultiplier decimal.Decimal) (Bands, error) {
	mid, err := SMA(closes, period)
	if err != nil {
		return Bands{}, err
	}
	sd, err := StdDev(closes, period)
	if err != nil {
		return Bands{}, err
	}
	offset := sd.Mul(stdMultiplier)
	b := Bands{
		Upper:  mid.Add(offset),
		Middle: mid,
		Lower:  mid.Sub(offset),
	}
	if !mid.IsZero() {
		b.Bandwidth = b.Upper.Sub(b.Lower).Div(mid)
	}
	return b, nil
}

// ATR returns the average true range over the last period bars using Wilder
// smoothing. It needs period+1 bars of highs, lows, and closes.
func ATR(highs, lows, closes []decimal.Decimal, period int) (decimal.Decimal, error) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return decimal.Zero, errs.ErrInsufficientData
	}

	trs := make([]decimal.Decimal, 0, n-1)
	for i := 1; i < n; i++ {
		trs = append(trs, TrueRange(highs[i], lows[i], closes[i-1]))
	}

	atr, err := SMA(trs[:period], period)
	if err != nil {
		return decimal.Zero, err
	}
	p := decimal.NewFromInt(int64(period))
	pm1 := p.Sub(one)
	for _, tr := range trs[period:] {
		atr = atr.Mul(pm1).Add(tr).Div(p)
	}
	return atr, nil
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose decimal.Decimal) decimal.Decimal {
	tr := high.Sub(low)
	if d := high.Sub(prevClose).Abs(); d.GreaterThan(tr) {
		tr = d
	}
	if d := low.Sub(prevClose).Abs(); d.GreaterThan(tr) {
		tr = d
	}
	return tr
}

// MACDResult holds the MACD line, its signal line, and the histogram.
type MACDResult struct {
	MACD      decimal.Decimal
	Signal    decimal.Decimal
	Histogram decimal.Decimal
}

// MACD returns fastEMA-slowEMA with a signal EMA over the MACD series. It
// needs slow+signalPeriod closes.
func MACD(closes []decimal.Decimal, fast, slow, signalPeriod int) (MACDResult, error) {
	if fast <= 0 || slow <= fast || signalPeriod <= 0 || len(closes) < slow+signalPeriod {
		return MACDResult{}, errs.ErrInsufficientData
	}

	// MACD value at each point from index slow-1 onward.
	macdSeries := make([]decimal.Decimal, 0, len(closes)-slow+1)
	for i := slow; i <= len(closes); i++ {
		f, err := EMA(closes[:i], fast)
		if err != nil {
			return MACDResult{}, err
		}
		s, err := EMA(closes[:i], slow)
		if err != nil {
			return MACDResult{}, err
		}
		macdSeries = append(macdSeries, f.Sub(s))
	}

	sig, err := EMA(macdSeries, signalPeriod)
	if err != nil {
		return MACDResult{}, err
	}
	line := macdSeries[len(macdSeries)-1]
	return MACDResult{MACD: line, Signal: sig, Histogram: line.Sub(sig)}, nil
}

// sqrt computes a decimal square root by Newton iteration. Ten iterations are
// plenty for price-scale magnitudes.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if d.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	guess := d.Div(two)
	if guess.IsZero() {
		guess = d
	}
	for i := 0; i < 10; i++ {
		next := guess.Add(d.Div(guess)).Div(two)
		if next.Sub(guess).Abs().LessThan(decimal.New(1, -7)) {
			return next
		}
		guess = next
	}
	return guess
}
