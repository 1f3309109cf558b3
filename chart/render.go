package chart

import (
	"math"

	"github.com/mwheeler/chartsync/shared"
)

const (
	// RenderWindowSize is the number of retained candles drawn per chart.
	RenderWindowSize = 15
	// boundsPadding pads the window price range on both sides so extremes
	// do not touch the frame edges.
	boundsPadding = 0.1
	// minBodyHeightPercent is the minimum candle body height. A doji closes
	// at its open and would otherwise render with zero height.
	minBodyHeightPercent = 2.0
	// labelLayout is the format layout for candle time labels.
	labelLayout = "15:04"
)

// RenderedCandle represents the drawable geometry for one candle. All spans
// are vertical percentages, zero at the top of the frame.
type RenderedCandle struct {
	WickTopPercent    float64
	WickBottomPercent float64
	BodyTopPercent    float64
	BodyHeightPercent float64
	Bullish           bool
	// Label is the candle time label, set only for the first and last
	// candle of the window.
	Label string
}

// Frame represents the renderable geometry for one chart window.
type Frame struct {
	// NoData marks a frame rendered from an empty candle window.
	NoData    bool
	ScaledMin float64
	ScaledMax float64
	Candles   []RenderedCandle
}

// RenderWindow transforms the most recent window candles of the provided
// sequence into drawable geometry. An empty input produces an explicit
// no-data frame rather than degenerate geometry.
func RenderWindow(candles []shared.Candlestick, window int) Frame {
	if window > 0 && len(candles) > window {
		candles = candles[len(candles)-window:]
	}

	if len(candles) == 0 {
		return Frame{NoData: true}
	}

	minLow := candles[0].Low
	maxHigh := candles[0].High
	for idx := range candles {
		minLow = math.Min(minLow, candles[idx].Low)
		maxHigh = math.Max(maxHigh, candles[idx].High)
	}

	padding := (maxHigh - minLow) * boundsPadding
	scaledMin := minLow - padding
	scaledMax := maxHigh + padding
	span := scaledMax - scaledMin

	// Maps a price to its vertical percentage within the padded bounds.
	percent := func(price float64) float64 {
		if span == 0 {
			// Every candle in the window traded at a single price.
			return 50
		}
		return (scaledMax - price) / span * 100
	}

	frame := Frame{
		ScaledMin: scaledMin,
		ScaledMax: scaledMax,
		Candles:   make([]RenderedCandle, len(candles)),
	}

	for idx := range candles {
		candle := &candles[idx]

		bodyTop := percent(math.Max(candle.Open, candle.Close))
		bodyBottom := percent(math.Min(candle.Open, candle.Close))
		bodyHeight := math.Max(bodyBottom-bodyTop, minBodyHeightPercent)

		rendered := RenderedCandle{
			WickTopPercent:    percent(candle.High),
			WickBottomPercent: percent(candle.Low),
			BodyTopPercent:    bodyTop,
			BodyHeightPercent: bodyHeight,
			Bullish:           candle.IsBullish(),
		}

		if idx == 0 || idx == len(candles)-1 {
			rendered.Label = candle.Time().Format(labelLayout)
		}

		frame.Candles[idx] = rendered
	}

	return frame
}
