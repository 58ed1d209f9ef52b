package indicator

import (
	"math"
	"testing"
	"time"

	"marketlens/internal/exchange"
)

func TestNewSeriesSplitsCandles(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := []exchange.Candle{
		{Timestamp: base, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: base.Add(time.Hour), Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 20},
	}

	series := NewSeries(candles)
	if series.Len() != 2 {
		t.Fatalf("Len = %d, want 2", series.Len())
	}
	if series.Close[1] != 2.5 || series.Volume[0] != 10 {
		t.Errorf("序列拆分不符: %+v", series)
	}
	if !series.Timestamps[1].Equal(base.Add(time.Hour)) {
		t.Errorf("时间戳不符: %v", series.Timestamps[1])
	}
}

func TestSeriesHelpers(t *testing.T) {
	values := []float64{1, 2, 3, 4}

	if Last(values) != 4 {
		t.Errorf("Last = %v, want 4", Last(values))
	}
	if Prev(values) != 3 {
		t.Errorf("Prev = %v, want 3", Prev(values))
	}
	if !math.IsNaN(Last(nil)) || !math.IsNaN(Prev([]float64{1})) {
		t.Error("空序列应返回 NaN")
	}

	tail := SliceTail(values, 2)
	if len(tail) != 2 || tail[0] != 3 || tail[1] != 4 {
		t.Errorf("SliceTail = %v, want [3 4]", tail)
	}
	if got := SliceTail(values, 10); len(got) != 4 {
		t.Errorf("超长截取应返回全部: %v", got)
	}

	if SafeDivide(1, 0) != 0 {
		t.Error("除零应返回 0")
	}
	if SafeDivide(4, 2) != 2 {
		t.Error("SafeDivide(4,2) 应为 2")
	}
}
