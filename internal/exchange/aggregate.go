package exchange

// Aggregate 将细粒度K线按 factor 合并为粗粒度K线。
// factor ≤ 1 时原样返回；每 factor 根合并为一根，末尾不足 factor 根的桶
// 同样产出一根，结果长度为 ceil(len/factor)。
// 合并规则：开=桶内首根开盘价，收=末根收盘价，高/低取极值，
// 成交量累加（负值视为 0），时间戳取桶内首根。
func Aggregate(candles []Candle, factor int) []Candle {
	if factor <= 1 || len(candles) == 0 {
		return candles
	}

	out := make([]Candle, 0, (len(candles)+factor-1)/factor)
	for start := 0; start < len(candles); start += factor {
		end := start + factor
		if end > len(candles) {
			end = len(candles)
		}
		out = append(out, mergeBucket(candles[start:end]))
	}
	return out
}

func mergeBucket(bucket []Candle) Candle {
	merged := Candle{
		Timestamp: bucket[0].Timestamp,
		Open:      bucket[0].Open,
		High:      bucket[0].High,
		Low:       bucket[0].Low,
		Close:     bucket[len(bucket)-1].Close,
	}

	for _, c := range bucket {
		if c.High > merged.High {
			merged.High = c.High
		}
		if c.Low < merged.Low {
			merged.Low = c.Low
		}
		if c.Volume > 0 {
			merged.Volume += c.Volume
		}
	}
	return merged
}
