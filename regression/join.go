package regression

import (
	"time"

	"pair-regress-go/internal/store"
)

// Sample 是回归使用的一个价格点。
type Sample struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// JoinedPoint 同一（取整后）时刻两个交易对的价格。
type JoinedPoint struct {
	Timestamp   time.Time
	Dependent   float64
	Independent float64
}

// JoinStats 记录对齐覆盖率；inner join 会静默丢弃对不上的行，这里把丢弃量暴露出来。
type JoinStats struct {
	Dependent          int
	Independent        int
	Joined             int
	DroppedDependent   int
	DroppedIndependent int
}

// SamplesFrom 把存储记录转成浮点样本。
func SamplesFrom(records []store.TradeRecord) []Sample {
	out := make([]Sample, 0, len(records))
	for _, r := range records {
		p, _ := r.Price.Float64()
		out = append(out, Sample{Symbol: r.Symbol, Price: p, Timestamp: r.Timestamp})
	}
	return out
}

// RoundTimestamp 把时间取整到最近的 d（恰好一半时向上）。
func RoundTimestamp(ts time.Time, d time.Duration) time.Time {
	if d <= 0 {
		d = time.Second
	}
	return ts.Round(d)
}

// Join 按取整后的时间做 inner join。同一时刻多行时做笛卡尔积，
// 输出顺序跟随 dependent 的顺序。
func Join(dependent, independent []Sample, roundTo time.Duration) ([]JoinedPoint, JoinStats) {
	stats := JoinStats{Dependent: len(dependent), Independent: len(independent)}

	byKey := make(map[int64][]int, len(independent))
	for i, s := range independent {
		k := RoundTimestamp(s.Timestamp, roundTo).UnixNano()
		byKey[k] = append(byKey[k], i)
	}

	matched := make([]bool, len(independent))
	var out []JoinedPoint
	for _, d := range dependent {
		rounded := RoundTimestamp(d.Timestamp, roundTo)
		idx, ok := byKey[rounded.UnixNano()]
		if !ok {
			stats.DroppedDependent++
			continue
		}
		for _, i := range idx {
			matched[i] = true
			out = append(out, JoinedPoint{
				Timestamp:   rounded,
				Dependent:   d.Price,
				Independent: independent[i].Price,
			})
		}
	}
	for _, m := range matched {
		if !m {
			stats.DroppedIndependent++
		}
	}
	stats.Joined = len(out)
	return out, stats
}
