package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ranked is one row of a ranking, Position starting at 1.
type Ranked struct {
	Position int
	Stat
}

// Rank orders stats by metric descending and keeps at most limit rows (capped at
// MaxRanked). Equal values keep first-seen order.
func Rank(stats *Stats, metric Metric, limit int) []Ranked {
	if limit <= 0 || limit > MaxRanked {
		limit = MaxRanked
	}
	items := stats.All()
	sort.SliceStable(items, func(i, j int) bool {
		c := items[i].Value(metric).Cmp(items[j].Value(metric))
		if c != 0 {
			return c > 0
		}
		return items[i].order < items[j].order
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]Ranked, len(items))
	for i, st := range items {
		out[i] = Ranked{Position: i + 1, Stat: st}
	}
	return out
}

// Board is the fully computed view of one refresh: ranking plus totals.
type Board struct {
	Rows         []Ranked
	TotalWager   decimal.Decimal
	TotalDeposit decimal.Decimal
	Subjects     int
	Metric       Metric
}

// Build runs aggregation and ranking for a profile.
func Build(entries []RawEntry, p Profile) Board {
	p = p.Normalize()
	stats := Aggregate(entries, p.AggregateOptions())
	w, d := stats.Totals()
	return Board{
		Rows:         Rank(stats, p.Metric, p.TopN),
		TotalWager:   w,
		TotalDeposit: d,
		Subjects:     stats.Len(),
		Metric:       p.Metric,
	}
}
