package leaderboard

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRankTiesKeepFirstSeenOrder(t *testing.T) {
	t.Parallel()

	stats := Aggregate([]RawEntry{entry("x", 10, 0), entry("y", 10, 0)}, AggregateOptions{})
	got := Rank(stats, MetricWager, 10)
	if len(got) != 2 || got[0].Subject != "x" || got[1].Subject != "y" {
		t.Fatalf("Rank() = %+v, want [x y]", got)
	}
	if got[0].Position != 1 || got[1].Position != 2 {
		t.Fatalf("positions = %d,%d, want 1,2", got[0].Position, got[1].Position)
	}
}

func TestRankCapsAndOrders(t *testing.T) {
	t.Parallel()

	var in []RawEntry
	for i := 0; i < 15; i++ {
		in = append(in, entry(fmt.Sprintf("s%02d", i), int64(i), int64(15-i)))
	}
	stats := Aggregate(in, AggregateOptions{})

	tests := []struct {
		name   string
		metric Metric
		limit  int
		want   int
		first  string
	}{
		{name: "wager default cap", metric: MetricWager, limit: 0, want: 10, first: "s14"},
		{name: "wager over cap", metric: MetricWager, limit: 50, want: 10, first: "s14"},
		{name: "deposit top3", metric: MetricDeposit, limit: 3, want: 3, first: "s00"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Rank(stats, tt.metric, tt.limit)
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if got[0].Subject != tt.first {
				t.Fatalf("first = %s, want %s", got[0].Subject, tt.first)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Value(tt.metric).GreaterThan(got[i-1].Value(tt.metric)) {
					t.Fatalf("row %d (%s) > row %d (%s)", i, got[i].Value(tt.metric), i-1, got[i-1].Value(tt.metric))
				}
			}
		})
	}
}

func TestBuildTotalsIncludeLongTail(t *testing.T) {
	t.Parallel()

	var in []RawEntry
	for i := 0; i < 12; i++ {
		in = append(in, entry(fmt.Sprintf("u%d", i), 1, 2))
	}
	b := Build(in, Profile{TopN: 3})
	if len(b.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(b.Rows))
	}
	if !b.TotalWager.Equal(decimal.NewFromInt(12)) || !b.TotalDeposit.Equal(decimal.NewFromInt(24)) {
		t.Fatalf("totals = %s/%s, want 12/24", b.TotalWager, b.TotalDeposit)
	}
	if b.Subjects != 12 {
		t.Fatalf("subjects = %d, want 12", b.Subjects)
	}
}

func TestProfileValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultProfile().Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
	p := DefaultProfile()
	p.Metric = "likes"
	if err := p.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for unknown metric")
	}
}
