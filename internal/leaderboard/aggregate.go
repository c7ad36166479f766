package leaderboard

import "github.com/shopspring/decimal"

type AggregateOptions struct {
	Accumulation Accumulation
	Filter       Filter
}

// Stat is the aggregated activity of one subject.
type Stat struct {
	Subject string
	Wager   decimal.Decimal
	Deposit decimal.Decimal
	Entries int
	// first-seen position, used as the tie-break
	order int
}

// Value returns the stat's amount for metric.
func (s Stat) Value(m Metric) decimal.Decimal {
	if m == MetricDeposit {
		return s.Deposit
	}
	return s.Wager
}

// Stats is a subject -> Stat mapping that remembers first-seen order.
type Stats struct {
	index map[string]int
	items []Stat
}

func (s *Stats) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Get returns the stat for subject.
func (s *Stats) Get(subject string) (Stat, bool) {
	if s == nil {
		return Stat{}, false
	}
	i, ok := s.index[subject]
	if !ok {
		return Stat{}, false
	}
	return s.items[i], true
}

// All returns the stats in first-seen order.
func (s *Stats) All() []Stat {
	if s == nil {
		return nil
	}
	return append([]Stat(nil), s.items...)
}

// Totals sums wager and deposit over every subject, not only the ranked ones.
func (s *Stats) Totals() (wager, deposit decimal.Decimal) {
	wager, deposit = decimal.Zero, decimal.Zero
	if s == nil {
		return
	}
	for _, st := range s.items {
		wager = wager.Add(st.Wager)
		deposit = deposit.Add(st.Deposit)
	}
	return
}

// Aggregate groups entries by subject. Entries rejected by the filter are
// dropped entirely and contribute to neither ranking nor totals.
func Aggregate(entries []RawEntry, opt AggregateOptions) *Stats {
	out := &Stats{index: make(map[string]int)}
	for _, e := range entries {
		if !opt.Filter.Include(e) {
			continue
		}
		subject := e.Subject
		if subject == "" {
			subject = UnknownSubject
		}
		i, ok := out.index[subject]
		if !ok {
			out.index[subject] = len(out.items)
			out.items = append(out.items, Stat{
				Subject: subject,
				Wager:   e.Wager,
				Deposit: e.Deposit,
				Entries: 1,
				order:   len(out.items),
			})
			continue
		}
		st := &out.items[i]
		st.Entries++
		if opt.Accumulation == AccumulateLast {
			st.Wager = e.Wager
			st.Deposit = e.Deposit
			continue
		}
		st.Wager = st.Wager.Add(e.Wager)
		st.Deposit = st.Deposit.Add(e.Deposit)
	}
	return out
}

// Include reports whether e passes the filter.
func (f Filter) Include(e RawEntry) bool {
	switch f {
	case FilterPositiveDeposit:
		return e.Deposit.IsPositive()
	case FilterPositiveWager:
		return e.Wager.IsPositive()
	default:
		return true
	}
}
