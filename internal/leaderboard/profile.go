// Package leaderboard holds the pure ranking core: record parsing, per-subject
// aggregation and ranking. Nothing here performs I/O.
package leaderboard

import (
	"fmt"
	"strings"
)

// Metric selects the ranking key.
type Metric string

const (
	MetricWager   Metric = "wager"
	MetricDeposit Metric = "deposit"
)

// Accumulation decides how repeated entries for one subject combine.
type Accumulation string

const (
	// AccumulateSum keeps running totals.
	AccumulateSum Accumulation = "sum"
	// AccumulateLast keeps the values of the later entry in input order.
	AccumulateLast Accumulation = "last"
)

// Filter is the inclusion predicate applied before aggregation.
type Filter string

const (
	FilterNone            Filter = "none"
	FilterPositiveDeposit Filter = "positive_deposit"
	FilterPositiveWager   Filter = "positive_wager"
)

// MaxRanked caps how many subjects a ranking may contain.
const MaxRanked = 10

// UnknownSubject replaces empty subject names.
const UnknownSubject = "Unknown"

// FieldMap names the record fields that carry each value.
type FieldMap struct {
	Subject string `json:"subject" validate:"required"`
	Wager   string `json:"wager" validate:"required"`
	Deposit string `json:"deposit" validate:"required"`
}

func DefaultFieldMap() FieldMap {
	return FieldMap{Subject: "username", Wager: "wager", Deposit: "deposit"}
}

// Profile is the single configuration point for a leaderboard: which fields to read,
// how to accumulate, what to filter and what to rank by.
type Profile struct {
	Fields       FieldMap
	Accumulation Accumulation
	Filter       Filter
	Metric       Metric
	TopN         int
}

func DefaultProfile() Profile {
	return Profile{
		Fields:       DefaultFieldMap(),
		Accumulation: AccumulateSum,
		Filter:       FilterNone,
		Metric:       MetricWager,
		TopN:         MaxRanked,
	}
}

// Normalize fills empty values with defaults and clamps TopN.
func (p Profile) Normalize() Profile {
	def := DefaultProfile()
	if strings.TrimSpace(p.Fields.Subject) == "" {
		p.Fields.Subject = def.Fields.Subject
	}
	if strings.TrimSpace(p.Fields.Wager) == "" {
		p.Fields.Wager = def.Fields.Wager
	}
	if strings.TrimSpace(p.Fields.Deposit) == "" {
		p.Fields.Deposit = def.Fields.Deposit
	}
	if p.Accumulation == "" {
		p.Accumulation = def.Accumulation
	}
	if p.Filter == "" {
		p.Filter = def.Filter
	}
	if p.Metric == "" {
		p.Metric = def.Metric
	}
	if p.TopN <= 0 || p.TopN > MaxRanked {
		p.TopN = MaxRanked
	}
	return p
}

// Validate rejects unknown enum values.
func (p Profile) Validate() error {
	switch p.Accumulation {
	case AccumulateSum, AccumulateLast:
	default:
		return fmt.Errorf("leaderboard: unknown accumulation %q", p.Accumulation)
	}
	switch p.Filter {
	case FilterNone, FilterPositiveDeposit, FilterPositiveWager:
	default:
		return fmt.Errorf("leaderboard: unknown filter %q", p.Filter)
	}
	switch p.Metric {
	case MetricWager, MetricDeposit:
	default:
		return fmt.Errorf("leaderboard: unknown metric %q", p.Metric)
	}
	return nil
}

// AggregateOptions derives the aggregation settings from the profile.
func (p Profile) AggregateOptions() AggregateOptions {
	return AggregateOptions{Accumulation: p.Accumulation, Filter: p.Filter}
}
