package leaderboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// ErrDataShape marks a record that is not an object. Such records are skipped.
var ErrDataShape = errors.New("leaderboard: record is not an object")

// RawEntry is one fetched activity record.
type RawEntry struct {
	Subject string
	Wager   decimal.Decimal
	Deposit decimal.Decimal
}

// ParseRecord maps a decoded JSON value onto a RawEntry using fields.
// Missing or non-numeric amounts become zero; numeric strings are accepted.
func ParseRecord(v any, fields FieldMap) (RawEntry, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return RawEntry{}, fmt.Errorf("%w (got %T)", ErrDataShape, v)
	}
	e := RawEntry{
		Subject: subjectOf(obj[fields.Subject]),
		Wager:   amountOf(obj[fields.Wager]),
		Deposit: amountOf(obj[fields.Deposit]),
	}
	return e, nil
}

// ParseRecords parses every record, skipping the malformed ones. It returns the
// entries and the number of records skipped.
func ParseRecords(vs []any, fields FieldMap) ([]RawEntry, int) {
	out := make([]RawEntry, 0, len(vs))
	skipped := 0
	for _, v := range vs {
		e, err := ParseRecord(v, fields)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped
}

func subjectOf(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

func amountOf(v any) decimal.Decimal {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
