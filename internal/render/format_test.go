package render

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"leaderbot/internal/leaderboard"
	"leaderbot/internal/transport"
)

func TestMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "0", want: "$0.00"},
		{in: "1234.5", want: "$1,234.50"},
		{in: "1000000", want: "$1,000,000.00"},
		{in: "-12.345", want: "-$12.35"},
	}
	for _, tt := range tests {
		if got := Money(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Fatalf("Money(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := Remaining(now.Add(50*time.Hour+30*time.Minute), now); got != "2d 2h" {
		t.Fatalf("Remaining() = %q, want 2d 2h", got)
	}
	if got := Remaining(now.Add(-time.Hour), now); got != "0d 0h" {
		t.Fatalf("Remaining(past) = %q, want 0d 0h", got)
	}
}

func TestFormatterBoard(t *testing.T) {
	t.Parallel()

	var in []leaderboard.RawEntry
	for i := 0; i < 4; i++ {
		in = append(in, leaderboard.RawEntry{
			Subject: fmt.Sprintf("<user%d>", i),
			Wager:   decimal.NewFromInt(int64(100 - i)),
			Deposit: decimal.NewFromInt(1),
		})
	}
	b := leaderboard.Build(in, leaderboard.DefaultProfile())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFormatter("").Board(b, View{DisplayDays: 7, Trailing: true, ExpiresAt: now.Add(7 * 24 * time.Hour), Now: now})

	for _, want := range []string{
		"<b>Affiliate Leaderboard</b>",
		"Top users - last 7 days",
		"Leaderboard ends in: 7d 0h",
		"Total Wager: $394.00",
		"Total Deposits: $4.00",
		"🥇 <b>#1 &lt;user0&gt;</b>",
		"🥉 <b>#3 &lt;user2&gt;</b>",
		"👑 <b>#4 &lt;user3&gt;</b>",
		"Updated 2024-01-01 12:00 UTC",
	} {
		if !strings.Contains(c.Text, want) {
			t.Fatalf("rendered text missing %q:\n%s", want, c.Text)
		}
	}
}

func TestFormatterEmptyBoard(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := NewFormatter("Weekly").Board(leaderboard.Build(nil, leaderboard.DefaultProfile()), View{DisplayDays: 1, Trailing: true, ExpiresAt: now, Now: now})
	if !strings.Contains(c.Text, "No activity recorded yet.") || !strings.Contains(c.Text, "last 1 day\n") {
		t.Fatalf("unexpected empty rendering:\n%s", c.Text)
	}
}

func TestFormatterHeadingFollowsWindowMode(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		trailing bool
		want     string
		notWant  string
	}{
		{"event", false, "Top users - 7-day event\n", "last 7 days"},
		{"trailing", true, "Top users - last 7 days\n", "event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View{DisplayDays: 7, Trailing: tt.trailing, ExpiresAt: now.Add(time.Hour), Now: now}
			c := NewFormatter("").Board(leaderboard.Build(nil, leaderboard.DefaultProfile()), v)
			if !strings.Contains(c.Text, tt.want) || strings.Contains(c.Text, tt.notWant) {
				t.Fatalf("heading for %s mode wrong:\n%s", tt.name, c.Text)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		want      Outcome
		retryable bool
	}{
		{err: nil, want: OutcomeOK},
		{err: fmt.Errorf("edit: %w", ErrArtifactNotFound), want: OutcomeNotFound},
		{err: ErrForbidden, want: OutcomeForbidden},
		{err: &transport.RateLimitError{RetryAfter: time.Second}, want: OutcomeRateLimited, retryable: true},
		{err: ErrTransient, want: OutcomeTransient, retryable: true},
		{err: errors.New("weird"), want: OutcomeTransient, retryable: true},
		{err: ErrDestinationGone, want: OutcomeGone},
	}
	for _, tt := range tests {
		got := Classify(tt.err)
		if got != tt.want {
			t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
		if got.Retryable() != tt.retryable {
			t.Fatalf("Classify(%v).Retryable() = %v, want %v", tt.err, got.Retryable(), tt.retryable)
		}
	}
}
