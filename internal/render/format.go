package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"leaderbot/internal/leaderboard"
)

const (
	DefaultTitle = "Affiliate Leaderboard"
	EndedNotice  = "🏁 Leaderboard event has ended! 🏁"
)

var medals = [...]string{"🥇", "🥈", "🥉"}

const crown = "👑"

// View carries the per-session values the formatter needs.
type View struct {
	DisplayDays int
	// Trailing selects the "last N days" heading; otherwise the board
	// covers an event that started with the session.
	Trailing    bool
	ExpiresAt   time.Time
	Now         time.Time
}

// Formatter renders boards as Telegram HTML.
type Formatter struct {
	Title string
}

func NewFormatter(title string) Formatter {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	return Formatter{Title: title}
}

func (f Formatter) Board(b leaderboard.Board, v View) Content {
	var sb strings.Builder

	title := f.Title
	if title == "" {
		title = DefaultTitle
	}
	fmt.Fprintf(&sb, "🏆 <b>%s</b> 🏆\n", esc(title))
	sb.WriteString(heading(v))
	fmt.Fprintf(&sb, "Leaderboard ends in: %s\n\n", Remaining(v.ExpiresAt, v.Now))

	sb.WriteString("📊 <b>Total Stats</b>\n")
	fmt.Fprintf(&sb, "Total Wager: %s\n", Money(b.TotalWager))
	fmt.Fprintf(&sb, "Total Deposits: %s\n", Money(b.TotalDeposit))

	if len(b.Rows) == 0 {
		sb.WriteString("\n<i>No activity recorded yet.</i>\n")
	}
	for _, r := range b.Rows {
		fmt.Fprintf(&sb, "\n%s <b>#%d %s</b>\n", medal(r.Position), r.Position, esc(r.Subject))
		fmt.Fprintf(&sb, "Wager: %s\nDeposits: %s\n", Money(r.Wager), Money(r.Deposit))
	}

	fmt.Fprintf(&sb, "\n<i>Updated %s</i>", v.Now.UTC().Format("2006-01-02 15:04 UTC"))
	return Content{Text: sb.String()}
}

func heading(v View) string {
	if v.Trailing {
		return fmt.Sprintf("Top users - last %d %s\n", v.DisplayDays, plural(v.DisplayDays, "day", "days"))
	}
	return fmt.Sprintf("Top users - %d-day event\n", v.DisplayDays)
}

// Ended is the terminal notice posted when a session expires or is stopped.
func (f Formatter) Ended() Content {
	return Content{Text: "<b>" + esc(EndedNotice) + "</b>"}
}

// Remaining renders the time left as "Xd Yh", never negative.
func Remaining(expires, now time.Time) string {
	d := expires.Sub(now)
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	return fmt.Sprintf("%dd %dh", hours/24, hours%24)
}

// Money renders an amount as "$1,234.50".
func Money(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := humanize.FormatFloat("#,###.##", d.Abs().Round(2).InexactFloat64())
	if neg {
		return "-$" + s
	}
	return "$" + s
}

func medal(pos int) string {
	if pos >= 1 && pos <= len(medals) {
		return medals[pos-1]
	}
	return crown
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func esc(s string) string { return html.EscapeString(s) }
