package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"flag-scanner/internal/analysis/flags"
)

// FormatPrice formats a price with appropriate decimal places.
func FormatPrice(price float64) string {
	if math.Abs(price) >= 10 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.4f", price)
}

// FormatPercent formats a fraction as a signed percentage (0.05 -> +5.00%).
func FormatPercent(fraction float64) string {
	pct := fraction * 100
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, pct)
}

// FormatQuality formats a quality score in [0, 1].
func FormatQuality(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

// FormatThousands groups the integer digits of n with commas.
func FormatThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

// FormatKeypoint renders a keypoint as index@price.
func FormatKeypoint(k flags.Keypoint) string {
	return fmt.Sprintf("%d@%s", k.Index, FormatPrice(k.Price))
}

// FormatBreakout renders the breakout column of a match.
func FormatBreakout(m flags.PatternMatch) string {
	if !m.BreakoutConfirmed {
		return "-"
	}
	return fmt.Sprintf("%d@%s (+%.2f%%)", m.BreakoutIndex, FormatPrice(m.BreakoutPrice), m.BreakoutStrength)
}

// FormatDateTime formats a timestamp with the configured date and time layouts.
func FormatDateTime(t time.Time, dateLayout, timeLayout string) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(strings.TrimSpace(dateLayout + " " + timeLayout))
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// ShortID returns the first eight characters of a match id.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
