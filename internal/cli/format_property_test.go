package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"flag-scanner/internal/analysis/flags"
)

// For any integer, FormatThousands should:
// 1. Group digits in threes separated by commas
// 2. Preserve the numeric value when the commas are removed
func TestProperty_ThousandsFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	grouping := regexp.MustCompile(`^-?\d{1,3}(,\d{3})*$`)

	// Property: FormatThousands produces valid groups
	properties.Property("FormatThousands groups digits in threes", prop.ForAll(
		func(n int64) bool {
			formatted := FormatThousands(n)
			if !grouping.MatchString(formatted) {
				t.Logf("Invalid grouping for %d: %s", n, formatted)
				return false
			}
			return true
		},
		gen.Int64Range(-1e15, 1e15),
	))

	// Property: FormatThousands preserves value
	properties.Property("FormatThousands preserves value", prop.ForAll(
		func(n int64) bool {
			parsed, err := strconv.ParseInt(strings.ReplaceAll(FormatThousands(n), ",", ""), 10, 64)
			return err == nil && parsed == n
		},
		gen.Int64Range(-1e15, 1e15),
	))

	// Property: FormatPercent is signed and suffixed
	properties.Property("FormatPercent produces correct format", prop.ForAll(
		func(fraction float64) bool {
			formatted := FormatPercent(fraction)
			if !strings.HasSuffix(formatted, "%") {
				t.Logf("Expected %% suffix for %f, got %s", fraction, formatted)
				return false
			}
			if fraction > 0 && !strings.HasPrefix(formatted, "+") {
				t.Logf("Expected + prefix for positive %f, got %s", fraction, formatted)
				return false
			}
			value, err := strconv.ParseFloat(strings.TrimSuffix(formatted, "%"), 64)
			return err == nil && math.Abs(value-fraction*100) <= 0.005+1e-9
		},
		gen.Float64Range(-1, 1),
	))

	// Property: table cells keep their width after coloring
	properties.Property("stripANSI removes color codes", prop.ForAll(
		func(text string) bool {
			o := &Output{colorEnabled: true}
			colored := o.Green(text)
			return stripANSI(colored) == text && displayWidth(colored) == len([]rune(text))
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestFormatThousandsExamples(t *testing.T) {
	testCases := []struct {
		n        int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := FormatThousands(tc.n); got != tc.expected {
				t.Errorf("FormatThousands(%d) = %s, want %s", tc.n, got, tc.expected)
			}
		})
	}
}

func TestFormatPercentExamples(t *testing.T) {
	testCases := []struct {
		value    float64
		expected string
	}{
		{0, "0.00%"},
		{0.015, "+1.50%"},
		{-0.025, "-2.50%"},
		{1, "+100.00%"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := FormatPercent(tc.value); got != tc.expected {
				t.Errorf("FormatPercent(%f) = %s, want %s", tc.value, got, tc.expected)
			}
		})
	}
}

func TestFormatMatchColumns(t *testing.T) {
	m := flags.PatternMatch{BreakoutIndex: -1}
	m.Skeleton[flags.T4] = flags.Keypoint{Role: flags.T4, Index: 14, Price: 110}
	if got := FormatKeypoint(m.End()); got != "14@110.00" {
		t.Errorf("FormatKeypoint = %s", got)
	}
	if got := FormatBreakout(m); got != "-" {
		t.Errorf("unconfirmed breakout = %s", got)
	}

	m.BreakoutConfirmed = true
	m.BreakoutIndex = 16
	m.BreakoutPrice = 121
	m.BreakoutStrength = 3.456
	if got := FormatBreakout(m); got != "16@121.00 (+3.46%)" {
		t.Errorf("FormatBreakout = %s", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatPrice(0.5); got != "0.5000" {
		t.Errorf("FormatPrice small = %s", got)
	}
	if got := ShortID("3f2a9c1e-7b4d-4c1a-9e2f-0a1b2c3d4e5f"); got != "3f2a9c1e" {
		t.Errorf("ShortID = %s", got)
	}
	if got := FormatDateTime(time.Time{}, "02-Jan-2006", "15:04"); got != "-" {
		t.Errorf("zero time = %s", got)
	}
	ts := time.Date(2025, 5, 5, 9, 15, 0, 0, time.UTC)
	if got := FormatDateTime(ts, "02-Jan-2006", "15:04"); got != "05-May-2025 09:15" {
		t.Errorf("FormatDateTime = %s", got)
	}
	if got := FormatDuration(90 * time.Second); got != "1m 30s" {
		t.Errorf("FormatDuration = %s", got)
	}
	if got := TruncateString("RELIANCE-EQ", 8); got != "RELIA..." {
		t.Errorf("TruncateString = %s", got)
	}
}
