package flags

import (
	"math"
	"reflect"
	"testing"

	"flag-scanner/internal/errors"
	"flag-scanner/internal/models"
)

func TestScan_BullishFlag(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))
	scanner := mustScanner(t, testConfig())

	matches, err := scanner.Scan(series)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}

	m := matches[0]
	if m.Orientation != models.Bullish {
		t.Errorf("orientation = %s, want BULLISH", m.Orientation)
	}
	if got, want := m.Skeleton.Indices(), [5]int{2, 5, 8, 11, 14}; got != want {
		t.Errorf("indices = %v, want %v", got, want)
	}
	wantPrices := [5]float64{100, 120, 112, 118, 110}
	for i, k := range m.Skeleton {
		if k.Price != wantPrices[i] {
			t.Errorf("%s price = %v, want %v", k.Role, k.Price, wantPrices[i])
		}
	}
	if !m.BreakoutConfirmed || m.BreakoutIndex != 16 {
		t.Errorf("breakout = %v@%d, want confirmed at 16", m.BreakoutConfirmed, m.BreakoutIndex)
	}
	if m.BreakoutPrice != 121 {
		t.Errorf("breakout price = %v, want 121", m.BreakoutPrice)
	}
	if m.PoleHeight != 20 {
		t.Errorf("pole height = %v, want 20", m.PoleHeight)
	}
	if math.Abs(m.QualityScore-0.8) > 1e-9 {
		t.Errorf("quality = %v, want 0.8", m.QualityScore)
	}
	if m.Key() != "BULLISH:2-5-8-11-14" {
		t.Errorf("key = %q", m.Key())
	}
}

func TestScan_BearishMirror(t *testing.T) {
	series := mustSeries(t, buildCandles(mirror(bullishFlagRows(), 220)))
	scanner := mustScanner(t, testConfig())

	matches, err := scanner.Scan(series)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}

	m := matches[0]
	if m.Orientation != models.Bearish {
		t.Errorf("orientation = %s, want BEARISH", m.Orientation)
	}
	if got, want := m.Skeleton.Indices(), [5]int{2, 5, 8, 11, 14}; got != want {
		t.Errorf("indices = %v, want %v", got, want)
	}
	wantPrices := [5]float64{120, 100, 108, 102, 110}
	for i, k := range m.Skeleton {
		if k.Price != wantPrices[i] {
			t.Errorf("%s price = %v, want %v", k.Role, k.Price, wantPrices[i])
		}
	}
	if !m.BreakoutConfirmed || m.BreakoutIndex != 16 {
		t.Errorf("breakout = %v@%d, want confirmed at 16", m.BreakoutConfirmed, m.BreakoutIndex)
	}
	if math.Abs(m.QualityScore-0.8) > 1e-9 {
		t.Errorf("mirrored quality = %v, want 0.8", m.QualityScore)
	}
}

func TestScan_RetracementFloor(t *testing.T) {
	tests := []struct {
		name  string
		t4Low float64
		want  int
	}{
		{"exactly half the pole", 110, 1},
		{"past half the pole", 109.8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := bullishFlagRows()
			rows[14].low = tt.t4Low
			series := mustSeries(t, buildCandles(rows))

			res, err := mustScanner(t, testConfig()).ScanWithStats(series)
			if err != nil {
				t.Fatalf("ScanWithStats: %v", err)
			}
			if len(res.Matches) != tt.want {
				t.Fatalf("got %d matches, want %d", len(res.Matches), tt.want)
			}
			if tt.want == 0 && res.Stats.Rejections[RejectRetracement] != 1 {
				t.Errorf("rejections = %v, want one retracement", res.Stats.Rejections)
			}
		})
	}
}

func TestScan_MonotonicTrendHasNoFlags(t *testing.T) {
	rows := make([]bar, 60)
	for i := range rows {
		base := 100 + float64(i)
		rows[i] = bar{low: base, high: base + 1.5, open: base + 0.2, close: base + 1.2, volume: 1000}
	}
	series := mustSeries(t, buildCandles(rows))

	res, err := mustScanner(t, testConfig()).ScanWithStats(series)
	if err != nil {
		t.Fatalf("ScanWithStats: %v", err)
	}
	if len(res.Matches) != 0 || res.Stats.Extrema != 0 {
		t.Errorf("matches=%d extrema=%d, want none", len(res.Matches), res.Stats.Extrema)
	}
	if res.Stage != StageDone {
		t.Errorf("stage = %s, want DONE", res.Stage)
	}
}

func TestScan_Idempotent(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))
	scanner := mustScanner(t, testConfig())

	first, err := scanner.Scan(series)
	if err != nil {
		t.Fatal(err)
	}
	second, err := scanner.Scan(series)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated scans differ:\n%+v\n%+v", first, second)
	}
}

func TestScan_Stats(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))

	res, err := mustScanner(t, testConfig()).ScanWithStats(series)
	if err != nil {
		t.Fatal(err)
	}
	s := res.Stats
	if s.Candles != 17 || s.Extrema != 5 || s.Candidates != 1 || s.Accepted != 1 || s.Confirmed != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.Filtered != 0 || s.Duplicates != 0 {
		t.Errorf("unexpected drops %+v", s)
	}
}

func TestScan_MaxPatternAge(t *testing.T) {
	// T4 sits at 14 and the last candle at 16.
	series := mustSeries(t, buildCandles(bullishFlagRows()))

	tests := []struct {
		age   int
		want  int
		stale int
	}{
		{0, 1, 0},
		{2, 1, 0},
		{1, 0, 1},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.MaxPatternAge = tt.age
		res, err := mustScanner(t, cfg).ScanWithStats(series)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Matches) != tt.want || res.Stats.Stale != tt.stale {
			t.Errorf("age %d: matches=%d stale=%d, want %d and %d", tt.age, len(res.Matches), res.Stats.Stale, tt.want, tt.stale)
		}
	}
}

func TestScan_EmptyInput(t *testing.T) {
	scanner := mustScanner(t, testConfig())

	if _, err := scanner.Scan(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("nil series err = %v, want ErrInvalidInput", err)
	}
	if _, err := models.NewCandleSeries(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("empty candles err = %v, want ErrInvalidInput", err)
	}
}

func TestScan_MalformedCandles(t *testing.T) {
	candles := buildCandles(bullishFlagRows())
	candles[7].Timestamp = candles[6].Timestamp

	_, err := models.NewCandleSeries(candles)
	var inputErr *errors.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("err = %v, want *InputError", err)
	}
	if inputErr.Index != 7 {
		t.Errorf("index = %d, want 7", inputErr.Index)
	}
}

func TestScan_ShortSeries(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()[:4]))

	matches, err := mustScanner(t, testConfig()).Scan(series)
	if err != nil {
		t.Fatalf("short series must not fail: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0", len(matches))
	}
}

func TestScan_Filters(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))

	t.Run("unconfirmed kept by default", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxBreakoutLookahead = 1
		matches, err := mustScanner(t, cfg).Scan(series)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 1 || matches[0].BreakoutConfirmed || matches[0].BreakoutIndex != -1 {
			t.Errorf("want one unconfirmed match with index -1, got %+v", matches)
		}
	})

	t.Run("require breakout", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxBreakoutLookahead = 1
		cfg.RequireBreakout = true
		res, err := mustScanner(t, cfg).ScanWithStats(series)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Matches) != 0 || res.Stats.Filtered != 1 {
			t.Errorf("matches=%d filtered=%d, want 0 and 1", len(res.Matches), res.Stats.Filtered)
		}
	})

	t.Run("min quality", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinQualityScore = 0.9
		matches, err := mustScanner(t, cfg).Scan(series)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 0 {
			t.Errorf("got %d matches below min quality", len(matches))
		}
	})

	t.Run("supplemental channel rules", func(t *testing.T) {
		cfg := testConfig()
		cfg.RequireConvergingChannel = true
		cfg.RequireCleanChannel = true
		matches, err := mustScanner(t, cfg).Scan(series)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 1 {
			t.Errorf("clean parallel channel should pass, got %d matches", len(matches))
		}
	})
}

func TestNewScanner_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ExtremaWindow = 0

	if _, err := NewScanner(cfg); !errors.Is(err, errors.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}

func matchAt(o models.Orientation, quality float64, idx [5]int) PatternMatch {
	var points [5]Extremum
	for i, at := range idx {
		kind := kindPatterns[o][i]
		points[i] = Extremum{Index: at, Price: float64(100 + at), Kind: kind}
	}
	return PatternMatch{Orientation: o, Skeleton: NewSkeleton(points), QualityScore: quality, BreakoutIndex: -1}
}

func TestDeduplicate(t *testing.T) {
	a := matchAt(models.Bullish, 0.70, [5]int{2, 5, 8, 11, 14})
	b := matchAt(models.Bullish, 0.71, [5]int{2, 5, 8, 11, 17})
	c := matchAt(models.Bullish, 0.50, [5]int{20, 23, 26, 29, 32})

	kept, dropped := Deduplicate([]PatternMatch{a, b, c}, 0.5)
	if dropped != 1 || len(kept) != 2 {
		t.Fatalf("kept=%d dropped=%d, want 2 and 1", len(kept), dropped)
	}
	if kept[0].Key() != b.Key() {
		t.Errorf("higher quality should survive, kept %s", kept[0].Key())
	}
}

func TestDeduplicate_TieKeepsLaterT4(t *testing.T) {
	a := matchAt(models.Bullish, 0.6, [5]int{2, 5, 8, 11, 14})
	b := matchAt(models.Bullish, 0.6, [5]int{2, 5, 8, 11, 17})

	kept, _ := Deduplicate([]PatternMatch{a, b}, 0.5)
	if len(kept) != 1 || kept[0].End().Index != 17 {
		t.Errorf("want the later T4 to survive, got %+v", kept)
	}
}

func TestDeduplicate_ThresholdIsExclusive(t *testing.T) {
	// 2 of 5 shared keypoints is 0.4, which does not exceed 0.4.
	a := matchAt(models.Bullish, 0.6, [5]int{2, 5, 8, 11, 14})
	b := matchAt(models.Bullish, 0.5, [5]int{8, 11, 20, 23, 26})

	kept, dropped := Deduplicate([]PatternMatch{a, b}, 0.4)
	if len(kept) != 2 || dropped != 0 {
		t.Errorf("kept=%d dropped=%d, want both kept", len(kept), dropped)
	}
}

func TestOverlapFraction(t *testing.T) {
	a := matchAt(models.Bullish, 0, [5]int{2, 5, 8, 11, 14}).Skeleton
	tests := []struct {
		idx  [5]int
		want float64
	}{
		{[5]int{2, 5, 8, 11, 14}, 1},
		{[5]int{2, 5, 8, 11, 17}, 0.8},
		{[5]int{8, 11, 14, 17, 20}, 0.6},
		{[5]int{20, 23, 26, 29, 32}, 0},
	}
	for _, tt := range tests {
		b := matchAt(models.Bullish, 0, tt.idx).Skeleton
		if got := OverlapFraction(a, b); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("overlap with %v = %v, want %v", tt.idx, got, tt.want)
		}
	}
}

func TestSortMatches(t *testing.T) {
	old := matchAt(models.Bullish, 0.9, [5]int{2, 5, 8, 11, 14})
	recentLow := matchAt(models.Bearish, 0.4, [5]int{20, 23, 26, 29, 32})
	recentHigh := matchAt(models.Bullish, 0.6, [5]int{21, 24, 27, 30, 32})

	matches := []PatternMatch{old, recentLow, recentHigh}
	SortMatches(matches)

	got := []string{matches[0].Key(), matches[1].Key(), matches[2].Key()}
	want := []string{recentHigh.Key(), recentLow.Key(), old.Key()}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
