package flags

import (
	"reflect"
	"testing"
)

func highsSeries(t *testing.T, highs []float64) []bar {
	t.Helper()
	rows := make([]bar, len(highs))
	for i, h := range highs {
		rows[i] = bar{low: h - 1, high: h, open: h - 0.5, close: h - 0.5}
	}
	return rows
}

func TestFindExtrema_BullishFixture(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))

	got := CollectExtrema(FindExtrema(series, 2))

	want := []struct {
		index int
		kind  ExtremumKind
		price float64
	}{
		{2, Low, 100},
		{5, High, 120},
		{8, Low, 112},
		{11, High, 118},
		{14, Low, 110},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d extrema, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Index != w.index || got[i].Kind != w.kind || got[i].Price != w.price {
			t.Errorf("extremum %d = %+v, want %+v", i, got[i], w)
		}
		if !got[i].Time.Equal(series.At(w.index).Timestamp) {
			t.Errorf("extremum %d time = %v, want candle time", i, got[i].Time)
		}
	}
}

func TestFindExtrema_TieGoesToEarliestIndex(t *testing.T) {
	series := mustSeries(t, buildCandles(highsSeries(t, []float64{1, 2, 5, 5, 2, 1, 0.5})))

	var highs []int
	for e := range FindExtrema(series, 2) {
		if e.Kind == High {
			highs = append(highs, e.Index)
		}
	}
	if !reflect.DeepEqual(highs, []int{2}) {
		t.Errorf("swing highs = %v, want [2]", highs)
	}
}

func TestFindExtrema_BoundariesOmitted(t *testing.T) {
	// The global high sits on the last bar and the global low on the first.
	series := mustSeries(t, buildCandles(highsSeries(t, []float64{3, 4, 5, 6, 7, 8, 9})))

	got := CollectExtrema(FindExtrema(series, 2))
	if len(got) != 0 {
		t.Errorf("expected no extrema on a monotonic series, got %+v", got)
	}
}

func TestFindExtrema_ShortSeries(t *testing.T) {
	series := mustSeries(t, buildCandles(highsSeries(t, []float64{1, 5, 1, 2})))

	if got := CollectExtrema(FindExtrema(series, 2)); len(got) != 0 {
		t.Errorf("series shorter than 2*window+1 must yield nothing, got %+v", got)
	}
}

func TestFindExtrema_Restartable(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))
	seq := FindExtrema(series, 2)

	first := CollectExtrema(seq)
	second := CollectExtrema(seq)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("sequence is not restartable:\n%+v\n%+v", first, second)
	}
}

func TestFindExtrema_EarlyStop(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))

	count := 0
	for range FindExtrema(series, 2) {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestFindExtrema_OutsideBarYieldsHighFirst(t *testing.T) {
	rows := []bar{
		{10, 12, 11, 11, 0},
		{10.5, 12.5, 11, 11, 0},
		{5, 20, 10, 10, 0}, // engulfs both neighbours on each side
		{10.5, 12.5, 11, 11, 0},
		{10, 12, 11, 11, 0},
	}
	series := mustSeries(t, buildCandles(rows))

	got := CollectExtrema(FindExtrema(series, 2))
	if len(got) != 2 || got[0].Kind != High || got[1].Kind != Low || got[0].Index != 2 || got[1].Index != 2 {
		t.Errorf("unexpected extrema %+v", got)
	}
}
