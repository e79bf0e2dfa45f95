package flags

import (
	"testing"

	"flag-scanner/internal/models"
)

func extremaOf(points ...Extremum) []Extremum {
	return points
}

func lo(index int, price float64) Extremum {
	return Extremum{Index: index, Price: price, Kind: Low}
}

func hi(index int, price float64) Extremum {
	return Extremum{Index: index, Price: price, Kind: High}
}

func TestExtractCandidates_Alternating(t *testing.T) {
	extrema := extremaOf(lo(2, 100), hi(5, 120), lo(8, 112), hi(11, 118), lo(14, 110), hi(17, 125), lo(20, 115))

	bullish := ExtractCandidates(extrema, models.Bullish, 2)
	if len(bullish) != 2 {
		t.Fatalf("bullish candidates = %d, want 2", len(bullish))
	}
	if bullish[0].Indices() != [5]int{2, 5, 8, 11, 14} || bullish[1].Indices() != [5]int{8, 11, 14, 17, 20} {
		t.Errorf("unexpected bullish windows %v %v", bullish[0].Indices(), bullish[1].Indices())
	}

	bearish := ExtractCandidates(extrema, models.Bearish, 2)
	if len(bearish) != 1 || bearish[0].Indices() != [5]int{5, 8, 11, 14, 17} {
		t.Errorf("unexpected bearish candidates %+v", bearish)
	}
}

func TestExtractCandidates_SameKindRun(t *testing.T) {
	// Two lows in a row between T1 and T3.
	extrema := extremaOf(lo(2, 100), hi(5, 120), lo(7, 113), lo(9, 112), hi(11, 118), lo(14, 110))

	all := ExtractCandidates(extrema, models.Bullish, 2)
	if len(all) != 2 {
		t.Fatalf("candidates = %d, want 2", len(all))
	}
	if all[0].Indices() != [5]int{2, 5, 7, 11, 14} || all[1].Indices() != [5]int{2, 5, 9, 11, 14} {
		t.Errorf("unexpected combinations %v %v", all[0].Indices(), all[1].Indices())
	}

	capped := ExtractCandidates(extrema, models.Bullish, 1)
	if len(capped) != 1 || capped[0][T2].Price != 112 {
		t.Errorf("capped leg should keep the lowest low, got %+v", capped)
	}
}

func TestExtractCandidates_TooFew(t *testing.T) {
	extrema := extremaOf(lo(2, 100), hi(5, 120), lo(8, 112), hi(11, 118))

	if got := ExtractCandidates(extrema, models.Bullish, 2); len(got) != 0 {
		t.Errorf("got %d candidates from four extrema", len(got))
	}
}

func TestExtractCandidates_RolesAssigned(t *testing.T) {
	extrema := extremaOf(lo(2, 100), hi(5, 120), lo(8, 112), hi(11, 118), lo(14, 110))

	sk := ExtractCandidates(extrema, models.Bullish, 1)[0]
	for i, k := range sk {
		if k.Role != Role(i) {
			t.Errorf("keypoint %d has role %s", i, k.Role)
		}
	}
	if sk[T3].Price != 118 {
		t.Errorf("T3 price = %v, want 118", sk[T3].Price)
	}
}
