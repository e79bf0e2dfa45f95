package flags

import (
	"sort"

	"flag-scanner/internal/models"
)

// kindPatterns is the swing-kind sequence T0..T4 for each orientation.
var kindPatterns = map[models.Orientation][5]ExtremumKind{
	models.Bullish: {Low, High, Low, High, Low},
	models.Bearish: {High, Low, High, Low, High},
}

// leg is a run of consecutive extrema of the same kind.
type leg struct {
	kind    ExtremumKind
	members []Extremum
}

// ExtractCandidates proposes unvalidated skeletons for one orientation.
//
// Consecutive extrema of the same kind are grouped into legs, so the legs
// always alternate. Every run of five legs matching the orientation's kind
// pattern yields one skeleton per combination of leg members. Each leg keeps
// at most maxAlternatives members, preferring the most extreme prices. When no
// two neighbouring extrema share a kind this is a plain sliding window of five.
func ExtractCandidates(extrema []Extremum, orientation models.Orientation, maxAlternatives int) []Skeleton {
	pattern, ok := kindPatterns[orientation]
	if !ok || len(extrema) < 5 {
		return nil
	}
	if maxAlternatives < 1 {
		maxAlternatives = 1
	}

	legs := groupLegs(extrema, maxAlternatives)

	var candidates []Skeleton
	for start := 0; start+5 <= len(legs); start++ {
		window := legs[start : start+5]
		if !matchesPattern(window, pattern) {
			continue
		}
		candidates = appendCombinations(candidates, window)
	}
	return candidates
}

func matchesPattern(window []leg, pattern [5]ExtremumKind) bool {
	for i, l := range window {
		if l.kind != pattern[i] {
			return false
		}
	}
	return true
}

// appendCombinations walks every member combination of five legs with an
// odometer over member positions.
func appendCombinations(out []Skeleton, window []leg) []Skeleton {
	var pos [5]int
	for {
		var points [5]Extremum
		for i := range points {
			points[i] = window[i].members[pos[i]]
		}
		out = append(out, NewSkeleton(points))

		i := 4
		for ; i >= 0; i-- {
			pos[i]++
			if pos[i] < len(window[i].members) {
				break
			}
			pos[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

func groupLegs(extrema []Extremum, maxAlternatives int) []leg {
	var legs []leg
	for _, e := range extrema {
		if n := len(legs); n > 0 && legs[n-1].kind == e.Kind {
			legs[n-1].members = append(legs[n-1].members, e)
			continue
		}
		legs = append(legs, leg{kind: e.Kind, members: []Extremum{e}})
	}
	for i := range legs {
		legs[i].members = mostExtreme(legs[i].members, legs[i].kind, maxAlternatives)
	}
	return legs
}

// mostExtreme keeps the limit most extreme members (highest highs, lowest
// lows, earliest index on ties) and returns them in index order.
func mostExtreme(members []Extremum, kind ExtremumKind, limit int) []Extremum {
	if len(members) <= limit {
		return members
	}
	ranked := make([]Extremum, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Price != ranked[j].Price {
			if kind == High {
				return ranked[i].Price > ranked[j].Price
			}
			return ranked[i].Price < ranked[j].Price
		}
		return ranked[i].Index < ranked[j].Index
	})
	kept := ranked[:limit]
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Index < kept[j].Index
	})
	return kept
}
