package flags

import (
	"math"

	"flag-scanner/internal/models"
)

// Rejection names the rule a candidate skeleton failed.
type Rejection string

const (
	Accepted          Rejection = ""
	RejectOrder       Rejection = "order"
	RejectPole        Rejection = "flagpole"
	RejectPoleRange   Rejection = "pole_range"
	RejectShape       Rejection = "shape"
	RejectPeak        Rejection = "peak"
	RejectRetracement Rejection = "retracement"
	RejectPullback    Rejection = "first_pullback"
	RejectDiverging   Rejection = "diverging_channel"
	RejectChannel     Rejection = "channel_breach"
)

// boundaryEpsilon keeps inclusive price boundaries inclusive under float
// rounding of the floor level.
const boundaryEpsilon = 1e-9

// Assessment is the outcome of validating an accepted skeleton.
type Assessment struct {
	PoleHeight float64
	Score      float64
	Components ScoreComponents
}

// Validator applies the geometric flag rules and scores accepted skeletons.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator. cfg is expected to be valid.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// direction is +1 for bullish and -1 for bearish. Multiplying price
// differences by it turns every bearish rule into its bullish mirror.
func direction(o models.Orientation) float64 {
	if o == models.Bearish {
		return -1
	}
	return 1
}

// Validate checks sk against the flag rules for orientation. It returns
// Accepted and the quality assessment, or the first rule that failed.
func (v *Validator) Validate(series *models.CandleSeries, orientation models.Orientation, sk Skeleton) (Assessment, Rejection) {
	if !sk.IsOrdered() || sk[T4].Index >= series.Len() || sk[T0].Index < 0 {
		return Assessment{}, RejectOrder
	}

	d := direction(orientation)
	p0, p1, p2, p3, p4 := sk[T0].Price, sk[T1].Price, sk[T2].Price, sk[T3].Price, sk[T4].Price

	pole := d * (p1 - p0)
	if pole <= 0 || p0 <= 0 || pole/p0 < v.cfg.MinMovePct {
		return Assessment{}, RejectPole
	}
	// The pole must stand out from ordinary candle noise.
	if v.cfg.MinPoleRangeMultiple > 0 && pole < v.cfg.MinPoleRangeMultiple*series.MeanRange() {
		return Assessment{}, RejectPoleRange
	}

	// T0 <= T2 < T1, T2 < T3, T4 < T3 (bullish form)
	if d*(p2-p0) < 0 || d*(p1-p2) <= 0 || d*(p3-p2) <= 0 || d*(p3-p4) <= 0 {
		return Assessment{}, RejectShape
	}

	if d*(p1-p3)+v.cfg.PeakTolerancePct*p1 < 0 {
		return Assessment{}, RejectPeak
	}

	if !holdsFloor(p0, p1, p4, v.cfg.RetracementFloorPct, d) {
		return Assessment{}, RejectRetracement
	}
	if v.cfg.FirstPullbackFloorPct > 0 && !holdsFloor(p0, p1, p2, v.cfg.FirstPullbackFloorPct, d) {
		return Assessment{}, RejectPullback
	}

	if v.cfg.RequireConvergingChannel {
		upper := LineThrough(sk[T1], sk[T3])
		lower := LineThrough(sk[T2], sk[T4])
		if d*(lower.Slope-upper.Slope) < -boundaryEpsilon {
			return Assessment{}, RejectDiverging
		}
	}

	if v.cfg.RequireCleanChannel && v.channelBreached(series, orientation, sk) {
		return Assessment{}, RejectChannel
	}

	components := v.components(series, sk, pole)
	return Assessment{
		PoleHeight: pole,
		Score:      v.weightedScore(components),
		Components: components,
	}, Accepted
}

// holdsFloor reports whether price has not retraced past
// T0 + floor*(T1-T0). The boundary itself is accepted.
func holdsFloor(p0, p1, price, floor, d float64) bool {
	level := p0 + floor*(p1-p0)
	eps := boundaryEpsilon * math.Max(1, math.Abs(level))
	return d*(price-level) >= -eps
}

// channelBreached reports whether any candle pierces the T1-T3 line between
// T1 and T4, or the T2-T4 line between T2 and T4, beyond the tolerance.
func (v *Validator) channelBreached(series *models.CandleSeries, orientation models.Orientation, sk Skeleton) bool {
	tol := v.cfg.ChannelTolerancePct
	outer := LineThrough(sk[T1], sk[T3])
	inner := LineThrough(sk[T2], sk[T4])

	for i := sk[T1].Index + 1; i < sk[T4].Index; i++ {
		if i == sk[T3].Index {
			continue
		}
		c := series.At(i)
		line := outer.At(i)
		if orientation == models.Bullish && c.High > line*(1+tol) {
			return true
		}
		if orientation == models.Bearish && c.Low < line*(1-tol) {
			return true
		}
	}

	for i := sk[T2].Index + 1; i < sk[T4].Index; i++ {
		c := series.At(i)
		line := inner.At(i)
		if orientation == models.Bullish && c.Low < line*(1-tol) {
			return true
		}
		if orientation == models.Bearish && c.High > line*(1+tol) {
			return true
		}
	}
	return false
}

func (v *Validator) components(series *models.CandleSeries, sk Skeleton, pole float64) ScoreComponents {
	durations := ratio(float64(sk[T3].Index-sk[T2].Index), float64(sk[T4].Index-sk[T3].Index))
	amplitudes := ratio(math.Abs(sk[T3].Price-sk[T2].Price), math.Abs(sk[T3].Price-sk[T4].Price))

	hi, lo := sk[T1].Price, sk[T1].Price
	for _, k := range sk[T2:] {
		hi = math.Max(hi, k.Price)
		lo = math.Min(lo, k.Price)
	}

	c := ScoreComponents{
		Symmetry:  (durations + amplitudes) / 2,
		Tightness: clamp01(1 - (hi-lo)/pole),
		HasVolume: series.HasVolume(),
	}
	if c.HasVolume {
		c.VolumeDecay = volumeDecay(series, sk[T1].Index, sk[T4].Index)
	}
	return c
}

func (v *Validator) weightedScore(c ScoreComponents) float64 {
	w := v.cfg.ScoreWeights
	sum := w.Symmetry*c.Symmetry + w.Tightness*c.Tightness
	total := w.Symmetry + w.Tightness
	if c.HasVolume {
		sum += w.VolumeDecay * c.VolumeDecay
		total += w.VolumeDecay
	}
	if total <= 0 {
		return 0
	}
	return clamp01(sum / total)
}

// volumeDecay is the share of steps from..to where volume did not increase.
func volumeDecay(series *models.CandleSeries, from, to int) float64 {
	if to <= from {
		return 0
	}
	steps := 0
	for i := from + 1; i <= to; i++ {
		if series.At(i).Volume <= series.At(i-1).Volume {
			steps++
		}
	}
	return float64(steps) / float64(to-from)
}

// ratio returns min(a,b)/max(a,b), or 0 when both are zero.
func ratio(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi <= 0 {
		return 0
	}
	return math.Min(a, b) / hi
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
