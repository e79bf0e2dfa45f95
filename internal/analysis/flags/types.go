// Package flags detects five-point bullish and bearish flag formations in a
// candle series.
//
// A scan runs extrema detection, proposes T0..T4 skeletons from alternating
// swing points, validates their geometry, scores the survivors and looks for
// a breakout through the T1-T3 trendline. Every scan is a pure function of the
// series and the configuration.
package flags

import (
	"fmt"
	"time"

	"flag-scanner/internal/models"
)

// ExtremumKind is the kind of a swing point.
type ExtremumKind string

const (
	High ExtremumKind = "HIGH"
	Low  ExtremumKind = "LOW"
)

// Extremum is a swing high or low at a candle index.
type Extremum struct {
	Index int          `json:"index"`
	Price float64      `json:"price"`
	Kind  ExtremumKind `json:"kind"`
	Time  time.Time    `json:"time"`
}

// Role names a keypoint of the flag skeleton.
type Role int

const (
	T0 Role = iota // flagpole start
	T1             // flagpole end
	T2             // first pullback
	T3             // second peak
	T4             // second pullback
)

func (r Role) String() string {
	return fmt.Sprintf("T%d", int(r))
}

// MarshalText renders the role as "T0".."T4".
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Keypoint is one named point of a skeleton.
type Keypoint struct {
	Role  Role      `json:"role"`
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// Skeleton is the ordered T0..T4 candidate.
type Skeleton [5]Keypoint

// NewSkeleton assigns roles T0..T4 to five extrema in the given order.
func NewSkeleton(points [5]Extremum) Skeleton {
	var s Skeleton
	for i, p := range points {
		s[i] = Keypoint{Role: Role(i), Index: p.Index, Price: p.Price, Time: p.Time}
	}
	return s
}

// Indices returns the candle indices of T0..T4.
func (s Skeleton) Indices() [5]int {
	var idx [5]int
	for i, k := range s {
		idx[i] = k.Index
	}
	return idx
}

// IsOrdered reports whether T0.Index < T1.Index < ... < T4.Index.
func (s Skeleton) IsOrdered() bool {
	for i := 1; i < len(s); i++ {
		if s[i].Index <= s[i-1].Index {
			return false
		}
	}
	return true
}

// Trendline is the line through two anchors, extended in both directions.
type Trendline struct {
	AnchorIndex int     `json:"anchor_index"`
	AnchorPrice float64 `json:"anchor_price"`
	Slope       float64 `json:"slope"`
}

// LineThrough builds the line through two keypoints. Anchors at the same
// index produce a flat line through a.
func LineThrough(a, b Keypoint) Trendline {
	line := Trendline{AnchorIndex: a.Index, AnchorPrice: a.Price}
	if b.Index != a.Index {
		line.Slope = (b.Price - a.Price) / float64(b.Index-a.Index)
	}
	return line
}

// At projects the line at candle index i.
func (l Trendline) At(i int) float64 {
	return l.AnchorPrice + l.Slope*float64(i-l.AnchorIndex)
}

// ScoreComponents are the soft quality measures, each in [0, 1].
type ScoreComponents struct {
	Symmetry    float64 `json:"symmetry"`
	Tightness   float64 `json:"tightness"`
	VolumeDecay float64 `json:"volume_decay"`
	HasVolume   bool    `json:"has_volume"`
}

// PatternMatch is an accepted flag. It is a value type and never modified
// after the scanner returns it.
type PatternMatch struct {
	Orientation       models.Orientation `json:"orientation"`
	Skeleton          Skeleton           `json:"skeleton"`
	BreakoutIndex     int                `json:"breakout_index"`
	BreakoutConfirmed bool               `json:"breakout_confirmed"`
	BreakoutPrice     float64            `json:"breakout_price,omitempty"`
	BreakoutStrength  float64            `json:"breakout_strength_pct,omitempty"`
	QualityScore      float64            `json:"quality_score"`
	Components        ScoreComponents    `json:"components"`
	Trendline         Trendline          `json:"trendline"`
	PoleHeight        float64            `json:"pole_height"`
}

// Start returns T0.
func (m PatternMatch) Start() Keypoint {
	return m.Skeleton[T0]
}

// End returns T4.
func (m PatternMatch) End() Keypoint {
	return m.Skeleton[T4]
}

// Key identifies a match by orientation and keypoint indices.
func (m PatternMatch) Key() string {
	idx := m.Skeleton.Indices()
	return fmt.Sprintf("%s:%d-%d-%d-%d-%d", m.Orientation, idx[0], idx[1], idx[2], idx[3], idx[4])
}
