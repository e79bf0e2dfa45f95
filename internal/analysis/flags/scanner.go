package flags

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"flag-scanner/internal/errors"
	"flag-scanner/internal/models"
)

// Stage is the progress of a single scan.
type Stage string

const (
	StageIdle                Stage = "IDLE"
	StageExtremaComputed     Stage = "EXTREMA_COMPUTED"
	StageCandidatesGenerated Stage = "CANDIDATES_GENERATED"
	StageValidated           Stage = "VALIDATED"
	StageBreakoutChecked     Stage = "BREAKOUT_CHECKED"
	StageDone                Stage = "DONE"
)

// Stats counts what happened during a scan. Rejections are expected in
// large numbers and are only counted here, never reported as errors.
type Stats struct {
	Candles    int               `json:"candles"`
	Extrema    int               `json:"extrema"`
	Candidates int               `json:"candidates"`
	Accepted   int               `json:"accepted"`
	Confirmed  int               `json:"confirmed"`
	Filtered   int               `json:"filtered"`
	Stale      int               `json:"stale"`
	Duplicates int               `json:"duplicates"`
	Rejections map[Rejection]int `json:"rejections"`
	Duration   time.Duration     `json:"duration"`
}

// Result is the full outcome of ScanWithStats.
type Result struct {
	Matches []PatternMatch `json:"matches"`
	Stage   Stage          `json:"stage"`
	Stats   Stats          `json:"stats"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger used for stage tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// Scanner runs both flag orientations over a candle series. It holds only
// immutable configuration and is safe for concurrent use.
type Scanner struct {
	cfg       Config
	validator *Validator
	breakout  *BreakoutDetector
	logger    zerolog.Logger
}

// NewScanner validates cfg and creates a scanner.
func NewScanner(cfg Config, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:       cfg,
		validator: NewValidator(cfg),
		breakout:  NewBreakoutDetector(cfg),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name identifies the detector.
func (s *Scanner) Name() string {
	return "FlagScanner"
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

// Scan returns the deduplicated flags in series, most recent first. An empty
// result means no pattern was found.
func (s *Scanner) Scan(series *models.CandleSeries) ([]PatternMatch, error) {
	res, err := s.ScanWithStats(series)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

type accepted struct {
	orientation models.Orientation
	skeleton    Skeleton
	assessment  Assessment
}

// ScanWithStats is Scan with stage and counter reporting.
func (s *Scanner) ScanWithStats(series *models.CandleSeries) (Result, error) {
	started := time.Now()
	res := Result{
		Stage: StageIdle,
		Stats: Stats{Rejections: make(map[Rejection]int)},
	}
	if series.Len() == 0 {
		return res, errors.NewInputError(-1, "candles", "series is empty")
	}
	res.Stats.Candles = series.Len()

	extrema := CollectExtrema(FindExtrema(series, s.cfg.ExtremaWindow))
	res.Stats.Extrema = len(extrema)
	s.advance(&res, StageExtremaComputed)

	candidates := make(map[models.Orientation][]Skeleton, len(models.Orientations))
	for _, o := range models.Orientations {
		candidates[o] = ExtractCandidates(extrema, o, s.cfg.MaxLegAlternatives)
		res.Stats.Candidates += len(candidates[o])
	}
	s.advance(&res, StageCandidatesGenerated)

	last := series.Len() - 1
	var valid []accepted
	for _, o := range models.Orientations {
		for _, sk := range candidates[o] {
			if s.cfg.MaxPatternAge > 0 && last-sk[T4].Index > s.cfg.MaxPatternAge {
				res.Stats.Stale++
				continue
			}
			a, rejection := s.validator.Validate(series, o, sk)
			if rejection != Accepted {
				res.Stats.Rejections[rejection]++
				continue
			}
			valid = append(valid, accepted{orientation: o, skeleton: sk, assessment: a})
		}
	}
	res.Stats.Accepted = len(valid)
	s.advance(&res, StageValidated)

	matches := make([]PatternMatch, 0, len(valid))
	for _, v := range valid {
		br := s.breakout.Detect(series, v.orientation, v.skeleton)
		if br.Confirmed {
			res.Stats.Confirmed++
		}
		if (s.cfg.RequireBreakout && !br.Confirmed) || v.assessment.Score < s.cfg.MinQualityScore {
			res.Stats.Filtered++
			continue
		}
		matches = append(matches, PatternMatch{
			Orientation:       v.orientation,
			Skeleton:          v.skeleton,
			BreakoutIndex:     br.Index,
			BreakoutConfirmed: br.Confirmed,
			BreakoutPrice:     br.Price,
			BreakoutStrength:  br.StrengthPct,
			QualityScore:      v.assessment.Score,
			Components:        v.assessment.Components,
			Trendline:         br.Line,
			PoleHeight:        v.assessment.PoleHeight,
		})
	}
	s.advance(&res, StageBreakoutChecked)

	deduped, dropped := Deduplicate(matches, s.cfg.DedupOverlapThreshold)
	res.Stats.Duplicates = dropped
	SortMatches(deduped)
	if s.cfg.MaxMatches > 0 && len(deduped) > s.cfg.MaxMatches {
		deduped = deduped[:s.cfg.MaxMatches]
	}
	res.Matches = deduped
	res.Stats.Duration = time.Since(started)
	s.advance(&res, StageDone)

	return res, nil
}

func (s *Scanner) advance(res *Result, stage Stage) {
	res.Stage = stage
	s.logger.Debug().
		Str("stage", string(stage)).
		Int("extrema", res.Stats.Extrema).
		Int("candidates", res.Stats.Candidates).
		Int("accepted", res.Stats.Accepted).
		Int("matches", len(res.Matches)).
		Msg("Flag scan stage")
}

// Deduplicate drops matches whose keypoint indices overlap a better match by
// more than threshold (fraction of the five keypoints). The higher quality
// score wins; on equal scores the later T4 wins. It returns the survivors and
// the number dropped.
func Deduplicate(matches []PatternMatch, threshold float64) ([]PatternMatch, int) {
	ranked := make([]PatternMatch, len(matches))
	copy(ranked, matches)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		if a.End().Index != b.End().Index {
			return a.End().Index > b.End().Index
		}
		return lessTiebreak(a, b)
	})

	kept := make([]PatternMatch, 0, len(ranked))
	for _, m := range ranked {
		duplicate := false
		for _, k := range kept {
			if OverlapFraction(m.Skeleton, k.Skeleton) > threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, m)
		}
	}
	return kept, len(matches) - len(kept)
}

// OverlapFraction is the share of keypoint indices two ordered skeletons have
// in common, from 0 to 1.
func OverlapFraction(a, b Skeleton) float64 {
	ai, bi := a.Indices(), b.Indices()
	shared := 0
	for i, j := 0, 0; i < len(ai) && j < len(bi); {
		switch {
		case ai[i] == bi[j]:
			shared++
			i++
			j++
		case ai[i] < bi[j]:
			i++
		default:
			j++
		}
	}
	return float64(shared) / float64(len(ai))
}

// SortMatches orders matches by T4 index descending, then quality descending.
// Remaining ties fall back to T0 descending and bullish before bearish so the
// order is fully deterministic.
func SortMatches(matches []PatternMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.End().Index != b.End().Index {
			return a.End().Index > b.End().Index
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return lessTiebreak(a, b)
	})
}

func lessTiebreak(a, b PatternMatch) bool {
	ai, bi := a.Skeleton.Indices(), b.Skeleton.Indices()
	for k := range ai {
		if ai[k] != bi[k] {
			return ai[k] > bi[k]
		}
	}
	return a.Orientation == models.Bullish && b.Orientation == models.Bearish
}
