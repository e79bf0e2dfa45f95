package store

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"flag-scanner/internal/errors"
)

// ExportFormat selects the encoding of an annotation export.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportYAML ExportFormat = "yaml"
)

// ParseExportFormat parses a user supplied export format.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportCSV, ExportJSON, ExportYAML:
		return f, nil
	case "yml":
		return ExportYAML, nil
	default:
		return "", errors.Wrapf(errors.ErrUnknownFormat, "%q (want csv, json or yaml)", s)
	}
}

// ExportRow is one labeled match flattened for downstream tools.
type ExportRow struct {
	ID                string  `csv:"id" json:"id" yaml:"id"`
	Symbol            string  `csv:"symbol" json:"symbol" yaml:"symbol"`
	Timeframe         string  `csv:"timeframe" json:"timeframe" yaml:"timeframe"`
	Orientation       string  `csv:"orientation" json:"orientation" yaml:"orientation"`
	T0Index           int     `csv:"t0_index" json:"t0_index" yaml:"t0_index"`
	T0Time            string  `csv:"t0_time" json:"t0_time" yaml:"t0_time"`
	T0Price           float64 `csv:"t0_price" json:"t0_price" yaml:"t0_price"`
	T1Index           int     `csv:"t1_index" json:"t1_index" yaml:"t1_index"`
	T1Price           float64 `csv:"t1_price" json:"t1_price" yaml:"t1_price"`
	T2Index           int     `csv:"t2_index" json:"t2_index" yaml:"t2_index"`
	T2Price           float64 `csv:"t2_price" json:"t2_price" yaml:"t2_price"`
	T3Index           int     `csv:"t3_index" json:"t3_index" yaml:"t3_index"`
	T3Price           float64 `csv:"t3_price" json:"t3_price" yaml:"t3_price"`
	T4Index           int     `csv:"t4_index" json:"t4_index" yaml:"t4_index"`
	T4Time            string  `csv:"t4_time" json:"t4_time" yaml:"t4_time"`
	T4Price           float64 `csv:"t4_price" json:"t4_price" yaml:"t4_price"`
	BreakoutConfirmed bool    `csv:"breakout_confirmed" json:"breakout_confirmed" yaml:"breakout_confirmed"`
	BreakoutIndex     int     `csv:"breakout_index" json:"breakout_index" yaml:"breakout_index"`
	QualityScore      float64 `csv:"quality_score" json:"quality_score" yaml:"quality_score"`
	Label             string  `csv:"label" json:"label" yaml:"label"`
	Note              string  `csv:"note" json:"note,omitempty" yaml:"note,omitempty"`
	DetectedAt        string  `csv:"detected_at" json:"detected_at" yaml:"detected_at"`
}

// NewExportRow flattens a stored match. Times are RFC3339 in UTC.
func NewExportRow(rec MatchRecord) ExportRow {
	m := rec.Match
	sk := m.Skeleton
	return ExportRow{
		ID:                rec.ID,
		Symbol:            rec.Symbol,
		Timeframe:         rec.Timeframe,
		Orientation:       string(m.Orientation),
		T0Index:           sk[0].Index,
		T0Time:            formatExportTime(sk[0].Time),
		T0Price:           sk[0].Price,
		T1Index:           sk[1].Index,
		T1Price:           sk[1].Price,
		T2Index:           sk[2].Index,
		T2Price:           sk[2].Price,
		T3Index:           sk[3].Index,
		T3Price:           sk[3].Price,
		T4Index:           sk[4].Index,
		T4Time:            formatExportTime(sk[4].Time),
		T4Price:           sk[4].Price,
		BreakoutConfirmed: m.BreakoutConfirmed,
		BreakoutIndex:     m.BreakoutIndex,
		QualityScore:      m.QualityScore,
		Label:             string(rec.Label),
		Note:              rec.Note,
		DetectedAt:        formatExportTime(rec.DetectedAt),
	}
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteExport writes records to w in the given format.
func WriteExport(w io.Writer, format ExportFormat, records []MatchRecord) error {
	rows := make([]ExportRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NewExportRow(rec))
	}

	switch format {
	case ExportCSV:
		return gocsv.Marshal(&rows, w)
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case ExportYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.Wrapf(errors.ErrUnknownFormat, "%q", format)
	}
}
