// Package feed loads candle series from CSV files and other candle sources.
package feed

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"flag-scanner/internal/errors"
	"flag-scanner/internal/models"
)

// RequiredColumns is the CSV header every candle file must carry. Column order
// is free and extra columns are ignored.
var RequiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// csvTime accepts RFC3339, a few common date layouts, or unix seconds.
type csvTime struct {
	time.Time
}

func (t *csvTime) UnmarshalCSV(value string) error {
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		t.Time = time.Unix(secs, 0).UTC()
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return errors.NewInputError(-1, "timestamp", "unrecognized timestamp "+strconv.Quote(value))
}

func (t csvTime) MarshalCSV() (string, error) {
	return t.Format(time.RFC3339), nil
}

type candleRecord struct {
	Timestamp csvTime `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
}

// CSVLoader reads candle CSV files. Timestamps without a zone are UTC.
type CSVLoader struct{}

// Read parses candles from r and returns them in timestamp order.
func (l *CSVLoader) Read(r io.Reader) ([]models.Candle, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to read CSV header")
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var records []*candleRecord
	body := io.MultiReader(strings.NewReader(strings.ToLower(header)), br)
	if err := gocsv.Unmarshal(body, &records); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "failed to parse candles: %v", err)
	}

	candles := make([]models.Candle, 0, len(records))
	for _, rec := range records {
		candles = append(candles, models.Candle{
			Timestamp: rec.Timestamp.Time,
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
		})
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// LoadFile reads a CSV file into a validated series.
func (l *CSVLoader) LoadFile(path string) (*models.CandleSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewDataError("candles", path, "file not found", errors.ErrDataNotFound)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	candles, err := l.Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	series, err := models.NewCandleSeries(candles)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return series, nil
}

// Write renders candles as CSV with the required header.
func (l *CSVLoader) Write(w io.Writer, candles []models.Candle) error {
	records := make([]*candleRecord, len(candles))
	for i, c := range candles {
		records[i] = &candleRecord{
			Timestamp: csvTime{c.Timestamp},
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	return gocsv.Marshal(&records, w)
}

func checkHeader(line string) error {
	present := make(map[string]bool)
	for _, col := range strings.Split(strings.TrimSpace(line), ",") {
		present[strings.ToLower(strings.Trim(strings.TrimSpace(col), `"`))] = true
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(errors.ErrUnknownFormat, "missing columns %s", strings.Join(missing, ","))
	}
	return nil
}
