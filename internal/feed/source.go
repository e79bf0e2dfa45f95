package feed

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"flag-scanner/internal/errors"
	"flag-scanner/internal/models"
	"flag-scanner/internal/security"
)

// Source provides candle series by symbol.
type Source interface {
	Symbols(ctx context.Context) ([]string, error)
	Series(ctx context.Context, symbol string) (*models.CandleSeries, error)
}

// DirSource serves one CSV file per symbol from a directory. The symbol is
// the upper-cased file stem, so data/infy.csv is INFY.
type DirSource struct {
	Dir    string
	loader CSVLoader
}

// NewDirSource creates a source over dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Symbols lists the symbols available in the directory, sorted.
func (d *DirSource) Symbols(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewDataError("candles", d.Dir, "data directory not found", errors.ErrDataNotFound)
		}
		return nil, errors.Wrapf(err, "failed to read %s", d.Dir)
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		symbols = append(symbols, SymbolFromPath(e.Name()))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Series loads the CSV file for symbol.
func (d *DirSource) Series(ctx context.Context, symbol string) (*models.CandleSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.pathFor(symbol)
	if err != nil {
		return nil, err
	}
	return d.loader.LoadFile(path)
}

func (d *DirSource) pathFor(symbol string) (string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", d.Dir)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") && SymbolFromPath(e.Name()) == strings.ToUpper(symbol) {
			return filepath.Join(d.Dir, e.Name()), nil
		}
	}
	return "", errors.NewDataError("candles", symbol, "no CSV file for symbol", errors.ErrDataNotFound)
}

// SymbolFromPath derives a symbol from a file path. Characters a symbol may
// not contain are dropped.
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	return security.SanitizeSymbol(strings.TrimSuffix(base, filepath.Ext(base)))
}

// CandleStore is the part of the candle cache a StoreSource reads from.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)
}

// StoreSource serves series from the SQLite candle cache for one timeframe.
type StoreSource struct {
	Store     CandleStore
	Timeframe string
	// Lookback limits how far back candles are read. Zero reads everything.
	Lookback time.Duration
}

// Symbols lists the cached symbols for the timeframe.
func (s *StoreSource) Symbols(ctx context.Context) ([]string, error) {
	return s.Store.ListSymbols(ctx, s.Timeframe)
}

// Series reads the cached candles for symbol.
func (s *StoreSource) Series(ctx context.Context, symbol string) (*models.CandleSeries, error) {
	to := time.Now()
	var from time.Time
	if s.Lookback > 0 {
		from = to.Add(-s.Lookback)
	}
	candles, err := s.Store.GetCandles(ctx, symbol, s.Timeframe, from, to)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, errors.NewDataError("candles", symbol, "no cached candles for "+s.Timeframe, errors.ErrDataNotFound)
	}
	return models.NewCandleSeries(candles)
}

var (
	_ Source = (*DirSource)(nil)
	_ Source = (*StoreSource)(nil)
)
