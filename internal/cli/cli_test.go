package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flag-scanner/internal/errors"
)

// Rows are low,high,open,close,volume. T0..T4 sit at 2/5/8/11/14 with a
// breakout close at 16.
var flagRows = []string{
	"101,103,102,102.5,1000",
	"100.5,102.5,102,101,1000",
	"100,102,101,101.5,1100",
	"104,110,104.5,109.5,1500",
	"109,116,109.5,115.5,1800",
	"115,120,115.5,119,2000",
	"114,118.5,118,114.5,1600",
	"113,117.5,114.5,113.5,1400",
	"112,115,113,114,1200",
	"113,116,114,115.5,1100",
	"114.5,117,115.5,116.5,1000",
	"115,118,116.5,115.5,900",
	"113,117,115.5,113.5,800",
	"111,115.5,113.5,111.5,700",
	"110,113,111.5,112.5,600",
	"112,116,112.5,114.5,1500",
	"115,122,115,121,2500",
}

func writeFlagCSV(t *testing.T, path string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,low,high,open,close,volume\n")
	start := time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)
	for i, row := range flagRows {
		fmt.Fprintf(&b, "%s,%s\n", start.Add(time.Duration(i)*time.Hour).Format(time.RFC3339), row)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

type env struct {
	configDir string
	dataDir   string
}

func newEnv(t *testing.T, configTOML string) env {
	t.Helper()
	e := env{configDir: t.TempDir(), dataDir: t.TempDir()}
	if configTOML != "" {
		if err := os.WriteFile(filepath.Join(e.configDir, "config.toml"), []byte(configTOML), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeFlagCSV(t, filepath.Join(e.dataDir, "infy.csv"))
	return e
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configDir, "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("flagscan %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
}

type jsonMatch struct {
	Orientation       string  `json:"orientation"`
	BreakoutIndex     int     `json:"breakout_index"`
	BreakoutConfirmed bool    `json:"breakout_confirmed"`
	QualityScore      float64 `json:"quality_score"`
}

type jsonRecord struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Label  string    `json:"label"`
	Note   string    `json:"note"`
	Match  jsonMatch `json:"match"`
}

func TestScanFile(t *testing.T) {
	e := newEnv(t, "")
	file := filepath.Join(e.dataDir, "infy.csv")

	var report struct {
		Symbol  string      `json:"symbol"`
		Candles int         `json:"candles"`
		Matches []jsonMatch `json:"matches"`
		Stats   *struct {
			Candidates int `json:"candidates"`
		} `json:"stats"`
	}
	decode(t, e.mustRun(t, "scan", file, "--window", "2", "--stats", "--json"), &report)

	if report.Symbol != "INFY" || report.Candles != len(flagRows) {
		t.Errorf("report header = %+v", report)
	}
	if len(report.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(report.Matches))
	}
	m := report.Matches[0]
	if m.Orientation != "BULLISH" || !m.BreakoutConfirmed || m.BreakoutIndex != 16 {
		t.Errorf("match = %+v", m)
	}
	if report.Stats == nil || report.Stats.Candidates == 0 {
		t.Errorf("stats missing: %+v", report.Stats)
	}

	// A one-candle lookahead misses the breakout, so requiring one drops the flag.
	var none struct {
		Matches []jsonMatch `json:"matches"`
	}
	decode(t, e.mustRun(t, "scan", file, "--window", "2", "--lookahead", "1", "--require-breakout", "--json"), &none)
	if none.Matches == nil || len(none.Matches) != 0 {
		t.Errorf("expected an empty match list, got %v", none.Matches)
	}
}

func TestScanTable(t *testing.T) {
	e := newEnv(t, "")
	out := e.mustRun(t, "scan", filepath.Join(e.dataDir, "infy.csv"), "--window", "2")
	for _, want := range []string{"INFY", "BULL", "2@100.00", "14@110.00", "16@121.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestScanInvalidOverride(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "scan", filepath.Join(e.dataDir, "infy.csv"), "--breakout-price", "open")
	if !errors.Is(err, errors.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestScanSymbolFromDataDir(t *testing.T) {
	e := newEnv(t, "")
	t.Setenv("FLAGSCAN_DATA_DIR", e.dataDir)

	var report struct {
		Symbol  string      `json:"symbol"`
		Matches []jsonMatch `json:"matches"`
	}
	decode(t, e.mustRun(t, "scan", "infy", "--window", "2", "--json"), &report)
	if report.Symbol != "INFY" || len(report.Matches) != 1 {
		t.Errorf("report = %+v", report)
	}

	if _, err := e.run(t, "scan", "TCS"); !errors.Is(err, errors.ErrDataNotFound) {
		t.Errorf("unknown symbol err = %v", err)
	}
	if _, err := e.run(t, "scan", "infy;ls"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("malformed symbol err = %v", err)
	}
}

func TestSaveListAndLabel(t *testing.T) {
	e := newEnv(t, "")
	file := filepath.Join(e.dataDir, "infy.csv")

	var scanned struct {
		SavedIDs []string `json:"saved_ids"`
	}
	decode(t, e.mustRun(t, "scan", file, "--window", "2", "--save", "--json"), &scanned)
	if len(scanned.SavedIDs) != 1 {
		t.Fatalf("saved ids = %v", scanned.SavedIDs)
	}
	id := scanned.SavedIDs[0]

	var records []jsonRecord
	decode(t, e.mustRun(t, "matches", "list", "--unlabeled", "--json"), &records)
	if len(records) != 1 || records[0].ID != id || records[0].Symbol != "INFY" {
		t.Fatalf("records = %+v", records)
	}

	var labeled jsonRecord
	decode(t, e.mustRun(t, "matches", "label", ShortID(id), "valid", "--note", "clean pole", "--json"), &labeled)
	if labeled.ID != id || labeled.Label != "valid" || labeled.Note != "clean pole" {
		t.Errorf("labeled = %+v", labeled)
	}

	// A rescan keeps the id and the label.
	decode(t, e.mustRun(t, "scan", file, "--window", "2", "--save", "--json"), &scanned)
	if scanned.SavedIDs[0] != id {
		t.Errorf("rescan id = %s, want %s", scanned.SavedIDs[0], id)
	}

	records = nil
	decode(t, e.mustRun(t, "matches", "list", "--label", "valid", "--json"), &records)
	if len(records) != 1 || records[0].Label != "valid" {
		t.Errorf("valid records = %+v", records)
	}
	records = nil
	decode(t, e.mustRun(t, "matches", "list", "--unlabeled", "--json"), &records)
	if len(records) != 0 {
		t.Errorf("unlabeled after labeling = %+v", records)
	}

	out := e.mustRun(t, "matches", "show", id)
	for _, want := range []string{id, "valid", "clean pole", "T4"} {
		if !strings.Contains(out, want) {
			t.Errorf("show missing %q:\n%s", want, out)
		}
	}

	if _, err := e.run(t, "matches", "label", id, "great"); !errors.Is(err, errors.ErrInvalidLabel) {
		t.Errorf("bad label err = %v", err)
	}
	if _, err := e.run(t, "matches", "show", "ffffffff"); !errors.Is(err, errors.ErrDataNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
	if _, err := e.run(t, "matches", "list", "--orientation", "sideways"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bad orientation err = %v", err)
	}
}

func TestMatchesExport(t *testing.T) {
	e := newEnv(t, "")
	e.mustRun(t, "scan", filepath.Join(e.dataDir, "infy.csv"), "--window", "2", "--save")

	out := e.mustRun(t, "matches", "export")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "id,symbol,timeframe") || !strings.Contains(lines[1], ",INFY,1h,BULLISH,") {
		t.Errorf("csv export = %q", out)
	}

	file := filepath.Join(t.TempDir(), "flags.yaml")
	e.mustRun(t, "matches", "export", "--format", "yml", "-o", file)
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "symbol: INFY") || !strings.Contains(string(data), "t4_index: 14") {
		t.Errorf("yaml export = %s", data)
	}

	if out := e.mustRun(t, "matches", "export", "--format", "json", "--label", "valid"); strings.TrimSpace(out) != "[]" {
		t.Errorf("filtered export = %q", out)
	}
	if _, err := e.run(t, "matches", "export", "--format", "xml"); !errors.Is(err, errors.ErrUnknownFormat) {
		t.Errorf("bad format err = %v", err)
	}
}

func TestScreen(t *testing.T) {
	e := newEnv(t, "[storage]\nsave_matches = false\n")
	if err := os.WriteFile(filepath.Join(e.dataDir, "broken.csv"), []byte("date,price\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var report struct {
		Symbols int `json:"symbols"`
		Hits    []struct {
			Symbol string    `json:"symbol"`
			ID     string    `json:"id"`
			Match  jsonMatch `json:"match"`
		} `json:"hits"`
		Failures []struct {
			Symbol string `json:"symbol"`
		} `json:"failures"`
		Saved int `json:"saved"`
	}
	decode(t, e.mustRun(t, "screen", e.dataDir, "--window", "2", "--json"), &report)

	if report.Symbols != 2 || len(report.Hits) != 1 || len(report.Failures) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Hits[0].Symbol != "INFY" || report.Hits[0].ID != "" || report.Saved != 0 {
		t.Errorf("hit = %+v, saved %d", report.Hits[0], report.Saved)
	}
	if report.Failures[0].Symbol != "BROKEN" {
		t.Errorf("failure = %+v", report.Failures[0])
	}

	decode(t, e.mustRun(t, "screen", e.dataDir, "--window", "2", "--save", "--json"), &report)
	if report.Saved != 1 || report.Hits[0].ID == "" {
		t.Errorf("saved screen = %+v", report)
	}
}

func TestImportAndScreenCache(t *testing.T) {
	e := newEnv(t, "[data]\nsource = \"cache\"\ntimeframe = \"1d\"\n")

	var imported []struct {
		Symbol  string `json:"symbol"`
		Candles int    `json:"candles"`
	}
	decode(t, e.mustRun(t, "import", filepath.Join(e.dataDir, "infy.csv"), "--symbol", "infosys", "--json"), &imported)
	if len(imported) != 1 || imported[0].Symbol != "INFOSYS" || imported[0].Candles != len(flagRows) {
		t.Fatalf("imported = %+v", imported)
	}

	var report struct {
		Symbols int `json:"symbols"`
		Hits    []struct {
			Symbol string `json:"symbol"`
		} `json:"hits"`
	}
	decode(t, e.mustRun(t, "screen", "--window", "2", "--save=false", "--json"), &report)
	if report.Symbols != 1 || len(report.Hits) != 1 || report.Hits[0].Symbol != "INFOSYS" {
		t.Errorf("cache screen = %+v", report)
	}

	if _, err := e.run(t, "import", "a.csv", "b.csv", "--symbol", "X"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("--symbol with many files err = %v", err)
	}
}

func TestWatchOnce(t *testing.T) {
	e := newEnv(t, "")
	out := e.mustRun(t, "watch", "--once", "--dir", e.dataDir, "--window", "2")
	if !strings.Contains(out, "1 symbol(s)  1 flag(s)  1 new") {
		t.Errorf("summary = %q", out)
	}
	if !strings.Contains(out, "bullish breakout on INFY") {
		t.Errorf("no notification for the new flag: %q", out)
	}

	// The flag is already stored, so a second run announces nothing.
	out = e.mustRun(t, "watch", "--once", "--dir", e.dataDir, "--window", "2")
	if strings.Contains(out, "breakout on INFY") || !strings.Contains(out, "0 new") {
		t.Errorf("second run = %q", out)
	}

	var records []jsonRecord
	decode(t, e.mustRun(t, "matches", "list", "--json"), &records)
	if len(records) != 1 {
		t.Errorf("records after watch = %+v", records)
	}

	if _, err := e.run(t, "watch", "--cron", "whenever"); !errors.Is(err, errors.ErrConfigInvalid) {
		t.Errorf("bad cron err = %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t, "")

	if out := e.mustRun(t, "config", "path"); strings.TrimSpace(out) != filepath.Join(e.configDir, "config.toml") {
		t.Errorf("config path = %q", out)
	}
	if out := e.mustRun(t, "config", "validate"); !strings.Contains(out, "valid") {
		t.Errorf("validate = %q", out)
	}
	out := e.mustRun(t, "config", "show")
	for _, want := range []string{"Extrema Window:     3", "Retracement Floor:  +50.00%", "1h"} {
		if !strings.Contains(out, want) {
			t.Errorf("show missing %q:\n%s", want, out)
		}
	}

	bad := newEnv(t, "[scanner]\nmin_move_pct = -1\n")
	if _, err := bad.run(t, "config", "show"); !errors.Is(err, errors.ErrConfigInvalid) {
		t.Errorf("invalid config err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	e := newEnv(t, "")
	var v map[string]string
	decode(t, e.mustRun(t, "version", "--json"), &v)
	if v["version"] != Version {
		t.Errorf("version = %v", v)
	}
}
