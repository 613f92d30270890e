package didv

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func fitWithCost(poles int, cost, dt float64) *FitResult {
	return &FitResult{
		Poles:  poles,
		Params: FitParams{A: 1, Tau2: 1e-6, DT: dt},
		Cost:   cost,
	}
}

func TestBestFitPicksLowestCost(t *testing.T) {
	r := &Result{
		Fit1: fitWithCost(1, 30, 1e-6),
		Fit2: fitWithCost(2, 5, 2e-6),
		Fit3: fitWithCost(3, 12, 3e-6),
	}
	best := r.BestFit()
	if best == nil || best.Poles != 2 {
		t.Fatalf("expected 2-pole best fit, got %+v", best)
	}
	if got := r.BestDT(); got != 2e-6 {
		t.Fatalf("BestDT: got %v want 2e-6", got)
	}
}

func TestBestFitTieGoesToLowestPoles(t *testing.T) {
	r := &Result{
		Fit2: fitWithCost(2, 7, 2e-6),
		Fit3: fitWithCost(3, 7, 3e-6),
	}
	best := r.BestFit()
	if best == nil || best.Poles != 2 {
		t.Fatalf("tie should pick the 2-pole fit, got %+v", best)
	}
}

func TestBestFitNoneStored(t *testing.T) {
	r := &Result{}
	if r.BestFit() != nil {
		t.Fatalf("expected nil best fit")
	}
	if got := r.BestDT(); got != 0 {
		t.Fatalf("BestDT with no fits: got %v want 0", got)
	}
}

func TestFitResultByPoles(t *testing.T) {
	r := &Result{Fit3: fitWithCost(3, 1, 0)}
	if r.FitResult(3) == nil {
		t.Fatalf("expected stored 3-pole fit")
	}
	if r.FitResult(1) != nil || r.FitResult(2) != nil {
		t.Fatalf("expected nil for absent fits")
	}
	if r.FitResult(0) != nil || r.FitResult(4) != nil {
		t.Fatalf("expected nil for out-of-range pole counts")
	}
}

func TestPeriod(t *testing.T) {
	r := &Result{SGFreq: 200}
	if got := r.Period(); math.Abs(got-0.005) > 1e-15 {
		t.Fatalf("Period: got %v want 0.005", got)
	}
	if got := (&Result{}).Period(); got != 0 {
		t.Fatalf("Period with zero sgfreq: got %v want 0", got)
	}
}

func TestSelectPoles(t *testing.T) {
	cases := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"all", []int{1, 2, 3}, false},
		{"ALL", []int{1, 2, 3}, false},
		{"", []int{1, 2, 3}, false},
		{"2", []int{2}, false},
		{"2,3", []int{2, 3}, false},
		{"3,1", []int{3, 1}, false},
		{" 1 , 3 ", []int{1, 3}, false},
		{"1,1", nil, true},
		{"4", nil, true},
		{"0", nil, true},
		{"x", nil, true},
		{",", nil, true},
	}
	for _, tc := range cases {
		got, err := SelectPoles(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("SelectPoles(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SelectPoles(%q): unexpected error %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SelectPoles(%q): got %v want %v", tc.in, got, tc.want)
		}
	}
}

func TestComplexJSONRoundTrip(t *testing.T) {
	in := Complex(complex(1.5, -2.25))
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "[1.5,-2.25]" {
		t.Fatalf("marshal: got %s want [1.5,-2.25]", b)
	}
	var out Complex
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip: got %v want %v", out, in)
	}
}

func TestComplexJSONRejectsWrongArity(t *testing.T) {
	var c Complex
	for _, bad := range []string{"[1]", "[1,2,3]", "[]", `"1+2i"`, "1.5"} {
		if err := json.Unmarshal([]byte(bad), &c); err == nil {
			t.Fatalf("unmarshal %s: expected error", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	good := &Result{
		Time:     []float64{0, 1e-6},
		TMean:    []float64{0, 1},
		Freq:     []float64{0, 1},
		DIDVMean: []Complex{0, 0},
		DIDVStd:  []Complex{0, 0},
		SGFreq:   100,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid result rejected: %v", err)
	}
	bad := *good
	bad.TMean = []float64{0}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected trace mismatch error")
	}
	bad = *good
	bad.DIDVStd = nil
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected frequency mismatch error")
	}
	bad = *good
	bad.SGFreq = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected sgfreq error")
	}
}

// writeLine appends one raw line to a results file under construction.
func writeLine(t *testing.T, f *os.File, line string) {
	t.Helper()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("write line: %v", err)
	}
}

func sampleEnvelope(channel string) *Envelope {
	return &Envelope{
		Meta: &Meta{
			TimestampUTC:  "2025-11-02T10:00:00Z",
			Channel:       channel,
			Series:        "I2_D20251102_T100000",
			Fs:            625000,
			NTraces:       500,
			SchemaVersion: SchemaVersion,
		},
		Result: &Result{
			Time:      []float64{0, 1.6e-6, 3.2e-6, 4.8e-6},
			TMean:     []float64{1e-6, 2e-6, 1e-6, 0},
			Offset:    1e-6,
			Freq:      []float64{0, 156250, -312500, -156250},
			DIDVMean:  []Complex{0, Complex(complex(1, -2)), 0, 0},
			DIDVStd:   []Complex{0, Complex(complex(0.1, 0.1)), 0, 0},
			Rshunt:    5e-3,
			SGAmp:     20e-6,
			SGFreq:    100,
			DutyCycle: 0.5,
			Fit2:      fitWithCost(2, 9.5, 1.2e-6),
		},
	}
}

func TestLoadResultsSkipsJunkAndWrongSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "didv_results.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	good, err := json.Marshal(sampleEnvelope("PBS1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	stale := sampleEnvelope("Pold")
	stale.Meta.SchemaVersion = SchemaVersion + 1
	staleB, err := json.Marshal(stale)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	writeLine(t, f, "not json at all")
	writeLine(t, f, "")
	writeLine(t, f, string(good))
	writeLine(t, f, `{"meta":null,"didv_result":null}`)
	writeLine(t, f, string(staleB))
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	envs, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if len(envs) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envs))
	}
	if envs[0].Meta.Channel != "PBS1" {
		t.Fatalf("wrong channel: %s", envs[0].Meta.Channel)
	}
	if envs[0].Result.Fit2 == nil || envs[0].Result.Fit2.Cost != 9.5 {
		t.Fatalf("fit did not survive the round trip: %+v", envs[0].Result.Fit2)
	}
}

func TestLoadResultsMissingFile(t *testing.T) {
	if _, err := LoadResults(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestAppendResultThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "didv_results.jsonl")
	if err := AppendResult(path, sampleEnvelope("PAS2")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := AppendResult(path, sampleEnvelope("PFS1")); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	envs, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	if got := FindChannel(envs, "pfs1"); got == nil || got.Meta.Channel != "PFS1" {
		t.Fatalf("FindChannel case-insensitive lookup failed: %+v", got)
	}
	if FindChannel(envs, "nope") != nil {
		t.Fatalf("expected nil for unknown channel")
	}
}

func TestAppendResultRejectsIncompleteEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "didv_results.jsonl")
	if err := AppendResult(path, nil); err == nil {
		t.Fatalf("expected error for nil envelope")
	}
	if err := AppendResult(path, &Envelope{Meta: &Meta{}}); err == nil {
		t.Fatalf("expected error for envelope without result")
	}
}

func TestResultJSONUsesSnakeCaseKeys(t *testing.T) {
	b, err := json.Marshal(sampleEnvelope("PCS1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, key := range []string{`"meta"`, `"didv_result"`, `"schema_version"`, `"fit_2pole"`, `"tau2"`, `"dt"`, `"didvmean"`, `"sgfreq"`} {
		if !strings.Contains(s, key) {
			t.Fatalf("marshaled envelope missing key %s: %s", key, s)
		}
	}
}

func TestNewMetaFillsProvenance(t *testing.T) {
	m := NewMeta("PDS1", "I2_D20251102_T104500", 1.25e6, 300)
	if m.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version: got %d want %d", m.SchemaVersion, SchemaVersion)
	}
	if m.Channel != "PDS1" || m.Fs != 1.25e6 || m.NTraces != 300 {
		t.Fatalf("fields not carried: %+v", m)
	}
	if m.TimestampUTC == "" {
		t.Fatalf("timestamp not set")
	}
}
