// Package didv holds the dI/dV fit-result container shared by the plotting
// library and the CLIs, the small-signal circuit models used to evaluate a
// fit, and JSONL persistence for results produced by an upstream fitting
// stage.
package didv

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultResultsFile centralizes the default JSONL results filename so the
// CLIs and the viewer stay consistent.
const DefaultResultsFile = "didv_results.jsonl"

// SchemaVersion indicates the compatibility version for the JSONL
// meta+didv_result structure. Increment on breaking field changes.
// v1: strongly typed Meta and Result, complex values as [re, im] pairs.
const SchemaVersion = 1

// Complex is a complex128 that marshals to JSON as a two-element [re, im]
// array, keeping result files language neutral.
type Complex complex128

func (c Complex) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{real(complex128(c)), imag(complex128(c))})
}

func (c *Complex) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("complex value: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("complex value must be a [re, im] pair, got %d element(s)", len(pair))
	}
	*c = Complex(complex(pair[0], pair[1]))
	return nil
}

// FitParams carries the parameters of one pole fit. B is meaningful from two
// poles up, C and Tau3 only for three poles. DT is the fitted time offset of
// the trace in seconds.
type FitParams struct {
	A    float64 `json:"A"`
	B    float64 `json:"B,omitempty"`
	C    float64 `json:"C,omitempty"`
	Tau1 float64 `json:"tau1,omitempty"`
	Tau2 float64 `json:"tau2"`
	Tau3 float64 `json:"tau3,omitempty"`
	DT   float64 `json:"dt"`
}

// FitResult is the outcome of fitting one circuit model upstream.
type FitResult struct {
	Poles     int        `json:"poles"`
	Params    FitParams  `json:"params"`
	Errors    *FitParams `json:"errors,omitempty"`
	Cost      float64    `json:"cost"`
	FallTimes []float64  `json:"falltimes,omitempty"`
}

// Result is the per-channel fit-result container the plotting operations
// read. Trace arrays share one length, frequency arrays another. Frequencies
// follow the usual FFT bin layout (DC, positive ascending, then negative).
type Result struct {
	Time      []float64  `json:"time"`
	TMean     []float64  `json:"tmean"`
	Offset    float64    `json:"offset"`
	OffsetErr float64    `json:"offset_err,omitempty"`
	Freq      []float64  `json:"freq"`
	DIDVMean  []Complex  `json:"didvmean"`
	DIDVStd   []Complex  `json:"didvstd"`
	Rshunt    float64    `json:"rshunt"`
	SGAmp     float64    `json:"sgamp"`
	SGFreq    float64    `json:"sgfreq"`
	DutyCycle float64    `json:"dutycycle"`
	Fit1      *FitResult `json:"fit_1pole,omitempty"`
	Fit2      *FitResult `json:"fit_2pole,omitempty"`
	Fit3      *FitResult `json:"fit_3pole,omitempty"`
}

// FitResult returns the stored fit for the given pole count, or nil when that
// fit was not run (or poles is out of range).
func (r *Result) FitResult(poles int) *FitResult {
	switch poles {
	case 1:
		return r.Fit1
	case 2:
		return r.Fit2
	case 3:
		return r.Fit3
	}
	return nil
}

// BestFit returns the stored fit with the smallest cost. Ties go to the
// lowest pole count. Nil when no fit is stored at all.
func (r *Result) BestFit() *FitResult {
	var best *FitResult
	for poles := 1; poles <= 3; poles++ {
		fr := r.FitResult(poles)
		if fr == nil {
			continue
		}
		if best == nil || fr.Cost < best.Cost {
			best = fr
		}
	}
	return best
}

// BestDT is the best fit's time offset; zero when no fit is stored, so
// time-domain charts fall back to unshifted windows.
func (r *Result) BestDT() float64 {
	if fr := r.BestFit(); fr != nil {
		return fr.Params.DT
	}
	return 0
}

// Period returns the duration of one square-wave drive cycle in seconds.
func (r *Result) Period() float64 {
	if r.SGFreq <= 0 {
		return 0
	}
	return 1.0 / r.SGFreq
}

// Validate checks the array shapes and scalars a well-formed result must
// have before it is worth plotting.
func (r *Result) Validate() error {
	if len(r.Time) == 0 || len(r.TMean) != len(r.Time) {
		return fmt.Errorf("trace arrays mismatched: time=%d tmean=%d", len(r.Time), len(r.TMean))
	}
	if len(r.Freq) == 0 || len(r.DIDVMean) != len(r.Freq) || len(r.DIDVStd) != len(r.Freq) {
		return fmt.Errorf("frequency arrays mismatched: freq=%d didvmean=%d didvstd=%d",
			len(r.Freq), len(r.DIDVMean), len(r.DIDVStd))
	}
	if r.SGFreq <= 0 {
		return fmt.Errorf("sgfreq must be positive, got %g", r.SGFreq)
	}
	return nil
}

// SelectPoles parses the user-facing poles selector: "all" (or empty) yields
// [1 2 3]; otherwise a comma-separated list of pole counts such as "2,3".
// Order is preserved; duplicates and counts outside 1..3 are rejected.
func SelectPoles(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return []int{1, 2, 3}, nil
	}
	var out []int
	seen := map[int]bool{}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid poles selector %q: %w", s, err)
		}
		if n < 1 || n > 3 {
			return nil, fmt.Errorf("invalid pole count %d: must be 1, 2 or 3", n)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate pole count %d in selector %q", n, s)
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty poles selector %q", s)
	}
	return out, nil
}

// Meta holds environment and provenance metadata for one stored result
// (strongly typed; schema versioned).
type Meta struct {
	TimestampUTC  string  `json:"timestamp_utc"`
	Channel       string  `json:"channel,omitempty"`
	Series        string  `json:"series,omitempty"`
	Hostname      string  `json:"hostname,omitempty"`
	Fs            float64 `json:"fs,omitempty"`
	NTraces       int     `json:"ntraces,omitempty"`
	SchemaVersion int     `json:"schema_version"`
}

// Envelope is the strongly-typed root object written as one JSONL line, one
// line per channel/series.
type Envelope struct {
	Meta   *Meta   `json:"meta"`
	Result *Result `json:"didv_result"`
}

var nowFunc = time.Now

// NewMeta fills provenance for a result recorded now on this host.
func NewMeta(channel, series string, fs float64, ntraces int) *Meta {
	host, _ := os.Hostname()
	return &Meta{
		TimestampUTC:  nowFunc().UTC().Format(time.RFC3339Nano),
		Channel:       channel,
		Series:        series,
		Hostname:      host,
		Fs:            fs,
		NTraces:       ntraces,
		SchemaVersion: SchemaVersion,
	}
}

// MaxLineBytes caps one logical JSONL line while scanning, to avoid
// pathological memory spikes on corrupt files. Result lines carry full trace
// arrays and are legitimately large.
const MaxLineBytes = 200 * 1024 * 1024

// LoadResults scans a JSONL results file and returns every envelope whose
// schema version matches. Blank lines and lines that fail to parse are
// skipped with a debug log rather than failing the whole file.
func LoadResults(path string) ([]Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer f.Close()
	Debugf("reading results from %s (schema_version=%d)", path, SchemaVersion)
	// Dynamic reader: one logical line may span multiple internal buffers.
	reader := bufio.NewReader(f)
	var out []Envelope
	lineNo := 0
readLoop:
	for {
		var line []byte
		for {
			part, rerr := reader.ReadBytes('\n')
			if len(part) > 0 {
				if len(line)+len(part) > MaxLineBytes {
					return nil, fmt.Errorf("line %d exceeds %d bytes in %s", lineNo+1, MaxLineBytes, path)
				}
				line = append(line, part...)
			}
			if rerr == nil {
				break
			}
			if errors.Is(rerr, io.EOF) {
				if len(line) == 0 {
					break readLoop
				}
				break
			}
			if errors.Is(rerr, bufio.ErrBufferFull) {
				continue
			}
			Warnf("read warning: %v (file=%s)", rerr, path)
			if len(line) == 0 {
				break readLoop
			}
			break
		}
		lineNo++
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil || env.Meta == nil || env.Result == nil {
			Debugf("skipping line %d of %s: not a result envelope", lineNo, path)
			continue
		}
		if env.Meta.SchemaVersion != SchemaVersion {
			Debugf("skipping line %d of %s: schema_version=%d (want %d)", lineNo, path, env.Meta.SchemaVersion, SchemaVersion)
			continue
		}
		out = append(out, env)
	}
	Infof("loaded %d result(s) from %s", len(out), path)
	return out, nil
}

// FindChannel returns the first envelope for the named channel
// (case-insensitive), or nil when the file has none.
func FindChannel(envs []Envelope, channel string) *Envelope {
	for i := range envs {
		if envs[i].Meta != nil && strings.EqualFold(envs[i].Meta.Channel, channel) {
			return &envs[i]
		}
	}
	return nil
}

// AppendResult marshals one envelope and appends it to path as a single
// JSONL line, creating the file if needed.
func AppendResult(path string, env *Envelope) error {
	if env == nil || env.Meta == nil || env.Result == nil {
		return errors.New("append result: incomplete envelope")
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open results for append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}
