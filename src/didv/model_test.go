package didv

import (
	"math"
	"math/cmplx"
	"testing"
)

const eps = 1e-12

func TestFFTFreqLayout(t *testing.T) {
	got := FFTFreq(4, 0.25)
	want := []float64{0, 1, -2, -1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > eps {
			t.Fatalf("FFTFreq(4, 0.25)[%d]: got %v want %v", i, got[i], want[i])
		}
	}
	got = FFTFreq(5, 0.1)
	want = []float64{0, 2, 4, -4, -2}
	for i := range want {
		if math.Abs(got[i]-want[i]) > eps {
			t.Fatalf("FFTFreq(5, 0.1)[%d]: got %v want %v", i, got[i], want[i])
		}
	}
	if got := FFTFreq(0, 1); len(got) != 0 {
		t.Fatalf("FFTFreq(0, 1): expected empty, got %v", got)
	}
	for _, v := range FFTFreq(3, 0) {
		if v != 0 {
			t.Fatalf("FFTFreq with zero spacing should stay zero, got %v", v)
		}
	}
}

func TestOnePoleAdmittance(t *testing.T) {
	p := FitParams{A: 2, Tau2: 1 / (2 * math.Pi * 1000)}
	// DC: dV/dI = A.
	if got := OnePoleAdmittance(0, p); cmplx.Abs(got-complex(0.5, 0)) > eps {
		t.Fatalf("DC admittance: got %v want 0.5", got)
	}
	// At f = 1 kHz the chosen tau2 makes dV/dI = A(1+i), so the admittance
	// is (1-i)/(2A).
	if got := OnePoleAdmittance(1000, p); cmplx.Abs(got-complex(0.25, -0.25)) > eps {
		t.Fatalf("1 kHz admittance: got %v want (0.25-0.25i)", got)
	}
}

func TestTwoPoleAdmittance(t *testing.T) {
	p := FitParams{A: 1, B: 2, Tau1: 1 / (2 * math.Pi * 1000)}
	// DC: dV/dI = A+B.
	if got := TwoPoleAdmittance(0, p); cmplx.Abs(got-complex(1.0/3.0, 0)) > eps {
		t.Fatalf("DC admittance: got %v want 1/3", got)
	}
	// At f = 1 kHz: dV/dI = 1 + 2/(1+i) = 2-i, admittance (2+i)/5.
	if got := TwoPoleAdmittance(1000, p); cmplx.Abs(got-complex(0.4, 0.2)) > eps {
		t.Fatalf("1 kHz admittance: got %v want (0.4+0.2i)", got)
	}
}

func TestThreePoleAdmittance(t *testing.T) {
	p := FitParams{A: 1, B: 2, C: 0.5, Tau1: 1 / (2 * math.Pi * 1000)}
	// DC: dV/dI = A + B/(1-C) = 5.
	if got := ThreePoleAdmittance(0, p); cmplx.Abs(got-complex(0.2, 0)) > eps {
		t.Fatalf("DC admittance: got %v want 0.2", got)
	}
	// At f = 1 kHz: dV/dI = 1 + 2/(0.5+i) = 1.8-1.6i, so the admittance is
	// (1.8+1.6i)/5.8.
	want := complex(0.3103448275862069, 0.27586206896551724)
	if got := ThreePoleAdmittance(1000, p); cmplx.Abs(got-want) > eps {
		t.Fatalf("1 kHz admittance: got %v want %v", got, want)
	}
}

func TestComplexAdmittanceDispatch(t *testing.T) {
	p := FitParams{A: 1, B: 2, C: 0.5, Tau1: 1e-4, Tau2: 1e-6, Tau3: 1e-3}
	f := 2500.0
	if got, want := ComplexAdmittance(f, 1, p), OnePoleAdmittance(f, p); got != want {
		t.Fatalf("1-pole dispatch: got %v want %v", got, want)
	}
	if got, want := ComplexAdmittance(f, 2, p), TwoPoleAdmittance(f, p); got != want {
		t.Fatalf("2-pole dispatch: got %v want %v", got, want)
	}
	if got, want := ComplexAdmittance(f, 3, p), ThreePoleAdmittance(f, p); got != want {
		t.Fatalf("3-pole dispatch: got %v want %v", got, want)
	}
	if got := ComplexAdmittance(f, 4, p); !math.IsNaN(real(got)) || !math.IsNaN(imag(got)) {
		t.Fatalf("unsupported pole count should yield NaN, got %v", got)
	}
}

func TestTimePhase(t *testing.T) {
	if got := TimePhase(0, 125000); got != 1 {
		t.Fatalf("zero offset phase: got %v want 1", got)
	}
	// 2*pi*dt*f = pi/2 rotates by i.
	if got := TimePhase(1e-6, 250000); cmplx.Abs(got-complex(0, 1)) > eps {
		t.Fatalf("quarter-turn phase: got %v want i", got)
	}
	if got := cmplx.Abs(TimePhase(3.7e-7, 81234)); math.Abs(got-1) > eps {
		t.Fatalf("phase magnitude: got %v want 1", got)
	}
}

// timeGrid builds n samples spaced dt apart starting at zero.
func timeGrid(n int, dt float64) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) * dt
	}
	return ts
}

func TestSquareWaveResponse_FlatAdmittance(t *testing.T) {
	// Two full drive periods, 128 samples each. With tau2=0 the 1-pole
	// admittance is a flat 1/A, so the response is the band-limited
	// square-wave drive scaled by 1/A: plateaus at -/+ sgamp*rsh/(2A),
	// negative during the first half period.
	const (
		n  = 256
		dt = 1e-5
	)
	ts := timeGrid(n, dt)
	sgfreq := 2 / (float64(n) * dt)
	out := SquareWaveResponse(ts, 1, 1, sgfreq, 0.5, 1, FitParams{A: 2})
	if len(out) != n {
		t.Fatalf("output length: got %d want %d", len(out), n)
	}

	var sum float64
	for _, v := range out {
		sum += v
	}
	if math.Abs(sum/float64(n)) > 1e-9 {
		t.Fatalf("response mean: got %v want 0 (DC bin excluded)", sum/float64(n))
	}

	// Plateau centers, well away from the transitions.
	if math.Abs(out[32]-(-0.25)) > 0.01 {
		t.Fatalf("first plateau: got %v want -0.25", out[32])
	}
	if math.Abs(out[96]-0.25) > 0.01 {
		t.Fatalf("second plateau: got %v want +0.25", out[96])
	}

	// Odd harmonics only: shifting by half a period flips the sign.
	for j := 0; j < 64; j++ {
		if math.Abs(out[j+64]+out[j]) > 1e-9 {
			t.Fatalf("half-period antisymmetry broken at %d: %v vs %v", j, out[j+64], out[j])
		}
	}
	// All harmonics are integer multiples of the drive, so the trace
	// repeats exactly.
	for j := 0; j < 128; j++ {
		if math.Abs(out[j+128]-out[j]) > 1e-9 {
			t.Fatalf("periodicity broken at %d: %v vs %v", j, out[j+128], out[j])
		}
	}
}

func TestSquareWaveResponse_DutyCycle(t *testing.T) {
	// A 25% duty cycle with DC removed sits at -(1-duty)*sgamp*rsh during
	// the on plateau and +duty*sgamp*rsh during the off plateau, again
	// scaled by the flat 1/A admittance.
	const (
		n  = 512
		dt = 1e-5
	)
	ts := timeGrid(n, dt)
	sgfreq := 2 / (float64(n) * dt)
	out := SquareWaveResponse(ts, 1, 1, sgfreq, 0.25, 1, FitParams{A: 2})

	var sum float64
	for _, v := range out {
		sum += v
	}
	if math.Abs(sum/float64(n)) > 1e-9 {
		t.Fatalf("response mean: got %v want 0", sum/float64(n))
	}
	// Period is 256 samples; the duty plateau spans samples 0..63.
	if math.Abs(out[32]-(-0.375)) > 0.02 {
		t.Fatalf("on plateau: got %v want -0.375", out[32])
	}
	if math.Abs(out[160]-0.125) > 0.02 {
		t.Fatalf("off plateau: got %v want +0.125", out[160])
	}
	for j := 0; j < 256; j++ {
		if math.Abs(out[j+256]-out[j]) > 1e-9 {
			t.Fatalf("periodicity broken at %d: %v vs %v", j, out[j+256], out[j])
		}
	}
}

func TestSquareWaveResponse_NonCommensurateDrive(t *testing.T) {
	// When no FFT bin lands on a harmonic of the drive the synthesized
	// response is identically zero.
	const (
		n  = 64
		dt = 1e-5
	)
	ts := timeGrid(n, dt)
	sgfreq := math.Sqrt2 / (float64(n) * dt)
	for i, v := range SquareWaveResponse(ts, 1, 1, sgfreq, 0.5, 1, FitParams{A: 2}) {
		if v != 0 {
			t.Fatalf("expected zero response, got %v at %d", v, i)
		}
	}
}

func TestSquareWaveResponse_DegenerateInputs(t *testing.T) {
	if out := SquareWaveResponse(nil, 1, 1, 100, 0.5, 1, FitParams{A: 1}); len(out) != 0 {
		t.Fatalf("nil time grid: expected empty output")
	}
	out := SquareWaveResponse([]float64{0}, 1, 1, 100, 0.5, 1, FitParams{A: 1})
	if len(out) != 1 || out[0] != 0 {
		t.Fatalf("single sample: expected [0], got %v", out)
	}
	out = SquareWaveResponse(timeGrid(8, 1e-5), 1, 1, 0, 0.5, 1, FitParams{A: 1})
	for _, v := range out {
		if v != 0 {
			t.Fatalf("zero sgfreq: expected zero output, got %v", v)
		}
	}
}

func TestFitTrace(t *testing.T) {
	r := &Result{
		Time:   timeGrid(128, 1e-5),
		Rshunt: 5e-3,
		SGAmp:  20e-6,
		SGFreq: 2 / (128 * 1e-5),
		Fit1:   &FitResult{Poles: 1, Params: FitParams{A: 0.2}, Cost: 3},
	}
	r.DutyCycle = 0.5
	if got := r.FitTrace(2); got != nil {
		t.Fatalf("absent fit should yield nil, got %v", got)
	}
	trace := r.FitTrace(1)
	if len(trace) != len(r.Time) {
		t.Fatalf("trace length: got %d want %d", len(trace), len(r.Time))
	}
	var peak float64
	for _, v := range trace {
		if math.Abs(v) > peak {
			peak = math.Abs(v)
		}
	}
	// Plateau magnitude is sgamp*rsh/(2A) = 2.5e-7; ringing from the
	// band-limited drive can overshoot that by up to a fifth.
	if peak < 2.3e-7 || peak > 3.2e-7 {
		t.Fatalf("trace peak out of range: %v", peak)
	}
}
