package didv

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// The admittance models below evaluate the small-signal TES circuit response
// to the voltage jitter. dV/dI is built per model and the admittance is its
// reciprocal.

// OnePoleAdmittance evaluates the one-pole complex admittance at freq (Hz):
// dV/dI = A(1 + 2πif·τ2).
func OnePoleAdmittance(freq float64, p FitParams) complex128 {
	wi := complex(0, 2*math.Pi*freq)
	dvdi := complex(p.A, 0) * (1 + wi*complex(p.Tau2, 0))
	return 1 / dvdi
}

// TwoPoleAdmittance evaluates the two-pole complex admittance at freq (Hz):
// dV/dI = A(1 + 2πif·τ2) + B/(1 + 2πif·τ1).
func TwoPoleAdmittance(freq float64, p FitParams) complex128 {
	wi := complex(0, 2*math.Pi*freq)
	dvdi := complex(p.A, 0)*(1+wi*complex(p.Tau2, 0)) +
		complex(p.B, 0)/(1+wi*complex(p.Tau1, 0))
	return 1 / dvdi
}

// ThreePoleAdmittance evaluates the three-pole complex admittance at freq
// (Hz): dV/dI = A(1 + 2πif·τ2) + B/(1 + 2πif·τ1 − C/(1 + 2πif·τ3)).
func ThreePoleAdmittance(freq float64, p FitParams) complex128 {
	wi := complex(0, 2*math.Pi*freq)
	dvdi := complex(p.A, 0)*(1+wi*complex(p.Tau2, 0)) +
		complex(p.B, 0)/(1+wi*complex(p.Tau1, 0)-complex(p.C, 0)/(1+wi*complex(p.Tau3, 0)))
	return 1 / dvdi
}

// ComplexAdmittance dispatches to the model for the given pole count.
// Unsupported pole counts yield NaN.
func ComplexAdmittance(freq float64, poles int, p FitParams) complex128 {
	switch poles {
	case 1:
		return OnePoleAdmittance(freq, p)
	case 2:
		return TwoPoleAdmittance(freq, p)
	case 3:
		return ThreePoleAdmittance(freq, p)
	}
	return complex(math.NaN(), math.NaN())
}

// TimePhase returns the frequency-domain rotation exp(2πi·dt·f) that shifts
// a measured admittance by the fitted time offset dt.
func TimePhase(dt, freq float64) complex128 {
	return cmplx.Exp(complex(0, 2*math.Pi*dt*freq))
}

// FFTFreq returns DFT sample frequencies for n samples spaced d seconds
// apart, in the usual FFT bin layout: DC first, positive frequencies
// ascending, then negative frequencies.
func FFTFreq(n int, d float64) []float64 {
	out := make([]float64, n)
	if n == 0 || d == 0 {
		return out
	}
	scale := 1.0 / (float64(n) * d)
	for i := 0; i < n; i++ {
		k := i
		if i > (n-1)/2 {
			k = i - n
		}
		out[i] = float64(k) * scale
	}
	return out
}

// harmonicTol is the bin-matching tolerance in harmonic-number units. Fit
// traces hold an integer number of drive periods, so harmonics land on FFT
// bins exactly up to float rounding.
const harmonicTol = 1e-8

// SquareWaveResponse synthesizes the time-domain response of a pole fit to
// the duty-cycled square-wave drive, on the trace's own sample grid. The
// drive's DFT is built analytically (coefficients only at bins whose
// frequency is an integer multiple of sgfreq; for a 50% duty cycle only odd
// harmonics survive; the DC bin stays zero), multiplied by the model
// admittance per bin, and inverse transformed. The real part is returned.
func SquareWaveResponse(t []float64, rsh, sgamp, sgfreq, duty float64, poles int, p FitParams) []float64 {
	n := len(t)
	out := make([]float64, n)
	if n < 2 || sgfreq <= 0 {
		return out
	}
	dt := t[1] - t[0]
	freq := FFTFreq(n, dt)
	amp := sgamp * rsh * float64(n)
	coeffs := make([]complex128, n)
	for i, f := range freq {
		hs := f / sgfreq // signed harmonic number
		k := math.Round(math.Abs(hs))
		if k == 0 || math.Abs(math.Abs(hs)-k) > harmonicTol {
			continue
		}
		odd := math.Mod(k, 2) == 1
		if duty == 0.5 {
			if !odd {
				continue
			}
			coeffs[i] = complex(0, 1) / complex(math.Pi*hs, 0) * complex(amp, 0)
		} else {
			coeffs[i] = complex(0, -1) / complex(2*math.Pi*hs, 0) * complex(amp, 0) *
				(cmplx.Exp(complex(0, -2*math.Pi*hs*duty)) - 1)
		}
		coeffs[i] *= ComplexAdmittance(f, poles, p)
	}
	fft := fourier.NewCmplxFFT(n)
	seq := fft.Sequence(nil, coeffs)
	// gonum's inverse transform is unnormalized.
	inv := 1 / float64(n)
	for i, c := range seq {
		out[i] = real(c) * inv
	}
	return out
}

// FitTrace evaluates the stored pole fit's response to this result's drive on
// the result's own time grid. Nil when that fit is absent.
func (r *Result) FitTrace(poles int) []float64 {
	fr := r.FitResult(poles)
	if fr == nil {
		return nil
	}
	return SquareWaveResponse(r.Time, r.Rshunt, r.SGAmp, r.SGFreq, r.DutyCycle, poles, fr.Params)
}
