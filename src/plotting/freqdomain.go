package plotting

import (
	"fmt"
	"image"
	"math"
	"math/cmplx"

	"github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/gonum/floats"

	"github.com/pratyush06853/QETpy/src/didv"
)

// sigmaCut drops data points whose |mean/std| significance is at or below
// this from the scatter and from y scaling.
const sigmaCut = 2.0

// yBoundFreqCap excludes bins at and above this frequency from y scaling;
// the rolled-off top decade would otherwise flatten the interesting range.
const yBoundFreqCap = 1e5

// freqSelection holds the shared point selection for the frequency charts:
// fit lines run over every positive-frequency bin, the data scatter only
// over the significant ones. dt is the best fit's time offset.
type freqSelection struct {
	fitIdx  []int
	plotIdx []int
	dt      float64
}

func selectFreqPoints(res *didv.Result) freqSelection {
	sel := freqSelection{dt: res.BestDT()}
	for i, f := range res.Freq {
		if f <= 0 {
			continue
		}
		sel.fitIdx = append(sel.fitIdx, i)
		// Zero std: a nonzero mean divides to an infinite ratio and stays in,
		// while a 0/0 bin divides to NaN and drops out on the comparison.
		snr := cmplx.Abs(complex128(res.DIDVMean[i]) / complex128(res.DIDVStd[i]))
		if snr > sigmaCut {
			sel.plotIdx = append(sel.plotIdx, i)
		}
	}
	return sel
}

type freqChartSpec struct {
	kind      string
	title     string
	yName     string
	component func(complex128) float64
	// rotateData applies the best-fit time phase to the measured admittance
	// and its sigma bounds. The fit lines are never rotated.
	rotateData bool
	yRange     func(vals []float64) (float64, float64, bool)
}

// symmetricRange centers the y axis on zero using the larger excursion.
func symmetricRange(vals []float64) (float64, float64, bool) {
	if len(vals) == 0 {
		return 0, 0, false
	}
	bnd := math.Max(floats.Max(vals), -floats.Min(vals))
	if !(bnd > 0) || math.IsInf(bnd, 0) {
		return 0, 0, false
	}
	return -bnd, bnd, true
}

func absRange(vals []float64) (float64, float64, bool) {
	if len(vals) == 0 {
		return 0, 0, false
	}
	hi := floats.Max(vals)
	if !(hi > 0) || math.IsInf(hi, 0) {
		return 0, 0, false
	}
	return 0, hi, true
}

func phaseRange([]float64) (float64, float64, bool) {
	return -math.Pi, math.Pi, true
}

var (
	reChart = freqChartSpec{
		kind:       KindReal,
		title:      "Real Part of dIdV",
		yName:      "Re(dI/dV) (1/Ω)",
		component:  func(c complex128) float64 { return real(c) },
		rotateData: true,
		yRange:     symmetricRange,
	}
	imChart = freqChartSpec{
		kind:       KindImag,
		title:      "Imaginary Part of dIdV",
		yName:      "Im(dI/dV) (1/Ω)",
		component:  func(c complex128) float64 { return imag(c) },
		rotateData: true,
		yRange:     symmetricRange,
	}
	absChart = freqChartSpec{
		kind:      KindAbs,
		title:     "|dIdV|",
		yName:     "Abs(dI/dV) (1/Ω)",
		component: cmplx.Abs,
		yRange:    absRange,
	}
	phaseChart = freqChartSpec{
		kind:       KindPhase,
		title:      "Phase of dIdV",
		yName:      "Arg(dI/dV)",
		component:  cmplx.Phase,
		rotateData: true,
		yRange:     phaseRange,
	}
)

// RenderReIm draws the real and imaginary parts of the measured admittance
// against the selected pole fits, as two separate charts.
func RenderReIm(res *didv.Result, opts Options) (image.Image, image.Image, error) {
	return renderFreqPair(res, opts, reChart, imChart)
}

// RenderAbsPhase draws the magnitude and phase of the measured admittance
// against the selected pole fits, as two separate charts.
func RenderAbsPhase(res *didv.Result, opts Options) (image.Image, image.Image, error) {
	return renderFreqPair(res, opts, absChart, phaseChart)
}

func renderFreqPair(res *didv.Result, opts Options, a, b freqChartSpec) (image.Image, image.Image, error) {
	if res == nil {
		return nil, nil, fmt.Errorf("render %s: nil result", a.kind)
	}
	if err := res.Validate(); err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", a.kind, err)
	}
	opts = opts.normalized()
	sel := selectFreqPoints(res)
	imgA, err := renderFreqChart(res, opts, sel, a)
	if err != nil {
		return nil, nil, err
	}
	imgB, err := renderFreqChart(res, opts, sel, b)
	if err != nil {
		return nil, nil, err
	}
	return imgA, imgB, nil
}

// renderFreqChart draws one frequency-domain chart: the significant data
// points as a blue scatter, their 1-sigma bounds as faint black lines, and
// one admittance line per selected pole fit, on a log frequency axis.
func renderFreqChart(res *didv.Result, opts Options, sel freqSelection, spec freqChartSpec) (image.Image, error) {
	if len(sel.fitIdx) == 0 {
		return nil, fmt.Errorf("render %s: no positive frequency bins", spec.kind)
	}

	var (
		dataX, dataY []float64
		upY, loY     []float64
		scaleVals    []float64
	)
	for _, i := range sel.plotIdx {
		ph := complex128(1)
		if spec.rotateData {
			ph = didv.TimePhase(sel.dt, res.Freq[i])
		}
		m := complex128(res.DIDVMean[i])
		s := complex128(res.DIDVStd[i])
		v := spec.component(m * ph)
		dataX = append(dataX, res.Freq[i])
		dataY = append(dataY, v)
		upY = append(upY, spec.component((m+s)*ph))
		loY = append(loY, spec.component((m-s)*ph))
		if res.Freq[i] < yBoundFreqCap {
			scaleVals = append(scaleVals, v)
		}
	}

	series := []chart.Series{}
	if len(dataX) >= 2 {
		series = append(series,
			chart.ContinuousSeries{Name: "Mean", XValues: dataX, YValues: dataY, Style: pointStyle(colorScatter)},
			chart.ContinuousSeries{Name: "1-σ Bounds", XValues: dataX, YValues: upY, Style: faintLineStyle(colorSigma)},
			chart.ContinuousSeries{XValues: dataX, YValues: loY, Style: faintLineStyle(colorSigma)},
		)
	} else {
		didv.Warnf("%s: only %d significant data point(s); plotting fits alone", spec.kind, len(dataX))
	}

	for poles := 1; poles <= 3; poles++ {
		if !opts.wantPole(poles) {
			continue
		}
		fr := res.FitResult(poles)
		if fr == nil {
			continue
		}
		xs := make([]float64, 0, len(sel.fitIdx))
		ys := make([]float64, 0, len(sel.fitIdx))
		for _, i := range sel.fitIdx {
			xs = append(xs, res.Freq[i])
			ys = append(ys, spec.component(didv.ComplexAdmittance(res.Freq[i], poles, fr.Params)))
		}
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    poleLabels[poles],
			XValues: xs,
			YValues: ys,
			Style:   lineStyle(poleColors[poles]),
		})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("render %s: nothing to plot", spec.kind)
	}

	fmin := res.Freq[sel.fitIdx[0]]
	fmax := fmin
	for _, i := range sel.fitIdx {
		f := res.Freq[i]
		if f < fmin {
			fmin = f
		}
		if f > fmax {
			fmax = f
		}
	}

	var yAxisRange chart.Range
	var yTicks []chart.Tick
	if lo, hi, ok := spec.yRange(scaleVals); ok {
		yAxisRange = &chart.ContinuousRange{Min: lo, Max: hi}
		yTicks = rangeTicks(lo, hi, 6)
	} else {
		didv.Debugf("%s: no significant bins below %g Hz; auto y range", spec.kind, float64(yBoundFreqCap))
	}

	ch := chart.Chart{
		Title:      spec.title,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 28}},
		XAxis: chart.XAxis{
			Name:           "Frequency (Hz)",
			Range:          &chart.LogarithmicRange{Min: fmin, Max: fmax},
			ValueFormatter: freqTickFormatter,
			GridMajorStyle: gridSolid,
			GridMinorStyle: gridDotted,
		},
		YAxis: chart.YAxis{
			Name:           spec.yName,
			Range:          yAxisRange,
			Ticks:          yTicks,
			GridMajorStyle: gridSolid,
		},
		Series: series,
	}
	ch.Width = opts.Width
	ch.Height = opts.Height
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	img := renderPNG(&ch, spec.kind)
	if opts.Caption {
		img = drawCaption(img, captionText(res))
	}
	return img, nil
}
