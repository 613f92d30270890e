package plotting

import (
	"fmt"
	"image"
	"math"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/pratyush06853/QETpy/src/didv"
)

type traceMode int

const (
	modeFull traceMode = iota
	modePeriod
	modeZoomed
	modeFlipped
)

func (m traceMode) kind() string {
	switch m {
	case modePeriod:
		return KindOnePeriod
	case modeZoomed:
		return KindZoomedTrace
	case modeFlipped:
		return KindFlippedTrace
	}
	return KindFullTrace
}

func (m traceMode) title() string {
	switch m {
	case modePeriod:
		return "Single Period of Trace"
	case modeZoomed:
		return "Zoomed In Portion of Trace"
	case modeFlipped:
		return "Flipped Traces to Check Asymmetry"
	}
	return "Full Trace of dIdV"
}

// RenderFullTrace draws the whole averaged trace in microseconds and
// microamps with the selected pole fits overlaid.
func RenderFullTrace(res *didv.Result, opts Options) (image.Image, error) {
	return renderTrace(res, opts, modeFull)
}

// RenderSinglePeriod draws one square-wave period of the trace, anchored at
// the trace start.
func RenderSinglePeriod(res *didv.Result, opts Options) (image.Image, error) {
	return renderTrace(res, opts, modePeriod)
}

// RenderZoomedTrace draws a window of ZoomFactor periods centered on the
// drive's falling edge, shifted by the best fit's time offset.
func RenderZoomedTrace(res *didv.Result, opts Options) (image.Image, error) {
	return renderTrace(res, opts, modeZoomed)
}

// RenderFlippedTimes draws the trace together with its half-period shifted,
// sign-flipped copy. For a symmetric response the two curves coincide, so
// any gap exposes nonlinearity.
func RenderFlippedTimes(res *didv.Result, opts Options) (image.Image, error) {
	return renderTrace(res, opts, modeFlipped)
}

type traceSeries struct {
	name  string
	xs    []float64
	ys    []float64
	style chart.Style
}

// renderTrace is the shared core of the four time-domain charts: the mean
// trace in black, one overlay per selected pole fit shifted by its fitted
// dt, and for the flipped mode the inverted half-period copy in blue.
func renderTrace(res *didv.Result, opts Options, mode traceMode) (image.Image, error) {
	if res == nil {
		return nil, fmt.Errorf("render %s: nil result", mode.kind())
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("render %s: %w", mode.kind(), err)
	}
	opts = opts.normalized()

	n := len(res.Time)
	xMean := make([]float64, n)
	yMean := make([]float64, n)
	for i := range res.Time {
		xMean[i] = res.Time[i] * 1e6
		yMean[i] = (res.TMean[i] - res.Offset) * 1e6
	}

	all := []traceSeries{{name: "Mean", xs: xMean, ys: yMean, style: faintLineStyle(colorMean)}}

	for poles := 1; poles <= 3; poles++ {
		if !opts.wantPole(poles) {
			continue
		}
		fr := res.FitResult(poles)
		if fr == nil {
			continue
		}
		fitY := res.FitTrace(poles)
		xs := make([]float64, n)
		ys := make([]float64, n)
		for i := range res.Time {
			xs[i] = (res.Time[i] + fr.Params.DT) * 1e6
			ys[i] = fitY[i] * 1e6
		}
		all = append(all, traceSeries{
			name:  poleLabels[poles],
			xs:    xs,
			ys:    ys,
			style: lineStyle(poleColors[poles]),
		})
	}

	if mode == modeFlipped {
		period := res.Period() * 1e6
		xs := make([]float64, n)
		ys := make([]float64, n)
		for i := range res.Time {
			xs[i] = res.Time[i]*1e6 - period/2
			ys[i] = -yMean[i]
		}
		all = append(all, traceSeries{name: "Flipped Data", xs: xs, ys: ys, style: faintLineStyle(colorFlipped)})
	}

	// Y bounds span the full arrays regardless of the x window, so a
	// stepped-through window keeps the same vertical scale as the full view.
	minY := math.MaxFloat64
	maxY := -math.MaxFloat64
	for _, s := range all {
		for _, v := range s.ys {
			if math.IsNaN(v) {
				continue
			}
			if v < minY {
				minY = v
			}
			if v > maxY {
				maxY = v
			}
		}
	}

	xLo, xHi, exactWindow := traceWindow(mode, opts, res, all)
	if xHi <= xLo {
		return nil, fmt.Errorf("render %s: empty x window [%g, %g]", mode.kind(), xLo, xHi)
	}

	series := make([]chart.Series, 0, len(all))
	for _, s := range all {
		xs, ys := s.xs, s.ys
		if exactWindow {
			xs, ys = windowSlice(xs, ys, xLo, xHi)
			if xs == nil {
				didv.Debugf("%s: series %q has no samples in window [%g, %g] µs", mode.kind(), s.name, xLo, xHi)
				continue
			}
		}
		series = append(series, chart.ContinuousSeries{Name: s.name, XValues: xs, YValues: ys, Style: s.style})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("render %s: no series inside window [%g, %g] µs", mode.kind(), xLo, xHi)
	}

	var yAxisRange chart.Range
	var yTicks []chart.Tick
	if minY != math.MaxFloat64 && maxY != -math.MaxFloat64 {
		if maxY <= minY {
			maxY = minY + 1
		}
		nMin, nMax := niceAxisBounds(minY, maxY)
		yAxisRange = &chart.ContinuousRange{Min: nMin, Max: nMax}
		yTicks = niceTicks(nMin, nMax, 6)
	}

	ch := chart.Chart{
		Title:      mode.title(),
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 28}},
		XAxis: chart.XAxis{
			Name:           "Time (µs)",
			Range:          &chart.ContinuousRange{Min: xLo, Max: xHi},
			Ticks:          rangeTicks(xLo, xHi, 8),
			GridMajorStyle: gridDotted,
		},
		YAxis: chart.YAxis{
			Name:           "Amplitude (µA)",
			Range:          yAxisRange,
			Ticks:          yTicks,
			GridMajorStyle: gridDotted,
		},
		Series: series,
	}
	ch.Width = opts.Width
	ch.Height = opts.Height
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	img := renderPNG(&ch, mode.kind())
	if opts.Caption {
		img = drawCaption(img, captionText(res))
	}
	return img, nil
}

// traceWindow returns the x axis window for a time-domain chart mode. The
// full trace spans exactly the sampled extent, period and zoomed pin their
// hard windows, and flipped autoscales over every series so the half-period
// shifted copy stays in frame. all[0] must be the mean trace.
func traceWindow(mode traceMode, opts Options, res *didv.Result, all []traceSeries) (xLo, xHi float64, exact bool) {
	xMean := all[0].xs
	period := res.Period() * 1e6
	switch mode {
	case modeFull:
		return xMean[0], xMean[len(xMean)-1], true
	case modePeriod:
		return xMean[0], xMean[0] + period, true
	case modeZoomed:
		bestDT := res.BestDT() * 1e6
		half := opts.ZoomFactor / 2 * period
		center := bestDT + xMean[0] + 0.5*period
		return center - half, center + half, true
	}
	xLo = math.MaxFloat64
	xHi = -math.MaxFloat64
	for _, s := range all {
		if len(s.xs) == 0 {
			continue
		}
		if s.xs[0] < xLo {
			xLo = s.xs[0]
		}
		if s.xs[len(s.xs)-1] > xHi {
			xHi = s.xs[len(s.xs)-1]
		}
	}
	xLo, xHi = niceAxisBounds(xLo, xHi)
	return xLo, xHi, false
}
