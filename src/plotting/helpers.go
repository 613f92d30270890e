package plotting

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sort"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/pratyush06853/QETpy/src/didv"
)

// Series palette. The pole colors carry a slight transparency so the black
// mean trace stays visible underneath the fit overlays.
var (
	colorMean    = chart.ColorBlack
	colorFlipped = drawing.Color{R: 0, G: 0, B: 255, A: 255}
	colorScatter = drawing.Color{R: 0, G: 0, B: 255, A: 255}
	colorSigma   = drawing.Color{R: 0, G: 0, B: 0, A: 26}

	poleColors = map[int]drawing.Color{
		1: {R: 255, G: 0, B: 255, A: 230},
		2: {R: 0, G: 128, B: 0, A: 230},
		3: {R: 255, G: 165, B: 0, A: 230},
	}
	poleLabels = map[int]string{
		1: "1-Pole Fit",
		2: "2-Pole Fit",
		3: "3-Pole Fit",
	}
)

var (
	gridSolid = chart.Style{
		StrokeColor: drawing.Color{R: 0, G: 0, B: 0, A: 48},
		StrokeWidth: 1.0,
	}
	gridDotted = chart.Style{
		StrokeColor:     drawing.Color{R: 0, G: 0, B: 0, A: 64},
		StrokeWidth:     1.0,
		StrokeDashArray: []float64{1.0, 2.5},
	}
)

func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    3,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2.0,
	}
}

func faintLineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 1.5,
	}
}

// niceAxisBounds expands [min,max] by a small margin and rounds to "nice"
// numbers for readability.
func niceAxisBounds(min, max float64) (float64, float64) {
	if math.IsNaN(min) || math.IsNaN(max) {
		return min, max
	}
	if max <= min {
		max = min + 1
	}
	span := max - min
	// 5% margin on both sides
	pad := span * 0.05
	if pad <= 0 {
		pad = 1
	}
	a := min - pad
	b := max + pad
	mag := math.Pow(10, math.Floor(math.Log10(span)))
	if !math.IsInf(mag, 0) && mag > 0 {
		a = math.Floor(a/mag) * mag
		b = math.Ceil(b/mag) * mag
	}
	return a, b
}

// niceStep picks a readable tick increment so roughly n ticks span [min,max].
func niceStep(min, max float64, n int) float64 {
	span := max - min
	mag := math.Pow(10, math.Floor(math.Log10(span/float64(n-1))))
	candidates := []float64{1, 2, 2.5, 5, 10}
	bestStep := mag
	bestScore := math.MaxFloat64
	for _, c := range candidates {
		step := c * mag
		count := math.Ceil((max - min) / step)
		if count < 2 {
			count = 2
		}
		score := math.Abs(count - float64(n))
		if score < bestScore {
			bestScore = score
			bestStep = step
		}
	}
	return bestStep
}

// niceTicks generates up to n desired tick marks between [min, max] using
// nice increments. Ticks may land just outside the interval; pair with
// niceAxisBounds.
func niceTicks(min, max float64, n int) []chart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) {
		return nil
	}
	if max <= min {
		max = min + 1
	}
	step := niceStep(min, max, n)
	start := math.Floor(min/step) * step
	end := math.Ceil(max/step) * step
	ticks := []chart.Tick{}
	for v := start; v <= end+step/2; v += step {
		ticks = append(ticks, chart.Tick{Value: v, Label: formatTick(v)})
		if len(ticks) > n+2 {
			break
		}
	}
	return ticks
}

// rangeTicks is like niceTicks but never emits a tick outside [min, max],
// for axes whose range is a hard window rather than a padded hull.
func rangeTicks(min, max float64, n int) []chart.Tick {
	if n < 2 || math.IsNaN(min) || math.IsNaN(max) || max <= min {
		return nil
	}
	step := niceStep(min, max, n)
	start := math.Ceil(min/step) * step
	eps := step * 1e-9
	ticks := []chart.Tick{}
	for v := start; v <= max+eps; v += step {
		ticks = append(ticks, chart.Tick{Value: v, Label: formatTick(v)})
		if len(ticks) > n+2 {
			break
		}
	}
	if len(ticks) < 2 {
		return []chart.Tick{
			{Value: min, Label: formatTick(min)},
			{Value: max, Label: formatTick(max)},
		}
	}
	return ticks
}

func formatTick(v float64) string {
	if v == 0 {
		return "0"
	}
	av := math.Abs(v)
	switch {
	case av >= 1000:
		return fmt.Sprintf("%.0f", v)
	case av >= 100:
		return fmt.Sprintf("%.0f", v)
	case av >= 10:
		return fmt.Sprintf("%.1f", v)
	case av >= 0.01:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%.2g", v)
	}
}

// freqTickFormatter labels the logarithmic frequency axis at each decade.
func freqTickFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	if f >= 10000 {
		return fmt.Sprintf("%.0e", f)
	}
	return fmt.Sprintf("%.0f", f)
}

// windowSlice returns the sub-series of xs/ys whose x lies inside [lo, hi].
// Where the series crosses a window edge an interpolated point is added
// exactly at the edge, so lines meet the frame without drawing past it (the
// chart engine does not clip series to the axis range). xs must be
// ascending. Nil when fewer than two points remain.
func windowSlice(xs, ys []float64, lo, hi float64) ([]float64, []float64) {
	if len(xs) != len(ys) || len(xs) == 0 {
		return nil, nil
	}
	first := sort.SearchFloat64s(xs, lo)
	last := sort.SearchFloat64s(xs, hi)
	var wx, wy []float64
	if first > 0 && first < len(xs) && xs[first] > lo {
		if dx := xs[first] - xs[first-1]; dx > 0 {
			t := (lo - xs[first-1]) / dx
			wx = append(wx, lo)
			wy = append(wy, ys[first-1]+t*(ys[first]-ys[first-1]))
		}
	}
	wx = append(wx, xs[first:last]...)
	wy = append(wy, ys[first:last]...)
	if last > 0 && last < len(xs) && xs[last-1] < hi {
		if dx := xs[last] - xs[last-1]; dx > 0 {
			t := (hi - xs[last-1]) / dx
			wx = append(wx, hi)
			wy = append(wy, ys[last-1]+t*(ys[last]-ys[last-1]))
		}
	}
	if len(wx) < 2 {
		return nil, nil
	}
	return wx, wy
}

// renderPNG renders ch to an image, falling back to a blank canvas when the
// chart engine fails so callers always get a drawable result.
func renderPNG(ch *chart.Chart, kind string) image.Image {
	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		didv.Warnf("%s chart render error: %v; using blank fallback", kind, err)
		return blank(ch.Width, ch.Height)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		didv.Warnf("%s chart decode error: %v; using blank fallback", kind, err)
		return blank(ch.Width, ch.Height)
	}
	return img
}

func blank(w, h int) image.Image {
	if w <= 0 {
		w = 800
	}
	if h <= 0 {
		h = 480
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 18, G: 18, B: 18, A: 255})
		}
	}
	return img
}

// captionText summarizes the winning fit for the caption overlay.
func captionText(res *didv.Result) string {
	fr := res.BestFit()
	if fr == nil {
		return "No pole fits stored"
	}
	return fmt.Sprintf("Best fit: %d-pole, cost=%.4g, dt=%.3g s", fr.Poles, fr.Cost, fr.Params.DT)
}

// drawCaption draws a small caption string onto the provided image near the
// bottom-left, over a translucent backing box.
func drawCaption(img image.Image, text string) image.Image {
	if img == nil || strings.TrimSpace(text) == "" {
		return img
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	pad := 6
	face := basicfont.Face7x13
	textCol := image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	shadowCol := image.NewUniform(color.RGBA{R: 0, G: 0, B: 0, A: 180})
	dr := &font.Drawer{Dst: rgba, Src: textCol, Face: face}
	tw := dr.MeasureString(text).Ceil()
	x := b.Min.X + 8
	y := b.Max.Y - 6
	bg := image.NewUniform(color.RGBA{R: 0, G: 0, B: 0, A: 200})
	rect := image.Rect(x-pad, y-face.Metrics().Ascent.Ceil()-pad, x+tw+pad, y+pad/2)
	draw.Draw(rgba, rect, bg, image.Point{}, draw.Over)
	drShadow := &font.Drawer{Dst: rgba, Src: shadowCol, Face: face, Dot: fixed.Point26_6{X: fixed.I(x + 1), Y: fixed.I(y + 1)}}
	drShadow.DrawString(text)
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(text)
	return rgba
}
