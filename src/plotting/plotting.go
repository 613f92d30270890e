// Package plotting renders the standard dI/dV fit diagnostic charts from a
// didv.Result: the averaged trace with pole-fit overlays in time domain
// (full, one period, zoomed, flipped) and the measured admittance against
// the fitted models in frequency domain (real, imaginary, absolute value,
// phase).
//
// Every chart has a Render form returning an image.Image and a Plot form
// that either writes the canonical PNG under Options.SavePath or hands the
// image to the OS viewer.
package plotting

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pratyush06853/QETpy/src/didv"
)

// Chart kinds. They prefix output file names and key the viewer tabs.
const (
	KindFullTrace    = "full_trace"
	KindOnePeriod    = "trace_one_period"
	KindZoomedTrace  = "zoomed_in_trace"
	KindFlippedTrace = "flipped_trace"
	KindReal         = "didv_real"
	KindImag         = "didv_imag"
	KindAbs          = "didv_abs"
	KindPhase        = "didv_phase"
)

// Kinds lists every chart kind in render order.
func Kinds() []string {
	return []string{
		KindFullTrace,
		KindOnePeriod,
		KindZoomedTrace,
		KindFlippedTrace,
		KindReal,
		KindImag,
		KindAbs,
		KindPhase,
	}
}

// FileName returns the canonical output name for a chart kind, e.g.
// "didv_real_run42.png".
func FileName(kind, savename string) string {
	if savename == "" {
		savename = "didv"
	}
	return kind + "_" + savename + ".png"
}

// Options configures the chart operations. The zero value is usable; empty
// fields fall back to defaults.
type Options struct {
	// Poles selects which stored fits to overlay. Empty means all of 1,2,3.
	Poles []int
	// SaveName tags output file names; SavePath is the output directory.
	SaveName string
	SavePath string
	// Save writes the PNG instead of opening the OS image viewer.
	Save bool
	// ZoomFactor is the zoomed-in window width as a fraction of one drive
	// period, centered on the falling edge.
	ZoomFactor float64
	// Chart pixel size.
	Width  int
	Height int
	// Caption overlays a one-line best-fit summary onto the chart.
	Caption bool
}

func (o Options) normalized() Options {
	if len(o.Poles) == 0 {
		o.Poles = []int{1, 2, 3}
	}
	if o.SaveName == "" {
		o.SaveName = "didv"
	}
	if o.SavePath == "" {
		o.SavePath = "."
	}
	if o.ZoomFactor <= 0 {
		o.ZoomFactor = 0.1
	}
	if o.Width <= 0 {
		o.Width = 1000
	}
	if o.Height <= 0 {
		o.Height = 600
	}
	return o
}

// wantPole reports whether a pole count is selected in the options.
func (o Options) wantPole(poles int) bool {
	for _, p := range o.Poles {
		if p == poles {
			return true
		}
	}
	return false
}

// SaveChart encodes img as a PNG file at path.
func SaveChart(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// showImage is swappable so tests can intercept display requests.
var showImage = openWithViewer

// openWithViewer writes img to a temporary PNG and hands it to the OS image
// viewer, non-blocking. The temp file is left behind for the viewer process.
func openWithViewer(img image.Image, kind string) error {
	f, err := os.CreateTemp("", "didv_"+kind+"_*.png")
	if err != nil {
		return fmt.Errorf("temp chart file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close chart file: %w", err)
	}
	didv.Debugf("opening %s in system viewer", f.Name())
	return openFile(f.Name())
}

// openFile opens path with the platform's default handler.
func openFile(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

// finish saves the rendered chart when opts.Save is set, otherwise displays
// it. opts must already be normalized.
func finish(img image.Image, kind string, opts Options) error {
	if opts.Save {
		path := filepath.Join(opts.SavePath, FileName(kind, opts.SaveName))
		if err := SaveChart(img, path); err != nil {
			return err
		}
		didv.Infof("wrote %s", path)
		return nil
	}
	return showImage(img, kind)
}

// PlotFullTrace renders the entire averaged trace with the selected pole
// fits overlaid, then saves or displays it.
func PlotFullTrace(res *didv.Result, opts Options) error {
	opts = opts.normalized()
	img, err := RenderFullTrace(res, opts)
	if err != nil {
		return err
	}
	return finish(img, KindFullTrace, opts)
}

// PlotSinglePeriod renders one drive period of the trace, then saves or
// displays it.
func PlotSinglePeriod(res *didv.Result, opts Options) error {
	opts = opts.normalized()
	img, err := RenderSinglePeriod(res, opts)
	if err != nil {
		return err
	}
	return finish(img, KindOnePeriod, opts)
}

// PlotZoomedTrace renders the zoomed-in window around the trace's falling
// edge, then saves or displays it.
func PlotZoomedTrace(res *didv.Result, opts Options) error {
	opts = opts.normalized()
	img, err := RenderZoomedTrace(res, opts)
	if err != nil {
		return err
	}
	return finish(img, KindZoomedTrace, opts)
}

// PlotFlippedTimes renders the trace against its half-period flipped copy to
// expose drive asymmetry, then saves or displays it.
func PlotFlippedTimes(res *didv.Result, opts Options) error {
	opts = opts.normalized()
	img, err := RenderFlippedTimes(res, opts)
	if err != nil {
		return err
	}
	return finish(img, KindFlippedTrace, opts)
}

// PlotReImDIDV renders the real and imaginary parts of the admittance in
// frequency domain as two charts, then saves or displays both.
func PlotReImDIDV(res *didv.Result, opts Options) error {
	opts = opts.normalized()
	reImg, imImg, err := RenderReIm(res, opts)
	if err != nil {
		return err
	}
	if err := finish(reImg, KindReal, opts); err != nil {
		return err
	}
	return finish(imImg, KindImag, opts)
}

// PlotAbsPhaseDIDV renders the absolute value and phase of the admittance in
// frequency domain as two charts, then saves or displays both.
func PlotAbsPhaseDIDV(res *didv.Result, opts Options) error {
	opts = opts.normalized()
	absImg, phaseImg, err := RenderAbsPhase(res, opts)
	if err != nil {
		return err
	}
	if err := finish(absImg, KindAbs, opts); err != nil {
		return err
	}
	return finish(phaseImg, KindPhase, opts)
}

// SaveAll renders every chart kind and writes the PNGs under opts.SavePath,
// returning the written paths. Used by the CLI's save mode and the viewer's
// export action.
func SaveAll(res *didv.Result, opts Options) ([]string, error) {
	opts = opts.normalized()
	opts.Save = true
	var paths []string
	save := func(img image.Image, kind string) error {
		p := filepath.Join(opts.SavePath, FileName(kind, opts.SaveName))
		if err := SaveChart(img, p); err != nil {
			return err
		}
		didv.Infof("wrote %s", p)
		paths = append(paths, p)
		return nil
	}
	timeSteps := []struct {
		kind   string
		render func(*didv.Result, Options) (image.Image, error)
	}{
		{KindFullTrace, RenderFullTrace},
		{KindOnePeriod, RenderSinglePeriod},
		{KindZoomedTrace, RenderZoomedTrace},
		{KindFlippedTrace, RenderFlippedTimes},
	}
	for _, s := range timeSteps {
		img, err := s.render(res, opts)
		if err != nil {
			return paths, fmt.Errorf("render %s: %w", s.kind, err)
		}
		if err := save(img, s.kind); err != nil {
			return paths, err
		}
	}
	reImg, imImg, err := RenderReIm(res, opts)
	if err != nil {
		return paths, fmt.Errorf("render %s: %w", KindReal, err)
	}
	if err := save(reImg, KindReal); err != nil {
		return paths, err
	}
	if err := save(imImg, KindImag); err != nil {
		return paths, err
	}
	absImg, phaseImg, err := RenderAbsPhase(res, opts)
	if err != nil {
		return paths, fmt.Errorf("render %s: %w", KindAbs, err)
	}
	if err := save(absImg, KindAbs); err != nil {
		return paths, err
	}
	if err := save(phaseImg, KindPhase); err != nil {
		return paths, err
	}
	return paths, nil
}
