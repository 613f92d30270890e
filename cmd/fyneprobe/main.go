// fyneprobe opens a minimal window showing one synthetic dI/dV chart and
// closes itself after five seconds. Handy for checking that a machine can
// run the viewer (GL drivers, display) before pointing it at real data.
package main

import (
	"fmt"
	"image"
	"math/cmplx"
	"os"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"

	"github.com/pratyush06853/QETpy/src/didv"
	"github.com/pratyush06853/QETpy/src/plotting"
)

func main() {
	fmt.Println("[fyneprobe] starting minimal Fyne app")
	img, err := sampleChart()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[fyneprobe] chart render failed: %v\n", err)
		os.Exit(1)
	}
	a := app.New()
	w := a.NewWindow("Fyne Probe")
	cv := canvas.NewImageFromImage(img)
	cv.FillMode = canvas.ImageFillContain
	cv.SetMinSize(fyne.NewSize(800, 480))
	w.SetContent(cv)
	go func() {
		time.Sleep(5 * time.Second)
		fmt.Println("[fyneprobe] closing window via fyne.Do")
		fyne.Do(func() { w.Close() })
	}()
	w.ShowAndRun()
	fmt.Println("[fyneprobe] exited cleanly")
}

// sampleChart renders the full-trace chart from a small synthetic two-pole
// result, so the probe exercises the chart stack as well as the window.
func sampleChart() (image.Image, error) {
	const (
		n  = 256
		dt = 1.6e-6
	)
	params := didv.FitParams{A: 0.15, B: -0.1, Tau1: 2e-4, Tau2: 1e-6, DT: 1e-6}
	res := &didv.Result{
		Offset:    1e-5,
		Rshunt:    5e-3,
		SGAmp:     20e-6,
		SGFreq:    2.0 / (n * dt),
		DutyCycle: 0.5,
		Fit2:      &didv.FitResult{Poles: 2, Params: params, Cost: 11.5},
	}
	res.Time = make([]float64, n)
	for i := range res.Time {
		res.Time[i] = float64(i) * dt
	}
	model := didv.SquareWaveResponse(res.Time, res.Rshunt, res.SGAmp, res.SGFreq, res.DutyCycle, 2, params)
	res.TMean = make([]float64, n)
	for i := range res.TMean {
		res.TMean[i] = res.Offset + model[i]
	}
	res.Freq = didv.FFTFreq(n, dt)
	res.DIDVMean = make([]didv.Complex, n)
	res.DIDVStd = make([]didv.Complex, n)
	for i, f := range res.Freq {
		m := didv.TwoPoleAdmittance(f, params)
		s := 0.05 * cmplx.Abs(m)
		res.DIDVMean[i] = didv.Complex(m)
		res.DIDVStd[i] = didv.Complex(complex(s, s))
	}
	return plotting.RenderFullTrace(res, plotting.Options{Width: 800, Height: 480})
}
