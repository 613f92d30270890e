// dIdV plot tool main entrypoint.
//
// Three modes:
//  1. List mode (-list): print every channel/series found in the results file
//     with its best fit, then exit.
//  2. Summary mode (-summary): print the stored fit parameters, costs and
//     fall times for one channel, then exit.
//  3. Render mode (default): draw the standard chart set for one channel and
//     either write PNGs (-save) or open each chart in the system image viewer.
//
// Design notes:
// - Results come from didv_results.jsonl written by the upstream fitting
//   stage, one meta+didv_result envelope per channel/series line.
// - Channel selection: -channel picks by name (case-insensitive); without it
//   the first envelope in the file wins.
// - Dependency direction: main -> plotting for charts; didv for the result
//   container and persistence.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pratyush06853/QETpy/src/didv"
	"github.com/pratyush06853/QETpy/src/plotting"
)

func main() {
	resultsPath := flag.String("results", "./"+didv.DefaultResultsFile, "Path to results JSONL file")
	channel := flag.String("channel", "", "Channel to plot (default: first channel in the file)")
	list := flag.Bool("list", false, "List channels found in the results file and exit")
	summary := flag.Bool("summary", false, "Print a fit summary for the chosen channel and exit")
	polesFlag := flag.String("poles", "all", "Pole fits to overlay: all, or a comma list like 2,3")
	outDir := flag.String("outdir", ".", "Output directory for saved PNGs")
	saveName := flag.String("savename", "", "File-name tag for saved PNGs (default: channel name)")
	save := flag.Bool("save", false, "Write PNGs instead of opening the system image viewer")
	zoom := flag.Float64("zoom", 0.1, "Zoomed-in window width as a fraction of one drive period")
	width := flag.Int("width", 1000, "Chart width in pixels")
	height := flag.Int("height", 600, "Chart height in pixels")
	caption := flag.Bool("caption", false, "Overlay a one-line best-fit summary onto each chart")
	logLevel := flag.String("log-level", "info", "Log level (debug|info|warn|error|silent)")
	flag.Parse()

	didv.SetLogLevel(*logLevel)

	envs, err := didv.LoadResults(*resultsPath)
	if err != nil {
		fmt.Printf("load results: %v\n", err)
		os.Exit(1)
	}
	if len(envs) == 0 {
		fmt.Printf("no results with schema_version=%d in %s\n", didv.SchemaVersion, *resultsPath)
		os.Exit(1)
	}

	if *list {
		printChannels(envs)
		return
	}

	env := &envs[0]
	if *channel != "" {
		env = didv.FindChannel(envs, *channel)
		if env == nil {
			fmt.Printf("channel %q not found in %s (try -list)\n", *channel, *resultsPath)
			os.Exit(1)
		}
	}

	if *summary {
		printSummary(env)
		return
	}

	poles, err := didv.SelectPoles(*polesFlag)
	if err != nil {
		fmt.Printf("poles: %v\n", err)
		os.Exit(1)
	}

	name := *saveName
	if name == "" {
		name = env.Meta.Channel
	}
	opts := plotting.Options{
		Poles:      poles,
		SaveName:   name,
		SavePath:   *outDir,
		Save:       *save,
		ZoomFactor: *zoom,
		Width:      *width,
		Height:     *height,
		Caption:    *caption,
	}

	if *save {
		paths, err := plotting.SaveAll(env.Result, opts)
		if err != nil {
			fmt.Printf("save charts: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d charts to %s\n", len(paths), *outDir)
		return
	}

	steps := []struct {
		what string
		plot func(*didv.Result, plotting.Options) error
	}{
		{"full trace", plotting.PlotFullTrace},
		{"single period", plotting.PlotSinglePeriod},
		{"zoomed trace", plotting.PlotZoomedTrace},
		{"flipped trace", plotting.PlotFlippedTimes},
		{"re/im dIdV", plotting.PlotReImDIDV},
		{"abs/phase dIdV", plotting.PlotAbsPhaseDIDV},
	}
	for _, s := range steps {
		if err := s.plot(env.Result, opts); err != nil {
			fmt.Printf("plot %s: %v\n", s.what, err)
			os.Exit(1)
		}
	}
}

// printChannels lists one line per stored envelope.
func printChannels(envs []didv.Envelope) {
	fmt.Printf("%d result(s):\n", len(envs))
	for i := range envs {
		m := envs[i].Meta
		r := envs[i].Result
		best := "none"
		if fr := r.BestFit(); fr != nil {
			best = fmt.Sprintf("%d-pole cost=%.4g", fr.Poles, fr.Cost)
		}
		fmt.Printf("  %-10s series=%s fs=%.0fHz traces=%d sgfreq=%.1fHz best=%s\n",
			m.Channel, m.Series, m.Fs, m.NTraces, r.SGFreq, best)
	}
}

// printSummary dumps the stored fits for one channel, best fit starred.
func printSummary(env *didv.Envelope) {
	m, r := env.Meta, env.Result
	fmt.Printf("channel=%s series=%s recorded=%s host=%s\n", m.Channel, m.Series, m.TimestampUTC, m.Hostname)
	fmt.Printf("fs=%.0fHz traces=%d samples=%d sgfreq=%.2fHz sgamp=%.3gA rshunt=%.3gOhm duty=%.2f\n",
		m.Fs, m.NTraces, len(r.Time), r.SGFreq, r.SGAmp, r.Rshunt, r.DutyCycle)
	fmt.Printf("offset=%.4gA offset_err=%.2g\n", r.Offset, r.OffsetErr)
	best := r.BestFit()
	if best == nil {
		fmt.Println("no pole fits stored")
		return
	}
	for poles := 1; poles <= 3; poles++ {
		fr := r.FitResult(poles)
		if fr == nil {
			continue
		}
		mark := " "
		if fr == best {
			mark = "*"
		}
		p := fr.Params
		fmt.Printf("%s %d-pole: cost=%.6g dt=%.4gs\n", mark, poles, fr.Cost, p.DT)
		fmt.Printf("    A=%.4g B=%.4g C=%.4g tau1=%.4g tau2=%.4g tau3=%.4g\n",
			p.A, p.B, p.C, p.Tau1, p.Tau2, p.Tau3)
		if e := fr.Errors; e != nil {
			fmt.Printf("    sigma: A=%.2g B=%.2g C=%.2g tau1=%.2g tau2=%.2g tau3=%.2g dt=%.2g\n",
				e.A, e.B, e.C, e.Tau1, e.Tau2, e.Tau3, e.DT)
		}
		if len(fr.FallTimes) > 0 {
			parts := make([]string, len(fr.FallTimes))
			for i, ft := range fr.FallTimes {
				parts[i] = fmt.Sprintf("%.4g", ft)
			}
			fmt.Printf("    fall times (s): %s\n", strings.Join(parts, ", "))
		}
	}
}
