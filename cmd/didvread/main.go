package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pratyush06853/QETpy/src/didv"
)

func main() {
	var file string
	var logLevel string
	flag.StringVar(&file, "file", didv.DefaultResultsFile, "Path to didv_results.jsonl")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error|silent)")
	flag.Parse()
	didv.SetLogLevel(logLevel)
	envs, err := didv.LoadResults(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Total results: %d\n", len(envs))
	for i := range envs {
		m, r := envs[i].Meta, envs[i].Result
		ch := m.Channel
		if ch == "" {
			ch = "(unnamed)"
		}
		line := fmt.Sprintf("%s series=%s fs=%.0f traces=%d samples=%d", ch, m.Series, m.Fs, m.NTraces, len(r.Time))
		for poles := 1; poles <= 3; poles++ {
			if fr := r.FitResult(poles); fr != nil {
				line += fmt.Sprintf(" cost%d=%.4g", poles, fr.Cost)
			}
		}
		if fr := r.BestFit(); fr != nil {
			line += fmt.Sprintf(" best=%d-pole", fr.Poles)
		} else {
			line += " best=none"
		}
		fmt.Println(line)
	}
}
