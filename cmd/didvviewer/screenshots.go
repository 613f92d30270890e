package main

import (
	"fmt"
	"os"

	"github.com/pratyush06853/QETpy/src/didv"
	"github.com/pratyush06853/QETpy/src/plotting"
)

// screenshotWidthOverride forces the rendered chart width in -screenshots
// mode when set. Tests use it to keep output sizes deterministic.
var screenshotWidthOverride int

// RunScreenshotsMode renders every chart kind for one channel into outDir
// as PNG files, without opening a window. An empty filePath means the
// default results file, an empty channel means the first one in the file.
func RunScreenshotsMode(filePath, outDir, channel, poles string) error {
	if filePath == "" {
		filePath = didv.DefaultResultsFile
	}
	selected, err := didv.SelectPoles(poles)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}
	envs, err := didv.LoadResults(filePath)
	if err != nil {
		return err
	}
	if len(envs) == 0 {
		return fmt.Errorf("no usable results in %s", filePath)
	}
	env := &envs[0]
	if channel != "" {
		env = didv.FindChannel(envs, channel)
		if env == nil {
			return fmt.Errorf("channel %q not found in %s", channel, filePath)
		}
	}

	w, h := chartSize(nil)
	opts := plotting.Options{
		Poles:    selected,
		SaveName: env.Meta.Channel,
		SavePath: outDir,
		Save:     true,
		Width:    w,
		Height:   h,
		Caption:  true,
	}
	paths, err := plotting.SaveAll(env.Result, opts)
	if err != nil {
		return err
	}
	didv.Infof("wrote %d screenshot(s) to %s", len(paths), outDir)
	return nil
}
