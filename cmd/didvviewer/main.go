// dIdV viewer: a small desktop GUI to browse didv_results.jsonl files and
// inspect the standard calibration charts per channel.
//
// Modes:
//  1. Default: open a window with one tab per chart kind, a channel
//     selector, pole-fit toggles and a zoom slider.
//  2. -screenshots: render every chart tab headlessly into PNG files (used
//     to refresh the docs); see screenshots.go.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/pratyush06853/QETpy/cmd/didvviewer/uihelpers"
	"github.com/pratyush06853/QETpy/src/didv"
	"github.com/pratyush06853/QETpy/src/plotting"
)

// uiState groups the loaded results, the render settings and the widgets
// that need refreshing when either changes.
type uiState struct {
	app    fyne.App
	window fyne.Window

	// data
	filePath string
	envs     []didv.Envelope
	channel  string
	res      *didv.Result

	// render settings
	showPole1 bool
	showPole2 bool
	showPole3 bool
	zoom      float64
	caption   bool

	// widgets
	channelSelect *widget.Select
	zoomLabel     *widget.Label
	statusLabel   *widget.Label
	tabs          *container.AppTabs
	chartCanvases map[string]*canvas.Image
}

// dark theme wrapper
type darkTheme struct{}

func (d *darkTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}
func (d *darkTheme) Font(style fyne.TextStyle) fyne.Resource { return theme.DefaultTheme().Font(style) }
func (d *darkTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}
func (d *darkTheme) Size(name fyne.ThemeSizeName) float32 { return theme.DefaultTheme().Size(name) }

func main() {
	var (
		fileFlag    string
		channelFlag string
		polesFlag   string
		shots       bool
		shotsDir    string
		logLevel    string
	)
	flag.StringVar(&fileFlag, "file", "", "Path to didv_results.jsonl")
	flag.StringVar(&channelFlag, "channel", "", "Channel to show at startup (default: first in the file)")
	flag.StringVar(&polesFlag, "poles", "all", "Pole fits to overlay in -screenshots mode: all, or a comma list like 2,3")
	flag.BoolVar(&shots, "screenshots", false, "Render every chart to PNG files headlessly, then exit")
	flag.StringVar(&shotsDir, "screenshot-dir", "docs/screenshots", "Output directory for -screenshots")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error|silent)")
	flag.Parse()

	didv.SetLogLevel(logLevel)

	if shots {
		if err := RunScreenshotsMode(fileFlag, shotsDir, channelFlag, polesFlag); err != nil {
			fmt.Fprintf(os.Stderr, "screenshots: %v\n", err)
			os.Exit(1)
		}
		return
	}

	a := app.NewWithID("com.qetpy.didvviewer")
	a.Settings().SetTheme(&darkTheme{})
	w := a.NewWindow("dIdV Viewer")
	w.Resize(fyne.NewSize(1100, 800))

	state := &uiState{
		app:       a,
		window:    w,
		filePath:  fileFlag,
		channel:   channelFlag,
		showPole1: true,
		showPole2: true,
		showPole3: true,
		zoom:      0.1,
		caption:   true,
	}

	// top bar controls; callbacks are wired after the chart canvases exist
	fileLabel := widget.NewLabel(truncatePath(state.filePath, 60))
	channelSelect := widget.NewSelect([]string{}, nil)
	channelSelect.PlaceHolder = "Channel"
	state.channelSelect = channelSelect

	pole1Chk := widget.NewCheck("1-Pole", nil)
	pole2Chk := widget.NewCheck("2-Pole", nil)
	pole3Chk := widget.NewCheck("3-Pole", nil)
	captionChk := widget.NewCheck("Caption", nil)

	zoomSlider := widget.NewSlider(0.01, 1.0)
	zoomSlider.Step = 0.01
	zoomSlider.Value = state.zoom
	state.zoomLabel = widget.NewLabel(uihelpers.FormatZoomLabel(state.zoom))
	state.statusLabel = widget.NewLabel("No results loaded")

	// one tab per chart kind
	state.chartCanvases = map[string]*canvas.Image{}
	var tabItems []*container.TabItem
	for _, tk := range uihelpers.TabKinds() {
		cv := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 100, 60)))
		cv.FillMode = canvas.ImageFillContain
		cv.SetMinSize(fyne.NewSize(900, 540))
		state.chartCanvases[tk.Kind] = cv
		tabItems = append(tabItems, container.NewTabItem(tk.Title, container.NewScroll(cv)))
	}
	tabs := container.NewAppTabs(tabItems...)
	tabs.SetTabLocation(container.TabLocationTop)
	// persist selected tab on change
	tabs.OnSelected = func(ti *container.TabItem) {
		if state != nil && state.app != nil {
			state.app.Preferences().SetInt("selectedTabIndex", tabs.SelectedIndex())
		}
	}
	state.tabs = tabs

	// layout
	top := container.NewVBox(
		container.NewHBox(
			widget.NewButton("Open…", func() { openFileDialog(state, fileLabel) }),
			widget.NewButton("Reload", func() { loadAll(state, fileLabel) }),
			widget.NewButton("Export All PNGs…", func() { exportAllPNGs(state) }),
			widget.NewLabel("Channel:"), channelSelect,
			widget.NewLabel("File:"), fileLabel,
		),
		container.NewHBox(
			pole1Chk, pole2Chk, pole3Chk, captionChk,
			widget.NewLabel("Zoom:"),
			container.NewGridWrap(fyne.NewSize(200, 36), zoomSlider),
			state.zoomLabel,
			state.statusLabel,
		),
	)
	content := container.NewBorder(top, nil, nil, nil, tabs)
	w.SetContent(content)

	// Redraw charts on window resize so they scale with width
	if w.Canvas() != nil {
		prevW := int(w.Canvas().Size().Width)
		done := make(chan struct{})
		w.SetOnClosed(func() {
			savePrefs(state)
			close(done)
		})
		go func() {
			t := time.NewTicker(300 * time.Millisecond)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					c := w.Canvas()
					if c == nil {
						continue
					}
					curW := int(c.Size().Width)
					if curW != prevW {
						prevW = curW
						fyne.Do(func() { redrawCharts(state) })
					}
				}
			}
		}()
	}

	// Now that canvases are ready, assign the control callbacks
	channelSelect.OnChanged = func(v string) {
		if v == "" || strings.EqualFold(v, state.channel) {
			return
		}
		selectChannel(state, v)
		savePrefs(state)
		redrawCharts(state)
	}
	pole1Chk.OnChanged = func(b bool) { state.showPole1 = b; savePrefs(state); redrawCharts(state) }
	pole2Chk.OnChanged = func(b bool) { state.showPole2 = b; savePrefs(state); redrawCharts(state) }
	pole3Chk.OnChanged = func(b bool) { state.showPole3 = b; savePrefs(state); redrawCharts(state) }
	captionChk.OnChanged = func(b bool) { state.caption = b; savePrefs(state); redrawCharts(state) }
	zoomSlider.OnChanged = func(v float64) {
		state.zoom = uihelpers.ClampZoom(v)
		state.zoomLabel.SetText(uihelpers.FormatZoomLabel(state.zoom))
	}
	zoomSlider.OnChangeEnded = func(v float64) {
		state.zoom = uihelpers.ClampZoom(v)
		state.zoomLabel.SetText(uihelpers.FormatZoomLabel(state.zoom))
		savePrefs(state)
		redrawChart(state, plotting.KindZoomedTrace)
	}

	// menus, prefs, initial load
	buildMenus(state, fileLabel)
	loadPrefs(state, pole1Chk, pole2Chk, pole3Chk, captionChk, zoomSlider, fileLabel, tabs)
	loadAll(state, fileLabel)

	w.ShowAndRun()
}

// selectChannel switches the active channel by name, keeping the stored
// casing from the file.
func selectChannel(state *uiState, channel string) {
	env := didv.FindChannel(state.envs, channel)
	if env == nil {
		didv.Warnf("channel %q not found in %s", channel, state.filePath)
		return
	}
	state.channel = env.Meta.Channel
	state.res = env.Result
	updateStatus(state)
}

// noPoles matches no stored fit. Used when every pole checkbox is off, since
// an empty Options.Poles means "all".
var noPoles = []int{0}

// selectedPoles translates the checkbox state for plotting.Options.
func selectedPoles(state *uiState) []int {
	var out []int
	if state.showPole1 {
		out = append(out, 1)
	}
	if state.showPole2 {
		out = append(out, 2)
	}
	if state.showPole3 {
		out = append(out, 3)
	}
	if len(out) == 0 {
		return noPoles
	}
	return out
}

// renderKind draws one chart kind at the current size, falling back to a
// blank placeholder when there is nothing to draw.
func renderKind(state *uiState, kind string) image.Image {
	cw, chh := chartSize(state)
	if state == nil || state.res == nil {
		return blank(cw, chh)
	}
	opts := plotting.Options{
		Poles:      selectedPoles(state),
		ZoomFactor: state.zoom,
		Width:      cw,
		Height:     chh,
		Caption:    state.caption,
	}
	var (
		img image.Image
		err error
	)
	switch kind {
	case plotting.KindFullTrace:
		img, err = plotting.RenderFullTrace(state.res, opts)
	case plotting.KindOnePeriod:
		img, err = plotting.RenderSinglePeriod(state.res, opts)
	case plotting.KindZoomedTrace:
		img, err = plotting.RenderZoomedTrace(state.res, opts)
	case plotting.KindFlippedTrace:
		img, err = plotting.RenderFlippedTimes(state.res, opts)
	case plotting.KindReal:
		img, _, err = plotting.RenderReIm(state.res, opts)
	case plotting.KindImag:
		_, img, err = plotting.RenderReIm(state.res, opts)
	case plotting.KindAbs:
		img, _, err = plotting.RenderAbsPhase(state.res, opts)
	case plotting.KindPhase:
		_, img, err = plotting.RenderAbsPhase(state.res, opts)
	default:
		return blank(cw, chh)
	}
	if err != nil {
		didv.Warnf("render %s: %v", kind, err)
		return blank(cw, chh)
	}
	return img
}

func redrawCharts(state *uiState) {
	for _, tk := range uihelpers.TabKinds() {
		redrawChart(state, tk.Kind)
	}
}

func redrawChart(state *uiState, kind string) {
	cv := state.chartCanvases[kind]
	if cv == nil {
		return
	}
	img := renderKind(state, kind)
	if img == nil {
		return
	}
	cv.Image = img
	cw, chh := chartSize(state)
	cv.SetMinSize(fyne.NewSize(float32(cw), float32(chh)))
	cv.Refresh()
}

// chartSize picks chart pixel dimensions from the current window width, or
// the library default when running headless.
func chartSize(state *uiState) (int, int) {
	if screenshotWidthOverride > 0 {
		return uihelpers.ComputeChartDimensions(screenshotWidthOverride)
	}
	if state == nil || state.window == nil || state.window.Canvas() == nil {
		return 1000, 600
	}
	sz := state.window.Canvas().Size()
	// Use ~95% of the available width, minus a small margin for scrollbars
	return uihelpers.ComputeChartDimensions(int(sz.Width*0.95) - 12)
}

// menus and dialogs
func buildMenus(state *uiState, fileLabel *widget.Label) {
	if state == nil || state.window == nil || state.app == nil {
		return
	}
	var items []*fyne.MenuItem
	for _, f := range recentFiles(state) {
		f := f
		items = append(items, fyne.NewMenuItem(truncatePath(f, 60), func() {
			state.filePath = f
			fileLabel.SetText(truncatePath(state.filePath, 60))
			savePrefs(state)
			loadAll(state, fileLabel)
		}))
	}
	clearRecent := fyne.NewMenuItem("Clear Recent", func() { clearRecentFiles(state); buildMenus(state, fileLabel) })
	recentMenu := fyne.NewMenu("Open Recent", append(items, clearRecent)...)
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open…", func() { openFileDialog(state, fileLabel) }),
		fyne.NewMenuItem("Reload", func() { loadAll(state, fileLabel) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Export Current Chart…", func() { exportCurrentChart(state) }),
		fyne.NewMenuItem("Export All PNGs…", func() { exportAllPNGs(state) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() { state.window.Close() }),
	)
	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", func() { showAbout(state) }),
	)
	state.window.SetMainMenu(fyne.NewMainMenu(fileMenu, recentMenu, helpMenu))

	canv := state.window.Canvas()
	if canv != nil {
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierSuper}, func(fyne.Shortcut) { openFileDialog(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) { openFileDialog(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyR, Modifier: fyne.KeyModifierSuper}, func(fyne.Shortcut) { loadAll(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyR, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) { loadAll(state, fileLabel) })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyW, Modifier: fyne.KeyModifierSuper}, func(fyne.Shortcut) { state.window.Close() })
		canv.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyW, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) { state.window.Close() })
	}
}

// file open dialog
func openFileDialog(state *uiState, fileLabel *widget.Label) {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		state.filePath = rc.URI().Path()
		fileLabel.SetText(truncatePath(state.filePath, 60))
		addRecentFile(state, state.filePath)
		savePrefs(state)
		loadAll(state, fileLabel)
		buildMenus(state, fileLabel)
	}, state.window)
	d.Show()
}

// loadAll reads the results file, repopulates the channel selector and
// redraws every chart. An empty path falls back to the default results file
// in the working directory when present.
func loadAll(state *uiState, fileLabel *widget.Label) {
	if state.filePath == "" {
		if _, err := os.Stat(didv.DefaultResultsFile); err == nil {
			state.filePath = didv.DefaultResultsFile
			if fileLabel != nil {
				fileLabel.SetText(truncatePath(state.filePath, 60))
			}
		} else {
			return
		}
	}
	envs, err := didv.LoadResults(state.filePath)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	state.envs = envs

	names := make([]string, 0, len(envs))
	for i := range envs {
		names = append(names, envs[i].Meta.Channel)
	}
	if state.channelSelect != nil {
		state.channelSelect.Options = names
		state.channelSelect.Refresh()
	}

	state.res = nil
	if env := didv.FindChannel(envs, state.channel); env != nil {
		state.channel = env.Meta.Channel
		state.res = env.Result
	} else if len(envs) > 0 {
		state.channel = envs[0].Meta.Channel
		state.res = envs[0].Result
	}
	if state.channelSelect != nil {
		state.channelSelect.Selected = state.channel
		state.channelSelect.Refresh()
	}
	updateStatus(state)
	redrawCharts(state)
}

func updateStatus(state *uiState) {
	if state.statusLabel == nil {
		return
	}
	env := didv.FindChannel(state.envs, state.channel)
	if state.res == nil || env == nil {
		state.statusLabel.SetText("No results loaded")
		return
	}
	best := ""
	if fr := state.res.BestFit(); fr != nil {
		best = fmt.Sprintf("%d-pole cost=%.4g", fr.Poles, fr.Cost)
	}
	m := env.Meta
	state.statusLabel.SetText(uihelpers.SummaryLine(m.Channel, m.Series, m.Fs, m.NTraces, len(state.res.Time), best))
}

// saveTag is the file-name tag for exported charts.
func saveTag(state *uiState) string {
	if state.channel != "" {
		return state.channel
	}
	return "didv"
}

// exportCurrentChart saves the selected tab's rendered chart via a save
// dialog.
func exportCurrentChart(state *uiState) {
	if state == nil || state.window == nil || state.tabs == nil {
		return
	}
	kinds := uihelpers.TabKinds()
	idx := state.tabs.SelectedIndex()
	if idx < 0 || idx >= len(kinds) {
		return
	}
	img := state.chartCanvases[kinds[idx].Kind]
	if img == nil || img.Image == nil {
		dialog.ShowInformation("Export", "No chart to export.", state.window)
		return
	}
	fs := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		defer wc.Close()
		_ = png.Encode(wc, img.Image)
	}, state.window)
	fs.SetFileName(plotting.FileName(kinds[idx].Kind, saveTag(state)))
	fs.Show()
}

// exportAllPNGs renders and saves every chart kind into a directory chosen
// by the user.
func exportAllPNGs(state *uiState) {
	if state == nil || state.window == nil {
		return
	}
	if state.res == nil {
		dialog.ShowInformation("Export", "No results loaded.", state.window)
		return
	}
	d := dialog.NewFolderOpen(func(lu fyne.ListableURI, err error) {
		if err != nil || lu == nil {
			return
		}
		cw, chh := chartSize(state)
		opts := plotting.Options{
			Poles:      selectedPoles(state),
			SaveName:   saveTag(state),
			SavePath:   lu.Path(),
			Save:       true,
			ZoomFactor: state.zoom,
			Width:      cw,
			Height:     chh,
			Caption:    state.caption,
		}
		paths, err := plotting.SaveAll(state.res, opts)
		if err != nil {
			dialog.ShowError(err, state.window)
			return
		}
		dialog.ShowInformation("Export", fmt.Sprintf("Wrote %d charts to %s", len(paths), lu.Path()), state.window)
	}, state.window)
	d.Show()
}

func showAbout(state *uiState) {
	dialog.ShowInformation("About dIdV Viewer",
		"Browses dI/dV fit result files (didv_results.jsonl) and renders\n"+
			"the standard calibration charts for each channel: the averaged\n"+
			"trace with pole-fit overlays in time domain, and the measured\n"+
			"admittance against the fitted models in frequency domain.",
		state.window)
}

// recent files helpers
func recentFiles(state *uiState) []string {
	prefs := state.app.Preferences()
	raw := prefs.StringWithFallback("recentFiles", "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func addRecentFile(state *uiState, path string) {
	prefs := state.app.Preferences()
	list := recentFiles(state)
	filtered := []string{path}
	for _, f := range list {
		if f != path && len(filtered) < 10 {
			filtered = append(filtered, f)
		}
	}
	prefs.SetString("recentFiles", strings.Join(filtered, "\n"))
}

func clearRecentFiles(state *uiState) {
	if state == nil || state.app == nil {
		return
	}
	state.app.Preferences().SetString("recentFiles", "")
}

// prefs
func savePrefs(state *uiState) {
	if state == nil || state.app == nil {
		return
	}
	prefs := state.app.Preferences()
	prefs.SetString("lastFile", state.filePath)
	prefs.SetString("lastChannel", state.channel)
	prefs.SetBool("pole1", state.showPole1)
	prefs.SetBool("pole2", state.showPole2)
	prefs.SetBool("pole3", state.showPole3)
	prefs.SetBool("caption", state.caption)
	prefs.SetFloat("zoomFactor", state.zoom)
	if state.window != nil && state.window.Canvas() != nil {
		sz := state.window.Canvas().Size()
		prefs.SetInt("windowW", int(sz.Width))
		prefs.SetInt("windowH", int(sz.Height))
	}
}

func loadPrefs(state *uiState, p1, p2, p3, captionChk *widget.Check, zoomSlider *widget.Slider, fileLabel *widget.Label, tabs *container.AppTabs) {
	if state == nil || state.app == nil {
		return
	}
	prefs := state.app.Preferences()
	// flags beat remembered values
	if state.filePath == "" {
		if f := prefs.StringWithFallback("lastFile", ""); f != "" {
			state.filePath = f
			if fileLabel != nil {
				fileLabel.SetText(truncatePath(state.filePath, 60))
			}
		}
	}
	if state.channel == "" {
		state.channel = prefs.StringWithFallback("lastChannel", "")
	}
	state.showPole1 = prefs.BoolWithFallback("pole1", state.showPole1)
	state.showPole2 = prefs.BoolWithFallback("pole2", state.showPole2)
	state.showPole3 = prefs.BoolWithFallback("pole3", state.showPole3)
	state.caption = prefs.BoolWithFallback("caption", state.caption)
	state.zoom = uihelpers.ClampZoom(prefs.FloatWithFallback("zoomFactor", state.zoom))
	if p1 != nil {
		p1.SetChecked(state.showPole1)
	}
	if p2 != nil {
		p2.SetChecked(state.showPole2)
	}
	if p3 != nil {
		p3.SetChecked(state.showPole3)
	}
	if captionChk != nil {
		captionChk.SetChecked(state.caption)
	}
	if zoomSlider != nil {
		zoomSlider.Value = state.zoom
		zoomSlider.Refresh()
	}
	if state.zoomLabel != nil {
		state.zoomLabel.SetText(uihelpers.FormatZoomLabel(state.zoom))
	}
	if tabs != nil {
		idx := prefs.IntWithFallback("selectedTabIndex", 0)
		if idx >= 0 && idx < len(tabs.Items) {
			tabs.SelectIndex(idx)
		}
	}
	if state.window != nil {
		pw := prefs.IntWithFallback("windowW", 0)
		ph := prefs.IntWithFallback("windowH", 0)
		if pw >= 700 && ph >= 500 {
			state.window.Resize(fyne.NewSize(float32(pw), float32(ph)))
		}
	}
}

// utils
func truncatePath(p string, n int) string {
	if p == "" {
		return "(none)"
	}
	if len(p) <= n {
		return p
	}
	base := filepath.Base(p)
	if len(base)+4 >= n {
		return "..." + base
	}
	dir := filepath.Dir(p)
	left := n - len(base) - 4
	if left <= 0 {
		return "..." + base
	}
	if len(dir) > left {
		dir = dir[:left]
	}
	return dir + "/..." + base
}

func blank(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	// subtle background
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 18, G: 18, B: 18, A: 255})
		}
	}
	return img
}
