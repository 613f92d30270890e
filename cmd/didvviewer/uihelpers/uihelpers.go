// Package uihelpers holds the viewer's GUI-free helpers so they stay unit
// testable without a display: chart size clamps, zoom handling, status-line
// formatting and the tab layout.
package uihelpers

import (
	"fmt"
	"math"
	"strings"

	"github.com/pratyush06853/QETpy/src/plotting"
)

// ComputeChartDimensions applies the width/height clamp rules used for the
// chart tabs. Input: desired raw width (e.g., canvas width). Returns clamped
// width & height at the charts' 5:3 aspect.
func ComputeChartDimensions(rawW int) (int, int) {
	w := rawW
	if w < 640 {
		w = 640
	}
	h := int(float32(w) * 0.6)
	if h < 360 {
		h = 360
	}
	if h > 700 {
		h = 700
	}
	return w, h
}

// ClampZoom keeps the zoomed-window fraction of one drive period inside its
// usable range. Non-finite input falls back to the default fraction.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 0.1
	}
	if z < 0.01 {
		return 0.01
	}
	if z > 1 {
		return 1
	}
	return z
}

// FormatZoomLabel renders the zoom fraction for the slider label, e.g.
// "10% of period".
func FormatZoomLabel(z float64) string {
	pct := z * 100
	if pct < 10 {
		return fmt.Sprintf("%.1f%% of period", pct)
	}
	return fmt.Sprintf("%.0f%% of period", pct)
}

// SummaryLine is the one-line channel status shown under the toolbar.
// Series is omitted when empty; an empty channel reads "(unnamed)".
func SummaryLine(channel, series string, fs float64, ntraces, nsamples int, best string) string {
	if channel == "" {
		channel = "(unnamed)"
	}
	if best == "" {
		best = "none"
	}
	parts := []string{channel}
	if series != "" {
		parts = append(parts, "series="+series)
	}
	parts = append(parts,
		fmt.Sprintf("fs=%.0fHz", fs),
		fmt.Sprintf("traces=%d", ntraces),
		fmt.Sprintf("samples=%d", nsamples),
		"best="+best,
	)
	return strings.Join(parts, "  ")
}

// TabKind pairs a chart kind with the label shown on its viewer tab.
type TabKind struct {
	Kind  string
	Title string
}

// TabKinds returns every chart tab in display order, keyed by the plotting
// package's chart kinds.
func TabKinds() []TabKind {
	return []TabKind{
		{plotting.KindFullTrace, "Full Trace"},
		{plotting.KindOnePeriod, "One Period"},
		{plotting.KindZoomedTrace, "Zoomed"},
		{plotting.KindFlippedTrace, "Flipped"},
		{plotting.KindReal, "Re(dIdV)"},
		{plotting.KindImag, "Im(dIdV)"},
		{plotting.KindAbs, "|dIdV|"},
		{plotting.KindPhase, "Phase"},
	}
}
