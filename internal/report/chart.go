package report

import (
	"fmt"
	"math"
	"strings"
)

// ════════════════════════════════════════════════════════════════════
// SVG Charts
// ════════════════════════════════════════════════════════════════════

// ChartConfig holds rendering parameters for SVG charts.
type ChartConfig struct {
	Width        int    // SVG width in pixels (default: 800)
	Height       int    // SVG height in pixels (default: 360)
	MarginTop    int    // top margin (default: 40)
	MarginRight  int    // right margin (default: 40)
	MarginBottom int    // bottom margin (default: 40)
	MarginLeft   int    // left margin (default: 70)
	BgColor      string // background color (default: "#ffffff")
	GridColor    string // grid line color (default: "#e8e8e8")
	TextColor    string // axis label color (default: "#333333")
	FontSize     int    // axis label font size (default: 11)
	Title        string // chart title
}

// DefaultChartConfig returns sensible defaults for chart rendering.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:        800,
		Height:       360,
		MarginTop:    40,
		MarginRight:  40,
		MarginBottom: 40,
		MarginLeft:   70,
		BgColor:      "#ffffff",
		GridColor:    "#e8e8e8",
		TextColor:    "#333333",
		FontSize:     11,
	}
}

// plotArea returns the usable drawing area dimensions.
func (c ChartConfig) plotArea() (x, y, w, h int) {
	return c.MarginLeft, c.MarginTop,
		c.Width - c.MarginLeft - c.MarginRight,
		c.Height - c.MarginTop - c.MarginBottom
}

// withDefaults fills an unset geometry from DefaultChartConfig, keeping the
// title.
func (c ChartConfig) withDefaults() ChartConfig {
	if c.Width == 0 || c.Height == 0 {
		title := c.Title
		c = DefaultChartConfig()
		c.Title = title
	}
	return c
}

var palette = []string{"#2563eb", "#ea580c", "#16a34a", "#db2777", "#7c3aed", "#0891b2"}

// ────────────────────────────────────────────────────────────────────
// Line chart
// ────────────────────────────────────────────────────────────────────

// LineChartSeries is a named data series for line charts.
type LineChartSeries struct {
	Name   string
	Values []float64
	Color  string // hex color (optional, auto-assigned if empty)
}

// LineChart draws one or more series against a shared Y axis. Labels are
// optional X-axis labels, one per data point; NaN points are skipped.
func LineChart(series []LineChartSeries, labels []string, cfg ChartConfig) string {
	cfg = cfg.withDefaults()
	if len(series) == 0 {
		return emptySVG(cfg, "No data")
	}

	minVal, maxVal := math.Inf(1), math.Inf(-1)
	n := 0
	for _, s := range series {
		n = max(n, len(s.Values))
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if n == 0 || math.IsInf(minVal, 1) {
		return emptySVG(cfg, "No data points")
	}

	span := maxVal - minVal
	if span < 1e-9 {
		span = 1
	}
	minVal -= span * 0.05
	maxVal += span * 0.05
	span = maxVal - minVal

	px, py, pw, ph := cfg.plotArea()
	xAt := func(i int) float64 {
		if n == 1 {
			return float64(px) + float64(pw)/2
		}
		return float64(px) + float64(i)*float64(pw)/float64(n-1)
	}
	yAt := func(v float64) float64 {
		return float64(py+ph) - (v-minVal)/span*float64(ph)
	}

	var sb strings.Builder
	writeFrame(&sb, cfg)

	const gridLines = 5
	for i := 0; i <= gridLines; i++ {
		val := minVal + span*float64(i)/gridLines
		y := yAt(val)
		fmt.Fprintf(&sb, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="%s" stroke-dasharray="3,3"/>`,
			px, y, px+pw, y, cfg.GridColor)
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%.2f</text>`,
			px-5, y+4, cfg.FontSize, cfg.TextColor, val)
	}

	for si, s := range series {
		color := s.Color
		if color == "" {
			color = palette[si%len(palette)]
		}
		var path []string
		for i, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			cmd := "L"
			if len(path) == 0 {
				cmd = "M"
			}
			path = append(path, fmt.Sprintf("%s%.1f,%.1f", cmd, xAt(i), yAt(v)))
		}
		if len(path) > 0 {
			fmt.Fprintf(&sb, `<path d="%s" fill="none" stroke="%s" stroke-width="1.5"/>`,
				strings.Join(path, " "), color)
		}

		// Legend
		ly := py + 10 + si*16
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`,
			px+10, ly, px+30, ly, color)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="10" fill="%s">%s</text>`,
			px+35, ly+4, cfg.TextColor, escapeXML(s.Name))
	}

	if len(labels) > 0 {
		step := max(n/6, 1)
		for i := 0; i < len(labels) && i < n; i += step {
			fmt.Fprintf(&sb, `<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle">%s</text>`,
				xAt(i), py+ph+18, cfg.FontSize-1, cfg.TextColor, escapeXML(labels[i]))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ────────────────────────────────────────────────────────────────────
// Bar chart
// ────────────────────────────────────────────────────────────────────

// BarItem is a single bar in a horizontal bar chart.
type BarItem struct {
	Label string
	Value float64
	Color string // optional; green for gains, red for losses when empty
}

// HorizontalBarChart draws one bar per item around a zero line. NaN values
// are drawn as an empty row.
func HorizontalBarChart(items []BarItem, cfg ChartConfig) string {
	cfg = cfg.withDefaults()
	if len(items) == 0 {
		return emptySVG(cfg, "No data")
	}
	cfg.MarginLeft = max(cfg.MarginLeft, 90)

	lo, hi := 0.0, 0.0
	for _, it := range items {
		if math.IsNaN(it.Value) {
			continue
		}
		lo = math.Min(lo, it.Value)
		hi = math.Max(hi, it.Value)
	}
	span := hi - lo
	if span < 1e-9 {
		span = 1
	}

	px, py, pw, ph := cfg.plotArea()
	barH := math.Min(float64(ph)/float64(len(items))*0.7, 24)
	gap := (float64(ph) - barH*float64(len(items))) / float64(len(items)+1)
	zeroX := float64(px) + (-lo/span)*float64(pw)

	var sb strings.Builder
	writeFrame(&sb, cfg)
	fmt.Fprintf(&sb, `<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="#999" stroke-width="1"/>`,
		zeroX, py, zeroX, py+ph)

	for i, it := range items {
		by := float64(py) + gap + float64(i)*(barH+gap)
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, by+barH/2+4, cfg.FontSize, cfg.TextColor, escapeXML(it.Label))
		if math.IsNaN(it.Value) {
			continue
		}

		color := it.Color
		if color == "" {
			color = "#16a34a"
			if it.Value < 0 {
				color = "#dc2626"
			}
		}
		bw := math.Abs(it.Value) / span * float64(pw)
		bx := zeroX
		if it.Value < 0 {
			bx -= bw
		}
		fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" rx="2"/>`,
			bx, by, bw, barH, color)
		fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="%d" fill="%s">%.1f</text>`,
			math.Max(bx+bw, zeroX)+5, by+barH/2+4, cfg.FontSize, cfg.TextColor, it.Value)
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ════════════════════════════════════════════════════════════════════
// SVG helpers
// ════════════════════════════════════════════════════════════════════

func writeFrame(sb *strings.Builder, cfg ChartConfig) {
	fmt.Fprintf(sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
	fmt.Fprintf(sb, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`,
		cfg.Width, cfg.Height, cfg.BgColor)
	if cfg.Title != "" {
		fmt.Fprintf(sb, `<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
			cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title))
	}
}

func emptySVG(cfg ChartConfig, msg string) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="%d" height="%d" fill="#f5f5f5"/><text x="%d" y="%d" text-anchor="middle" fill="#999" font-size="14">%s</text></svg>`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width/2, cfg.Height/2, escapeXML(msg))
}

func escapeXML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}
