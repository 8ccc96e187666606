// Package report renders backtest results: metric tables for the terminal
// or as CSV, a run summary, and a self-contained HTML report with SVG
// charts.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/seenimoa/trendbench/internal/performance"
	"github.com/seenimoa/trendbench/internal/store"
	"github.com/seenimoa/trendbench/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Formats
// ════════════════════════════════════════════════════════════════════

// Format selects how metric tables are written.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
)

// ParseFormat resolves a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q", models.ErrConfig, s)
}

// Missing is shown for cells whose horizon the history does not cover.
const Missing = "-"

// FormatCell formats a metric value for display: two decimals with a
// percent sign for percentage tables, bare for ratios.
func FormatCell(metric string, v float64) string {
	if math.IsNaN(v) {
		return Missing
	}
	if performance.IsPercentMetric(metric) {
		return strconv.FormatFloat(v, 'f', 2, 64) + "%"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ════════════════════════════════════════════════════════════════════
// Metric tables
// ════════════════════════════════════════════════════════════════════

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	nameStyle   = lipgloss.NewStyle().Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	gainStyle   = cellStyle.Foreground(lipgloss.Color("10"))
	lossStyle   = cellStyle.Foreground(lipgloss.Color("9"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderTable writes one metric table in the given format.
func RenderTable(w io.Writer, t *models.MetricTable, f Format) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, t)
	case FormatTable, "":
		_, err := fmt.Fprintln(w, terminalTable(t))
		return err
	}
	return fmt.Errorf("%w: unknown output format %q", models.ErrConfig, f)
}

// RenderTables writes each table in order, separated by a blank line.
func RenderTables(w io.Writer, tables []*models.MetricTable, f Format) error {
	for i, t := range tables {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := RenderTable(w, t, f); err != nil {
			return fmt.Errorf("%s: %w", t.Metric, err)
		}
	}
	return nil
}

func terminalTable(t *models.MetricTable) string {
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(append([]string{t.Metric}, t.Columns...)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return nameStyle
			}
			v := t.Cells[row][col-1]
			switch {
			case v > 0:
				return gainStyle
			case v < 0:
				return lossStyle
			}
			return cellStyle
		})
	for r, name := range t.Rows {
		row := make([]string, 0, len(t.Columns)+1)
		row = append(row, name)
		for c := range t.Columns {
			row = append(row, FormatCell(t.Metric, t.Cells[r][c]))
		}
		tbl.Row(row...)
	}
	return tbl.Render()
}

// writeCSV writes metric,<columns> followed by one line per series. Values
// keep full precision in display units; missing cells are empty.
func writeCSV(w io.Writer, t *models.MetricTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{t.Metric}, t.Columns...)); err != nil {
		return err
	}
	for r, name := range t.Rows {
		rec := make([]string, 0, len(t.Columns)+1)
		rec = append(rec, name)
		for _, v := range t.Cells[r] {
			if math.IsNaN(v) {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ════════════════════════════════════════════════════════════════════
// Run summary
// ════════════════════════════════════════════════════════════════════

// Summary describes one completed run.
type Summary struct {
	RunID       string
	Strategy    string
	Benchmark   string
	Tickers     []string
	From, To    time.Time
	InitialCash float64
	FinalValue  float64
}

// TotalReturn returns FinalValue / InitialCash - 1, or NaN without cash.
func (s Summary) TotalReturn() float64 {
	if s.InitialCash == 0 {
		return math.NaN()
	}
	return s.FinalValue/s.InitialCash - 1
}

// RenderSummary writes the run header shown above the metric tables.
func RenderSummary(w io.Writer, s Summary) error {
	lines := []struct{ label, value string }{
		{"Run", s.RunID},
		{"Strategy", s.Strategy},
		{"Benchmark", s.Benchmark},
		{"Universe", fmt.Sprintf("%d tickers: %s", len(s.Tickers), strings.Join(s.Tickers, " "))},
		{"Period", fmt.Sprintf("%s to %s", s.From.Format(models.DateLayout), s.To.Format(models.DateLayout))},
		{"Initial cash", Money(s.InitialCash)},
		{"Final value", fmt.Sprintf("%s (%s)", Money(s.FinalValue), FormatCell(performance.MetricGross, s.TotalReturn()*100))},
	}
	label := lipgloss.NewStyle().Bold(true).Width(14)
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		if _, err := fmt.Fprintln(w, label.Render(l.label)+l.value); err != nil {
			return err
		}
	}
	return nil
}

// Money formats an amount with thousands separators and two decimals.
func Money(v float64) string {
	if math.IsNaN(v) {
		return Missing
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// ════════════════════════════════════════════════════════════════════
// HTML report
// ════════════════════════════════════════════════════════════════════

// HTMLInput is everything the HTML report shows.
type HTMLInput struct {
	Title   string
	Summary Summary
	Returns *models.Frame // aligned daily returns, one column per series
	Tables  []*models.MetricTable
	Chart   ChartConfig
}

type htmlData struct {
	Title       string
	GeneratedAt string
	Summary     []htmlPair
	EquityChart template.HTML
	AnnualChart template.HTML
	Tables      []htmlTable
}

type htmlPair struct{ Label, Value string }

type htmlTable struct {
	Metric  string
	Columns []string
	Rows    []htmlRow
}

type htmlRow struct {
	Name  string
	Cells []htmlCell
}

type htmlCell struct {
	Text  string
	Class string // positive, negative or empty
}

var reportTmpl = template.Must(template.New("report").Parse(ReportTemplate))

// GenerateHTML renders a standalone HTML report.
func GenerateHTML(in HTMLInput) (string, error) {
	if in.Returns == nil {
		return "", fmt.Errorf("%w: returns table is nil", models.ErrConfig)
	}
	data := htmlData{
		Title:       in.Title,
		GeneratedAt: time.Now().UTC().Format("02 Jan 2006 15:04 MST"),
	}
	if data.Title == "" {
		data.Title = in.Summary.Strategy + " Backtest"
	}
	s := in.Summary
	data.Summary = []htmlPair{
		{"Strategy", s.Strategy},
		{"Benchmark", s.Benchmark},
		{"Tickers", strconv.Itoa(len(s.Tickers))},
		{"Period", s.From.Format(models.DateLayout) + " to " + s.To.Format(models.DateLayout)},
		{"Initial cash", Money(s.InitialCash)},
		{"Final value", Money(s.FinalValue)},
	}

	chart := in.Chart
	chart.Title = "Growth of $1"
	data.EquityChart = template.HTML(LineChart(growthSeries(in.Returns), dateLabels(in.Returns.Index), chart))

	for _, t := range in.Tables {
		data.Tables = append(data.Tables, toHTMLTable(t))
		if t.Metric == performance.MetricAnnualByYear && len(t.Rows) > 0 {
			bars := chart
			bars.Title = "Annual Returns (%): " + t.Rows[0]
			items := make([]BarItem, len(t.Columns))
			for c, year := range t.Columns {
				items[c] = BarItem{Label: year, Value: t.Cells[0][c]}
			}
			data.AnnualChart = template.HTML(HorizontalBarChart(items, bars))
		}
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// growthSeries compounds each return column into the value of $1 invested
// at the first row. NaN returns leave the value unchanged.
func growthSeries(f *models.Frame) []LineChartSeries {
	out := make([]LineChartSeries, f.Width())
	for c, name := range f.Columns {
		vals := make([]float64, f.Len())
		v := 1.0
		for i, r := range f.Values[c] {
			if !math.IsNaN(r) {
				v *= 1 + r
			}
			vals[i] = v
		}
		out[c] = LineChartSeries{Name: name, Values: vals}
	}
	return out
}

func dateLabels(idx []time.Time) []string {
	out := make([]string, len(idx))
	for i, t := range idx {
		out[i] = t.Format("Jan 2006")
	}
	return out
}

func toHTMLTable(t *models.MetricTable) htmlTable {
	ht := htmlTable{Metric: t.Metric, Columns: t.Columns}
	for r, name := range t.Rows {
		row := htmlRow{Name: name}
		for _, v := range t.Cells[r] {
			cell := htmlCell{Text: FormatCell(t.Metric, v)}
			switch {
			case v > 0:
				cell.Class = "positive"
			case v < 0:
				cell.Class = "negative"
			}
			row.Cells = append(row.Cells, cell)
		}
		ht.Rows = append(ht.Rows, row)
	}
	return ht
}

// ════════════════════════════════════════════════════════════════════
// Run history
// ════════════════════════════════════════════════════════════════════

// RenderRuns writes recorded runs as a table, one run per line.
func RenderRuns(w io.Writer, runs []store.Run, f Format) error {
	headers := []string{"ID", "Created", "Strategy", "Benchmark", "Tickers", "Period", "Final Value"}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Strategy,
			r.Benchmark,
			strconv.Itoa(len(r.Tickers)),
			r.From.Format(models.DateLayout) + " to " + r.To.Format(models.DateLayout),
			Money(r.FinalValue),
		}
	}

	switch f {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(headers); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	case FormatTable, "":
		tbl := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(borderStyle).
			Headers(headers...).
			Rows(rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return nameStyle
			})
		_, err := fmt.Fprintln(w, tbl.Render())
		return err
	}
	return fmt.Errorf("%w: unknown output format %q", models.ErrConfig, f)
}
