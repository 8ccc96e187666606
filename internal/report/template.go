package report

// ReportTemplate is the HTML template for the backtest report. Charts are
// inlined as SVG, so the page has no external dependencies.
const ReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
  :root {
    --bg: #ffffff;
    --text: #1a1a2e;
    --muted: #6b7280;
    --border: #e5e7eb;
    --accent: #2563eb;
    --green: #16a34a;
    --red: #dc2626;
    --section-bg: #f8fafc;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    color: var(--text);
    background: var(--bg);
    line-height: 1.5;
    max-width: 960px;
    margin: 0 auto;
    padding: 20px;
  }
  h1 { font-size: 1.5rem; color: var(--accent); }
  h2 { font-size: 1.1rem; margin: 24px 0 10px; padding-bottom: 6px; border-bottom: 2px solid var(--accent); }
  .muted { color: var(--muted); font-size: 0.85rem; }
  .header { border-bottom: 3px solid var(--accent); padding-bottom: 12px; margin-bottom: 16px; }
  .summary {
    display: grid;
    grid-template-columns: repeat(auto-fill, minmax(150px, 1fr));
    gap: 8px;
    background: var(--section-bg);
    padding: 12px;
    border-radius: 8px;
  }
  .summary .label { font-size: 0.75rem; color: var(--muted); text-transform: uppercase; }
  .summary .value { font-weight: 600; }
  .chart { margin: 12px 0; overflow-x: auto; }
  table { width: 100%; border-collapse: collapse; margin: 8px 0 16px; font-size: 0.85rem; }
  th { background: var(--section-bg); text-align: right; padding: 6px 8px; font-weight: 600; }
  th:first-child, td:first-child { text-align: left; }
  td { padding: 6px 8px; border-bottom: 1px solid var(--border); text-align: right; font-variant-numeric: tabular-nums; }
  .positive { color: var(--green); }
  .negative { color: var(--red); }
</style>
</head>
<body>
<div class="header">
  <h1>{{.Title}}</h1>
  <p class="muted">Generated {{.GeneratedAt}}</p>
</div>

<div class="summary">
{{- range .Summary}}
  <div><div class="label">{{.Label}}</div><div class="value">{{.Value}}</div></div>
{{- end}}
</div>

<h2>Performance</h2>
<div class="chart">{{.EquityChart}}</div>
{{- if .AnnualChart}}
<div class="chart">{{.AnnualChart}}</div>
{{- end}}

{{- range .Tables}}
<h2>{{.Metric}}</h2>
<table>
  <tr><th></th>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
  {{- range .Rows}}
  <tr><td>{{.Name}}</td>{{range .Cells}}<td class="{{.Class}}">{{.Text}}</td>{{end}}</tr>
  {{- end}}
</table>
{{- end}}

<p class="muted">Simulated results. Returns ignore transaction costs and slippage.</p>
</body>
</html>
`
