// Package report summarizes an error log for review after a run.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/reelrank/internal/errlog"
	"github.com/FranksOps/reelrank/internal/model"
)

// recentLimit bounds how many of the latest records a summary lists.
const recentLimit = 10

// Summary contains aggregated failure counts from one or more runs.
type Summary struct {
	TotalErrors int
	// Malformed counts log lines that could not be parsed.
	Malformed   int
	ByContext   map[string]int
	ByErrorType map[string]int
	Runs        int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	// Recent holds the latest records, newest first.
	Recent []model.ErrorRecord
}

// GenerateSummary aggregates the records of log. A non-empty runID keeps
// only that run's records.
func GenerateSummary(log errlog.Log, runID string) Summary {
	s := Summary{
		Malformed:   log.Malformed,
		ByContext:   make(map[string]int),
		ByErrorType: make(map[string]int),
	}

	runs := make(map[string]struct{})
	var kept []model.ErrorRecord
	for _, r := range log.Records {
		if runID != "" && r.RunID != runID {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return s
	}

	s.StartTime = kept[0].TS
	s.EndTime = kept[0].TS

	for _, r := range kept {
		s.TotalErrors++
		s.ByContext[r.Context]++
		s.ByErrorType[r.ErrorType]++
		if r.RunID != "" {
			runs[r.RunID] = struct{}{}
		}

		if r.TS.Before(s.StartTime) {
			s.StartTime = r.TS
		}
		if r.TS.After(s.EndTime) {
			s.EndTime = r.TS
		}
	}
	s.Runs = len(runs)
	s.Duration = s.EndTime.Sub(s.StartTime)

	// the log is append-only, so file order is time order
	for i := len(kept) - 1; i >= 0 && len(s.Recent) < recentLimit; i-- {
		s.Recent = append(s.Recent, kept[i])
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Reelrank Error Summary
----------------------
{{- if .TotalErrors}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
{{- end}}
Runs:          {{.Runs}}
Total Errors:  {{.TotalErrors}}
Malformed:     {{.Malformed}} lines

By Context:
{{- range $ctx, $count := .ByContext}}
  {{$ctx}}: {{$count}}
{{- else}}
  None
{{- end}}

By Error Type:
{{- range $typ, $count := .ByErrorType}}
  {{$typ}}: {{$count}}
{{- else}}
  None
{{- end}}
{{- if .Recent}}

Most Recent:
{{- range .Recent}}
  {{.TS.Format "2006-01-02 15:04:05"}} {{.Context}}/{{.ErrorType}}{{if .Username}} @{{.Username}}{{end}}{{if .Query}} q={{.Query}}{{end}}: {{.ErrorMessage}}
{{- end}}
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer. Record
// fields come from remote responses and are escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Reelrank Error Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Reelrank Error Report</h1>
  {{- if .TotalErrors}}
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  {{- end}}

  <div class="stat-card">
    <div>Errors</div>
    <div class="stat-val" style="color: {{if gt .TotalErrors 0}}red{{else}}green{{end}};">{{.TotalErrors}}</div>
  </div>
  <div class="stat-card">
    <div>Runs</div>
    <div class="stat-val">{{.Runs}}</div>
  </div>
  <div class="stat-card">
    <div>Malformed Lines</div>
    <div class="stat-val">{{.Malformed}}</div>
  </div>

  <h3>By Context</h3>
  <table>
    <tr><th>Context</th><th>Count</th></tr>
    {{- range $ctx, $count := .ByContext}}
    <tr><td>{{$ctx}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>By Error Type</h3>
  <table>
    <tr><th>Type</th><th>Count</th></tr>
    {{- range $typ, $count := .ByErrorType}}
    <tr><td>{{$typ}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Most Recent</h3>
  <table>
    <tr><th>Time</th><th>Context</th><th>Type</th><th>Account</th><th>Query</th><th>Message</th></tr>
    {{- range .Recent}}
    <tr><td>{{.TS.Format "2006-01-02 15:04:05"}}</td><td>{{.Context}}</td><td>{{.ErrorType}}</td><td>{{.Username}}</td><td>{{.Query}}</td><td>{{.ErrorMessage}}</td></tr>
    {{- else}}
    <tr><td colspan="6">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}
