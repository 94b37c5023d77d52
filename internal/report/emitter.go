package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"foamwatch/internal/metrics"
	"foamwatch/internal/solverlog"
)

// Artifact file names within the output directory. The marker's mere
// existence tells the orchestrating pipeline that verification ran to
// completion, independent of the simulation's own outcome.
const (
	ReportFile  = "report.json"
	SummaryFile = "summary.md"
	ChartFile   = "chart.html"
	MotionFile  = "motion.csv"
	MarkerFile  = "verification.done"
)

// Emitter renders a terminal report into its artifact set. Emission happens
// after the ingest loop has stopped and never signals the solver process.
type Emitter struct {
	OutDir string
}

// NewEmitter creates an emitter writing into outDir.
func NewEmitter(outDir string) *Emitter {
	return &Emitter{OutDir: outDir}
}

// Emit writes the structured report, human-readable summary, time-series
// chart, motion CSV, and finally the completion marker. The report file is
// written atomically so concurrent consumers never observe a partial gate
// record.
func (e *Emitter) Emit(rep VerificationReport, series []metrics.Sample) error {
	if err := os.MkdirAll(e.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(e.OutDir, ReportFile), append(data, '\n')); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if err := e.writeSummary(rep); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := e.writeMotionCSV(series); err != nil {
		return fmt.Errorf("write motion csv: %w", err)
	}
	if err := renderChart(filepath.Join(e.OutDir, ChartFile), rep, series); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(e.OutDir, MarkerFile), []byte(rep.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")+"\n")); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it into place. A failed write is retried once before surfacing.
func writeFileAtomic(path string, data []byte) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = tryWriteAtomic(path, data); err == nil {
			return nil
		}
	}
	return err
}

func tryWriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var summaryTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{
	"num": func(f Float) string {
		return strconv.FormatFloat(float64(f), 'g', 6, 64)
	},
}).Parse(`# Simulation Verification Report

## Status: {{.Status}}

**Reason**: {{if .Reason}}{{.Reason}}{{else}}no obvious divergence detected{{end}}

## Statistics

| Metric | Value |
| :--- | :--- |
| **Duration** | {{num .DurationSeconds}} s |
| **Final dt** | {{num .FinalDeltaT}} s |
| **Min dt** | {{num .MinDeltaT}} s |
| **Max Courant** | {{num .MaxCourant}} |
| **Max Surge Vel** | {{num .MaxSurgeVel}} m/s |
| **Max Pitch Rate** | {{num .MaxPitchRate}} rad/s |
| **Records** | {{.Records}} |
| **Phases** | {{.Phases}} |
| **Malformed lines** | {{.MalformedLines}} |
{{if .Issues}}
## Issues
{{range .Issues}}
- {{.}}{{end}}
{{end}}
## Stability Plots

[chart.html](chart.html)
`))

func (e *Emitter) writeSummary(rep VerificationReport) error {
	f, err := os.Create(filepath.Join(e.OutDir, SummaryFile))
	if err != nil {
		return err
	}
	if err := summaryTmpl.Execute(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (e *Emitter) writeMotionCSV(series []metrics.Sample) error {
	f, err := os.Create(filepath.Join(e.OutDir, MotionFile))
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "delta_t", "courant_max", "vel_x", "vel_y", "vel_z", "rate_x", "rate_y", "rate_z", "heave", "phase"}); err != nil {
		f.Close()
		return err
	}
	for _, s := range series {
		row := []string{
			fmtF(s.SimTime), fmtF(s.DeltaT), fmtF(s.CourantMax),
			fmtF(s.Velocity[solverlog.AxisX]), fmtF(s.Velocity[solverlog.AxisY]), fmtF(s.Velocity[solverlog.AxisZ]),
			fmtF(s.AngularVel[solverlog.AxisX]), fmtF(s.AngularVel[solverlog.AxisY]), fmtF(s.AngularVel[solverlog.AxisZ]),
			fmtF(s.Heave),
			strconv.Itoa(s.Phase),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
