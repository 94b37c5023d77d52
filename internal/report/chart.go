package report

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"foamwatch/internal/metrics"
	"foamwatch/internal/solverlog"
)

// renderChart writes the stability time-series page: Courant number, step
// size, and per-axis body motion against simulation time over the full
// concatenated multi-phase timeline.
func renderChart(path string, rep VerificationReport, series []metrics.Sample) error {
	xs := make([]string, len(series))
	for i, s := range series {
		xs[i] = strconv.FormatFloat(s.SimTime, 'g', 6, 64)
	}

	courant := newLine(fmt.Sprintf("Max Courant Number (%s)", rep.Status), "t [s]")
	courant.SetXAxis(xs).AddSeries("Co max", lineData(series, func(s metrics.Sample) float64 { return s.CourantMax }))

	deltaT := newLine("Time Step", "t [s]")
	deltaT.SetXAxis(xs).AddSeries("deltaT [s]", lineData(series, func(s metrics.Sample) float64 { return s.DeltaT }))

	velocity := newLine("Body Velocity", "t [s]")
	velocity.SetXAxis(xs).
		AddSeries("surge [m/s]", lineData(series, func(s metrics.Sample) float64 { return s.Velocity[solverlog.AxisX] })).
		AddSeries("sway [m/s]", lineData(series, func(s metrics.Sample) float64 { return s.Velocity[solverlog.AxisY] })).
		AddSeries("heave [m/s]", lineData(series, func(s metrics.Sample) float64 { return s.Velocity[solverlog.AxisZ] }))

	rates := newLine("Body Angular Rate", "t [s]")
	rates.SetXAxis(xs).
		AddSeries("roll [rad/s]", lineData(series, func(s metrics.Sample) float64 { return s.AngularVel[solverlog.AxisX] })).
		AddSeries("pitch [rad/s]", lineData(series, func(s metrics.Sample) float64 { return s.AngularVel[solverlog.AxisY] })).
		AddSeries("yaw [rad/s]", lineData(series, func(s metrics.Sample) float64 { return s.AngularVel[solverlog.AxisZ] }))

	heave := newLine("Heave (CoM Z)", "t [s]")
	heave.SetXAxis(xs).AddSeries("z [m]", lineData(series, func(s metrics.Sample) float64 { return s.Heave }))

	page := components.NewPage()
	page.AddCharts(courant, deltaT, velocity, rates, heave)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newLine(title, xName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
	)
	return line
}

// lineData maps one sample field into chart points. Non-finite values
// become gaps; echarts cannot plot them and the gap itself is visible
// evidence of where the run blew up.
func lineData(series []metrics.Sample, field func(metrics.Sample) float64) []opts.LineData {
	out := make([]opts.LineData, len(series))
	for i, s := range series {
		v := field(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}
