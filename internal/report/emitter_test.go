package report

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"foamwatch/internal/classify"
	"foamwatch/internal/config"
	"foamwatch/internal/metrics"
	"foamwatch/internal/solverlog"
)

func testReport() VerificationReport {
	verdict := classify.Verdict{Status: classify.StatusStable, Reason: "target simulation time 5 s reached"}
	limits := config.PhysicalLimits{MaxCourant: 1.0, MinDeltaT: 1e-4, MaxVelocity: 50}
	return Build("run-1", "/cases/barge", testSnapshot(), verdict, limits, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func testSeries() []metrics.Sample {
	return []metrics.Sample{
		{SimTime: 0.1, DeltaT: 0.001, CourantMax: 0.2, Velocity: solverlog.Vec3{1, 0, 0}, Heave: 0.5},
		{SimTime: 0.2, DeltaT: 0.001, CourantMax: 0.3, Velocity: solverlog.Vec3{1.2, 0, 0}, Heave: 0.4},
	}
}

func TestEmitter_WritesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "verification")
	if err := NewEmitter(out).Emit(testReport(), testSeries()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	for _, name := range []string{ReportFile, SummaryFile, ChartFile, MotionFile, MarkerFile} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("Missing artifact %s: %v", name, err)
		}
	}
}

func TestEmitter_ReportRoundTrips(t *testing.T) {
	dir := t.TempDir()
	rep := testReport()
	rep.MaxCourant = Float(math.NaN())
	if err := NewEmitter(dir).Emit(rep, nil); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var back VerificationReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Report file must be valid JSON: %v", err)
	}
	if back.Status != classify.StatusStable || back.RunID != "run-1" {
		t.Errorf("Report content lost: %+v", back)
	}
	if !math.IsNaN(float64(back.MaxCourant)) {
		t.Errorf("Expected NaN max Courant, got %v", back.MaxCourant)
	}
}

func TestEmitter_SummaryContent(t *testing.T) {
	dir := t.TempDir()
	rep := testReport()
	rep.Issues = []string{"max Courant 1.8 exceeded limit 1"}
	if err := NewEmitter(dir).Emit(rep, testSeries()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	md := string(data)
	for _, want := range []string{
		"## Status: STABLE",
		"| **Duration** | 5.1233 s |",
		"| **Max Courant** | 0.397131 |",
		"## Issues",
		"max Courant 1.8 exceeded limit 1",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Summary missing %q:\n%s", want, md)
		}
	}
}

func TestEmitter_MotionCSV(t *testing.T) {
	dir := t.TempDir()
	if err := NewEmitter(dir).Emit(testReport(), testSeries()); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, MotionFile))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "time,delta_t,courant_max") {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0.1,0.001,0.2,1,") {
		t.Errorf("Unexpected first row: %q", lines[1])
	}
}

func TestEmitter_ChartHandlesNonFiniteSeries(t *testing.T) {
	dir := t.TempDir()
	series := testSeries()
	series = append(series, metrics.Sample{SimTime: 0.3, DeltaT: math.NaN(), CourantMax: math.Inf(1)})
	if err := NewEmitter(dir).Emit(testReport(), series); err != nil {
		t.Fatalf("Emit with non-finite series failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ChartFile))
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	if !strings.Contains(string(data), "<html") {
		t.Errorf("Chart output does not look like HTML")
	}
}

func TestEmitter_MarkerWrittenLast(t *testing.T) {
	dir := t.TempDir()
	if err := NewEmitter(dir).Emit(testReport(), nil); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if strings.TrimSpace(string(data)) != "2025-06-01T12:00:00Z" {
		t.Errorf("Unexpected marker content: %q", data)
	}
}

func TestEmitter_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	if err := NewEmitter(dir).Emit(testReport(), nil); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
}
