package report

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"foamwatch/internal/classify"
	"foamwatch/internal/config"
	"foamwatch/internal/metrics"
	"foamwatch/internal/solverlog"
)

func TestFloat_MarshalNonFinite(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{math.NaN(), `"NaN"`},
		{math.Inf(1), `"+Inf"`},
		{math.Inf(-1), `"-Inf"`},
		{0.397131, `0.397131`},
	}
	for _, c := range cases {
		data, err := json.Marshal(Float(c.in))
		if err != nil {
			t.Fatalf("marshal %v: %v", c.in, err)
		}
		if string(data) != c.want {
			t.Errorf("marshal %v: expected %s, got %s", c.in, c.want, data)
		}
	}
}

func TestFloat_RoundTrip(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1.4655e90, -0.25} {
		data, err := json.Marshal(Float(v))
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		var back Float
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		got := float64(back)
		if math.IsNaN(v) {
			if !math.IsNaN(got) {
				t.Errorf("Expected NaN back, got %v", got)
			}
		} else if got != v {
			t.Errorf("Expected %v back, got %v", v, got)
		}
	}
}

func testSnapshot() metrics.Snapshot {
	snap := metrics.Snapshot{
		MaxCourant:  0.397131,
		LastDeltaT:  0.0012,
		MinDeltaT:   0.0005,
		LastSimTime: 5.1233,
		Records:     412,
		Phases:      1,
	}
	snap.MaxAbsVelocity = solverlog.Vec3{2.5, 0.3, 1.1}
	snap.MaxAbsAngularRate = solverlog.Vec3{0.01, 0.04, 0.002}
	return snap
}

func TestBuild_MapsSnapshotFields(t *testing.T) {
	limits := config.PhysicalLimits{MaxCourant: 1.0, MinDeltaT: 1e-4, MaxVelocity: 50}
	verdict := classify.Verdict{Status: classify.StatusStable, Reason: "target simulation time 5 s reached"}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rep := Build("run-1", "/cases/barge", testSnapshot(), verdict, limits, now)

	if rep.RunID != "run-1" {
		t.Errorf("Expected run ID carried through, got %q", rep.RunID)
	}
	if rep.Status != classify.StatusStable {
		t.Errorf("Expected STABLE, got %s", rep.Status)
	}
	if float64(rep.DurationSeconds) != 5.1233 {
		t.Errorf("Duration must be final sim time, got %v", rep.DurationSeconds)
	}
	if float64(rep.MaxSurgeVel) != 2.5 {
		t.Errorf("Expected surge 2.5, got %v", rep.MaxSurgeVel)
	}
	if float64(rep.MaxPitchRate) != 0.04 {
		t.Errorf("Expected pitch rate 0.04, got %v", rep.MaxPitchRate)
	}
	if len(rep.Issues) != 0 {
		t.Errorf("Expected no issues within limits, got %v", rep.Issues)
	}
	if !rep.GeneratedAt.Equal(now) {
		t.Errorf("Expected generatedAt %v, got %v", now, rep.GeneratedAt)
	}
}

func TestBuild_GeneratesRunIDWhenEmpty(t *testing.T) {
	rep := Build("", "/cases/barge", testSnapshot(), classify.Verdict{Status: classify.StatusStable}, config.PhysicalLimits{}, time.Now())
	if rep.RunID == "" {
		t.Error("Expected a generated run ID")
	}
}

func TestBuild_RecordsLimitBreachesAsIssues(t *testing.T) {
	snap := testSnapshot()
	snap.MaxCourant = 1.8
	snap.MinDeltaT = 1e-5
	snap.MaxAbsVelocity = solverlog.Vec3{60, 0, 0}
	limits := config.PhysicalLimits{MaxCourant: 1.0, MinDeltaT: 1e-4, MaxVelocity: 50}

	rep := Build("run-1", "/cases/barge", snap, classify.Verdict{Status: classify.StatusStable}, limits, time.Now())

	if len(rep.Issues) != 3 {
		t.Fatalf("Expected 3 issues, got %v", rep.Issues)
	}
	joined := strings.Join(rep.Issues, "; ")
	for _, want := range []string{"Courant", "timestep", "velocity"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected issue mentioning %q, got %v", want, rep.Issues)
		}
	}
}

func TestBuild_NaNVelocityFlagsVelocityIssue(t *testing.T) {
	snap := testSnapshot()
	snap.MaxAbsVelocity = solverlog.Vec3{1, math.NaN(), 1}
	limits := config.PhysicalLimits{MaxVelocity: 50}

	rep := Build("run-1", "/cases/barge", snap, classify.Verdict{Status: classify.StatusFailed, Reason: "divergence"}, limits, time.Now())

	found := false
	for _, is := range rep.Issues {
		if strings.Contains(is, "velocity") {
			found = true
		}
	}
	if !found {
		t.Errorf("NaN velocity must breach the velocity limit, got %v", rep.Issues)
	}
}

func TestVerificationReport_JSONWithNonFiniteFields(t *testing.T) {
	snap := testSnapshot()
	snap.MaxCourant = math.NaN()
	snap.LastDeltaT = math.Inf(1)
	rep := Build("run-1", "/cases/barge", snap, classify.Verdict{Status: classify.StatusFailed, Reason: "divergence: max Courant number is NaN"}, config.PhysicalLimits{}, time.Now())

	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("Report with NaN fields must marshal: %v", err)
	}
	var back VerificationReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !math.IsNaN(float64(back.MaxCourant)) {
		t.Errorf("Expected NaN max Courant after round trip, got %v", back.MaxCourant)
	}
	if !math.IsInf(float64(back.FinalDeltaT), 1) {
		t.Errorf("Expected +Inf final deltaT after round trip, got %v", back.FinalDeltaT)
	}
}
