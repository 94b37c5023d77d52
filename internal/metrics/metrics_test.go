package metrics

import (
	"math"
	"testing"
	"time"

	"foamwatch/internal/solverlog"
)

func fixedNow() func() time.Time {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func step(simTime, deltaT, courant float64) solverlog.TimestepRecord {
	return solverlog.TimestepRecord{
		SimTime:    simTime,
		DeltaT:     deltaT,
		CourantMax: courant,
		HasCourant: true,
	}
}

func TestRunMetrics_MaxFoldsMonotonically(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	m.Apply(step(0.1, 0.001, 0.30))
	m.Apply(step(0.2, 0.001, 0.45))
	m.Apply(step(0.3, 0.001, 0.10))

	if m.MaxCourant != 0.45 {
		t.Errorf("Expected max Courant 0.45, got %v", m.MaxCourant)
	}
	if m.LastSimTime != 0.3 {
		t.Errorf("Expected last sim time 0.3, got %v", m.LastSimTime)
	}
	if m.Records != 3 {
		t.Errorf("Expected 3 records, got %d", m.Records)
	}
}

func TestRunMetrics_NaNDominatesMax(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	m.Apply(step(0.1, 0.001, 0.30))
	m.Apply(step(0.2, 0.001, math.NaN()))
	m.Apply(step(0.3, 0.001, 0.10))

	if !math.IsNaN(m.MaxCourant) {
		t.Errorf("NaN must survive further folding, got max Courant %v", m.MaxCourant)
	}
}

func TestRunMetrics_NaNDominatesVelocityAxes(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	m.Apply(solverlog.TimestepRecord{
		SimTime: 0.1, DeltaT: 0.001,
		LinearVelocity: solverlog.Vec3{2.0, math.NaN(), -3.0}, HasLinearVelocity: true,
	})
	m.Apply(solverlog.TimestepRecord{
		SimTime: 0.2, DeltaT: 0.001,
		LinearVelocity: solverlog.Vec3{1.0, 1.0, 1.0}, HasLinearVelocity: true,
	})

	if m.MaxAbsVelocity[solverlog.AxisX] != 2.0 {
		t.Errorf("Expected surge max 2.0, got %v", m.MaxAbsVelocity[solverlog.AxisX])
	}
	if !math.IsNaN(m.MaxAbsVelocity[solverlog.AxisY]) {
		t.Errorf("Expected NaN sway max, got %v", m.MaxAbsVelocity[solverlog.AxisY])
	}
	if m.MaxAbsVelocity[solverlog.AxisZ] != 3.0 {
		t.Errorf("Expected absolute heave max 3.0, got %v", m.MaxAbsVelocity[solverlog.AxisZ])
	}
}

func TestRunMetrics_DuplicateKeyIsNoOp(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	rec := step(0.1, 0.001, 0.30)
	m.Apply(rec)
	m.Apply(rec)

	if m.Records != 1 {
		t.Errorf("Re-applied record must not double-count, got %d records", m.Records)
	}
	if len(m.Series()) != 1 {
		t.Errorf("Re-applied record must not re-sample, got %d samples", len(m.Series()))
	}
}

func TestRunMetrics_SamePhaseSameTimeDistinctPhases(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	rec := step(1.0, 0.001, 0.2)
	rec.SourcePhase = 0
	m.Apply(rec)
	rec.SourcePhase = 1
	m.Apply(rec)

	if m.Records != 2 {
		t.Errorf("Same time from a new phase is a new record, got %d", m.Records)
	}
	if m.Phases != 2 {
		t.Errorf("Expected 2 phases, got %d", m.Phases)
	}
}

func TestRunMetrics_TinyDeltaTRun(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	m.Apply(step(0.100, 0.001, 0.2))
	for i := 0; i < 5; i++ {
		m.Apply(step(0.100001+float64(i)*1e-10, 1e-10, 0.2))
	}

	if m.ConsecutiveTinyDeltaT != 5 {
		t.Errorf("Expected tiny run of 5, got %d", m.ConsecutiveTinyDeltaT)
	}
	if m.TinyRunStartSimTime != 0.100001 {
		t.Errorf("Expected tiny run start 0.100001, got %v", m.TinyRunStartSimTime)
	}

	m.Apply(step(0.2, 0.001, 0.2))
	if m.ConsecutiveTinyDeltaT != 0 {
		t.Errorf("Healthy step must reset the tiny run, got %d", m.ConsecutiveTinyDeltaT)
	}
}

func TestRunMetrics_NaNDeltaTResetsTinyRun(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	m.Apply(step(0.1, 1e-10, 0.2))
	m.Apply(step(0.2, math.NaN(), 0.2))

	if m.ConsecutiveTinyDeltaT != 0 {
		t.Errorf("NaN deltaT is not a tiny step, got run of %d", m.ConsecutiveTinyDeltaT)
	}
	if !math.IsNaN(m.LastDeltaT) {
		t.Errorf("Expected NaN last deltaT, got %v", m.LastDeltaT)
	}
}

func TestRunMetrics_MinDeltaTIgnoresNaN(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	if !math.IsNaN(m.MinDeltaT) {
		t.Fatalf("MinDeltaT must start unset, got %v", m.MinDeltaT)
	}
	m.Apply(step(0.1, 0.002, 0.2))
	m.Apply(step(0.2, math.NaN(), 0.2))
	m.Apply(step(0.3, 0.001, 0.2))

	if m.MinDeltaT != 0.001 {
		t.Errorf("Expected min deltaT 0.001, got %v", m.MinDeltaT)
	}
}

func TestRunMetrics_WallClockFromInjectedNow(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	m.Apply(step(0.1, 0.001, 0.2))
	m.Apply(step(0.2, 0.001, 0.2))

	if !m.LastWallClock.After(m.StartWallClock) {
		t.Errorf("Wall clock must advance: start %v last %v", m.StartWallClock, m.LastWallClock)
	}
	if m.StartWallClock.Location() != time.UTC {
		t.Errorf("Timestamps must be UTC, got %v", m.StartWallClock.Location())
	}
}

func TestRunMetrics_SnapshotIsDetached(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	m.Apply(step(0.1, 0.001, 0.2))
	snap := m.Snapshot()
	m.Apply(step(0.2, 0.001, 0.9))

	if snap.Records != 1 || snap.MaxCourant != 0.2 {
		t.Errorf("Snapshot mutated by later records: %+v", snap)
	}
}

func TestRunMetrics_SeriesDecimatesAtCap(t *testing.T) {
	m := NewRunMetrics(1e-8, fixedNow())
	for i := 0; i < seriesCap+10; i++ {
		m.Apply(step(float64(i)*0.001, 0.001, 0.2))
	}

	s := m.Series()
	if len(s) > seriesCap {
		t.Fatalf("Series exceeded cap: %d", len(s))
	}
	for i := 1; i < len(s); i++ {
		if s[i].SimTime <= s[i-1].SimTime {
			t.Fatalf("Decimated series out of order at %d: %v after %v", i, s[i].SimTime, s[i-1].SimTime)
		}
	}
}
