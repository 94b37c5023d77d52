// Rolling aggregation of solver timestep records
package metrics

import (
	"math"
	"time"

	"foamwatch/internal/solverlog"
)

// seriesCap bounds the retained time-series. When full, the series is
// decimated and the sampling stride doubled so long runs keep an evenly
// spread timeline for plotting.
const seriesCap = 50000

// Sample is one retained point of the plotting time-series.
type Sample struct {
	SimTime    float64
	DeltaT     float64
	CourantMax float64
	Velocity   solverlog.Vec3
	AngularVel solverlog.Vec3
	Heave      float64
	Phase      int
}

type recordKey struct {
	phase   int
	simTime float64
}

// RunMetrics is the cumulative aggregate over the record stream. It has a
// single writer (the monitor's ingest loop); concurrent readers take a
// Snapshot under the monitor's lock. All max fields are monotonically
// non-decreasing, with NaN as the absorbing top element.
type RunMetrics struct {
	MaxCourant        float64
	MaxAbsVelocity    solverlog.Vec3
	MaxAbsAngularRate solverlog.Vec3
	LastDeltaT        float64 // NaN until a step reports one
	MinDeltaT         float64 // NaN until a finite step size is seen
	LastSimTime       float64
	FirstSimTime      float64

	StartWallClock time.Time
	LastWallClock  time.Time

	MalformedLines int
	Records        int
	Phases         int

	// ConsecutiveTinyDeltaT counts the current run of steps whose deltaT
	// is below the configured floor; TinyRunStartSimTime is the sim time
	// at which that run began.
	ConsecutiveTinyDeltaT int
	TinyRunStartSimTime   float64

	deltaTFloor float64
	now         func() time.Time
	seen        map[recordKey]struct{}
	series      []Sample
	stride      int
	sinceSample int
}

// NewRunMetrics creates an empty aggregate. deltaTFloor is the step size
// below which steps count toward the stall window; now supplies wall-clock
// timestamps and defaults to time.Now.
func NewRunMetrics(deltaTFloor float64, now func() time.Time) *RunMetrics {
	if now == nil {
		now = time.Now
	}
	return &RunMetrics{
		LastDeltaT:  math.NaN(),
		MinDeltaT:   math.NaN(),
		deltaTFloor: deltaTFloor,
		now:         now,
		seen:        make(map[recordKey]struct{}),
		stride:      1,
	}
}

// Apply folds one record into the aggregate. Re-applying a record with an
// already-seen (phase, simTime) key is a no-op, so re-scanning a resumed
// run's concatenated logs cannot double-count.
func (m *RunMetrics) Apply(rec solverlog.TimestepRecord) {
	key := recordKey{phase: rec.SourcePhase, simTime: rec.SimTime}
	if _, dup := m.seen[key]; dup {
		return
	}
	m.seen[key] = struct{}{}

	wall := m.now().UTC()
	if m.Records == 0 {
		m.StartWallClock = wall
		m.FirstSimTime = rec.SimTime
	}
	m.LastWallClock = wall
	m.Records++
	if rec.SourcePhase+1 > m.Phases {
		m.Phases = rec.SourcePhase + 1
	}
	m.LastSimTime = rec.SimTime

	m.LastDeltaT = rec.DeltaT
	if !math.IsNaN(rec.DeltaT) {
		if math.IsNaN(m.MinDeltaT) || rec.DeltaT < m.MinDeltaT {
			m.MinDeltaT = rec.DeltaT
		}
	}

	if rec.HasCourant {
		m.MaxCourant = maxAbsorbNaN(m.MaxCourant, rec.CourantMax)
	}
	if rec.HasLinearVelocity {
		for i := 0; i < 3; i++ {
			m.MaxAbsVelocity[i] = maxAbsorbNaN(m.MaxAbsVelocity[i], math.Abs(rec.LinearVelocity[i]))
		}
	}
	if rec.HasAngularVelocity {
		for i := 0; i < 3; i++ {
			m.MaxAbsAngularRate[i] = maxAbsorbNaN(m.MaxAbsAngularRate[i], math.Abs(rec.AngularVelocity[i]))
		}
	}

	if rec.DeltaT < m.deltaTFloor { // false for NaN
		if m.ConsecutiveTinyDeltaT == 0 {
			m.TinyRunStartSimTime = rec.SimTime
		}
		m.ConsecutiveTinyDeltaT++
	} else {
		m.ConsecutiveTinyDeltaT = 0
	}

	m.sample(rec)
}

// maxAbsorbNaN is max with NaN greater than any finite value: a NaN input
// is divergence evidence and must survive further folding.
func maxAbsorbNaN(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return math.Max(a, b)
}

func (m *RunMetrics) sample(rec solverlog.TimestepRecord) {
	m.sinceSample++
	if m.sinceSample < m.stride {
		return
	}
	m.sinceSample = 0
	m.series = append(m.series, Sample{
		SimTime:    rec.SimTime,
		DeltaT:     rec.DeltaT,
		CourantMax: rec.CourantMax,
		Velocity:   rec.LinearVelocity,
		AngularVel: rec.AngularVelocity,
		Heave:      rec.CentreOfMass[solverlog.AxisZ],
		Phase:      rec.SourcePhase,
	})
	if len(m.series) >= seriesCap {
		kept := m.series[:0]
		for i := 0; i < len(m.series); i += 2 {
			kept = append(kept, m.series[i])
		}
		m.series = kept
		m.stride *= 2
	}
}

// Series returns a copy of the retained time-series in arrival order.
func (m *RunMetrics) Series() []Sample {
	out := make([]Sample, len(m.series))
	copy(out, m.series)
	return out
}

// Snapshot is a read-only copy of the aggregate for reporting.
type Snapshot struct {
	MaxCourant        float64
	MaxAbsVelocity    solverlog.Vec3
	MaxAbsAngularRate solverlog.Vec3
	LastDeltaT        float64
	MinDeltaT         float64
	LastSimTime       float64
	FirstSimTime      float64
	StartWallClock    time.Time
	LastWallClock     time.Time
	MalformedLines    int
	Records           int
	Phases            int

	ConsecutiveTinyDeltaT int
	TinyRunStartSimTime   float64
}

// Snapshot copies the scalar aggregate state. The series is excluded; it is
// fetched once, via Series, when the final report is emitted.
func (m *RunMetrics) Snapshot() Snapshot {
	return Snapshot{
		MaxCourant:            m.MaxCourant,
		MaxAbsVelocity:        m.MaxAbsVelocity,
		MaxAbsAngularRate:     m.MaxAbsAngularRate,
		LastDeltaT:            m.LastDeltaT,
		MinDeltaT:             m.MinDeltaT,
		LastSimTime:           m.LastSimTime,
		FirstSimTime:          m.FirstSimTime,
		StartWallClock:        m.StartWallClock,
		LastWallClock:         m.LastWallClock,
		MalformedLines:        m.MalformedLines,
		Records:               m.Records,
		Phases:                m.Phases,
		ConsecutiveTinyDeltaT: m.ConsecutiveTinyDeltaT,
		TinyRunStartSimTime:   m.TinyRunStartSimTime,
	}
}
