// Parsed solver log records
package solverlog

// Axis indices into velocity and angular-rate triples. For the linear
// components these are surge, sway, heave; for the angular components
// roll, pitch, yaw.
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
)

// Vec3 is a solver vector as printed in the log, e.g. "(0.1 0 -9.8)".
type Vec3 [3]float64

// TimestepRecord is one merged observation for a single simulation time.
// The solver spreads a step's output over several summary lines (time-step
// header, Courant summary, rigid-body motion block); the extractor folds
// them into one record. A record is immutable once emitted.
type TimestepRecord struct {
	// SimTime is the simulation clock value, the authoritative axis for
	// plotting. Non-decreasing within a phase, may reset across phases.
	SimTime float64
	// DeltaT is the step size. NaN when the header did not report one.
	DeltaT float64
	// CourantMax is the maximum Courant number this step.
	CourantMax float64
	HasCourant bool
	// LinearVelocity holds the rigid body's surge/sway/heave rates.
	LinearVelocity    Vec3
	HasLinearVelocity bool
	// AngularVelocity holds the roll/pitch/yaw rates.
	AngularVelocity    Vec3
	HasAngularVelocity bool
	// CentreOfMass is the body position; the z component is the heave
	// used in the time-series outputs.
	CentreOfMass    Vec3
	HasCentreOfMass bool
	// SourcePhase is the index of the log segment the record came from.
	SourcePhase int
}
