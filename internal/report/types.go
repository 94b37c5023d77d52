// Verification report records
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"foamwatch/internal/classify"
	"foamwatch/internal/config"
	"foamwatch/internal/metrics"
	"foamwatch/internal/solverlog"
)

// Float marshals non-finite values as quoted tokens instead of failing the
// way encoding/json does on NaN. A NaN final deltaT is a legitimate report
// value, not an encoding error.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse float token %q: %w", s, err)
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// VerificationReport is the terminal, immutable snapshot consumed by
// downstream pipeline stages as a pass/fail gate.
type VerificationReport struct {
	RunID           string                `json:"run_id"`
	CaseDir         string                `json:"case_dir"`
	Status          classify.Status       `json:"status"`
	Reason          string                `json:"reason"`
	DurationSeconds Float                 `json:"duration_seconds"`
	FinalDeltaT     Float                 `json:"final_delta_t"`
	MinDeltaT       Float                 `json:"min_delta_t"`
	MaxCourant      Float                 `json:"max_courant"`
	MaxSurgeVel     Float                 `json:"max_surge_velocity"`
	MaxPitchRate    Float                 `json:"max_pitch_rate"`
	MalformedLines  int                   `json:"malformed_lines"`
	Records         int                   `json:"records"`
	Phases          int                   `json:"phases"`
	Issues          []string              `json:"issues"`
	Limits          config.PhysicalLimits `json:"limits"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

// Build freezes a terminal aggregate and verdict into a report, evaluating
// the physical plausibility limits into the issues list. An empty runID
// gets a fresh one.
func Build(runID, caseDir string, snap metrics.Snapshot, verdict classify.Verdict, limits config.PhysicalLimits, generatedAt time.Time) VerificationReport {
	if runID == "" {
		runID = uuid.NewString()
	}
	rep := VerificationReport{
		RunID:           runID,
		CaseDir:         caseDir,
		Status:          verdict.Status,
		Reason:          verdict.Reason,
		DurationSeconds: Float(snap.LastSimTime),
		FinalDeltaT:     Float(snap.LastDeltaT),
		MinDeltaT:       Float(snap.MinDeltaT),
		MaxCourant:      Float(snap.MaxCourant),
		MaxSurgeVel:     Float(snap.MaxAbsVelocity[solverlog.AxisX]),
		MaxPitchRate:    Float(snap.MaxAbsAngularRate[solverlog.AxisY]),
		MalformedLines:  snap.MalformedLines,
		Records:         snap.Records,
		Phases:          snap.Phases,
		Issues:          []string{},
		Limits:          limits,
		GeneratedAt:     generatedAt.UTC(),
	}

	if limits.MaxCourant > 0 && snap.MaxCourant > limits.MaxCourant {
		rep.Issues = append(rep.Issues, fmt.Sprintf("max Courant %.4g exceeded limit %.4g", snap.MaxCourant, limits.MaxCourant))
	}
	if limits.MinDeltaT > 0 && !math.IsNaN(snap.MinDeltaT) && snap.MinDeltaT < limits.MinDeltaT {
		rep.Issues = append(rep.Issues, fmt.Sprintf("min timestep %.4e below limit %.4e", snap.MinDeltaT, limits.MinDeltaT))
	}
	maxVel := snap.MaxAbsVelocity[solverlog.AxisX]
	for i := 1; i < 3; i++ {
		if snap.MaxAbsVelocity[i] > maxVel || math.IsNaN(snap.MaxAbsVelocity[i]) {
			maxVel = snap.MaxAbsVelocity[i]
		}
	}
	if limits.MaxVelocity > 0 && (math.IsNaN(maxVel) || maxVel > limits.MaxVelocity) {
		rep.Issues = append(rep.Issues, fmt.Sprintf("max velocity %.4g exceeded limit %.4g", maxVel, limits.MaxVelocity))
	}
	return rep
}
