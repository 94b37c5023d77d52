package solverlog

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Line-shape matchers for the solver's progress output. The layout is
// solver-defined free text, so matching is by labeled-field search rather
// than column position.
var (
	timePat    = regexp.MustCompile(`^Time = (\S+)`)
	deltaTPat  = regexp.MustCompile(`^deltaT = (\S+)`)
	courantPat = regexp.MustCompile(`Courant Number mean: \S+ max: (\S+)`)
	linVelPat  = regexp.MustCompile(`Linear velocity: \((\S+) (\S+) (\S+)\)`)
	angVelPat  = regexp.MustCompile(`Angular velocity: \((\S+) (\S+) (\S+)\)`)
	comPat     = regexp.MustCompile(`Centre of mass: \((\S+) (\S+) (\S+)\)`)
)

// Extractor folds logical log lines into TimestepRecords. A "Time =" header
// opens a record; subsequent recognized lines attach to it until the next
// header seals it. Lines matching no shape, or matching one with an
// unparseable value, are counted as malformed and dropped; blank lines are
// ignored without counting.
type Extractor struct {
	pending   *TimestepRecord
	malformed int
}

// NewExtractor returns an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// MalformedLines reports how many lines were skipped as unrecognized or
// partially recognized.
func (e *Extractor) MalformedLines() int {
	return e.malformed
}

// Feed consumes one logical line from the given phase. When the line starts
// a new time step, the previously open record is sealed and returned.
func (e *Extractor) Feed(line string, phase int) (TimestepRecord, bool) {
	if strings.TrimSpace(line) == "" {
		return TimestepRecord{}, false
	}
	if m := timePat.FindStringSubmatch(line); m != nil {
		t, err := parseFloat(m[1])
		if err != nil {
			e.malformed++
			return TimestepRecord{}, false
		}
		// Re-announcements of the open step (a resumed run's concatenated
		// logs repeat the boundary step) merge instead of duplicating.
		if e.pending != nil && e.pending.SourcePhase == phase && e.pending.SimTime == t {
			return TimestepRecord{}, false
		}
		sealed := e.pending
		e.pending = &TimestepRecord{SimTime: t, DeltaT: math.NaN(), SourcePhase: phase}
		if sealed != nil {
			return *sealed, true
		}
		return TimestepRecord{}, false
	}

	if m := deltaTPat.FindStringSubmatch(line); m != nil {
		v, err := parseFloat(m[1])
		if err != nil {
			e.malformed++
		} else if e.pending != nil {
			e.pending.DeltaT = v
		}
		return TimestepRecord{}, false
	}

	if m := courantPat.FindStringSubmatch(line); m != nil {
		v, err := parseFloat(m[1])
		if err != nil {
			e.malformed++
		} else if e.pending != nil {
			e.pending.CourantMax = v
			e.pending.HasCourant = true
		}
		return TimestepRecord{}, false
	}

	if m := linVelPat.FindStringSubmatch(line); m != nil {
		v, ok := parseVec3(m)
		if !ok {
			e.malformed++
		} else if e.pending != nil {
			e.pending.LinearVelocity = v
			e.pending.HasLinearVelocity = true
		}
		return TimestepRecord{}, false
	}

	if m := angVelPat.FindStringSubmatch(line); m != nil {
		v, ok := parseVec3(m)
		if !ok {
			e.malformed++
		} else if e.pending != nil {
			e.pending.AngularVelocity = v
			e.pending.HasAngularVelocity = true
		}
		return TimestepRecord{}, false
	}

	if m := comPat.FindStringSubmatch(line); m != nil {
		v, ok := parseVec3(m)
		if !ok {
			e.malformed++
		} else if e.pending != nil {
			e.pending.CentreOfMass = v
			e.pending.HasCentreOfMass = true
		}
		return TimestepRecord{}, false
	}

	e.malformed++
	return TimestepRecord{}, false
}

// Flush seals and returns the record still open at end of stream.
func (e *Extractor) Flush() (TimestepRecord, bool) {
	if e.pending == nil {
		return TimestepRecord{}, false
	}
	rec := *e.pending
	e.pending = nil
	return rec, true
}

// parseFloat accepts the solver's numeric tokens including "nan", "inf" and
// signed exponent forms. Non-finite values are meaningful physical signals
// (solver blow-up), not parse failures.
func parseFloat(tok string) (float64, error) {
	return strconv.ParseFloat(tok, 64)
}

func parseVec3(m []string) (Vec3, bool) {
	var v Vec3
	for i := 0; i < 3; i++ {
		f, err := parseFloat(m[i+1])
		if err != nil {
			return Vec3{}, false
		}
		v[i] = f
	}
	return v, true
}
