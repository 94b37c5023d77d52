// Stability classification over aggregated run metrics
package classify

import (
	"fmt"
	"math"
	"time"

	"foamwatch/internal/metrics"
)

// Status is the monitor's view of the run.
type Status string

const (
	StatusRunning      Status = "RUNNING"
	StatusStable       Status = "STABLE"
	StatusFailed       Status = "FAILED"
	StatusTimeout      Status = "TIMEOUT"
	StatusInconclusive Status = "INCONCLUSIVE"
)

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Verdict pairs a status with its reason.
type Verdict struct {
	Status Status
	Reason string
}

// Limits are the classification thresholds, all sourced from configuration.
type Limits struct {
	// ExplosionThreshold is the magnitude beyond which any velocity,
	// angular rate, or Courant maximum counts as divergence.
	ExplosionThreshold float64
	// StallWindow is the run length of consecutive tiny steps that
	// classifies a stall.
	StallWindow int
	// StallProgressFraction of TargetSimTime under which sim time counts
	// as not advancing. When no target is set an absolute epsilon applies.
	StallProgressFraction float64
	// TargetSimTime, when positive, is the simulated duration whose
	// attainment classifies the run stable.
	TargetSimTime float64
	// WallClockBudget, when positive, bounds the monitor's wall-clock
	// runtime before a TIMEOUT verdict.
	WallClockBudget time.Duration
}

// Predicate inspects the aggregate and either claims a verdict or passes.
// Predicates are evaluated in fixed priority order; the first claim wins.
type Predicate interface {
	Name() string
	Evaluate(s metrics.Snapshot) (Verdict, bool)
}

// Classifier is a finite-state machine over run statuses. RUNNING is the
// initial state; all other states are terminal and absorb further input.
type Classifier struct {
	preds   []Predicate
	limits  Limits
	status  Status
	reason  string
	started time.Time
	now     func() time.Time
}

// New builds the predicate chain for the given limits. now defaults to
// time.Now and anchors the wall-clock budget.
func New(limits Limits, now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	c := &Classifier{
		limits:  limits,
		status:  StatusRunning,
		now:     now,
		started: now(),
	}
	c.preds = []Predicate{
		&divergencePredicate{threshold: limits.ExplosionThreshold},
		&stallPredicate{
			window:      limits.StallWindow,
			minProgress: minProgress(limits),
		},
		&timeoutPredicate{budget: limits.WallClockBudget, started: c.started, now: now},
		&targetReachedPredicate{target: limits.TargetSimTime},
	}
	return c
}

func minProgress(l Limits) float64 {
	p := l.StallProgressFraction * l.TargetSimTime
	if p <= 0 {
		p = 1e-6
	}
	return p
}

// Observe evaluates the predicate chain against the latest aggregate.
// Terminal states are monotone: once reached, input no longer matters.
func (c *Classifier) Observe(s metrics.Snapshot) Verdict {
	if c.status.Terminal() {
		return c.Current()
	}
	for _, p := range c.preds {
		if v, ok := p.Evaluate(s); ok {
			c.status = v.Status
			c.reason = v.Reason
			break
		}
	}
	return c.Current()
}

// StreamEnded records that the producer stopped without a terminal signal.
// A run that already met its target is stable; anything else is
// inconclusive.
func (c *Classifier) StreamEnded(s metrics.Snapshot) Verdict {
	if v := c.Observe(s); v.Status.Terminal() {
		return v
	}
	c.status = StatusInconclusive
	c.reason = "stream ended without terminal signal"
	return c.Current()
}

// Cancelled records an external stop request before any terminal state.
func (c *Classifier) Cancelled() Verdict {
	if c.status.Terminal() {
		return c.Current()
	}
	c.status = StatusInconclusive
	c.reason = "monitoring cancelled before terminal state"
	return c.Current()
}

// Current returns the present verdict.
func (c *Classifier) Current() Verdict {
	return Verdict{Status: c.status, Reason: c.reason}
}

// Terminal reports whether the FSM has reached a final state.
func (c *Classifier) Terminal() bool {
	return c.status.Terminal()
}

// divergencePredicate claims FAILED when any tracked maximum is NaN,
// infinite, or past the explosion threshold. Observed blow-ups reached
// surge velocities of order 1e87 before the solver died, so the default
// threshold leaves a wide margin above physical values.
type divergencePredicate struct {
	threshold float64
}

func (p *divergencePredicate) Name() string { return "divergence" }

func (p *divergencePredicate) Evaluate(s metrics.Snapshot) (Verdict, bool) {
	axes := [3]string{"surge", "sway", "heave"}
	rates := [3]string{"roll", "pitch", "yaw"}
	if bad, desc := p.exceeds(s.MaxCourant); bad {
		return p.verdict(fmt.Sprintf("max Courant number %s", desc)), true
	}
	for i := 0; i < 3; i++ {
		if bad, desc := p.exceeds(s.MaxAbsVelocity[i]); bad {
			return p.verdict(fmt.Sprintf("max %s velocity %s", axes[i], desc)), true
		}
		if bad, desc := p.exceeds(s.MaxAbsAngularRate[i]); bad {
			return p.verdict(fmt.Sprintf("max %s rate %s", rates[i], desc)), true
		}
	}
	return Verdict{}, false
}

func (p *divergencePredicate) exceeds(v float64) (bool, string) {
	switch {
	case math.IsNaN(v):
		return true, "is NaN"
	case math.IsInf(v, 0):
		return true, "is infinite"
	case p.threshold > 0 && v > p.threshold:
		return true, fmt.Sprintf("%.4e exceeds threshold %.1e", v, p.threshold)
	}
	return false, ""
}

func (p *divergencePredicate) verdict(detail string) Verdict {
	return Verdict{Status: StatusFailed, Reason: "divergence: " + detail}
}

// stallPredicate claims FAILED when the step size has collapsed for a full
// window without corresponding sim-time progress. This is distinct from
// divergence: values stay finite while wall-clock time burns at negligible
// per-step progress.
type stallPredicate struct {
	window      int
	minProgress float64
}

func (p *stallPredicate) Name() string { return "stall" }

func (p *stallPredicate) Evaluate(s metrics.Snapshot) (Verdict, bool) {
	if p.window <= 0 || s.ConsecutiveTinyDeltaT < p.window {
		return Verdict{}, false
	}
	progress := s.LastSimTime - s.TinyRunStartSimTime
	if progress > p.minProgress {
		return Verdict{}, false
	}
	return Verdict{
		Status: StatusFailed,
		Reason: fmt.Sprintf("stall: %d consecutive steps below deltaT floor with %.3e s progress", s.ConsecutiveTinyDeltaT, progress),
	}, true
}

// timeoutPredicate claims TIMEOUT once the wall-clock budget is spent.
type timeoutPredicate struct {
	budget  time.Duration
	started time.Time
	now     func() time.Time
}

func (p *timeoutPredicate) Name() string { return "timeout" }

func (p *timeoutPredicate) Evaluate(metrics.Snapshot) (Verdict, bool) {
	if p.budget <= 0 {
		return Verdict{}, false
	}
	elapsed := p.now().Sub(p.started)
	if elapsed < p.budget {
		return Verdict{}, false
	}
	return Verdict{
		Status: StatusTimeout,
		Reason: fmt.Sprintf("wall-clock budget %s exceeded after %s", p.budget, elapsed.Round(time.Second)),
	}, true
}

// targetReachedPredicate claims STABLE when the configured simulated
// duration has been reached with no earlier predicate firing.
type targetReachedPredicate struct {
	target float64
}

func (p *targetReachedPredicate) Name() string { return "target-reached" }

func (p *targetReachedPredicate) Evaluate(s metrics.Snapshot) (Verdict, bool) {
	if p.target <= 0 || s.Records == 0 || s.LastSimTime < p.target {
		return Verdict{}, false
	}
	return Verdict{
		Status: StatusStable,
		Reason: fmt.Sprintf("target simulation time %.4g s reached", p.target),
	}, true
}
