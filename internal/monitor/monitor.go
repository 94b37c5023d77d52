// Monitor orchestrating log ingestion, classification, and reporting
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"foamwatch/internal/classify"
	"foamwatch/internal/config"
	"foamwatch/internal/logging"
	"foamwatch/internal/logstream"
	"foamwatch/internal/metrics"
	"foamwatch/internal/report"
	"foamwatch/internal/solverlog"
	"foamwatch/internal/supervise"
)

// producerExitGrace is how long after a supervised solver's exit the stream
// may stay silent before the run is classified from what has been seen.
const producerExitGrace = 5 * time.Second

// Options configures a monitoring run.
type Options struct {
	// RunID tags the report and every exported row; empty means generated.
	RunID    string
	CaseDir  string
	LogPaths []string
	OutDir   string

	// Follow keeps tailing the last log phase; replay mode stops at EOF.
	Follow bool
	// AutoExit terminates the supervised solver once a terminal status is
	// observed instead of letting it run out its configured duration.
	AutoExit bool

	Limits         classify.Limits
	DeltaTFloor    float64
	PhysicalLimits config.PhysicalLimits

	PollInterval   time.Duration
	StatusInterval time.Duration
	SourceGrace    time.Duration
	IdleGrace      time.Duration
	KillGrace      time.Duration

	// Solver is the supervised external process, when the monitor was
	// given one. The monitor never signals it except on auto-exit.
	Solver *supervise.Handle

	// Writer receives every merged record; fan out with NewMultiWriter.
	Writer        RecordWriter
	StatusWriters []StatusWriter

	// Now supplies wall-clock time; defaults to time.Now.
	Now func() time.Time
}

// Monitor runs one read-parse-aggregate-classify loop plus a periodic
// reporting/auto-exit ticker. RunMetrics and the classifier are the only
// shared mutable state, owned by mu; the ingest side holds the lock briefly
// per record and the ticker only takes snapshots, so ingestion never stalls
// behind reporting work.
type Monitor struct {
	opts Options
	now  func() time.Time

	mu           sync.Mutex
	agg          *metrics.RunMetrics
	cls          *classify.Classifier
	ext          *solverlog.Extractor
	lastActivity time.Time

	// wmu serializes record writes; idle-grace sealing emits from the
	// ticker goroutine while ingestion emits from its own.
	wmu sync.Mutex

	terminalOnce sync.Once
	terminalCh   chan struct{}
}

// New creates a monitor for the given options.
func New(opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 2 * time.Second
	}
	return &Monitor{
		opts:       opts,
		now:        opts.Now,
		agg:        metrics.NewRunMetrics(opts.DeltaTFloor, opts.Now),
		cls:        classify.New(opts.Limits, opts.Now),
		ext:        solverlog.NewExtractor(),
		terminalCh: make(chan struct{}),
	}
}

// Run monitors until a terminal classification, end of stream, or
// cancellation, then emits the report artifacts and, on auto-exit, stops
// the supervised solver. The returned report is nil only on operational
// failure (source unavailable, emission failure).
func (m *Monitor) Run(ctx context.Context) (*report.VerificationReport, error) {
	log := logging.FromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader := logstream.New(m.opts.LogPaths, logstream.Options{
		Follow:       m.opts.Follow,
		PollInterval: m.opts.PollInterval,
		SourceGrace:  m.opts.SourceGrace,
	})
	lines := make(chan logstream.Line, 512)
	readErr := make(chan error, 1)
	go func() { readErr <- reader.Run(ctx, lines) }()

	m.mu.Lock()
	m.lastActivity = m.now()
	m.mu.Unlock()

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		m.ingest(ctx, lines)
	}()

	ticker := time.NewTicker(m.opts.StatusInterval)
	defer ticker.Stop()

	cancelled := false
loop:
	for {
		select {
		case <-m.terminalCh:
			break loop
		case <-ingestDone:
			break loop
		case <-ticker.C:
			m.poll(ctx)
		case <-ctx.Done():
			cancelled = true
			break loop
		}
	}

	cancel()
	<-ingestDone
	rerr := <-readErr
	switch {
	case rerr == nil, errors.Is(rerr, context.Canceled):
		// Cancellation is how the reader is shut down after a terminal
		// classification or an interrupt.
	case errors.Is(rerr, logstream.ErrSourceUnavailable):
		return nil, rerr
	default:
		m.mu.Lock()
		terminal := m.cls.Terminal()
		m.mu.Unlock()
		if !terminal {
			return nil, fmt.Errorf("log stream: %w", rerr)
		}
		log.Error("log read failed after terminal classification", "err", rerr)
	}

	m.mu.Lock()
	var verdict classify.Verdict
	switch {
	case m.cls.Terminal():
		verdict = m.cls.Current()
	case cancelled:
		verdict = m.cls.Cancelled()
	default:
		verdict = m.cls.StreamEnded(m.agg.Snapshot())
	}
	snap := m.agg.Snapshot()
	series := m.agg.Series()
	m.mu.Unlock()

	log.Info("run classified", "status", verdict.Status, "reason", verdict.Reason,
		"sim_time", snap.LastSimTime, "records", snap.Records, "malformed", snap.MalformedLines)

	rep := report.Build(m.opts.RunID, m.opts.CaseDir, snap, verdict, m.opts.PhysicalLimits, m.now())
	if err := report.NewEmitter(m.opts.OutDir).Emit(rep, series); err != nil {
		return nil, err
	}
	m.pushStatus(ctx, snap, verdict)

	if m.opts.AutoExit && m.opts.Solver != nil && m.opts.Solver.Alive() {
		if err := m.opts.Solver.Stop(ctx, m.opts.KillGrace); err != nil {
			log.Error("solver termination failed", "err", err)
		}
	}
	return &rep, nil
}

// ingest drains the line stream into the aggregate, evaluating the
// classifier after every emitted record.
func (m *Monitor) ingest(ctx context.Context, lines <-chan logstream.Line) {
	log := logging.FromContext(ctx)
	for ln := range lines {
		rec, ok, terminal := m.feed(ln)
		if ok {
			m.writeRecord(log, rec)
		}
		if terminal {
			m.signalTerminal()
			return
		}
	}
	// End of stream: seal the record still open in the extractor.
	if rec, ok, terminal := m.flush(); ok {
		m.writeRecord(log, rec)
		if terminal {
			m.signalTerminal()
		}
	}
}

func (m *Monitor) feed(ln logstream.Line) (solverlog.TimestepRecord, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
	rec, ok := m.ext.Feed(ln.Text, ln.Phase)
	m.agg.MalformedLines = m.ext.MalformedLines()
	if !ok {
		return solverlog.TimestepRecord{}, false, false
	}
	m.agg.Apply(rec)
	v := m.cls.Observe(m.agg.Snapshot())
	return rec, true, v.Status.Terminal()
}

func (m *Monitor) flush() (solverlog.TimestepRecord, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.ext.Flush()
	if !ok {
		return solverlog.TimestepRecord{}, false, false
	}
	m.agg.Apply(rec)
	v := m.cls.Observe(m.agg.Snapshot())
	return rec, true, v.Status.Terminal()
}

func (m *Monitor) writeRecord(log *slog.Logger, rec solverlog.TimestepRecord) {
	if m.opts.Writer == nil {
		return
	}
	m.wmu.Lock()
	defer m.wmu.Unlock()
	if err := m.opts.Writer.WriteRecord(rec); err != nil {
		log.Error("record write failed", "err", err)
	}
}

// poll is the reporting/auto-exit tick: re-evaluates time-based predicates,
// detects a silent stream, and pushes a status update.
func (m *Monitor) poll(ctx context.Context) {
	log := logging.FromContext(ctx)
	solverGone := m.opts.Solver != nil && !m.opts.Solver.Alive()

	m.mu.Lock()
	idle := m.now().Sub(m.lastActivity)
	var sealed *solverlog.TimestepRecord
	if !m.cls.Terminal() {
		v := m.cls.Observe(m.agg.Snapshot())
		if !v.Status.Terminal() && m.opts.Follow {
			grace := m.opts.IdleGrace
			if solverGone {
				grace = producerExitGrace
			}
			if grace > 0 && idle > grace {
				// The producer went quiet mid-step; the final step's
				// evidence may still sit unsealed in the extractor. Seal
				// and classify it before declaring the stream ended.
				if rec, ok := m.ext.Flush(); ok {
					m.agg.MalformedLines = m.ext.MalformedLines()
					m.agg.Apply(rec)
					sealed = &rec
					v = m.cls.Observe(m.agg.Snapshot())
				}
				if !v.Status.Terminal() {
					m.cls.StreamEnded(m.agg.Snapshot())
				}
			}
		}
	}
	snap := m.agg.Snapshot()
	verdict := m.cls.Current()
	m.mu.Unlock()

	if sealed != nil {
		m.writeRecord(log, *sealed)
	}
	m.pushStatus(ctx, snap, verdict)
	if verdict.Status.Terminal() {
		m.signalTerminal()
	}
}

func (m *Monitor) pushStatus(ctx context.Context, snap metrics.Snapshot, verdict classify.Verdict) {
	if len(m.opts.StatusWriters) == 0 {
		return
	}
	log := logging.FromContext(ctx)
	var elapsed time.Duration
	if !snap.StartWallClock.IsZero() {
		elapsed = m.now().Sub(snap.StartWallClock)
	}
	update := StatusUpdate{
		Status:     verdict.Status,
		Reason:     verdict.Reason,
		SimTime:    snap.LastSimTime,
		DeltaT:     snap.LastDeltaT,
		MaxCourant: snap.MaxCourant,
		Records:    snap.Records,
		Malformed:  snap.MalformedLines,
		Phases:     snap.Phases,
		Elapsed:    elapsed,
	}
	for _, w := range m.opts.StatusWriters {
		if err := w.WriteStatus(update); err != nil {
			log.Error("status write failed", "err", err)
		}
	}
}

func (m *Monitor) signalTerminal() {
	m.terminalOnce.Do(func() { close(m.terminalCh) })
}
