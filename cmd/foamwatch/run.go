package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"foamwatch/internal/classify"
	"foamwatch/internal/config"
	"foamwatch/internal/logging"
	"foamwatch/internal/monitor"
	"foamwatch/internal/report"
	"foamwatch/internal/supervise"
)

// caseParams collects everything a monitoring run needs beyond the case
// directory itself. Both watch and verify funnel through runCase.
type caseParams struct {
	caseDir  string
	follow   bool
	autoExit bool

	configPath string
	schemaPath string
	logs       []string
	output     string

	timeout     float64 // seconds
	targetTime  float64
	explosion   float64
	stallWindow int

	recordFile string
	greptime   string
	useTUI     bool
	verbose    bool

	solverCmd string
	solverPID int

	// flagChanged reports whether a flag was set explicitly, so config
	// values are only overridden when the user asked for it.
	flagChanged func(name string) bool
}

// runCase wires the configured writers, the optional supervised solver, and
// the monitor together and runs until a terminal classification. The process
// exits zero for any written classification, FAILED included; a non-nil
// return means an operational failure.
func runCase(p caseParams) error {
	logger := logging.New(p.verbose)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	cfg, err := config.Load(p.configPath, p.schemaPath)
	if err != nil {
		return err
	}
	if p.flagChanged("target-time") {
		cfg.Thresholds.TargetSimTime = p.targetTime
	}
	if p.flagChanged("explosion-threshold") {
		cfg.Thresholds.ExplosionThreshold = p.explosion
	}
	if p.flagChanged("stall-window") {
		cfg.Thresholds.StallWindow = p.stallWindow
	}

	logs := p.logs
	if len(logs) == 0 {
		logs = []string{cfg.Monitor.LogFile}
	}
	paths := make([]string, 0, len(logs))
	for _, l := range logs {
		if !filepath.IsAbs(l) {
			l = filepath.Join(p.caseDir, l)
		}
		paths = append(paths, l)
	}

	outDir := p.output
	if outDir == "" {
		outDir = filepath.Join(p.caseDir, "verification")
	}

	runID := uuid.NewString()
	recordWriter, statusWriters, cleanup, err := newWriters(p.caseDir, runID, p.recordFile, p.greptime, p.useTUI)
	if err != nil {
		return err
	}
	var closeOnce sync.Once
	closeWriters := func() { closeOnce.Do(cleanup) }
	defer closeWriters()

	var solver *supervise.Handle
	owned := false
	switch {
	case p.solverCmd != "":
		argv := strings.Fields(p.solverCmd)
		solver, err = supervise.Start(ctx, argv, p.caseDir, paths[len(paths)-1])
		if err != nil {
			return err
		}
		owned = true
	case p.solverPID != 0:
		solver, err = supervise.Adopt(p.solverPID)
		if err != nil {
			return err
		}
		logger.Info("solver adopted", "pid", solver.PID())
	}

	m := monitor.New(monitor.Options{
		RunID:    runID,
		CaseDir:  p.caseDir,
		LogPaths: paths,
		OutDir:   outDir,
		Follow:   p.follow,
		AutoExit: p.autoExit,
		Limits: classify.Limits{
			ExplosionThreshold:    cfg.Thresholds.ExplosionThreshold,
			StallWindow:           cfg.Thresholds.StallWindow,
			StallProgressFraction: cfg.Thresholds.StallProgressFraction,
			TargetSimTime:         cfg.Thresholds.TargetSimTime,
			WallClockBudget:       time.Duration(p.timeout * float64(time.Second)),
		},
		DeltaTFloor:    cfg.Thresholds.DeltaTFloor,
		PhysicalLimits: cfg.Limits,
		PollInterval:   cfg.Monitor.PollInterval(),
		StatusInterval: cfg.Monitor.StatusInterval(),
		SourceGrace:    cfg.Monitor.SourceGrace(),
		IdleGrace:      cfg.Monitor.IdleGrace(),
		KillGrace:      cfg.Monitor.KillGrace(),
		Solver:         solver,
		Writer:         recordWriter,
		StatusWriters:  statusWriters,
	})

	rep, runErr := m.Run(ctx)

	// A solver we started does not outlive the monitor. Auto-exit has
	// usually stopped it already; this covers cancellation and stream-end.
	if owned && solver.Alive() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.KillGrace()+5*time.Second)
		if err := solver.Stop(stopCtx, cfg.Monitor.KillGrace()); err != nil {
			logger.Error("solver stop failed", "error", err)
		}
		cancel()
	}
	closeWriters()

	if runErr != nil {
		return runErr
	}
	fmt.Printf("%s: %s\n", rep.Status, rep.Reason)
	fmt.Printf("report written to %s\n", filepath.Join(outDir, report.ReportFile))
	return nil
}
