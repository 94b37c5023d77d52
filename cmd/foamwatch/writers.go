package main

import (
	"os"
	"path/filepath"

	"foamwatch/internal/export"
	"foamwatch/internal/monitor"
	"foamwatch/internal/tui"
)

// newWriters assembles the record and status sinks for a run based on flags
// and env vars. Multiple record sinks are fanned out behind one MultiWriter.
// The returned cleanup closes whatever was opened, in reverse order, and
// must be called exactly once.
func newWriters(caseDir, runID, recordFile, greptimeEndpoint string, useTUI bool) (monitor.RecordWriter, []monitor.StatusWriter, func(), error) {
	var (
		writers []monitor.RecordWriter
		status  []monitor.StatusWriter
		closers []func() error
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if recordFile != "" {
		fw, err := monitor.NewFileWriter(recordFile)
		if err != nil {
			return nil, nil, nil, err
		}
		writers = append(writers, fw)
		closers = append(closers, fw.Close)
	}

	if greptimeEndpoint == "" {
		greptimeEndpoint = os.Getenv("GREPTIMEDB_ENDPOINT")
	}
	if greptimeEndpoint != "" {
		gw, err := export.NewGreptimeWriter(greptimeEndpoint, "public", runID, filepath.Base(caseDir))
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		writers = append(writers, gw)
		closers = append(closers, gw.Close)
	}

	if useTUI {
		tw := tui.NewWriter(caseDir)
		writers = append(writers, tw)
		status = append(status, tw)
		closers = append(closers, tw.Close)
	}

	var record monitor.RecordWriter
	switch len(writers) {
	case 0:
	case 1:
		record = writers[0]
	default:
		record = monitor.NewMultiWriter(writers...)
	}
	return record, status, cleanup, nil
}
