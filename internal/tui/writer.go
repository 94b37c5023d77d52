// Live terminal status view for follow mode
package tui

import (
	"fmt"
	"os"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"foamwatch/internal/monitor"
	"foamwatch/internal/solverlog"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// Writer renders record and status updates in a bubbletea TUI. It
// implements monitor.RecordWriter and monitor.StatusWriter.
type Writer struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewWriter starts the TUI program. When the user quits the view, the
// monitor process is interrupted so follow mode winds down cleanly.
func NewWriter(caseDir string) *Writer {
	width, height := 100, 30
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}
	p := tea.NewProgram(newModel(caseDir, width, height), tea.WithAltScreen())
	w := &Writer{program: p, done: make(chan struct{})}
	w.sendSignal.Store(true)
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteRecord implements monitor.RecordWriter.
func (w *Writer) WriteRecord(rec solverlog.TimestepRecord) error {
	line := fmt.Sprintf("t=%-12.6g dt=%-10.3g", rec.SimTime, rec.DeltaT)
	if rec.HasCourant {
		line += fmt.Sprintf(" Co=%-8.4g", rec.CourantMax)
	}
	if rec.HasLinearVelocity {
		v := rec.LinearVelocity
		line += fmt.Sprintf(" U=(%.3g %.3g %.3g)", v[0], v[1], v[2])
	}
	if rec.HasAngularVelocity {
		v := rec.AngularVelocity
		line += fmt.Sprintf(" omega=(%.3g %.3g %.3g)", v[0], v[1], v[2])
	}
	w.program.Send(recordMsg{line: line})
	return nil
}

// WriteStatus implements monitor.StatusWriter.
func (w *Writer) WriteStatus(s monitor.StatusUpdate) error {
	w.program.Send(statusMsg{update: s})
	return nil
}

// Close shuts down the TUI and waits for teardown.
func (w *Writer) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}
