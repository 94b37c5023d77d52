// Supervised solver process handles
package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"foamwatch/internal/logging"
)

// Handle wraps a solver process the monitor may terminate early. It carries
// an explicit PID and lifecycle instead of rediscovering the process by
// name pattern. A handle either owns the process (started by us) or adopts
// a PID started by the surrounding pipeline.
type Handle struct {
	mu   sync.Mutex
	cmd  *exec.Cmd // nil for adopted processes
	proc *os.Process
	pid  int
	done chan error
}

// Start launches the solver command in dir, appending its combined output
// to logPath so the monitor can follow it.
func Start(ctx context.Context, argv []string, dir, logPath string) (*Handle, error) {
	log := logging.FromContext(ctx)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty solver command")
	}

	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open solver log: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("start solver: %w", err)
	}
	log.Info("solver started", "pid", cmd.Process.Pid, "cmd", argv[0], "log", logPath)

	h := &Handle{cmd: cmd, proc: cmd.Process, pid: cmd.Process.Pid, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		out.Close()
		h.done <- err
	}()
	return h, nil
}

// Adopt attaches to an already-running process by PID, probing that it is
// alive before accepting it.
func Adopt(pid int) (*Handle, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("process %d not running: %w", pid, err)
	}
	return &Handle{proc: proc, pid: pid}, nil
}

// PID returns the supervised process ID.
func (h *Handle) PID() int {
	return h.pid
}

// Alive reports whether the process still responds to a zero signal.
func (h *Handle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aliveLocked()
}

// Stop requests graceful termination and escalates to SIGKILL after the
// grace period. It returns once the process is gone or the kill signal has
// been delivered.
func (h *Handle) Stop(ctx context.Context, grace time.Duration) error {
	log := logging.FromContext(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.aliveLocked() {
		return nil
	}
	log.Info("stopping solver", "pid", h.pid, "grace", grace)
	if err := h.proc.Signal(syscall.SIGTERM); err != nil {
		return nil // already gone
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	if h.cmd != nil {
		select {
		case err := <-h.done:
			h.done <- err
			return nil
		case <-deadline.C:
		}
	} else {
		tick := time.NewTicker(200 * time.Millisecond)
		defer tick.Stop()
	poll:
		for {
			select {
			case <-tick.C:
				if h.proc.Signal(syscall.Signal(0)) != nil {
					return nil
				}
			case <-deadline.C:
				break poll
			}
		}
	}

	log.Warn("solver ignored SIGTERM, killing", "pid", h.pid)
	if err := h.proc.Kill(); err != nil {
		return fmt.Errorf("kill pid %d: %w", h.pid, err)
	}
	return nil
}

// Wait blocks until an owned process exits; adopted processes are polled.
func (h *Handle) Wait(ctx context.Context) error {
	if h.cmd != nil {
		select {
		case err := <-h.done:
			h.done <- err
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if !h.Alive() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Handle) aliveLocked() bool {
	if h.cmd != nil {
		select {
		case err := <-h.done:
			h.done <- err
			return false
		default:
			return true
		}
	}
	return h.proc.Signal(syscall.Signal(0)) == nil
}
