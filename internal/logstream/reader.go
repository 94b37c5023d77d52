// Incremental multi-phase log reading
package logstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"foamwatch/internal/logging"
)

// ErrSourceUnavailable is returned when the first log source does not
// appear within the configured grace period.
var ErrSourceUnavailable = errors.New("log source unavailable")

// Line is one complete logical line tagged with the index of the log
// segment (run phase) it came from.
type Line struct {
	Text  string
	Phase int
}

// Options controls reader behavior.
type Options struct {
	// Follow keeps polling the last phase for new content instead of
	// stopping at end of file.
	Follow bool
	// PollInterval bounds the wait between content checks when the
	// filesystem delivers no change notifications.
	PollInterval time.Duration
	// SourceGrace is how long to wait for the first phase path to appear
	// before failing with ErrSourceUnavailable.
	SourceGrace time.Duration
}

// Reader yields complete logical lines from an ordered list of phase paths.
// Phases are read strictly in order; only the last phase is followed. The
// reader never mutates the files it reads.
type Reader struct {
	paths []string
	opts  Options
}

// New creates a reader over the given phase paths.
func New(paths []string, opts Options) *Reader {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Reader{paths: paths, opts: opts}
}

// Run streams lines to out until all phases are consumed (replay mode) or
// ctx is cancelled (follow mode). It closes out on return. Incompletely
// written lines are buffered until their newline arrives; a final
// unterminated line is emitted only once its phase is known complete.
func (r *Reader) Run(ctx context.Context, out chan<- Line) error {
	defer close(out)

	if len(r.paths) == 0 {
		return fmt.Errorf("%w: no paths given", ErrSourceUnavailable)
	}
	if err := r.awaitFirst(ctx); err != nil {
		return err
	}

	for i, path := range r.paths {
		last := i == len(r.paths)-1
		follow := r.opts.Follow && last
		if err := r.readPhase(ctx, path, i, follow, out); err != nil {
			return err
		}
	}
	return nil
}

// awaitFirst waits for the first phase path to exist, retrying with capped
// exponential backoff until the grace period runs out.
func (r *Reader) awaitFirst(ctx context.Context) error {
	log := logging.FromContext(ctx)
	path := r.paths[0]
	deadline := time.Now().Add(r.opts.SourceGrace)
	delay := 100 * time.Millisecond

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if r.opts.SourceGrace <= 0 || time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("%w: %s", ErrSourceUnavailable, path)
		}
		log.Debug("waiting for log source", "path", path, "retry_in", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > 2*time.Second {
			delay = 2 * time.Second
		}
	}
}

func (r *Reader) readPhase(ctx context.Context, path string, phase int, follow bool, out chan<- Line) error {
	f, err := os.Open(path)
	if err != nil {
		if phase == 0 {
			return fmt.Errorf("%w: %s", ErrSourceUnavailable, path)
		}
		return fmt.Errorf("open phase %d: %w", phase, err)
	}
	defer f.Close()

	var watcher *fsnotify.Watcher
	if follow {
		if w, werr := fsnotify.NewWatcher(); werr == nil {
			if werr = w.Add(filepath.Dir(path)); werr == nil {
				watcher = w
				defer w.Close()
			} else {
				w.Close()
			}
		}
		// Polling alone carries follow mode when watching fails.
	}

	br := bufio.NewReader(f)
	var partial []byte

	for {
		chunk, err := br.ReadBytes('\n')
		if len(chunk) > 0 {
			partial = append(partial, chunk...)
		}
		switch {
		case err == nil:
			text := string(partial[:len(partial)-1])
			partial = partial[:0]
			if len(text) > 0 && text[len(text)-1] == '\r' {
				text = text[:len(text)-1]
			}
			select {
			case out <- Line{Text: text, Phase: phase}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case errors.Is(err, io.EOF):
			if !follow {
				// Phase is complete; flush a trailing unterminated line.
				if len(partial) > 0 {
					select {
					case out <- Line{Text: string(partial), Phase: phase}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			}
			if werr := r.wait(ctx, watcher, path); werr != nil {
				return werr
			}
		default:
			return fmt.Errorf("read phase %d: %w", phase, err)
		}
	}
}

// wait blocks until the followed file may have grown, a poll interval
// elapses, or ctx is cancelled.
func (r *Reader) wait(ctx context.Context, watcher *fsnotify.Watcher, path string) error {
	timer := time.NewTimer(r.opts.PollInterval)
	defer timer.Stop()

	if watcher == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name == path && ev.Op.Has(fsnotify.Write|fsnotify.Create) {
				return nil
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Notify failure degrades to polling.
		}
	}
}
