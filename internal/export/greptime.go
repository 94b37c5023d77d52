// GreptimeDB time-series export of ingested timestep records
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"foamwatch/internal/solverlog"
)

// TableName is the destination table for timestep records.
const TableName = "solver_timesteps"

// A flush goes out when this many rows are pending or the flush interval
// elapses, whichever comes first.
const (
	batchSize     = 64
	flushInterval = time.Second
)

// greptimeClient abstracts the ingester client for testing.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter pushes timestep records into GreptimeDB in batches, tagged
// with the run and case so several monitored runs can share a table.
// WriteRecord only queues; the network round trips happen on a background
// goroutine so ingestion never stalls behind the database.
type GreptimeWriter struct {
	client   greptimeClient
	runID    string
	caseName string
	now      func() time.Time
	log      *slog.Logger

	mu      sync.Mutex
	pending []pendingRow
	lastErr error

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

type pendingRow struct {
	rec solverlog.TimestepRecord
	ts  time.Time
}

// NewGreptimeWriter connects to a GreptimeDB endpoint ("host" or
// "host:port") and returns a writer for the given run identity.
func NewGreptimeWriter(endpoint, database, runID, caseName string) (*GreptimeWriter, error) {
	host := endpoint
	port := 4001
	if h, p, ok := strings.Cut(endpoint, ":"); ok {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid greptime endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	cli, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return newWriter(cli, runID, caseName), nil
}

func newWriter(cli greptimeClient, runID, caseName string) *GreptimeWriter {
	w := &GreptimeWriter{
		client:   cli,
		runID:    runID,
		caseName: caseName,
		now:      time.Now,
		log:      slog.Default(),
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// WriteRecord queues one timestep record for the next batch. It never
// blocks on the network.
func (w *GreptimeWriter) WriteRecord(rec solverlog.TimestepRecord) error {
	w.mu.Lock()
	w.pending = append(w.pending, pendingRow{rec: rec, ts: w.now().UTC()})
	full := len(w.pending) >= batchSize
	w.mu.Unlock()
	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close flushes the remaining rows and reports the last failed flush.
func (w *GreptimeWriter) Close() error {
	close(w.stop)
	<-w.done
	if err := w.flush(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *GreptimeWriter) run() {
	defer close(w.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		case <-w.kick:
		}
		if err := w.flush(); err != nil {
			w.log.Error("greptime flush failed", "err", err)
			w.mu.Lock()
			w.lastErr = err
			w.mu.Unlock()
		}
	}
}

// flush drains the pending rows into one table and performs a single write.
func (w *GreptimeWriter) flush() error {
	w.mu.Lock()
	rows := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(TableName)
	if err != nil {
		return err
	}
	if err := addColumns(tbl); err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(
			w.runID,
			w.caseName,
			r.rec.SimTime,
			r.rec.DeltaT,
			r.rec.CourantMax,
			r.rec.LinearVelocity[solverlog.AxisX],
			r.rec.LinearVelocity[solverlog.AxisY],
			r.rec.LinearVelocity[solverlog.AxisZ],
			r.rec.AngularVelocity[solverlog.AxisX],
			r.rec.AngularVelocity[solverlog.AxisY],
			r.rec.AngularVelocity[solverlog.AxisZ],
			r.rec.CentreOfMass[solverlog.AxisZ],
			int64(r.rec.SourcePhase),
			r.ts,
		); err != nil {
			return err
		}
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	return nil
}

func addColumns(tbl *table.Table) error {
	if err := tbl.AddTagColumn("run_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("case", types.STRING); err != nil {
		return err
	}
	for _, col := range []string{
		"sim_time", "delta_t", "courant_max",
		"vel_x", "vel_y", "vel_z",
		"rate_x", "rate_y", "rate_z",
		"heave",
	} {
		if err := tbl.AddFieldColumn(col, types.FLOAT); err != nil {
			return err
		}
	}
	if err := tbl.AddFieldColumn("phase", types.INT64); err != nil {
		return err
	}
	return tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
}
