package monitor

import (
	"encoding/json"
	"os"

	"foamwatch/internal/report"
	"foamwatch/internal/solverlog"
)

// RecordWriter receives each merged timestep record as it is ingested.
// Implementations must not block for long; slow sinks should buffer.
type RecordWriter interface {
	WriteRecord(rec solverlog.TimestepRecord) error
}

// MultiWriter fans records out to several writers.
type MultiWriter struct {
	writers []RecordWriter
}

// NewMultiWriter combines writers into one.
func NewMultiWriter(writers ...RecordWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteRecord writes to all writers, returning the first error.
func (m *MultiWriter) WriteRecord(rec solverlog.TimestepRecord) error {
	var first error
	for _, w := range m.writers {
		if err := w.WriteRecord(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// recordRow is the JSONL wire form of a timestep record. report.Float keeps
// NaN and infinite values encodable.
type recordRow struct {
	SimTime  report.Float     `json:"sim_time"`
	DeltaT   report.Float     `json:"delta_t"`
	Courant  *report.Float    `json:"courant_max,omitempty"`
	Velocity *[3]report.Float `json:"linear_velocity,omitempty"`
	AngRate  *[3]report.Float `json:"angular_velocity,omitempty"`
	Centre   *[3]report.Float `json:"centre_of_mass,omitempty"`
	Phase    int              `json:"phase"`
}

// FileWriter exports ingested records to a JSONL file.
type FileWriter struct {
	f   *os.File
	enc *json.Encoder
}

// NewFileWriter creates the export file, truncating any previous one.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{f: f, enc: json.NewEncoder(f)}, nil
}

// WriteRecord appends one record.
func (w *FileWriter) WriteRecord(rec solverlog.TimestepRecord) error {
	row := recordRow{
		SimTime: report.Float(rec.SimTime),
		DeltaT:  report.Float(rec.DeltaT),
		Phase:   rec.SourcePhase,
	}
	if rec.HasCourant {
		c := report.Float(rec.CourantMax)
		row.Courant = &c
	}
	if rec.HasLinearVelocity {
		row.Velocity = vecRow(rec.LinearVelocity)
	}
	if rec.HasAngularVelocity {
		row.AngRate = vecRow(rec.AngularVelocity)
	}
	if rec.HasCentreOfMass {
		row.Centre = vecRow(rec.CentreOfMass)
	}
	return w.enc.Encode(row)
}

func vecRow(v solverlog.Vec3) *[3]report.Float {
	return &[3]report.Float{report.Float(v[0]), report.Float(v[1]), report.Float(v[2])}
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	return w.f.Close()
}
