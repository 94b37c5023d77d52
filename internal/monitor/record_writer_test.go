package monitor

import (
	"bufio"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"foamwatch/internal/report"
	"foamwatch/internal/solverlog"
)

func TestFileWriter_JSONLExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	recs := []solverlog.TimestepRecord{
		{SimTime: 0.1, DeltaT: 0.001, CourantMax: 0.2, HasCourant: true},
		{SimTime: 0.2, DeltaT: math.NaN(), LinearVelocity: solverlog.Vec3{1, 2, 3}, HasLinearVelocity: true, SourcePhase: 1},
	}
	for _, rec := range recs {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	var rows []recordRow
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row recordRow
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		rows = append(rows, row)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Courant == nil || float64(*rows[0].Courant) != 0.2 {
		t.Errorf("Unexpected first row: %+v", rows[0])
	}
	if rows[0].Velocity != nil {
		t.Errorf("Absent velocity must be omitted, got %+v", rows[0].Velocity)
	}
	if !math.IsNaN(float64(rows[1].DeltaT)) {
		t.Errorf("Expected NaN deltaT, got %v", rows[1].DeltaT)
	}
	if rows[1].Velocity == nil || float64(rows[1].Velocity[2]) != 3 {
		t.Errorf("Unexpected second row velocity: %+v", rows[1].Velocity)
	}
	if rows[1].Phase != 1 {
		t.Errorf("Expected phase 1, got %d", rows[1].Phase)
	}
}

type failingWriter struct{ err error }

func (w *failingWriter) WriteRecord(solverlog.TimestepRecord) error { return w.err }

func TestMultiWriter_FansOutAndKeepsFirstError(t *testing.T) {
	ok := &MockRecordWriter{}
	bad := &failingWriter{err: errors.New("sink down")}
	ok2 := &MockRecordWriter{}
	mw := NewMultiWriter(ok, bad, ok2)

	err := mw.WriteRecord(solverlog.TimestepRecord{SimTime: 0.1})
	if err == nil || err.Error() != "sink down" {
		t.Fatalf("Expected first error surfaced, got %v", err)
	}
	if len(ok.Records) != 1 || len(ok2.Records) != 1 {
		t.Errorf("A failing sink must not stop the others: %d, %d", len(ok.Records), len(ok2.Records))
	}
}

func TestRecordRow_OmitsUnsetFields(t *testing.T) {
	row := recordRow{SimTime: report.Float(0.1), DeltaT: report.Float(0.001)}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, absent := range []string{"courant_max", "linear_velocity", "angular_velocity", "centre_of_mass"} {
		if json.Valid(data) && containsKey(data, absent) {
			t.Errorf("Expected %s omitted, got %s", absent, data)
		}
	}
}

func containsKey(data []byte, key string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
