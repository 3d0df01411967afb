package manifest

import (
	"testing"
	"time"
)

func TestOpenRejectsMalformedDSN(t *testing.T) {
	if _, err := Open("not-a-valid-dsn-spec"); err == nil {
		t.Fatal("Open() on a dsn with no DRIVER: prefix: want error, got nil")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("oracle:whatever"); err == nil {
		t.Fatal("Open() with unsupported driver: want error, got nil")
	}
}

func TestRecordAndQuery(t *testing.T) {
	s, err := Open("sqlite::memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	run := Run{
		FilePath:  "foo.vdex",
		Version:   "021",
		DexCount:  2,
		Unquicken: true,
		Outcome:   OutcomeOK,
		Detail:    "extracted 2 dex files",
	}
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Record(run, stamp); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	row := s.db.QueryRow(`SELECT run_id, file_path, version, dex_count, unquicken, outcome, detail, recorded_at FROM extraction_runs`)
	var runID, filePath, version, outcome, detail, recordedAt string
	var dexCount, unquicken int
	if err := row.Scan(&runID, &filePath, &version, &dexCount, &unquicken, &outcome, &detail, &recordedAt); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if runID != s.RunID {
		t.Errorf("run_id = %q, want %q", runID, s.RunID)
	}
	if filePath != "foo.vdex" || version != "021" || dexCount != 2 || unquicken != 1 || outcome != "ok" {
		t.Errorf("row = %q %q %d %d %q, unexpected values", filePath, version, dexCount, unquicken, outcome)
	}
	if recordedAt != "2026-08-01T12:00:00Z" {
		t.Errorf("recorded_at = %q, want 2026-08-01T12:00:00Z", recordedAt)
	}
}
