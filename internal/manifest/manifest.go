// Package manifest records one row per processed input file into a SQL
// table when the driver is invoked with --manifest-dsn=DRIVER:DSN, a
// pluggable connection-pool-backed store with sqlite, postgres, mysql, and
// mssql backends, narrowed to the single extraction_runs table this tool
// needs; it has no effect on the Dex bytes this tool emits and is entirely
// optional.
package manifest

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Outcome is the terminal state of processing one input file.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Run is one recorded extraction_runs row.
type Run struct {
	RunID      string
	FilePath   string
	Version    string
	DexCount   int
	Unquicken  bool
	Outcome    Outcome
	Detail     string
	RecordedAt time.Time
}

// Store owns one open database handle and the table it writes to. A single
// Store is shared across every file processed in one invocation, all
// tagged with the same RunID.
type Store struct {
	db    *sql.DB
	RunID string
}

// driverFor maps the dsn prefix the user writes (sqlite, postgres, mysql,
// mssql) to the registered database/sql driver name.
func driverFor(scheme string) (string, error) {
	switch scheme {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "mssql", "sqlserver":
		return "sqlserver", nil
	default:
		return "", fmt.Errorf("unsupported manifest database type: %s", scheme)
	}
}

// Open parses a DRIVER:DSN string, opens the connection, and creates the
// extraction_runs table if it does not already exist.
func Open(dsnSpec string) (*Store, error) {
	scheme, dsn, ok := strings.Cut(dsnSpec, ":")
	if !ok {
		return nil, fmt.Errorf("manifest dsn must be DRIVER:DSN, got %q", dsnSpec)
	}
	driverName, err := driverFor(scheme)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest store %q", scheme)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "pinging manifest store %q", scheme)
	}

	s := &Store{db: db, RunID: uuid.NewString()}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	const ddl = `CREATE TABLE IF NOT EXISTS extraction_runs (
		run_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		version TEXT NOT NULL,
		dex_count INTEGER NOT NULL,
		unquicken INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	)`
	if _, err := s.db.Exec(ddl); err != nil {
		return errors.Wrap(err, "creating extraction_runs table")
	}
	return nil
}

// Record inserts one extraction_runs row, stamped with this Store's RunID
// and the given timestamp (callers supply the clock value since this
// module never calls time.Now() inside a reused code path).
func (s *Store) Record(run Run, recordedAt time.Time) error {
	run.RunID = s.RunID
	const stmt = `INSERT INTO extraction_runs
		(run_id, file_path, version, dex_count, unquicken, outcome, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	unquicken := 0
	if run.Unquicken {
		unquicken = 1
	}
	_, err := s.db.Exec(stmt, run.RunID, run.FilePath, run.Version, run.DexCount,
		unquicken, string(run.Outcome), run.Detail, recordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "recording manifest row for %s", run.FilePath)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
