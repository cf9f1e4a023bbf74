// Package journal keeps a SQLite record of completed dispatch cycles, so
// persistent per-cycle failures stay observable after the logs rotate away.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/thozza/timelapser/scheduler"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	camera_sn  TEXT NOT NULL,
	filename   TEXT NOT NULL,
	taken_at   TIMESTAMP NOT NULL,
	succeeded  INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	deleted    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cycles_camera_sn ON cycles(camera_sn);
`

type Journal struct {
	log *slog.Logger
	db  *sql.DB
}

// Open creates or opens the journal database at the given path.
func Open(log *slog.Logger, path string) (*Journal, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("fail to create journal dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("fail to open journal database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("fail to create journal schema: %w", err)
	}

	return &Journal{
		log: log.With("svc", "journal"),
		db:  db,
	}, nil
}

// Record stores one cycle. Journal failures never propagate into the
// scheduler's loop; they are logged and dropped.
func (j *Journal) Record(rec scheduler.CycleRecord) {
	_, err := j.db.Exec(
		`INSERT INTO cycles (camera_sn, filename, taken_at, succeeded, failed, deleted)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.CameraSN, rec.Filename, rec.TakenAt, rec.Succeeded, rec.Failed, rec.Deleted,
	)
	if err != nil {
		j.log.Error("fail to record cycle", "camera", rec.CameraSN, "err", err)
	}
}

// Recent returns the newest records, newest first.
func (j *Journal) Recent(limit int) ([]scheduler.CycleRecord, error) {
	rows, err := j.db.Query(
		`SELECT camera_sn, filename, taken_at, succeeded, failed, deleted
		 FROM cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fail to query journal: %w", err)
	}
	defer rows.Close()

	var recs []scheduler.CycleRecord
	for rows.Next() {
		var rec scheduler.CycleRecord
		if err := rows.Scan(&rec.CameraSN, &rec.Filename, &rec.TakenAt,
			&rec.Succeeded, &rec.Failed, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("fail to scan journal row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
