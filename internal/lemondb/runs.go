package lemondb

import (
	"github.com/meridian-astro/photopipe/internal/pipeline"
)

// RunRecord is the persisted summary of one pipeline batch.
type RunRecord struct {
	ID           string  `json:"id"`
	StartedUnix  float64 `json:"started_unix"`
	FinishedUnix float64 `json:"finished_unix"`
	UnitsTotal   int     `json:"units_total"`
	UnitsFailed  int     `json:"units_failed"`
}

// RecordRun stores a batch summary so the viewer can show run history.
func (db *DB) RecordRun(r pipeline.BatchResult) error {
	_, err := db.Exec(
		`INSERT INTO runs (id, started_unix, finished_unix, units_total, units_failed)
		 VALUES (?, ?, ?, ?, ?)`,
		r.RunID.String(),
		float64(r.Started.UnixNano())/1e9,
		float64(r.Finished.UnixNano())/1e9,
		len(r.Completed)+len(r.Failed),
		len(r.Failed))
	if err != nil {
		return storageErr("record run", err)
	}
	return nil
}

// Runs returns the recorded batch summaries, most recent first.
func (db *DB) Runs() ([]RunRecord, error) {
	rows, err := db.Query(
		`SELECT id, started_unix, finished_unix, units_total, units_failed
		 FROM runs ORDER BY started_unix DESC`)
	if err != nil {
		return nil, storageErr("runs", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.StartedUnix, &r.FinishedUnix, &r.UnitsTotal, &r.UnitsFailed); err != nil {
			return nil, storageErr("runs", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("runs", err)
	}
	return records, nil
}
