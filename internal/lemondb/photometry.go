package lemondb

import (
	"database/sql"
	"fmt"

	"github.com/meridian-astro/photopipe/internal/photom"
)

// AddPhotometry records the raw measurement of one star on one image. The
// (star, image) pair is write-once: a second write is a
// *photom.DuplicateError regardless of its values.
func (db *DB) AddPhotometry(star photom.StarID, image photom.ImageID, m photom.Measurement) error {
	// Insert-or-ignore so a concurrent duplicate surfaces as
	// DuplicateError, not a constraint violation.
	res, err := db.Exec(
		`INSERT INTO photometry (star_id, image_id, mag, snr, stdev, x, y)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (star_id, image_id) DO NOTHING`,
		star, image, nullFloat(m.Mag), nullFloat(m.SNR), nullFloat(m.Stdev), m.X, m.Y)
	if err != nil {
		return storageErr("insert photometry", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("insert photometry", err)
	} else if n == 0 {
		return &photom.DuplicateError{
			Entity: "measurement",
			Key:    keyOf(star, image),
		}
	}
	return nil
}

// MeasurementRows is a lazy cursor over a photometry query, ordered by
// image timestamp ascending.
type MeasurementRows struct {
	rows *sql.Rows
}

func (mr *MeasurementRows) Next() bool { return mr.rows.Next() }

// Measurement scans the current (image, measurement) pair.
func (mr *MeasurementRows) Measurement() (photom.Epoch, error) {
	var (
		e               photom.Epoch
		mag, snr, stdev sql.NullFloat64
		headers         sql.NullString
	)
	err := mr.rows.Scan(
		&e.Image.ID, &e.Image.UnixTime, &e.Image.Filter.System, &e.Image.Filter.Band,
		&e.Image.Airmass, &e.Image.Exposure, &headers,
		&mag, &snr, &stdev, &e.Measurement.X, &e.Measurement.Y)
	if err != nil {
		return photom.Epoch{}, storageErr("scan measurement", err)
	}
	e.Measurement.Mag, e.Measurement.SNR, e.Measurement.Stdev = floatPtr(mag), floatPtr(snr), floatPtr(stdev)
	return e, nil
}

func (mr *MeasurementRows) Err() error   { return mr.rows.Err() }
func (mr *MeasurementRows) Close() error { return mr.rows.Close() }

// MeasurementsFor streams a star's raw measurements in a passband, ordered
// by image timestamp ascending.
func (db *DB) MeasurementsFor(star photom.StarID, pb photom.Passband) (*MeasurementRows, error) {
	fid, err := lookupFilterID(db.DB, pb)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT i.id, i.unix_time, f.system, f.band, i.airmass, i.exposure, i.headers_json,
		        p.mag, p.snr, p.stdev, p.x, p.y
		 FROM photometry p
		 JOIN images i ON i.id = p.image_id
		 JOIN photometric_filters f ON f.id = i.filter_id
		 WHERE p.star_id = ? AND i.filter_id = ?
		 ORDER BY i.unix_time, i.id`, star, fid)
	if err != nil {
		return nil, storageErr("measurements for", err)
	}
	return &MeasurementRows{rows: rows}, nil
}

// CountPhotometry reports the number of stored raw measurements.
func (db *DB) CountPhotometry() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM photometry`).Scan(&n); err != nil {
		return 0, storageErr("count photometry", err)
	}
	return n, nil
}

func keyOf(star photom.StarID, image photom.ImageID) string {
	return fmt.Sprintf("star %d / image %d", star, image)
}
