package lemondb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/meridian-astro/photopipe/internal/photom"
)

// AddFilter registers a passband and returns its row id. Idempotent; the
// (system, band) pair is the identity, so there is nothing to conflict on.
func (db *DB) AddFilter(pb photom.Passband) (int64, error) {
	if pb.System == "" || pb.Band == "" {
		return 0, &photom.ValidationError{Field: "filter", Msg: "system and band must be non-empty"}
	}
	id, err := filterID(db.DB, pb)
	if err != nil {
		return 0, storageErr("add filter", err)
	}
	return id, nil
}

// Filters returns every registered passband, ordered by row id.
func (db *DB) Filters() ([]photom.Passband, error) {
	rows, err := db.Query(`SELECT system, band FROM photometric_filters ORDER BY id`)
	if err != nil {
		return nil, storageErr("filters", err)
	}
	defer rows.Close()
	var filters []photom.Passband
	for rows.Next() {
		var pb photom.Passband
		if err := rows.Scan(&pb.System, &pb.Band); err != nil {
			return nil, storageErr("filters", err)
		}
		filters = append(filters, pb)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("filters", err)
	}
	return filters, nil
}

// AddImage upserts immutable image reference data, registering the image's
// passband on the way. Same conflict semantics as AddStar.
func (db *DB) AddImage(img photom.Image) error {
	fid, err := filterID(db.DB, img.Filter)
	if err != nil {
		return storageErr("add image", err)
	}
	headers, err := encodeHeaders(img.Headers)
	if err != nil {
		return &photom.ValidationError{Field: "headers", Msg: err.Error()}
	}
	// Insert-or-ignore, then compare: racing writers never see a raw
	// constraint violation, only the conflict taxonomy.
	res, err := db.Exec(
		`INSERT INTO images (id, unix_time, filter_id, airmass, exposure, headers_json)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		img.ID, img.UnixTime, fid, img.Airmass, img.Exposure, headers)
	if err != nil {
		return storageErr("insert image", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("insert image", err)
	} else if n > 0 {
		return nil
	}

	existing, err := db.GetImage(img.ID)
	if err != nil {
		return err
	}
	if !sameImage(existing, img) {
		return &photom.ConflictError{Entity: "image", ID: int64(img.ID)}
	}
	return nil
}

// GetImage returns the image with the given id, or photom.ErrNotFound.
func (db *DB) GetImage(id photom.ImageID) (photom.Image, error) {
	row := db.QueryRow(
		`SELECT i.id, i.unix_time, f.system, f.band, i.airmass, i.exposure, i.headers_json
		 FROM images i JOIN photometric_filters f ON f.id = i.filter_id
		 WHERE i.id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return photom.Image{}, fmt.Errorf("image %d: %w", id, photom.ErrNotFound)
	}
	if err != nil {
		return photom.Image{}, storageErr("get image", err)
	}
	return img, nil
}

// ImageRows is a lazy cursor over an image query.
type ImageRows struct {
	rows *sql.Rows
}

func (ir *ImageRows) Next() bool { return ir.rows.Next() }

func (ir *ImageRows) Image() (photom.Image, error) {
	img, err := scanImage(ir.rows)
	if err != nil {
		return photom.Image{}, storageErr("scan image", err)
	}
	return img, nil
}

func (ir *ImageRows) Err() error   { return ir.rows.Err() }
func (ir *ImageRows) Close() error { return ir.rows.Close() }

// ImagesByFilter streams the images taken through a passband, ordered by
// timestamp ascending.
func (db *DB) ImagesByFilter(pb photom.Passband) (*ImageRows, error) {
	fid, err := lookupFilterID(db.DB, pb)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT i.id, i.unix_time, f.system, f.band, i.airmass, i.exposure, i.headers_json
		 FROM images i JOIN photometric_filters f ON f.id = i.filter_id
		 WHERE i.filter_id = ? ORDER BY i.unix_time, i.id`, fid)
	if err != nil {
		return nil, storageErr("images by filter", err)
	}
	return &ImageRows{rows: rows}, nil
}

// ImagesBetween streams the images with t0 <= unix_time <= t1, ordered by
// timestamp ascending, across all filters.
func (db *DB) ImagesBetween(t0, t1 float64) (*ImageRows, error) {
	rows, err := db.Query(
		`SELECT i.id, i.unix_time, f.system, f.band, i.airmass, i.exposure, i.headers_json
		 FROM images i JOIN photometric_filters f ON f.id = i.filter_id
		 WHERE i.unix_time BETWEEN ? AND ? ORDER BY i.unix_time, i.id`, t0, t1)
	if err != nil {
		return nil, storageErr("images between", err)
	}
	return &ImageRows{rows: rows}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (photom.Image, error) {
	var (
		img     photom.Image
		headers sql.NullString
	)
	err := row.Scan(&img.ID, &img.UnixTime, &img.Filter.System, &img.Filter.Band,
		&img.Airmass, &img.Exposure, &headers)
	if err != nil {
		return photom.Image{}, err
	}
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &img.Headers); err != nil {
			return photom.Image{}, fmt.Errorf("decode headers: %w", err)
		}
	}
	return img, nil
}

func encodeHeaders(h map[string]string) (sql.NullString, error) {
	if len(h) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func sameImage(a, b photom.Image) bool {
	return a.ID == b.ID && a.UnixTime == b.UnixTime && a.Filter == b.Filter &&
		a.Airmass == b.Airmass && a.Exposure == b.Exposure &&
		maps.Equal(a.Headers, b.Headers)
}
