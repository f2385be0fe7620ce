package lemondb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/meridian-astro/photopipe/internal/photom"
)

// AddStar upserts immutable star reference data. Re-adding an identical
// star is a no-op; a different star under an existing id is a
// *photom.ConflictError.
func (db *DB) AddStar(star photom.Star) error {
	if err := star.Validate(); err != nil {
		return err
	}
	// Insert-or-ignore first so two writers racing on the same id both
	// take the compare path instead of one hitting a constraint error.
	res, err := db.Exec(
		`INSERT INTO stars (id, ra, dec, pm_ra, pm_dec, ref_mag, saturated)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		star.ID, star.RA, star.Dec,
		nullFloat(star.PMRA), nullFloat(star.PMDec), nullFloat(star.RefMag),
		star.Saturated)
	if err != nil {
		return storageErr("insert star", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("insert star", err)
	} else if n > 0 {
		return nil
	}

	existing, err := db.GetStar(star.ID)
	if err != nil {
		return err
	}
	if !sameStar(existing, star) {
		return &photom.ConflictError{Entity: "star", ID: int64(star.ID)}
	}
	return nil
}

// GetStar returns the star with the given id, or photom.ErrNotFound.
func (db *DB) GetStar(id photom.StarID) (photom.Star, error) {
	var (
		star                photom.Star
		pmRA, pmDec, refMag sql.NullFloat64
	)
	err := db.QueryRow(
		`SELECT id, ra, dec, pm_ra, pm_dec, ref_mag, saturated FROM stars WHERE id = ?`, id).
		Scan(&star.ID, &star.RA, &star.Dec, &pmRA, &pmDec, &refMag, &star.Saturated)
	if errors.Is(err, sql.ErrNoRows) {
		return photom.Star{}, fmt.Errorf("star %d: %w", id, photom.ErrNotFound)
	}
	if err != nil {
		return photom.Star{}, storageErr("get star", err)
	}
	star.PMRA, star.PMDec, star.RefMag = floatPtr(pmRA), floatPtr(pmDec), floatPtr(refMag)
	return star, nil
}

// StarIDs returns every star id, ascending.
func (db *DB) StarIDs() ([]photom.StarID, error) {
	rows, err := db.Query(`SELECT id FROM stars ORDER BY id`)
	if err != nil {
		return nil, storageErr("star ids", err)
	}
	defer rows.Close()
	var ids []photom.StarID
	for rows.Next() {
		var id photom.StarID
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("star ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("star ids", err)
	}
	return ids, nil
}

// CountStars reports the number of catalogued stars.
func (db *DB) CountStars() (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM stars`).Scan(&n); err != nil {
		return 0, storageErr("count stars", err)
	}
	return n, nil
}

// StarRows is a lazy cursor over a star query, backed by sql.Rows.
type StarRows struct {
	rows *sql.Rows
}

// Next advances the cursor.
func (sr *StarRows) Next() bool { return sr.rows.Next() }

// Star scans the current row.
func (sr *StarRows) Star() (photom.Star, error) {
	var (
		star                photom.Star
		pmRA, pmDec, refMag sql.NullFloat64
	)
	err := sr.rows.Scan(&star.ID, &star.RA, &star.Dec, &pmRA, &pmDec, &refMag, &star.Saturated)
	if err != nil {
		return photom.Star{}, storageErr("scan star", err)
	}
	star.PMRA, star.PMDec, star.RefMag = floatPtr(pmRA), floatPtr(pmDec), floatPtr(refMag)
	return star, nil
}

// Err reports the first error hit during iteration.
func (sr *StarRows) Err() error { return sr.rows.Err() }

// Close releases the cursor. Always call it, even after full iteration.
func (sr *StarRows) Close() error { return sr.rows.Close() }

// StarsInBox streams the stars inside a celestial-coordinate box, ordered
// by id. The box is inclusive on both axes; it does not wrap through RA 0.
func (db *DB) StarsInBox(raMin, raMax, decMin, decMax float64) (*StarRows, error) {
	rows, err := db.Query(
		`SELECT id, ra, dec, pm_ra, pm_dec, ref_mag, saturated FROM stars
		 WHERE ra BETWEEN ? AND ? AND dec BETWEEN ? AND ? ORDER BY id`,
		raMin, raMax, decMin, decMax)
	if err != nil {
		return nil, storageErr("stars in box", err)
	}
	return &StarRows{rows: rows}, nil
}

func sameStar(a, b photom.Star) bool {
	return a.ID == b.ID && a.RA == b.RA && a.Dec == b.Dec &&
		samePtr(a.PMRA, b.PMRA) && samePtr(a.PMDec, b.PMDec) &&
		samePtr(a.RefMag, b.RefMag) && a.Saturated == b.Saturated
}

func samePtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
