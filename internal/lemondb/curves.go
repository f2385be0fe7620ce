package lemondb

import (
	"fmt"

	"github.com/meridian-astro/photopipe/internal/photom"
)

// PutLightCurve stores the comparison set and light curve for one
// (star, filter) key, atomically replacing whatever was there before. The
// whole replace runs in a single transaction: a concurrent reader sees the
// old curve or the new curve, never a mixture, and an aborted write leaves
// the old curve intact.
//
// Writing the identical curve twice is a no-op in effect; PutLightCurve is
// the only mutation path for derived data.
func (db *DB) PutLightCurve(star photom.StarID, pb photom.Passband, cmp photom.ComparisonSet, curve photom.LightCurve) error {
	tx, err := db.Begin()
	if err != nil {
		return storageErr("put light curve", err)
	}
	defer tx.Rollback()

	fid, err := filterID(tx, pb)
	if err != nil {
		return storageErr("put light curve", err)
	}

	for _, stmt := range []string{
		`DELETE FROM cmp_stars WHERE star_id = ? AND filter_id = ?`,
		`DELETE FROM light_curves WHERE star_id = ? AND filter_id = ?`,
	} {
		if _, err := tx.Exec(stmt, star, fid); err != nil {
			return storageErr("put light curve", err)
		}
	}

	for i, w := range cmp {
		_, err := tx.Exec(
			`INSERT INTO cmp_stars (star_id, filter_id, position, cstar_id, weight)
			 VALUES (?, ?, ?, ?, ?)`,
			star, fid, i, w.Star, w.Weight)
		if err != nil {
			return storageErr("put comparison star", err)
		}
	}
	for _, p := range curve.Points {
		var snr any
		if p.SNR > 0 {
			snr = p.SNR
		}
		_, err := tx.Exec(
			`INSERT INTO light_curves (star_id, filter_id, unix_time, mag, snr)
			 VALUES (?, ?, ?, ?, ?)`,
			star, fid, p.UnixTime, p.Mag, snr)
		if err != nil {
			return storageErr("put curve point", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("put light curve", err)
	}
	return nil
}

// GetLightCurve returns the stored curve for one (star, filter) key, points
// ordered by time ascending, or photom.ErrNotFound if none exists.
func (db *DB) GetLightCurve(star photom.StarID, pb photom.Passband) (photom.LightCurve, error) {
	curve := photom.LightCurve{Star: star, Filter: pb}
	fid, err := lookupFilterID(db.DB, pb)
	if err != nil {
		return curve, err
	}

	rows, err := db.Query(
		`SELECT unix_time, mag, snr FROM light_curves
		 WHERE star_id = ? AND filter_id = ? ORDER BY unix_time`, star, fid)
	if err != nil {
		return curve, storageErr("get light curve", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p   photom.CurvePoint
			snr *float64
		)
		if err := rows.Scan(&p.UnixTime, &p.Mag, &snr); err != nil {
			return curve, storageErr("get light curve", err)
		}
		if snr != nil {
			p.SNR = *snr
		}
		curve.Points = append(curve.Points, p)
	}
	if err := rows.Err(); err != nil {
		return curve, storageErr("get light curve", err)
	}
	if len(curve.Points) == 0 {
		return curve, fmt.Errorf("light curve of star %d in %s: %w", star, pb, photom.ErrNotFound)
	}
	return curve, nil
}

// GetComparisonSet returns the stored comparison ensemble for one
// (star, filter) key, in selection order.
func (db *DB) GetComparisonSet(star photom.StarID, pb photom.Passband) (photom.ComparisonSet, error) {
	fid, err := lookupFilterID(db.DB, pb)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(
		`SELECT cstar_id, weight FROM cmp_stars
		 WHERE star_id = ? AND filter_id = ? ORDER BY position`, star, fid)
	if err != nil {
		return nil, storageErr("get comparison set", err)
	}
	defer rows.Close()

	var cmp photom.ComparisonSet
	for rows.Next() {
		var w photom.Weighted
		if err := rows.Scan(&w.Star, &w.Weight); err != nil {
			return nil, storageErr("get comparison set", err)
		}
		cmp = append(cmp, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get comparison set", err)
	}
	if len(cmp) == 0 {
		return nil, fmt.Errorf("comparison set of star %d in %s: %w", star, pb, photom.ErrNotFound)
	}
	return cmp, nil
}
