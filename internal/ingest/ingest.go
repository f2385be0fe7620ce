package ingest

import (
	"errors"

	"github.com/meridian-astro/photopipe/internal/lemondb"
	"github.com/meridian-astro/photopipe/internal/monitoring"
	"github.com/meridian-astro/photopipe/internal/photom"
)

// Result counts what an ingest run accepted and rejected. Rejected records
// are a normal outcome: a malformed coordinate or duplicate measurement
// kills that record, never the batch.
type Result struct {
	Stars        int
	Images       int
	Measurements int
	Rejected     int
	Errors       []error
}

// Run loads a star catalogue and a set of image files into both the
// staging store and the database. Per-record failures (validation,
// conflict, duplicate) are recorded in the Result and skipped; a storage
// failure aborts immediately.
func Run(store *photom.Store, db *lemondb.DB, catalogPath string, imagePaths []string) (Result, error) {
	var res Result

	stars, err := ReadStarCatalog(catalogPath)
	if err != nil {
		return res, err
	}
	for _, star := range stars {
		if err := addStar(store, db, star); err != nil {
			if fatal(err) {
				return res, err
			}
			res.reject(err)
			continue
		}
		res.Stars++
	}

	for _, path := range imagePaths {
		img, records, err := ReadImageFile(path)
		if err != nil {
			return res, err
		}
		if err := addImage(store, db, img); err != nil {
			if fatal(err) {
				return res, err
			}
			// A bad image drops all its measurements with it.
			res.reject(err)
			continue
		}
		res.Images++

		for _, rec := range records {
			if err := addMeasurement(store, db, rec.Star, img.ID, rec.Measurement); err != nil {
				if fatal(err) {
					return res, err
				}
				res.reject(err)
				continue
			}
			res.Measurements++
		}
	}

	monitoring.Logf("ingest: %d stars, %d images, %d measurements, %d rejected",
		res.Stars, res.Images, res.Measurements, res.Rejected)
	return res, nil
}

func addStar(store *photom.Store, db *lemondb.DB, star photom.Star) error {
	if err := store.AddStar(star); err != nil {
		return err
	}
	return db.AddStar(star)
}

func addImage(store *photom.Store, db *lemondb.DB, img photom.Image) error {
	if err := store.AddImage(img); err != nil {
		return err
	}
	return db.AddImage(img)
}

func addMeasurement(store *photom.Store, db *lemondb.DB, star photom.StarID, img photom.ImageID, m photom.Measurement) error {
	if err := store.Ingest(star, img, m); err != nil {
		return err
	}
	return db.AddPhotometry(star, img, m)
}

// fatal reports whether err must abort the run instead of skipping the
// record.
func fatal(err error) bool {
	var se *photom.StorageError
	return errors.As(err, &se)
}

func (r *Result) reject(err error) {
	r.Rejected++
	r.Errors = append(r.Errors, err)
	monitoring.Debugf("ingest: rejected record: %v", err)
}
