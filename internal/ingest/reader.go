// Package ingest reads the output of the photometry extraction stage and
// feeds it into the staging store and the database.
//
// The upstream stage writes plain CSV, one file per exposure, with a
// record-type tag in the first field:
//
//	image,101,2455432.60234,Johnson,V,1.19,300
//	header,OBSERVER,V. Camacho
//	star,1,10.523,118.2,0.004,512.4,498.1
//	star,2,,,,510.0,120.8
//
// The image record carries id, Julian date, passband system and band,
// airmass and exposure seconds. Star records carry id, magnitude, SNR and
// magnitude standard deviation (any of which may be empty: missing data is
// legal) plus the pixel position. A separate catalogue file lists the
// stars themselves.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/timeutil"
)

// Record is one star's measurement row from an image file.
type Record struct {
	Star        photom.StarID
	Measurement photom.Measurement
}

// ReadImageFile parses one exposure file into its image metadata and
// measurement records.
func ReadImageFile(path string) (photom.Image, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return photom.Image{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	img, records, err := readImage(f)
	if err != nil {
		return photom.Image{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, records, nil
}

func readImage(r io.Reader) (photom.Image, []Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // record types have different widths

	var (
		img     photom.Image
		records []Record
		seenImg bool
	)
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return img, nil, err
		}
		switch row[0] {
		case "image":
			if seenImg {
				return img, nil, fmt.Errorf("line %d: second image record", line)
			}
			img, err = parseImageRow(row)
			if err != nil {
				return img, nil, fmt.Errorf("line %d: %w", line, err)
			}
			seenImg = true
		case "header":
			if len(row) != 3 {
				return img, nil, fmt.Errorf("line %d: header record needs key and value", line)
			}
			if img.Headers == nil {
				img.Headers = make(map[string]string)
			}
			img.Headers[row[1]] = row[2]
		case "star":
			rec, err := parseStarRow(row)
			if err != nil {
				return img, nil, fmt.Errorf("line %d: %w", line, err)
			}
			records = append(records, rec)
		default:
			return img, nil, fmt.Errorf("line %d: unknown record type %q", line, row[0])
		}
	}
	if !seenImg {
		return img, nil, fmt.Errorf("no image record")
	}
	return img, records, nil
}

func parseImageRow(row []string) (photom.Image, error) {
	var img photom.Image
	if len(row) != 7 {
		return img, fmt.Errorf("image record needs 7 fields, got %d", len(row))
	}
	id, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return img, fmt.Errorf("image id: %w", err)
	}
	jd, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return img, fmt.Errorf("julian date: %w", err)
	}
	airmass, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return img, fmt.Errorf("airmass: %w", err)
	}
	exposure, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return img, fmt.Errorf("exposure: %w", err)
	}
	return photom.Image{
		ID:       photom.ImageID(id),
		UnixTime: timeutil.JulianToUnix(jd),
		Filter:   photom.Passband{System: row[3], Band: row[4]},
		Airmass:  airmass,
		Exposure: exposure,
	}, nil
}

func parseStarRow(row []string) (Record, error) {
	var rec Record
	if len(row) != 7 {
		return rec, fmt.Errorf("star record needs 7 fields, got %d", len(row))
	}
	id, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("star id: %w", err)
	}
	rec.Star = photom.StarID(id)
	if rec.Measurement.Mag, err = optFloat(row[2]); err != nil {
		return rec, fmt.Errorf("magnitude: %w", err)
	}
	if rec.Measurement.SNR, err = optFloat(row[3]); err != nil {
		return rec, fmt.Errorf("snr: %w", err)
	}
	if rec.Measurement.Stdev, err = optFloat(row[4]); err != nil {
		return rec, fmt.Errorf("stdev: %w", err)
	}
	if rec.Measurement.X, err = strconv.ParseFloat(row[5], 64); err != nil {
		return rec, fmt.Errorf("x: %w", err)
	}
	if rec.Measurement.Y, err = strconv.ParseFloat(row[6], 64); err != nil {
		return rec, fmt.Errorf("y: %w", err)
	}
	return rec, nil
}

// ReadStarCatalog parses the star catalogue: one row per star,
// id,ra,dec,pm_ra,pm_dec,ref_mag,saturated with the optional fields
// allowed empty.
func ReadStarCatalog(path string) ([]photom.Star, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = 7

	var stars []photom.Star
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		star, err := parseCatalogRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		stars = append(stars, star)
	}
	return stars, nil
}

func parseCatalogRow(row []string) (photom.Star, error) {
	var star photom.Star
	id, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return star, fmt.Errorf("star id: %w", err)
	}
	star.ID = photom.StarID(id)
	if star.RA, err = strconv.ParseFloat(row[1], 64); err != nil {
		return star, fmt.Errorf("ra: %w", err)
	}
	if star.Dec, err = strconv.ParseFloat(row[2], 64); err != nil {
		return star, fmt.Errorf("dec: %w", err)
	}
	if star.PMRA, err = optFloat(row[3]); err != nil {
		return star, fmt.Errorf("pm_ra: %w", err)
	}
	if star.PMDec, err = optFloat(row[4]); err != nil {
		return star, fmt.Errorf("pm_dec: %w", err)
	}
	if star.RefMag, err = optFloat(row[5]); err != nil {
		return star, fmt.Errorf("ref_mag: %w", err)
	}
	if row[6] != "" {
		if star.Saturated, err = strconv.ParseBool(row[6]); err != nil {
			return star, fmt.Errorf("saturated: %w", err)
		}
	}
	return star, nil
}

// optFloat parses an optional field: empty means absent.
func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
