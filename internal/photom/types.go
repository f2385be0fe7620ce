// Package photom defines the core photometric data model shared by the
// ingestion, differential-photometry and persistence layers: stars, images,
// passbands, instrumental measurements, comparison sets and light curves.
//
// Entities reference each other only through stable integer ids, never
// through pointers, so the same values can move between the in-memory
// staging store and the sqlite database without translation.
package photom

import "fmt"

// StarID identifies a catalogued star.
type StarID int64

// ImageID identifies a single exposure.
type ImageID int64

// Passband is a photometric system plus band, e.g. {"Johnson", "V"}.
// Identity is the (System, Band) pair; the database assigns the numeric id.
type Passband struct {
	System string `json:"system"`
	Band   string `json:"band"`
}

func (p Passband) String() string {
	return p.System + " " + p.Band
}

// Star is append-only reference data: celestial coordinates plus optional
// proper motion. Saturated marks stars flagged as unreliable by the
// upstream photometry stage; they are never used as comparison stars.
type Star struct {
	ID     StarID   `json:"id"`
	RA     float64  `json:"ra"`  // degrees, [0, 360)
	Dec    float64  `json:"dec"` // degrees, [-90, 90]
	PMRA   *float64 `json:"pm_ra,omitempty"`  // deg/yr, optional
	PMDec  *float64 `json:"pm_dec,omitempty"` // deg/yr, optional
	RefMag *float64 `json:"ref_mag,omitempty"`

	Saturated bool `json:"saturated"`
}

// Validate checks the coordinate ranges. Proper motion components are
// unconstrained; they are rates, not positions.
func (s Star) Validate() error {
	if s.RA < 0 || s.RA >= 360 {
		return &ValidationError{Field: "ra", Msg: fmt.Sprintf("right ascension %g out of range [0, 360)", s.RA)}
	}
	if s.Dec < -90 || s.Dec > 90 {
		return &ValidationError{Field: "dec", Msg: fmt.Sprintf("declination %g out of range [-90, 90]", s.Dec)}
	}
	return nil
}

// Image is one exposure. UnixTime is seconds since the epoch (float64, so
// sub-second exposure midpoints survive); Julian-date conversion happens at
// the ingest and API boundaries (see internal/timeutil).
type Image struct {
	ID       ImageID           `json:"id"`
	UnixTime float64           `json:"unix_time"`
	Filter   Passband          `json:"filter"`
	Airmass  float64           `json:"airmass"`
	Exposure float64           `json:"exposure"` // seconds
	Headers  map[string]string `json:"headers,omitempty"`
}

// Measurement is the instrumental photometry of one (star, image) pair.
// Mag, SNR and Stdev may legitimately be absent (a star lost in a bad
// frame, a single-epoch detection); absence is a nil pointer, never a
// sentinel value.
type Measurement struct {
	Mag   *float64 `json:"mag,omitempty"`
	SNR   *float64 `json:"snr,omitempty"`
	Stdev *float64 `json:"stdev,omitempty"`
	X     float64  `json:"x"` // pixel position at this epoch
	Y     float64  `json:"y"`
}

// Epoch pairs an image with the target's measurement on it.
type Epoch struct {
	Image       Image
	Measurement Measurement
}

// Weighted is one comparison star and its ensemble weight.
type Weighted struct {
	Star   StarID  `json:"star"`
	Weight float64 `json:"weight"`
}

// ComparisonSet is an ordered set of weighted comparison stars for one
// (target, passband) pair. Weights of a non-empty set sum to 1 (±1e-9).
type ComparisonSet []Weighted

// WeightSum returns the total weight of the set.
func (cs ComparisonSet) WeightSum() float64 {
	var sum float64
	for _, w := range cs {
		sum += w.Weight
	}
	return sum
}

// CurvePoint is one epoch of a finished light curve.
type CurvePoint struct {
	UnixTime float64 `json:"unix_time"`
	Mag      float64 `json:"mag"` // differential magnitude
	SNR      float64 `json:"snr"` // propagated signal-to-noise ratio
}

// LightCurve is the differential-photometry result for one (star, passband)
// pair, sorted ascending by time. Gaps are simply missing epochs; an empty
// Points slice means the pair produced no usable curve.
type LightCurve struct {
	Star   StarID       `json:"star"`
	Filter Passband     `json:"filter"`
	Points []CurvePoint `json:"points"`
}

// Len returns the number of points in the curve.
func (lc LightCurve) Len() int { return len(lc.Points) }
