// Package diffphot implements the differential-photometry engine: the
// comparison-star selector and the light-curve builder.
//
// Differential photometry cancels shared atmospheric and instrumental
// effects by subtracting a weighted ensemble of comparison stars from the
// target star at every epoch. The selector picks the ensemble; the builder
// combines it into a light curve, rejecting outliers iteratively.
package diffphot

import (
	"github.com/meridian-astro/photopipe/internal/photom"
)

// Source provides the measurements the selector and builder consume. It is
// satisfied by *photom.Store and kept small so tests can fake it.
type Source interface {
	// StarsObservedIn returns all stars with at least one measurement in
	// the passband, sorted by id ascending.
	StarsObservedIn(pb photom.Passband) []photom.StarID

	// MeasurementsFor returns the star's measurements in the passband,
	// ordered by image timestamp ascending.
	MeasurementsFor(star photom.StarID, pb photom.Passband) *photom.Series

	// Star resolves a star id to its reference data.
	Star(id photom.StarID) (photom.Star, bool)
}

// MissingComparisonPolicy decides what happens at an epoch where some of
// the comparison stars have no measurement.
type MissingComparisonPolicy int

const (
	// Redistribute shares a missing star's weight proportionally among
	// the comparison stars that are present at that epoch. The
	// redistribution is epoch-local; weights are never borrowed from a
	// different epoch.
	Redistribute MissingComparisonPolicy = iota

	// DropEpoch skips any epoch where the ensemble is incomplete.
	DropEpoch
)

// Options carries the tunables of the engine. The zero value picks the
// defaults.
type Options struct {
	// PoolSize is the maximum number of comparison stars (K). Zero or
	// negative means min(10, available candidates).
	PoolSize int

	// WorstFraction bounds the share of light-curve points that
	// iterative rejection may discard. Zero means the default, 0.10.
	WorstFraction float64

	// MissingComparison selects the epoch-local policy for absent
	// comparison-star measurements.
	MissingComparison MissingComparisonPolicy
}

const (
	defaultPoolSize      = 10
	defaultWorstFraction = 0.10
)

func (o Options) worstFraction() float64 {
	if o.WorstFraction <= 0 {
		return defaultWorstFraction
	}
	return o.WorstFraction
}

func (o Options) poolSize(candidates int) int {
	k := o.PoolSize
	if k <= 0 {
		k = defaultPoolSize
	}
	if k > candidates {
		k = candidates
	}
	return k
}
