package diffphot

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/units"
)

// compEpoch is one comparison star's measurement at one image.
type compEpoch struct {
	mag float64
	snr *float64
}

// BuildLightCurve combines the target's measurements with the comparison
// ensemble into a differential light curve.
//
// For every epoch where the target has a magnitude, the ensemble magnitude
// is the weighted sum of the comparison magnitudes present at that epoch;
// weights of absent comparison stars are redistributed epoch-locally (or
// the epoch is dropped, per Options.MissingComparison). Epochs where no
// comparison star was measured become gaps, not errors. The raw
// differential series then goes through iterative worst-point rejection.
//
// The context is checked between epochs; a cancelled build returns
// ctx.Err() and no partial curve. Fewer than two surviving points yields
// an empty curve and ErrInsufficientDataPoints.
func BuildLightCurve(ctx context.Context, src Source, target photom.StarID, pb photom.Passband, cmp photom.ComparisonSet, opts Options) (photom.LightCurve, error) {
	curve := photom.LightCurve{Star: target, Filter: pb}
	if len(cmp) == 0 {
		return curve, photom.ErrInsufficientComparisonStars
	}

	// One pass per comparison star to index its magnitudes by image.
	byImage := make(map[photom.StarID]map[photom.ImageID]compEpoch, len(cmp))
	for _, w := range cmp {
		if err := ctx.Err(); err != nil {
			return curve, err
		}
		idx := make(map[photom.ImageID]compEpoch)
		series := src.MeasurementsFor(w.Star, pb)
		for {
			e, ok := series.Next()
			if !ok {
				break
			}
			if e.Measurement.Mag == nil {
				continue
			}
			idx[e.Image.ID] = compEpoch{mag: *e.Measurement.Mag, snr: e.Measurement.SNR}
		}
		byImage[w.Star] = idx
	}

	var points []photom.CurvePoint
	targets := src.MeasurementsFor(target, pb)
	for {
		if err := ctx.Err(); err != nil {
			return photom.LightCurve{Star: target, Filter: pb}, err
		}
		e, ok := targets.Next()
		if !ok {
			break
		}
		if e.Measurement.Mag == nil {
			continue
		}

		ensembleMag, ensembleErr, ok := ensembleAt(cmp, byImage, e.Image.ID, opts)
		if !ok {
			continue // gap: no usable ensemble at this epoch
		}

		targetErr := magErrOf(e.Measurement.SNR)
		points = append(points, photom.CurvePoint{
			UnixTime: e.Image.UnixTime,
			Mag:      *e.Measurement.Mag - ensembleMag,
			SNR:      snrFromErr(math.Sqrt(targetErr*targetErr + ensembleErr*ensembleErr)),
		})
	}

	points = rejectOutliers(points, opts.worstFraction())
	if len(points) < 2 {
		return curve, photom.ErrInsufficientDataPoints
	}
	sort.Slice(points, func(i, j int) bool { return points[i].UnixTime < points[j].UnixTime })
	curve.Points = points
	return curve, nil
}

// ensembleAt computes the weighted ensemble magnitude and magnitude error
// at one image. Weights of comparison stars without a measurement there are
// renormalized away over the stars that are present; the renormalization
// never leaks into other epochs.
func ensembleAt(cmp photom.ComparisonSet, byImage map[photom.StarID]map[photom.ImageID]compEpoch, img photom.ImageID, opts Options) (mag, magErr float64, ok bool) {
	var present []photom.Weighted
	var wsum float64
	for _, w := range cmp {
		if _, has := byImage[w.Star][img]; has {
			present = append(present, w)
			wsum += w.Weight
		}
	}
	if len(present) == 0 || wsum <= 0 {
		return 0, 0, false
	}
	if opts.MissingComparison == DropEpoch && len(present) < len(cmp) {
		return 0, 0, false
	}

	var errSq float64
	for _, w := range present {
		ce := byImage[w.Star][img]
		weight := w.Weight / wsum
		mag += weight * ce.mag
		e := weight * magErrOf(ce.snr)
		errSq += e * e
	}
	return mag, math.Sqrt(errSq), true
}

// rejectOutliers iteratively discards the single point deviating most from
// the running median, as long as fewer than worstFraction of the original
// points have been discarded and each removal strictly reduces the sample
// standard deviation of the series.
func rejectOutliers(points []photom.CurvePoint, worstFraction float64) []photom.CurvePoint {
	total := len(points)
	removed := 0
	for len(points) >= 3 && float64(removed+1)/float64(total) <= worstFraction {
		mags := make([]float64, len(points))
		for i, p := range points {
			mags[i] = p.Mag
		}
		sd := stat.StdDev(mags, nil)
		med := median(mags)

		worst, worstDev := 0, -1.0
		for i, m := range mags {
			if dev := math.Abs(m - med); dev > worstDev {
				worst, worstDev = i, dev
			}
		}

		trimmed := make([]float64, 0, len(mags)-1)
		trimmed = append(trimmed, mags[:worst]...)
		trimmed = append(trimmed, mags[worst+1:]...)
		if stat.StdDev(trimmed, nil) >= sd {
			break // removal no longer improves the scatter
		}

		points = append(points[:worst:worst], points[worst+1:]...)
		removed++
	}
	return points
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// magErrOf converts an optional SNR into a magnitude error; absent or
// non-positive SNR contributes no error term.
func magErrOf(snr *float64) float64 {
	if snr == nil || *snr <= 0 {
		return 0
	}
	return units.MagErrorFromSNR(*snr)
}

// snrFromErr back-converts a propagated magnitude error into a point SNR.
// Zero means no signal-to-noise information was available at that epoch.
func snrFromErr(magErr float64) float64 {
	if magErr <= 0 {
		return 0
	}
	return units.SNRFromMagError(magErr)
}
