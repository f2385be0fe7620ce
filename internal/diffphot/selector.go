package diffphot

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/meridian-astro/photopipe/internal/photom"
)

// minScatter floors the sample standard deviation used for stability
// scoring. A comparison star with numerically zero scatter would otherwise
// get infinite stability and swallow the whole ensemble; flooring makes
// equally quiet stars share the weight instead.
const minScatter = 1e-6

type candidate struct {
	id        photom.StarID
	stability float64 // 1 / stddev of its own magnitudes; 0 if not computable
	epochs    int     // epochs with a magnitude
}

// SelectComparisonStars chooses the weighted comparison ensemble for one
// (target, passband) pair.
//
// Candidates are every star observed in the passband except the target and
// stars flagged saturated. Each candidate is scored by the inverse of the
// sample standard deviation of its own instrumental magnitudes; the top K
// by stability are kept, weights proportional to stability and normalized
// to sum to 1. Candidates with fewer than two magnitudes have no computable
// scatter: they are excluded from weighting, but if no weightable candidate
// exists at all they are used with equal weights rather than failing the
// pair.
//
// The result is deterministic for identical inputs; ties break on
// ascending star id.
func SelectComparisonStars(src Source, target photom.StarID, pb photom.Passband, opts Options) (photom.ComparisonSet, error) {
	var weighted, fallback []candidate

	for _, id := range src.StarsObservedIn(pb) {
		if id == target {
			continue
		}
		if star, ok := src.Star(id); ok && star.Saturated {
			continue
		}

		mags := magnitudesOf(src, id, pb)
		if len(mags) == 0 {
			continue
		}
		if len(mags) < 2 {
			fallback = append(fallback, candidate{id: id, epochs: len(mags)})
			continue
		}
		sd := stat.StdDev(mags, nil)
		if sd < minScatter {
			sd = minScatter
		}
		weighted = append(weighted, candidate{id: id, stability: 1 / sd, epochs: len(mags)})
	}

	if len(weighted) > 0 {
		return weightByStability(weighted, opts), nil
	}
	if len(fallback) > 0 {
		return equalWeights(fallback, opts), nil
	}
	return nil, photom.ErrInsufficientComparisonStars
}

func magnitudesOf(src Source, id photom.StarID, pb photom.Passband) []float64 {
	series := src.MeasurementsFor(id, pb)
	mags := make([]float64, 0, series.Len())
	for {
		e, ok := series.Next()
		if !ok {
			break
		}
		if e.Measurement.Mag != nil {
			mags = append(mags, *e.Measurement.Mag)
		}
	}
	return mags
}

func weightByStability(pool []candidate, opts Options) photom.ComparisonSet {
	// Most stable first; star id breaks ties so reruns agree.
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].stability != pool[j].stability {
			return pool[i].stability > pool[j].stability
		}
		return pool[i].id < pool[j].id
	})
	pool = pool[:opts.poolSize(len(pool))]

	var total float64
	for _, c := range pool {
		total += c.stability
	}
	set := make(photom.ComparisonSet, len(pool))
	for i, c := range pool {
		set[i] = photom.Weighted{Star: c.id, Weight: c.stability / total}
	}
	return set
}

func equalWeights(pool []candidate, opts Options) photom.ComparisonSet {
	sort.Slice(pool, func(i, j int) bool { return pool[i].id < pool[j].id })
	pool = pool[:opts.poolSize(len(pool))]

	w := 1 / float64(len(pool))
	set := make(photom.ComparisonSet, len(pool))
	for i, c := range pool {
		set[i] = photom.Weighted{Star: c.id, Weight: w}
	}
	return set
}
