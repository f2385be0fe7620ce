// Package units provides conversions between the photometric quantities the
// pipeline juggles: instrumental magnitudes, fluxes, signal-to-noise ratios
// and magnitude errors.
package units

import "math"

// pogson is 2.5 / ln(10), the factor relating relative flux error to
// magnitude error in the Pogson scale.
const pogson = 2.5 / math.Ln10 // ~1.0857

// MagErrorFromSNR converts a signal-to-noise ratio into the corresponding
// one-sigma magnitude error. Returns +Inf for non-positive SNR.
func MagErrorFromSNR(snr float64) float64 {
	if snr <= 0 {
		return math.Inf(1)
	}
	return pogson / snr
}

// SNRFromMagError is the inverse of MagErrorFromSNR. Returns +Inf for
// non-positive errors.
func SNRFromMagError(magErr float64) float64 {
	if magErr <= 0 {
		return math.Inf(1)
	}
	return pogson / magErr
}

// FluxRatio converts a magnitude difference into a flux ratio: a star
// deltaMag magnitudes fainter has FluxRatio(deltaMag) times the flux.
func FluxRatio(deltaMag float64) float64 {
	return math.Pow(10, -0.4*deltaMag)
}

// DeltaMag converts a flux ratio into a magnitude difference. Returns NaN
// for non-positive ratios.
func DeltaMag(fluxRatio float64) float64 {
	if fluxRatio <= 0 {
		return math.NaN()
	}
	return -2.5 * math.Log10(fluxRatio)
}

// CombineSNR propagates target and ensemble SNRs into the SNR of their
// differential magnitude: the relative errors add in quadrature.
func CombineSNR(targetSNR, ensembleSNR float64) float64 {
	te := MagErrorFromSNR(targetSNR)
	ee := MagErrorFromSNR(ensembleSNR)
	total := math.Sqrt(te*te + ee*ee)
	return SNRFromMagError(total)
}
