// Package testutil provides shared test helpers: pointer constructors for
// optional measurement fields and a canned star field for engine tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/meridian-astro/photopipe/internal/photom"
)

// FloatPtr returns a pointer to v, for optional measurement fields.
func FloatPtr(v float64) *float64 { return &v }

// TempDBPath returns a sqlite path inside a per-test temp dir.
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "lemon.db")
}

// JohnsonV is the passband most fixtures observe in.
var JohnsonV = photom.Passband{System: "Johnson", Band: "V"}

// StarField populates a store with n images in JohnsonV (timestamps
// 1000, 1060, 1120, ...) and one star per magnitude series. Series are
// keyed by star id; a NaN-free nil entry means the star has no measurement
// on that image. SNR defaults to 100 on every present measurement.
func StarField(t *testing.T, series map[photom.StarID][]*float64, n int) *photom.Store {
	t.Helper()
	store := photom.NewStore()

	for i := 0; i < n; i++ {
		img := photom.Image{
			ID:       photom.ImageID(i + 1),
			UnixTime: 1000 + float64(i)*60,
			Filter:   JohnsonV,
			Airmass:  1.2,
			Exposure: 30,
		}
		if err := store.AddImage(img); err != nil {
			t.Fatalf("AddImage: %v", err)
		}
	}
	for id, mags := range series {
		star := photom.Star{ID: id, RA: float64(id), Dec: 10}
		if err := store.AddStar(star); err != nil {
			t.Fatalf("AddStar: %v", err)
		}
		for i, mag := range mags {
			if mag == nil {
				continue
			}
			m := photom.Measurement{Mag: mag, SNR: FloatPtr(100), X: 10, Y: 20}
			if err := store.Ingest(id, photom.ImageID(i+1), m); err != nil {
				t.Fatalf("Ingest star %d image %d: %v", id, i+1, err)
			}
		}
	}
	return store
}

// Mags converts a literal slice into the optional-pointer form StarField
// takes.
func Mags(values ...float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = FloatPtr(v)
	}
	return out
}
