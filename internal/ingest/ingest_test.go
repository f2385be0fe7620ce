package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-astro/photopipe/internal/lemondb"
	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/testutil"
	"github.com/meridian-astro/photopipe/internal/timeutil"
)

const imageFile = `image,101,2455432.60234,Johnson,V,1.19,300
header,OBSERVER,V. Camacho
header,OBJECT,ngc2264
star,1,10.523,118.2,0.004,512.4,498.1
star,2,,,,510.0,120.8
star,3,11.902,95.4,0.011,48.7,933.0
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadImageFile(t *testing.T) {
	t.Parallel()
	img, records, err := ReadImageFile(writeFile(t, "img101.csv", imageFile))
	require.NoError(t, err)

	assert.Equal(t, photom.ImageID(101), img.ID)
	assert.Equal(t, photom.Passband{System: "Johnson", Band: "V"}, img.Filter)
	assert.InDelta(t, timeutil.JulianToUnix(2455432.60234), img.UnixTime, 1e-6)
	assert.Equal(t, 1.19, img.Airmass)
	assert.Equal(t, 300.0, img.Exposure)
	assert.Equal(t, map[string]string{"OBSERVER": "V. Camacho", "OBJECT": "ngc2264"}, img.Headers)

	require.Len(t, records, 3)
	assert.Equal(t, photom.StarID(1), records[0].Star)
	require.NotNil(t, records[0].Measurement.Mag)
	assert.Equal(t, 10.523, *records[0].Measurement.Mag)
	assert.Equal(t, 512.4, records[0].Measurement.X)

	// Star 2 was detected but not measured: every optional field absent.
	assert.Nil(t, records[1].Measurement.Mag)
	assert.Nil(t, records[1].Measurement.SNR)
	assert.Nil(t, records[1].Measurement.Stdev)
}

func TestReadImageMalformed(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"no image record", "star,1,10,100,0.01,1,2\n", "no image record"},
		{"second image record", "image,1,2455000,Johnson,V,1,30\nimage,2,2455001,Johnson,V,1,30\n", "second image"},
		{"unknown record type", "image,1,2455000,Johnson,V,1,30\nbogus,field\n", "unknown record type"},
		{"bad julian date", "image,1,notadate,Johnson,V,1,30\n", "julian date"},
		{"short star record", "image,1,2455000,Johnson,V,1,30\nstar,1,10\n", "7 fields"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := readImage(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestReadStarCatalog(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "catalog.csv",
		"1,118.2,10.5,0.004,-0.002,12.3,false\n"+
			"2,119.0,10.6,,,,true\n")

	stars, err := ReadStarCatalog(path)
	require.NoError(t, err)
	require.Len(t, stars, 2)

	assert.Equal(t, photom.StarID(1), stars[0].ID)
	require.NotNil(t, stars[0].PMRA)
	assert.Equal(t, 0.004, *stars[0].PMRA)
	assert.False(t, stars[0].Saturated)

	assert.Nil(t, stars[1].RefMag)
	assert.True(t, stars[1].Saturated)
}

func TestRunTolerantOfBadRecords(t *testing.T) {
	t.Parallel()
	store := photom.NewStore()
	db, err := lemondb.Open(testutil.TempDBPath(t))
	require.NoError(t, err)
	defer db.Close()

	// Star 9 has an impossible right ascension; its row must be rejected
	// without touching its neighbours.
	catalog := writeFile(t, "catalog.csv",
		"1,118.2,10.5,,,,false\n"+
			"9,400.0,10.5,,,,false\n"+
			"2,119.0,10.6,,,,false\n"+
			"3,120.1,10.4,,,,false\n")
	img := writeFile(t, "img101.csv",
		"image,101,2455432.60234,Johnson,V,1.19,300\n"+
			"star,1,10.523,118.2,0.004,512.4,498.1\n"+
			"star,2,12.001,80.0,0.010,100.0,200.0\n"+
			"star,77,12.5,70.0,0.012,1.0,2.0\n"+ // not in the catalogue
			"star,3,12.101,78.0,0.010,300.0,400.0\n")

	res, err := Run(store, db, catalog, []string{img})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stars)
	assert.Equal(t, 1, res.Images)
	assert.Equal(t, 3, res.Measurements)
	assert.Equal(t, 2, res.Rejected)
	require.Len(t, res.Errors, 2)

	var verr *photom.ValidationError
	assert.ErrorAs(t, res.Errors[0], &verr)

	// Both sides of the dual write saw the surviving records.
	assert.Equal(t, 3, store.Len())
	n, err := db.CountPhotometry()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = db.GetStar(9)
	assert.ErrorIs(t, err, photom.ErrNotFound)
}

func TestRunRejectsDuplicateMeasurements(t *testing.T) {
	t.Parallel()
	store := photom.NewStore()
	db, err := lemondb.Open(testutil.TempDBPath(t))
	require.NoError(t, err)
	defer db.Close()

	catalog := writeFile(t, "catalog.csv", "1,118.2,10.5,,,,false\n")
	img := writeFile(t, "img101.csv",
		"image,101,2455432.60234,Johnson,V,1.19,300\n"+
			"star,1,10.523,118.2,0.004,512.4,498.1\n")

	_, err = Run(store, db, catalog, []string{img})
	require.NoError(t, err)

	// Feeding the same file again re-adds identical reference data (a
	// no-op) but the raw measurement is write-once in the database.
	res, err := Run(store, db, catalog, []string{img})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Measurements)
	assert.Equal(t, 1, res.Rejected)
	var derr *photom.DuplicateError
	assert.ErrorAs(t, res.Errors[0], &derr)
}

func TestRunMissingCatalog(t *testing.T) {
	t.Parallel()
	store := photom.NewStore()
	db, err := lemondb.Open(testutil.TempDBPath(t))
	require.NoError(t, err)
	defer db.Close()

	_, err = Run(store, db, filepath.Join(t.TempDir(), "nope.csv"), nil)
	require.Error(t, err)
}
