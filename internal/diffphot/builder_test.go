package diffphot_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/meridian-astro/photopipe/internal/diffphot"
	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/testutil"
)

func TestBuildConstantFieldScenario(t *testing.T) {
	t.Parallel()
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.00, 10.02, 9.98, 10.01, 10.00),
		2: testutil.Mags(12.00, 12.00, 12.00, 12.00, 12.00),
		3: testutil.Mags(12.10, 12.10, 12.10, 12.10, 12.10),
	}, 5)

	cmp, err := diffphot.SelectComparisonStars(store, 1, testutil.JohnsonV, diffphot.Options{})
	require.NoError(t, err)
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.NoError(t, err)

	// Ensemble is 0.5*12.00 + 0.5*12.10 = 12.05 at every epoch; no point
	// is an outlier, so all five survive.
	require.Equal(t, 5, curve.Len())
	want := []float64{-2.05, -2.03, -2.07, -2.04, -2.05}
	for i, p := range curve.Points {
		assert.InDelta(t, want[i], p.Mag, 1e-9, "point %d", i)
	}
}

func TestBuildConstantTargetIsFlat(t *testing.T) {
	t.Parallel()
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.0, 10.0, 10.0, 10.0),
		2: testutil.Mags(12.0, 12.0, 12.0, 12.0),
		3: testutil.Mags(12.5, 12.5, 12.5, 12.5),
	}, 4)

	cmp, err := diffphot.SelectComparisonStars(store, 1, testutil.JohnsonV, diffphot.Options{})
	require.NoError(t, err)
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.NoError(t, err)

	require.Equal(t, 4, curve.Len())
	base := curve.Points[0].Mag
	for _, p := range curve.Points {
		assert.InDelta(t, base, p.Mag, 1e-12)
	}
}

func TestBuildEpochGapWhenEnsembleMissing(t *testing.T) {
	t.Parallel()
	// Both comparison stars lost at epoch 3: that epoch is a gap, not an
	// error.
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.0, 10.0, 10.0, 10.0, 10.0),
		2: {testutil.FloatPtr(12.0), testutil.FloatPtr(12.0), nil, testutil.FloatPtr(12.0), testutil.FloatPtr(12.0)},
		3: {testutil.FloatPtr(12.1), testutil.FloatPtr(12.1), nil, testutil.FloatPtr(12.1), testutil.FloatPtr(12.1)},
	}, 5)

	cmp, err := diffphot.SelectComparisonStars(store, 1, testutil.JohnsonV, diffphot.Options{})
	require.NoError(t, err)
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.NoError(t, err)

	require.Equal(t, 4, curve.Len())
	for _, p := range curve.Points {
		assert.NotEqual(t, 1120.0, p.UnixTime, "gap epoch must not appear")
	}
}

func TestBuildEpochLocalRenormalization(t *testing.T) {
	t.Parallel()
	// Star 3 is missing at the middle epoch; its weight shifts onto star
	// 2 for that epoch only, so the ensemble there is star 2 alone.
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.0, 10.0, 10.0),
		2: testutil.Mags(12.0, 12.0, 12.0),
		3: {testutil.FloatPtr(13.0), nil, testutil.FloatPtr(13.0)},
	}, 3)

	cmp := photom.ComparisonSet{{Star: 2, Weight: 0.5}, {Star: 3, Weight: 0.5}}
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.NoError(t, err)
	require.Equal(t, 3, curve.Len())

	assert.InDelta(t, 10.0-12.5, curve.Points[0].Mag, 1e-9)
	assert.InDelta(t, 10.0-12.0, curve.Points[1].Mag, 1e-9) // star 2 only
	assert.InDelta(t, 10.0-12.5, curve.Points[2].Mag, 1e-9)
}

func TestBuildDropEpochPolicy(t *testing.T) {
	t.Parallel()
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.0, 10.0, 10.0),
		2: testutil.Mags(12.0, 12.0, 12.0),
		3: {testutil.FloatPtr(13.0), nil, testutil.FloatPtr(13.0)},
	}, 3)

	cmp := photom.ComparisonSet{{Star: 2, Weight: 0.5}, {Star: 3, Weight: 0.5}}
	opts := diffphot.Options{MissingComparison: diffphot.DropEpoch}
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, opts)
	require.NoError(t, err)

	// The incomplete middle epoch is dropped instead of renormalized.
	require.Equal(t, 2, curve.Len())
	assert.Equal(t, 1000.0, curve.Points[0].UnixTime)
	assert.Equal(t, 1120.0, curve.Points[1].UnixTime)
}

func TestBuildRejectsSingleOutlier(t *testing.T) {
	t.Parallel()
	// Twenty epochs; the target jumps by a magnitude at epoch 11. With
	// the default worst fraction (0.10) up to two points may go, but the
	// scatter stops improving after the first.
	targetMags := make([]float64, 20)
	compMags := make([]float64, 20)
	for i := range targetMags {
		targetMags[i] = 10.0
		compMags[i] = 12.0
	}
	targetMags[10] = 11.0

	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(targetMags...),
		2: testutil.Mags(compMags...),
		3: testutil.Mags(compMags...),
	}, 20)

	cmp, err := diffphot.SelectComparisonStars(store, 1, testutil.JohnsonV, diffphot.Options{})
	require.NoError(t, err)

	raw := make([]float64, len(targetMags))
	for i := range raw {
		raw[i] = targetMags[i] - 12.0
	}
	rawScatter := stat.StdDev(raw, nil)

	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.NoError(t, err)

	require.Equal(t, 19, curve.Len(), "exactly the outlier is discarded")
	kept := make([]float64, curve.Len())
	for i, p := range curve.Points {
		kept[i] = p.Mag
	}
	assert.Less(t, stat.StdDev(kept, nil), rawScatter)
}

func TestBuildRejectionBoundedByWorstFraction(t *testing.T) {
	t.Parallel()
	// Five bad epochs out of twenty, but worstFraction 0.10 caps the
	// discards at two.
	targetMags := make([]float64, 20)
	compMags := make([]float64, 20)
	for i := range targetMags {
		targetMags[i] = 10.0
		compMags[i] = 12.0
	}
	for i, spike := range []float64{3.0, 2.5, 2.0, 1.5, 1.0} {
		targetMags[i*4] = 10.0 + spike
	}

	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(targetMags...),
		2: testutil.Mags(compMags...),
		3: testutil.Mags(compMags...),
	}, 20)

	cmp, err := diffphot.SelectComparisonStars(store, 1, testutil.JohnsonV, diffphot.Options{})
	require.NoError(t, err)
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, curve.Len(), 18, "at most a tenth of the points may be discarded")
}

func TestBuildInsufficientDataPoints(t *testing.T) {
	t.Parallel()
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: {testutil.FloatPtr(10.0), nil, nil},
		2: testutil.Mags(12.0, 12.0, 12.0),
		3: testutil.Mags(12.1, 12.1, 12.1),
	}, 3)

	cmp, err := diffphot.SelectComparisonStars(store, 1, testutil.JohnsonV, diffphot.Options{})
	require.NoError(t, err)
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.ErrorIs(t, err, photom.ErrInsufficientDataPoints)
	assert.Zero(t, curve.Len())
}

func TestBuildEmptyComparisonSet(t *testing.T) {
	t.Parallel()
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.0, 10.0),
	}, 2)

	_, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, nil, diffphot.Options{})
	require.ErrorIs(t, err, photom.ErrInsufficientComparisonStars)
}

func TestBuildCancelledContext(t *testing.T) {
	t.Parallel()
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.0, 10.0, 10.0),
		2: testutil.Mags(12.0, 12.0, 12.0),
	}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmp := photom.ComparisonSet{{Star: 2, Weight: 1}}
	curve, err := diffphot.BuildLightCurve(ctx, store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, curve.Len(), "a cancelled unit yields no partial curve")
}

func TestBuildPropagatesSNR(t *testing.T) {
	t.Parallel()
	store := testutil.StarField(t, map[photom.StarID][]*float64{
		1: testutil.Mags(10.0, 10.0),
		2: testutil.Mags(12.0, 12.0),
	}, 2)

	cmp := photom.ComparisonSet{{Star: 2, Weight: 1}}
	curve, err := diffphot.BuildLightCurve(context.Background(), store, 1, testutil.JohnsonV, cmp, diffphot.Options{})
	require.NoError(t, err)

	// Both target and comparison carry SNR 100; the quadrature-combined
	// point SNR must land strictly between 100/sqrt(2)-ish and 100.
	for _, p := range curve.Points {
		assert.Greater(t, p.SNR, 0.0)
		assert.Less(t, p.SNR, 100.0)
		assert.InDelta(t, 100/math.Sqrt2, p.SNR, 1e-9)
	}
}
