// Package pipeline fans the selector+builder work out across a bounded
// worker pool. Each (star, filter) unit is independent; one unit's failure
// is recorded and the batch keeps going.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-astro/photopipe/internal/diffphot"
	"github.com/meridian-astro/photopipe/internal/monitoring"
	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/timeutil"
)

// Unit is one independent work item: the light curve of one star in one
// passband.
type Unit struct {
	Star   photom.StarID
	Filter photom.Passband
}

func (u Unit) String() string {
	return fmt.Sprintf("star %d / %s", u.Star, u.Filter)
}

// UnitFailure records why a unit produced no light curve.
type UnitFailure struct {
	Unit Unit
	Err  error
}

// BatchResult is the aggregate outcome of a run. Failures are first-class
// output, not an abort signal: a run with failed units still succeeded.
type BatchResult struct {
	RunID     uuid.UUID
	Completed []Unit
	Failed    []UnitFailure
	Started   time.Time
	Finished  time.Time
}

// Sink receives finished light curves. Satisfied by *lemondb.DB.
type Sink interface {
	PutLightCurve(star photom.StarID, pb photom.Passband, cmp photom.ComparisonSet, curve photom.LightCurve) error
}

// Options configures a batch run.
type Options struct {
	// Workers bounds the number of concurrent units. Zero means 4.
	Workers int

	// UnitTimeout, when positive, caps the wall time of a single unit.
	// A unit over budget is recorded as a photom.ErrTimeout failure.
	UnitTimeout time.Duration

	// Engine is passed through to the selector and builder.
	Engine diffphot.Options

	// Clock defaults to the real clock; tests inject a fake.
	Clock timeutil.Clock
}

const defaultWorkers = 4

// Run executes every unit against src, persisting successful curves to
// sink. It never returns unit errors; they land in the BatchResult. Only a
// cancelled parent context stops the batch early, and even then the units
// already dispatched finish or fail cleanly.
func Run(ctx context.Context, src diffphot.Source, sink Sink, units []Unit, opts Options) BatchResult {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	result := BatchResult{RunID: uuid.New(), Started: clock.Now()}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, u := range units {
		g.Go(func() error {
			err := runUnit(ctx, src, sink, u, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, UnitFailure{Unit: u, Err: err})
			} else {
				result.Completed = append(result.Completed, u)
			}
			return nil
		})
	}
	g.Wait()

	result.Finished = clock.Now()
	monitoring.Logf("run %s: %d units, %d completed, %d failed in %s",
		result.RunID, len(units), len(result.Completed), len(result.Failed),
		result.Finished.Sub(result.Started).Round(time.Millisecond))
	return result
}

// runUnit isolates one unit: any panic or error stays inside it.
func runUnit(ctx context.Context, src diffphot.Source, sink Sink, u Unit, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panicked: %v", r)
		}
	}()

	if opts.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.UnitTimeout)
		defer cancel()
	}

	cmp, err := diffphot.SelectComparisonStars(src, u.Star, u.Filter, opts.Engine)
	if err != nil {
		return unitErr(ctx, err)
	}
	curve, err := diffphot.BuildLightCurve(ctx, src, u.Star, u.Filter, cmp, opts.Engine)
	if err != nil {
		return unitErr(ctx, err)
	}
	if err := sink.PutLightCurve(u.Star, u.Filter, cmp, curve); err != nil {
		return err
	}
	monitoring.Debugf("unit %s: %d points, %d comparison stars", u, curve.Len(), len(cmp))
	return nil
}

// unitErr maps a deadline blown inside a unit to the timeout failure kind;
// everything else passes through.
func unitErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return photom.ErrTimeout
	}
	return err
}
