package photom

import (
	"fmt"
	"maps"
	"sort"
	"sync"
)

type pairKey struct {
	star  StarID
	image ImageID
}

// Store is the in-memory staging area between the photometry extraction
// stage and the database: raw measurements indexed by star, by image and by
// filter. Reference data (stars, images) is append-only; measurements are
// written once and never mutated.
//
// Store is safe for concurrent use. The selector and builder read from it
// while the ingest loop may still be adding measurements for other filters.
type Store struct {
	mu      sync.RWMutex
	stars   map[StarID]Star
	images  map[ImageID]Image
	pairs   map[pairKey]Measurement
	byStar  map[StarID]map[ImageID]struct{}
	byImage map[ImageID]map[StarID]struct{}

	// starsByFilter caches which stars have at least one measurement in a
	// passband; it feeds the comparison-star candidate pool.
	starsByFilter map[Passband]map[StarID]struct{}
}

// NewStore returns an empty measurement store.
func NewStore() *Store {
	return &Store{
		stars:         make(map[StarID]Star),
		images:        make(map[ImageID]Image),
		pairs:         make(map[pairKey]Measurement),
		byStar:        make(map[StarID]map[ImageID]struct{}),
		byImage:       make(map[ImageID]map[StarID]struct{}),
		starsByFilter: make(map[Passband]map[StarID]struct{}),
	}
}

// AddStar registers a star. Re-adding the same star is a no-op; re-adding
// an existing id with different values is a ConflictError.
func (s *Store) AddStar(star Star) error {
	if err := star.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.stars[star.ID]; ok {
		if !starEqual(existing, star) {
			return &ConflictError{Entity: "star", ID: int64(star.ID)}
		}
		return nil
	}
	s.stars[star.ID] = star
	return nil
}

// AddImage registers an exposure. Same idempotent-upsert semantics as
// AddStar.
func (s *Store) AddImage(img Image) error {
	if img.Filter.System == "" && img.Filter.Band == "" {
		return &ValidationError{Field: "filter", Msg: "image has no passband"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.images[img.ID]; ok {
		if !imageEqual(existing, img) {
			return &ConflictError{Entity: "image", ID: int64(img.ID)}
		}
		return nil
	}
	s.images[img.ID] = img
	return nil
}

// Ingest records the measurement of one star on one image. Both the star
// and the image must already be registered. Ingesting the identical
// measurement twice is a no-op; a differing measurement for an existing
// (star, image) pair is rejected, that pair is immutable.
func (s *Store) Ingest(star StarID, image ImageID, m Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stars[star]; !ok {
		return &ValidationError{Field: "star", Msg: fmt.Sprintf("unknown star %d", star)}
	}
	img, ok := s.images[image]
	if !ok {
		return &ValidationError{Field: "image", Msg: fmt.Sprintf("unknown image %d", image)}
	}

	key := pairKey{star, image}
	if existing, ok := s.pairs[key]; ok {
		if !measEqual(existing, m) {
			return &ValidationError{
				Field: "measurement",
				Msg:   fmt.Sprintf("star %d already measured on image %d with different values", star, image),
			}
		}
		return nil
	}
	s.pairs[key] = m

	if s.byStar[star] == nil {
		s.byStar[star] = make(map[ImageID]struct{})
	}
	s.byStar[star][image] = struct{}{}
	if s.byImage[image] == nil {
		s.byImage[image] = make(map[StarID]struct{})
	}
	s.byImage[image][star] = struct{}{}
	if s.starsByFilter[img.Filter] == nil {
		s.starsByFilter[img.Filter] = make(map[StarID]struct{})
	}
	s.starsByFilter[img.Filter][star] = struct{}{}
	return nil
}

// Star returns a registered star.
func (s *Store) Star(id StarID) (Star, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	star, ok := s.stars[id]
	return star, ok
}

// Image returns a registered image.
func (s *Store) Image(id ImageID) (Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	return img, ok
}

// StarsObservedIn returns the ids of all stars with at least one
// measurement in the passband, sorted ascending. The sort keeps downstream
// candidate selection deterministic.
func (s *Store) StarsObservedIn(pb Passband) []StarID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.starsByFilter[pb]
	ids := make([]StarID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Passbands returns every passband with at least one measurement, sorted
// by (system, band).
func (s *Store) Passbands() []Passband {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pbs := make([]Passband, 0, len(s.starsByFilter))
	for pb := range s.starsByFilter {
		pbs = append(pbs, pb)
	}
	sort.Slice(pbs, func(i, j int) bool {
		if pbs[i].System != pbs[j].System {
			return pbs[i].System < pbs[j].System
		}
		return pbs[i].Band < pbs[j].Band
	})
	return pbs
}

// MeasurementsFor returns a restartable cursor over the star's measurements
// in the passband, ordered by image timestamp ascending. The cursor is a
// snapshot; measurements ingested after the call are not visible through it.
func (s *Store) MeasurementsFor(star StarID, pb Passband) *Series {
	s.mu.RLock()
	defer s.mu.RUnlock()

	epochs := make([]Epoch, 0, len(s.byStar[star]))
	for imageID := range s.byStar[star] {
		img := s.images[imageID]
		if img.Filter != pb {
			continue
		}
		epochs = append(epochs, Epoch{Image: img, Measurement: s.pairs[pairKey{star, imageID}]})
	}
	sort.Slice(epochs, func(i, j int) bool {
		if epochs[i].Image.UnixTime != epochs[j].Image.UnixTime {
			return epochs[i].Image.UnixTime < epochs[j].Image.UnixTime
		}
		return epochs[i].Image.ID < epochs[j].Image.ID
	})
	return &Series{epochs: epochs}
}

// Len reports the total number of stored measurements.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// Series is a restartable forward cursor over time-ordered epochs.
type Series struct {
	epochs []Epoch
	next   int
}

// Next returns the next epoch, or ok=false when exhausted.
func (sr *Series) Next() (Epoch, bool) {
	if sr.next >= len(sr.epochs) {
		return Epoch{}, false
	}
	e := sr.epochs[sr.next]
	sr.next++
	return e, true
}

// Reset rewinds the cursor to the first epoch.
func (sr *Series) Reset() { sr.next = 0 }

// Len returns the number of epochs in the series.
func (sr *Series) Len() int { return len(sr.epochs) }

// Epochs returns the underlying time-ordered slice. Callers must not
// mutate it.
func (sr *Series) Epochs() []Epoch { return sr.epochs }

func starEqual(a, b Star) bool {
	return a.ID == b.ID && a.RA == b.RA && a.Dec == b.Dec &&
		floatPtrEqual(a.PMRA, b.PMRA) && floatPtrEqual(a.PMDec, b.PMDec) &&
		floatPtrEqual(a.RefMag, b.RefMag) && a.Saturated == b.Saturated
}

func imageEqual(a, b Image) bool {
	return a.ID == b.ID && a.UnixTime == b.UnixTime && a.Filter == b.Filter &&
		a.Airmass == b.Airmass && a.Exposure == b.Exposure &&
		maps.Equal(a.Headers, b.Headers)
}

func measEqual(a, b Measurement) bool {
	return floatPtrEqual(a.Mag, b.Mag) && floatPtrEqual(a.SNR, b.SNR) &&
		floatPtrEqual(a.Stdev, b.Stdev) && a.X == b.X && a.Y == b.Y
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
