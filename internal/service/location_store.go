package service

import (
	"context"
	"sync"

	"dora/internal/model"
	"dora/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LocationLoader supplies the campus location dataset
type LocationLoader interface {
	LoadLocations(ctx context.Context) ([]model.LocationRecord, error)
}

// LocationStore holds the ordered, read-only list of campus locations. The
// dataset is loaded lazily on first use; concurrent first callers share a
// single in-flight load. A failed load leaves the store empty for the rest of
// the process lifetime and is logged once.
type LocationStore struct {
	loader LocationLoader
	logger *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	loaded  bool
	records []model.LocationRecord
	byName  map[string]int
	loadErr error
}

// NewLocationStore creates a store backed by loader
func NewLocationStore(loader LocationLoader, logger *zap.Logger) *LocationStore {
	return &LocationStore{loader: loader, logger: logger}
}

// NewStaticLocationStore creates an already loaded store
func NewStaticLocationStore(records []model.LocationRecord) *LocationStore {
	s := &LocationStore{logger: zap.NewNop()}
	s.set(records, nil)
	return s
}

// Load makes sure the dataset has been loaded and returns the load error, if any
func (s *LocationStore) Load(ctx context.Context) error {
	s.mu.RLock()
	if s.loaded {
		err := s.loadErr
		s.mu.RUnlock()
		return err
	}
	s.mu.RUnlock()

	_, err, _ := s.group.Do("locations", func() (any, error) {
		s.mu.RLock()
		done := s.loaded
		s.mu.RUnlock()
		if done {
			return nil, s.loadErr
		}

		// The load outlives any single caller's cancellation
		records, err := s.loader.LoadLocations(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.Error("campus dataset unavailable, location search disabled", zap.Error(err))
			s.set(nil, err)
			return nil, err
		}
		s.logger.Info("campus dataset loaded", zap.Int("locations", len(records)))
		s.set(records, nil)
		return nil, nil
	})
	return err
}

func (s *LocationStore) set(records []model.LocationRecord, err error) {
	byName := make(map[string]int, len(records))
	for i, r := range records {
		byName[utils.Normalize(r.Name)] = i
	}

	s.mu.Lock()
	s.records = records
	s.byName = byName
	s.loadErr = err
	s.loaded = true
	s.mu.Unlock()
}

// All returns every location in dataset order. It never fails; an
// unavailable dataset yields an empty slice.
func (s *LocationStore) All(ctx context.Context) []model.LocationRecord {
	_ = s.Load(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Get returns the location with the given name, ignoring case
func (s *LocationStore) Get(ctx context.Context, name string) (model.LocationRecord, bool) {
	_ = s.Load(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byName[utils.Normalize(name)]
	if !ok {
		return model.LocationRecord{}, false
	}
	return s.records[i], true
}

// Ready reports whether a non-empty dataset is loaded
func (s *LocationStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && len(s.records) > 0
}
