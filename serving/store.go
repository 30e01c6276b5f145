package serving

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mlserve/ml"
	"mlserve/monitoring"
)

// Store owns the active model slot. Reads are a single atomic pointer
// load; a reload builds the candidate model entirely off the hot path and
// publishes it with one atomic swap, so in-flight predictions keep the
// snapshot they already hold.
type Store struct {
	src     ml.Source
	tracker *Lifecycle
	metrics *monitoring.Registry
	log     *zap.Logger

	active atomic.Pointer[ml.Model]

	// reloadMu is only ever TryLock'd: a second reload fails fast with
	// ErrReloadInProgress instead of queuing.
	reloadMu sync.Mutex
}

func NewStore(src ml.Source, tracker *Lifecycle, metrics *monitoring.Registry, log *zap.Logger) *Store {
	return &Store{
		src:     src,
		tracker: tracker,
		metrics: metrics,
		log:     log,
	}
}

// Current returns the active model. It never blocks on a reload.
func (s *Store) Current() (*ml.Model, error) {
	m := s.active.Load()
	if m == nil {
		return nil, ErrModelNotLoaded
	}
	return m, nil
}

// Load fetches and validates a candidate model without touching the
// active slot.
func (s *Store) Load(ctx context.Context) (*ml.Model, error) {
	start := time.Now()
	m, err := s.src.Fetch(ctx)
	if s.metrics != nil {
		s.metrics.ObserveModelLoad(time.Since(start), err == nil)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Initialize performs the startup load and publishes the first model.
// On failure the store stays empty and the tracker returns to
// Uninitialized; the caller decides whether that is fatal.
func (s *Store) Initialize(ctx context.Context) error {
	s.tracker.LoadStarted()
	m, err := s.Load(ctx)
	if err != nil {
		s.tracker.LoadFailed()
		s.log.Error("initial model load failed", zap.Error(err))
		return err
	}
	s.active.Store(m)
	s.tracker.LoadSucceeded()
	s.log.Info("model loaded",
		zap.String("version", m.Version()),
		zap.Strings("classes", m.ClassNames()),
		zap.Int("features", m.NumFeatures()))
	return nil
}

// Reload fetches a candidate model and, only on success, atomically
// replaces the active slot. On failure the previous model keeps serving
// untouched. At most one reload runs at a time.
func (s *Store) Reload(ctx context.Context) (*ml.Model, error) {
	if !s.reloadMu.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer s.reloadMu.Unlock()

	// A reload before any successful load acts as the initial load.
	if s.active.Load() == nil {
		if err := s.Initialize(ctx); err != nil {
			return nil, err
		}
		return s.active.Load(), nil
	}

	s.tracker.ReloadStarted()
	m, err := s.Load(ctx)
	if err != nil {
		s.tracker.ReloadFailed()
		s.log.Warn("model reload failed, previous model keeps serving", zap.Error(err))
		return nil, err
	}

	prev := s.active.Swap(m)
	s.tracker.ReloadSucceeded()
	s.log.Info("model reloaded",
		zap.String("version", m.Version()),
		zap.String("previous_version", prev.Version()))
	return m, nil
}

// Healthy reports whether the service can answer predictions right now.
func (s *Store) Healthy() bool {
	return s.tracker.State() == StateReady && s.active.Load() != nil
}
