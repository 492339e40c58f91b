// Package ledger runs a user's signal schedule and the per-day capital ledger
// built from it.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
	"github.com/KAsare1/Kodefx-capital/service/capital"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// SeedPolicy decides the prevCapital of freshly materialized daily entries.
type SeedPolicy string

const (
	// SeedFromSchedule seeds the day's first entry with the schedule balance and
	// leaves the rest at zero until resolution chains into them.
	SeedFromSchedule SeedPolicy = "schedule"
	// SeedZero leaves every new entry at zero.
	SeedZero SeedPolicy = "zero"
)

func ParseSeedPolicy(s string) (SeedPolicy, error) {
	switch SeedPolicy(s) {
	case "", SeedFromSchedule:
		return SeedFromSchedule, nil
	case SeedZero:
		return SeedZero, nil
	}
	return "", fmt.Errorf("unknown seed policy %q", s)
}

// Observer receives ledger events, typically to export metrics.
type Observer interface {
	EntriesCreated(n int)
	EntryResolved(status models.EntryStatus)
	Deposited(amount float64)
	OperationFailed(op string, err error)
}

type nopObserver struct{}

func (nopObserver) EntriesCreated(int) {}
func (nopObserver) EntryResolved(models.EntryStatus) {}
func (nopObserver) Deposited(float64) {}
func (nopObserver) OperationFailed(string, error) {}

type Service struct {
	store    Store
	locker   Locker
	clock    Clock
	params   capital.Params
	seed     SeedPolicy
	observer Observer
	daily    singleflight.Group
}

type Option func(*Service)

func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }
func WithParams(p capital.Params) Option { return func(s *Service) { s.params = p } }
func WithSeedPolicy(p SeedPolicy) Option { return func(s *Service) { s.seed = p } }
func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		locker:   NewLocalLocker(),
		clock:    SystemClock{},
		params:   capital.DefaultParams(),
		seed:     SeedFromSchedule,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Params() capital.Params { return s.params }

// Simulate runs the forward simulator with the service's percentages.
func (s *Service) Simulate(startingCapital float64, count int) (capital.Simulation, error) {
	sim, err := s.params.SimulateForward(startingCapital, count)
	if err != nil {
		return capital.Simulation{}, asValidation(err)
	}
	return sim, nil
}

// Reconcile infers the starting balance behind recentCapital.
func (s *Service) Reconcile(recentCapital float64, elapsed, total int) (capital.Reconciliation, error) {
	rec, err := s.params.Reconcile(recentCapital, elapsed, total)
	if err != nil {
		return capital.Reconciliation{}, asValidation(err)
	}
	return rec, nil
}

// withUserLock runs fn while holding the user's lock.
func (s *Service) withUserLock(ctx context.Context, userID uint, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// finish classifies err, records it and logs it at the level its kind deserves.
func (s *Service) finish(ctx context.Context, op string, userID uint, err error) error {
	if err == nil {
		return nil
	}
	err = classify(err)
	s.observer.OperationFailed(op, err)

	logger := zerolog.Ctx(ctx)
	event := logger.Debug()
	if errors.Is(err, ErrInternal) {
		event = logger.Error()
	}
	event.Err(err).Str("op", op).Uint("user_id", userID).Msg("ledger operation failed")
	return err
}

func asValidation(err error) error {
	if errors.Is(err, capital.ErrInvalidInput) || errors.Is(err, capital.ErrInvalidParams) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}
