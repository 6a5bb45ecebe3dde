package product

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Schedule controls when an Updater fires: after a random delay in
// [0, DelayMax), then every Interval. The delay starts over whenever the
// store changes in a way the updater watches. A non-positive Interval
// disables it.
type Schedule struct {
	DelayMax time.Duration
	Interval time.Duration
}

func (s Schedule) delay() time.Duration {
	if s.DelayMax <= 0 {
		return 0
	}
	return rand.N(s.DelayMax)
}

// Updater periodically applies a policy to a Store.
type Updater struct {
	Name     string
	Store    *Store
	Policy   func(products []Product, lastSale *Product) (Change, bool)
	Schedule Schedule
	Log      *zap.Logger

	// Watch lists the snapshot causes that re-arm the schedule.
	Watch []string

	// OnApply is called after every tick that changed the store.
	OnApply func(name string, snap Snapshot)
}

func NewFlashSaleUpdater(s *Store, p FlashSalePolicy, sch Schedule, log *zap.Logger) *Updater {
	return &Updater{
		Name:  CauseFlashSale,
		Store: s,
		Policy: func(products []Product, _ *Product) (Change, bool) {
			return p(products)
		},
		Schedule: sch,
		Log:      log,
		Watch:    []string{CauseIncrease, CauseDecrease, CauseReset, CauseRecommend},
	}
}

func NewRecommendUpdater(s *Store, p RecommendPolicy, sch Schedule, log *zap.Logger) *Updater {
	return &Updater{
		Name:     CauseRecommend,
		Store:    s,
		Policy:   p,
		Schedule: sch,
		Log:      log,
		Watch:    []string{CauseIncrease, CauseDecrease, CauseReset, CauseLastSale, CauseFlashSale},
	}
}

// Run blocks until ctx is done or the store is closed.
func (u *Updater) Run(ctx context.Context) {
	if u.Schedule.Interval <= 0 {
		return
	}

	changes, unsubscribe := u.Store.Subscribe(changeBuffer)
	defer unsubscribe()

	t := time.NewTimer(u.Schedule.delay())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-changes:
			if !open {
				return
			}
			if u.watches(snap.Cause) {
				t.Reset(u.Schedule.delay())
			}
		case <-t.C:
			u.Tick()
			t.Reset(u.Schedule.Interval)
		}
	}
}

const changeBuffer = 4

// watches never matches the updater's own commits.
func (u *Updater) watches(cause string) bool {
	return cause != u.Name && slices.Contains(u.Watch, cause)
}

// Tick applies the policy once against the latest snapshot.
func (u *Updater) Tick() bool {
	snap, changed := u.Store.Apply(u.Name, u.Policy)
	if !changed {
		return false
	}

	if u.Log != nil {
		u.Log.Info("policy applied",
			zap.String("policy", u.Name),
			zap.Uint64("version", snap.Version),
			zap.String("notice", snap.Notice),
		)
	}
	if u.OnApply != nil {
		u.OnApply(u.Name, snap)
	}
	return true
}
