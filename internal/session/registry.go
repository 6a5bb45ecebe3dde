// Package session scopes product stores to client sessions: each session owns
// one store and the flash sale and recommendation updaters running against it.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Storefront/internal/catalog"
	"Storefront/internal/product"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRegistryClosed  = errors.New("registry closed")
)

type Schedules struct {
	FlashSale product.Schedule
	Recommend product.Schedule
}

func DefaultSchedules() Schedules {
	return Schedules{
		FlashSale: product.Schedule{DelayMax: 10 * time.Second, Interval: 30 * time.Second},
		Recommend: product.Schedule{DelayMax: 20 * time.Second, Interval: 60 * time.Second},
	}
}

type Session struct {
	ID        string
	Store     *product.Store
	CreatedAt time.Time

	lastSeen atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Registry owns every open session. Fields must be set before the first
// Create call.
type Registry struct {
	Source    catalog.Source
	FlashSale product.FlashSalePolicy
	Recommend product.RecommendPolicy
	Schedules Schedules
	// TTL is the idle time after which Sweep closes a session; zero disables expiry.
	TTL     time.Duration
	Log     *zap.Logger
	Metrics *Metrics
	Now     func() time.Time

	mu     sync.RWMutex
	m      map[string]*Session
	closed bool
}

func NewRegistry(src catalog.Source, log *zap.Logger) *Registry {
	return &Registry{
		Source:    src,
		FlashSale: product.FlashSale(product.RandomPicker()),
		Recommend: product.Recommend(),
		Schedules: DefaultSchedules(),
		TTL:       30 * time.Minute,
		Log:       log,
		Now:       time.Now,
		m:         make(map[string]*Session),
	}
}

// Create seeds a new store and starts its updaters.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	seed, err := r.Source.Seed(ctx)
	if err != nil {
		return nil, err
	}

	now := r.Now()
	store := product.NewStore(seed)
	uctx, cancel := context.WithCancel(context.Background())

	sess := &Session{
		ID:        "s_" + uuid.NewString(),
		Store:     store,
		CreatedAt: now,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	sess.touch(now)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		store.Close()
		return nil, ErrRegistryClosed
	}
	r.m[sess.ID] = sess
	r.mu.Unlock()

	r.startUpdaters(uctx, sess)
	r.Metrics.sessionOpened()

	if r.Log != nil {
		r.Log.Info("session opened", zap.String("session_id", sess.ID), zap.Int("products", len(seed)))
	}
	return sess, nil
}

func (r *Registry) startUpdaters(ctx context.Context, sess *Session) {
	log := r.Log
	if log != nil {
		log = log.With(zap.String("session_id", sess.ID))
	}

	updaters := []*product.Updater{
		product.NewFlashSaleUpdater(sess.Store, r.FlashSale, r.Schedules.FlashSale, log),
		product.NewRecommendUpdater(sess.Store, r.Recommend, r.Schedules.Recommend, log),
	}

	var wg sync.WaitGroup
	for _, u := range updaters {
		u.OnApply = func(name string, _ product.Snapshot) { r.Metrics.policyApplied(name) }
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Run(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(sess.done)
	}()
}

// Get returns the session and marks it as recently used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.m[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(r.Now())
	return sess, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Close stops the session's updaters and ends its subscriptions.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	sess, ok := r.m[id]
	if ok {
		delete(r.m, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	r.teardown(sess, "closed")
	return nil
}

func (r *Registry) teardown(sess *Session, reason string) {
	sess.cancel()
	<-sess.done
	sess.Store.Close()
	r.Metrics.sessionClosed()

	if r.Log != nil {
		r.Log.Info("session closed", zap.String("session_id", sess.ID), zap.String("reason", reason))
	}
}

// Sweep closes sessions idle for longer than TTL and reports how many.
func (r *Registry) Sweep(now time.Time) int {
	if r.TTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.TTL)

	r.mu.Lock()
	var expired []*Session
	for id, sess := range r.m {
		if sess.LastSeen().Before(cutoff) {
			delete(r.m, id)
			expired = append(expired, sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range expired {
		r.teardown(sess, "expired")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(r.Now()); n > 0 && r.Log != nil {
				r.Log.Info("sessions expired", zap.Int("count", n))
			}
		}
	}
}

// Shutdown closes every session and rejects new ones.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0, len(r.m))
	for id, sess := range r.m {
		delete(r.m, id)
		all = append(all, sess)
	}
	r.mu.Unlock()

	for _, sess := range all {
		r.teardown(sess, "shutdown")
	}
}
