package product

import "sync"

// Change is what a policy produces when it alters the product list.
type Change struct {
	Products []Product
	Notice   string
}

// Store is the authoritative product list and last sale item of one session.
// Every change replaces the list with a new slice and bumps the version;
// published slices are never written again.
type Store struct {
	mu       sync.Mutex
	seed     []Product
	products []Product
	lastSale *Product
	version  uint64
	cause    string
	notice   string

	subs    map[uint64]chan Snapshot
	nextSub uint64
	closed  bool
}

func NewStore(seed []Product) *Store {
	return &Store{
		seed:     cloneList(seed),
		products: cloneList(seed),
		version:  1,
		cause:    CauseSeed,
		subs:     map[uint64]chan Snapshot{},
	}
}

// Snapshot returns the current state. Products must be treated as read-only.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneList(s.products)
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// IncreaseQuantity reports whether id was found and a snapshot published.
func (s *Store) IncreaseQuantity(id string) bool { return s.adjust(id, 1, CauseIncrease) }

// DecreaseQuantity does not clamp; quantity may go below zero.
func (s *Store) DecreaseQuantity(id string) bool { return s.adjust(id, -1, CauseDecrease) }

func (s *Store) adjust(id string, delta int, cause string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.products, id)
	if i < 0 {
		return false
	}

	next := cloneList(s.products)
	next[i].Quantity += delta
	s.commitLocked(next, s.lastSale, cause, "")
	return true
}

// ResetQuantity restores the seed quantity of id. Ids absent from the seed
// are ignored and report false.
func (s *Store) ResetQuantity(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	si := indexOf(s.seed, id)
	if si < 0 {
		return false
	}
	i := indexOf(s.products, id)
	if i < 0 {
		return false
	}

	next := cloneList(s.products)
	next[i].Quantity = s.seed[si].Quantity
	s.commitLocked(next, s.lastSale, CauseReset, "")
	return true
}

// AddLastSaleItem replaces the last sale item. The list itself is unchanged
// but a snapshot is published so recommendation consumers see the new item.
func (s *Store) AddLastSaleItem(item Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := item
	s.commitLocked(s.products, &it, CauseLastSale, "")
}

func (s *Store) LastSaleItem() (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSale == nil {
		return Product{}, false
	}
	return *s.lastSale, true
}

// Apply runs fn against a private copy of the current list and the last
// sale item. If fn reports a change, its list becomes the next snapshot.
func (s *Store) Apply(cause string, fn func(products []Product, lastSale *Product) (Change, bool)) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *Product
	if s.lastSale != nil {
		it := *s.lastSale
		last = &it
	}

	ch, ok := fn(cloneList(s.products), last)
	if !ok {
		return s.snapshotLocked(), false
	}

	s.commitLocked(cloneList(ch.Products), s.lastSale, cause, ch.Notice)
	return s.snapshotLocked(), true
}

// Subscribe returns a channel receiving every snapshot published after the
// call. Delivery is latest-wins: a subscriber that falls behind loses the
// older snapshots, never the newest one. buf below 1 is raised to 1.
func (s *Store) Subscribe(buf int) (<-chan Snapshot, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Snapshot, buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) commitLocked(next []Product, lastSale *Product, cause, notice string) {
	s.products = next
	s.lastSale = lastSale
	s.version++
	s.cause = cause
	s.notice = notice
	s.publishLocked(s.snapshotLocked())
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:  s.version,
		Products: s.products,
		Cause:    s.cause,
		Notice:   s.notice,
	}
	if s.lastSale != nil {
		it := *s.lastSale
		snap.LastSale = &it
	}
	return snap
}

func (s *Store) publishLocked(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// full: drop the oldest pending snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
