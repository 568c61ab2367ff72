package trade

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rongwang/shinobu-server/internal/models"
	"golang.org/x/sync/semaphore"
)

// Ledger holds every actor's pending changes. Each actor's queue has one exclusive lock;
// the queue can only be read or mutated through a Held handle obtained by locking it.
type Ledger struct {
	mu      sync.Mutex
	entries map[models.ActorID]*entry
}

type entry struct {
	sem     *semaphore.Weighted
	pending atomic.Int64
	changes []Change
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[models.ActorID]*entry)}
}

// entry returns the actor's entry, creating it on first reference.
// Entries are never removed so that waiters on a lock always share the same semaphore.
func (l *Ledger) entry(actor models.ActorID) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[actor]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[actor] = e
	}
	return e
}

// HasPending reports whether the actor has queued changes. It does not take the actor's lock,
// so the answer can be stale by the time the caller acts on it.
func (l *Ledger) HasPending(actor models.ActorID) bool {
	l.mu.Lock()
	e, ok := l.entries[actor]
	l.mu.Unlock()
	return ok && e.pending.Load() > 0
}

// RequireNoPending fails with ErrAlreadyInTransaction if the actor has queued changes
func (l *Ledger) RequireNoPending(actor models.ActorID) error {
	if l.HasPending(actor) {
		return ErrAlreadyInTransaction
	}
	return nil
}

// RequirePending fails with ErrNoTransactionInProgress if the actor has no queued changes
func (l *Ledger) RequirePending(actor models.ActorID) error {
	if !l.HasPending(actor) {
		return ErrNoTransactionInProgress
	}
	return nil
}

// Lock acquires the actor's lock, waiting until it is free or ctx is done
func (l *Ledger) Lock(ctx context.Context, actor models.ActorID) (*Held, error) {
	e := l.entry(actor)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Held{actor: actor, e: e}, nil
}

// LockAll acquires the locks of every distinct actor in ascending id order. The fixed order
// keeps two signers with overlapping actors from each holding a lock the other waits on.
// On failure every lock acquired so far is released.
func (l *Ledger) LockAll(ctx context.Context, actors ...models.ActorID) (*LockSet, error) {
	ordered := SortedActors(actors...)

	set := &LockSet{held: make([]*Held, 0, len(ordered))}
	for _, actor := range ordered {
		h, err := l.Lock(ctx, actor)
		if err != nil {
			set.Unlock()
			return nil, err
		}
		set.held = append(set.held, h)
	}
	return set, nil
}

// SortedActors returns the distinct actors in ascending order
func SortedActors(actors ...models.ActorID) []models.ActorID {
	ordered := slices.Clone(actors)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}

// Held is a locked ledger entry. It must not be used after Unlock.
type Held struct {
	actor    models.ActorID
	e        *entry
	released bool
}

// Actor returns the owner of the entry
func (h *Held) Actor() models.ActorID {
	return h.actor
}

// Append queues a change
func (h *Held) Append(c Change) {
	h.mustHold()
	h.e.changes = append(h.e.changes, c)
	h.e.pending.Store(int64(len(h.e.changes)))
}

// Clear drops every queued change
func (h *Held) Clear() {
	h.mustHold()
	h.e.changes = nil
	h.e.pending.Store(0)
}

// Peek returns a copy of the queued changes in append order
func (h *Held) Peek() []Change {
	h.mustHold()
	return slices.Clone(h.e.changes)
}

// Unlock releases the lock. Calling it more than once is a no-op.
func (h *Held) Unlock() {
	if h.released {
		return
	}
	h.released = true
	h.e.sem.Release(1)
}

func (h *Held) mustHold() {
	if h.released {
		panic("trade: ledger entry used after Unlock")
	}
}

// LockSet is a group of held entries in ascending actor order
type LockSet struct {
	held []*Held
}

// Actors returns the locked actors in lock order
func (s *LockSet) Actors() []models.ActorID {
	actors := make([]models.ActorID, len(s.held))
	for i, h := range s.held {
		actors[i] = h.actor
	}
	return actors
}

// Has reports whether actor has queued changes
func (s *LockSet) Has(actor models.ActorID) bool {
	for _, h := range s.held {
		if h.actor == actor {
			return len(h.e.changes) > 0
		}
	}
	return false
}

// Changes merges every entry's changes, actor by actor in lock order, each in append order
func (s *LockSet) Changes() []Change {
	var changes []Change
	for _, h := range s.held {
		changes = append(changes, h.Peek()...)
	}
	return changes
}

// Clear empties every entry
func (s *LockSet) Clear() {
	for _, h := range s.held {
		h.Clear()
	}
}

// Unlock releases every lock in reverse acquisition order
func (s *LockSet) Unlock() {
	for i := len(s.held) - 1; i >= 0; i-- {
		s.held[i].Unlock()
	}
}
