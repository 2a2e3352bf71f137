// Package presence tracks which users hold at least one live connection.
//
// The in-memory view is authoritative. Transitions into and out of the
// active state are mirrored to a durable store by a single writer goroutine
// in the order they happened, and every membership change is announced
// through a Notifier so that clients can re-pull the active set.
package presence

import (
	"context"
	"log"
	"sort"
	"sync"

	"linguaconnect/infrastructure/metrics"
)

// StatusStore persists a user's active flag.
type StatusStore interface {
	SetActive(ctx context.Context, userId string, active bool) error
}

// Notifier is told that the active set may have changed.
type Notifier interface {
	NotifyStatusChange()
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func()

func (f NotifierFunc) NotifyStatusChange() { f() }

type statusWrite struct {
	userId string
	active bool
}

type Registry struct {
	mu    sync.Mutex
	owner map[string]string              // connection id -> user id
	conns map[string]map[string]struct{} // user id -> connection ids

	store    StatusStore
	notifier Notifier

	queueMu sync.Mutex
	queue   []statusWrite
	wake    chan struct{}
}

func NewRegistry(store StatusStore, notifier Notifier) *Registry {
	return &Registry{
		owner:    make(map[string]string),
		conns:    make(map[string]map[string]struct{}),
		store:    store,
		notifier: notifier,
		wake:     make(chan struct{}, 1),
	}
}

// Register maps a connection to a user. Re-registering a connection under a
// different user first releases it from the previous one.
func (r *Registry) Register(connId, userId string) {
	r.mu.Lock()
	if prev, ok := r.owner[connId]; ok && prev != userId {
		r.release(connId, prev)
	}
	r.owner[connId] = userId

	set, ok := r.conns[userId]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userId] = set
		r.enqueue(statusWrite{userId: userId, active: true})
	}
	set[connId] = struct{}{}
	active := len(r.conns)
	r.mu.Unlock()

	metrics.ActiveUsers.Set(float64(active))
	r.notify()
}

// Unregister drops a connection. It returns the user the connection belonged
// to; unknown connections are ignored and nothing is announced.
func (r *Registry) Unregister(connId string) (string, bool) {
	r.mu.Lock()
	userId, ok := r.owner[connId]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.owner, connId)
	r.release(connId, userId)
	active := len(r.conns)
	r.mu.Unlock()

	metrics.ActiveUsers.Set(float64(active))
	r.notify()
	return userId, true
}

// release removes connId from userId's set. Callers hold r.mu.
func (r *Registry) release(connId, userId string) {
	set := r.conns[userId]
	delete(set, connId)
	if len(set) == 0 {
		delete(r.conns, userId)
		r.enqueue(statusWrite{userId: userId, active: false})
	}
}

func (r *Registry) IsActive(userId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userId]
	return ok
}

// Snapshot returns the active user ids in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	users := make([]string, 0, len(r.conns))
	for userId := range r.conns {
		users = append(users, userId)
	}
	r.mu.Unlock()

	sort.Strings(users)
	return users
}

// Connections returns the ids of every live connection identified as userId.
func (r *Registry) Connections(userId string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.conns[userId]
	ids := make([]string, 0, len(set))
	for connId := range set {
		ids = append(ids, connId)
	}
	return ids
}

// UserOf reports which user a connection identified as.
func (r *Registry) UserOf(connId string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userId, ok := r.owner[connId]
	return userId, ok
}

func (r *Registry) notify() {
	if r.notifier != nil {
		r.notifier.NotifyStatusChange()
	}
}

// enqueue is called with r.mu held so queue order matches transition order.
func (r *Registry) enqueue(w statusWrite) {
	if r.store == nil {
		return
	}
	r.queueMu.Lock()
	r.queue = append(r.queue, w)
	r.queueMu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) drain() []statusWrite {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	writes := r.queue
	r.queue = nil
	return writes
}

// Run applies queued active-flag writes until ctx is done. Failed writes are
// logged and skipped.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}

		for _, w := range r.drain() {
			if err := r.store.SetActive(ctx, w.userId, w.active); err != nil {
				metrics.PresenceWriteErrors.Inc()
				log.Printf("presence: set active=%t for user %s: %v", w.active, w.userId, err)
			}
		}
	}
}
