package actionserver

import (
	"sync"
)

// GoalRegistry is the thread-safe mapping from GoalID to its handle, cached
// result and queued result-request ids. The three maps are guarded by
// independent locks rather than one shared lock, so that a lookup against
// one need not contend with an update to another.
//
// Operations that touch more than one map take the locks in the fixed order
// handles -> results -> requests: Terminate and EnqueueResultRequest both
// hold resultsMu while taking requestsMu, so they cannot deadlock against
// each other or against Remove.
type GoalRegistry struct {
	handlesMu sync.RWMutex
	handles   map[GoalID]*ServerGoalHandle

	resultsMu sync.RWMutex
	results   map[GoalID][]byte

	requestsMu sync.Mutex
	requests   map[GoalID][]RequestID
}

// NewGoalRegistry returns an empty registry.
func NewGoalRegistry() *GoalRegistry {
	return &GoalRegistry{
		handles:  make(map[GoalID]*ServerGoalHandle),
		results:  make(map[GoalID][]byte),
		requests: make(map[GoalID][]RequestID),
	}
}

// Insert adds handle to the registry. It panics with ErrDuplicateGoal if
// the id is already present: this is an internal invariant violation that
// should be impossible given the middleware's own pre-check, not a
// recoverable error.
func (r *GoalRegistry) Insert(handle *ServerGoalHandle) {
	r.handlesMu.Lock()
	defer r.handlesMu.Unlock()

	if _, exists := r.handles[handle.ID()]; exists {
		panic(ErrDuplicateGoal)
	}
	r.handles[handle.ID()] = handle
}

// Get returns the handle for id, if any.
func (r *GoalRegistry) Get(id GoalID) (*ServerGoalHandle, bool) {
	r.handlesMu.RLock()
	defer r.handlesMu.RUnlock()

	h, ok := r.handles[id]
	return h, ok
}

// Known reports whether id currently has a registered handle.
func (r *GoalRegistry) Known(id GoalID) bool {
	_, ok := r.Get(id)
	return ok
}

// CachedResult returns the serialized result stored for id, if any.
func (r *GoalRegistry) CachedResult(id GoalID) ([]byte, bool) {
	r.resultsMu.RLock()
	defer r.resultsMu.RUnlock()

	res, ok := r.results[id]
	return res, ok
}

// Terminate records id's serialized result and drains its queue of pending
// result-request ids, returning them so the caller can reply to each
// directly. The handle itself must already be in a terminal GoalStatus;
// this method only maintains the registry's own bookkeeping, it does not
// drive the state machine.
func (r *GoalRegistry) Terminate(id GoalID, result []byte) []RequestID {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	r.requestsMu.Lock()
	defer r.requestsMu.Unlock()

	r.results[id] = result
	pending := r.requests[id]
	delete(r.requests, id)
	return pending
}

// EnqueueResultRequest records that req is waiting for id's result. If a
// result is already cached, it is returned immediately so the caller can
// respond without ever touching the pending-request queue.
func (r *GoalRegistry) EnqueueResultRequest(id GoalID, req RequestID) (result []byte, cached bool) {
	r.resultsMu.RLock()
	defer r.resultsMu.RUnlock()

	if res, ok := r.results[id]; ok {
		return res, true
	}

	// resultsMu stays held across the append, so a racing Terminate cannot
	// store the result between the check above and the enqueue below: it
	// either stored it first (and we returned it) or it drains this request.
	r.requestsMu.Lock()
	defer r.requestsMu.Unlock()
	r.requests[id] = append(r.requests[id], req)
	return nil, false
}

// Remove deletes id from every map. This is the sweeper's exclusive means
// of removing a goal from the registry; no other caller should call it
// directly.
func (r *GoalRegistry) Remove(id GoalID) {
	r.handlesMu.Lock()
	delete(r.handles, id)
	r.handlesMu.Unlock()

	r.resultsMu.Lock()
	delete(r.results, id)
	r.resultsMu.Unlock()

	r.requestsMu.Lock()
	delete(r.requests, id)
	r.requestsMu.Unlock()
}

// All returns every currently registered handle, used by ActionServer.
// Shutdown to invalidate each handle's back-reference.
func (r *GoalRegistry) All() []*ServerGoalHandle {
	r.handlesMu.RLock()
	defer r.handlesMu.RUnlock()

	out := make([]*ServerGoalHandle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

// Count returns the number of handles currently registered.
func (r *GoalRegistry) Count() int {
	r.handlesMu.RLock()
	defer r.handlesMu.RUnlock()
	return len(r.handles)
}

// Snapshot returns a status entry for every known goal, in no particular
// order, backing ActionServer.PublishStatus.
func (r *GoalRegistry) Snapshot() []StatusEntry {
	r.handlesMu.RLock()
	defer r.handlesMu.RUnlock()

	entries := make([]StatusEntry, 0, len(r.handles))
	for id, h := range r.handles {
		entries = append(entries, StatusEntry{
			ID:         id,
			Status:     h.Status(),
			AcceptedAt: h.AcceptedAt(),
		})
	}
	return entries
}
