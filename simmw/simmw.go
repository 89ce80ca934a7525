// Package simmw is an in-memory actionserver.Middleware: channel-backed
// request/response queues standing in for the send-goal/cancel-goal/
// get-result services, and slice-backed recorders standing in for the
// status/feedback topics. It is a test double and local-process stand-in,
// not a transport implementation, and carries no discovery, QoS or
// wire-serialization logic.
package simmw

import (
	"sync"
	"time"

	as "github.com/nwn/actionserver"
)

type goalRequestItem struct {
	id   as.GoalID
	goal as.Goal
	req  as.RequestID
}

type cancelRequestItem struct {
	filter as.CancelFilter
	req    as.RequestID
}

type resultRequestItem struct {
	id  as.GoalID
	req as.RequestID
}

type goalRecord struct {
	status        as.GoalStatus
	acceptedAt    time.Time
	terminalSince time.Time
}

// Middleware is an in-memory actionserver.Middleware. The zero value is
// not usable; construct one with New.
type Middleware struct {
	node      string
	retention time.Duration
	nowFn     func() time.Time

	mu       sync.Mutex
	goals    map[as.GoalID]*goalRecord
	order    []as.GoalID
	nextSeq  int64

	goalQueue   chan goalRequestItem
	cancelQueue chan cancelRequestItem
	resultQueue chan resultRequestItem

	goalResp   map[as.RequestID]chan bool
	cancelResp map[as.RequestID]chan as.CancelResponse
	resultResp map[as.RequestID]chan as.ResultResponse

	statusMu sync.Mutex
	statuses [][]as.StatusEntry

	feedbackMu sync.Mutex
	feedback   []FeedbackEvent

	entityCounts as.EntityCounts
}

// FeedbackEvent records one PublishFeedback call, for assertions in tests.
type FeedbackEvent struct {
	ID       as.GoalID
	Feedback []byte
}

// Option configures a Middleware at construction time.
type Option func(*Middleware)

// WithRetention overrides the default terminal-goal retention window used
// by ExpireGoals.
func WithRetention(d time.Duration) Option {
	return func(m *Middleware) { m.retention = d }
}

// WithClock overrides the clock used for Now() and expiration bookkeeping,
// for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) { m.nowFn = now }
}

// New returns a ready-to-use in-memory Middleware for node, with a queue
// depth of 50 for each of the three request channels.
func New(node string, opts ...Option) *Middleware {
	m := &Middleware{
		node:        node,
		retention:   60 * time.Second,
		nowFn:       time.Now,
		goals:       make(map[as.GoalID]*goalRecord),
		goalQueue:   make(chan goalRequestItem, 50),
		cancelQueue: make(chan cancelRequestItem, 50),
		resultQueue: make(chan resultRequestItem, 50),
		goalResp:    make(map[as.RequestID]chan bool),
		cancelResp:  make(map[as.RequestID]chan as.CancelResponse),
		resultResp:  make(map[as.RequestID]chan as.ResultResponse),
		entityCounts: as.EntityCounts{
			Subscriptions: 0,
			Services:      3,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Middleware) nextRequestID() as.RequestID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	return as.RequestID{SequenceNumber: m.nextSeq}
}

// SubmitGoal enqueues a goal request as a remote client would, and returns
// a channel that receives the accepted/rejected response.
func (m *Middleware) SubmitGoal(id as.GoalID, goal as.Goal) <-chan bool {
	req := m.nextRequestID()
	ch := make(chan bool, 1)

	m.mu.Lock()
	m.goalResp[req] = ch
	m.mu.Unlock()

	m.goalQueue <- goalRequestItem{id: id, goal: goal, req: req}
	return ch
}

// SubmitCancel enqueues a cancel request and returns a channel that
// receives the aggregated response.
func (m *Middleware) SubmitCancel(filter as.CancelFilter) <-chan as.CancelResponse {
	req := m.nextRequestID()
	ch := make(chan as.CancelResponse, 1)

	m.mu.Lock()
	m.cancelResp[req] = ch
	m.mu.Unlock()

	m.cancelQueue <- cancelRequestItem{filter: filter, req: req}
	return ch
}

// SubmitResult enqueues a get-result request and returns a channel that
// receives the response, which may arrive immediately or only once the
// goal terminates.
func (m *Middleware) SubmitResult(id as.GoalID) <-chan as.ResultResponse {
	req := m.nextRequestID()
	ch := make(chan as.ResultResponse, 1)

	m.mu.Lock()
	m.resultResp[req] = ch
	m.mu.Unlock()

	m.resultQueue <- resultRequestItem{id: id, req: req}
	return ch
}

// StatusPublications returns every status snapshot published so far, for
// assertions in tests.
func (m *Middleware) StatusPublications() [][]as.StatusEntry {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	out := make([][]as.StatusEntry, len(m.statuses))
	copy(out, m.statuses)
	return out
}

// FeedbackEvents returns every feedback publication so far.
func (m *Middleware) FeedbackEvents() []FeedbackEvent {
	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()
	out := make([]FeedbackEvent, len(m.feedback))
	copy(out, m.feedback)
	return out
}

// NodeName implements actionserver.Middleware.
func (m *Middleware) NodeName() string { return m.node }

// Now implements actionserver.Middleware.
func (m *Middleware) Now() time.Time { return m.nowFn() }

// EntityCounts implements actionserver.Middleware.
func (m *Middleware) EntityCounts() as.EntityCounts { return m.entityCounts }

// TakeGoalRequest implements actionserver.Middleware.
func (m *Middleware) TakeGoalRequest() (as.GoalID, as.Goal, as.RequestID, bool, error) {
	select {
	case item := <-m.goalQueue:
		return item.id, item.goal, item.req, true, nil
	default:
		return as.GoalID{}, nil, as.RequestID{}, false, nil
	}
}

// SendGoalResponse implements actionserver.Middleware.
func (m *Middleware) SendGoalResponse(req as.RequestID, accepted bool) error {
	m.mu.Lock()
	ch, ok := m.goalResp[req]
	delete(m.goalResp, req)
	m.mu.Unlock()

	if ok {
		ch <- accepted
		close(ch)
	}
	return nil
}

// AcceptNewGoal implements actionserver.Middleware.
func (m *Middleware) AcceptNewGoal(id as.GoalID) (time.Time, error) {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[id] = &goalRecord{status: as.StatusAccepted, acceptedAt: now}
	m.order = append(m.order, id)
	return now, nil
}

// TakeCancelRequest implements actionserver.Middleware.
func (m *Middleware) TakeCancelRequest() (as.CancelFilter, as.RequestID, bool, error) {
	select {
	case item := <-m.cancelQueue:
		return item.filter, item.req, true, nil
	default:
		return as.CancelFilter{}, as.RequestID{}, false, nil
	}
}

// ProcessCancelRequest implements actionserver.Middleware. It expands the
// filter against the goals known to this middleware, in acceptance order.
func (m *Middleware) ProcessCancelRequest(filter as.CancelFilter) ([]as.GoalID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []as.GoalID
	for _, id := range m.order {
		rec, ok := m.goals[id]
		if !ok {
			continue
		}
		switch {
		case filter.HasID:
			if id == filter.ID {
				candidates = append(candidates, id)
			}
		case filter.HasStamp:
			if !rec.acceptedAt.After(filter.Stamp) {
				candidates = append(candidates, id)
			}
		default:
			candidates = append(candidates, id)
		}
	}
	return candidates, nil
}

// SendCancelResponse implements actionserver.Middleware.
func (m *Middleware) SendCancelResponse(req as.RequestID, resp as.CancelResponse) error {
	m.mu.Lock()
	ch, ok := m.cancelResp[req]
	delete(m.cancelResp, req)
	m.mu.Unlock()

	if ok {
		ch <- resp
		close(ch)
	}
	return nil
}

// TakeResultRequest implements actionserver.Middleware.
func (m *Middleware) TakeResultRequest() (as.GoalID, as.RequestID, bool, error) {
	select {
	case item := <-m.resultQueue:
		return item.id, item.req, true, nil
	default:
		return as.GoalID{}, as.RequestID{}, false, nil
	}
}

// SendResultResponse implements actionserver.Middleware.
func (m *Middleware) SendResultResponse(req as.RequestID, resp as.ResultResponse) error {
	m.mu.Lock()
	ch, ok := m.resultResp[req]
	delete(m.resultResp, req)
	m.mu.Unlock()

	if ok {
		ch <- resp
		close(ch)
	}
	return nil
}

// GoalExists implements actionserver.Middleware.
func (m *Middleware) GoalExists(id as.GoalID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.goals[id]
	return ok
}

// ExpireGoals implements actionserver.Middleware. A goal becomes eligible
// once it has been terminal for at least the configured retention window.
func (m *Middleware) ExpireGoals() ([]as.GoalID, error) {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []as.GoalID
	for _, id := range m.order {
		rec, ok := m.goals[id]
		if !ok || rec.terminalSince.IsZero() {
			continue
		}
		if now.Sub(rec.terminalSince) >= m.retention {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.goals, id)
	}
	if len(expired) > 0 {
		m.order = pruneOrder(m.order, m.goals)
	}
	return expired, nil
}

func pruneOrder(order []as.GoalID, goals map[as.GoalID]*goalRecord) []as.GoalID {
	out := order[:0]
	for _, id := range order {
		if _, ok := goals[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// PublishStatus implements actionserver.Middleware. It records the
// snapshot for test assertions and updates its own per-goal bookkeeping,
// marking the moment a goal first becomes terminal so ExpireGoals can
// later apply the retention window to it.
func (m *Middleware) PublishStatus(entries []as.StatusEntry) error {
	m.statusMu.Lock()
	snap := make([]as.StatusEntry, len(entries))
	copy(snap, entries)
	m.statuses = append(m.statuses, snap)
	m.statusMu.Unlock()

	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		rec, ok := m.goals[e.ID]
		if !ok {
			rec = &goalRecord{acceptedAt: e.AcceptedAt}
			m.goals[e.ID] = rec
			m.order = append(m.order, e.ID)
		}
		wasTerminal := rec.status.IsTerminal()
		rec.status = e.Status
		if !wasTerminal && e.Status.IsTerminal() {
			rec.terminalSince = now
		}
	}
	return nil
}

// PublishFeedback implements actionserver.Middleware.
func (m *Middleware) PublishFeedback(id as.GoalID, feedback []byte) error {
	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()
	m.feedback = append(m.feedback, FeedbackEvent{ID: id, Feedback: append([]byte(nil), feedback...)})
	return nil
}

var _ as.Middleware = (*Middleware)(nil)
