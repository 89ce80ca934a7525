package actionserver

import "time"

// Middleware is the runtime collaborator this package consumes: the node,
// clock, and wait-set integrated transport that actually moves goal/cancel/
// result requests and status/feedback messages on the wire.
//
// Every "take" method follows the same contract as rcl_action_take_*: a
// false ok with a nil error means a spurious wakeup (nothing was actually
// queued despite the wait-set reporting readiness) and should be treated as
// a successful no-op, never as a failure.
type Middleware interface {
	// NodeName identifies the owning node, useful to embedders that mint
	// their own goal ids and want to seed them from it.
	NodeName() string

	// Now returns the middleware clock's current time, used to timestamp
	// goal acceptance and status snapshots.
	Now() time.Time

	// TakeGoalRequest dequeues one pending send-goal request. ok is false
	// on a spurious wakeup.
	TakeGoalRequest() (id GoalID, goal Goal, req RequestID, ok bool, err error)
	// SendGoalResponse replies to a send-goal request with a single
	// accepted bit.
	SendGoalResponse(req RequestID, accepted bool) error
	// AcceptNewGoal tells the middleware to start tracking id and returns
	// the timestamp it recorded for the acceptance.
	AcceptNewGoal(id GoalID) (acceptedAt time.Time, err error)

	// TakeCancelRequest dequeues one pending cancel-goal request.
	TakeCancelRequest() (filter CancelFilter, req RequestID, ok bool, err error)
	// ProcessCancelRequest expands filter into the ordered candidate set
	// of goal ids the middleware believes match it, given its own
	// bookkeeping of what is known and cancellable.
	ProcessCancelRequest(filter CancelFilter) ([]GoalID, error)
	// SendCancelResponse replies to a cancel-goal request.
	SendCancelResponse(req RequestID, resp CancelResponse) error

	// TakeResultRequest dequeues one pending get-result request.
	TakeResultRequest() (id GoalID, req RequestID, ok bool, err error)
	// SendResultResponse replies to a get-result request.
	SendResultResponse(req RequestID, resp ResultResponse) error
	// GoalExists reports whether the middleware currently tracks id: it
	// was accepted and has not yet been reported by ExpireGoals.
	GoalExists(id GoalID) bool

	// ExpireGoals reports the ids of terminal goals whose retention
	// window has elapsed since the last call. An empty or nil slice with
	// a nil error means nothing has expired yet.
	ExpireGoals() ([]GoalID, error)

	// PublishStatus publishes a full snapshot of every known goal.
	PublishStatus(entries []StatusEntry) error
	// PublishFeedback publishes one feedback message tagged with id.
	PublishFeedback(id GoalID, feedback []byte) error

	// EntityCounts reports the wait-set entity tally backing this action
	// server, queried once at construction time.
	EntityCounts() EntityCounts
}

// Convert turns a middleware-delivered goal payload into the user-facing
// Goal type handed to GoalCallback and stored on the ServerGoalHandle. The
// identity conversion is correct whenever the Middleware implementation
// already deals in typed Go values (as simmw does); a wire-level binding
// would deserialize bytes here. The conversion must be total and is
// supplied by the embedder rather than invented by this package.
type Convert func(raw Goal) (Goal, error)

// IdentityConvert is the default Convert used when the middleware already
// produces the user-facing Goal type.
func IdentityConvert(raw Goal) (Goal, error) { return raw, nil }
