package actionserver

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// serverRef is a non-owning back-reference from a ServerGoalHandle to its
// owning ActionServer. upgrade reports whether the server is still alive;
// clear() makes every future upgrade fail, the way a weak pointer's
// upgrade fails once its target is gone.
type serverRef struct {
	p atomic.Pointer[ActionServer]
}

func newServerRef(as *ActionServer) *serverRef {
	r := &serverRef{}
	r.p.Store(as)
	return r
}

func (r *serverRef) upgrade() (*ActionServer, bool) {
	as := r.p.Load()
	return as, as != nil
}

func (r *serverRef) clear() {
	r.p.Store(nil)
}

// ServerGoalHandle is the per-goal state machine and the user-facing
// surface for a single accepted goal: it carries the goal payload, tracks
// its current status, and exposes the operations (execute, succeed, abort,
// cancel, publish feedback) that move it through its lifecycle.
type ServerGoalHandle struct {
	id         GoalID
	goal       Goal
	acceptedAt time.Time
	sm         *goalStateMachine
	back       *serverRef
}

func newServerGoalHandle(id GoalID, goal Goal, acceptedAt time.Time, as *ActionServer) *ServerGoalHandle {
	return &ServerGoalHandle{
		id:         id,
		goal:       goal,
		acceptedAt: acceptedAt,
		sm:         newGoalStateMachine(),
		back:       newServerRef(as),
	}
}

// ID returns the goal's identifier.
func (gh *ServerGoalHandle) ID() GoalID { return gh.id }

// Goal returns the immutable goal payload.
func (gh *ServerGoalHandle) Goal() Goal { return gh.goal }

// AcceptedAt returns the middleware-assigned acceptance timestamp.
func (gh *ServerGoalHandle) AcceptedAt() time.Time { return gh.acceptedAt }

// Status returns the current GoalStatus.
func (gh *ServerGoalHandle) Status() GoalStatus { return gh.sm.get() }

// IsActive reports whether the goal is in any of the active states.
func (gh *ServerGoalHandle) IsActive() bool { return gh.sm.get().IsActive() }

// IsExecuting reports whether the goal is currently Executing.
func (gh *ServerGoalHandle) IsExecuting() bool { return gh.sm.get() == StatusExecuting }

// IsCanceling reports whether a cancel has been requested and accepted for
// this goal.
func (gh *ServerGoalHandle) IsCanceling() bool { return gh.sm.get() == StatusCanceling }

// Execute transitions Accepted -> Executing and publishes a status
// snapshot. It is an error to call this from any other state.
func (gh *ServerGoalHandle) Execute() error {
	if _, err := gh.sm.transition(evExecute); err != nil {
		return errors.Wrapf(err, "goal %x: execute", gh.id)
	}
	gh.publishStatus()
	return nil
}

// cancel is the internal transition driven by the CancelCoordinator: an
// active, not-yet-cancel-requested goal moves to Canceling and a status
// snapshot is published. User code never calls this directly; it is
// invoked only after cancel_cb has already accepted the cancellation.
func (gh *ServerGoalHandle) cancel() error {
	if _, err := gh.sm.transition(evCancelRequest); err != nil {
		return errors.Wrapf(err, "goal %x: cancel", gh.id)
	}
	gh.publishStatus()
	return nil
}

// Succeed transitions an active goal to Succeeded, stores result, wakes
// any pending get-result callers and publishes a status snapshot. The
// status publication happens before the result is stored, so a racing
// get-result request either observes the pre-terminal status (and
// enqueues) or the cached result — never neither.
func (gh *ServerGoalHandle) Succeed(result []byte) error {
	return gh.terminate(evSucceed, result)
}

// Abort transitions an active goal to Aborted; see Succeed for ordering.
func (gh *ServerGoalHandle) Abort(result []byte) error {
	return gh.terminate(evAbort, result)
}

// Canceled transitions a Canceling goal to Canceled; see Succeed for
// ordering. It is an error to call this from any state but Canceling.
func (gh *ServerGoalHandle) Canceled(result []byte) error {
	return gh.terminate(evCanceled, result)
}

func (gh *ServerGoalHandle) terminate(ev event, result []byte) error {
	if _, err := gh.sm.transition(ev); err != nil {
		return errors.Wrapf(err, "goal %x: terminate", gh.id)
	}

	// Publish status before the result becomes observable: a get-result
	// request racing this terminal transition must see either the
	// pre-terminal status (and enqueue) or the stored result, never a
	// terminal status with no result.
	gh.publishStatus()

	as, ok := gh.back.upgrade()
	if !ok {
		return ErrServerGone
	}
	as.completeGoal(gh.id, result)
	return nil
}

// PublishFeedback emits a feedback message tagged with this goal's id. It
// is only valid while the goal is active: feedback is refused once status
// has advanced past the active states, even if the call raced a terminal
// transition.
func (gh *ServerGoalHandle) PublishFeedback(feedback []byte) error {
	// Hold the state machine's read lock through the publish, so that a
	// terminal transition cannot complete between the check and the send.
	gh.sm.mu.RLock()
	defer gh.sm.mu.RUnlock()
	if !gh.sm.status.IsActive() {
		return ErrGoalNotActive
	}
	as, ok := gh.back.upgrade()
	if !ok {
		return ErrServerGone
	}
	return as.mw.PublishFeedback(gh.id, feedback)
}

// clearBackRef invalidates the handle's reference to its owning server, so
// that subsequent PublishFeedback, Succeed, Abort and Canceled calls observe
// ErrServerGone instead of reaching a server that has shut down. Execute
// still applies its transition and returns nil, publishing no status.
func (gh *ServerGoalHandle) clearBackRef() {
	gh.back.clear()
}

func (gh *ServerGoalHandle) publishStatus() {
	if as, ok := gh.back.upgrade(); ok {
		as.PublishStatus()
	}
}
