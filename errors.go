package actionserver

import "github.com/pkg/errors"

// Sentinel errors surfaced across the public API. The concrete error
// returned is often wrapped with extra context via errors.Wrap/errors.Wrapf,
// so callers should compare errors.Cause(err) against these; the pinned
// github.com/pkg/errors release's wrappers do not implement Unwrap, so the
// standard library's errors.Is does not see through them.
var (
	// ErrInvalidTransition is returned by a ServerGoalHandle operation
	// whose precondition on the current GoalStatus doesn't hold.
	ErrInvalidTransition = errors.New("actionserver: invalid state transition")

	// ErrServerGone is returned when a ServerGoalHandle's back-reference
	// to its owning ActionServer can no longer be upgraded.
	ErrServerGone = errors.New("actionserver: owning action server is gone")

	// ErrGoalNotActive is returned by PublishFeedback once a goal's
	// status has advanced past the active states.
	ErrGoalNotActive = errors.New("actionserver: goal is no longer active")

	// ErrDuplicateGoal is the registry's internal invariant violation:
	// under the stated contract (the middleware pre-checks goal id
	// uniqueness before a goal reaches the core) this should never
	// surface; Insert panics with it rather than returning it.
	ErrDuplicateGoal = errors.New("actionserver: duplicate goal id")

	// ErrUnknownGoal names an id that was never inserted, or has already
	// been swept. The registry's own lookups report such an id with a
	// false ok rather than returning this error.
	ErrUnknownGoal = errors.New("actionserver: unknown goal id")

	// ErrBadTopicName is returned by NewActionServer when the action
	// name is empty. No other naming rule is checked.
	ErrBadTopicName = errors.New("actionserver: invalid action name")

	// ErrInvalidGoalPayload is returned by a Convert implementation that
	// cannot interpret the raw goal payload it was handed, e.g. JSONConvert
	// given something other than a []byte.
	ErrInvalidGoalPayload = errors.New("actionserver: invalid goal payload")
)

// isTimeout reports whether err is the middleware's benign SendTimeout,
// which callers log and otherwise ignore rather than propagate.
func isTimeout(err error) bool {
	t, ok := errors.Cause(err).(interface{ Timeout() bool })
	return ok && t.Timeout()
}
