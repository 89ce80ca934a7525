package actionserver

import "time"

// fakeMiddleware is a minimal Middleware used by this package's own
// white-box unit tests (registry, state machine, cancel coordinator):
// it records PublishStatus/PublishFeedback calls and otherwise returns
// zero values, since these tests drive the core directly rather than
// through Execute. Scenario-level tests that exercise the full dispatch
// surface live in server_test.go against simmw instead.
type fakeMiddleware struct {
	statusCalls   [][]StatusEntry
	feedbackCalls []struct {
		id GoalID
		fb []byte
	}
}

func newFakeMiddleware() *fakeMiddleware { return &fakeMiddleware{} }

func (f *fakeMiddleware) NodeName() string  { return "fake" }
func (f *fakeMiddleware) Now() time.Time    { return time.Unix(0, 0) }
func (f *fakeMiddleware) EntityCounts() EntityCounts { return EntityCounts{} }

func (f *fakeMiddleware) TakeGoalRequest() (GoalID, Goal, RequestID, bool, error) {
	return GoalID{}, nil, RequestID{}, false, nil
}
func (f *fakeMiddleware) SendGoalResponse(RequestID, bool) error { return nil }
func (f *fakeMiddleware) AcceptNewGoal(GoalID) (time.Time, error) {
	return time.Unix(0, 0), nil
}
func (f *fakeMiddleware) TakeCancelRequest() (CancelFilter, RequestID, bool, error) {
	return CancelFilter{}, RequestID{}, false, nil
}
func (f *fakeMiddleware) ProcessCancelRequest(CancelFilter) ([]GoalID, error) { return nil, nil }
func (f *fakeMiddleware) SendCancelResponse(RequestID, CancelResponse) error  { return nil }
func (f *fakeMiddleware) TakeResultRequest() (GoalID, RequestID, bool, error) {
	return GoalID{}, RequestID{}, false, nil
}
func (f *fakeMiddleware) SendResultResponse(RequestID, ResultResponse) error { return nil }
func (f *fakeMiddleware) GoalExists(GoalID) bool                            { return false }
func (f *fakeMiddleware) ExpireGoals() ([]GoalID, error)                    { return nil, nil }

func (f *fakeMiddleware) PublishStatus(entries []StatusEntry) error {
	f.statusCalls = append(f.statusCalls, entries)
	return nil
}

func (f *fakeMiddleware) PublishFeedback(id GoalID, fb []byte) error {
	f.feedbackCalls = append(f.feedbackCalls, struct {
		id GoalID
		fb []byte
	}{id, fb})
	return nil
}

var _ Middleware = (*fakeMiddleware)(nil)

func goalID(b byte) GoalID {
	var id GoalID
	id[0] = b
	return id
}

func newTestServer(t interface{ Fatalf(string, ...any) }, mw Middleware) *ActionServer {
	as, err := NewActionServer("test_action", mw,
		func(GoalID, Goal) GoalDecision { return AcceptAndExecute },
		func(*ServerGoalHandle) CancelDecision { return CancelAccept },
		func(*ServerGoalHandle) {},
		nil,
	)
	if err != nil {
		t.Fatalf("NewActionServer: %v", err)
	}
	return as
}
