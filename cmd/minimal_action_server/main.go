// Command minimal_action_server runs a Fibonacci action server wired to an
// in-memory middleware, rejecting orders above 9000, executing everything
// else on a background worker pool and logging every step.
package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ygrebnov/workers"

	as "github.com/nwn/actionserver"
	"github.com/nwn/actionserver/simmw"
)

type fibonacciGoal struct {
	Order int
}

func handleGoal(id as.GoalID, goal as.Goal) as.GoalDecision {
	order := goal.(fibonacciGoal).Order
	logrus.WithFields(logrus.Fields{"goal": id, "order": order}).Info("received goal request")
	if order > 9000 {
		return as.Reject
	}
	return as.AcceptAndExecute
}

func handleCancel(handle *as.ServerGoalHandle) as.CancelDecision {
	logrus.WithField("goal", handle.ID()).Info("got request to cancel goal")
	return as.CancelAccept
}

func execute(ctx context.Context, handle *as.ServerGoalHandle) error {
	logrus.WithField("goal", handle.ID()).Info("executing goal")

	order := handle.Goal().(fibonacciGoal).Order
	sequence := make([]int, 0, order+1)
	sequence = append(sequence, 0)
	if order > 0 {
		sequence = append(sequence, 1)
	}
	for i := 2; i <= order; i++ {
		if handle.IsCanceling() {
			return handle.Canceled(nil)
		}
		sequence = append(sequence, sequence[i-1]+sequence[i-2])
		if err := handle.PublishFeedback(encodeSequence(sequence)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return handle.Succeed(encodeSequence(sequence))
}

func encodeSequence(seq []int) []byte {
	out := make([]byte, len(seq))
	for i, v := range seq {
		if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

func handleAccepted(pool workers.Workers[error]) as.AcceptedCallback {
	return func(handle *as.ServerGoalHandle) {
		_ = pool.AddTask(func(ctx context.Context) error {
			return execute(ctx, handle)
		})
	}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{})

	mw := simmw.New("minimal_action_server")
	pool := workers.New[error](context.Background(), &workers.Config{
		StartImmediately:  true,
		ResultsBufferSize: 64,
		ErrorsBufferSize:  64,
	})

	go func() {
		for err := range pool.GetErrors() {
			logrus.WithError(err).Error("goal execution failed")
		}
	}()

	server, err := as.NewActionServer("fibonacci", mw, handleGoal, handleCancel, handleAccepted(pool), nil)
	if err != nil {
		logrus.WithError(err).Fatal("failed to construct action server")
	}

	stop := make(chan struct{})
	go server.RunExpirationLoop(time.Second, stop)

	respCh := mw.SubmitGoal(newGoalID(), fibonacciGoal{Order: 10})
	if err := server.Execute(as.GoalRequest); err != nil {
		logrus.WithError(err).Fatal("execute goal request failed")
	}
	logrus.WithField("accepted", <-respCh).Info("goal response delivered")
}

func newGoalID() as.GoalID {
	u := uuid.New()
	return as.GoalID(u)
}
