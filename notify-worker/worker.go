package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/notify/queue"
)

// asynqLogger sends asynq log output to the server loggers.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) {}

func (asynqLogger) Info(args ...interface{}) {
	logs.Info.Output(2, "asynq: "+fmt.Sprint(args...))
}

func (asynqLogger) Warn(args ...interface{}) {
	logs.Warn.Output(2, "asynq: "+fmt.Sprint(args...))
}

func (asynqLogger) Error(args ...interface{}) {
	logs.Err.Output(2, "asynq: "+fmt.Sprint(args...))
}

func (asynqLogger) Fatal(args ...interface{}) {
	logs.Err.Fatal("asynq: " + fmt.Sprint(args...))
}

func newServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	// Patterns match by prefix: one handler for all event kinds.
	mux.HandleFunc(queue.TaskPrefix, deliver)
	return mux
}

// deliver hands the event over to its recipients. Delivery channels are not part of
// this service: the event is logged and counted.
func deliver(ctx context.Context, task *asynq.Task) error {
	ev, err := queue.DecodeEvent(task)
	if err != nil {
		metrics.NotifyEvents.WithLabelValues("unknown", "malformed").Inc()
		return fmt.Errorf("malformed event in %s: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if task.Type() != queue.TaskType(ev.Kind) {
		metrics.NotifyEvents.WithLabelValues(string(ev.Kind), "malformed").Inc()
		return fmt.Errorf("event kind '%s' does not match task %s: %w", ev.Kind, task.Type(), asynq.SkipRetry)
	}

	if ev.Kind == notify.KindMessage && ev.Message != nil {
		msg := ev.Message
		if msg.StreamName != "" {
			logs.Info.Printf("deliver %s: %s -> #%s > %s", ev.Id, msg.Sender, msg.StreamName, msg.Topic)
		} else {
			logs.Info.Printf("deliver %s: %s -> %d users", ev.Id, msg.Sender, len(msg.Recipients))
		}
	} else {
		logs.Info.Printf("deliver %s: %s/%s realm=%s users=%d", ev.Id, ev.Kind, ev.Op, ev.Realm.String(), len(ev.Users))
	}
	metrics.NotifyEvents.WithLabelValues(string(ev.Kind), "delivered").Inc()
	return nil
}

// handleError logs tasks which failed processing.
func handleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logs.Warn.Printf("task %s failed (attempt %d of %d): %v", task.Type(), retried+1, maxRetry+1, err)
}
