package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relaynet/streams/server/config"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/notify/queue"
	t "github.com/relaynet/streams/server/store/types"
)

func captureLogs(tt *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	logs.Init(&buf, "msgprefix")
	tt.Cleanup(func() { logs.Init(os.Stderr, "") })
	return &buf
}

func task(tt *testing.T, ev *notify.Event) *asynq.Task {
	payload, err := json.Marshal(ev)
	if err != nil {
		tt.Fatal(err)
	}
	return asynq.NewTask(queue.TaskType(ev.Kind), payload)
}

func TestDeliver(tt *testing.T) {
	buf := captureLogs(tt)
	delivered := metrics.NotifyEvents.WithLabelValues("stream", "delivered")
	before := testutil.ToFloat64(delivered)

	ev := notify.NewEvent(notify.KindStream, notify.OpCreate, t.Uid(42), []t.Uid{1, 2, 3})
	if err := newServeMux().ProcessTask(context.Background(), task(tt, ev)); err != nil {
		tt.Fatal(err)
	}
	if !strings.Contains(buf.String(), "stream/create") || !strings.Contains(buf.String(), "users=3") {
		tt.Errorf("Unexpected log output '%s'", buf.String())
	}
	if got := testutil.ToFloat64(delivered); got != before+1 {
		tt.Errorf("Expected delivered counter %v, got %v", before+1, got)
	}

	buf.Reset()
	msg := notify.NewMessageEvent(t.Uid(42), &notify.Message{
		Sender:     "notification-bot@system.example.com",
		StreamName: "announce",
		Topic:      "new streams",
		Content:    "hi",
	})
	if err := deliver(context.Background(), task(tt, msg)); err != nil {
		tt.Fatal(err)
	}
	if !strings.Contains(buf.String(), "#announce > new streams") {
		tt.Errorf("Unexpected log output '%s'", buf.String())
	}
}

func TestDeliverMalformed(tt *testing.T) {
	captureLogs(tt)

	err := deliver(context.Background(), asynq.NewTask(queue.TaskPrefix+"stream", []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		tt.Errorf("Malformed payload must not be retried, got %v", err)
	}

	ev := notify.NewEvent(notify.KindStream, notify.OpCreate, t.Uid(42), nil)
	payload, _ := json.Marshal(ev)
	err = deliver(context.Background(), asynq.NewTask(queue.TaskType(notify.KindMessage), payload))
	if !errors.Is(err, asynq.SkipRetry) {
		tt.Errorf("Kind mismatch must not be retried, got %v", err)
	}
}

func TestQueueConfig(tt *testing.T) {
	var conf configType
	err := config.Parse([]byte(`{
		"notify_config": [
			{"name": "stdout", "config": {"enabled": true}},
			// The worker reads the handler config.
			{"name": "queue", "config": {"enabled": true, "redis_url": "redis://localhost:6379/2", "shards": 3}}
		]
	}`), &conf)
	if err != nil {
		tt.Fatal(err)
	}
	qconf, err := conf.queueConfig()
	if err != nil {
		tt.Fatal(err)
	}
	_, queues, err := queue.WorkerConfig(qconf)
	if err != nil {
		tt.Fatal(err)
	}
	if len(queues) != 3 {
		tt.Errorf("Expected 3 queues, got %v", queues)
	}

	if _, err := (&configType{}).queueConfig(); err == nil {
		tt.Error("Expected error without a queue handler")
	}
}
