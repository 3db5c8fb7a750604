package stdout

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/relaynet/streams/server/notify"
)

func TestStdoutHandler(t *testing.T) {
	var buf bytes.Buffer
	handler.output = &buf

	enabled, err := notify.Init(json.RawMessage(`[{"name": "stdout", "config": {"enabled": true, "buffer": 4}}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 1 || enabled[0] != "stdout" {
		t.Fatalf("Expected stdout to be enabled, got %v", enabled)
	}

	ev := notify.NewEvent(notify.KindStream, notify.OpCreate, 1, nil)
	notify.Send(ev)

	// Wait for the worker to drain the channel.
	deadline := time.Now().Add(time.Second)
	for len(handler.input) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	notify.Stop()

	if !strings.Contains(buf.String(), `"id":"`+ev.Id+`"`) {
		t.Errorf("Event not written: '%s'", buf.String())
	}

	if _, err := handler.Init(json.RawMessage(`{"enabled": true}`)); err == nil {
		t.Error("Second Init must fail")
	}
}

func TestStopWritesBuffered(t *testing.T) {
	handler = stdoutNotify{}
	var buf bytes.Buffer
	handler.output = &buf

	if ok, err := handler.Init(json.RawMessage(`{"enabled": true, "buffer": 8}`)); err != nil || !ok {
		t.Fatalf("Init failed: %v %v", ok, err)
	}
	for i := 0; i < 8; i++ {
		handler.Events() <- notify.NewEvent(notify.KindSubscription, notify.OpAdd, 1, nil)
	}
	handler.Stop()

	if lines := strings.Count(buf.String(), "\n"); lines != 8 {
		t.Errorf("Expected 8 events written, got %d", lines)
	}
}
