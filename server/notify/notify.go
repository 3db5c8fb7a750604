// Package notify delivers stream, subscription and user events to registered handler plugins.
package notify

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relaynet/streams/server/metrics"
	t "github.com/relaynet/streams/server/store/types"
)

// Kind is the category of an event.
type Kind string

// Event kinds.
const (
	KindStream       Kind = "stream"
	KindSubscription Kind = "subscription"
	KindRealmUser    Kind = "realm_user"
	KindMessage      Kind = "message"
	KindMutedTopics  Kind = "muted_topics"
)

// Event operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpAdd    = "add"
	OpRemove = "remove"
	OpDelete = "delete"
	OpSend   = "send"
)

// Event is a notification addressed to a set of users of a realm.
type Event struct {
	// Unique id for de-duplication by consumers.
	Id    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Op    string `json:"op"`
	Realm t.Uid  `json:"realm"`
	// Users who should receive the event.
	Users []t.Uid `json:"users,omitempty"`
	// Affected stream, if any.
	Stream t.Uid `json:"stream,omitempty"`
	// Kind-specific data.
	Payload map[string]interface{} `json:"payload,omitempty"`
	// Message to deliver, for KindMessage.
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Message is an automated message sent by a system bot, either directly to users or to a stream topic.
type Message struct {
	Sender string `json:"sender"`
	// Direct message recipients. Empty for stream messages.
	Recipients []t.Uid `json:"recipients,omitempty"`
	StreamName string  `json:"stream,omitempty"`
	Topic      string  `json:"topic,omitempty"`
	Content    string  `json:"content"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(kind Kind, op string, realm t.Uid, users []t.Uid) *Event {
	return &Event{
		Id:        uuid.NewString(),
		Kind:      kind,
		Op:        op,
		Realm:     realm,
		Users:     users,
		Timestamp: t.TimeNow(),
	}
}

// NewMessageEvent wraps a message into an event.
func NewMessageEvent(realm t.Uid, msg *Message) *Event {
	ev := NewEvent(KindMessage, OpSend, realm, msg.Recipients)
	ev.Message = msg
	return ev
}

// Handler is an interface which must be implemented by handlers.
type Handler interface {
	// Init initializes the handler.
	Init(jsonconf json.RawMessage) (bool, error)
	// IsReady checks if the handler is initialized.
	IsReady() bool
	// Events returns a channel that the engine will use to send events to.
	// The event will be dropped if the channel blocks.
	Events() chan<- *Event
	// Stop terminates the handler's worker.
	Stop()
}

type configType struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

var handlers map[string]Handler

// Register a notification handler.
func Register(name string, hnd Handler) {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}

	if hnd == nil {
		panic("Register: notification handler is nil")
	}
	if _, dup := handlers[name]; dup {
		panic("Register: called twice for handler " + name)
	}
	handlers[name] = hnd
}

// Init initializes registered handlers. Returns names of enabled handlers.
func Init(jsconfig json.RawMessage) ([]string, error) {
	var config []configType

	if err := json.Unmarshal(jsconfig, &config); err != nil {
		return nil, errors.New("failed to parse config: " + err.Error())
	}

	var enabled []string
	for _, cc := range config {
		if hnd := handlers[cc.Name]; hnd != nil {
			if ok, err := hnd.Init(cc.Config); err != nil {
				return nil, err
			} else if ok {
				enabled = append(enabled, cc.Name)
			}
		}
	}

	return enabled, nil
}

// Send an event to all ready handlers without blocking.
func Send(ev *Event) {
	if handlers == nil || ev == nil {
		return
	}

	for _, hnd := range handlers {
		if !hnd.IsReady() {
			continue
		}

		select {
		case hnd.Events() <- ev:
			metrics.NotifyEvents.WithLabelValues(string(ev.Kind), "sent").Inc()
		default:
			metrics.NotifyEvents.WithLabelValues(string(ev.Kind), "dropped").Inc()
		}
	}
}

// Stop all handlers.
func Stop() {
	if handlers == nil {
		return
	}

	for _, hnd := range handlers {
		if hnd.IsReady() {
			// Will potentially block
			hnd.Stop()
		}
	}
}
