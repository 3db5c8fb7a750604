// Package queue is a notification handler which enqueues events as asynq tasks in Redis.
// Events are enqueued in the order they were sent. Events of a realm always go to the same
// queue, chosen by a consistent hash over the realm id. Consumers process tasks of a queue
// concurrently, so delivery order is not preserved.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/ringhash"
)

const (
	defaultBuffer   = 256
	defaultPrefix   = "notify"
	defaultShards   = 4
	defaultReplicas = 16
	defaultMaxRetry = 5
	defaultTimeout  = 5 * time.Second

	// TaskPrefix prefixes task types: notify:stream, notify:message etc.
	TaskPrefix = "notify:"
)

type configType struct {
	Enabled bool `json:"enabled"`
	Buffer  int  `json:"buffer"`
	// Redis connection URI, redis://[:password@]host[:port][/db].
	RedisURL string `json:"redis_url"`
	// Queue names are <queue_prefix>-<n>.
	QueuePrefix string `json:"queue_prefix"`
	Shards      int    `json:"shards"`
	Replicas    int    `json:"replicas"`
	MaxRetry    int    `json:"max_retry"`
	// Enqueue timeout in seconds.
	Timeout int `json:"timeout"`
}

func (c *configType) applyDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = defaultBuffer
	}
	if c.QueuePrefix == "" {
		c.QueuePrefix = defaultPrefix
	}
	if c.Shards <= 0 {
		c.Shards = defaultShards
	}
	if c.Replicas <= 0 {
		c.Replicas = defaultReplicas
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Replaced in tests.
var newClient = func(opt asynq.RedisConnOpt) enqueuer {
	return asynq.NewClient(opt)
}

type queueNotify struct {
	initialized bool
	input       chan *notify.Event
	stop        chan bool
	done        chan bool

	client   enqueuer
	ring     *ringhash.Ring
	maxRetry int
	timeout  time.Duration
}

var handler queueNotify

// TaskType returns asynq task type for the event kind.
func TaskType(kind notify.Kind) string {
	return TaskPrefix + string(kind)
}

// QueueFor returns the name of the queue for the event.
func (h *queueNotify) QueueFor(ev *notify.Event) string {
	return h.ring.Get(ev.Realm.String())
}

func (h *queueNotify) enqueue(ev *notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	_, err = h.client.EnqueueContext(ctx, asynq.NewTask(TaskType(ev.Kind), payload),
		asynq.Queue(h.QueueFor(ev)), asynq.MaxRetry(h.maxRetry), asynq.TaskID(ev.Id))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Already enqueued.
		return nil
	}
	return err
}

func (h *queueNotify) send(ev *notify.Event) {
	if err := h.enqueue(ev); err != nil {
		metrics.NotifyEvents.WithLabelValues(string(ev.Kind), "enqueue_failed").Inc()
		logs.Warn.Println("queue: failed to enqueue event", ev.Id, ev.Kind, err)
	}
}

// flush enqueues events which were accepted before Stop.
func (h *queueNotify) flush() {
	for {
		select {
		case ev := <-h.input:
			h.send(ev)
		default:
			return
		}
	}
}

// Init initializes the handler.
func (queueNotify) Init(jsonconf json.RawMessage) (bool, error) {
	if handler.initialized {
		return false, errors.New("already initialized")
	}

	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return false, errors.New("failed to parse config: " + err.Error())
	}

	handler.initialized = true

	if !config.Enabled {
		return false, nil
	}
	config.applyDefaults()

	opt, err := asynq.ParseRedisURI(config.RedisURL)
	if err != nil {
		return false, errors.New("invalid redis_url: " + err.Error())
	}

	handler.client = newClient(opt)
	handler.ring = ringhash.NewShards(config.QueuePrefix, config.Shards, config.Replicas)
	handler.maxRetry = config.MaxRetry
	handler.timeout = defaultTimeout
	if config.Timeout > 0 {
		handler.timeout = time.Duration(config.Timeout) * time.Second
	}

	handler.input = make(chan *notify.Event, config.Buffer)
	handler.stop = make(chan bool, 1)
	handler.done = make(chan bool)

	go func() {
		defer close(handler.done)
		for {
			select {
			case ev := <-handler.input:
				handler.send(ev)
			case <-handler.stop:
				handler.flush()
				if err := handler.client.Close(); err != nil {
					logs.Warn.Println("queue: failed to close client", err)
				}
				return
			}
		}
	}()

	return true, nil
}

// IsReady checks if the handler is initialized.
func (queueNotify) IsReady() bool {
	return handler.input != nil
}

// Events returns a channel that the engine will use to send events to.
func (queueNotify) Events() chan<- *notify.Event {
	return handler.input
}

// Stop enqueues the buffered events and shuts down the handler.
func (queueNotify) Stop() {
	handler.stop <- true
	<-handler.done
}

// WorkerConfig extracts Redis connection options and the weighted list of queues
// from the handler config, for use by asynq servers consuming the events.
func WorkerConfig(jsonconf json.RawMessage) (asynq.RedisConnOpt, map[string]int, error) {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return nil, nil, errors.New("failed to parse config: " + err.Error())
	}
	config.applyDefaults()

	opt, err := asynq.ParseRedisURI(config.RedisURL)
	if err != nil {
		return nil, nil, errors.New("invalid redis_url: " + err.Error())
	}

	queues := map[string]int{}
	for _, name := range ringhash.NewShards(config.QueuePrefix, config.Shards, 1).Keys() {
		queues[name] = 1
	}
	return opt, queues, nil
}

// DecodeEvent parses the payload of a notification task.
func DecodeEvent(task *asynq.Task) (*notify.Event, error) {
	var ev notify.Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func init() {
	notify.Register("queue", &handler)
}
