// Package stdout is a notification handler which writes every event to stdout as JSON.
package stdout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/notify"
)

var handler stdoutNotify

// How much to buffer the input channel.
const defaultBuffer = 32

type stdoutNotify struct {
	initialized bool
	input       chan *notify.Event
	stop        chan bool
	done        chan bool
	output      io.Writer
}

type configType struct {
	Enabled bool `json:"enabled"`
	Buffer  int  `json:"buffer"`
}

func (h *stdoutNotify) write(ev *notify.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logs.Warn.Println("stdout: failed to serialize event", ev.Id, err)
		return
	}
	fmt.Fprintln(h.output, string(data))
}

// Init initializes the handler
func (stdoutNotify) Init(jsonconf json.RawMessage) (bool, error) {
	// Check if the handler is already initialized
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

	if config.Buffer <= 0 {
		config.Buffer = defaultBuffer
	}
	if handler.output == nil {
		handler.output = os.Stdout
	}

	handler.input = make(chan *notify.Event, config.Buffer)
	handler.stop = make(chan bool, 1)
	handler.done = make(chan bool)

	go func() {
		defer close(handler.done)
		for {
			select {
			case ev := <-handler.input:
				handler.write(ev)
			case <-handler.stop:
				// Write out what is already buffered.
				for {
					select {
					case ev := <-handler.input:
						handler.write(ev)
						continue
					default:
					}
					return
				}
			}
		}
	}()

	return true, nil
}

// IsReady checks if the handler is initialized.
func (stdoutNotify) IsReady() bool {
	return handler.input != nil
}

// Events returns a channel that the engine will use to send events to.
// If the handler blocks, the event will be dropped.
func (stdoutNotify) Events() chan<- *notify.Event {
	return handler.input
}

// Stop shuts down the handler and waits for the worker to exit.
func (stdoutNotify) Stop() {
	handler.stop <- true
	<-handler.done
}

func init() {
	notify.Register("stdout", &handler)
}
