// Package streams creates streams, manages subscriptions to them and administers stream settings.
package streams

import (
	"encoding/json"
	"errors"
	"time"
)

// Defaults of the stream config.
const (
	defaultMaxNameLength        = 60
	defaultMaxDescriptionLength = 1024
	defaultAnnounceTopic        = "new streams"
	defaultStreamEventsTopic    = "stream events"
)

type configType struct {
	MaxNameLength        int `json:"max_name_length"`
	MaxDescriptionLength int `json:"max_description_length"`
	// Topic of the realm notifications stream used for new stream announcements.
	NewStreamAnnounceTopic string `json:"new_stream_announce_topic"`
	// Topic for automated messages about changes to a stream, posted to the stream itself.
	StreamEventsTopic string `json:"stream_events_topic"`
}

var globals = configType{
	MaxNameLength:          defaultMaxNameLength,
	MaxDescriptionLength:   defaultMaxDescriptionLength,
	NewStreamAnnounceTopic: defaultAnnounceTopic,
	StreamEventsTopic:      defaultStreamEventsTopic,
}

// Overridden in tests.
var timeNow = time.Now

// Init applies the stream config. Missing values keep their defaults.
func Init(jsonconf json.RawMessage) error {
	if len(jsonconf) == 0 {
		return nil
	}

	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("streams: failed to parse config: " + err.Error())
	}
	if config.MaxNameLength < 0 || config.MaxDescriptionLength < 0 {
		return errors.New("streams: invalid length limits")
	}

	if config.MaxNameLength > 0 {
		globals.MaxNameLength = config.MaxNameLength
	}
	if config.MaxDescriptionLength > 0 {
		globals.MaxDescriptionLength = config.MaxDescriptionLength
	}
	if config.NewStreamAnnounceTopic != "" {
		globals.NewStreamAnnounceTopic = config.NewStreamAnnounceTopic
	}
	if config.StreamEventsTopic != "" {
		globals.StreamEventsTopic = config.StreamEventsTopic
	}
	return nil
}
