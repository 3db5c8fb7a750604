package streams

import (
	"errors"

	"github.com/relaynet/streams/server/access"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

func notifyMutes(actor *t.User, op string, stream *t.Stream, topic string) {
	ev := notify.NewEvent(notify.KindMutedTopics, op, actor.Realm, []t.Uid{actor.Uid()})
	ev.Stream = stream.Uid()
	ev.Payload = map[string]interface{}{"stream_id": stream.Uid(), "topic": topic}
	notify.Send(ev)
}

// MuteTopic suppresses notifications about the topic for the actor. The stream is identified either
// by id or by name, and must be accessible to the actor.
func MuteTopic(actor *t.User, streamId t.Uid, streamName, topic string) error {
	if err := CheckForExactlyOneStreamArg(streamId, streamName); err != nil {
		return err
	}

	var stream *t.Stream
	var err error
	if streamName != "" {
		stream, _, _, err = access.AccessStreamByName(actor, streamName, false)
	} else {
		stream, _, _, err = access.AccessStreamById(actor, streamId, false)
	}
	if err != nil {
		return err
	}

	err = store.Mutes.Add(&t.TopicMute{
		User:      actor.Uid(),
		Stream:    stream.Uid(),
		Recipient: stream.Recipient,
		TopicName: topic,
	})
	if errors.Is(err, t.ErrDuplicate) {
		return t.NewUserError(t.ErrDuplicate, "Topic already muted")
	}
	if err != nil {
		return err
	}
	notifyMutes(actor, notify.OpAdd, stream, topic)
	return nil
}

// UnmuteTopic removes a topic mute. Access to the stream is not checked: the user may have lost
// access after muting the topic.
func UnmuteTopic(actor *t.User, streamId t.Uid, streamName, topic string) error {
	if err := CheckForExactlyOneStreamArg(streamId, streamName); err != nil {
		return err
	}

	var stream *t.Stream
	var err error
	if streamName != "" {
		stream, err = store.Streams.GetByName(actor.Realm, streamName)
	} else {
		stream, err = store.Streams.Get(streamId)
	}
	if err != nil {
		return err
	}
	if stream == nil || stream.Realm != actor.Realm {
		if streamName != "" {
			return t.NewUserError(t.ErrNotFound, "Invalid stream name '%s'", streamName)
		}
		return t.NewUserError(t.ErrNotFound, "Invalid stream id")
	}

	err = store.Mutes.Delete(actor.Uid(), stream.Recipient, topic)
	if errors.Is(err, t.ErrNotFound) {
		return t.NewUserError(t.ErrNotFound, "Topic is not muted")
	}
	if err != nil {
		return err
	}
	notifyMutes(actor, notify.OpRemove, stream, topic)
	return nil
}
