package streams

import (
	"errors"
	"fmt"
	"strings"

	"github.com/relaynet/streams/server/access"
	"github.com/relaynet/streams/server/cache"
	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
	"github.com/rivo/uniseg"
)

const deactivatedPrefix = "!DEACTIVATED:"

// notifyStreamUpdate sends a stream/update event to everyone who can see the stream.
func notifyStreamUpdate(stream *t.Stream, property string, value interface{}) {
	users, err := streamAudience(stream)
	if err != nil {
		logs.Warn.Println("streams: failed to load stream audience", stream.Name, err)
		return
	}
	ev := notify.NewEvent(notify.KindStream, notify.OpUpdate, stream.Realm, users)
	ev.Stream = stream.Uid()
	ev.Payload = map[string]interface{}{
		"stream_id": stream.Uid(),
		"name":      stream.Name,
		"property":  property,
		"value":     value,
	}
	notify.Send(ev)
}

// postStreamEvent posts an automated message to the stream's events topic.
func postStreamEvent(stream *t.Stream, content string) {
	sender := access.NotificationBotEmail()
	if sender == "" {
		return
	}
	notify.Send(notify.NewMessageEvent(stream.Realm, &notify.Message{
		Sender:     sender,
		StreamName: stream.Name,
		Topic:      globals.StreamEventsTopic,
		Content:    content,
	}))
}

func mention(user *t.User) string {
	return fmt.Sprintf("@_**%s|%s**", user.FullName, user.Uid().String())
}

// RenameStream changes the name of the stream. Changing only the case of the name is allowed.
func RenameStream(actor *t.User, streamId t.Uid, newName string) (*t.Stream, error) {
	stream, err := access.AccessStreamForDeleteOrUpdate(actor, streamId)
	if err != nil {
		return nil, err
	}

	newName = strings.TrimSpace(newName)
	if common.StreamNameKey(newName) == common.StreamNameKey(stream.Name) {
		err = CheckStreamName(newName)
	} else {
		err = CheckStreamNameAvailable(stream.Realm, newName)
	}
	if err != nil {
		return nil, err
	}
	if newName == stream.Name {
		return stream, nil
	}

	if err := store.Streams.Update(stream.Uid(), map[string]interface{}{"Name": newName}); err != nil {
		if errors.Is(err, t.ErrDuplicate) {
			return nil, t.NewUserError(t.ErrDuplicate, "Stream name '%s' is already taken.", newName)
		}
		return nil, err
	}

	oldName := stream.Name
	stream.Name = newName
	cache.Invalidate(cache.StreamNameKey(stream.Realm, oldName), cache.StreamNameKey(stream.Realm, newName),
		cache.DisplayRecipientKey(stream.Recipient))
	notifyStreamUpdate(stream, "name", newName)
	postStreamEvent(stream, fmt.Sprintf("%s renamed stream **%s** to **%s**.", mention(actor), oldName, newName))
	return stream, nil
}

// ChangeStreamDescription replaces the description. Newlines are converted to spaces.
func ChangeStreamDescription(actor *t.User, streamId t.Uid, description string) (*t.Stream, error) {
	stream, err := access.AccessStreamForDeleteOrUpdate(actor, streamId)
	if err != nil {
		return nil, err
	}
	if description, err = cleanDescription(description); err != nil {
		return nil, err
	}

	if err := store.Streams.Update(stream.Uid(), map[string]interface{}{"Description": description}); err != nil {
		return nil, err
	}
	stream.Description = description
	cache.Invalidate(cache.StreamNameKey(stream.Realm, stream.Name))
	notifyStreamUpdate(stream, "description", description)
	return stream, nil
}

// ChangeStreamPrivacy makes the stream public or private. The history policy is derived the same
// way as for a new stream.
func ChangeStreamPrivacy(actor *t.User, streamId t.Uid, inviteOnly bool, historyPublicToSubscribers *bool) (*t.Stream, error) {
	stream, err := access.AccessStreamForDeleteOrUpdate(actor, streamId)
	if err != nil {
		return nil, err
	}

	realm, err := store.Realms.Get(stream.Realm)
	if err != nil {
		return nil, err
	}
	if realm == nil {
		return nil, t.ErrInternal
	}
	history := DefaultHistoryPublicToSubscribers(realm, inviteOnly, historyPublicToSubscribers)

	// Users who could see the stream before the change must learn that it went private.
	before, err := streamAudience(stream)
	if err != nil {
		return nil, err
	}

	if err := store.Streams.Update(stream.Uid(), map[string]interface{}{
		"InviteOnly":                 inviteOnly,
		"HistoryPublicToSubscribers": history,
	}); err != nil {
		return nil, err
	}
	stream.InviteOnly = inviteOnly
	stream.HistoryPublicToSubscribers = history

	cache.Invalidate(cache.StreamNameKey(stream.Realm, stream.Name), cache.DisplayRecipientKey(stream.Recipient))

	after, err := streamAudience(stream)
	if err != nil {
		logs.Warn.Println("streams: failed to load stream audience", stream.Name, err)
	}
	audience := t.NewUidSlice(before...)
	for _, uid := range after {
		audience.Add(uid)
	}
	ev := notify.NewEvent(notify.KindStream, notify.OpUpdate, stream.Realm, audience)
	ev.Stream = stream.Uid()
	ev.Payload = map[string]interface{}{
		"stream_id":                     stream.Uid(),
		"name":                          stream.Name,
		"property":                      "invite_only",
		"value":                         inviteOnly,
		"history_public_to_subscribers": history,
	}
	notify.Send(ev)
	return stream, nil
}

// ChangeStreamPostPolicy changes who may post to the stream.
func ChangeStreamPostPolicy(actor *t.User, streamId t.Uid, policy t.PostPolicy) (*t.Stream, error) {
	if !policy.IsValid() {
		return nil, t.NewUserError(t.ErrMalformed, "Invalid stream_post_policy")
	}
	stream, err := access.AccessStreamForDeleteOrUpdate(actor, streamId)
	if err != nil {
		return nil, err
	}

	if err := store.Streams.Update(stream.Uid(), map[string]interface{}{"PostPolicy": policy}); err != nil {
		return nil, err
	}
	stream.PostPolicy = policy
	cache.Invalidate(cache.StreamNameKey(stream.Realm, stream.Name))
	notifyStreamUpdate(stream, "stream_post_policy", int(policy))
	return stream, nil
}

// DeactivateStream unsubscribes everyone, makes the stream private and renames it so that the name
// can be reused. The stream is kept for the message history.
func DeactivateStream(actor *t.User, streamId t.Uid) error {
	stream, err := access.AccessStreamForDeleteOrUpdate(actor, streamId)
	if err != nil {
		return err
	}
	if stream.Deactivated {
		return nil
	}

	// Collected before the subscriptions are gone.
	audience, err := streamAudience(stream)
	if err != nil {
		return err
	}

	newName, err := deactivatedName(stream)
	if err != nil {
		return err
	}

	if err := store.Streams.Deactivate(stream, newName); err != nil {
		return err
	}

	cache.Invalidate(cache.StreamNameKey(stream.Realm, stream.Name), cache.StreamNameKey(stream.Realm, newName),
		cache.DisplayRecipientKey(stream.Recipient))

	ev := notify.NewEvent(notify.KindStream, notify.OpDelete, stream.Realm, audience)
	ev.Stream = stream.Uid()
	ev.Payload = map[string]interface{}{"stream_id": stream.Uid(), "name": stream.Name}
	notify.Send(ev)
	return nil
}

// deactivatedName finds an unused name for a deactivated stream.
func deactivatedName(stream *t.Stream) (string, error) {
	name := truncate(deactivatedPrefix+stream.Name, globals.MaxNameLength)
	for i := 0; i < 20; i++ {
		existing, err := store.Streams.GetByName(stream.Realm, name)
		if err != nil {
			return "", err
		}
		if existing == nil || existing.Uid() == stream.Uid() {
			return name, nil
		}
		name = truncate("!"+name, globals.MaxNameLength)
	}
	return "", t.NewUserError(t.ErrDuplicate, "Stream name '%s' is already taken.", name)
}

// truncate shortens s to at most max grapheme clusters, the unit CheckStreamName counts.
func truncate(s string, max int) string {
	gr := uniseg.NewGraphemes(s)
	for n := 0; gr.Next(); n++ {
		if n == max {
			from, _ := gr.Positions()
			return s[:from]
		}
	}
	return s
}
