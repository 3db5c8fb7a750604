// Package access decides whether a user may read, post to or administer a stream.
//
// Lookup failures and access denials produce textually identical errors, so that
// callers cannot probe for the existence of private streams.
package access

import (
	"time"

	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

const (
	errInvalidStreamId   = "Invalid stream id"
	errInvalidStreamName = "Invalid stream name '%s'"
)

// Overridden in tests.
var timeNow = time.Now

func denied(op string) {
	metrics.AccessDenied.WithLabelValues(op).Inc()
}

func isActive(sub *t.Subscription) bool {
	return sub != nil && sub.Active
}

// CanAccessStreamContent checks if the actor may read messages of the stream and see its
// subscribers. sub is the actor's subscription to the stream or nil. Realm administrators
// may access private streams only when allowAdminBypass is set.
func CanAccessStreamContent(actor *t.User, stream *t.Stream, sub *t.Subscription, allowAdminBypass bool) bool {
	if stream.Realm != actor.Realm {
		return false
	}
	if stream.IsPublic() && !actor.IsGuest() {
		return true
	}
	if isActive(sub) {
		return true
	}
	return allowAdminBypass && actor.IsRealmAdmin()
}

// CanAccessStreamHistory checks if the actor may read messages sent before they subscribed.
// For private streams it requires a current subscription: unsubscribing revokes access.
func CanAccessStreamHistory(actor *t.User, stream *t.Stream, sub *t.Subscription) bool {
	if stream.Realm != actor.Realm {
		return false
	}
	if stream.IsHistoryRealmPublic() && !actor.IsGuest() {
		return true
	}
	if stream.HistoryPublicToSubscribers && !stream.IsInZephyrRealm {
		return CanAccessStreamContent(actor, stream, sub, false)
	}
	return false
}

// streamRecipient builds the recipient envelope of the stream without a database round trip.
func streamRecipient(stream *t.Stream) *t.Recipient {
	rcpt := &t.Recipient{Type: t.RecipientStream, TypeId: stream.Uid()}
	rcpt.SetUid(stream.Recipient)
	return rcpt
}

func accessStreamCommon(actor *t.User, stream *t.Stream, allowAdminBypass bool, op, format string,
	args ...interface{}) (*t.Recipient, *t.Subscription, error) {

	if stream.Realm != actor.Realm || stream.Deactivated {
		denied(op)
		return nil, nil, t.NewUserError(t.ErrNotFound, format, args...)
	}

	sub, err := store.Subs.Get(actor.Uid(), stream.Recipient)
	if err != nil {
		return nil, nil, err
	}
	if !CanAccessStreamContent(actor, stream, sub, allowAdminBypass) {
		denied(op)
		return nil, nil, t.NewUserError(t.ErrNotFound, format, args...)
	}
	return streamRecipient(stream), sub, nil
}

// AccessStreamById loads the stream and checks that the actor may access it.
// Returns the stream, its recipient and the actor's subscription, which may be nil.
func AccessStreamById(actor *t.User, id t.Uid, allowAdminBypass bool) (*t.Stream, *t.Recipient, *t.Subscription, error) {
	stream, err := store.Streams.Get(id)
	if err != nil {
		return nil, nil, nil, err
	}
	if stream == nil {
		denied("stream_by_id")
		return nil, nil, nil, t.NewUserError(t.ErrNotFound, errInvalidStreamId)
	}
	rcpt, sub, err := accessStreamCommon(actor, stream, allowAdminBypass, "stream_by_id", errInvalidStreamId)
	if err != nil {
		return nil, nil, nil, err
	}
	return stream, rcpt, sub, nil
}

// AccessStreamByName is AccessStreamById for case-insensitive stream names.
func AccessStreamByName(actor *t.User, name string, allowAdminBypass bool) (*t.Stream, *t.Recipient, *t.Subscription, error) {
	stream, err := store.Streams.GetByName(actor.Realm, name)
	if err != nil {
		return nil, nil, nil, err
	}
	if stream == nil {
		denied("stream_by_name")
		return nil, nil, nil, t.NewUserError(t.ErrNotFound, errInvalidStreamName, name)
	}
	rcpt, sub, err := accessStreamCommon(actor, stream, allowAdminBypass, "stream_by_name", errInvalidStreamName, name)
	if err != nil {
		return nil, nil, nil, err
	}
	return stream, rcpt, sub, nil
}

// AccessStreamForDeleteOrUpdate allows realm administrators to modify any stream of their
// realm, including private streams they are not subscribed to.
func AccessStreamForDeleteOrUpdate(actor *t.User, id t.Uid) (*t.Stream, error) {
	if !actor.IsRealmAdmin() {
		denied("stream_admin")
		return nil, t.NewUserError(t.ErrPermissionDenied, "Must be an organization administrator")
	}

	stream, err := store.Streams.Get(id)
	if err != nil {
		return nil, err
	}
	if stream == nil || stream.Realm != actor.Realm {
		return nil, t.NewUserError(t.ErrNotFound, errInvalidStreamId)
	}
	return stream, nil
}

// CanAccessStreamHistoryByName is CanAccessStreamHistory for a stream name. False if there is no such stream.
func CanAccessStreamHistoryByName(actor *t.User, name string) (bool, error) {
	stream, err := store.Streams.GetByName(actor.Realm, name)
	if err != nil || stream == nil {
		return false, err
	}
	return canAccessStreamHistory(actor, stream)
}

// CanAccessStreamHistoryById is CanAccessStreamHistory for a stream id. False if there is no such stream.
func CanAccessStreamHistoryById(actor *t.User, id t.Uid) (bool, error) {
	stream, err := store.Streams.Get(id)
	if err != nil || stream == nil {
		return false, err
	}
	return canAccessStreamHistory(actor, stream)
}

func canAccessStreamHistory(actor *t.User, stream *t.Stream) (bool, error) {
	var sub *t.Subscription
	if !stream.IsHistoryRealmPublic() || actor.IsGuest() {
		var err error
		if sub, err = store.Subs.Get(actor.Uid(), stream.Recipient); err != nil {
			return false, err
		}
	}
	return CanAccessStreamHistory(actor, stream, sub), nil
}

func subscribedToStream(user t.Uid, stream *t.Stream) (bool, error) {
	sub, err := store.Subs.Get(user, stream.Recipient)
	return isActive(sub), err
}

// checkPostPolicy enforces the stream's post policy.
func checkPostPolicy(sender, botOwner *t.User, stream *t.Stream) error {
	if sender.IsRealmAdmin() || IsCrossRealmBot(sender.Email) {
		return nil
	}
	if sender.IsBot() && botOwner != nil && botOwner.IsRealmAdmin() {
		return nil
	}

	switch stream.PostPolicy {
	case t.PostAdminsOnly:
		return t.NewUserError(t.ErrPermissionDenied, "Only organization administrators can send to stream '%s'.", stream.Name)
	case t.PostRestrictNewMembers:
		realm, err := store.Realms.Get(sender.Realm)
		if err != nil {
			return err
		}
		if realm == nil {
			return t.ErrInternal
		}
		now := timeNow()
		if sender.IsBot() && botOwner != nil && botOwner.IsNewMember(realm, now) {
			return t.NewUserError(t.ErrPermissionDenied, "New members cannot send to stream '%s'.", stream.Name)
		}
		if sender.IsNewMember(realm, now) {
			return t.NewUserError(t.ErrPermissionDenied, "New members cannot send to stream '%s'.", stream.Name)
		}
	}
	return nil
}

// CanPostToStream checks if the sender may post to the stream. forwarder is the user
// sending on the sender's behalf, or nil.
func CanPostToStream(sender *t.User, stream *t.Stream, forwarder *t.User) error {
	var botOwner *t.User
	if sender.IsBot() && !sender.BotOwner.IsZero() {
		var err error
		if botOwner, err = store.Users.Get(sender.BotOwner); err != nil {
			return err
		}
	}

	if err := checkPostPolicy(sender, botOwner, stream); err != nil {
		denied("post")
		return err
	}

	if !stream.InviteOnly && !sender.IsGuest() {
		return nil
	}

	if ok, err := subscribedToStream(sender.Uid(), stream); err != nil || ok {
		return err
	}
	if IsSuperUser(sender) || IsSuperUser(forwarder) {
		return nil
	}
	if botOwner != nil {
		if ok, err := subscribedToStream(botOwner.Uid(), stream); err != nil || ok {
			return err
		}
	}
	if IsWelcomeBot(sender) || IsNotificationBot(sender) {
		return nil
	}

	denied("post")
	return t.NewUserError(t.ErrPermissionDenied, "Not authorized to send to stream '%s'", stream.Name)
}
