// Package adapter contains the interfaces to be implemented by the database adapter
package adapter

import (
	"encoding/json"

	t "github.com/relaynet/streams/server/store/types"
)

// Adapter is the interface that must be implemented by a database
// adapter. The current schema supports a single connection by database type.
type Adapter interface {
	// General

	// Open and configure the adapter
	Open(config json.RawMessage) error
	// Close the adapter
	Close() error
	// IsOpen checks if the adapter is ready for use
	IsOpen() bool
	// GetDbVersion returns current database version.
	GetDbVersion() (int, error)
	// CheckDbVersion checks if the actual database version matches adapter version.
	CheckDbVersion() error
	// GetName returns the name of the adapter
	GetName() string
	// SetMaxResults configures how many results can be returned in a single DB call.
	SetMaxResults(val int) error
	// CreateDb creates the database optionally dropping an existing database first.
	CreateDb(reset bool) error
	// Version returns adapter version
	Version() int
	// DB connection stats object.
	Stats() interface{}

	// Realms

	// RealmCreate creates a realm record.
	RealmCreate(realm *t.Realm) error
	// RealmGet returns a realm by id or nil if not found.
	RealmGet(id t.Uid) (*t.Realm, error)

	// Users

	// UserCreate creates user record
	UserCreate(user *t.User) error
	// UserGet returns record for a given user ID or nil if not found.
	UserGet(uid t.Uid) (*t.User, error)
	// UserGetAll returns user records for a given list of user IDs in a single query.
	UserGetAll(ids ...t.Uid) ([]t.User, error)
	// UserGetByEmail finds a user in the realm by email, case-insensitively.
	UserGetByEmail(realm t.Uid, email string) (*t.User, error)
	// UserIdsForRealm returns IDs of active users of the realm. If roles is not empty,
	// only users with one of the given roles are returned.
	UserIdsForRealm(realm t.Uid, roles []t.Role, includeBots bool) ([]t.Uid, error)
	// UserUpdate updates user record
	UserUpdate(uid t.Uid, update map[string]interface{}) error

	// Recipients

	// RecipientCreate creates an addressing envelope.
	RecipientCreate(rcpt *t.Recipient) error
	// RecipientGet returns recipient by id or nil if not found.
	RecipientGet(id t.Uid) (*t.Recipient, error)

	// Streams

	// StreamGetOrCreate atomically creates the stream together with its recipient unless a
	// stream with the same case-insensitive name exists in the realm. In the latter case
	// the stream argument is overwritten with the existing record and false is returned.
	StreamGetOrCreate(stream *t.Stream, rcpt *t.Recipient) (bool, error)
	// StreamGet returns stream by id or nil if not found.
	StreamGet(id t.Uid) (*t.Stream, error)
	// StreamGetByName returns stream by case-insensitive name or nil if not found.
	StreamGetByName(realm t.Uid, name string) (*t.Stream, error)
	// StreamGetByNames returns all streams of the realm matching the names case-insensitively.
	StreamGetByNames(realm t.Uid, names []string) ([]t.Stream, error)
	// StreamUpdate updates stream record.
	StreamUpdate(id t.Uid, update map[string]interface{}) error
	// StreamDeactivate renames the stream to name, makes it private, flags it deactivated and
	// deactivates all subscriptions to recipient, atomically where the database supports it.
	StreamDeactivate(id, recipient t.Uid, name string) error

	// Subscriptions

	// SubsUpsert creates subscriptions or re-activates existing inactive ones in one transaction.
	SubsUpsert(subs []*t.Subscription) error
	// SubscriptionGet returns the subscription, active or not, or nil if not found.
	SubscriptionGet(user, recipient t.Uid) (*t.Subscription, error)
	// SubsForRecipient returns all active subscriptions to the recipient.
	SubsForRecipient(recipient t.Uid) ([]t.Subscription, error)
	// SubsForUser returns active subscriptions of the user to the given recipients in a
	// single query. Empty recipients means all.
	SubsForUser(user t.Uid, recipients []t.Uid) ([]t.Subscription, error)
	// SubsUpdate updates a single subscription.
	SubsUpdate(user, recipient t.Uid, update map[string]interface{}) error
	// SubsDeactivate marks subscriptions as inactive.
	SubsDeactivate(user t.Uid, recipients []t.Uid) error

	// Topic mutes

	// MuteCreate saves a topic mute. Returns types.ErrDuplicate if the topic is already muted.
	MuteCreate(mute *t.TopicMute) error
	// MuteDelete deletes a topic mute. Returns types.ErrNotFound if there is no such mute.
	MuteDelete(user, recipient t.Uid, topic string) error
	// MuteExists checks if the user muted the topic.
	MuteExists(user, recipient t.Uid, topic string) (bool, error)
	// MuteUsersForTopic returns IDs of users who muted the topic of the recipient.
	MuteUsersForTopic(recipient t.Uid, topic string) ([]t.Uid, error)
}
