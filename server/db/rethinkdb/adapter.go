//go:build rethinkdb
// +build rethinkdb

// Package rethinkdb is a database adapter for RethinkDB.
package rethinkdb

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
	rdb "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

// adapter holds RethinkDb connection data.
type adapter struct {
	conn       *rdb.Session
	dbName     string
	maxResults int
	version    int
}

const (
	defaultHost     = "localhost:28015"
	defaultDatabase = "streams"

	adpVersion  = 1
	adapterName = "rethinkdb"

	defaultMaxResults = 1024

	// Reading a stream reserved by a concurrent creator.
	reservationAttempts = 10
	reservationBackoff  = 20 * time.Millisecond
)

// See https://godoc.org/github.com/rethinkdb/rethinkdb-go#ConnectOpts for explanations.
type configType struct {
	Database          string      `json:"database,omitempty"`
	Addresses         interface{} `json:"addresses,omitempty"`
	Username          string      `json:"username,omitempty"`
	Password          string      `json:"password,omitempty"`
	AuthKey           string      `json:"authkey,omitempty"`
	Timeout           int         `json:"timeout,omitempty"`
	WriteTimeout      int         `json:"write_timeout,omitempty"`
	ReadTimeout       int         `json:"read_timeout,omitempty"`
	KeepAlivePeriod   int         `json:"keep_alive_timeout,omitempty"`
	InitialCap        int         `json:"initial_cap,omitempty"`
	MaxOpen           int         `json:"max_open,omitempty"`
	DiscoverHosts     bool        `json:"discover_hosts,omitempty"`
	HostDecayDuration int         `json:"host_decay_duration,omitempty"`
}

// Documents. Uid fields are shadowed by strings: the driver has no lossless encoding for uint64.

type realmDoc struct {
	t.Realm
	NotificationsStream string
}

type userDoc struct {
	t.User
	Realm    string
	BotOwner string
	EmailKey string
}

type recipientDoc struct {
	t.Recipient
	TypeId string
}

type streamDoc struct {
	t.Stream
	Realm     string
	Recipient string
	NameKey   string
}

type subDoc struct {
	t.Subscription
	User      string
	Recipient string
}

type muteDoc struct {
	t.TopicMute
	User      string
	Stream    string
	Recipient string
	TopicKey  string
}

// Unique stream name reservation. Id is realm:namekey.
type streamNameDoc struct {
	Id     string
	Stream string
}

// Open initializes rethinkdb session
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.conn != nil {
		return errors.New("adapter rethinkdb is already connected")
	}

	if len(jsonconfig) < 2 {
		return errors.New("adapter rethinkdb missing config")
	}

	var err error
	var config configType
	if err = json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("adapter rethinkdb failed to parse config: " + err.Error())
	}

	var opts rdb.ConnectOpts

	if config.Addresses == nil {
		opts.Address = defaultHost
	} else if host, ok := config.Addresses.(string); ok {
		opts.Address = host
	} else if ihosts, ok := config.Addresses.([]interface{}); ok && len(ihosts) > 0 {
		hosts := make([]string, len(ihosts))
		for i, ih := range ihosts {
			h, ok := ih.(string)
			if !ok || h == "" {
				return errors.New("adapter rethinkdb invalid config.Addresses value")
			}
			hosts[i] = h
		}
		opts.Addresses = hosts
	} else {
		return errors.New("adapter rethinkdb failed to parse config.Addresses")
	}

	if config.Database == "" {
		a.dbName = defaultDatabase
	} else {
		a.dbName = config.Database
	}

	if a.maxResults <= 0 {
		a.maxResults = defaultMaxResults
	}

	opts.Database = a.dbName
	opts.Username = config.Username
	opts.Password = config.Password
	opts.AuthKey = config.AuthKey
	opts.Timeout = time.Duration(config.Timeout) * time.Second
	opts.WriteTimeout = time.Duration(config.WriteTimeout) * time.Second
	opts.ReadTimeout = time.Duration(config.ReadTimeout) * time.Second
	opts.KeepAlivePeriod = time.Duration(config.KeepAlivePeriod) * time.Second
	opts.InitialCap = config.InitialCap
	opts.MaxOpen = config.MaxOpen
	opts.DiscoverHosts = config.DiscoverHosts
	opts.HostDecayDuration = time.Duration(config.HostDecayDuration) * time.Second

	a.conn, err = rdb.Connect(opts)
	if err != nil {
		return err
	}

	rdb.SetTags("json")
	a.version = -1

	return nil
}

// Close closes the underlying database connection
func (a *adapter) Close() error {
	var err error
	if a.conn != nil {
		// Close will wait for all outstanding requests to finish
		err = a.conn.Close()
		a.conn = nil
		a.version = -1
	}
	return err
}

// IsOpen returns true if connection to database has been established. It does not check if
// connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.conn != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	cursor, err := rdb.DB(a.dbName).Table("kvmeta").Get("version").Field("value").Run(a.conn)
	if err != nil {
		if isMissingDb(err) {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}
	defer cursor.Close()

	if cursor.IsNil() {
		return -1, errors.New("Database not initialized")
	}

	var vers int
	if err = cursor.One(&vers); err != nil {
		return -1, err
	}

	a.version = vers

	return vers, nil
}

// CheckDbVersion checks whether the actual DB version matches the expected version of this adapter.
func (a *adapter) CheckDbVersion() error {
	version, err := a.GetDbVersion()
	if err != nil {
		return err
	}

	if version != adpVersion {
		return errors.New("Invalid database version " + strconv.Itoa(version) +
			". Expected " + strconv.Itoa(adpVersion))
	}

	return nil
}

// Version returns adapter version.
func (adapter) Version() int {
	return adpVersion
}

// Stats is not supported by this adapter.
func (a *adapter) Stats() interface{} {
	return nil
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// SetMaxResults configures how many results can be returned in a single DB call.
func (a *adapter) SetMaxResults(val int) error {
	if val <= 0 {
		a.maxResults = defaultMaxResults
	} else {
		a.maxResults = val
	}

	return nil
}

// CreateDb initializes the storage. If reset is true, the database is first deleted losing all the data.
func (a *adapter) CreateDb(reset bool) error {
	// Drop database if exists, ignore error if it does not.
	if reset {
		rdb.DBDrop(a.dbName).RunWrite(a.conn)
	}

	if _, err := rdb.DBCreate(a.dbName).RunWrite(a.conn); err != nil {
		return err
	}

	tables := []string{"realms", "users", "recipients", "streams", "streamnames", "subscriptions", "topicmutes"}
	for _, table := range tables {
		if _, err := rdb.DB(a.dbName).TableCreate(table, rdb.TableCreateOpts{PrimaryKey: "Id"}).RunWrite(a.conn); err != nil {
			return err
		}
	}
	if _, err := rdb.DB(a.dbName).TableCreate("kvmeta", rdb.TableCreateOpts{PrimaryKey: "key"}).RunWrite(a.conn); err != nil {
		return err
	}

	// Compound secondary indexes.
	compound := []struct {
		Table  string
		Name   string
		Fields []string
	}{
		{"users", "Realm_EmailKey", []string{"Realm", "EmailKey"}},
		{"users", "Realm_Role", []string{"Realm", "Role"}},
		{"streams", "Realm_NameKey", []string{"Realm", "NameKey"}},
		{"subscriptions", "Recipient_Active", []string{"Recipient", "Active"}},
		{"topicmutes", "Recipient_TopicKey", []string{"Recipient", "TopicKey"}},
	}
	for _, idx := range compound {
		fields := idx.Fields
		if _, err := rdb.DB(a.dbName).Table(idx.Table).IndexCreateFunc(idx.Name,
			func(row rdb.Term) interface{} {
				keys := make([]interface{}, len(fields))
				for i, f := range fields {
					keys[i] = row.Field(f)
				}
				return keys
			}).RunWrite(a.conn); err != nil {
			return err
		}
	}
	if _, err := rdb.DB(a.dbName).Table("subscriptions").IndexCreate("User").RunWrite(a.conn); err != nil {
		return err
	}

	if _, err := rdb.DB(a.dbName).Table("kvmeta").Insert(
		map[string]interface{}{"key": "version", "value": adpVersion}).RunWrite(a.conn); err != nil {
		return err
	}

	return nil
}

// one loads a single document into result. Returns false if nothing is found.
func (a *adapter) one(term rdb.Term, result interface{}) (bool, error) {
	cursor, err := term.Run(a.conn)
	if err != nil {
		return false, err
	}
	defer cursor.Close()

	if cursor.IsNil() {
		return false, nil
	}
	if err = cursor.One(result); err != nil {
		if err == rdb.ErrEmptyResult {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *adapter) all(term rdb.Term, result interface{}) error {
	cursor, err := term.Run(a.conn)
	if err != nil {
		return err
	}
	defer cursor.Close()
	return cursor.All(result)
}

func (a *adapter) table(name string) rdb.Term {
	return rdb.DB(a.dbName).Table(name)
}

// RealmCreate creates a realm record.
func (a *adapter) RealmCreate(realm *t.Realm) error {
	_, err := a.table("realms").Insert(&realmDoc{Realm: *realm,
		NotificationsStream: realm.NotificationsStream.String()}).RunWrite(a.conn)
	return err
}

// RealmGet returns realm by id.
func (a *adapter) RealmGet(id t.Uid) (*t.Realm, error) {
	var doc realmDoc
	if found, err := a.one(a.table("realms").Get(id.String()), &doc); !found {
		return nil, err
	}
	doc.Realm.NotificationsStream = t.ParseUid(doc.NotificationsStream)
	return &doc.Realm, nil
}

func toUserDoc(user *t.User) *userDoc {
	return &userDoc{User: *user, Realm: user.Realm.String(), BotOwner: user.BotOwner.String(),
		EmailKey: strings.ToLower(user.Email)}
}

func (doc *userDoc) user() t.User {
	user := doc.User
	user.Realm = t.ParseUid(doc.Realm)
	user.BotOwner = t.ParseUid(doc.BotOwner)
	return user
}

// UserCreate creates user record. Email uniqueness is checked by the caller.
func (a *adapter) UserCreate(user *t.User) error {
	_, err := a.table("users").Insert(toUserDoc(user)).RunWrite(a.conn)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// UserGet fetches a single user by user id. If user is not found it returns (nil, nil)
func (a *adapter) UserGet(uid t.Uid) (*t.User, error) {
	var doc userDoc
	if found, err := a.one(a.table("users").Get(uid.String()), &doc); !found {
		return nil, err
	}
	user := doc.user()
	return &user, nil
}

// UserGetAll returns user records for a given list of user IDs
func (a *adapter) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	var docs []userDoc
	if err := a.all(a.table("users").GetAll(uidStrings(ids)...), &docs); err != nil {
		return nil, err
	}
	users := make([]t.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].user())
	}
	return users, nil
}

// UserGetByEmail finds a user of the realm by email.
func (a *adapter) UserGetByEmail(realm t.Uid, email string) (*t.User, error) {
	var doc userDoc
	if found, err := a.one(a.table("users").GetAllByIndex("Realm_EmailKey",
		[]interface{}{realm.String(), strings.ToLower(email)}), &doc); !found {
		return nil, err
	}
	user := doc.user()
	return &user, nil
}

// UserIdsForRealm returns ids of active users of the realm.
func (a *adapter) UserIdsForRealm(realm t.Uid, roles []t.Role, includeBots bool) ([]t.Uid, error) {
	var q rdb.Term
	if len(roles) > 0 {
		keys := make([]interface{}, len(roles))
		for i, role := range roles {
			keys[i] = []interface{}{realm.String(), int(role)}
		}
		q = a.table("users").GetAllByIndex("Realm_Role", keys...)
	} else {
		q = a.table("users").Filter(rdb.Row.Field("Realm").Eq(realm.String()))
	}
	q = q.Filter(rdb.Row.Field("IsActive").Eq(true))
	if !includeBots {
		q = q.Filter(rdb.Row.Field("BotType").Eq(int(t.BotNone)))
	}

	var ids []string
	if err := a.all(q.Field("Id"), &ids); err != nil {
		return nil, err
	}
	return parseUids(ids), nil
}

// UserUpdate updates user record
func (a *adapter) UserUpdate(uid t.Uid, update map[string]interface{}) error {
	update = normalizeUpdateMap(update)
	if email, ok := update["Email"].(string); ok {
		update["EmailKey"] = strings.ToLower(email)
	}
	return a.updateOne(a.table("users").Get(uid.String()), update)
}

func (a *adapter) updateOne(term rdb.Term, update map[string]interface{}) error {
	res, err := term.Update(update).RunWrite(a.conn)
	if err != nil {
		return err
	}
	if res.Replaced == 0 && res.Unchanged == 0 {
		return t.ErrNotFound
	}
	return nil
}

// RecipientCreate creates a recipient record.
func (a *adapter) RecipientCreate(rcpt *t.Recipient) error {
	_, err := a.table("recipients").Insert(&recipientDoc{Recipient: *rcpt, TypeId: rcpt.TypeId.String()}).RunWrite(a.conn)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// RecipientGet returns recipient by id.
func (a *adapter) RecipientGet(id t.Uid) (*t.Recipient, error) {
	var doc recipientDoc
	if found, err := a.one(a.table("recipients").Get(id.String()), &doc); !found {
		return nil, err
	}
	doc.Recipient.TypeId = t.ParseUid(doc.TypeId)
	return &doc.Recipient, nil
}

func toStreamDoc(stream *t.Stream) *streamDoc {
	return &streamDoc{Stream: *stream, Realm: stream.Realm.String(), Recipient: stream.Recipient.String(),
		NameKey: common.StreamNameKey(stream.Name)}
}

func (doc *streamDoc) stream() t.Stream {
	stream := doc.Stream
	stream.Realm = t.ParseUid(doc.Realm)
	stream.Recipient = t.ParseUid(doc.Recipient)
	return stream
}

// reservedStream loads the stream holding the name reservation. The winner of a concurrent
// get-or-create writes the stream after the reservation, so the read is retried briefly.
func (a *adapter) reservedStream(key string) (*t.Stream, error) {
	for attempt := 0; attempt < reservationAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(reservationBackoff)
		}
		var reserved streamNameDoc
		found, err := a.one(a.table("streamnames").Get(key), &reserved)
		if err != nil {
			return nil, err
		}
		if !found {
			// The winner failed and released the name.
			return nil, t.ErrInternal
		}
		existing, err := a.StreamGet(t.ParseUid(reserved.Stream))
		if err != nil || existing != nil {
			return existing, err
		}
	}
	return nil, t.ErrInternal
}

// StreamGetOrCreate reserves the name in the 'streamnames' table first: the primary key
// insert fails if the name is taken. The winner then writes the stream and the recipient.
func (a *adapter) StreamGetOrCreate(stream *t.Stream, rcpt *t.Recipient) (bool, error) {
	key := common.RealmNameKey(stream.Realm, stream.Name)
	_, err := a.table("streamnames").Insert(&streamNameDoc{Id: key, Stream: stream.Id},
		rdb.InsertOpts{Conflict: "error"}).RunWrite(a.conn)
	if isDupe(err) {
		existing, err := a.reservedStream(key)
		if err != nil {
			return false, err
		}
		*stream = *existing
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err = a.table("recipients").Insert(&recipientDoc{Recipient: *rcpt,
		TypeId: rcpt.TypeId.String()}).RunWrite(a.conn); err == nil {
		_, err = a.table("streams").Insert(toStreamDoc(stream)).RunWrite(a.conn)
	}
	if err != nil {
		// Release the name. Orphaned recipients are harmless.
		a.table("streamnames").Get(key).Delete().RunWrite(a.conn)
		return false, err
	}
	return true, nil
}

// StreamGet returns stream by id.
func (a *adapter) StreamGet(id t.Uid) (*t.Stream, error) {
	var doc streamDoc
	if found, err := a.one(a.table("streams").Get(id.String()), &doc); !found {
		return nil, err
	}
	stream := doc.stream()
	return &stream, nil
}

// StreamGetByName returns stream by case-insensitive name.
func (a *adapter) StreamGetByName(realm t.Uid, name string) (*t.Stream, error) {
	var doc streamDoc
	if found, err := a.one(a.table("streams").GetAllByIndex("Realm_NameKey",
		[]interface{}{realm.String(), common.StreamNameKey(name)}), &doc); !found {
		return nil, err
	}
	stream := doc.stream()
	return &stream, nil
}

// StreamGetByNames returns streams of the realm matching any of the names.
func (a *adapter) StreamGetByNames(realm t.Uid, names []string) ([]t.Stream, error) {
	nameKeys := common.StreamNameKeys(names)
	if len(nameKeys) == 0 {
		return nil, nil
	}
	keys := make([]interface{}, len(nameKeys))
	for i, key := range nameKeys {
		keys[i] = []interface{}{realm.String(), key}
	}
	var docs []streamDoc
	if err := a.all(a.table("streams").GetAllByIndex("Realm_NameKey", keys...), &docs); err != nil {
		return nil, err
	}
	streams := make([]t.Stream, 0, len(docs))
	for i := range docs {
		streams = append(streams, docs[i].stream())
	}
	return streams, nil
}

// StreamUpdate updates stream record. Renaming moves the name reservation.
func (a *adapter) StreamUpdate(id t.Uid, update map[string]interface{}) error {
	update = normalizeUpdateMap(update)
	name, rename := update["Name"].(string)
	if !rename {
		return a.updateOne(a.table("streams").Get(id.String()), update)
	}

	old, err := a.StreamGet(id)
	if err != nil {
		return err
	}
	if old == nil {
		return t.ErrNotFound
	}
	oldKey := common.RealmNameKey(old.Realm, old.Name)
	newKey := common.RealmNameKey(old.Realm, name)
	if oldKey != newKey {
		if _, err = a.table("streamnames").Insert(&streamNameDoc{Id: newKey, Stream: id.String()},
			rdb.InsertOpts{Conflict: "error"}).RunWrite(a.conn); err != nil {
			if isDupe(err) {
				return t.ErrDuplicate
			}
			return err
		}
	}
	update["NameKey"] = common.StreamNameKey(name)
	if err = a.updateOne(a.table("streams").Get(id.String()), update); err != nil {
		return err
	}
	if oldKey != newKey {
		_, err = a.table("streamnames").Get(oldKey).Delete().RunWrite(a.conn)
	}
	return err
}

// StreamDeactivate renames the stream, makes it private, flags it deactivated and then
// deactivates all subscriptions to it in a single query. RethinkDB has no multi-document
// transactions: the stream is updated first so a failure leaves the subscriptions untouched.
func (a *adapter) StreamDeactivate(id, recipient t.Uid, name string) error {
	if err := a.StreamUpdate(id, map[string]interface{}{
		"Name":        name,
		"InviteOnly":  true,
		"Deactivated": true,
		"UpdatedAt":   t.TimeNow(),
	}); err != nil {
		return err
	}
	_, err := a.table("subscriptions").GetAllByIndex("Recipient_Active", []interface{}{recipient.String(), true}).
		Update(map[string]interface{}{"Active": false, "UpdatedAt": t.TimeNow()}).RunWrite(a.conn)
	return err
}

func (doc *subDoc) sub() t.Subscription {
	sub := doc.Subscription
	sub.User = t.ParseUid(doc.User)
	sub.Recipient = t.ParseUid(doc.Recipient)
	return sub
}

// SubsUpsert creates subscriptions or re-activates existing ones.
func (a *adapter) SubsUpsert(subs []*t.Subscription) error {
	for _, sub := range subs {
		sub.Id = common.RecipientKey(sub.User, sub.Recipient)
		doc := &subDoc{Subscription: *sub, User: sub.User.String(), Recipient: sub.Recipient.String()}
		_, err := a.table("subscriptions").Insert(doc, rdb.InsertOpts{Conflict: "error"}).RunWrite(a.conn)
		if isDupe(err) {
			_, err = a.table("subscriptions").Get(sub.Id).
				Update(map[string]interface{}{"Active": true, "UpdatedAt": sub.UpdatedAt}).RunWrite(a.conn)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SubscriptionGet returns the subscription, active or not.
func (a *adapter) SubscriptionGet(user, recipient t.Uid) (*t.Subscription, error) {
	var doc subDoc
	if found, err := a.one(a.table("subscriptions").Get(common.RecipientKey(user, recipient)), &doc); !found {
		return nil, err
	}
	sub := doc.sub()
	return &sub, nil
}

func (a *adapter) subs(term rdb.Term) ([]t.Subscription, error) {
	var docs []subDoc
	if err := a.all(term.OrderBy("User"), &docs); err != nil {
		return nil, err
	}
	subs := make([]t.Subscription, 0, len(docs))
	for i := range docs {
		subs = append(subs, docs[i].sub())
	}
	return subs, nil
}

// SubsForRecipient returns active subscriptions to the recipient.
func (a *adapter) SubsForRecipient(recipient t.Uid) ([]t.Subscription, error) {
	return a.subs(a.table("subscriptions").GetAllByIndex("Recipient_Active", []interface{}{recipient.String(), true}))
}

// SubsForUser returns active subscriptions of the user.
func (a *adapter) SubsForUser(user t.Uid, recipients []t.Uid) ([]t.Subscription, error) {
	if len(recipients) == 0 {
		return a.subs(a.table("subscriptions").GetAllByIndex("User", user.String()).
			Filter(rdb.Row.Field("Active").Eq(true)))
	}
	keys := make([]interface{}, len(recipients))
	for i, rcpt := range recipients {
		keys[i] = common.RecipientKey(user, rcpt)
	}
	return a.subs(a.table("subscriptions").GetAll(keys...).Filter(rdb.Row.Field("Active").Eq(true)))
}

// SubsUpdate updates one subscription.
func (a *adapter) SubsUpdate(user, recipient t.Uid, update map[string]interface{}) error {
	return a.updateOne(a.table("subscriptions").Get(common.RecipientKey(user, recipient)), normalizeUpdateMap(update))
}

// SubsDeactivate marks subscriptions as inactive.
func (a *adapter) SubsDeactivate(user t.Uid, recipients []t.Uid) error {
	keys := make([]interface{}, len(recipients))
	for i, rcpt := range recipients {
		keys[i] = common.RecipientKey(user, rcpt)
	}
	_, err := a.table("subscriptions").GetAll(keys...).
		Update(map[string]interface{}{"Active": false, "UpdatedAt": t.TimeNow()}).RunWrite(a.conn)
	return err
}

// MuteCreate saves a topic mute.
func (a *adapter) MuteCreate(mute *t.TopicMute) error {
	doc := &muteDoc{TopicMute: *mute, User: mute.User.String(), Stream: mute.Stream.String(),
		Recipient: mute.Recipient.String(), TopicKey: common.TopicKey(mute.TopicName)}
	doc.Id = common.MuteKey(mute.User, mute.Recipient, mute.TopicName)
	_, err := a.table("topicmutes").Insert(doc, rdb.InsertOpts{Conflict: "error"}).RunWrite(a.conn)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// MuteDelete deletes a topic mute.
func (a *adapter) MuteDelete(user, recipient t.Uid, topic string) error {
	res, err := a.table("topicmutes").Get(common.MuteKey(user, recipient, topic)).Delete().RunWrite(a.conn)
	if err != nil {
		return err
	}
	if res.Deleted == 0 {
		return t.ErrNotFound
	}
	return nil
}

// MuteExists checks if the user muted the topic.
func (a *adapter) MuteExists(user, recipient t.Uid, topic string) (bool, error) {
	var doc muteDoc
	return a.one(a.table("topicmutes").Get(common.MuteKey(user, recipient, topic)), &doc)
}

// MuteUsersForTopic returns ids of users who muted the topic.
func (a *adapter) MuteUsersForTopic(recipient t.Uid, topic string) ([]t.Uid, error) {
	var ids []string
	if err := a.all(a.table("topicmutes").GetAllByIndex("Recipient_TopicKey",
		[]interface{}{recipient.String(), common.TopicKey(topic)}).Field("User"), &ids); err != nil {
		return nil, err
	}
	return parseUids(ids), nil
}

func isDupe(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Duplicate primary key")
}

func isMissingDb(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "Database `"+defaultDatabase+"` does not exist") ||
		strings.Contains(msg, "does not exist")
}

func uidStrings(ids []t.Uid) []interface{} {
	strs := make([]interface{}, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return strs
}

func parseUids(strs []string) []t.Uid {
	ids := make([]t.Uid, 0, len(strs))
	for _, s := range strs {
		ids = append(ids, t.ParseUid(s))
	}
	return ids
}

// Uid values are stored as strings.
func normalizeUpdateMap(update map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(update))
	for key, value := range update {
		if uid, ok := value.(t.Uid); ok {
			value = uid.String()
		}
		result[key] = value
	}
	return result
}

// GetTestAdapter returns an unopened adapter for the tests in the tests/ directory.
func GetTestAdapter() *adapter {
	return &adapter{}
}

func init() {
	store.RegisterAdapter(&adapter{})
}
