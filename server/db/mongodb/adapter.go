//go:build mongodb
// +build mongodb

// Package mongodb is a database adapter for MongoDB.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"reflect"
	"strconv"
	"strings"

	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
	b "go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
	mdbdriver "go.mongodb.org/mongo-driver/x/mongo/driver"
)

// adapter holds MongoDB connection data.
type adapter struct {
	conn            *mdb.Client
	db              *mdb.Database
	dbName          string
	maxResults      int
	version         int
	ctx             context.Context
	useTransactions bool
}

const (
	defaultHost     = "localhost:27017"
	defaultDatabase = "streams"

	adpVersion  = 1
	adapterName = "mongodb"

	defaultMaxResults = 1024

	// How many times a transaction failed with a transient error is attempted.
	maxTxAttempts = 3
)

// See https://godoc.org/go.mongodb.org/mongo-driver/mongo/options#ClientOptions for explanations.
type configType struct {
	Addresses      interface{} `json:"addresses,omitempty"`
	ConnectTimeout int         `json:"timeout,omitempty"`

	// Options separately from ClientOptions (custom options):
	Database   string `json:"database,omitempty"`
	ReplicaSet string `json:"replica_set,omitempty"`

	AuthSource string `json:"auth_source,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

// Stored stream: the stream plus the case-folded name covered by a unique index.
type streamDoc struct {
	t.Stream `bson:",inline"`
	NameKey  string `bson:"namekey"`
}

type muteDoc struct {
	t.TopicMute `bson:",inline"`
	TopicKey    string `bson:"topickey"`
}

var tUid = reflect.TypeOf(t.ZeroUid)

// Uids are stored as strings: encrypted values routinely overflow int64.
func encodeUid(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tUid {
		return bsoncodec.ValueEncoderError{Name: "UidEncodeValue", Types: []reflect.Type{tUid}, Received: val}
	}
	return vw.WriteString(t.Uid(val.Uint()).String())
}

func decodeUid(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tUid {
		return bsoncodec.ValueDecoderError{Name: "UidDecodeValue", Types: []reflect.Type{tUid}, Received: val}
	}
	switch vr.Type() {
	case bsontype.String:
		str, err := vr.ReadString()
		if err != nil {
			return err
		}
		val.SetUint(uint64(t.ParseUid(str)))
		return nil
	case bsontype.Null:
		val.SetUint(0)
		return vr.ReadNull()
	}
	return errors.New("cannot decode " + vr.Type().String() + " into Uid")
}

func newRegistry() *bsoncodec.Registry {
	reg := b.NewRegistry()
	reg.RegisterTypeEncoder(tUid, bsoncodec.ValueEncoderFunc(encodeUid))
	reg.RegisterTypeDecoder(tUid, bsoncodec.ValueDecoderFunc(decodeUid))
	return reg
}

// Open initializes mongodb session
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.conn != nil {
		return errors.New("adapter mongodb is already connected")
	}

	var err error
	var config configType
	if err = json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("adapter mongodb failed to parse config: " + err.Error())
	}

	var opts mdbopts.ClientOptions

	if config.Addresses == nil {
		opts.SetHosts([]string{defaultHost})
	} else if host, ok := config.Addresses.(string); ok {
		opts.SetHosts([]string{host})
	} else if ihosts, ok := config.Addresses.([]interface{}); ok && len(ihosts) > 0 {
		hosts := make([]string, len(ihosts))
		for i, ih := range ihosts {
			h, ok := ih.(string)
			if !ok || h == "" {
				return errors.New("adapter mongodb invalid config.Addresses value")
			}
			hosts[i] = h
		}
		opts.SetHosts(hosts)
	} else {
		return errors.New("adapter mongodb failed to parse config.Addresses")
	}

	if config.Database == "" {
		a.dbName = defaultDatabase
	} else {
		a.dbName = config.Database
	}

	if config.ReplicaSet == "" {
		log.Println("MongoDB configured as standalone or replica_set option not set. Transaction support is disabled.")
	} else {
		opts.SetReplicaSet(config.ReplicaSet)
		a.useTransactions = true
	}

	if config.Username != "" {
		var passwordSet bool
		if config.AuthSource == "" {
			config.AuthSource = "admin"
		}
		if config.Password != "" {
			passwordSet = true
		}
		opts.SetAuth(
			mdbopts.Credential{
				AuthMechanism: "SCRAM-SHA-256",
				AuthSource:    config.AuthSource,
				Username:      config.Username,
				Password:      config.Password,
				PasswordSet:   passwordSet,
			})
	}

	opts.SetRegistry(newRegistry())

	if a.maxResults <= 0 {
		a.maxResults = defaultMaxResults
	}

	a.ctx = context.Background()
	a.conn, err = mdb.Connect(a.ctx, &opts)
	if err != nil {
		return err
	}
	a.db = a.conn.Database(a.dbName)
	a.version = -1

	return nil
}

// Close the adapter
func (a *adapter) Close() error {
	var err error
	if a.conn != nil {
		err = a.conn.Disconnect(a.ctx)
		a.conn = nil
		a.version = -1
	}
	return err
}

// IsOpen checks if the adapter is ready for use
func (a *adapter) IsOpen() bool {
	return a.conn != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	var result struct {
		Key   string `bson:"_id"`
		Value int
	}
	if err := a.db.Collection("kvmeta").FindOne(a.ctx, b.M{"_id": "version"}).Decode(&result); err != nil {
		if err == mdb.ErrNoDocuments {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}

	a.version = result.Value
	return result.Value, nil
}

// CheckDbVersion checks if the actual database version matches adapter version.
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

// Version returns adapter version
func (a *adapter) Version() int {
	return adpVersion
}

// Stats is not supported by this adapter.
func (a *adapter) Stats() interface{} {
	return nil
}

// GetName returns the name of the adapter
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

// CreateDb creates the database optionally dropping an existing database first.
func (a *adapter) CreateDb(reset bool) error {
	if reset {
		log.Print("Dropping database...")
		if err := a.db.Drop(a.ctx); err != nil {
			return err
		}
	} else if a.isDbInitialized() {
		return errors.New("Database already initialized")
	}
	// Collections do not need to be explicitly created since MongoDB creates them with first write operation

	indexes := []struct {
		Collection string
		Field      string
		IndexOpts  mdb.IndexModel
	}{
		// Users of a realm are found by role.
		{
			Collection: "users",
			IndexOpts:  mdb.IndexModel{Keys: b.D{{Key: "realm", Value: 1}, {Key: "role", Value: 1}}},
		},
		// Emails are stored lowercased in 'emailkey' and are unique per realm.
		{
			Collection: "users",
			IndexOpts: mdb.IndexModel{
				Keys:    b.D{{Key: "realm", Value: 1}, {Key: "emailkey", Value: 1}},
				Options: mdbopts.Index().SetUnique(true),
			},
		},
		// Stream names are unique per realm case-insensitively.
		{
			Collection: "streams",
			IndexOpts: mdb.IndexModel{
				Keys:    b.D{{Key: "realm", Value: 1}, {Key: "namekey", Value: 1}},
				Options: mdbopts.Index().SetUnique(true),
			},
		},
		// Subscriptions: the primary key is a recipient:user string.
		{
			Collection: "subscriptions",
			Field:      "user",
		},
		{
			Collection: "subscriptions",
			IndexOpts:  mdb.IndexModel{Keys: b.D{{Key: "recipient", Value: 1}, {Key: "active", Value: 1}}},
		},
		// Topic mutes: the primary key is recipient:user:topickey.
		{
			Collection: "topicmutes",
			IndexOpts:  mdb.IndexModel{Keys: b.D{{Key: "recipient", Value: 1}, {Key: "topickey", Value: 1}}},
		},
	}

	var err error
	for _, idx := range indexes {
		if idx.Field != "" {
			_, err = a.db.Collection(idx.Collection).Indexes().CreateOne(a.ctx, mdb.IndexModel{Keys: b.M{idx.Field: 1}})
		} else {
			_, err = a.db.Collection(idx.Collection).Indexes().CreateOne(a.ctx, idx.IndexOpts)
		}
		if err != nil {
			return err
		}
	}

	// Collection "kvmeta" with metadata key-value pairs.
	// Key in "_id" field.
	// Record current DB version.
	if _, err := a.db.Collection("kvmeta").InsertOne(a.ctx, map[string]interface{}{"_id": "version", "value": adpVersion}); err != nil {
		return err
	}

	return nil
}

func (a *adapter) isDbInitialized() bool {
	var result map[string]int

	findOpts := mdbopts.FindOneOptions{Projection: b.M{"value": 1, "_id": 0}}
	if err := a.db.Collection("kvmeta").FindOne(a.ctx, b.M{"_id": "version"}, &findOpts).Decode(&result); err != nil {
		return false
	}
	return true
}

func (a *adapter) maybeStartTransaction(sess mdb.Session) error {
	if a.useTransactions {
		return sess.StartTransaction()
	}
	return nil
}

func (a *adapter) maybeCommitTransaction(ctx context.Context, sess mdb.Session) error {
	if a.useTransactions {
		return sess.CommitTransaction(ctx)
	}
	return nil
}

// findOne decodes a single document into result. Returns false if nothing is found.
func (a *adapter) findOne(collection string, filter interface{}, result interface{}) (bool, error) {
	err := a.db.Collection(collection).FindOne(a.ctx, filter).Decode(result)
	if err == mdb.ErrNoDocuments {
		return false, nil
	}
	return err == nil, err
}

// RealmCreate creates a realm record.
func (a *adapter) RealmCreate(realm *t.Realm) error {
	_, err := a.db.Collection("realms").InsertOne(a.ctx, realm)
	return err
}

// RealmGet returns realm by id.
func (a *adapter) RealmGet(id t.Uid) (*t.Realm, error) {
	var realm t.Realm
	if found, err := a.findOne("realms", b.M{"_id": id.String()}, &realm); !found {
		return nil, err
	}
	return &realm, nil
}

type userDoc struct {
	t.User   `bson:",inline"`
	EmailKey string `bson:"emailkey"`
}

// UserCreate creates user record.
func (a *adapter) UserCreate(user *t.User) error {
	_, err := a.db.Collection("users").InsertOne(a.ctx, &userDoc{User: *user, EmailKey: strings.ToLower(user.Email)})
	if isDuplicateErr(err) {
		return t.ErrDuplicate
	}
	return err
}

// UserGet fetches a single user by user id. If user is not found it returns (nil, nil)
func (a *adapter) UserGet(uid t.Uid) (*t.User, error) {
	var user t.User
	if found, err := a.findOne("users", b.M{"_id": uid.String()}, &user); !found {
		return nil, err
	}
	return &user, nil
}

// UserGetAll returns user records for a given list of user IDs
func (a *adapter) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	cur, err := a.db.Collection("users").Find(a.ctx, b.M{"_id": b.M{"$in": uidStrings(ids)}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	users := []t.User{}
	for cur.Next(a.ctx) {
		var user t.User
		if err := cur.Decode(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, cur.Err()
}

// UserGetByEmail finds a user of the realm by email.
func (a *adapter) UserGetByEmail(realm t.Uid, email string) (*t.User, error) {
	var user t.User
	if found, err := a.findOne("users", b.M{"realm": realm.String(), "emailkey": strings.ToLower(email)}, &user); !found {
		return nil, err
	}
	return &user, nil
}

// UserIdsForRealm returns ids of active users of the realm.
func (a *adapter) UserIdsForRealm(realm t.Uid, roles []t.Role, includeBots bool) ([]t.Uid, error) {
	filter := b.M{"realm": realm.String(), "isactive": true}
	if len(roles) > 0 {
		filter["role"] = b.M{"$in": roles}
	}
	if !includeBots {
		filter["bottype"] = t.BotNone
	}
	return a.distinctIds("users", "_id", filter)
}

func (a *adapter) distinctIds(collection, field string, filter interface{}) ([]t.Uid, error) {
	values, err := a.db.Collection(collection).Distinct(a.ctx, field, filter)
	if err != nil {
		return nil, err
	}
	var ids []t.Uid
	for _, v := range values {
		if str, ok := v.(string); ok {
			ids = append(ids, t.ParseUid(str))
		}
	}
	return ids, nil
}

// UserUpdate updates user record
func (a *adapter) UserUpdate(uid t.Uid, update map[string]interface{}) error {
	update = normalizeUpdateMap(update)
	if email, ok := update["email"].(string); ok {
		update["emailkey"] = strings.ToLower(email)
	}
	return a.updateOne("users", b.M{"_id": uid.String()}, update)
}

func (a *adapter) updateOne(collection string, filter b.M, update map[string]interface{}) error {
	res, err := a.db.Collection(collection).UpdateOne(a.ctx, filter, b.M{"$set": update})
	if err != nil {
		if isDuplicateErr(err) {
			return t.ErrDuplicate
		}
		return err
	}
	if res.MatchedCount == 0 {
		return t.ErrNotFound
	}
	return nil
}

// RecipientCreate creates a recipient record.
func (a *adapter) RecipientCreate(rcpt *t.Recipient) error {
	_, err := a.db.Collection("recipients").InsertOne(a.ctx, rcpt)
	if isDuplicateErr(err) {
		return t.ErrDuplicate
	}
	return err
}

// RecipientGet returns recipient by id.
func (a *adapter) RecipientGet(id t.Uid) (*t.Recipient, error) {
	var rcpt t.Recipient
	if found, err := a.findOne("recipients", b.M{"_id": id.String()}, &rcpt); !found {
		return nil, err
	}
	return &rcpt, nil
}

// StreamGetOrCreate inserts the stream relying on the unique {realm, namekey} index to detect
// an existing stream, then inserts the recipient. Without transactions a failed recipient
// insert is compensated by deleting the new stream. Inside a transaction a concurrent insert
// of the same name is reported as a transient write conflict: the attempt is repeated.
func (a *adapter) StreamGetOrCreate(stream *t.Stream, rcpt *t.Recipient) (bool, error) {
	var created bool
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		created, err = a.streamGetOrCreate(stream, rcpt)
		if !isTransientErr(err) {
			break
		}
	}
	return created, err
}

func (a *adapter) streamGetOrCreate(stream *t.Stream, rcpt *t.Recipient) (bool, error) {
	nameKey := common.StreamNameKey(stream.Name)

	sess, err := a.conn.StartSession()
	if err != nil {
		return false, err
	}
	defer sess.EndSession(a.ctx)

	if err = a.maybeStartTransaction(sess); err != nil {
		return false, err
	}

	created := true
	err = mdb.WithSession(a.ctx, sess, func(sc mdb.SessionContext) error {
		if _, err := a.db.Collection("streams").InsertOne(sc, &streamDoc{Stream: *stream, NameKey: nameKey}); err != nil {
			if isDuplicateErr(err) {
				created = false
				return nil
			}
			return err
		}
		if _, err := a.db.Collection("recipients").InsertOne(sc, rcpt); err != nil {
			if !a.useTransactions {
				a.db.Collection("streams").DeleteOne(sc, b.M{"_id": stream.Id})
			}
			return err
		}
		return a.maybeCommitTransaction(sc, sess)
	})
	if err != nil {
		if a.useTransactions {
			sess.AbortTransaction(a.ctx)
		}
		return false, err
	}

	if !created {
		if a.useTransactions {
			sess.AbortTransaction(a.ctx)
		}
		var existing t.Stream
		found, err := a.findOne("streams", b.M{"realm": stream.Realm.String(), "namekey": nameKey}, &existing)
		if err != nil {
			return false, err
		}
		if !found {
			return false, t.ErrInternal
		}
		*stream = existing
	}
	return created, nil
}

// StreamGet returns stream by id.
func (a *adapter) StreamGet(id t.Uid) (*t.Stream, error) {
	var stream t.Stream
	if found, err := a.findOne("streams", b.M{"_id": id.String()}, &stream); !found {
		return nil, err
	}
	return &stream, nil
}

// StreamGetByName returns stream by case-insensitive name.
func (a *adapter) StreamGetByName(realm t.Uid, name string) (*t.Stream, error) {
	var stream t.Stream
	filter := b.M{"realm": realm.String(), "namekey": common.StreamNameKey(name)}
	if found, err := a.findOne("streams", filter, &stream); !found {
		return nil, err
	}
	return &stream, nil
}

// StreamGetByNames returns streams of the realm matching any of the names.
func (a *adapter) StreamGetByNames(realm t.Uid, names []string) ([]t.Stream, error) {
	keys := common.StreamNameKeys(names)
	if len(keys) == 0 {
		return nil, nil
	}
	cur, err := a.db.Collection("streams").Find(a.ctx, b.M{"realm": realm.String(), "namekey": b.M{"$in": keys}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	var streams []t.Stream
	for cur.Next(a.ctx) {
		var stream t.Stream
		if err := cur.Decode(&stream); err != nil {
			return nil, err
		}
		streams = append(streams, stream)
	}
	return streams, cur.Err()
}

// StreamUpdate updates stream record. Renaming also updates the name key.
func (a *adapter) StreamUpdate(id t.Uid, update map[string]interface{}) error {
	update = normalizeUpdateMap(update)
	if name, ok := update["name"].(string); ok {
		update["namekey"] = common.StreamNameKey(name)
	}
	return a.updateOne("streams", b.M{"_id": id.String()}, update)
}

// StreamDeactivate renames the stream, makes it private, flags it deactivated and
// deactivates all subscriptions to it. The stream is renamed first: without transactions
// a failure leaves the subscriptions untouched.
func (a *adapter) StreamDeactivate(id, recipient t.Uid, name string) error {
	sess, err := a.conn.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(a.ctx)

	if err = a.maybeStartTransaction(sess); err != nil {
		return err
	}
	now := t.TimeNow()
	err = mdb.WithSession(a.ctx, sess, func(sc mdb.SessionContext) error {
		res, err := a.db.Collection("streams").UpdateOne(sc, b.M{"_id": id.String()},
			b.M{"$set": b.M{
				"name":        name,
				"namekey":     common.StreamNameKey(name),
				"inviteonly":  true,
				"deactivated": true,
				"updatedat":   now,
			}})
		if err != nil {
			if isDuplicateErr(err) {
				return t.ErrDuplicate
			}
			return err
		}
		if res.MatchedCount == 0 {
			return t.ErrNotFound
		}
		if _, err := a.db.Collection("subscriptions").UpdateMany(sc,
			b.M{"recipient": recipient.String(), "active": true},
			b.M{"$set": b.M{"active": false, "updatedat": now}}); err != nil {
			return err
		}
		return a.maybeCommitTransaction(sc, sess)
	})
	if err != nil && a.useTransactions {
		sess.AbortTransaction(a.ctx)
	}
	return err
}

// SubsUpsert creates subscriptions or re-activates existing ones.
func (a *adapter) SubsUpsert(subs []*t.Subscription) error {
	sess, err := a.conn.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(a.ctx)

	if err = a.maybeStartTransaction(sess); err != nil {
		return err
	}
	return mdb.WithSession(a.ctx, sess, func(sc mdb.SessionContext) error {
		coll := a.db.Collection("subscriptions")
		for _, sub := range subs {
			sub.Id = common.RecipientKey(sub.User, sub.Recipient)
			if _, err := coll.InsertOne(sc, sub); err != nil {
				if !isDuplicateErr(err) {
					return err
				}
				if _, err = coll.UpdateOne(sc, b.M{"_id": sub.Id},
					b.M{"$set": b.M{"active": true, "updatedat": sub.UpdatedAt}}); err != nil {
					return err
				}
			}
		}
		return a.maybeCommitTransaction(sc, sess)
	})
}

// SubscriptionGet returns the subscription, active or not.
func (a *adapter) SubscriptionGet(user, recipient t.Uid) (*t.Subscription, error) {
	var sub t.Subscription
	if found, err := a.findOne("subscriptions", b.M{"_id": common.RecipientKey(user, recipient)}, &sub); !found {
		return nil, err
	}
	return &sub, nil
}

func (a *adapter) findSubs(filter b.M) ([]t.Subscription, error) {
	cur, err := a.db.Collection("subscriptions").Find(a.ctx, filter, mdbopts.Find().SetSort(b.M{"user": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(a.ctx)

	var subs []t.Subscription
	for cur.Next(a.ctx) {
		var sub t.Subscription
		if err := cur.Decode(&sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, cur.Err()
}

// SubsForRecipient returns active subscriptions to the recipient.
func (a *adapter) SubsForRecipient(recipient t.Uid) ([]t.Subscription, error) {
	return a.findSubs(b.M{"recipient": recipient.String(), "active": true})
}

// SubsForUser returns active subscriptions of the user.
func (a *adapter) SubsForUser(user t.Uid, recipients []t.Uid) ([]t.Subscription, error) {
	filter := b.M{"user": user.String(), "active": true}
	if len(recipients) > 0 {
		filter["recipient"] = b.M{"$in": uidStrings(recipients)}
	}
	return a.findSubs(filter)
}

// SubsUpdate updates one subscription.
func (a *adapter) SubsUpdate(user, recipient t.Uid, update map[string]interface{}) error {
	return a.updateOne("subscriptions", b.M{"_id": common.RecipientKey(user, recipient)}, normalizeUpdateMap(update))
}

// SubsDeactivate marks subscriptions as inactive.
func (a *adapter) SubsDeactivate(user t.Uid, recipients []t.Uid) error {
	_, err := a.db.Collection("subscriptions").UpdateMany(a.ctx,
		b.M{"user": user.String(), "recipient": b.M{"$in": uidStrings(recipients)}},
		b.M{"$set": b.M{"active": false, "updatedat": t.TimeNow()}})
	return err
}

// MuteCreate saves a topic mute.
func (a *adapter) MuteCreate(mute *t.TopicMute) error {
	doc := &muteDoc{TopicMute: *mute, TopicKey: common.TopicKey(mute.TopicName)}
	doc.Id = common.MuteKey(mute.User, mute.Recipient, mute.TopicName)
	_, err := a.db.Collection("topicmutes").InsertOne(a.ctx, doc)
	if isDuplicateErr(err) {
		return t.ErrDuplicate
	}
	return err
}

// MuteDelete deletes a topic mute.
func (a *adapter) MuteDelete(user, recipient t.Uid, topic string) error {
	res, err := a.db.Collection("topicmutes").DeleteOne(a.ctx, b.M{"_id": common.MuteKey(user, recipient, topic)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return t.ErrNotFound
	}
	return nil
}

// MuteExists checks if the user muted the topic.
func (a *adapter) MuteExists(user, recipient t.Uid, topic string) (bool, error) {
	count, err := a.db.Collection("topicmutes").CountDocuments(a.ctx, b.M{"_id": common.MuteKey(user, recipient, topic)})
	return count > 0, err
}

// MuteUsersForTopic returns ids of users who muted the topic.
func (a *adapter) MuteUsersForTopic(recipient t.Uid, topic string) ([]t.Uid, error) {
	return a.distinctIds("topicmutes", "user", b.M{"recipient": recipient.String(), "topickey": common.TopicKey(topic)})
}

// isTransientErr checks if the transaction failed for a reason which may go away on retry.
func isTransientErr(err error) bool {
	var le mdb.LabeledError
	return errors.As(err, &le) && le.HasErrorLabel(mdbdriver.TransientTransactionError)
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key error")
}

func uidStrings(ids []t.Uid) []string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return strs
}

func normalizeUpdateMap(update map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(update))
	for key, value := range update {
		result[strings.ToLower(key)] = value
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
