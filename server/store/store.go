// Package store provides methods for registering and accessing database adapters.
package store

import (
	"encoding/json"
	"errors"

	adapter "github.com/relaynet/streams/server/db"
	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/store/types"
)

var adp adapter.Adapter
var availableAdapters = make(map[string]adapter.Adapter)

// Unique ID generator
var uGen types.UidGenerator

type configType struct {
	// 16-byte key for XTEA. Used to initialize types.UidGenerator.
	UidKey []byte `json:"uid_key"`
	// Maximum number of results to return from adapter.
	MaxResults int `json:"max_results"`
	// DB adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

func openAdapter(workerId int, jsonconf json.RawMessage) error {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return errors.New("store: failed to parse config: " + err.Error() + "(" + string(jsonconf) + ")")
	}

	if adp == nil {
		if len(config.UseAdapter) > 0 {
			// Adapter name specified explicitly.
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return errors.New("store: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			// Default to the only entry in availableAdapters.
			for _, v := range availableAdapters {
				adp = v
			}
		} else {
			return errors.New("store: db adapter is not specified. Please set `store_config.use_adapter` in `streams.conf`")
		}
	}

	if adp.IsOpen() {
		return errors.New("store: connection is already opened")
	}

	// Initialize snowflake.
	if workerId < 0 || workerId > 1023 {
		return errors.New("store: invalid worker ID")
	}

	if err := uGen.Init(uint(workerId), config.UidKey); err != nil {
		return errors.New("store: failed to init snowflake: " + err.Error())
	}

	if err := adp.SetMaxResults(config.MaxResults); err != nil {
		return err
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	return adp.Open(adapterConfig)
}

// PersistentStorageInterface defines methods used for interation with persistent storage.
type PersistentStorageInterface interface {
	Open(workerId int, jsonconf json.RawMessage) error
	Close() error
	IsOpen() bool
	GetAdapterName() string
	GetAdapterVersion() int
	GetDbVersion() int
	InitDb(jsonconf json.RawMessage, reset bool) error
	GetUid() types.Uid
	GetUidString() string
	DbStats() func() interface{}
}

// Store is the main object for interacting with persistent storage.
var Store PersistentStorageInterface

type storeObj struct{}

// Open initializes the persistence system. Adapter holds a connection pool for a database instance.
//
//	workerId - snowflake worker id, 0..1023
//	jsonconf - configuration string
func (storeObj) Open(workerId int, jsonconf json.RawMessage) error {
	if err := openAdapter(workerId, jsonconf); err != nil {
		return err
	}

	return adp.CheckDbVersion()
}

// Close terminates connection to persistent storage.
func (storeObj) Close() error {
	if adp.IsOpen() {
		return adp.Close()
	}

	return nil
}

// IsOpen checks if persistent storage connection has been initialized.
func (storeObj) IsOpen() bool {
	if adp != nil {
		return adp.IsOpen()
	}

	return false
}

// GetAdapterName returns the name of the current adater.
func (storeObj) GetAdapterName() string {
	if adp != nil {
		return adp.GetName()
	}

	return ""
}

// GetAdapterVersion returns version of the current adater.
func (storeObj) GetAdapterVersion() int {
	if adp != nil {
		return adp.Version()
	}

	return -1
}

// GetDbVersion returns version of the underlying database.
func (storeObj) GetDbVersion() int {
	if adp != nil {
		vers, _ := adp.GetDbVersion()
		return vers
	}

	return -1
}

// InitDb creates and configures a new database instance. If 'reset' is true it will first
// attempt to drop an existing database. If jsconf is nil it will assume that the adapter is
// already open. If it's non-nil and the adapter is not open, it will use the config string
// to open the adapter first.
func (s storeObj) InitDb(jsonconf json.RawMessage, reset bool) error {
	if !s.IsOpen() {
		if err := openAdapter(1, jsonconf); err != nil {
			return err
		}
	}
	return adp.CreateDb(reset)
}

// RegisterAdapter makes a persistence adapter available.
// If Register is called twice or if the adapter is nil, it panics.
func RegisterAdapter(a adapter.Adapter) {
	if a == nil {
		panic("store: Register adapter is nil")
	}

	adapterName := a.GetName()
	if _, ok := availableAdapters[adapterName]; ok {
		panic("store: adapter '" + adapterName + "' is already registered")
	}
	availableAdapters[adapterName] = a
}

// GetUid generates a unique ID suitable for use as a primary key.
func (storeObj) GetUid() types.Uid {
	return uGen.Get()
}

// GetUidString generate unique ID as string
func (storeObj) GetUidString() string {
	return uGen.GetStr()
}

// DecodeUid takes an XTEA encrypted Uid and decrypts it into an int64.
// This is needed for sql compatibility. The original int64 values
// are generated by snowflake which ensures that the top bit is unset.
func DecodeUid(uid types.Uid) int64 {
	if uid.IsZero() {
		return 0
	}
	return uGen.DecodeUid(uid)
}

// EncodeUid applies XTEA encryption to an int64 value. It's the inverse of DecodeUid.
func EncodeUid(id int64) types.Uid {
	if id == 0 {
		return types.ZeroUid
	}
	return uGen.EncodeInt64(id)
}

// DbStats returns a callback returning db connection stats object.
func (s storeObj) DbStats() func() interface{} {
	if !s.IsOpen() {
		return nil
	}
	return adp.Stats
}

// RealmsObjMapperInterface is an interface of persistence mapping for realms.
type RealmsObjMapperInterface interface {
	Create(realm *types.Realm) error
	Get(id types.Uid) (*types.Realm, error)
}

// RealmsObjMapper holds methods for persistence mapping of the Realm object.
type RealmsObjMapper struct{}

// Realms is the anchor for storing/retrieving Realm objects.
var Realms RealmsObjMapperInterface

// Create assigns an id to the realm and saves it.
func (RealmsObjMapper) Create(realm *types.Realm) error {
	realm.SetUid(Store.GetUid())
	realm.InitTimes()
	return adp.RealmCreate(realm)
}

// Get returns the realm or nil if not found.
func (RealmsObjMapper) Get(id types.Uid) (*types.Realm, error) {
	return adp.RealmGet(id)
}

// UsersObjMapperInterface is an interface of persistence mapping for users.
type UsersObjMapperInterface interface {
	Create(user *types.User) (*types.User, error)
	Get(uid types.Uid) (*types.User, error)
	GetAll(ids []types.Uid) ([]types.User, error)
	GetByEmail(realm types.Uid, email string) (*types.User, error)
	GetActiveIds(realm types.Uid, roles []types.Role, includeBots bool) ([]types.Uid, error)
	Update(uid types.Uid, update map[string]interface{}) error
}

// UsersObjMapper holds methods for persistence mapping of the User object.
type UsersObjMapper struct{}

// Users is the anchor for storing/retrieving User objects.
var Users UsersObjMapperInterface

// Create inserts User object into a database, updates creation time and assigns UID
func (UsersObjMapper) Create(user *types.User) (*types.User, error) {
	user.SetUid(Store.GetUid())
	user.InitTimes()

	if err := adp.UserCreate(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Get returns a user object for the given user id
func (UsersObjMapper) Get(uid types.Uid) (*types.User, error) {
	return adp.UserGet(uid)
}

// GetAll returns a slice of user objects for the given user ids
func (UsersObjMapper) GetAll(ids []types.Uid) ([]types.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return adp.UserGetAll(ids...)
}

// GetByEmail finds a user of the realm by email.
func (UsersObjMapper) GetByEmail(realm types.Uid, email string) (*types.User, error) {
	return adp.UserGetByEmail(realm, email)
}

// GetActiveIds returns ids of active users of the realm holding one of the roles.
func (UsersObjMapper) GetActiveIds(realm types.Uid, roles []types.Role, includeBots bool) ([]types.Uid, error) {
	return adp.UserIdsForRealm(realm, roles, includeBots)
}

// Update is a general-purpose update of user data.
func (UsersObjMapper) Update(uid types.Uid, update map[string]interface{}) error {
	if _, ok := update["UpdatedAt"]; !ok {
		update["UpdatedAt"] = types.TimeNow()
	}
	return adp.UserUpdate(uid, update)
}

// StreamsObjMapperInterface is an interface of persistence mapping for streams.
type StreamsObjMapperInterface interface {
	GetOrCreate(stream *types.Stream) (bool, error)
	Get(id types.Uid) (*types.Stream, error)
	GetByName(realm types.Uid, name string) (*types.Stream, error)
	GetByNames(realm types.Uid, names []string) (map[string]*types.Stream, error)
	Update(id types.Uid, update map[string]interface{}) error
	Deactivate(stream *types.Stream, name string) error
}

// StreamsObjMapper holds methods for persistence mapping of the Stream object.
type StreamsObjMapper struct{}

// Streams is the anchor for storing/retrieving Stream objects.
var Streams StreamsObjMapperInterface

// GetOrCreate saves the stream together with its stream recipient unless a stream with the
// same name already exists in the realm. In that case the stream is overwritten with
// the stored one and false is returned.
func (StreamsObjMapper) GetOrCreate(stream *types.Stream) (bool, error) {
	stream.SetUid(Store.GetUid())
	stream.InitTimes()

	rcpt := &types.Recipient{
		ObjHeader: types.ObjHeader{CreatedAt: stream.CreatedAt},
		Type:      types.RecipientStream,
		TypeId:    stream.Uid(),
	}
	rcpt.SetUid(Store.GetUid())
	rcpt.InitTimes()
	stream.Recipient = rcpt.Uid()

	return adp.StreamGetOrCreate(stream, rcpt)
}

// Get returns the stream or nil if not found.
func (StreamsObjMapper) Get(id types.Uid) (*types.Stream, error) {
	return adp.StreamGet(id)
}

// GetByName finds a stream of the realm by case-insensitive name.
func (StreamsObjMapper) GetByName(realm types.Uid, name string) (*types.Stream, error) {
	return adp.StreamGetByName(realm, name)
}

// GetByNames loads streams of the realm in a single query. The result is keyed
// by common.StreamNameKey of the stream name.
func (StreamsObjMapper) GetByNames(realm types.Uid, names []string) (map[string]*types.Stream, error) {
	if len(names) == 0 {
		return map[string]*types.Stream{}, nil
	}
	found, err := adp.StreamGetByNames(realm, common.StreamNameKeys(names))
	if err != nil {
		return nil, err
	}
	result := make(map[string]*types.Stream, len(found))
	for i := range found {
		result[common.StreamNameKey(found[i].Name)] = &found[i]
	}
	return result, nil
}

// Update modifies stream fields.
func (StreamsObjMapper) Update(id types.Uid, update map[string]interface{}) error {
	if _, ok := update["UpdatedAt"]; !ok {
		update["UpdatedAt"] = types.TimeNow()
	}
	return adp.StreamUpdate(id, update)
}

// Deactivate renames the stream, makes it private, marks it deactivated and
// deactivates all subscriptions to it.
func (StreamsObjMapper) Deactivate(stream *types.Stream, name string) error {
	return adp.StreamDeactivate(stream.Uid(), stream.Recipient, name)
}

// RecipientsObjMapperInterface is an interface of persistence mapping for recipients.
type RecipientsObjMapperInterface interface {
	Create(rcpt *types.Recipient) error
	Get(id types.Uid) (*types.Recipient, error)
}

// RecipientsObjMapper holds methods for persistence mapping of the Recipient object.
type RecipientsObjMapper struct{}

// Recipients is the anchor for storing/retrieving Recipient objects.
var Recipients RecipientsObjMapperInterface

// Create assigns an id to a personal or huddle recipient and saves it. Stream recipients
// are created by Streams.GetOrCreate.
func (RecipientsObjMapper) Create(rcpt *types.Recipient) error {
	rcpt.SetUid(Store.GetUid())
	rcpt.InitTimes()
	return adp.RecipientCreate(rcpt)
}

// Get returns the recipient or nil if not found.
func (RecipientsObjMapper) Get(id types.Uid) (*types.Recipient, error) {
	return adp.RecipientGet(id)
}

// SubsObjMapperInterface is an interface of persistence mapping for subscriptions.
type SubsObjMapperInterface interface {
	Upsert(subs []*types.Subscription) error
	Get(user, recipient types.Uid) (*types.Subscription, error)
	ForRecipient(recipient types.Uid) ([]types.Subscription, error)
	ForUser(user types.Uid, recipients []types.Uid) ([]types.Subscription, error)
	Update(user, recipient types.Uid, update map[string]interface{}) error
	Deactivate(user types.Uid, recipients []types.Uid) error
}

// SubsObjMapper holds methods for persistence mapping of the Subscription object.
type SubsObjMapper struct{}

// Subs is the anchor for storing/retrieving Subscription objects.
var Subs SubsObjMapperInterface

// Upsert creates new subscriptions or re-activates existing ones.
func (SubsObjMapper) Upsert(subs []*types.Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	for _, sub := range subs {
		if sub.Id == "" {
			sub.SetUid(Store.GetUid())
		}
		sub.InitTimes()
		sub.Active = true
	}
	return adp.SubsUpsert(subs)
}

// Get returns an active subscription or nil.
func (SubsObjMapper) Get(user, recipient types.Uid) (*types.Subscription, error) {
	sub, err := adp.SubscriptionGet(user, recipient)
	if err != nil || sub == nil || !sub.Active {
		return nil, err
	}
	return sub, nil
}

// ForRecipient loads active subscriptions to the recipient.
func (SubsObjMapper) ForRecipient(recipient types.Uid) ([]types.Subscription, error) {
	return adp.SubsForRecipient(recipient)
}

// ForUser loads active subscriptions of the user to the given recipients. Empty list means all.
func (SubsObjMapper) ForUser(user types.Uid, recipients []types.Uid) ([]types.Subscription, error) {
	return adp.SubsForUser(user, recipients)
}

// Update modifies a single subscription.
func (SubsObjMapper) Update(user, recipient types.Uid, update map[string]interface{}) error {
	if _, ok := update["UpdatedAt"]; !ok {
		update["UpdatedAt"] = types.TimeNow()
	}
	return adp.SubsUpdate(user, recipient, update)
}

// Deactivate marks subscriptions as inactive. Subscriptions are never deleted.
func (SubsObjMapper) Deactivate(user types.Uid, recipients []types.Uid) error {
	if len(recipients) == 0 {
		return nil
	}
	return adp.SubsDeactivate(user, recipients)
}

// MutesObjMapperInterface is an interface of persistence mapping for topic mutes.
type MutesObjMapperInterface interface {
	Add(mute *types.TopicMute) error
	Delete(user, recipient types.Uid, topic string) error
	Exists(user, recipient types.Uid, topic string) (bool, error)
	UsersForTopic(recipient types.Uid, topic string) ([]types.Uid, error)
}

// MutesObjMapper holds methods for persistence mapping of the TopicMute object.
type MutesObjMapper struct{}

// Mutes is the anchor for storing/retrieving TopicMute objects.
var Mutes MutesObjMapperInterface

// Add saves a topic mute.
func (MutesObjMapper) Add(mute *types.TopicMute) error {
	mute.SetUid(Store.GetUid())
	mute.InitTimes()
	return adp.MuteCreate(mute)
}

// Delete removes a topic mute.
func (MutesObjMapper) Delete(user, recipient types.Uid, topic string) error {
	return adp.MuteDelete(user, recipient, topic)
}

// Exists checks if the user muted the topic.
func (MutesObjMapper) Exists(user, recipient types.Uid, topic string) (bool, error) {
	return adp.MuteExists(user, recipient, topic)
}

// UsersForTopic returns ids of users who muted the topic.
func (MutesObjMapper) UsersForTopic(recipient types.Uid, topic string) ([]types.Uid, error) {
	return adp.MuteUsersForTopic(recipient, topic)
}

func init() {
	Store = storeObj{}
	Realms = RealmsObjMapper{}
	Users = UsersObjMapper{}
	Streams = StreamsObjMapper{}
	Recipients = RecipientsObjMapper{}
	Subs = SubsObjMapper{}
	Mutes = MutesObjMapper{}
}
