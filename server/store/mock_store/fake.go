package mock_store

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/store"
	types "github.com/relaynet/streams/server/store/types"
)

// Fake is an in-memory implementation of all ObjMapper interfaces for unit tests.
// Objects are copied in and out so callers cannot modify stored state by accident.
type Fake struct {
	lock sync.Mutex
	next types.Uid

	realms     map[types.Uid]*types.Realm
	users      map[types.Uid]*types.User
	streams    map[types.Uid]*types.Stream
	recipients map[types.Uid]*types.Recipient
	subs       map[string]*types.Subscription
	mutes      map[string]*types.TopicMute

	// BeforeGetOrCreate is called by Streams.GetOrCreate before the uniqueness check.
	// Tests use it to simulate a concurrent creator.
	BeforeGetOrCreate func(stream *types.Stream)
	// DeactivateErr is returned by Streams.Deactivate, which then changes nothing.
	DeactivateErr error
}

// NewFake creates an empty store.
func NewFake() *Fake {
	return &Fake{
		next:       1000,
		realms:     map[types.Uid]*types.Realm{},
		users:      map[types.Uid]*types.User{},
		streams:    map[types.Uid]*types.Stream{},
		recipients: map[types.Uid]*types.Recipient{},
		subs:       map[string]*types.Subscription{},
		mutes:      map[string]*types.TopicMute{},
	}
}

// Install replaces the store ObjMappers with the fake. The returned function restores them.
func (f *Fake) Install() func() {
	realms, users, streams, recipients, subs, mutes :=
		store.Realms, store.Users, store.Streams, store.Recipients, store.Subs, store.Mutes
	store.Realms = fakeRealms{f}
	store.Users = fakeUsers{f}
	store.Streams = fakeStreams{f}
	store.Recipients = fakeRecipients{f}
	store.Subs = fakeSubs{f}
	store.Mutes = fakeMutes{f}
	return func() {
		store.Realms, store.Users, store.Streams, store.Recipients, store.Subs, store.Mutes =
			realms, users, streams, recipients, subs, mutes
	}
}

func (f *Fake) newUid() types.Uid {
	f.next++
	return f.next
}

func (f *Fake) assign(h *types.ObjHeader) {
	if h.Uid().IsZero() {
		h.SetUid(f.newUid())
	}
	h.InitTimes()
}

// AddRealm stores a realm, assigning an id if it has none.
func (f *Fake) AddRealm(realm *types.Realm) *types.Realm {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.assign(&realm.ObjHeader)
	cp := *realm
	f.realms[realm.Uid()] = &cp
	return realm
}

// AddUser stores a user, assigning an id if it has none.
func (f *Fake) AddUser(user *types.User) *types.User {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.assign(&user.ObjHeader)
	cp := *user
	f.users[user.Uid()] = &cp
	return user
}

// AddStream stores a stream and its recipient bypassing the uniqueness check.
func (f *Fake) AddStream(stream *types.Stream) *types.Stream {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.addStream(stream)
	return stream
}

func (f *Fake) addStream(stream *types.Stream) {
	f.assign(&stream.ObjHeader)
	rcpt := &types.Recipient{Type: types.RecipientStream, TypeId: stream.Uid()}
	f.assign(&rcpt.ObjHeader)
	stream.Recipient = rcpt.Uid()
	f.recipients[rcpt.Uid()] = rcpt
	cp := *stream
	f.streams[stream.Uid()] = &cp
}

// Subscribe creates an active subscription of the user to the stream.
func (f *Fake) Subscribe(user *types.User, stream *types.Stream) *types.Subscription {
	f.lock.Lock()
	defer f.lock.Unlock()
	sub := &types.Subscription{User: user.Uid(), Recipient: stream.Recipient, Active: true}
	f.assign(&sub.ObjHeader)
	f.subs[common.RecipientKey(sub.User, sub.Recipient)] = sub
	cp := *sub
	return &cp
}

// User returns a copy of the stored user or nil.
func (f *Fake) User(uid types.Uid) *types.User {
	f.lock.Lock()
	defer f.lock.Unlock()
	if u := f.users[uid]; u != nil {
		cp := *u
		return &cp
	}
	return nil
}

// Stream returns a copy of the stored stream or nil.
func (f *Fake) Stream(id types.Uid) *types.Stream {
	f.lock.Lock()
	defer f.lock.Unlock()
	if s := f.streams[id]; s != nil {
		cp := *s
		return &cp
	}
	return nil
}

// Subscription returns a copy of the stored subscription, active or not, or nil.
func (f *Fake) Subscription(user, recipient types.Uid) *types.Subscription {
	f.lock.Lock()
	defer f.lock.Unlock()
	if s := f.subs[common.RecipientKey(user, recipient)]; s != nil {
		cp := *s
		return &cp
	}
	return nil
}

// Streams returns copies of all stored streams of the realm sorted by id.
func (f *Fake) Streams(realm types.Uid) []types.Stream {
	f.lock.Lock()
	defer f.lock.Unlock()
	var out []types.Stream
	for _, s := range f.streams {
		if s.Realm == realm {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Uid() < out[j].Uid() })
	return out
}

// applyUpdate sets struct fields by Go field name.
func applyUpdate(obj interface{}, update map[string]interface{}) {
	val := reflect.ValueOf(obj).Elem()
	for name, v := range update {
		field := val.FieldByName(name)
		if !field.IsValid() {
			continue
		}
		if v == nil || (reflect.ValueOf(v).Kind() == reflect.Ptr && reflect.ValueOf(v).IsNil()) {
			field.Set(reflect.Zero(field.Type()))
			continue
		}
		field.Set(reflect.ValueOf(v).Convert(field.Type()))
	}
}

type fakeRealms struct{ f *Fake }

func (r fakeRealms) Create(realm *types.Realm) error {
	r.f.AddRealm(realm)
	return nil
}

func (r fakeRealms) Get(id types.Uid) (*types.Realm, error) {
	r.f.lock.Lock()
	defer r.f.lock.Unlock()
	if realm := r.f.realms[id]; realm != nil {
		cp := *realm
		return &cp, nil
	}
	return nil, nil
}

type fakeUsers struct{ f *Fake }

func (u fakeUsers) Create(user *types.User) (*types.User, error) {
	if existing, _ := u.GetByEmail(user.Realm, user.Email); existing != nil {
		return nil, types.ErrDuplicate
	}
	return u.f.AddUser(user), nil
}

func (u fakeUsers) Get(uid types.Uid) (*types.User, error) {
	return u.f.User(uid), nil
}

func (u fakeUsers) GetAll(ids []types.Uid) ([]types.User, error) {
	u.f.lock.Lock()
	defer u.f.lock.Unlock()
	var out []types.User
	for _, id := range types.NewUidSlice(ids...) {
		if user := u.f.users[id]; user != nil {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (u fakeUsers) GetByEmail(realm types.Uid, email string) (*types.User, error) {
	u.f.lock.Lock()
	defer u.f.lock.Unlock()
	for _, user := range u.f.users {
		if user.Realm == realm && strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (u fakeUsers) GetActiveIds(realm types.Uid, roles []types.Role, includeBots bool) ([]types.Uid, error) {
	u.f.lock.Lock()
	defer u.f.lock.Unlock()
	set := common.RoleSet(roles)
	var ids types.UidSlice
	for id, user := range u.f.users {
		if user.Realm != realm || !user.IsActive {
			continue
		}
		if len(roles) > 0 && !set[user.Role] {
			continue
		}
		if !includeBots && user.IsBot() {
			continue
		}
		ids.Add(id)
	}
	return ids, nil
}

func (u fakeUsers) Update(uid types.Uid, update map[string]interface{}) error {
	u.f.lock.Lock()
	defer u.f.lock.Unlock()
	user := u.f.users[uid]
	if user == nil {
		return types.ErrNotFound
	}
	applyUpdate(user, update)
	return nil
}

type fakeStreams struct{ f *Fake }

func (s fakeStreams) GetOrCreate(stream *types.Stream) (bool, error) {
	if s.f.BeforeGetOrCreate != nil {
		s.f.BeforeGetOrCreate(stream)
	}

	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	key := common.StreamNameKey(stream.Name)
	for _, existing := range s.f.streams {
		if existing.Realm == stream.Realm && common.StreamNameKey(existing.Name) == key {
			*stream = *existing
			return false, nil
		}
	}
	s.f.addStream(stream)
	return true, nil
}

func (s fakeStreams) Get(id types.Uid) (*types.Stream, error) {
	return s.f.Stream(id), nil
}

func (s fakeStreams) GetByName(realm types.Uid, name string) (*types.Stream, error) {
	found, err := s.GetByNames(realm, []string{name})
	if err != nil {
		return nil, err
	}
	return found[common.StreamNameKey(name)], nil
}

func (s fakeStreams) GetByNames(realm types.Uid, names []string) (map[string]*types.Stream, error) {
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	keys := map[string]bool{}
	for _, key := range common.StreamNameKeys(names) {
		keys[key] = true
	}
	out := map[string]*types.Stream{}
	for _, stream := range s.f.streams {
		key := common.StreamNameKey(stream.Name)
		if stream.Realm == realm && keys[key] {
			cp := *stream
			out[key] = &cp
		}
	}
	return out, nil
}

func (s fakeStreams) Update(id types.Uid, update map[string]interface{}) error {
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	stream := s.f.streams[id]
	if stream == nil {
		return types.ErrNotFound
	}
	if name, ok := update["Name"].(string); ok {
		key := common.StreamNameKey(name)
		for _, other := range s.f.streams {
			if other != stream && other.Realm == stream.Realm && common.StreamNameKey(other.Name) == key {
				return types.ErrDuplicate
			}
		}
	}
	applyUpdate(stream, update)
	return nil
}

func (s fakeStreams) Deactivate(stream *types.Stream, name string) error {
	if s.f.DeactivateErr != nil {
		return s.f.DeactivateErr
	}
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	stored := s.f.streams[stream.Uid()]
	if stored == nil {
		return types.ErrNotFound
	}
	key := common.StreamNameKey(name)
	for _, other := range s.f.streams {
		if other != stored && other.Realm == stored.Realm && common.StreamNameKey(other.Name) == key {
			return types.ErrDuplicate
		}
	}
	for _, sub := range s.f.subs {
		if sub.Recipient == stored.Recipient {
			sub.Active = false
		}
	}
	stored.Name = name
	stored.InviteOnly = true
	stored.Deactivated = true
	stored.UpdatedAt = types.TimeNow()
	return nil
}

type fakeRecipients struct{ f *Fake }

func (r fakeRecipients) Create(rcpt *types.Recipient) error {
	r.f.lock.Lock()
	defer r.f.lock.Unlock()
	r.f.assign(&rcpt.ObjHeader)
	cp := *rcpt
	r.f.recipients[rcpt.Uid()] = &cp
	return nil
}

func (r fakeRecipients) Get(id types.Uid) (*types.Recipient, error) {
	r.f.lock.Lock()
	defer r.f.lock.Unlock()
	if rcpt := r.f.recipients[id]; rcpt != nil {
		cp := *rcpt
		return &cp, nil
	}
	return nil, nil
}

type fakeSubs struct{ f *Fake }

func (s fakeSubs) Upsert(subs []*types.Subscription) error {
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	for _, sub := range subs {
		key := common.RecipientKey(sub.User, sub.Recipient)
		if existing := s.f.subs[key]; existing != nil {
			existing.Active = true
			existing.UpdatedAt = types.TimeNow()
			*sub = *existing
			continue
		}
		s.f.assign(&sub.ObjHeader)
		sub.Active = true
		cp := *sub
		s.f.subs[key] = &cp
	}
	return nil
}

func (s fakeSubs) Get(user, recipient types.Uid) (*types.Subscription, error) {
	sub := s.f.Subscription(user, recipient)
	if sub == nil || !sub.Active {
		return nil, nil
	}
	return sub, nil
}

func (s fakeSubs) ForRecipient(recipient types.Uid) ([]types.Subscription, error) {
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	var out []types.Subscription
	for _, sub := range s.f.subs {
		if sub.Recipient == recipient && sub.Active {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (s fakeSubs) ForUser(user types.Uid, recipients []types.Uid) ([]types.Subscription, error) {
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	filter := types.NewUidSlice(recipients...)
	var out []types.Subscription
	for _, sub := range s.f.subs {
		if sub.User != user || !sub.Active {
			continue
		}
		if len(filter) > 0 && !filter.Contains(sub.Recipient) {
			continue
		}
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Recipient < out[j].Recipient })
	return out, nil
}

func (s fakeSubs) Update(user, recipient types.Uid, update map[string]interface{}) error {
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	sub := s.f.subs[common.RecipientKey(user, recipient)]
	if sub == nil {
		return types.ErrNotFound
	}
	applyUpdate(sub, update)
	return nil
}

func (s fakeSubs) Deactivate(user types.Uid, recipients []types.Uid) error {
	s.f.lock.Lock()
	defer s.f.lock.Unlock()
	for _, rcpt := range recipients {
		if sub := s.f.subs[common.RecipientKey(user, rcpt)]; sub != nil {
			sub.Active = false
		}
	}
	return nil
}

type fakeMutes struct{ f *Fake }

func (m fakeMutes) Add(mute *types.TopicMute) error {
	m.f.lock.Lock()
	defer m.f.lock.Unlock()
	key := common.MuteKey(mute.User, mute.Recipient, mute.TopicName)
	if m.f.mutes[key] != nil {
		return types.ErrDuplicate
	}
	m.f.assign(&mute.ObjHeader)
	cp := *mute
	m.f.mutes[key] = &cp
	return nil
}

func (m fakeMutes) Delete(user, recipient types.Uid, topic string) error {
	m.f.lock.Lock()
	defer m.f.lock.Unlock()
	key := common.MuteKey(user, recipient, topic)
	if m.f.mutes[key] == nil {
		return types.ErrNotFound
	}
	delete(m.f.mutes, key)
	return nil
}

func (m fakeMutes) Exists(user, recipient types.Uid, topic string) (bool, error) {
	m.f.lock.Lock()
	defer m.f.lock.Unlock()
	return m.f.mutes[common.MuteKey(user, recipient, topic)] != nil, nil
}

func (m fakeMutes) UsersForTopic(recipient types.Uid, topic string) ([]types.Uid, error) {
	m.f.lock.Lock()
	defer m.f.lock.Unlock()
	key := common.TopicKey(topic)
	var ids types.UidSlice
	for _, mute := range m.f.mutes {
		if mute.Recipient == recipient && common.TopicKey(mute.TopicName) == key {
			ids.Add(mute.User)
		}
	}
	return ids, nil
}
