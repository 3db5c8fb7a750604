package access

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/store"
	"github.com/relaynet/streams/server/store/mock_store"
	t "github.com/relaynet/streams/server/store/types"
)

const testRealm = t.Uid(1)

var testNow = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

func newUser(id t.Uid, email string, role t.Role, daysAgo int) *t.User {
	u := &t.User{Realm: testRealm, Email: email, Role: role, IsActive: true}
	u.SetUid(id)
	u.CreatedAt = testNow.AddDate(0, 0, -daysAgo)
	return u
}

func newBot(id t.Uid, email string, owner *t.User) *t.User {
	u := newUser(id, email, t.RoleMember, 100)
	u.BotType = t.BotDefault
	if owner != nil {
		u.BotOwner = owner.Uid()
	}
	return u
}

func newStream(id t.Uid, name string, inviteOnly bool, policy t.PostPolicy) *t.Stream {
	s := &t.Stream{Realm: testRealm, Name: name, InviteOnly: inviteOnly, PostPolicy: policy,
		HistoryPublicToSubscribers: !inviteOnly}
	s.SetUid(id)
	s.Recipient = id + 1000
	return s
}

func activeSub(user *t.User, stream *t.Stream) *t.Subscription {
	return &t.Subscription{User: user.Uid(), Recipient: stream.Recipient, Active: true}
}

// storeFixture replaces store mappers with mocks backed by in-memory maps.
type storeFixture struct {
	users   map[t.Uid]*t.User
	streams map[t.Uid]*t.Stream
	subs    map[t.Uid]map[t.Uid]bool // recipient -> users
	realm   *t.Realm
}

func setupStore(tt *testing.T) *storeFixture {
	ctrl := gomock.NewController(tt)
	fx := &storeFixture{
		users:   map[t.Uid]*t.User{},
		streams: map[t.Uid]*t.Stream{},
		subs:    map[t.Uid]map[t.Uid]bool{},
		realm:   &t.Realm{WaitingPeriodThreshold: 10},
	}
	fx.realm.SetUid(testRealm)

	users := mock_store.NewMockUsersObjMapperInterface(ctrl)
	streams := mock_store.NewMockStreamsObjMapperInterface(ctrl)
	subs := mock_store.NewMockSubsObjMapperInterface(ctrl)
	realms := mock_store.NewMockRealmsObjMapperInterface(ctrl)

	users.EXPECT().Get(gomock.Any()).DoAndReturn(func(id t.Uid) (*t.User, error) {
		return fx.users[id], nil
	}).AnyTimes()
	streams.EXPECT().Get(gomock.Any()).DoAndReturn(func(id t.Uid) (*t.Stream, error) {
		return fx.streams[id], nil
	}).AnyTimes()
	streams.EXPECT().GetByName(gomock.Any(), gomock.Any()).DoAndReturn(func(realm t.Uid, name string) (*t.Stream, error) {
		for _, s := range fx.streams {
			if s.Realm == realm && s.Name == name {
				return s, nil
			}
		}
		return nil, nil
	}).AnyTimes()
	subs.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(func(user, rcpt t.Uid) (*t.Subscription, error) {
		if fx.subs[rcpt][user] {
			return &t.Subscription{User: user, Recipient: rcpt, Active: true}, nil
		}
		return nil, nil
	}).AnyTimes()
	realms.EXPECT().Get(gomock.Any()).Return(fx.realm, nil).AnyTimes()

	oldUsers, oldStreams, oldSubs, oldRealms := store.Users, store.Streams, store.Subs, store.Realms
	store.Users, store.Streams, store.Subs, store.Realms = users, streams, subs, realms
	timeNow = func() time.Time { return testNow }
	tt.Cleanup(func() {
		store.Users, store.Streams, store.Subs, store.Realms = oldUsers, oldStreams, oldSubs, oldRealms
		timeNow = time.Now
		ctrl.Finish()
	})
	return fx
}

func (fx *storeFixture) addUsers(users ...*t.User) {
	for _, u := range users {
		fx.users[u.Uid()] = u
	}
}

func (fx *storeFixture) addStream(s *t.Stream) *t.Stream {
	fx.streams[s.Uid()] = s
	return s
}

func (fx *storeFixture) subscribe(u *t.User, s *t.Stream) {
	if fx.subs[s.Recipient] == nil {
		fx.subs[s.Recipient] = map[t.Uid]bool{}
	}
	fx.subs[s.Recipient][u.Uid()] = true
}

func TestCanAccessStreamContent(tt *testing.T) {
	member := newUser(10, "member@example.com", t.RoleMember, 100)
	guest := newUser(11, "guest@example.com", t.RoleGuest, 100)
	admin := newUser(12, "admin@example.com", t.RoleAdmin, 100)
	public := newStream(100, "general", false, t.PostEveryone)
	private := newStream(101, "secret", true, t.PostEveryone)
	foreign := newStream(102, "elsewhere", false, t.PostEveryone)
	foreign.Realm = testRealm + 1

	cases := []struct {
		name   string
		actor  *t.User
		stream *t.Stream
		sub    *t.Subscription
		bypass bool
		want   bool
	}{
		{"member public", member, public, nil, false, true},
		{"guest public", guest, public, nil, false, false},
		{"guest public subscribed", guest, public, activeSub(guest, public), false, true},
		{"member private", member, private, nil, false, false},
		{"member private subscribed", member, private, activeSub(member, private), false, true},
		{"member private inactive sub", member, private, &t.Subscription{Active: false}, false, false},
		{"admin private", admin, private, nil, false, false},
		{"admin private bypass", admin, private, nil, true, true},
		{"member private bypass", member, private, nil, true, false},
		{"other realm", member, foreign, nil, true, false},
	}
	for _, tc := range cases {
		if got := CanAccessStreamContent(tc.actor, tc.stream, tc.sub, tc.bypass); got != tc.want {
			tt.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestCanAccessStreamHistory(tt *testing.T) {
	member := newUser(10, "member@example.com", t.RoleMember, 100)
	guest := newUser(11, "guest@example.com", t.RoleGuest, 100)
	public := newStream(100, "general", false, t.PostEveryone)
	closed := newStream(101, "closed", true, t.PostEveryone)
	shared := newStream(102, "shared", true, t.PostEveryone)
	shared.HistoryPublicToSubscribers = true

	cases := []struct {
		name   string
		actor  *t.User
		stream *t.Stream
		sub    *t.Subscription
		want   bool
	}{
		{"member public", member, public, nil, true},
		{"guest public unsubscribed", guest, public, nil, false},
		{"guest public subscribed", guest, public, activeSub(guest, public), true},
		{"private without public history, subscribed", member, closed, activeSub(member, closed), false},
		{"private with public history, subscribed", member, shared, activeSub(member, shared), true},
		{"private with public history, unsubscribed", member, shared, nil, false},
		{"private with public history, inactive sub", member, shared, &t.Subscription{Active: false}, false},
	}
	for _, tc := range cases {
		if got := CanAccessStreamHistory(tc.actor, tc.stream, tc.sub); got != tc.want {
			tt.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestCanAccessStreamHistoryByName(tt *testing.T) {
	fx := setupStore(tt)
	member := newUser(10, "member@example.com", t.RoleMember, 100)
	shared := fx.addStream(newStream(102, "shared", true, t.PostEveryone))
	shared.HistoryPublicToSubscribers = true
	fx.subscribe(member, shared)

	if ok, err := CanAccessStreamHistoryByName(member, "shared"); err != nil || !ok {
		tt.Errorf("Subscriber must see history: %v, %v", ok, err)
	}
	// Unsubscribing revokes history access.
	delete(fx.subs[shared.Recipient], member.Uid())
	if ok, _ := CanAccessStreamHistoryById(member, shared.Uid()); ok {
		tt.Error("Former subscriber must not see history")
	}
	if ok, err := CanAccessStreamHistoryByName(member, "missing"); err != nil || ok {
		tt.Errorf("Missing stream: %v, %v", ok, err)
	}
}

func TestCanPostToStreamPolicy(tt *testing.T) {
	fx := setupStore(tt)
	member := newUser(10, "member@example.com", t.RoleMember, 100)
	newbie := newUser(11, "newbie@example.com", t.RoleMember, 2)
	admin := newUser(12, "admin@example.com", t.RoleAdmin, 1)
	adminBot := newBot(13, "admin-bot@example.com", admin)
	newbieBot := newBot(14, "newbie-bot@example.com", newbie)
	fx.addUsers(member, newbie, admin, adminBot, newbieBot)

	general := newStream(100, "general", false, t.PostEveryone)
	if err := CanPostToStream(member, general, nil); err != nil {
		tt.Errorf("Member must post to an open stream: %v", err)
	}

	general.PostPolicy = t.PostAdminsOnly
	err := CanPostToStream(member, general, nil)
	if err == nil || err.Error() != "Only organization administrators can send to stream 'general'." {
		tt.Errorf("Unexpected error %v", err)
	}
	if !errors.Is(err, t.ErrPermissionDenied) {
		tt.Errorf("Expected permission denied, got %v", err)
	}
	if err := CanPostToStream(admin, general, nil); err != nil {
		tt.Errorf("Admin must post: %v", err)
	}
	if err := CanPostToStream(adminBot, general, nil); err != nil {
		tt.Errorf("Bot of an admin must post: %v", err)
	}

	general.PostPolicy = t.PostRestrictNewMembers
	if err := CanPostToStream(member, general, nil); err != nil {
		tt.Errorf("Full member must post: %v", err)
	}
	for _, sender := range []*t.User{newbie, newbieBot} {
		err := CanPostToStream(sender, general, nil)
		if err == nil || err.Error() != "New members cannot send to stream 'general'." {
			tt.Errorf("%s: unexpected error %v", sender.Email, err)
		}
	}
}

func TestCanPostToPrivateStream(tt *testing.T) {
	fx := setupStore(tt)
	Init([]byte(`{"api_super_users": ["mirror@example.com"], "welcome_bot": "welcome-bot@example.com",
		"notification_bot": "notification-bot@example.com"}`))
	defer Init(nil)

	member := newUser(10, "member@example.com", t.RoleMember, 100)
	outsider := newUser(11, "outsider@example.com", t.RoleMember, 100)
	owned := newBot(12, "bot@example.com", member)
	mirror := newUser(13, "Mirror@example.com", t.RoleMember, 100)
	welcome := newBot(14, "welcome-bot@example.com", nil)
	admin := newUser(15, "admin@example.com", t.RoleAdmin, 100)
	fx.addUsers(member, outsider, owned, mirror, welcome, admin)

	secret := newStream(100, "secret", true, t.PostEveryone)
	fx.subscribe(member, secret)

	before := testutil.ToFloat64(metrics.AccessDenied.WithLabelValues("post"))

	cases := []struct {
		name      string
		sender    *t.User
		forwarder *t.User
		ok        bool
	}{
		{"subscriber", member, nil, true},
		{"outsider", outsider, nil, false},
		{"bot of subscriber", owned, nil, true},
		{"super user", mirror, nil, true},
		{"forwarded by super user", outsider, mirror, true},
		{"welcome bot", welcome, nil, true},
		// Admins pass the post policy but still need a subscription.
		{"unsubscribed admin", admin, nil, false},
	}
	for _, tc := range cases {
		err := CanPostToStream(tc.sender, secret, tc.forwarder)
		if tc.ok && err != nil {
			tt.Errorf("%s: unexpected error %v", tc.name, err)
		} else if !tc.ok && (err == nil || err.Error() != "Not authorized to send to stream 'secret'") {
			tt.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}

	if after := testutil.ToFloat64(metrics.AccessDenied.WithLabelValues("post")); after-before != 2 {
		tt.Errorf("Expected 2 denials to be counted, got %v", after-before)
	}

	guest := newUser(16, "guest@example.com", t.RoleGuest, 100)
	fx.addUsers(guest)
	if err := CanPostToStream(guest, newStream(101, "general", false, t.PostEveryone), nil); err == nil {
		tt.Error("Unsubscribed guest must not post to a public stream")
	}
}

func TestAccessStreamErrorsAreIdentical(tt *testing.T) {
	fx := setupStore(tt)
	guest := newUser(10, "guest@example.com", t.RoleGuest, 100)
	admin := newUser(11, "admin@example.com", t.RoleAdmin, 100)
	secret := fx.addStream(newStream(100, "secret", true, t.PostEveryone))

	_, _, _, errHidden := AccessStreamById(guest, secret.Uid(), false)
	_, _, _, errMissing := AccessStreamById(guest, 999, false)
	if errHidden == nil || errMissing == nil || errHidden.Error() != errMissing.Error() {
		tt.Fatalf("Errors must be identical: '%v' vs '%v'", errHidden, errMissing)
	}
	if errHidden.Error() != "Invalid stream id" || !errors.Is(errHidden, t.ErrNotFound) {
		tt.Errorf("Unexpected error %v", errHidden)
	}

	_, _, _, errHidden = AccessStreamByName(guest, "secret", false)
	if errHidden == nil || errHidden.Error() != "Invalid stream name 'secret'" {
		tt.Errorf("Unexpected error %v", errHidden)
	}
	_, _, _, errMissing = AccessStreamByName(guest, "nothing", false)
	if errMissing == nil || errMissing.Error() != "Invalid stream name 'nothing'" {
		tt.Errorf("Unexpected error %v", errMissing)
	}

	// Administrators see private streams only through the bypass.
	if _, _, _, err := AccessStreamById(admin, secret.Uid(), false); err == nil {
		tt.Error("Admin must not access private stream without bypass")
	}
	stream, rcpt, sub, err := AccessStreamById(admin, secret.Uid(), true)
	if err != nil || stream != secret || sub != nil {
		tt.Fatalf("Bypass failed: %v, %v, %v", stream, sub, err)
	}
	if rcpt.Uid() != secret.Recipient || rcpt.Type != t.RecipientStream || rcpt.TypeId != secret.Uid() {
		tt.Errorf("Unexpected recipient %+v", rcpt)
	}
}

func TestAccessStreamForDeleteOrUpdate(tt *testing.T) {
	fx := setupStore(tt)
	member := newUser(10, "member@example.com", t.RoleMember, 100)
	admin := newUser(11, "admin@example.com", t.RoleAdmin, 100)
	secret := fx.addStream(newStream(100, "secret", true, t.PostEveryone))
	foreign := fx.addStream(newStream(101, "foreign", false, t.PostEveryone))
	foreign.Realm = testRealm + 1

	if _, err := AccessStreamForDeleteOrUpdate(member, secret.Uid()); err == nil ||
		err.Error() != "Must be an organization administrator" {
		tt.Errorf("Unexpected error %v", err)
	}
	if s, err := AccessStreamForDeleteOrUpdate(admin, secret.Uid()); err != nil || s != secret {
		tt.Errorf("Admin must update private streams: %v", err)
	}
	if _, err := AccessStreamForDeleteOrUpdate(admin, foreign.Uid()); err == nil || err.Error() != "Invalid stream id" {
		tt.Errorf("Unexpected error %v", err)
	}
}
