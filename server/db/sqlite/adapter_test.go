//go:build sqlite
// +build sqlite

package sqlite

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/relaynet/streams/server/db/common/testsuite"
	t "github.com/relaynet/streams/server/store/types"
)

func openTestAdapter(tt *testing.T) *adapter {
	tt.Helper()
	a := &adapter{}
	conf, _ := json.Marshal(configType{
		Database:     "file:" + tt.Name() + "?mode=memory&cache=shared",
		LogLevel:     "silent",
		// Shared-cache memory databases report table locks under concurrent writers.
		MaxOpenConns: 1,
	})
	if err := a.Open(conf); err != nil {
		tt.Fatal(err)
	}
	if err := a.CreateDb(true); err != nil {
		tt.Fatal(err)
	}
	tt.Cleanup(func() { a.Close() })
	return a
}

func newStream(realm t.Uid, id t.Uid, name string) (*t.Stream, *t.Recipient) {
	stream := &t.Stream{Realm: realm, Name: name, PostPolicy: t.PostEveryone}
	stream.SetUid(id)
	stream.InitTimes()
	rcpt := &t.Recipient{Type: t.RecipientStream, TypeId: id}
	rcpt.SetUid(id + 1000)
	rcpt.InitTimes()
	stream.Recipient = rcpt.Uid()
	return stream, rcpt
}

func TestDbVersion(tt *testing.T) {
	a := openTestAdapter(tt)
	if err := a.CheckDbVersion(); err != nil {
		tt.Fatal(err)
	}
	if v, _ := a.GetDbVersion(); v != adpVersion {
		tt.Errorf("Expected version %d, got %d", adpVersion, v)
	}
}

func TestStreamGetOrCreate(tt *testing.T) {
	a := openTestAdapter(tt)
	realm := t.Uid(7)

	first, rcpt := newStream(realm, 10, "Design")
	created, err := a.StreamGetOrCreate(first, rcpt)
	if err != nil || !created {
		tt.Fatalf("First call: created=%v, err=%v", created, err)
	}

	second, rcpt2 := newStream(realm, 20, "DESIGN ")
	created, err = a.StreamGetOrCreate(second, rcpt2)
	if err != nil {
		tt.Fatal(err)
	}
	if created {
		tt.Error("Second call must not create a stream")
	}
	if second.Id != first.Id || second.Name != "Design" {
		tt.Errorf("Expected the existing stream, got %+v", second)
	}

	// The same name in another realm is a different stream.
	other, rcpt3 := newStream(realm+1, 30, "design")
	if created, err = a.StreamGetOrCreate(other, rcpt3); err != nil || !created {
		tt.Errorf("Other realm: created=%v, err=%v", created, err)
	}

	if r, err := a.RecipientGet(rcpt.Uid()); err != nil || r == nil || r.TypeId != first.Uid() {
		tt.Errorf("Recipient not stored: %+v, %v", r, err)
	}
	if r, _ := a.RecipientGet(rcpt2.Uid()); r != nil {
		tt.Error("Loser's recipient must not be stored")
	}

	found, err := a.StreamGetByNames(realm, []string{"design", "missing", "Design"})
	if err != nil || len(found) != 1 {
		tt.Errorf("StreamGetByNames: %v, %v", found, err)
	}
}

func TestStreamGetOrCreateRace(tt *testing.T) {
	a := openTestAdapter(tt)

	const racers = 8
	var wg sync.WaitGroup
	results := make([]bool, racers)
	ids := make([]string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, r := newStream(1, t.Uid(100+i), "new-stream")
			created, err := a.StreamGetOrCreate(s, r)
			if err != nil {
				tt.Error(err)
			}
			results[i] = created
			ids[i] = s.Id
		}(i)
	}
	wg.Wait()

	count := 0
	for i := range results {
		if results[i] {
			count++
		}
		if ids[i] != ids[0] {
			tt.Errorf("Racer %d got a different stream %s", i, ids[i])
		}
	}
	if count != 1 {
		tt.Errorf("Expected exactly one creator, got %d", count)
	}
}

func TestStreamRename(tt *testing.T) {
	a := openTestAdapter(tt)
	one, r1 := newStream(1, 10, "one")
	two, r2 := newStream(1, 20, "two")
	a.StreamGetOrCreate(one, r1)
	a.StreamGetOrCreate(two, r2)

	if err := a.StreamUpdate(one.Uid(), map[string]interface{}{"Name": "TWO"}); err != t.ErrDuplicate {
		tt.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if err := a.StreamUpdate(one.Uid(), map[string]interface{}{"Name": "Three", "PostPolicy": t.PostAdminsOnly}); err != nil {
		tt.Fatal(err)
	}
	s, _ := a.StreamGetByName(1, "three")
	if s == nil || s.Id != one.Id || s.PostPolicy != t.PostAdminsOnly {
		tt.Errorf("Rename failed: %+v", s)
	}
	if err := a.StreamUpdate(999, map[string]interface{}{"Description": "x"}); err != t.ErrNotFound {
		tt.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSubscriptions(tt *testing.T) {
	a := openTestAdapter(tt)
	rcpt := t.Uid(500)

	mk := func(id, user t.Uid) *t.Subscription {
		s := &t.Subscription{User: user, Recipient: rcpt, Active: true, PushNotifications: t.BoolPtr(false)}
		s.SetUid(id)
		s.InitTimes()
		return s
	}
	if err := a.SubsUpsert([]*t.Subscription{mk(1, 11), mk(2, 12)}); err != nil {
		tt.Fatal(err)
	}
	if err := a.SubsDeactivate(11, []t.Uid{rcpt}); err != nil {
		tt.Fatal(err)
	}
	subs, err := a.SubsForRecipient(rcpt)
	if err != nil || len(subs) != 1 || subs[0].User != 12 {
		tt.Fatalf("Expected one active subscription, got %+v, %v", subs, err)
	}
	if subs[0].PushNotifications == nil || *subs[0].PushNotifications || subs[0].EmailNotifications != nil {
		tt.Errorf("Tri-state overrides not preserved: %+v", subs[0])
	}

	inactive, _ := a.SubscriptionGet(11, rcpt)
	if inactive == nil || inactive.Active {
		tt.Errorf("Expected inactive subscription, got %+v", inactive)
	}

	// Re-activation keeps the original row.
	if err := a.SubsUpsert([]*t.Subscription{mk(3, 11)}); err != nil {
		tt.Fatal(err)
	}
	again, _ := a.SubscriptionGet(11, rcpt)
	if again == nil || !again.Active || again.Id != inactive.Id {
		tt.Errorf("Expected re-activated subscription, got %+v", again)
	}

	if err := a.SubsUpdate(12, rcpt, map[string]interface{}{"PushNotifications": nil, "IsMuted": true}); err != nil {
		tt.Fatal(err)
	}
	sub, _ := a.SubscriptionGet(12, rcpt)
	if sub.PushNotifications != nil || !sub.IsMuted {
		tt.Errorf("Update not applied: %+v", sub)
	}

	mine, err := a.SubsForUser(12, []t.Uid{rcpt, 501})
	if err != nil || len(mine) != 1 {
		tt.Errorf("SubsForUser: %+v, %v", mine, err)
	}
}

func TestStreamDeactivate(tt *testing.T) {
	a := openTestAdapter(tt)
	stream, rcpt := newStream(1, 100, "ops")
	if _, err := a.StreamGetOrCreate(stream, rcpt); err != nil {
		tt.Fatal(err)
	}
	sub := &t.Subscription{User: 11, Recipient: stream.Recipient, Active: true}
	sub.SetUid(1)
	sub.InitTimes()
	if err := a.SubsUpsert([]*t.Subscription{sub}); err != nil {
		tt.Fatal(err)
	}

	if err := a.StreamDeactivate(t.Uid(999), stream.Recipient, "!DEACTIVATED:gone"); !errors.Is(err, t.ErrNotFound) {
		tt.Errorf("Expected ErrNotFound, got %v", err)
	}
	// The transaction is rolled back.
	if subs, _ := a.SubsForRecipient(stream.Recipient); len(subs) != 1 {
		tt.Errorf("Expected one active subscription, got %+v", subs)
	}

	if err := a.StreamDeactivate(stream.Uid(), stream.Recipient, "!DEACTIVATED:ops"); err != nil {
		tt.Fatal(err)
	}
	got, _ := a.StreamGet(stream.Uid())
	if got == nil || !got.Deactivated || !got.InviteOnly || got.Name != "!DEACTIVATED:ops" {
		tt.Errorf("Unexpected stream %+v", got)
	}
	if subs, _ := a.SubsForRecipient(stream.Recipient); len(subs) != 0 {
		tt.Errorf("Expected no active subscriptions, got %+v", subs)
	}
}

// The storage tests shared with the other adapters.
func TestSuite(tt *testing.T) {
	a := openTestAdapter(tt)
	testsuite.RunSetup(tt, a)
	testsuite.RunStreamGetOrCreate(tt, a)
	testsuite.RunStreamGetOrCreateRace(tt, a)
	testsuite.RunStreamRename(tt, a)
	testsuite.RunSubsUpsert(tt, a)
	testsuite.RunStreamDeactivate(tt, a)
}

func TestUsers(tt *testing.T) {
	a := openTestAdapter(tt)
	mk := func(id t.Uid, email string, role t.Role, bot t.BotType) *t.User {
		u := &t.User{Realm: 1, Email: email, Role: role, IsActive: true, BotType: bot}
		u.SetUid(id)
		u.InitTimes()
		return u
	}
	for _, u := range []*t.User{
		mk(1, "owner@example.com", t.RoleOwner, t.BotNone),
		mk(2, "admin@example.com", t.RoleAdmin, t.BotNone),
		mk(3, "bot@example.com", t.RoleAdmin, t.BotDefault),
		mk(4, "guest@example.com", t.RoleGuest, t.BotNone),
	} {
		if err := a.UserCreate(u); err != nil {
			tt.Fatal(err)
		}
	}
	if err := a.UserCreate(mk(5, "Owner@Example.com", t.RoleMember, t.BotNone)); !errors.Is(err, t.ErrDuplicate) {
		tt.Errorf("Expected ErrDuplicate, got %v", err)
	}

	ids, err := a.UserIdsForRealm(1, []t.Role{t.RoleOwner, t.RoleAdmin}, false)
	if err != nil || len(ids) != 2 {
		tt.Errorf("Expected two human admins, got %v, %v", ids, err)
	}
	ids, _ = a.UserIdsForRealm(1, []t.Role{t.RoleOwner, t.RoleAdmin}, true)
	if len(ids) != 3 {
		tt.Errorf("Expected three admins with bots, got %v", ids)
	}

	if err := a.UserUpdate(2, map[string]interface{}{"Role": t.RoleMember}); err != nil {
		tt.Fatal(err)
	}
	u, _ := a.UserGetByEmail(1, "ADMIN@example.com")
	if u == nil || u.Role != t.RoleMember {
		tt.Errorf("Role update not applied: %+v", u)
	}

	all, _ := a.UserGetAll(1, 4, 99)
	if len(all) != 2 {
		tt.Errorf("Expected two users, got %d", len(all))
	}
}

func TestTopicMutes(tt *testing.T) {
	a := openTestAdapter(tt)
	mute := &t.TopicMute{User: 1, Stream: 2, Recipient: 3, TopicName: "Lunch"}
	mute.SetUid(9)
	mute.InitTimes()
	if err := a.MuteCreate(mute); err != nil {
		tt.Fatal(err)
	}
	dup := &t.TopicMute{User: 1, Stream: 2, Recipient: 3, TopicName: "LUNCH"}
	dup.SetUid(10)
	if err := a.MuteCreate(dup); err != t.ErrDuplicate {
		tt.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if ok, _ := a.MuteExists(1, 3, "lunch"); !ok {
		tt.Error("Mute lookup must be case-insensitive")
	}
	if ids, _ := a.MuteUsersForTopic(3, "lunch"); len(ids) != 1 || ids[0] != 1 {
		tt.Errorf("Unexpected muters %v", ids)
	}
	if err := a.MuteDelete(1, 3, "Lunch"); err != nil {
		tt.Fatal(err)
	}
	if err := a.MuteDelete(1, 3, "Lunch"); err != t.ErrNotFound {
		tt.Errorf("Expected ErrNotFound, got %v", err)
	}
}
