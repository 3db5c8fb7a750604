// Package testsuite contains storage tests shared by all database adapters. Each adapter's
// tests/ package opens a real database and calls the Run* functions in order.
package testsuite

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	adapter "github.com/relaynet/streams/server/db"
	"github.com/relaynet/streams/server/store/types"
)

// Records created by RunSetup.
const (
	TestRealm types.Uid = 1001

	userAlice types.Uid = 2001
	userBob   types.Uid = 2002
	userCarol types.Uid = 2003
)

// Stream and recipient ids are allocated from here.
var nextId = types.Uid(5000)

func newStream(name string) (*types.Stream, *types.Recipient) {
	nextId += 2
	stream := &types.Stream{Realm: TestRealm, Name: name, PostPolicy: types.PostEveryone,
		HistoryPublicToSubscribers: true}
	stream.SetUid(nextId)
	stream.InitTimes()
	rcpt := &types.Recipient{Type: types.RecipientStream, TypeId: stream.Uid()}
	rcpt.SetUid(nextId + 1)
	rcpt.InitTimes()
	stream.Recipient = rcpt.Uid()
	return stream, rcpt
}

func newSub(user, recipient types.Uid) *types.Subscription {
	nextId++
	sub := &types.Subscription{User: user, Recipient: recipient, Active: true, Color: "#76ce90"}
	sub.SetUid(nextId)
	sub.InitTimes()
	return sub
}

// RunSetup creates the realm and the users referenced by the other tests.
func RunSetup(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	realm := &types.Realm{Name: "Acme", WaitingPeriodThreshold: 10,
		CreateStreamPolicy: types.PolicyMembersOnly, InviteToStreamPolicy: types.PolicyMembersOnly}
	realm.SetUid(TestRealm)
	realm.InitTimes()
	if err := adp.RealmCreate(realm); err != nil {
		t.Fatal(err)
	}

	for _, uid := range []types.Uid{userAlice, userBob, userCarol} {
		user := &types.User{Realm: TestRealm, Email: fmt.Sprintf("user%d@acme.example.com", uid),
			FullName: fmt.Sprintf("User %d", uid), Role: types.RoleMember, IsActive: true}
		user.SetUid(uid)
		user.InitTimes()
		if err := adp.UserCreate(user); err != nil {
			t.Fatal(err)
		}
	}
}

// RunStreamGetOrCreate checks that an existing stream is found by a case-insensitive name
// and that the loser's recipient is not stored.
func RunStreamGetOrCreate(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	first, rcpt := newStream("Design")
	if created, err := adp.StreamGetOrCreate(first, rcpt); err != nil || !created {
		t.Fatalf("First call: created=%v, err=%v", created, err)
	}

	second, rcpt2 := newStream("DESIGN")
	created, err := adp.StreamGetOrCreate(second, rcpt2)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("Second call must not create a stream")
	}
	if second.Id != first.Id || second.Name != "Design" || second.Recipient != rcpt.Uid() {
		t.Errorf("Expected the existing stream, got %+v", second)
	}

	if r, err := adp.RecipientGet(rcpt.Uid()); err != nil || r == nil || r.TypeId != first.Uid() {
		t.Errorf("Recipient not stored: %+v, %v", r, err)
	}
	if r, _ := adp.RecipientGet(rcpt2.Uid()); r != nil {
		t.Error("Loser's recipient must not be stored")
	}

	found, err := adp.StreamGetByNames(TestRealm, []string{"design", "missing", "Design"})
	if err != nil || len(found) != 1 {
		t.Errorf("StreamGetByNames: %v, %v", found, err)
	}
}

// RunStreamGetOrCreateRace runs concurrent creators of one name: exactly one creates the
// stream and all of them get the same record.
func RunStreamGetOrCreateRace(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	const racers = 8
	streams := make([]*types.Stream, racers)
	rcpts := make([]*types.Recipient, racers)
	for i := range streams {
		streams[i], rcpts[i] = newStream("launch")
	}

	var wg sync.WaitGroup
	results := make([]bool, racers)
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = adp.StreamGetOrCreate(streams[i], rcpts[i])
		}(i)
	}
	wg.Wait()

	count := 0
	for i := range results {
		if errs[i] != nil {
			t.Errorf("Racer %d: %v", i, errs[i])
			continue
		}
		if results[i] {
			count++
		}
		if streams[i].Id != streams[0].Id {
			t.Errorf("Racer %d got a different stream %s", i, streams[i].Id)
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one creator, got %d", count)
	}
}

// RunStreamRename checks that renaming onto a taken name fails with ErrDuplicate and that
// a rename frees the old name.
func RunStreamRename(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	one, r1 := newStream("one")
	two, r2 := newStream("two")
	for _, pair := range []struct {
		s *types.Stream
		r *types.Recipient
	}{{one, r1}, {two, r2}} {
		if _, err := adp.StreamGetOrCreate(pair.s, pair.r); err != nil {
			t.Fatal(err)
		}
	}

	if err := adp.StreamUpdate(one.Uid(), map[string]interface{}{"Name": "TWO"}); !errors.Is(err, types.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if err := adp.StreamUpdate(one.Uid(), map[string]interface{}{"Name": "Three",
		"PostPolicy": types.PostAdminsOnly}); err != nil {
		t.Fatal(err)
	}
	s, err := adp.StreamGetByName(TestRealm, "three")
	if err != nil || s == nil || s.Id != one.Id || s.PostPolicy != types.PostAdminsOnly {
		t.Errorf("Rename failed: %+v, %v", s, err)
	}
	if s, _ := adp.StreamGetByName(TestRealm, "one"); s != nil {
		t.Errorf("Old name must be free, found %+v", s)
	}

	// The old name can be taken by a new stream.
	again, r3 := newStream("One")
	if created, err := adp.StreamGetOrCreate(again, r3); err != nil || !created {
		t.Errorf("Reusing the old name: created=%v, err=%v", created, err)
	}

	if err := adp.StreamUpdate(types.Uid(999999), map[string]interface{}{"Description": "x"}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// RunSubsUpsert checks creation, deactivation and re-activation of subscriptions.
func RunSubsUpsert(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	stream, rcpt := newStream("upsert")
	if _, err := adp.StreamGetOrCreate(stream, rcpt); err != nil {
		t.Fatal(err)
	}
	recipient := rcpt.Uid()

	alice := newSub(userAlice, recipient)
	alice.PushNotifications = types.BoolPtr(false)
	if err := adp.SubsUpsert([]*types.Subscription{alice, newSub(userBob, recipient)}); err != nil {
		t.Fatal(err)
	}
	if err := adp.SubsDeactivate(userAlice, []types.Uid{recipient}); err != nil {
		t.Fatal(err)
	}
	subs, err := adp.SubsForRecipient(recipient)
	if err != nil || len(subs) != 1 || subs[0].User != userBob {
		t.Fatalf("Expected one active subscription, got %+v, %v", subs, err)
	}

	inactive, err := adp.SubscriptionGet(userAlice, recipient)
	if err != nil || inactive == nil || inactive.Active {
		t.Fatalf("Expected inactive subscription, got %+v, %v", inactive, err)
	}
	if inactive.PushNotifications == nil || *inactive.PushNotifications || inactive.EmailNotifications != nil {
		t.Errorf("Tri-state overrides not preserved: %+v", inactive)
	}

	// Re-activation keeps the original row and its properties.
	if err := adp.SubsUpsert([]*types.Subscription{newSub(userAlice, recipient)}); err != nil {
		t.Fatal(err)
	}
	again, err := adp.SubscriptionGet(userAlice, recipient)
	if err != nil || again == nil || !again.Active || again.PushNotifications == nil {
		t.Errorf("Expected re-activated subscription, got %+v, %v", again, err)
	}

	mine, err := adp.SubsForUser(userAlice, []types.Uid{recipient, types.Uid(777777)})
	if err != nil || len(mine) != 1 {
		t.Errorf("SubsForUser: %+v, %v", mine, err)
	}
}

// RunStreamDeactivate checks that a failed deactivation changes nothing and a successful one
// renames the stream and deactivates every subscription to it.
func RunStreamDeactivate(t *testing.T, adp adapter.Adapter) {
	t.Helper()

	ops, opsRcpt := newStream("ops")
	archive, archiveRcpt := newStream("ops-archive")
	for _, pair := range []struct {
		s *types.Stream
		r *types.Recipient
	}{{ops, opsRcpt}, {archive, archiveRcpt}} {
		if _, err := adp.StreamGetOrCreate(pair.s, pair.r); err != nil {
			t.Fatal(err)
		}
	}
	if err := adp.SubsUpsert([]*types.Subscription{
		newSub(userAlice, ops.Recipient),
		newSub(userCarol, ops.Recipient),
		newSub(userAlice, archive.Recipient),
	}); err != nil {
		t.Fatal(err)
	}

	if err := adp.StreamDeactivate(ops.Uid(), ops.Recipient, "OPS-ARCHIVE"); !errors.Is(err, types.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if subs, _ := adp.SubsForRecipient(ops.Recipient); len(subs) != 2 {
		t.Errorf("Failed deactivation must keep subscriptions, got %+v", subs)
	}
	if s, _ := adp.StreamGet(ops.Uid()); s == nil || s.Deactivated || s.Name != "ops" {
		t.Errorf("Failed deactivation must keep the stream, got %+v", s)
	}

	if err := adp.StreamDeactivate(ops.Uid(), ops.Recipient, "!DEACTIVATED:ops"); err != nil {
		t.Fatal(err)
	}
	s, err := adp.StreamGet(ops.Uid())
	if err != nil || s == nil || !s.Deactivated || !s.InviteOnly || s.Name != "!DEACTIVATED:ops" {
		t.Errorf("Unexpected deactivated stream %+v, %v", s, err)
	}
	if subs, _ := adp.SubsForRecipient(ops.Recipient); len(subs) != 0 {
		t.Errorf("Expected no active subscriptions, got %+v", subs)
	}
	if subs, _ := adp.SubsForRecipient(archive.Recipient); len(subs) != 1 {
		t.Errorf("Other streams must keep subscriptions, got %+v", subs)
	}
	if s, _ := adp.StreamGetByName(TestRealm, "ops"); s != nil {
		t.Errorf("Name must be free, found %+v", s)
	}
}
