package users

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/relaynet/streams/server/cache"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store/mock_store"
	t "github.com/relaynet/streams/server/store/types"
)

type eventSink struct {
	ch chan *notify.Event
}

func (h *eventSink) Init(json.RawMessage) (bool, error) { return true, nil }

func (h *eventSink) IsReady() bool { return true }

func (h *eventSink) Events() chan<- *notify.Event { return h.ch }

func (h *eventSink) Stop() {}

func (h *eventSink) drain() []*notify.Event {
	var events []*notify.Event
	for {
		select {
		case ev := <-h.ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

var sink = &eventSink{ch: make(chan *notify.Event, 256)}

func init() {
	notify.Register("sink", sink)
}

type keyRecorder struct {
	keys []string
}

func (r *keyRecorder) Delete(ctx context.Context, keys ...string) error {
	r.keys = append(r.keys, keys...)
	return nil
}

func (r *keyRecorder) Close() error { return nil }

type fixture struct {
	fake *mock_store.Fake
	keys *keyRecorder

	desdemona, iago, hamlet, polonius, bot *t.User
}

func setup(tt *testing.T) *fixture {
	fake := mock_store.NewFake()
	tt.Cleanup(fake.Install())
	keys := &keyRecorder{}
	cache.Use(keys)
	tt.Cleanup(cache.Close)

	realm := fake.AddRealm(&t.Realm{Name: "Acme"})
	user := func(name string, role t.Role, bot t.BotType) *t.User {
		return fake.AddUser(&t.User{Realm: realm.Uid(), Email: name + "@example.com", FullName: name,
			Role: role, BotType: bot, IsActive: true})
	}
	fx := &fixture{fake: fake, keys: keys}
	fx.desdemona = user("desdemona", t.RoleOwner, t.BotNone)
	fx.iago = user("iago", t.RoleAdmin, t.BotNone)
	fx.hamlet = user("hamlet", t.RoleMember, t.BotNone)
	fx.polonius = user("polonius", t.RoleGuest, t.BotNone)
	// Bots do not count as owners for the last owner check.
	fx.bot = user("bot", t.RoleOwner, t.BotDefault)
	sink.drain()
	return fx
}

func userMsg(err error) string {
	var ue *t.UserError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	if err != nil {
		return "unexpected: " + err.Error()
	}
	return ""
}

func TestChangeRole(tt *testing.T) {
	fx := setup(tt)

	if err := PromoteToAdmin(fx.desdemona, fx.polonius); err != nil {
		tt.Fatal(err)
	}
	if fx.polonius.Role != t.RoleAdmin || fx.fake.User(fx.polonius.Uid()).Role != t.RoleAdmin {
		tt.Errorf("Role was not changed: %v", fx.fake.User(fx.polonius.Uid()).Role)
	}
	if fx.polonius.IsGuest() {
		tt.Error("Admin must not be a guest")
	}

	events := sink.drain()
	if len(events) != 1 || events[0].Kind != notify.KindRealmUser || events[0].Op != notify.OpUpdate {
		tt.Fatalf("Expected one realm_user/update event, got %v", events)
	}
	person := events[0].Payload["person"].(map[string]interface{})
	if person["user_id"] != fx.polonius.Uid() || person["role"] != "admin" {
		tt.Errorf("Unexpected payload %v", person)
	}
	if len(events[0].Users) != 5 {
		tt.Errorf("Expected the event to go to all active users, got %v", events[0].Users)
	}
	if diff := cmp.Diff([]string{cache.UserProfileKey(fx.polonius.Uid())}, fx.keys.keys); diff != "" {
		tt.Errorf("Invalidated keys mismatch (-want +got):\n%s", diff)
	}

	if err := DemoteToGuest(fx.iago, fx.hamlet); err != nil {
		tt.Fatal(err)
	}
	if err := ChangeToMember(fx.iago, fx.hamlet); err != nil {
		tt.Fatal(err)
	}
	if fx.fake.User(fx.hamlet.Uid()).Role != t.RoleMember {
		tt.Error("Expected hamlet to be a member again")
	}

	// Setting the current role is a no-op.
	sink.drain()
	if err := ChangeToMember(fx.iago, fx.hamlet); err != nil {
		tt.Fatal(err)
	}
	if events := sink.drain(); len(events) != 0 {
		tt.Errorf("No-op change must not emit events, got %d", len(events))
	}
}

func TestChangeRoleErrors(tt *testing.T) {
	fx := setup(tt)

	if err := PromoteToAdmin(fx.hamlet, fx.polonius); userMsg(err) != "Must be an organization administrator" {
		tt.Errorf("Unexpected error %v", err)
	}
	if err := ChangeRole(fx.iago, fx.hamlet, t.Role(300)); userMsg(err) != "Invalid role" {
		tt.Errorf("Unexpected error %v", err)
	}
	if err := PromoteToOwner(fx.iago, fx.hamlet); userMsg(err) != "Only organization owners can add or remove the owner permission." {
		tt.Errorf("Unexpected error %v", err)
	}

	// desdemona is the only human owner.
	if err := ChangeToMember(fx.desdemona, fx.desdemona); userMsg(err) != "The owner permission cannot be removed from the only organization owner." {
		tt.Errorf("Unexpected error %v", err)
	}

	if err := PromoteToOwner(fx.desdemona, fx.iago); err != nil {
		tt.Fatal(err)
	}
	// An administrator cannot demote an owner even when there are several.
	admin := fx.fake.AddUser(&t.User{Realm: fx.iago.Realm, Email: "aaron@example.com", Role: t.RoleAdmin, IsActive: true})
	if err := ChangeToMember(admin, fx.desdemona); userMsg(err) != "Only organization owners can add or remove the owner permission." {
		tt.Errorf("Unexpected error %v", err)
	}
	if err := ChangeToMember(fx.iago, fx.desdemona); err != nil {
		tt.Errorf("Owner with another owner present must be demotable, got %v", err)
	}
	if err := ChangeToMember(fx.iago, fx.iago); userMsg(err) != "The owner permission cannot be removed from the only organization owner." {
		tt.Errorf("Unexpected error %v", err)
	}

	stranger := &t.User{Realm: fx.iago.Realm + 1, Role: t.RoleMember}
	if err := PromoteToAdmin(fx.iago, stranger); !errors.Is(err, t.ErrNotFound) {
		tt.Errorf("Expected not found for a user of another realm, got %v", err)
	}
}

func TestRoleQueries(tt *testing.T) {
	fx := setup(tt)

	owners, err := HumanOwnerIds(fx.desdemona.Realm)
	if err != nil {
		tt.Fatal(err)
	}
	if diff := cmp.Diff([]t.Uid{fx.desdemona.Uid()}, owners); diff != "" {
		tt.Errorf("HumanOwnerIds mismatch (-want +got):\n%s", diff)
	}

	admins, err := AdminUsersAndBots(fx.desdemona.Realm)
	if err != nil {
		tt.Fatal(err)
	}
	want := t.NewUidSlice(fx.desdemona.Uid(), fx.iago.Uid(), fx.bot.Uid())
	if diff := cmp.Diff([]t.Uid(want), admins); diff != "" {
		tt.Errorf("AdminUsersAndBots mismatch (-want +got):\n%s", diff)
	}
}
