package streams

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relaynet/streams/server/access"
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store"
	"github.com/relaynet/streams/server/store/mock_store"
	t "github.com/relaynet/streams/server/store/types"
)

var testNow = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

// captureHandler collects notification events sent during a test.
type captureHandler struct {
	ch chan *notify.Event
}

func (h *captureHandler) Init(json.RawMessage) (bool, error) { return true, nil }

func (h *captureHandler) IsReady() bool { return true }

func (h *captureHandler) Events() chan<- *notify.Event { return h.ch }

func (h *captureHandler) Stop() {}

// drain returns the events received so far.
func (h *captureHandler) drain() []*notify.Event {
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

var capture = &captureHandler{ch: make(chan *notify.Event, 4096)}

func init() {
	notify.Register("capture", capture)
}

func eventsOf(events []*notify.Event, kind notify.Kind, op string) []*notify.Event {
	var out []*notify.Event
	for _, ev := range events {
		if ev.Kind == kind && ev.Op == op {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	fake  *mock_store.Fake
	realm *t.Realm

	owner  *t.User
	admin  *t.User
	member *t.User
	newbie *t.User
	guest  *t.User
	bot    *t.User

	general  *t.Stream
	secret   *t.Stream
	announce *t.Stream
}

func newUser(fake *mock_store.Fake, realm *t.Realm, name string, role t.Role, daysAgo int) *t.User {
	u := &t.User{
		Realm:    realm.Uid(),
		Email:    strings.ToLower(name) + "@example.com",
		FullName: name,
		Role:     role,
		IsActive: true,
	}
	u.CreatedAt = testNow.AddDate(0, 0, -daysAgo)
	return fake.AddUser(u)
}

func setup(tt *testing.T) *fixture {
	fake := mock_store.NewFake()
	tt.Cleanup(fake.Install())

	timeNow = func() time.Time { return testNow }
	tt.Cleanup(func() { timeNow = time.Now })

	if err := access.Init(json.RawMessage(`{"notification_bot": "notification-bot@system.example.com"}`)); err != nil {
		tt.Fatal(err)
	}
	tt.Cleanup(func() { access.Init(nil) })

	fx := &fixture{fake: fake}
	fx.realm = fake.AddRealm(&t.Realm{
		Name:                   "Acme",
		WaitingPeriodThreshold: 10,
		CreateStreamPolicy:     t.PolicyMembersOnly,
		InviteToStreamPolicy:   t.PolicyMembersOnly,
	})
	fx.owner = newUser(fake, fx.realm, "Olivia", t.RoleOwner, 400)
	fx.admin = newUser(fake, fx.realm, "Aaron", t.RoleAdmin, 300)
	fx.member = newUser(fake, fx.realm, "Hamlet", t.RoleMember, 200)
	fx.newbie = newUser(fake, fx.realm, "Newbie", t.RoleMember, 2)
	fx.guest = newUser(fake, fx.realm, "Polonius", t.RoleGuest, 100)
	fx.bot = newUser(fake, fx.realm, "Helper", t.RoleMember, 100)
	fx.bot.BotType = t.BotDefault
	fx.bot.BotOwner = fx.member.Uid()
	fake.AddUser(fx.bot)

	fx.general = fake.AddStream(&t.Stream{Realm: fx.realm.Uid(), Name: "general", PostPolicy: t.PostEveryone,
		HistoryPublicToSubscribers: true})
	fx.secret = fake.AddStream(&t.Stream{Realm: fx.realm.Uid(), Name: "secret", InviteOnly: true,
		PostPolicy: t.PostEveryone})
	fx.announce = fake.AddStream(&t.Stream{Realm: fx.realm.Uid(), Name: "announce", PostPolicy: t.PostEveryone,
		HistoryPublicToSubscribers: true})
	fx.realm.NotificationsStream = fx.announce.Uid()
	fake.AddRealm(fx.realm)

	fake.Subscribe(fx.owner, fx.secret)
	fake.Subscribe(fx.member, fx.general)

	capture.drain()
	return fx
}

func userMsg(err error) string {
	var ue *t.UserError
	if errors.As(err, &ue) {
		return ue.Msg
	}
	if err == nil {
		return ""
	}
	return "not a user error: " + err.Error()
}

func TestCheckStreamName(tt *testing.T) {
	// Sixty user-perceived characters, each made of two code points.
	decomposed := strings.Repeat("é", 60)

	cases := []struct {
		name string
		want string
	}{
		{"general", ""},
		{decomposed, ""},
		{"", "Invalid stream name ''"},
		{"   ", "Invalid stream name '   '"},
		{strings.Repeat("a", 61), "Stream name too long (limit: 60 characters)."},
		{decomposed + "e", "Stream name too long (limit: 60 characters)."},
		{"bad\x00name", "Stream name 'bad\x00name' contains NULL (0x00) characters."},
	}
	for _, tc := range cases {
		err := CheckStreamName(tc.name)
		if got := userMsg(err); got != tc.want {
			tt.Errorf("CheckStreamName(%q): expected '%s', got '%s'", tc.name, tc.want, got)
		}
		if err != nil && !errors.Is(err, t.ErrMalformed) {
			tt.Errorf("CheckStreamName(%q): wrong error kind %v", tc.name, err)
		}
	}
}

func TestCheckForExactlyOneStreamArg(tt *testing.T) {
	if got := userMsg(CheckForExactlyOneStreamArg(t.ZeroUid, "")); got != "Please supply 'stream'." {
		tt.Errorf("Unexpected error '%s'", got)
	}
	if got := userMsg(CheckForExactlyOneStreamArg(t.Uid(5), "general")); got != "Please choose one: 'stream' or 'stream_id'." {
		tt.Errorf("Unexpected error '%s'", got)
	}
	if err := CheckForExactlyOneStreamArg(t.Uid(5), ""); err != nil {
		tt.Error(err)
	}
	if err := CheckForExactlyOneStreamArg(t.ZeroUid, "general"); err != nil {
		tt.Error(err)
	}
}

func TestCheckStreamNameAvailable(tt *testing.T) {
	fx := setup(tt)
	if got := userMsg(CheckStreamNameAvailable(fx.realm.Uid(), "GENERAL")); got != "Stream name 'GENERAL' is already taken." {
		tt.Errorf("Unexpected error '%s'", got)
	}
	if err := CheckStreamNameAvailable(fx.realm.Uid(), "brand new"); err != nil {
		tt.Error(err)
	}
}

func TestDefaultHistoryPublicToSubscribers(tt *testing.T) {
	normal := &t.Realm{}
	zephyr := &t.Realm{IsZephyrMirrorRealm: true}
	yes, no := t.BoolPtr(true), t.BoolPtr(false)

	cases := []struct {
		realm      *t.Realm
		inviteOnly bool
		history    *bool
		want       bool
	}{
		{normal, false, nil, true},
		{normal, false, no, true},
		{normal, true, nil, false},
		{normal, true, yes, true},
		{normal, true, no, false},
		{zephyr, false, nil, false},
		{zephyr, true, yes, false},
	}
	for i, tc := range cases {
		if got := DefaultHistoryPublicToSubscribers(tc.realm, tc.inviteOnly, tc.history); got != tc.want {
			tt.Errorf("%d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestGetOrCreateStream(tt *testing.T) {
	fx := setup(tt)
	before := testutil.ToFloat64(metrics.StreamsCreated.WithLabelValues("public"))

	stream, created, err := GetOrCreateStream(fx.realm, StreamSpec{Name: "  Denmark ", Description: "line one\nline two"})
	if err != nil {
		tt.Fatal(err)
	}
	if !created {
		tt.Fatal("Expected the stream to be created")
	}
	if stream.Name != "Denmark" || stream.Description != "line one line two" || stream.PostPolicy != t.PostEveryone ||
		!stream.HistoryPublicToSubscribers || stream.Recipient.IsZero() {
		tt.Errorf("Unexpected stream %+v", stream)
	}
	if after := testutil.ToFloat64(metrics.StreamsCreated.WithLabelValues("public")); after-before != 1 {
		tt.Errorf("Expected one public stream counted, got %v", after-before)
	}

	creates := eventsOf(capture.drain(), notify.KindStream, notify.OpCreate)
	if len(creates) != 1 {
		tt.Fatalf("Expected one stream/create event, got %d", len(creates))
	}
	// Non-guest users including bots.
	want := t.NewUidSlice(fx.owner.Uid(), fx.admin.Uid(), fx.member.Uid(), fx.newbie.Uid(), fx.bot.Uid())
	if diff := cmp.Diff([]t.Uid(want), creates[0].Users); diff != "" {
		tt.Errorf("Public stream audience mismatch (-want +got):\n%s", diff)
	}

	again, created, err := GetOrCreateStream(fx.realm, StreamSpec{Name: "denmark", InviteOnly: true})
	if err != nil {
		tt.Fatal(err)
	}
	if created || again.Uid() != stream.Uid() || again.InviteOnly {
		tt.Errorf("Expected the existing stream, got %+v created=%v", again, created)
	}
	if evs := capture.drain(); len(evs) != 0 {
		tt.Errorf("Unexpected events for existing stream: %d", len(evs))
	}

	private, created, err := GetOrCreateStream(fx.realm, StreamSpec{Name: "board", InviteOnly: true})
	if err != nil || !created {
		tt.Fatalf("Failed to create private stream: %v", err)
	}
	if private.HistoryPublicToSubscribers {
		tt.Error("Private stream history must default to not public")
	}
	creates = eventsOf(capture.drain(), notify.KindStream, notify.OpCreate)
	if len(creates) != 1 {
		tt.Fatalf("Expected one stream/create event, got %d", len(creates))
	}
	want = t.NewUidSlice(fx.owner.Uid(), fx.admin.Uid())
	if diff := cmp.Diff([]t.Uid(want), creates[0].Users); diff != "" {
		tt.Errorf("Private stream audience mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := GetOrCreateStream(fx.realm, StreamSpec{Name: "x", PostPolicy: t.PostPolicy(9)}); userMsg(err) != "Invalid stream_post_policy" {
		tt.Errorf("Expected post policy error, got %v", err)
	}
}

func TestGetOrCreateStreamZephyr(tt *testing.T) {
	fx := setup(tt)
	fx.realm.IsZephyrMirrorRealm = true

	stream, _, err := GetOrCreateStream(fx.realm, StreamSpec{Name: "zephyr", HistoryPublicToSubscribers: t.BoolPtr(true)})
	if err != nil {
		tt.Fatal(err)
	}
	if !stream.IsInZephyrRealm || stream.HistoryPublicToSubscribers || stream.IsPublic() {
		tt.Errorf("Unexpected compatibility stream %+v", stream)
	}
}

func TestListToStreamsValidatesFirst(tt *testing.T) {
	ctrl := gomock.NewController(tt)
	streams := mock_store.NewMockStreamsObjMapperInterface(ctrl)
	realms := mock_store.NewMockRealmsObjMapperInterface(ctrl)
	oldStreams, oldRealms := store.Streams, store.Realms
	store.Streams, store.Realms = streams, realms
	defer func() { store.Streams, store.Realms = oldStreams, oldRealms }()

	actor := &t.User{Realm: 1, Role: t.RoleAdmin, IsActive: true}
	// No storage calls are expected: the controller fails the test on any.
	_, _, err := ListToStreams([]StreamSpec{{Name: "fine"}, {Name: strings.Repeat("x", 61)}}, actor, true)
	if userMsg(err) != "Stream name too long (limit: 60 characters)." {
		tt.Errorf("Unexpected error %v", err)
	}
}

func TestListToStreams(tt *testing.T) {
	fx := setup(tt)

	existing, created, err := ListToStreams([]StreamSpec{{Name: " General"}, {Name: "general"}}, fx.member, false)
	if err != nil {
		tt.Fatal(err)
	}
	if len(existing) != 1 || existing[0].Uid() != fx.general.Uid() || len(created) != 0 {
		tt.Errorf("Expected only 'general', got %v / %v", existing, created)
	}

	_, _, err = ListToStreams([]StreamSpec{{Name: "general"}, {Name: "new one"}, {Name: "new two"}}, fx.member, false)
	if got := userMsg(err); got != "Stream(s) (new one, new two) do not exist" {
		tt.Errorf("Unexpected error '%s'", got)
	}
	if !errors.Is(err, t.ErrNotFound) {
		tt.Errorf("Expected not found kind, got %v", err)
	}

	// The privilege check comes first.
	_, _, err = ListToStreams([]StreamSpec{{Name: "new one"}}, fx.guest, false)
	if got := userMsg(err); got != "User cannot create streams." {
		tt.Errorf("Unexpected error '%s'", got)
	}

	existing, created, err = ListToStreams([]StreamSpec{{Name: "general"}, {Name: "new one"}}, fx.member, true)
	if err != nil {
		tt.Fatal(err)
	}
	if len(existing) != 1 || len(created) != 1 || created[0].Name != "new one" {
		tt.Errorf("Unexpected result %v / %v", existing, created)
	}
	if len(fx.fake.Streams(fx.realm.Uid())) != 4 {
		tt.Error("Expected exactly one new stream")
	}
}

func TestListToStreamsRace(tt *testing.T) {
	fx := setup(tt)

	// Another request creates the stream between the lookup and the creation.
	fx.fake.BeforeGetOrCreate = func(stream *t.Stream) {
		fx.fake.BeforeGetOrCreate = nil
		fx.fake.AddStream(&t.Stream{Realm: stream.Realm, Name: "Racy", PostPolicy: t.PostEveryone})
	}

	existing, created, err := ListToStreams([]StreamSpec{{Name: "racy"}}, fx.member, true)
	if err != nil {
		tt.Fatal(err)
	}
	if len(created) != 0 || len(existing) != 1 || existing[0].Name != "Racy" {
		tt.Errorf("Expected the racer's stream in existing, got %v / %v", existing, created)
	}
}

func TestListToStreamsConcurrent(tt *testing.T) {
	fx := setup(tt)

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]t.Uid, workers)
	createdBy := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			existing, created, err := ListToStreams([]StreamSpec{{Name: "new-stream"}}, fx.member, true)
			errs[i] = err
			if len(created) == 1 {
				createdBy[i] = true
				ids[i] = created[0].Uid()
			} else if len(existing) == 1 {
				ids[i] = existing[0].Uid()
			}
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			tt.Fatalf("%d: %v", i, errs[i])
		}
		if ids[i] != ids[0] || ids[i].IsZero() {
			tt.Errorf("%d: got stream %v, expected %v", i, ids[i], ids[0])
		}
		if createdBy[i] {
			creators++
		}
	}
	if creators != 1 {
		tt.Errorf("Expected exactly one creator, got %d", creators)
	}
}

func TestFilterStreamAuthorization(tt *testing.T) {
	ctrl := gomock.NewController(tt)
	subs := mock_store.NewMockSubsObjMapperInterface(ctrl)
	oldSubs := store.Subs
	store.Subs = subs
	defer func() { store.Subs = oldSubs }()

	public := &t.Stream{Realm: 1, Name: "public", Recipient: 11}
	mine := &t.Stream{Realm: 1, Name: "mine", InviteOnly: true, Recipient: 12}
	theirs := &t.Stream{Realm: 1, Name: "theirs", InviteOnly: true, Recipient: 13}
	foreign := &t.Stream{Realm: 2, Name: "foreign", Recipient: 14}
	all := []*t.Stream{public, mine, theirs, foreign}

	member := &t.User{Realm: 1, Role: t.RoleMember}
	member.SetUid(100)
	guest := &t.User{Realm: 1, Role: t.RoleGuest}
	guest.SetUid(200)

	// One query per call.
	subs.EXPECT().ForUser(member.Uid(), []t.Uid{11, 12, 13, 14}).
		Return([]t.Subscription{{User: 100, Recipient: 12, Active: true}}, nil).Times(1)
	subs.EXPECT().ForUser(guest.Uid(), []t.Uid{11, 12, 13, 14}).
		Return([]t.Subscription{{User: 200, Recipient: 12, Active: true}}, nil).Times(1)

	names := func(streams []*t.Stream) []string {
		var out []string
		for _, s := range streams {
			out = append(out, s.Name)
		}
		return out
	}

	ok, bad, err := FilterStreamAuthorization(member, all)
	if err != nil {
		tt.Fatal(err)
	}
	if diff := cmp.Diff([]string{"public", "mine"}, names(ok)); diff != "" {
		tt.Errorf("Member authorized mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"theirs", "foreign"}, names(bad)); diff != "" {
		tt.Errorf("Member unauthorized mismatch (-want +got):\n%s", diff)
	}

	ok, bad, err = FilterStreamAuthorization(guest, all)
	if err != nil {
		tt.Fatal(err)
	}
	if diff := cmp.Diff([]string{"mine"}, names(ok)); diff != "" {
		tt.Errorf("Guest authorized mismatch (-want +got):\n%s", diff)
	}
	if len(bad) != 3 {
		tt.Errorf("Expected three unauthorized streams for guest, got %v", names(bad))
	}
}

func TestInit(tt *testing.T) {
	saved := globals
	defer func() { globals = saved }()

	if err := Init(json.RawMessage(`{"max_name_length": 10, "new_stream_announce_topic": "hello"}`)); err != nil {
		tt.Fatal(err)
	}
	if globals.MaxNameLength != 10 || globals.NewStreamAnnounceTopic != "hello" ||
		globals.MaxDescriptionLength != defaultMaxDescriptionLength {
		tt.Errorf("Unexpected config %+v", globals)
	}
	if got := userMsg(CheckStreamName("eleven char")); got != "Stream name too long (limit: 10 characters)." {
		tt.Errorf("Unexpected error '%s'", got)
	}
	if err := Init(json.RawMessage(`{"max_name_length": -1}`)); err == nil {
		tt.Error("Expected error for negative limit")
	}
}
