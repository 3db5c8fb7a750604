package streams

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/relaynet/streams/server/notify"
)

func TestUpdateSubscriptionProperties(tt *testing.T) {
	fx := setup(tt)
	gid := fx.general.Uid()

	changes := []PropertyChange{
		{StreamId: gid, Property: "in_home_view", Value: false},
		{StreamId: gid, Property: "push_notifications", Value: false},
		{StreamId: gid, Property: "color", Value: "#c2c2c2"},
		{StreamId: gid, Property: "pin_to_top", Value: true},
		{StreamId: gid, Property: "wildcard_mentions_notify", Value: true},
	}
	applied, err := UpdateSubscriptionProperties(fx.member, changes)
	if err != nil {
		tt.Fatal(err)
	}
	if diff := cmp.Diff(changes, applied); diff != "" {
		tt.Errorf("Applied changes mismatch (-want +got):\n%s", diff)
	}

	sub := fx.fake.Subscription(fx.member.Uid(), fx.general.Recipient)
	if !sub.IsMuted || !sub.PinToTop || sub.Color != "#c2c2c2" {
		tt.Errorf("Unexpected subscription %+v", sub)
	}
	if sub.PushNotifications == nil || *sub.PushNotifications {
		tt.Error("Push override must be explicitly false")
	}
	if sub.WildcardMentionsNotify == nil || !*sub.WildcardMentionsNotify {
		tt.Error("Wildcard override must be explicitly true")
	}
	if sub.EmailNotifications != nil {
		tt.Error("Email override must stay unset")
	}

	updates := eventsOf(capture.drain(), notify.KindSubscription, notify.OpUpdate)
	if len(updates) != len(changes) {
		tt.Fatalf("Expected %d events, got %d", len(changes), len(updates))
	}
	if updates[0].Payload["property"] != "in_home_view" || updates[0].Users[0] != fx.member.Uid() {
		tt.Errorf("Unexpected event %+v", updates[0])
	}

	// is_muted is the inverse of in_home_view.
	if _, err := UpdateSubscriptionProperties(fx.member, []PropertyChange{{StreamId: gid, Property: "is_muted", Value: false}}); err != nil {
		tt.Fatal(err)
	}
	if fx.fake.Subscription(fx.member.Uid(), fx.general.Recipient).IsMuted {
		tt.Error("Expected unmuted subscription")
	}
}

func TestUpdateSubscriptionPropertiesErrors(tt *testing.T) {
	fx := setup(tt)
	gid := fx.general.Uid()

	cases := []struct {
		change PropertyChange
		want   string
	}{
		{PropertyChange{StreamId: gid, Property: "volume", Value: true}, "Unknown subscription property: volume"},
		{PropertyChange{StreamId: gid, Property: "pin_to_top", Value: "yes"}, "pin_to_top is not a boolean"},
		{PropertyChange{StreamId: gid, Property: "color", Value: "#zzzzzz"}, "color is not a valid hex color code"},
		{PropertyChange{StreamId: gid, Property: "color", Value: "#1234567"}, "color is not a valid hex color code"},
		{PropertyChange{StreamId: fx.announce.Uid(), Property: "pin_to_top", Value: true},
			"Not subscribed to stream id " + fx.announce.Uid().String()},
		{PropertyChange{StreamId: fx.secret.Uid(), Property: "pin_to_top", Value: true}, "Invalid stream id"},
	}
	for _, tc := range cases {
		// A valid change precedes the bad one: nothing may be written.
		batch := []PropertyChange{{StreamId: gid, Property: "pin_to_top", Value: true}, tc.change}
		_, err := UpdateSubscriptionProperties(fx.member, batch)
		if got := userMsg(err); got != tc.want {
			tt.Errorf("%s: expected '%s', got '%s'", tc.change.Property, tc.want, got)
		}
		if fx.fake.Subscription(fx.member.Uid(), fx.general.Recipient).PinToTop {
			tt.Fatalf("%s: batch was partially applied", tc.change.Property)
		}
	}
	if evs := capture.drain(); len(evs) != 0 {
		tt.Errorf("Failed batches must not send events, got %d", len(evs))
	}

	for _, name := range []string{"color", "in_home_view", "is_muted", "desktop_notifications", "audible_notifications",
		"push_notifications", "email_notifications", "pin_to_top", "wildcard_mentions_notify"} {
		if !IsSubscriptionProperty(name) {
			tt.Errorf("%s must be a subscription property", name)
		}
	}
	if IsSubscriptionProperty("Color") {
		tt.Error("Property names are case-sensitive")
	}
}
