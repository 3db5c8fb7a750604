package streams

import (
	"github.com/relaynet/streams/server/access"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

// PropertyChange is a request to change one property of the actor's subscription to a stream.
type PropertyChange struct {
	StreamId t.Uid       `json:"stream_id"`
	Property string      `json:"property"`
	Value    interface{} `json:"value"`
}

// propertyValidator checks the value and converts it into field updates of the subscription.
type propertyValidator func(name string, value interface{}) (map[string]interface{}, error)

func checkBool(field string, invert bool) propertyValidator {
	return func(name string, value interface{}) (map[string]interface{}, error) {
		val, ok := value.(bool)
		if !ok {
			return nil, t.NewUserError(t.ErrMalformed, "%s is not a boolean", name)
		}
		if invert {
			val = !val
		}
		return map[string]interface{}{field: val}, nil
	}
}

// checkOverride is checkBool for the tri-state notification overrides.
func checkOverride(field string) propertyValidator {
	return func(name string, value interface{}) (map[string]interface{}, error) {
		val, ok := value.(bool)
		if !ok {
			return nil, t.NewUserError(t.ErrMalformed, "%s is not a boolean", name)
		}
		return map[string]interface{}{field: t.BoolPtr(val)}, nil
	}
}

func checkColor(name string, value interface{}) (map[string]interface{}, error) {
	val, ok := value.(string)
	if !ok {
		return nil, t.NewUserError(t.ErrMalformed, "%s is not a string", name)
	}
	if !hexColor.MatchString(val) {
		return nil, t.NewUserError(t.ErrMalformed, "%s is not a valid hex color code", name)
	}
	return map[string]interface{}{"Color": val}, nil
}

// subscriptionProperties is the complete list of externally settable subscription properties.
var subscriptionProperties = map[string]propertyValidator{
	"color":                    checkColor,
	"in_home_view":             checkBool("IsMuted", true),
	"is_muted":                 checkBool("IsMuted", false),
	"pin_to_top":               checkBool("PinToTop", false),
	"desktop_notifications":    checkOverride("DesktopNotifications"),
	"audible_notifications":    checkOverride("AudibleNotifications"),
	"push_notifications":       checkOverride("PushNotifications"),
	"email_notifications":      checkOverride("EmailNotifications"),
	"wildcard_mentions_notify": checkOverride("WildcardMentionsNotify"),
}

// IsSubscriptionProperty checks if the name is a settable subscription property.
func IsSubscriptionProperty(name string) bool {
	_, ok := subscriptionProperties[name]
	return ok
}

type pendingChange struct {
	change    PropertyChange
	recipient t.Uid
	update    map[string]interface{}
}

// UpdateSubscriptionProperties changes properties of the actor's subscriptions. The whole batch
// is validated before anything is written. Returns the applied changes.
func UpdateSubscriptionProperties(actor *t.User, changes []PropertyChange) ([]PropertyChange, error) {
	pending := make([]pendingChange, 0, len(changes))
	for _, change := range changes {
		validate, ok := subscriptionProperties[change.Property]
		if !ok {
			return nil, t.NewUserError(t.ErrMalformed, "Unknown subscription property: %s", change.Property)
		}

		_, rcpt, sub, err := access.AccessStreamById(actor, change.StreamId, false)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, t.NewUserError(t.ErrMalformed, "Not subscribed to stream id %s", change.StreamId.String())
		}

		update, err := validate(change.Property, change.Value)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pendingChange{change: change, recipient: rcpt.Uid(), update: update})
	}

	applied := make([]PropertyChange, 0, len(pending))
	for _, pc := range pending {
		if err := store.Subs.Update(actor.Uid(), pc.recipient, pc.update); err != nil {
			return applied, err
		}
		applied = append(applied, pc.change)

		ev := notify.NewEvent(notify.KindSubscription, notify.OpUpdate, actor.Realm, []t.Uid{actor.Uid()})
		ev.Stream = pc.change.StreamId
		ev.Payload = map[string]interface{}{
			"stream_id": pc.change.StreamId,
			"property":  pc.change.Property,
			"value":     pc.change.Value,
		}
		notify.Send(ev)
	}
	return applied, nil
}
