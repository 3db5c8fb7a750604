package streams

import (
	"strings"

	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

// StreamSpec describes a stream to create or look up.
type StreamSpec struct {
	Name        string
	Description string
	// Color of the creator's subscription. Empty to pick one automatically.
	Color      string
	InviteOnly bool
	// Zero means PostEveryone.
	PostPolicy t.PostPolicy
	// Nil means the default for the stream's visibility.
	HistoryPublicToSubscribers *bool
}

// DefaultHistoryPublicToSubscribers derives the history policy of a new stream.
func DefaultHistoryPublicToSubscribers(realm *t.Realm, inviteOnly bool, historyPublicToSubscribers *bool) bool {
	if realm.IsZephyrMirrorRealm {
		// Compatibility realms never share history.
		return false
	}
	if !inviteOnly {
		return true
	}
	if historyPublicToSubscribers == nil {
		return false
	}
	return *historyPublicToSubscribers
}

// GetOrCreateStream returns the stream of the realm with the given case-insensitive name, creating it
// if necessary. Concurrent calls with the same name produce one stream; only one caller gets created=true.
func GetOrCreateStream(realm *t.Realm, spec StreamSpec) (*t.Stream, bool, error) {
	policy := spec.PostPolicy
	if policy == 0 {
		policy = t.PostEveryone
	}
	if !policy.IsValid() {
		return nil, false, t.NewUserError(t.ErrMalformed, "Invalid stream_post_policy")
	}
	desc, err := cleanDescription(spec.Description)
	if err != nil {
		return nil, false, err
	}

	stream := &t.Stream{
		Realm:           realm.Uid(),
		Name:            strings.TrimSpace(spec.Name),
		Description:     desc,
		InviteOnly:      spec.InviteOnly,
		PostPolicy:      policy,
		IsInZephyrRealm: realm.IsZephyrMirrorRealm,
	}
	stream.HistoryPublicToSubscribers = DefaultHistoryPublicToSubscribers(realm, spec.InviteOnly,
		spec.HistoryPublicToSubscribers)

	created, err := store.Streams.GetOrCreate(stream)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return stream, false, nil
	}

	visibility := "public"
	if !stream.IsPublic() {
		visibility = "private"
	}
	metrics.StreamsCreated.WithLabelValues(visibility).Inc()

	if err := sendStreamCreationEvent(stream); err != nil {
		// The stream is already committed.
		logs.Warn.Println("streams: failed to notify about new stream", stream.Name, err)
	}
	return stream, true, nil
}

// sendStreamCreationEvent notifies everyone who can see the new stream: all non-guest users for public
// streams, administrators for private ones. Subscribers learn about private streams when subscribed.
func sendStreamCreationEvent(stream *t.Stream) error {
	roles := []t.Role{t.RoleOwner, t.RoleAdmin}
	if stream.IsPublic() {
		roles = append(roles, t.RoleMember)
	}
	users, err := store.Users.GetActiveIds(stream.Realm, roles, true)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}
	ev := notify.NewEvent(notify.KindStream, notify.OpCreate, stream.Realm, users)
	ev.Stream = stream.Uid()
	ev.Payload = streamPayload(stream)
	notify.Send(ev)
	return nil
}

func streamPayload(stream *t.Stream) map[string]interface{} {
	return map[string]interface{}{
		"stream_id":                     stream.Uid(),
		"name":                          stream.Name,
		"description":                   stream.Description,
		"invite_only":                   stream.InviteOnly,
		"stream_post_policy":            int(stream.PostPolicy),
		"history_public_to_subscribers": stream.HistoryPublicToSubscribers,
	}
}

// CreateStreams gets or creates each stream. Streams which already existed, including those created
// concurrently by someone else, are returned in existing.
func CreateStreams(realm *t.Realm, specs []StreamSpec) (created, existing []*t.Stream, err error) {
	for _, spec := range specs {
		stream, isNew, err := GetOrCreateStream(realm, spec)
		if err != nil {
			return nil, nil, err
		}
		if isNew {
			created = append(created, stream)
		} else {
			existing = append(existing, stream)
		}
	}
	return created, existing, nil
}

// ListToStreams converts stream specs into streams of the actor's realm. All names are validated before
// any storage access. Missing streams are created when autocreate is set and the actor may create streams.
func ListToStreams(specs []StreamSpec, actor *t.User, autocreate bool) (existing, created []*t.Stream, err error) {
	specs = append([]StreamSpec(nil), specs...)
	keys := make([]string, 0, len(specs))
	names := make([]string, 0, len(specs))
	for i := range specs {
		specs[i].Name = strings.TrimSpace(specs[i].Name)
		if err := CheckStreamName(specs[i].Name); err != nil {
			return nil, nil, err
		}
		keys = append(keys, common.StreamNameKey(specs[i].Name))
		names = append(names, specs[i].Name)
	}

	found, err := store.Streams.GetByNames(actor.Realm, names)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(specs))
	var missing []StreamSpec
	for i, spec := range specs {
		if seen[keys[i]] {
			continue
		}
		seen[keys[i]] = true
		if stream := found[keys[i]]; stream != nil {
			existing = append(existing, stream)
		} else {
			missing = append(missing, spec)
		}
	}

	if len(missing) == 0 {
		return existing, nil, nil
	}

	realm, err := store.Realms.Get(actor.Realm)
	if err != nil {
		return nil, nil, err
	}
	if realm == nil {
		return nil, nil, t.ErrInternal
	}

	if !actor.CanCreateStreams(realm, timeNow()) {
		return nil, nil, t.NewUserError(t.ErrPermissionDenied, "User cannot create streams.")
	}
	if !autocreate {
		missingNames := make([]string, len(missing))
		for i := range missing {
			missingNames[i] = missing[i].Name
		}
		return nil, nil, t.NewUserError(t.ErrNotFound, "Stream(s) (%s) do not exist", strings.Join(missingNames, ", "))
	}

	created, dups, err := CreateStreams(realm, missing)
	if err != nil {
		return nil, nil, err
	}
	for _, stream := range dups {
		logs.Info.Printf("streams: stream '%s' created concurrently, using existing", stream.Name)
	}
	return append(existing, dups...), created, nil
}

// FilterStreamAuthorization splits streams into those the actor may subscribe to and the rest.
// Subscriptions are loaded in a single query.
func FilterStreamAuthorization(actor *t.User, streams []*t.Stream) (authorized, unauthorized []*t.Stream, err error) {
	if len(streams) == 0 {
		return nil, nil, nil
	}

	recipients := make([]t.Uid, len(streams))
	for i, stream := range streams {
		recipients[i] = stream.Recipient
	}
	subs, err := store.Subs.ForUser(actor.Uid(), recipients)
	if err != nil {
		return nil, nil, err
	}
	subscribed := make(t.UidSlice, 0, len(subs))
	for i := range subs {
		if subs[i].Active {
			subscribed.Add(subs[i].Recipient)
		}
	}

	for _, stream := range streams {
		if stream.Realm == actor.Realm && (subscribed.Contains(stream.Recipient) ||
			(!stream.InviteOnly && !actor.IsGuest())) {
			authorized = append(authorized, stream)
		} else {
			unauthorized = append(unauthorized, stream)
		}
	}
	return authorized, unauthorized, nil
}
