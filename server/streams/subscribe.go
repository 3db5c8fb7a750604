package streams

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relaynet/streams/server/access"
	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

// Colors assigned to new subscriptions, in order of preference.
var streamAssignmentColors = []string{
	"#76ce90", "#fae589", "#a6c7e5", "#e79ab5",
	"#bfd56f", "#f4ae55", "#b0a5fd", "#addfe5",
	"#f5ce6e", "#c2726a", "#94c849", "#bd86e5",
	"#ee7e4a", "#a6dcbf", "#95a5fd", "#53a063",
	"#9987e1", "#e4523d", "#c2c2c2", "#4f8de4",
	"#c6a8ad", "#e7cc4d", "#c8bebf", "#a47462",
}

// pickColor returns the first color not used by any of the user's subscriptions.
func pickColor(used map[string]bool) string {
	for _, color := range streamAssignmentColors {
		if !used[color] {
			return color
		}
	}
	return streamAssignmentColors[len(used)%len(streamAssignmentColors)]
}

// AddOptions are the parameters of AddSubscriptions.
type AddOptions struct {
	// Users to subscribe. Empty means the actor.
	Principals []t.Uid
	// Settings of streams created by the call.
	InviteOnly                 bool
	PostPolicy                 t.PostPolicy
	HistoryPublicToSubscribers *bool
	// Announce newly created streams in the realm notifications stream.
	Announce bool
	// Fail if the actor may not subscribe to one of the existing streams. Otherwise such
	// streams are skipped and reported in AddResult.Unauthorized.
	AuthorizationErrorsFatal bool
}

// AddResult lists stream names keyed by subscriber email.
type AddResult struct {
	Subscribed        map[string][]string
	AlreadySubscribed map[string][]string
	Unauthorized      []string
}

// RemoveResult lists stream names the users were unsubscribed from or were not subscribed to.
type RemoveResult struct {
	Removed    []string
	NotRemoved []string
}

type userStream struct {
	user   *t.User
	stream *t.Stream
}

// AddSubscriptions subscribes the actor or the principals to streams, creating missing streams.
func AddSubscriptions(actor *t.User, specs []StreamSpec, opts AddOptions) (*AddResult, error) {
	if actor.IsGuest() {
		return nil, t.NewUserError(t.ErrPermissionDenied, "Not allowed for guest users")
	}

	specs = append([]StreamSpec(nil), specs...)
	colors := make(map[string]string)
	for i := range specs {
		if specs[i].Color != "" {
			if !hexColor.MatchString(specs[i].Color) {
				return nil, t.NewUserError(t.ErrMalformed, "color is not a valid hex color code")
			}
			colors[common.StreamNameKey(specs[i].Name)] = specs[i].Color
		}
		specs[i].InviteOnly = opts.InviteOnly
		specs[i].PostPolicy = opts.PostPolicy
		specs[i].HistoryPublicToSubscribers = opts.HistoryPublicToSubscribers
	}

	existing, created, err := ListToStreams(specs, actor, true)
	if err != nil {
		return nil, err
	}
	authorized, unauthorized, err := FilterStreamAuthorization(actor, existing)
	if err != nil {
		return nil, err
	}
	if len(unauthorized) > 0 && opts.AuthorizationErrorsFatal {
		return nil, t.NewUserError(t.ErrPermissionDenied, "Unable to access stream (%s).", unauthorized[0].Name)
	}
	// Streams created by the actor are always authorized.
	streams := append(authorized, created...)

	realm, err := store.Realms.Get(actor.Realm)
	if err != nil {
		return nil, err
	}
	if realm == nil {
		return nil, t.ErrInternal
	}

	subscribers := []*t.User{actor}
	if len(opts.Principals) > 0 {
		if realm.IsZephyrMirrorRealm {
			for _, stream := range streams {
				if !stream.InviteOnly {
					return nil, t.NewUserError(t.ErrPermissionDenied,
						"You can only invite other Zephyr mirroring users to private streams.")
				}
			}
		}
		if !actor.CanSubscribeOtherUsers(realm, timeNow()) {
			if realm.InviteToStreamPolicy == t.PolicyAdminsOnly {
				return nil, t.NewUserError(t.ErrPermissionDenied,
					"Only administrators can modify other users' subscriptions.")
			}
			return nil, t.NewUserError(t.ErrPermissionDenied,
				"Your account is too new to modify other users' subscriptions.")
		}
		if subscribers, err = principalsToUsers(actor, opts.Principals); err != nil {
			return nil, err
		}
	}

	subscribed, already, err := bulkAddSubscriptions(streams, subscribers, colors)
	if err != nil {
		return nil, err
	}

	result := &AddResult{
		Subscribed:        make(map[string][]string),
		AlreadySubscribed: make(map[string][]string),
	}
	for _, us := range subscribed {
		result.Subscribed[us.user.Email] = append(result.Subscribed[us.user.Email], us.stream.Name)
	}
	for _, us := range already {
		result.AlreadySubscribed[us.user.Email] = append(result.AlreadySubscribed[us.user.Email], us.stream.Name)
	}
	if !opts.AuthorizationErrorsFatal {
		for _, stream := range unauthorized {
			result.Unauthorized = append(result.Unauthorized, stream.Name)
		}
	}

	if len(opts.Principals) > 0 {
		notifySubscribed(actor, subscribed, created)
	}
	announceCreated(actor, realm, created, opts.Announce)

	return result, nil
}

// principalsToUsers loads the principals in one query. All must be active users of the actor's realm.
func principalsToUsers(actor *t.User, principals []t.Uid) ([]*t.User, error) {
	ids := t.NewUidSlice(principals...)
	found, err := store.Users.GetAll(ids)
	if err != nil {
		return nil, err
	}
	byId := make(map[t.Uid]*t.User, len(found))
	for i := range found {
		byId[found[i].Uid()] = &found[i]
	}

	users := make([]*t.User, 0, len(ids))
	for _, id := range ids {
		user := byId[id]
		if user == nil || user.Realm != actor.Realm || !user.IsActive {
			return nil, t.NewUserError(t.ErrMalformed,
				"User not authorized to execute queries on behalf of '%v'", id.String())
		}
		users = append(users, user)
	}
	return users, nil
}

// bulkAddSubscriptions creates or re-activates subscriptions of each user to each stream.
// colors is keyed by common.StreamNameKey.
func bulkAddSubscriptions(streams []*t.Stream, users []*t.User, colors map[string]string) (subscribed, already []userStream, err error) {
	var subs []*t.Subscription
	added := make(map[t.Uid][]*t.Stream)
	for _, user := range users {
		// All active subscriptions of the user, for both the membership check and the color choice.
		current, err := store.Subs.ForUser(user.Uid(), nil)
		if err != nil {
			return nil, nil, err
		}
		active := make(t.UidSlice, 0, len(current))
		used := make(map[string]bool, len(current))
		for i := range current {
			active.Add(current[i].Recipient)
			if current[i].Color != "" {
				used[current[i].Color] = true
			}
		}

		for _, stream := range streams {
			if active.Contains(stream.Recipient) {
				already = append(already, userStream{user, stream})
				continue
			}
			color := colors[common.StreamNameKey(stream.Name)]
			if color == "" {
				color = pickColor(used)
			}
			used[color] = true
			subs = append(subs, &t.Subscription{
				User:      user.Uid(),
				Recipient: stream.Recipient,
				Active:    true,
				Color:     color,
			})
			subscribed = append(subscribed, userStream{user, stream})
			added[user.Uid()] = append(added[user.Uid()], stream)
		}
	}

	if err := store.Subs.Upsert(subs); err != nil {
		return nil, nil, err
	}

	for _, user := range users {
		streams := added[user.Uid()]
		if len(streams) == 0 {
			continue
		}
		ids := make([]t.Uid, len(streams))
		for i, stream := range streams {
			ids[i] = stream.Uid()
			if !stream.IsPublic() {
				// The user could not see the private stream until now.
				ev := notify.NewEvent(notify.KindStream, notify.OpCreate, stream.Realm, []t.Uid{user.Uid()})
				ev.Stream = stream.Uid()
				ev.Payload = streamPayload(stream)
				notify.Send(ev)
			}
		}
		ev := notify.NewEvent(notify.KindSubscription, notify.OpAdd, user.Realm, []t.Uid{user.Uid()})
		ev.Payload = map[string]interface{}{"stream_ids": ids}
		notify.Send(ev)
	}
	return subscribed, already, nil
}

// notifySubscribed sends a direct message to every human principal other than the actor
// about the existing streams they were subscribed to.
func notifySubscribed(actor *t.User, subscribed []userStream, created []*t.Stream) {
	sender := access.NotificationBotEmail()
	if sender == "" {
		return
	}

	newlyCreated := make(map[t.Uid]bool, len(created))
	for _, stream := range created {
		newlyCreated[stream.Uid()] = true
	}

	names := make(map[t.Uid][]string)
	users := make(map[t.Uid]*t.User)
	var order []t.Uid
	for _, us := range subscribed {
		uid := us.user.Uid()
		if uid == actor.Uid() || us.user.IsBot() || newlyCreated[us.stream.Uid()] {
			continue
		}
		if _, ok := users[uid]; !ok {
			order = append(order, uid)
			users[uid] = us.user
		}
		names[uid] = append(names[uid], us.stream.Name)
	}

	for _, uid := range order {
		notify.Send(notify.NewMessageEvent(actor.Realm, &notify.Message{
			Sender:     sender,
			Recipients: []t.Uid{uid},
			Content:    YouWereSubscribedMessage(actor.FullName, names[uid]),
		}))
	}
}

// announceCreated posts about newly created streams to the realm notifications stream and to the
// new streams themselves.
func announceCreated(actor *t.User, realm *t.Realm, created []*t.Stream, announce bool) {
	sender := access.NotificationBotEmail()
	if sender == "" || len(created) == 0 {
		return
	}
	mention := fmt.Sprintf("@_**%s|%s**", actor.FullName, actor.Uid().String())

	if announce && !realm.NotificationsStream.IsZero() {
		if target, err := store.Streams.Get(realm.NotificationsStream); err == nil && target != nil && !target.Deactivated {
			links := make([]string, len(created))
			for i, stream := range created {
				links[i] = "#**" + stream.Name + "**"
			}
			content := mention + " created a new stream " + links[0] + "."
			if len(created) > 1 {
				content = mention + " created the following streams: " + strings.Join(links, ", ") + "."
			}
			notify.Send(notify.NewMessageEvent(realm.Uid(), &notify.Message{
				Sender:     sender,
				StreamName: target.Name,
				Topic:      globals.NewStreamAnnounceTopic,
				Content:    content,
			}))
		}
	}

	if realm.IsZephyrMirrorRealm {
		return
	}
	for _, stream := range created {
		notify.Send(notify.NewMessageEvent(realm.Uid(), &notify.Message{
			Sender:     sender,
			StreamName: stream.Name,
			Topic:      globals.StreamEventsTopic,
			Content:    "Stream created by " + mention + ".",
		}))
	}
}

// YouWereSubscribedMessage is the text of the notification about being subscribed by someone else.
func YouWereSubscribedMessage(actorName string, streamNames []string) string {
	names := append([]string(nil), streamNames...)
	sort.Strings(names)
	if len(names) == 1 {
		return fmt.Sprintf("@**%s** subscribed you to the stream #**%s**.", actorName, names[0])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "@**%s** subscribed you to the following streams:\n\n", actorName)
	for _, name := range names {
		fmt.Fprintf(&sb, "* #**%s**\n", name)
	}
	return sb.String()
}

// RemoveSubscriptions unsubscribes the actor or the principals from the named streams.
// Removing other users requires administrative rights.
func RemoveSubscriptions(actor *t.User, names []string, principals []t.Uid) (*RemoveResult, error) {
	removingSomeoneElse := len(principals) > 1 || (len(principals) == 1 && principals[0] != actor.Uid())
	if removingSomeoneElse && !actor.IsRealmAdmin() {
		return nil, t.NewUserError(t.ErrPermissionDenied, "This action requires administrative rights")
	}

	specs := make([]StreamSpec, len(names))
	for i, name := range names {
		specs[i].Name = name
	}
	streams, _, err := ListToStreams(specs, actor, false)
	if err != nil {
		return nil, err
	}

	people := []*t.User{actor}
	if len(principals) > 0 {
		if people, err = principalsToUsers(actor, principals); err != nil {
			return nil, err
		}
	}

	recipients := make([]t.Uid, len(streams))
	for i, stream := range streams {
		recipients[i] = stream.Recipient
	}

	result := &RemoveResult{}
	for _, user := range people {
		subs, err := store.Subs.ForUser(user.Uid(), recipients)
		if err != nil {
			return nil, err
		}
		active := make(t.UidSlice, 0, len(subs))
		for i := range subs {
			active.Add(subs[i].Recipient)
		}

		var removed []t.Uid
		var removedIds []t.Uid
		for _, stream := range streams {
			if active.Contains(stream.Recipient) {
				removed = append(removed, stream.Recipient)
				removedIds = append(removedIds, stream.Uid())
				result.Removed = append(result.Removed, stream.Name)
			} else {
				result.NotRemoved = append(result.NotRemoved, stream.Name)
			}
		}
		if len(removed) == 0 {
			continue
		}
		if err := store.Subs.Deactivate(user.Uid(), removed); err != nil {
			return nil, err
		}
		ev := notify.NewEvent(notify.KindSubscription, notify.OpRemove, user.Realm, []t.Uid{user.Uid()})
		ev.Payload = map[string]interface{}{"stream_ids": removedIds}
		notify.Send(ev)
	}
	return result, nil
}

// GetSubscribers returns ids of active subscribers of the stream. Administrators may list
// subscribers of private streams they are not subscribed to.
func GetSubscribers(actor *t.User, streamId t.Uid) ([]t.Uid, error) {
	stream, _, _, err := access.AccessStreamById(actor, streamId, true)
	if err != nil {
		return nil, err
	}
	subs, err := store.Subs.ForRecipient(stream.Recipient)
	if err != nil {
		return nil, err
	}
	ids := make(t.UidSlice, 0, len(subs))
	for i := range subs {
		ids.Add(subs[i].User)
	}
	return ids, nil
}

// StreamExists checks that the actor can access the named stream and reports if the actor is
// subscribed. With autosubscribe the actor is subscribed if not yet.
func StreamExists(actor *t.User, name string, autosubscribe bool) (bool, error) {
	if err := CheckStreamName(name); err != nil {
		return false, err
	}
	stream, _, sub, err := access.AccessStreamByName(actor, name, false)
	if err != nil {
		return false, err
	}
	if sub != nil {
		return true, nil
	}
	if !autosubscribe {
		return false, nil
	}
	if _, _, err := bulkAddSubscriptions([]*t.Stream{stream}, []*t.User{actor}, nil); err != nil {
		return false, err
	}
	return true, nil
}

// streamAudience returns ids of users who can see the stream: all non-guest users for public
// streams, subscribers and administrators for private ones.
func streamAudience(stream *t.Stream) ([]t.Uid, error) {
	if stream.IsPublic() {
		return store.Users.GetActiveIds(stream.Realm, []t.Role{t.RoleOwner, t.RoleAdmin, t.RoleMember}, true)
	}

	admins, err := store.Users.GetActiveIds(stream.Realm, []t.Role{t.RoleOwner, t.RoleAdmin}, true)
	if err != nil {
		return nil, err
	}
	subs, err := store.Subs.ForRecipient(stream.Recipient)
	if err != nil {
		return nil, err
	}
	audience := t.NewUidSlice(admins...)
	for i := range subs {
		audience.Add(subs[i].User)
	}
	return audience, nil
}
