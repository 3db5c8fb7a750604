package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/relaynet/streams/server/store"
	"github.com/relaynet/streams/server/store/types"
	"github.com/relaynet/streams/server/streams"
)

/*
Realm object in data.json

	"name": "Acme",
	"zephyr": false,
	"waitingPeriod": 3,
	"createStreamPolicy": "members",
	"inviteToStreamPolicy": "full_members",
	"users": [...], "streams": [...], "subscriptions": [...], "mutes": [...]
*/
type Realm struct {
	Name                 string         `json:"name"`
	Zephyr               bool           `json:"zephyr"`
	WaitingPeriod        int            `json:"waitingPeriod"`
	CreateStreamPolicy   string         `json:"createStreamPolicy"`
	InviteToStreamPolicy string         `json:"inviteToStreamPolicy"`
	Users                []User         `json:"users"`
	Streams              []Stream       `json:"streams"`
	Subscriptions        []Subscription `json:"subscriptions"`
	Mutes                []Mute         `json:"mutes"`
}

/*
User object in data.json

	"createdAt": "-140h",
	"email": "alice@example.com",
	"fullName": "Alice Johnson",
	"role": "owner",
	"bot": "embedded",
	"botOwner": "bob@example.com",
	"longTermIdle": false,
	"notifications": {"stream_push": true, "stream_email": false, "online_push": true, "wildcard": true}
*/
type User struct {
	CreatedAt     string          `json:"createdAt"`
	Email         string          `json:"email"`
	FullName      string          `json:"fullName"`
	Role          string          `json:"role"`
	Bot           string          `json:"bot"`
	BotOwner      string          `json:"botOwner"`
	LongTermIdle  bool            `json:"longTermIdle"`
	Notifications map[string]bool `json:"notifications"`
}

// Stream object in data.json. HistoryPublic may be omitted to use the default.
type Stream struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	InviteOnly    bool   `json:"inviteOnly"`
	PostPolicy    string `json:"postPolicy"`
	HistoryPublic *bool  `json:"historyPublic"`
}

/*
Subscription object in data.json

	"user": "alice@example.com",
	"stream": "general",
	"color": "#76ce90",
	"muted": false,
	"pinToTop": true,
	"push": false
*/
type Subscription struct {
	User     string `json:"user"`
	Stream   string `json:"stream"`
	Color    string `json:"color"`
	Muted    bool   `json:"muted"`
	PinToTop bool   `json:"pinToTop"`
	Push     *bool  `json:"push"`
	Email    *bool  `json:"email"`
	Wildcard *bool  `json:"wildcard"`
}

// Mute is a muted topic in data.json.
type Mute struct {
	User   string `json:"user"`
	Stream string `json:"stream"`
	Topic  string `json:"topic"`
}

// Data is the content of data.json.
type Data struct {
	Realms []Realm `json:"realms"`
}

var policies = map[string]int{
	"":             types.PolicyMembersOnly,
	"members":      types.PolicyMembersOnly,
	"admins":       types.PolicyAdminsOnly,
	"full_members": types.PolicyFullMembersOnly,
}

var postPolicies = map[string]types.PostPolicy{
	"":                     types.PostEveryone,
	"everyone":             types.PostEveryone,
	"admins":               types.PostAdminsOnly,
	"restrict_new_members": types.PostRestrictNewMembers,
}

var botTypes = map[string]types.BotType{
	"":         types.BotNone,
	"default":  types.BotDefault,
	"incoming": types.BotIncomingWebhook,
	"outgoing": types.BotOutgoingWebhook,
	"embedded": types.BotEmbedded,
}

func genDb(data *Data) error {
	if len(data.Realms) == 0 {
		log.Println("No data provided, stopping")
		return nil
	}

	for i := range data.Realms {
		if err := genRealm(&data.Realms[i]); err != nil {
			return fmt.Errorf("realm '%s': %w", data.Realms[i].Name, err)
		}
	}

	log.Println("All done.")
	return nil
}

func genRealm(rr *Realm) error {
	createPolicy, ok := policies[rr.CreateStreamPolicy]
	if !ok {
		return fmt.Errorf("unknown createStreamPolicy '%s'", rr.CreateStreamPolicy)
	}
	invitePolicy, ok := policies[rr.InviteToStreamPolicy]
	if !ok {
		return fmt.Errorf("unknown inviteToStreamPolicy '%s'", rr.InviteToStreamPolicy)
	}
	realm := &types.Realm{
		Name:                   rr.Name,
		IsZephyrMirrorRealm:    rr.Zephyr,
		WaitingPeriodThreshold: rr.WaitingPeriod,
		CreateStreamPolicy:     createPolicy,
		InviteToStreamPolicy:   invitePolicy,
	}
	if err := store.Realms.Create(realm); err != nil {
		return err
	}
	fmt.Println("realm;" + realm.Name + ";" + realm.Uid().String())

	log.Println("Generating users...")
	users := make(map[string]*types.User, len(rr.Users))
	for _, uu := range rr.Users {
		user, err := genUser(realm, &uu, users)
		if err != nil {
			return err
		}
		users[strings.ToLower(uu.Email)] = user
		fmt.Println("usr;" + user.Email + ";" + user.Uid().String() + ";" + user.Role.String())
	}

	log.Println("Generating streams...")
	byName := make(map[string]*types.Stream, len(rr.Streams))
	for _, ss := range rr.Streams {
		policy, ok := postPolicies[ss.PostPolicy]
		if !ok {
			return fmt.Errorf("stream '%s': unknown postPolicy '%s'", ss.Name, ss.PostPolicy)
		}
		stream, created, err := streams.GetOrCreateStream(realm, streams.StreamSpec{
			Name:                       ss.Name,
			Description:                ss.Description,
			InviteOnly:                 ss.InviteOnly,
			PostPolicy:                 policy,
			HistoryPublicToSubscribers: ss.HistoryPublic,
		})
		if err != nil {
			return fmt.Errorf("stream '%s': %w", ss.Name, err)
		}
		if !created {
			log.Println("Stream", ss.Name, "is listed more than once")
		}
		byName[strings.ToLower(ss.Name)] = stream
		fmt.Println("stream;" + stream.Name + ";" + stream.Uid().String())
	}

	log.Println("Generating subscriptions...")
	subs := make([]*types.Subscription, 0, len(rr.Subscriptions))
	for _, ss := range rr.Subscriptions {
		user, stream, err := lookup(users, byName, ss.User, ss.Stream)
		if err != nil {
			return err
		}
		subs = append(subs, &types.Subscription{
			User:                   user.Uid(),
			Recipient:              stream.Recipient,
			Active:                 true,
			IsMuted:                ss.Muted,
			PinToTop:               ss.PinToTop,
			Color:                  ss.Color,
			PushNotifications:      ss.Push,
			EmailNotifications:     ss.Email,
			WildcardMentionsNotify: ss.Wildcard,
		})
	}
	if err := store.Subs.Upsert(subs); err != nil {
		return err
	}

	log.Println("Generating topic mutes...")
	for _, mm := range rr.Mutes {
		user, stream, err := lookup(users, byName, mm.User, mm.Stream)
		if err != nil {
			return err
		}
		if err := store.Mutes.Add(&types.TopicMute{
			User:      user.Uid(),
			Stream:    stream.Uid(),
			Recipient: stream.Recipient,
			TopicName: mm.Topic,
		}); err != nil {
			return fmt.Errorf("mute '%s' for %s: %w", mm.Topic, mm.User, err)
		}
	}
	return nil
}

func genUser(realm *types.Realm, uu *User, known map[string]*types.User) (*types.User, error) {
	role := types.RoleMember
	if uu.Role != "" {
		if role = types.ParseRole(uu.Role); role == 0 {
			return nil, fmt.Errorf("user %s: unknown role '%s'", uu.Email, uu.Role)
		}
	}
	botType, ok := botTypes[uu.Bot]
	if !ok {
		return nil, fmt.Errorf("user %s: unknown bot type '%s'", uu.Email, uu.Bot)
	}

	user := &types.User{
		Realm:        realm.Uid(),
		Email:        uu.Email,
		FullName:     uu.FullName,
		Role:         role,
		IsActive:     true,
		BotType:      botType,
		LongTermIdle: uu.LongTermIdle,

		EnableStreamPushNotifications:   uu.Notifications["stream_push"],
		EnableStreamEmailNotifications:  uu.Notifications["stream_email"],
		EnableOnlinePushNotifications:   uu.Notifications["online_push"],
		EnableOfflineEmailNotifications: uu.Notifications["offline_email"],
		WildcardMentionsNotify:          uu.Notifications["wildcard"],
	}
	if uu.BotOwner != "" {
		owner := known[strings.ToLower(uu.BotOwner)]
		if owner == nil {
			return nil, fmt.Errorf("user %s: bot owner %s must be listed first", uu.Email, uu.BotOwner)
		}
		user.BotOwner = owner.Uid()
	}

	if _, err := store.Users.Create(user); err != nil {
		return nil, fmt.Errorf("user %s: %w", uu.Email, err)
	}
	// Create assigns the current time.
	if uu.CreatedAt != "" {
		if err := store.Users.Update(user.Uid(), map[string]interface{}{"CreatedAt": getCreatedTime(uu.CreatedAt)}); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func lookup(users map[string]*types.User, streams map[string]*types.Stream,
	email, name string) (*types.User, *types.Stream, error) {

	user := users[strings.ToLower(email)]
	if user == nil {
		return nil, nil, fmt.Errorf("unknown user %s", email)
	}
	stream := streams[strings.ToLower(name)]
	if stream == nil {
		return nil, nil, fmt.Errorf("unknown stream '%s'", name)
	}
	return user, stream, nil
}

// Go json cannot unmarshal Duration from a string, thus this hack.
func getCreatedTime(delta string) time.Time {
	dd, err := time.ParseDuration(delta)
	if err != nil {
		log.Fatal("Invalid duration string ", delta)
	}
	return time.Now().UTC().Round(time.Millisecond).Add(dd)
}
