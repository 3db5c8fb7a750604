// Package fanout computes who receives a message and through which channels.
package fanout

import (
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

// ServiceBotTuple identifies a bot which must be invoked rather than notified.
type ServiceBotTuple struct {
	UserId  t.Uid
	BotType t.BotType
}

// RecipientInfo is the delivery plan for one message. All id sets are sorted.
type RecipientInfo struct {
	ActiveUserIds     t.UidSlice
	PushNotifyUserIds t.UidSlice
	// Stream subscribers eligible for push or email. Never includes the sender.
	StreamPushUserIds  t.UidSlice
	StreamEmailUserIds t.UidSlice
	// Subscribers to notify about a wildcard mention. Empty unless a wildcard mention is possible.
	WildcardMentionUserIds t.UidSlice
	UmEligibleUserIds      t.UidSlice
	LongTermIdleUserIds    t.UidSlice
	DefaultBotUserIds      t.UidSlice
	ServiceBotTuples       []ServiceBotTuple
}

// setting reads one notification setting: the subscription override if set, else the user default.
type setting func(sub *t.Subscription, user *t.User) bool

var (
	pushSetting = func(sub *t.Subscription, user *t.User) bool {
		return override(sub.PushNotifications, user.EnableStreamPushNotifications)
	}
	emailSetting = func(sub *t.Subscription, user *t.User) bool {
		return override(sub.EmailNotifications, user.EnableStreamEmailNotifications)
	}
	wildcardSetting = func(sub *t.Subscription, user *t.User) bool {
		return override(sub.WildcardMentionsNotify, user.WildcardMentionsNotify)
	}
)

func override(val *bool, def bool) bool {
	if val != nil {
		return *val
	}
	return def
}

// GetRecipientInfo resolves the recipients of a message from senderId to recipient.
// streamTopic is required for stream recipients. possiblyMentionedUserIds are users
// who may be mentioned in the message; bots among them are reported in the bot partitions.
//
// Unknown recipient types and stream recipients without a topic are caller bugs and panic.
func GetRecipientInfo(recipient *t.Recipient, senderId t.Uid, streamTopic *string,
	possibleWildcardMention bool, possiblyMentionedUserIds []t.Uid) (*RecipientInfo, error) {

	info := &RecipientInfo{}
	var messageTo t.UidSlice
	var subs []t.Subscription
	var mutedTopic t.UidSlice

	switch recipient.Type {
	case t.RecipientPersonal:
		messageTo = t.NewUidSlice(recipient.TypeId, senderId)
	case t.RecipientStream:
		if streamTopic == nil {
			panic("fanout: stream recipient without a topic")
		}
		var err error
		if subs, err = store.Subs.ForRecipient(recipient.Uid()); err != nil {
			return nil, err
		}
		muting, err := store.Mutes.UsersForTopic(recipient.Uid(), *streamTopic)
		if err != nil {
			return nil, err
		}
		mutedTopic = t.NewUidSlice(muting...)
		for i := range subs {
			messageTo.Add(subs[i].User)
		}
	case t.RecipientHuddle:
		members, err := store.Subs.ForRecipient(recipient.Uid())
		if err != nil {
			return nil, err
		}
		for i := range members {
			messageTo.Add(members[i].User)
		}
	default:
		panic("Bad recipient type")
	}

	query := t.NewUidSlice(messageTo...)
	for _, uid := range possiblyMentionedUserIds {
		query.Add(uid)
	}
	var rows []t.User
	if len(query) > 0 {
		var err error
		if rows, err = store.Users.GetAll(query); err != nil {
			return nil, err
		}
	}

	active := make(map[t.Uid]*t.User, len(rows))
	for i := range rows {
		user := &rows[i]
		if !user.IsActive {
			continue
		}
		uid := user.Uid()
		active[uid] = user

		if user.BotType == t.BotDefault {
			info.DefaultBotUserIds.Add(uid)
		} else if user.BotType.IsServiceBot() {
			info.ServiceBotTuples = append(info.ServiceBotTuples, ServiceBotTuple{UserId: uid, BotType: user.BotType})
		}

		if !messageTo.Contains(uid) {
			continue
		}
		info.ActiveUserIds.Add(uid)
		if user.EnableOnlinePushNotifications {
			info.PushNotifyUserIds.Add(uid)
		}
		if !user.BotType.IsServiceBot() {
			info.UmEligibleUserIds.Add(uid)
		}
		if user.LongTermIdle {
			info.LongTermIdleUserIds.Add(uid)
		}
	}

	shouldSend := func(sub *t.Subscription, get setting) bool {
		user := active[sub.User]
		if user == nil || sub.IsMuted || mutedTopic.Contains(sub.User) {
			return false
		}
		return get(sub, user)
	}
	for i := range subs {
		sub := &subs[i]
		if sub.User != senderId && shouldSend(sub, pushSetting) {
			info.StreamPushUserIds.Add(sub.User)
		}
		if sub.User != senderId && shouldSend(sub, emailSetting) {
			info.StreamEmailUserIds.Add(sub.User)
		}
		if possibleWildcardMention && shouldSend(sub, wildcardSetting) {
			info.WildcardMentionUserIds.Add(sub.User)
		}
	}

	metrics.FanoutRecipients.WithLabelValues(recipient.Type.String()).Observe(float64(len(info.ActiveUserIds)))
	return info, nil
}
