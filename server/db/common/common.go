// Package common contains utility methods used by all adapters.
package common

import (
	"strings"

	t "github.com/relaynet/streams/server/store/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// StreamNameKey converts stream name into a form used for uniqueness checks:
// names which differ only in case or Unicode normalization produce the same key.
func StreamNameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// TopicKey is the case-insensitive form of a topic name.
func TopicKey(topic string) string {
	return cases.Fold().String(norm.NFC.String(topic))
}

// StreamNameKeys converts a list of names into a de-duplicated list of keys.
func StreamNameKeys(names []string) []string {
	seen := make(map[string]bool, len(names))
	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := StreamNameKey(name)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// RecipientKey is a string key of a (user, recipient) pair, used as a primary key by
// document stores.
func RecipientKey(user, recipient t.Uid) string {
	return recipient.String() + ":" + user.String()
}

// RealmNameKey is the unique string key of a stream name within a realm.
func RealmNameKey(realm t.Uid, name string) string {
	return realm.String() + ":" + StreamNameKey(name)
}

// MuteKey is the unique string key of a topic mute.
func MuteKey(user, recipient t.Uid, topic string) string {
	return RecipientKey(user, recipient) + ":" + TopicKey(topic)
}

// RoleSet converts a list of roles into a lookup set. Nil for an empty list.
func RoleSet(roles []t.Role) map[t.Role]bool {
	if len(roles) == 0 {
		return nil
	}
	set := make(map[t.Role]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}
