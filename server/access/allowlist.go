package access

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	t "github.com/relaynet/streams/server/store/types"
)

// System accounts which bypass normal stream access checks.
type configType struct {
	// Bots which exist outside of any realm and may post everywhere.
	CrossRealmBots []string `json:"cross_realm_bots"`
	// Accounts allowed to send on behalf of other users.
	ApiSuperUsers []string `json:"api_super_users"`
	// Sender of welcome messages.
	WelcomeBot string `json:"welcome_bot"`
	// Sender of automated notifications, e.g. "you were subscribed".
	NotificationBot string `json:"notification_bot"`
}

type allowlist struct {
	crossRealmBots  map[string]bool
	apiSuperUsers   map[string]bool
	welcomeBot      string
	notificationBot string
}

var (
	listLock sync.RWMutex
	globals  = allowlist{}
)

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toSet(emails []string) map[string]bool {
	set := make(map[string]bool, len(emails))
	for _, email := range emails {
		if key := emailKey(email); key != "" {
			set[key] = true
		}
	}
	return set
}

// Init loads the system-account allowlist. Empty or nil config clears it.
func Init(jsonconf json.RawMessage) error {
	var config configType
	if len(jsonconf) > 0 && string(jsonconf) != "null" {
		if err := json.Unmarshal(jsonconf, &config); err != nil {
			return errors.New("access: failed to parse config: " + err.Error())
		}
	}

	listLock.Lock()
	defer listLock.Unlock()

	globals = allowlist{
		crossRealmBots:  toSet(config.CrossRealmBots),
		apiSuperUsers:   toSet(config.ApiSuperUsers),
		welcomeBot:      emailKey(config.WelcomeBot),
		notificationBot: emailKey(config.NotificationBot),
	}
	// System bots are cross-realm by definition.
	if globals.welcomeBot != "" {
		globals.crossRealmBots[globals.welcomeBot] = true
	}
	if globals.notificationBot != "" {
		globals.crossRealmBots[globals.notificationBot] = true
	}
	return nil
}

// IsCrossRealmBot checks if the email belongs to a cross-realm system bot.
func IsCrossRealmBot(email string) bool {
	listLock.RLock()
	defer listLock.RUnlock()
	return globals.crossRealmBots[emailKey(email)]
}

// IsSuperUser checks if the user holds the API super user delivery credential.
func IsSuperUser(user *t.User) bool {
	if user == nil {
		return false
	}
	listLock.RLock()
	defer listLock.RUnlock()
	return globals.apiSuperUsers[emailKey(user.Email)]
}

// IsWelcomeBot checks if the user is the configured welcome bot.
func IsWelcomeBot(user *t.User) bool {
	listLock.RLock()
	defer listLock.RUnlock()
	return globals.welcomeBot != "" && emailKey(user.Email) == globals.welcomeBot
}

// IsNotificationBot checks if the user is the configured notification bot.
func IsNotificationBot(user *t.User) bool {
	listLock.RLock()
	defer listLock.RUnlock()
	return globals.notificationBot != "" && emailKey(user.Email) == globals.notificationBot
}

// NotificationBotEmail returns the address of the notification bot, if configured.
func NotificationBotEmail() string {
	listLock.RLock()
	defer listLock.RUnlock()
	return globals.notificationBot
}
