package access

import (
	"testing"

	t "github.com/relaynet/streams/server/store/types"
)

func TestAllowlist(tt *testing.T) {
	err := Init([]byte(`{
		"cross_realm_bots": ["feedback@example.com"],
		"api_super_users": [" Mirror@Example.com "],
		"welcome_bot": "welcome-bot@example.com",
		"notification_bot": "notification-bot@example.com"
	}`))
	if err != nil {
		tt.Fatal(err)
	}
	defer Init(nil)

	if !IsCrossRealmBot("FEEDBACK@example.com") || !IsCrossRealmBot("notification-bot@example.com") {
		tt.Error("Expected cross-realm bots")
	}
	if IsCrossRealmBot("someone@example.com") {
		tt.Error("Regular user is not a cross-realm bot")
	}
	if !IsSuperUser(&t.User{Email: "mirror@example.com"}) || IsSuperUser(nil) {
		tt.Error("IsSuperUser is wrong")
	}
	if !IsWelcomeBot(&t.User{Email: "Welcome-Bot@example.com"}) || IsNotificationBot(&t.User{Email: "welcome-bot@example.com"}) {
		tt.Error("System bot checks are wrong")
	}
	if NotificationBotEmail() != "notification-bot@example.com" {
		tt.Errorf("Unexpected notification bot '%s'", NotificationBotEmail())
	}

	if err := Init([]byte(`{"cross_realm_bots": "oops"}`)); err == nil {
		tt.Error("Expected parse error")
	}
	Init(nil)
	if IsCrossRealmBot("feedback@example.com") || IsWelcomeBot(&t.User{}) {
		tt.Error("Allowlist must be cleared")
	}
}
