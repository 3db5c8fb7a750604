// Package users changes realm roles of user accounts.
package users

import (
	"github.com/relaynet/streams/server/cache"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/notify"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

// AdminUsersAndBots returns ids of active owners and administrators of the realm, bots included.
func AdminUsersAndBots(realm t.Uid) ([]t.Uid, error) {
	return store.Users.GetActiveIds(realm, []t.Role{t.RoleOwner, t.RoleAdmin}, true)
}

// HumanOwnerIds returns ids of active human owners of the realm.
func HumanOwnerIds(realm t.Uid) ([]t.Uid, error) {
	return store.Users.GetActiveIds(realm, []t.Role{t.RoleOwner}, false)
}

// isLastOwner checks if the user is the only active human owner of the realm.
func isLastOwner(user *t.User) (bool, error) {
	owners, err := HumanOwnerIds(user.Realm)
	if err != nil {
		return false, err
	}
	return len(owners) == 1 && owners[0] == user.Uid(), nil
}

// ChangeRole assigns the role to the target user. The actor must be a realm administrator;
// granting or revoking the owner role requires an owner. The realm always keeps at least
// one human owner.
func ChangeRole(actor, target *t.User, role t.Role) error {
	if !actor.IsRealmAdmin() {
		return t.NewUserError(t.ErrPermissionDenied, "Must be an organization administrator")
	}
	if target.Realm != actor.Realm {
		return t.NewUserError(t.ErrNotFound, "No such user")
	}
	if !role.IsValid() {
		return t.NewUserError(t.ErrMalformed, "Invalid role")
	}
	if target.Role == role {
		return nil
	}

	if target.IsRealmOwner() {
		last, err := isLastOwner(target)
		if err != nil {
			return err
		}
		if last {
			return t.NewUserError(t.ErrPermissionDenied,
				"The owner permission cannot be removed from the only organization owner.")
		}
	}
	if (role == t.RoleOwner || target.IsRealmOwner()) && !actor.IsRealmOwner() {
		return t.NewUserError(t.ErrPermissionDenied, "Only organization owners can add or remove the owner permission.")
	}

	if err := store.Users.Update(target.Uid(), map[string]interface{}{"Role": role}); err != nil {
		return err
	}
	target.Role = role

	cache.Invalidate(cache.UserProfileKey(target.Uid()))

	audience, err := store.Users.GetActiveIds(target.Realm, nil, true)
	if err != nil {
		logs.Warn.Println("users: failed to load realm users", target.Realm, err)
		return nil
	}
	ev := notify.NewEvent(notify.KindRealmUser, notify.OpUpdate, target.Realm, audience)
	ev.Payload = map[string]interface{}{
		"person": map[string]interface{}{
			"user_id": target.Uid(),
			"role":    role.String(),
		},
	}
	notify.Send(ev)
	return nil
}

// PromoteToOwner grants the owner role.
func PromoteToOwner(actor, target *t.User) error {
	return ChangeRole(actor, target, t.RoleOwner)
}

// PromoteToAdmin makes the target a realm administrator. An owner is demoted to administrator.
func PromoteToAdmin(actor, target *t.User) error {
	return ChangeRole(actor, target, t.RoleAdmin)
}

// ChangeToMember makes the target a regular member.
func ChangeToMember(actor, target *t.User) error {
	return ChangeRole(actor, target, t.RoleMember)
}

// DemoteToGuest makes the target a guest.
func DemoteToGuest(actor, target *t.User) error {
	return ChangeRole(actor, target, t.RoleGuest)
}
