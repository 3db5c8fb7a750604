// Package types provides data types for persisting realms, users, streams and subscriptions.
package types

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// StoreError satisfies Error interface but allows constant values for
// direct comparison.
type StoreError string

// Error is required by error interface.
func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the input cannot be parsed or is otherwise invalid.
	ErrMalformed = StoreError("malformed")
	// ErrDuplicate means a uniqueness constraint was violated.
	ErrDuplicate = StoreError("duplicate value")
	// ErrUnsupported means an operation is not supported.
	ErrUnsupported = StoreError("unsupported")
	// ErrPolicy means policy violation.
	ErrPolicy = StoreError("policy")
	// ErrNotFound means the object was not found or is not visible to the caller.
	ErrNotFound = StoreError("not found")
	// ErrPermissionDenied means the operation is not permitted.
	ErrPermissionDenied = StoreError("denied")
)

// UserError is an error with a message which can be shown to the end user as is.
// Kind is one of the StoreError constants and is reported by errors.Is.
type UserError struct {
	Kind StoreError
	Msg  string
}

// Error is required by error interface.
func (e *UserError) Error() string {
	return e.Msg
}

// Unwrap makes errors.Is(err, ErrNotFound) work.
func (e *UserError) Unwrap() error {
	return e.Kind
}

// NewUserError formats a user-facing error of the given kind.
func NewUserError(kind StoreError, format string, args ...interface{}) *UserError {
	return &UserError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Uid is a database-specific record id, suitable to be used as a primary key.
type Uid uint64

// ZeroUid is a constant representing uninitialized Uid.
const ZeroUid Uid = 0

// Lengths of various Uid representations.
const (
	uidBase64Unpadded = 11
	uidBase64Padded   = 12
)

// IsZero checks if Uid is uninitialized.
func (uid Uid) IsZero() bool {
	return uid == ZeroUid
}

// Compare returns 0 if uid is equal to u2, 1 if u2 is greater than uid, -1 if u2 is smaller.
func (uid Uid) Compare(u2 Uid) int {
	if uid < u2 {
		return -1
	} else if uid > u2 {
		return 1
	}
	return 0
}

// MarshalBinary converts Uid to byte slice.
func (uid Uid) MarshalBinary() ([]byte, error) {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint64(dst, uint64(uid))
	return dst, nil
}

// UnmarshalBinary reads Uid from byte slice.
func (uid *Uid) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return errors.New("Uid.UnmarshalBinary: invalid length")
	}
	*uid = Uid(binary.LittleEndian.Uint64(b))
	return nil
}

// UnmarshalText reads Uid from string represented as byte slice.
func (uid *Uid) UnmarshalText(src []byte) error {
	if len(src) != uidBase64Unpadded {
		return errors.New("Uid.UnmarshalText: invalid length")
	}
	dec := make([]byte, base64.URLEncoding.DecodedLen(uidBase64Padded))
	for len(src) < uidBase64Padded {
		src = append(src, '=')
	}
	count, err := base64.URLEncoding.Decode(dec, src)
	if count < 8 {
		if err != nil {
			return errors.New("Uid.UnmarshalText: failed to decode " + err.Error())
		}
		return errors.New("Uid.UnmarshalText: failed to decode")
	}
	*uid = Uid(binary.LittleEndian.Uint64(dec))
	return nil
}

// MarshalText converts Uid to string represented as byte slice.
func (uid Uid) MarshalText() ([]byte, error) {
	if uid.IsZero() {
		return []byte{}, nil
	}
	src := make([]byte, 8)
	dst := make([]byte, base64.URLEncoding.EncodedLen(8))
	binary.LittleEndian.PutUint64(src, uint64(uid))
	base64.URLEncoding.Encode(dst, src)
	return dst[0:uidBase64Unpadded], nil
}

// MarshalJSON converts Uid to double quoted ("ajjj") string.
func (uid Uid) MarshalJSON() ([]byte, error) {
	dst, _ := uid.MarshalText()
	return append(append([]byte{'"'}, dst...), '"'), nil
}

// UnmarshalJSON reads Uid from a double quoted string.
func (uid *Uid) UnmarshalJSON(b []byte) error {
	size := len(b)
	if size == 2 && b[0] == '"' && b[1] == '"' {
		*uid = ZeroUid
		return nil
	}
	if size != (uidBase64Unpadded + 2) {
		return errors.New("Uid.UnmarshalJSON: invalid length")
	} else if b[0] != '"' || b[size-1] != '"' {
		return errors.New("Uid.UnmarshalJSON: unrecognized")
	}
	return uid.UnmarshalText(b[1 : size-1])
}

// String converts Uid to base64 string.
func (uid Uid) String() string {
	buf, _ := uid.MarshalText()
	return string(buf)
}

// ParseUid parses string NOT prefixed with anything.
func ParseUid(s string) Uid {
	var uid Uid
	uid.UnmarshalText([]byte(s))
	return uid
}

// UidSlice is a sorted set of Uids.
type UidSlice []Uid

func (us UidSlice) find(uid Uid) (int, bool) {
	l := len(us)
	if l == 0 || us[0] > uid {
		return 0, false
	}
	if uid > us[l-1] {
		return l, false
	}
	idx := sort.Search(l, func(i int) bool {
		return uid <= us[i]
	})
	return idx, idx < l && us[idx] == uid
}

// Add uid to UidSlice keeping it sorted. Duplicates are ignored.
func (us *UidSlice) Add(uid Uid) bool {
	idx, found := us.find(uid)
	if found {
		return false
	}
	// Inserting without creating a temporary slice.
	*us = append(*us, ZeroUid)
	copy((*us)[idx+1:], (*us)[idx:])
	(*us)[idx] = uid
	return true
}

// Rem removes uid from UidSlice.
func (us *UidSlice) Rem(uid Uid) bool {
	idx, found := us.find(uid)
	if !found {
		return false
	}
	if idx == len(*us)-1 {
		*us = (*us)[:idx]
	} else {
		*us = append((*us)[:idx], (*us)[idx+1:]...)
	}
	return true
}

// Contains checks if the UidSlice contains the given uid.
func (us UidSlice) Contains(uid Uid) bool {
	_, contains := us.find(uid)
	return contains
}

// NewUidSlice builds a sorted set from arbitrary ids.
func NewUidSlice(uids ...Uid) UidSlice {
	us := make(UidSlice, 0, len(uids))
	for _, uid := range uids {
		us.Add(uid)
	}
	return us
}

// ObjHeader is the header shared by all stored objects.
type ObjHeader struct {
	// using string to get around rethinkdb's problems with uint64;
	// `bson:"_id"` tag is for mongodb to use as primary key '_id'.
	Id        string `bson:"_id"`
	id        Uid
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uid assigns Uid header field.
func (h *ObjHeader) Uid() Uid {
	if h.id.IsZero() && h.Id != "" {
		h.id.UnmarshalText([]byte(h.Id))
	}
	return h.id
}

// SetUid assigns given Uid to appropriate header fields.
func (h *ObjHeader) SetUid(uid Uid) {
	h.id = uid
	h.Id = uid.String()
}

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// InitTimes initializes time.Time variables in the header to current time.
func (h *ObjHeader) InitTimes() {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = TimeNow()
	}
	h.UpdatedAt = h.CreatedAt
}

// Role is the privilege tier of a user within a realm. Smaller values are more privileged.
type Role int

// Roles, in order of decreasing privilege.
const (
	RoleOwner  Role = 100
	RoleAdmin  Role = 200
	RoleMember Role = 400
	RoleGuest  Role = 600
)

// IsValid checks if the value is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}

// String implements Stringer.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	case RoleMember:
		return "member"
	case RoleGuest:
		return "guest"
	}
	return ""
}

// ParseRole converts the string representation of a role to Role.
// Returns zero value for unknown roles.
func ParseRole(s string) Role {
	switch strings.ToLower(s) {
	case "owner":
		return RoleOwner
	case "admin":
		return RoleAdmin
	case "member":
		return RoleMember
	case "guest":
		return RoleGuest
	}
	return 0
}

// MarshalText converts Role to its string name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, errors.New("Role.MarshalText: invalid role")
	}
	return []byte(r.String()), nil
}

// UnmarshalText parses role name.
func (r *Role) UnmarshalText(b []byte) error {
	role := ParseRole(string(b))
	if role == 0 {
		return errors.New("Role.UnmarshalText: unknown role '" + string(b) + "'")
	}
	*r = role
	return nil
}

// BotType distinguishes regular bots from service bots.
type BotType int

// Bot types. BotNone is a human user.
const (
	BotNone BotType = iota
	BotDefault
	BotIncomingWebhook
	BotOutgoingWebhook
	BotEmbedded
)

// IsServiceBot is true for bots which must be invoked rather than simply notified.
func (bt BotType) IsServiceBot() bool {
	return bt == BotOutgoingWebhook || bt == BotEmbedded
}

// Realm permission policies.
const (
	PolicyMembersOnly     = 1
	PolicyAdminsOnly      = 2
	PolicyFullMembersOnly = 3
)

// Realm is an organization: all streams, users and subscriptions belong to exactly one realm.
type Realm struct {
	ObjHeader `bson:",inline"`
	Name      string
	// Historical compatibility mode: all streams are private and history is never public.
	IsZephyrMirrorRealm bool
	// Number of days after joining when a member stops being a new member.
	WaitingPeriodThreshold int
	CreateStreamPolicy     int
	InviteToStreamPolicy   int
	// Stream receiving realm announcements. Zero means none.
	NotificationsStream Uid
}

// User is a stored account.
type User struct {
	ObjHeader `bson:",inline"`
	Realm     Uid
	// Address used for login and for allowlist matching.
	Email    string
	FullName string
	Role     Role
	IsActive bool

	BotType  BotType
	BotOwner Uid

	// The user has not logged in for a long time.
	LongTermIdle bool

	// Account-level notification defaults. Per-subscription overrides take precedence.
	EnableStreamDesktopNotifications bool
	EnableStreamAudibleNotifications bool
	EnableStreamPushNotifications    bool
	EnableStreamEmailNotifications   bool
	EnableOfflineEmailNotifications  bool
	EnableOnlinePushNotifications    bool
	WildcardMentionsNotify           bool
}

// IsBot checks if the account is a bot of any kind.
func (u *User) IsBot() bool {
	return u.BotType != BotNone
}

// IsRealmOwner checks if the user holds the owner role.
func (u *User) IsRealmOwner() bool {
	return u.Role == RoleOwner
}

// IsRealmAdmin is true for owners and administrators.
func (u *User) IsRealmAdmin() bool {
	return u.Role == RoleOwner || u.Role == RoleAdmin
}

// IsGuest checks if the user holds the guest role.
func (u *User) IsGuest() bool {
	return u.Role == RoleGuest
}

// DateJoined is the time the account was created.
func (u *User) DateJoined() time.Time {
	return u.CreatedAt
}

// IsNewMember checks if the user joined less than realm.WaitingPeriodThreshold days ago.
func (u *User) IsNewMember(realm *Realm, now time.Time) bool {
	days := int(now.Sub(u.DateJoined()).Hours() / 24)
	return days < realm.WaitingPeriodThreshold
}

// HasPermission evaluates one of the realm's Policy* settings for the user.
func (u *User) HasPermission(policy int, realm *Realm, now time.Time) bool {
	if u.IsRealmAdmin() {
		return true
	}
	if policy == PolicyAdminsOnly {
		return false
	}
	if u.IsGuest() {
		return false
	}
	if policy == PolicyMembersOnly {
		return true
	}
	return !u.IsNewMember(realm, now)
}

// CanCreateStreams checks realm's CreateStreamPolicy.
func (u *User) CanCreateStreams(realm *Realm, now time.Time) bool {
	return u.HasPermission(realm.CreateStreamPolicy, realm, now)
}

// CanSubscribeOtherUsers checks realm's InviteToStreamPolicy.
func (u *User) CanSubscribeOtherUsers(realm *Realm, now time.Time) bool {
	return u.HasPermission(realm.InviteToStreamPolicy, realm, now)
}

// PostPolicy defines who may post to a stream.
type PostPolicy int

// Stream post policies.
const (
	PostEveryone PostPolicy = iota + 1
	PostAdminsOnly
	PostRestrictNewMembers
)

// IsValid checks if the value is a known post policy.
func (p PostPolicy) IsValid() bool {
	return p >= PostEveryone && p <= PostRestrictNewMembers
}

// Stream is a named channel in a realm.
type Stream struct {
	ObjHeader `bson:",inline"`
	Realm     Uid
	// Display name. Unique per realm case-insensitively.
	Name        string
	Description string
	InviteOnly  bool
	PostPolicy  PostPolicy
	// Subscribers can read messages sent before they subscribed.
	HistoryPublicToSubscribers bool
	// Set at creation in realms running in the historical compatibility mode.
	IsInZephyrRealm bool
	Recipient       Uid
	Deactivated     bool
}

// IsPublic checks if the stream is visible to all non-guest members of the realm.
func (s *Stream) IsPublic() bool {
	return !s.InviteOnly && !s.IsInZephyrRealm
}

// IsHistoryRealmPublic checks if the full history is readable by any non-guest member.
func (s *Stream) IsHistoryRealmPublic() bool {
	return s.IsPublic()
}

// RecipientType is the kind of addressing envelope.
type RecipientType int

// Recipient types.
const (
	RecipientPersonal RecipientType = 1
	RecipientStream   RecipientType = 2
	RecipientHuddle   RecipientType = 3
)

// String implements Stringer.
func (rt RecipientType) String() string {
	switch rt {
	case RecipientPersonal:
		return "personal"
	case RecipientStream:
		return "stream"
	case RecipientHuddle:
		return "huddle"
	}
	return "unknown"
}

// Recipient is an addressing envelope: a stream, a single user or a group of users.
type Recipient struct {
	ObjHeader `bson:",inline"`
	Type      RecipientType
	// Id of the stream or the user. For huddles it's the id of the huddle.
	TypeId Uid
}

// Subscription links a user to a recipient.
type Subscription struct {
	ObjHeader `bson:",inline"`
	User      Uid
	Recipient Uid
	// Unsubscribing sets Active to false. Subscriptions are never deleted.
	Active bool

	IsMuted  bool
	PinToTop bool
	Color    string

	// Overrides of the user's account-level defaults. Nil means inherit.
	DesktopNotifications   *bool
	AudibleNotifications   *bool
	PushNotifications      *bool
	EmailNotifications     *bool
	WildcardMentionsNotify *bool
}

// TopicMute suppresses notifications for one topic of a stream.
type TopicMute struct {
	ObjHeader `bson:",inline"`
	User      Uid
	Stream    Uid
	Recipient Uid
	TopicName string
}

// BoolPtr is a convenience for setting tri-state fields.
func BoolPtr(val bool) *bool {
	return &val
}
