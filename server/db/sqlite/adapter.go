//go:build sqlite
// +build sqlite

// Package sqlite is an embedded database adapter built on GORM and SQLite.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// adapter holds the GORM database handle.
type adapter struct {
	db         *gorm.DB
	maxResults int
	version    int

	// Single query timeout.
	sqlTimeout time.Duration
}

const (
	// Use a temporary, in-memory database if no path is specified.
	temporaryDbPath = "file::memory:?cache=shared"

	adpVersion  = 1
	adapterName = "sqlite"

	defaultMaxResults = 1024
)

type configType struct {
	// Path to the database file.
	Database string `json:"database,omitempty"`
	// Maximum number of open connections to the database.
	MaxOpenConns int `json:"max_open_conns,omitempty"`
	// Maximum number of connections in the idle connection pool.
	MaxIdleConns int `json:"max_idle_conns,omitempty"`
	// DB request timeout (in seconds).
	SqlTimeout int `json:"sql_timeout,omitempty"`
	// GORM log level: silent, error, warn, info.
	LogLevel string `json:"log_level,omitempty"`
}

// Table models. Ids are stored as Uid strings.

type kvMeta struct {
	Key   string `gorm:"primaryKey"`
	Value int    `gorm:"not null"`
}

func (kvMeta) TableName() string { return "kvmeta" }

type realmRow struct {
	Id                     string `gorm:"primaryKey"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
	Name                   string `gorm:"not null"`
	IsZephyrMirrorRealm    bool   `gorm:"not null"`
	WaitingPeriodThreshold int    `gorm:"not null"`
	CreateStreamPolicy     int    `gorm:"not null"`
	InviteToStreamPolicy   int    `gorm:"not null"`
	NotificationsStream    string
}

func (realmRow) TableName() string { return "realms" }

type userRow struct {
	Id                               string `gorm:"primaryKey"`
	CreatedAt                        time.Time
	UpdatedAt                        time.Time
	Realm                            string `gorm:"not null;uniqueIndex:idx_users_realm_email;index:idx_users_realm_role"`
	Email                            string `gorm:"not null"`
	EmailKey                         string `gorm:"not null;uniqueIndex:idx_users_realm_email"`
	FullName                         string
	Role                             int  `gorm:"not null;index:idx_users_realm_role"`
	IsActive                         bool `gorm:"not null"`
	BotType                          int  `gorm:"not null"`
	BotOwner                         string
	LongTermIdle                     bool
	EnableStreamDesktopNotifications bool
	EnableStreamAudibleNotifications bool
	EnableStreamPushNotifications    bool
	EnableStreamEmailNotifications   bool
	EnableOfflineEmailNotifications  bool
	EnableOnlinePushNotifications    bool
	WildcardMentionsNotify           bool
}

func (userRow) TableName() string { return "users" }

type recipientRow struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Type      int    `gorm:"not null"`
	TypeId    string `gorm:"not null;index"`
}

func (recipientRow) TableName() string { return "recipients" }

type streamRow struct {
	Id                         string `gorm:"primaryKey"`
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
	Realm                      string `gorm:"not null;uniqueIndex:idx_streams_realm_name"`
	Name                       string `gorm:"not null"`
	NameKey                    string `gorm:"not null;uniqueIndex:idx_streams_realm_name"`
	Description                string
	InviteOnly                 bool `gorm:"not null"`
	PostPolicy                 int  `gorm:"not null"`
	HistoryPublicToSubscribers bool `gorm:"not null"`
	IsInZephyrRealm            bool `gorm:"not null"`
	Recipient                  string
	Deactivated                bool `gorm:"not null"`
}

func (streamRow) TableName() string { return "streams" }

type subRow struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	User      string `gorm:"not null;uniqueIndex:idx_subs_user_recipient"`
	Recipient string `gorm:"not null;uniqueIndex:idx_subs_user_recipient;index:idx_subs_recipient_active"`
	Active    bool   `gorm:"not null;index:idx_subs_recipient_active"`
	IsMuted   bool   `gorm:"not null"`
	PinToTop  bool   `gorm:"not null"`
	Color     string

	// Nil means inherit.
	DesktopNotifications   *bool
	AudibleNotifications   *bool
	PushNotifications      *bool
	EmailNotifications     *bool
	WildcardMentionsNotify *bool
}

func (subRow) TableName() string { return "subscriptions" }

type muteRow struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	User      string `gorm:"not null;uniqueIndex:idx_mutes_user_topic"`
	Stream    string `gorm:"not null"`
	Recipient string `gorm:"not null;uniqueIndex:idx_mutes_user_topic;index:idx_mutes_recipient_topic"`
	TopicName string `gorm:"not null"`
	TopicKey  string `gorm:"not null;uniqueIndex:idx_mutes_user_topic;index:idx_mutes_recipient_topic"`
}

func (muteRow) TableName() string { return "topicmutes" }

// WARNING: Order is important. Do not change without database testing.
var allTables = []interface{}{&realmRow{}, &userRow{}, &recipientRow{}, &streamRow{}, &subRow{}, &muteRow{}, &kvMeta{}}

func (a *adapter) getContext() (context.Context, context.CancelFunc) {
	if a.sqlTimeout > 0 {
		return context.WithTimeout(context.Background(), a.sqlTimeout)
	}
	return context.WithCancel(context.Background())
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// Open initializes the database.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("adapter sqlite is already connected")
	}

	var config configType
	if len(jsonconfig) > 1 {
		if err := json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("adapter sqlite failed to parse config: " + err.Error())
		}
	}

	path := config.Database
	if path == "" {
		path = temporaryDbPath
		logs.Warn.Println("sqlite: no database file path specified, using temporary in-memory database")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.New(logs.Info, logger.Config{LogLevel: parseLogLevel(config.LogLevel)}),
		TranslateError: true,
	})
	if err != nil {
		return errors.New("adapter sqlite failed to open database: " + err.Error())
	}

	sqlDb, err := db.DB()
	if err != nil {
		return err
	}
	if config.MaxOpenConns > 0 {
		sqlDb.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDb.SetMaxIdleConns(config.MaxIdleConns)
	}

	a.sqlTimeout = time.Duration(config.SqlTimeout) * time.Second
	if a.maxResults <= 0 {
		a.maxResults = defaultMaxResults
	}
	a.db = db
	a.version = -1

	return nil
}

// Close closes the underlying database connection.
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		if sqlDb, e := a.db.DB(); e == nil {
			err = sqlDb.Close()
		}
		a.db = nil
		a.version = -1
	}
	return err
}

// IsOpen returns true if connection to database has been established.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	if !a.db.Migrator().HasTable(&kvMeta{}) {
		return -1, errors.New("Database not initialized")
	}

	ctx, cancel := a.getContext()
	defer cancel()

	var meta kvMeta
	if err := a.db.WithContext(ctx).Take(&meta, "key = ?", "version").Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return -1, errors.New("Database not initialized")
		}
		return -1, err
	}

	a.version = meta.Value
	return a.version, nil
}

// CheckDbVersion checks whether the actual DB version matches the expected version of this adapter.
func (a *adapter) CheckDbVersion() error {
	version, err := a.GetDbVersion()
	if err != nil {
		return err
	}

	if version != adpVersion {
		return errors.New("Invalid database version " + strconv.Itoa(version) +
			". Expected " + strconv.Itoa(adpVersion))
	}

	return nil
}

// Version returns adapter version.
func (adapter) Version() int {
	return adpVersion
}

// Stats returns DB connection stats object.
func (a *adapter) Stats() interface{} {
	if a.db == nil {
		return nil
	}
	sqlDb, err := a.db.DB()
	if err != nil {
		return nil
	}
	return sqlDb.Stats()
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// SetMaxResults configures how many results can be returned in a single DB call.
func (a *adapter) SetMaxResults(val int) error {
	if val <= 0 {
		a.maxResults = defaultMaxResults
	} else {
		a.maxResults = val
	}

	return nil
}

// CreateDb initializes the storage. If reset is true, existing tables are dropped first.
func (a *adapter) CreateDb(reset bool) error {
	if reset {
		if err := a.db.Migrator().DropTable(allTables...); err != nil {
			return err
		}
		a.version = -1
	}

	if err := a.db.AutoMigrate(allTables...); err != nil {
		return err
	}

	return a.db.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&kvMeta{Key: "version", Value: adpVersion}).Error
}

func toRealmRow(realm *t.Realm) *realmRow {
	return &realmRow{
		Id:                     realm.Id,
		CreatedAt:              realm.CreatedAt,
		UpdatedAt:              realm.UpdatedAt,
		Name:                   realm.Name,
		IsZephyrMirrorRealm:    realm.IsZephyrMirrorRealm,
		WaitingPeriodThreshold: realm.WaitingPeriodThreshold,
		CreateStreamPolicy:     realm.CreateStreamPolicy,
		InviteToStreamPolicy:   realm.InviteToStreamPolicy,
		NotificationsStream:    realm.NotificationsStream.String(),
	}
}

func (r *realmRow) realm() *t.Realm {
	realm := &t.Realm{
		ObjHeader:              t.ObjHeader{Id: r.Id, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		Name:                   r.Name,
		IsZephyrMirrorRealm:    r.IsZephyrMirrorRealm,
		WaitingPeriodThreshold: r.WaitingPeriodThreshold,
		CreateStreamPolicy:     r.CreateStreamPolicy,
		InviteToStreamPolicy:   r.InviteToStreamPolicy,
		NotificationsStream:    t.ParseUid(r.NotificationsStream),
	}
	return realm
}

func toUserRow(user *t.User) *userRow {
	return &userRow{
		Id:                               user.Id,
		CreatedAt:                        user.CreatedAt,
		UpdatedAt:                        user.UpdatedAt,
		Realm:                            user.Realm.String(),
		Email:                            user.Email,
		EmailKey:                         strings.ToLower(user.Email),
		FullName:                         user.FullName,
		Role:                             int(user.Role),
		IsActive:                         user.IsActive,
		BotType:                          int(user.BotType),
		BotOwner:                         user.BotOwner.String(),
		LongTermIdle:                     user.LongTermIdle,
		EnableStreamDesktopNotifications: user.EnableStreamDesktopNotifications,
		EnableStreamAudibleNotifications: user.EnableStreamAudibleNotifications,
		EnableStreamPushNotifications:    user.EnableStreamPushNotifications,
		EnableStreamEmailNotifications:   user.EnableStreamEmailNotifications,
		EnableOfflineEmailNotifications:  user.EnableOfflineEmailNotifications,
		EnableOnlinePushNotifications:    user.EnableOnlinePushNotifications,
		WildcardMentionsNotify:           user.WildcardMentionsNotify,
	}
}

func (r *userRow) user() t.User {
	return t.User{
		ObjHeader:                        t.ObjHeader{Id: r.Id, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		Realm:                            t.ParseUid(r.Realm),
		Email:                            r.Email,
		FullName:                         r.FullName,
		Role:                             t.Role(r.Role),
		IsActive:                         r.IsActive,
		BotType:                          t.BotType(r.BotType),
		BotOwner:                         t.ParseUid(r.BotOwner),
		LongTermIdle:                     r.LongTermIdle,
		EnableStreamDesktopNotifications: r.EnableStreamDesktopNotifications,
		EnableStreamAudibleNotifications: r.EnableStreamAudibleNotifications,
		EnableStreamPushNotifications:    r.EnableStreamPushNotifications,
		EnableStreamEmailNotifications:   r.EnableStreamEmailNotifications,
		EnableOfflineEmailNotifications:  r.EnableOfflineEmailNotifications,
		EnableOnlinePushNotifications:    r.EnableOnlinePushNotifications,
		WildcardMentionsNotify:           r.WildcardMentionsNotify,
	}
}

func toRecipientRow(rcpt *t.Recipient) *recipientRow {
	return &recipientRow{
		Id:        rcpt.Id,
		CreatedAt: rcpt.CreatedAt,
		UpdatedAt: rcpt.UpdatedAt,
		Type:      int(rcpt.Type),
		TypeId:    rcpt.TypeId.String(),
	}
}

func toStreamRow(stream *t.Stream) *streamRow {
	return &streamRow{
		Id:                         stream.Id,
		CreatedAt:                  stream.CreatedAt,
		UpdatedAt:                  stream.UpdatedAt,
		Realm:                      stream.Realm.String(),
		Name:                       stream.Name,
		NameKey:                    common.StreamNameKey(stream.Name),
		Description:                stream.Description,
		InviteOnly:                 stream.InviteOnly,
		PostPolicy:                 int(stream.PostPolicy),
		HistoryPublicToSubscribers: stream.HistoryPublicToSubscribers,
		IsInZephyrRealm:            stream.IsInZephyrRealm,
		Recipient:                  stream.Recipient.String(),
		Deactivated:                stream.Deactivated,
	}
}

func (r *streamRow) stream() t.Stream {
	return t.Stream{
		ObjHeader:                  t.ObjHeader{Id: r.Id, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		Realm:                      t.ParseUid(r.Realm),
		Name:                       r.Name,
		Description:                r.Description,
		InviteOnly:                 r.InviteOnly,
		PostPolicy:                 t.PostPolicy(r.PostPolicy),
		HistoryPublicToSubscribers: r.HistoryPublicToSubscribers,
		IsInZephyrRealm:            r.IsInZephyrRealm,
		Recipient:                  t.ParseUid(r.Recipient),
		Deactivated:                r.Deactivated,
	}
}

func toSubRow(sub *t.Subscription) *subRow {
	return &subRow{
		Id:                     sub.Id,
		CreatedAt:              sub.CreatedAt,
		UpdatedAt:              sub.UpdatedAt,
		User:                   sub.User.String(),
		Recipient:              sub.Recipient.String(),
		Active:                 sub.Active,
		IsMuted:                sub.IsMuted,
		PinToTop:               sub.PinToTop,
		Color:                  sub.Color,
		DesktopNotifications:   sub.DesktopNotifications,
		AudibleNotifications:   sub.AudibleNotifications,
		PushNotifications:      sub.PushNotifications,
		EmailNotifications:     sub.EmailNotifications,
		WildcardMentionsNotify: sub.WildcardMentionsNotify,
	}
}

func (r *subRow) sub() t.Subscription {
	return t.Subscription{
		ObjHeader:              t.ObjHeader{Id: r.Id, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		User:                   t.ParseUid(r.User),
		Recipient:              t.ParseUid(r.Recipient),
		Active:                 r.Active,
		IsMuted:                r.IsMuted,
		PinToTop:               r.PinToTop,
		Color:                  r.Color,
		DesktopNotifications:   r.DesktopNotifications,
		AudibleNotifications:   r.AudibleNotifications,
		PushNotifications:      r.PushNotifications,
		EmailNotifications:     r.EmailNotifications,
		WildcardMentionsNotify: r.WildcardMentionsNotify,
	}
}

// RealmCreate creates a realm record.
func (a *adapter) RealmCreate(realm *t.Realm) error {
	ctx, cancel := a.getContext()
	defer cancel()
	return a.db.WithContext(ctx).Create(toRealmRow(realm)).Error
}

// RealmGet returns realm by id or nil.
func (a *adapter) RealmGet(id t.Uid) (*t.Realm, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row realmRow
	if err := a.db.WithContext(ctx).Take(&row, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.realm(), nil
}

// UserCreate creates user record.
func (a *adapter) UserCreate(user *t.User) error {
	ctx, cancel := a.getContext()
	defer cancel()
	if err := a.db.WithContext(ctx).Create(toUserRow(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return t.ErrDuplicate
		}
		return err
	}
	return nil
}

// UserGet fetches a single user by user id. If user is not found it returns (nil, nil).
func (a *adapter) UserGet(uid t.Uid) (*t.User, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row userRow
	if err := a.db.WithContext(ctx).Take(&row, "id = ?", uid.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	user := row.user()
	return &user, nil
}

// UserGetAll returns user records for a given list of user IDs.
func (a *adapter) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var rows []userRow
	if err := a.db.WithContext(ctx).Where("id IN ?", uidStrings(ids)).Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]t.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].user())
	}
	return users, nil
}

// UserGetByEmail finds a user of the realm by email.
func (a *adapter) UserGetByEmail(realm t.Uid, email string) (*t.User, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row userRow
	if err := a.db.WithContext(ctx).Take(&row, "realm = ? AND email_key = ?",
		realm.String(), strings.ToLower(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	user := row.user()
	return &user, nil
}

// UserIdsForRealm returns ids of active users of the realm.
func (a *adapter) UserIdsForRealm(realm t.Uid, roles []t.Role, includeBots bool) ([]t.Uid, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	q := a.db.WithContext(ctx).Model(&userRow{}).Where("realm = ? AND is_active = ?", realm.String(), true)
	if len(roles) > 0 {
		ints := make([]int, len(roles))
		for i, r := range roles {
			ints[i] = int(r)
		}
		q = q.Where("role IN ?", ints)
	}
	if !includeBots {
		q = q.Where("bot_type = ?", int(t.BotNone))
	}

	var ids []string
	if err := q.Order("id").Limit(a.maxResults).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return parseUids(ids), nil
}

// UserUpdate updates user record.
func (a *adapter) UserUpdate(uid t.Uid, update map[string]interface{}) error {
	update = normalizeUpdateMap(update)
	if email, ok := update["Email"].(string); ok {
		update["EmailKey"] = strings.ToLower(email)
	}
	return a.updateOne(&userRow{}, "id = ?", []interface{}{uid.String()}, update)
}

func (a *adapter) updateOne(model interface{}, where string, args []interface{}, update map[string]interface{}) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res := a.db.WithContext(ctx).Model(model).Where(where, args...).Updates(update)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return t.ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return t.ErrNotFound
	}
	return nil
}

// RecipientCreate creates a recipient record.
func (a *adapter) RecipientCreate(rcpt *t.Recipient) error {
	ctx, cancel := a.getContext()
	defer cancel()
	return a.db.WithContext(ctx).Create(toRecipientRow(rcpt)).Error
}

// RecipientGet returns recipient by id or nil.
func (a *adapter) RecipientGet(id t.Uid) (*t.Recipient, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row recipientRow
	if err := a.db.WithContext(ctx).Take(&row, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t.Recipient{
		ObjHeader: t.ObjHeader{Id: row.Id, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		Type:      t.RecipientType(row.Type),
		TypeId:    t.ParseUid(row.TypeId),
	}, nil
}

// StreamGetOrCreate inserts the stream unless (realm, namekey) is taken. The unique index
// is the authority: the loser reads the winner's row.
func (a *adapter) StreamGetOrCreate(stream *t.Stream, rcpt *t.Recipient) (bool, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	row := toStreamRow(stream)
	var created bool
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing streamRow
			if err := tx.Take(&existing, "realm = ? AND name_key = ?", row.Realm, row.NameKey).Error; err != nil {
				return err
			}
			*stream = existing.stream()
			return nil
		}
		created = true
		return tx.Create(toRecipientRow(rcpt)).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// StreamGet returns stream by id or nil.
func (a *adapter) StreamGet(id t.Uid) (*t.Stream, error) {
	return a.streamTake("id = ?", id.String())
}

// StreamGetByName returns stream by case-insensitive name or nil.
func (a *adapter) StreamGetByName(realm t.Uid, name string) (*t.Stream, error) {
	return a.streamTake("realm = ? AND name_key = ?", realm.String(), common.StreamNameKey(name))
}

func (a *adapter) streamTake(where string, args ...interface{}) (*t.Stream, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row streamRow
	if err := a.db.WithContext(ctx).Where(where, args...).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	stream := row.stream()
	return &stream, nil
}

// StreamGetByNames returns streams of the realm matching any of the names.
func (a *adapter) StreamGetByNames(realm t.Uid, names []string) ([]t.Stream, error) {
	keys := common.StreamNameKeys(names)
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, cancel := a.getContext()
	defer cancel()

	var rows []streamRow
	if err := a.db.WithContext(ctx).Where("realm = ? AND name_key IN ?", realm.String(), keys).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	streams := make([]t.Stream, 0, len(rows))
	for i := range rows {
		streams = append(streams, rows[i].stream())
	}
	return streams, nil
}

// StreamUpdate updates stream record.
func (a *adapter) StreamUpdate(id t.Uid, update map[string]interface{}) error {
	update = normalizeUpdateMap(update)
	if name, ok := update["Name"].(string); ok {
		update["NameKey"] = common.StreamNameKey(name)
	}
	return a.updateOne(&streamRow{}, "id = ?", []interface{}{id.String()}, update)
}

// StreamDeactivate renames the stream, makes it private, flags it deactivated and
// deactivates all subscriptions to it in one transaction.
func (a *adapter) StreamDeactivate(id, recipient t.Uid, name string) error {
	ctx, cancel := a.getContext()
	defer cancel()

	now := t.TimeNow()
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&subRow{}).Where("recipient = ? AND active = ?", recipient.String(), true).
			Updates(map[string]interface{}{"Active": false, "UpdatedAt": now}).Error; err != nil {
			return err
		}
		res := tx.Model(&streamRow{}).Where("id = ?", id.String()).Updates(map[string]interface{}{
			"Name":        name,
			"NameKey":     common.StreamNameKey(name),
			"InviteOnly":  true,
			"Deactivated": true,
			"UpdatedAt":   now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return t.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return t.ErrDuplicate
	}
	return err
}

// SubsUpsert creates subscriptions or re-activates existing ones in one transaction.
func (a *adapter) SubsUpsert(subs []*t.Subscription) error {
	rows := make([]*subRow, len(subs))
	for i, sub := range subs {
		rows[i] = toSubRow(sub)
	}

	ctx, cancel := a.getContext()
	defer cancel()

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user"}, {Name: "recipient"}},
			DoUpdates: clause.AssignmentColumns([]string{"active", "updated_at"}),
		}).Create(rows).Error
	})
}

// SubscriptionGet returns the subscription, active or not.
func (a *adapter) SubscriptionGet(user, recipient t.Uid) (*t.Subscription, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row subRow
	if err := a.db.WithContext(ctx).Take(&row, "user = ? AND recipient = ?",
		user.String(), recipient.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sub := row.sub()
	return &sub, nil
}

func (a *adapter) findSubs(where string, args ...interface{}) ([]t.Subscription, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var rows []subRow
	if err := a.db.WithContext(ctx).Where(where, args...).Order("user").Find(&rows).Error; err != nil {
		return nil, err
	}
	subs := make([]t.Subscription, 0, len(rows))
	for i := range rows {
		subs = append(subs, rows[i].sub())
	}
	return subs, nil
}

// SubsForRecipient returns active subscriptions to the recipient.
func (a *adapter) SubsForRecipient(recipient t.Uid) ([]t.Subscription, error) {
	return a.findSubs("recipient = ? AND active = ?", recipient.String(), true)
}

// SubsForUser returns active subscriptions of the user.
func (a *adapter) SubsForUser(user t.Uid, recipients []t.Uid) ([]t.Subscription, error) {
	if len(recipients) == 0 {
		return a.findSubs("user = ? AND active = ?", user.String(), true)
	}
	return a.findSubs("user = ? AND active = ? AND recipient IN ?", user.String(), true, uidStrings(recipients))
}

// SubsUpdate updates a single subscription.
func (a *adapter) SubsUpdate(user, recipient t.Uid, update map[string]interface{}) error {
	return a.updateOne(&subRow{}, "user = ? AND recipient = ?",
		[]interface{}{user.String(), recipient.String()}, normalizeUpdateMap(update))
}

// SubsDeactivate marks subscriptions as inactive.
func (a *adapter) SubsDeactivate(user t.Uid, recipients []t.Uid) error {
	ctx, cancel := a.getContext()
	defer cancel()

	return a.db.WithContext(ctx).Model(&subRow{}).
		Where("user = ? AND recipient IN ?", user.String(), uidStrings(recipients)).
		Updates(map[string]interface{}{"Active": false, "UpdatedAt": t.TimeNow()}).Error
}

// MuteCreate saves a topic mute.
func (a *adapter) MuteCreate(mute *t.TopicMute) error {
	ctx, cancel := a.getContext()
	defer cancel()

	err := a.db.WithContext(ctx).Create(&muteRow{
		Id:        mute.Id,
		CreatedAt: mute.CreatedAt,
		UpdatedAt: mute.UpdatedAt,
		User:      mute.User.String(),
		Stream:    mute.Stream.String(),
		Recipient: mute.Recipient.String(),
		TopicName: mute.TopicName,
		TopicKey:  common.TopicKey(mute.TopicName),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return t.ErrDuplicate
	}
	return err
}

// MuteDelete deletes a topic mute.
func (a *adapter) MuteDelete(user, recipient t.Uid, topic string) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res := a.db.WithContext(ctx).Where("user = ? AND recipient = ? AND topic_key = ?",
		user.String(), recipient.String(), common.TopicKey(topic)).Delete(&muteRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return t.ErrNotFound
	}
	return nil
}

// MuteExists checks if the user muted the topic.
func (a *adapter) MuteExists(user, recipient t.Uid, topic string) (bool, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var count int64
	err := a.db.WithContext(ctx).Model(&muteRow{}).Where("user = ? AND recipient = ? AND topic_key = ?",
		user.String(), recipient.String(), common.TopicKey(topic)).Count(&count).Error
	return count > 0, err
}

// MuteUsersForTopic returns ids of users who muted the topic.
func (a *adapter) MuteUsersForTopic(recipient t.Uid, topic string) ([]t.Uid, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var ids []string
	if err := a.db.WithContext(ctx).Model(&muteRow{}).Where("recipient = ? AND topic_key = ?",
		recipient.String(), common.TopicKey(topic)).Pluck("user", &ids).Error; err != nil {
		return nil, err
	}
	return parseUids(ids), nil
}

func uidStrings(ids []t.Uid) []string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return strs
}

func parseUids(strs []string) []t.Uid {
	ids := make([]t.Uid, 0, len(strs))
	for _, s := range strs {
		ids = append(ids, t.ParseUid(s))
	}
	return ids
}

// Map keys are Go field names, resolved by GORM. Typed values are converted to column types.
func normalizeUpdateMap(update map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(update))
	for key, value := range update {
		switch v := value.(type) {
		case t.Uid:
			value = v.String()
		case t.Role:
			value = int(v)
		case t.PostPolicy:
			value = int(v)
		case t.BotType:
			value = int(v)
		}
		result[key] = value
	}
	return result
}

func init() {
	store.RegisterAdapter(&adapter{})
}
