//go:build mysql
// +build mysql

// Package mysql is a database adapter for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/store"
	t "github.com/relaynet/streams/server/store/types"
)

// adapter holds MySQL connection data.
type adapter struct {
	db     *sqlx.DB
	dsn    string
	dbName string
	// Maximum number of records to return
	maxResults int
	version    int

	// Single query timeout.
	sqlTimeout time.Duration
	// DB transaction timeout.
	txTimeout time.Duration
}

const (
	defaultDSN      = "root:@tcp(localhost:3306)/streams?parseTime=true"
	defaultDatabase = "streams"

	adpVersion  = 1
	adapterName = "mysql"

	defaultMaxResults = 1024

	txTimeoutMultiplier = 1.5
)

type configType struct {
	// DB connection settings.
	// Please, see https://pkg.go.dev/github.com/go-sql-driver/mysql#Config
	// for the full list of fields.
	ms.Config
	// Deprecated.
	DSN      string `json:"dsn,omitempty"`
	Database string `json:"database,omitempty"`

	// Connection pool settings.
	//
	// Maximum number of open connections to the database.
	MaxOpenConns int `json:"max_open_conns,omitempty"`
	// Maximum number of connections in the idle connection pool.
	MaxIdleConns int `json:"max_idle_conns,omitempty"`
	// Maximum amount of time a connection may be reused (in seconds).
	ConnMaxLifetime int `json:"conn_max_lifetime,omitempty"`

	// DB request timeout (in seconds).
	SqlTimeout int `json:"sql_timeout,omitempty"`
}

const (
	realmCols = "id,createdat,updatedat,name,iszephyrmirrorrealm,waitingperiodthreshold," +
		"createstreampolicy,invitetostreampolicy,notificationsstream"
	userCols = "id,createdat,updatedat,realm,email,fullname,role,isactive,bottype,botowner,longtermidle," +
		"enablestreamdesktopnotifications,enablestreamaudiblenotifications,enablestreampushnotifications," +
		"enablestreamemailnotifications,enableofflineemailnotifications,enableonlinepushnotifications," +
		"wildcardmentionsnotify"
	streamCols = "id,createdat,updatedat,realm,name,description,inviteonly,postpolicy," +
		"historypublictosubscribers,isinzephyrrealm,recipient,deactivated"
	subCols = "id,createdat,updatedat,userid,recipient,active,ismuted,pintotop,color," +
		"desktopnotifications,audiblenotifications,pushnotifications,emailnotifications,wildcardmentionsnotify"
)

func (a *adapter) getContext() (context.Context, context.CancelFunc) {
	if a.sqlTimeout > 0 {
		return context.WithTimeout(context.Background(), a.sqlTimeout)
	}
	return context.Background(), nil
}

func (a *adapter) getContextForTx() (context.Context, context.CancelFunc) {
	if a.txTimeout > 0 {
		return context.WithTimeout(context.Background(), a.txTimeout)
	}
	return context.Background(), nil
}

// Open initializes database session
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("mysql adapter is already connected")
	}

	if len(jsonconfig) < 2 {
		return errors.New("adapter mysql missing config")
	}

	var err error
	defaultCfg := ms.NewConfig()
	config := configType{Config: *defaultCfg}
	if err = json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("mysql adapter failed to parse config: " + err.Error())
	}

	if dsn := config.FormatDSN(); dsn != defaultCfg.FormatDSN() {
		// MySql config is specified. Use it.
		a.dbName = config.DBName
		a.dsn = dsn
		if config.DSN != "" || config.Database != "" {
			return errors.New("mysql config: `dsn` and `database` fields are deprecated. Please, specify individual connection settings via mysql.Config: https://pkg.go.dev/github.com/go-sql-driver/mysql#Config")
		}
	} else {
		// Otherwise, use DSN and Database to configure database connection.
		if config.DSN != "" {
			a.dsn = config.DSN
		} else {
			a.dsn = defaultDSN
		}
		a.dbName = config.Database
	}

	// Make sure timestamps are parsed into time.Time.
	cfg, err := ms.ParseDSN(a.dsn)
	if err != nil {
		return err
	}
	cfg.ParseTime = true
	a.dsn = cfg.FormatDSN()

	if a.dbName == "" {
		a.dbName = defaultDatabase
	}

	if a.maxResults <= 0 {
		a.maxResults = defaultMaxResults
	}

	// This just initializes the driver but does not open the network connection.
	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}

	// Actually opening the network connection.
	err = a.db.Ping()
	if isMissingDb(err) {
		// Ignore missing database here. If we are initializing the database
		// missing DB is OK.
		err = nil
	}
	if err == nil {
		if config.MaxOpenConns > 0 {
			a.db.SetMaxOpenConns(config.MaxOpenConns)
		}
		if config.MaxIdleConns > 0 {
			a.db.SetMaxIdleConns(config.MaxIdleConns)
		}
		if config.ConnMaxLifetime > 0 {
			a.db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
		}
		if config.SqlTimeout > 0 {
			a.sqlTimeout = time.Duration(config.SqlTimeout) * time.Second
			a.txTimeout = time.Duration(float64(config.SqlTimeout)*txTimeoutMultiplier) * time.Second
		}
	}
	return err
}

// Close closes the underlying database connection
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
		a.version = -1
	}
	return err
}

// IsOpen returns true if connection to database has been established. It does not check if
// connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	var vers int
	err := a.db.GetContext(ctx, &vers, "SELECT `value` FROM kvmeta WHERE `key`='version'")
	if err != nil {
		if isMissingDb(err) || isMissingTable(err) || err == sql.ErrNoRows {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}

	a.version = vers

	return vers, nil
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
	return a.db.Stats()
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

// CreateDb initializes the storage.
func (a *adapter) CreateDb(reset bool) error {
	var err error
	var tx *sql.Tx

	// Can't use an existing connection because it's configured with a database name which may not exist.
	// Don't care if it does not close cleanly.
	a.db.Close()

	// This DSN has been parsed before and produced no error, not checking for errors here.
	cfg, _ := ms.ParseDSN(a.dsn)
	// Clear database name
	cfg.DBName = ""

	a.db, err = sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}

	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}

	if tx, err = a.db.BeginTx(ctx, nil); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			// Useless: MySQL auto-commits on every CREATE TABLE.
			tx.Rollback()
		}
	}()

	if reset {
		if _, err = tx.Exec("DROP DATABASE IF EXISTS " + a.dbName); err != nil {
			return err
		}
	}

	if _, err = tx.Exec("CREATE DATABASE " + a.dbName + " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"); err != nil {
		return err
	}

	if _, err = tx.Exec("USE " + a.dbName); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE kvmeta(` +
			"`key`   CHAR(32)," +
			"`value` TEXT," +
			"PRIMARY KEY(`key`)" +
			`)`); err != nil {
		return err
	}
	if _, err = tx.Exec("INSERT INTO kvmeta(`key`, `value`) VALUES('version', ?)", strconv.Itoa(adpVersion)); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE realms(
			id                     BIGINT NOT NULL,
			createdat              DATETIME(3) NOT NULL,
			updatedat              DATETIME(3) NOT NULL,
			name                   VARCHAR(255) NOT NULL,
			iszephyrmirrorrealm    BOOLEAN NOT NULL DEFAULT FALSE,
			waitingperiodthreshold INT NOT NULL DEFAULT 0,
			createstreampolicy     SMALLINT NOT NULL,
			invitetostreampolicy   SMALLINT NOT NULL,
			notificationsstream    BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY(id)
		)`); err != nil {
		return err
	}

	// Emails are compared case-insensitively by the default collation.
	if _, err = tx.Exec(
		`CREATE TABLE users(
			id           BIGINT NOT NULL,
			createdat    DATETIME(3) NOT NULL,
			updatedat    DATETIME(3) NOT NULL,
			realm        BIGINT NOT NULL,
			email        VARCHAR(254) NOT NULL,
			fullname     VARCHAR(255) NOT NULL DEFAULT '',
			role         SMALLINT NOT NULL,
			isactive     BOOLEAN NOT NULL DEFAULT TRUE,
			bottype      SMALLINT NOT NULL DEFAULT 0,
			botowner     BIGINT NOT NULL DEFAULT 0,
			longtermidle BOOLEAN NOT NULL DEFAULT FALSE,
			enablestreamdesktopnotifications BOOLEAN NOT NULL DEFAULT FALSE,
			enablestreamaudiblenotifications BOOLEAN NOT NULL DEFAULT FALSE,
			enablestreampushnotifications    BOOLEAN NOT NULL DEFAULT FALSE,
			enablestreamemailnotifications   BOOLEAN NOT NULL DEFAULT FALSE,
			enableofflineemailnotifications  BOOLEAN NOT NULL DEFAULT TRUE,
			enableonlinepushnotifications    BOOLEAN NOT NULL DEFAULT TRUE,
			wildcardmentionsnotify           BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY(id),
			FOREIGN KEY(realm) REFERENCES realms(id),
			UNIQUE INDEX users_realm_email(realm, email),
			INDEX users_realm_role(realm, role)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE recipients(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			updatedat DATETIME(3) NOT NULL,
			type      SMALLINT NOT NULL,
			typeid    BIGINT NOT NULL,
			PRIMARY KEY(id),
			UNIQUE INDEX recipients_type_typeid(type, typeid)
		)`); err != nil {
		return err
	}

	// The name key is already case-folded, compare it byte by byte.
	if _, err = tx.Exec(
		`CREATE TABLE streams(
			id          BIGINT NOT NULL,
			createdat   DATETIME(3) NOT NULL,
			updatedat   DATETIME(3) NOT NULL,
			realm       BIGINT NOT NULL,
			name        VARCHAR(255) NOT NULL,
			namekey     VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
			description TEXT NOT NULL,
			inviteonly  BOOLEAN NOT NULL DEFAULT FALSE,
			postpolicy  SMALLINT NOT NULL,
			historypublictosubscribers BOOLEAN NOT NULL,
			isinzephyrrealm BOOLEAN NOT NULL DEFAULT FALSE,
			recipient   BIGINT NOT NULL,
			deactivated BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY(id),
			FOREIGN KEY(realm) REFERENCES realms(id),
			UNIQUE INDEX streams_realm_namekey(realm, namekey)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE subscriptions(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			updatedat DATETIME(3) NOT NULL,
			userid    BIGINT NOT NULL,
			recipient BIGINT NOT NULL,
			active    BOOLEAN NOT NULL DEFAULT TRUE,
			ismuted   BOOLEAN NOT NULL DEFAULT FALSE,
			pintotop  BOOLEAN NOT NULL DEFAULT FALSE,
			color     VARCHAR(10) NOT NULL DEFAULT '',
			desktopnotifications   BOOLEAN,
			audiblenotifications   BOOLEAN,
			pushnotifications      BOOLEAN,
			emailnotifications     BOOLEAN,
			wildcardmentionsnotify BOOLEAN,
			PRIMARY KEY(id),
			FOREIGN KEY(userid) REFERENCES users(id),
			UNIQUE INDEX subscriptions_userid_recipient(userid, recipient),
			INDEX subscriptions_recipient_active(recipient, active)
		)`); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE topicmutes(
			id        BIGINT NOT NULL,
			createdat DATETIME(3) NOT NULL,
			userid    BIGINT NOT NULL,
			stream    BIGINT NOT NULL,
			recipient BIGINT NOT NULL,
			topicname VARCHAR(255) NOT NULL,
			topickey  VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
			PRIMARY KEY(id),
			FOREIGN KEY(userid) REFERENCES users(id),
			UNIQUE INDEX topicmutes_userid_recipient_topickey(userid, recipient, topickey),
			INDEX topicmutes_recipient_topickey(recipient, topickey)
		)`); err != nil {
		return err
	}

	return tx.Commit()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRealm(row scanner) (*t.Realm, error) {
	var realm t.Realm
	var id, notif int64
	if err := row.Scan(&id, &realm.CreatedAt, &realm.UpdatedAt, &realm.Name, &realm.IsZephyrMirrorRealm,
		&realm.WaitingPeriodThreshold, &realm.CreateStreamPolicy, &realm.InviteToStreamPolicy, &notif); err != nil {
		return nil, err
	}
	realm.SetUid(store.EncodeUid(id))
	realm.NotificationsStream = store.EncodeUid(notif)
	return &realm, nil
}

func scanUser(row scanner) (*t.User, error) {
	var user t.User
	var id, realm, owner int64
	var role, botType int
	if err := row.Scan(&id, &user.CreatedAt, &user.UpdatedAt, &realm, &user.Email, &user.FullName, &role,
		&user.IsActive, &botType, &owner, &user.LongTermIdle,
		&user.EnableStreamDesktopNotifications, &user.EnableStreamAudibleNotifications,
		&user.EnableStreamPushNotifications, &user.EnableStreamEmailNotifications,
		&user.EnableOfflineEmailNotifications, &user.EnableOnlinePushNotifications,
		&user.WildcardMentionsNotify); err != nil {
		return nil, err
	}
	user.SetUid(store.EncodeUid(id))
	user.Realm = store.EncodeUid(realm)
	user.BotOwner = store.EncodeUid(owner)
	user.Role = t.Role(role)
	user.BotType = t.BotType(botType)
	return &user, nil
}

func scanStream(row scanner) (*t.Stream, error) {
	var stream t.Stream
	var id, realm, rcpt int64
	var policy int
	if err := row.Scan(&id, &stream.CreatedAt, &stream.UpdatedAt, &realm, &stream.Name, &stream.Description,
		&stream.InviteOnly, &policy, &stream.HistoryPublicToSubscribers, &stream.IsInZephyrRealm, &rcpt,
		&stream.Deactivated); err != nil {
		return nil, err
	}
	stream.SetUid(store.EncodeUid(id))
	stream.Realm = store.EncodeUid(realm)
	stream.Recipient = store.EncodeUid(rcpt)
	stream.PostPolicy = t.PostPolicy(policy)
	return &stream, nil
}

func scanSub(row scanner) (*t.Subscription, error) {
	var sub t.Subscription
	var id, user, rcpt int64
	if err := row.Scan(&id, &sub.CreatedAt, &sub.UpdatedAt, &user, &rcpt, &sub.Active, &sub.IsMuted,
		&sub.PinToTop, &sub.Color, &sub.DesktopNotifications, &sub.AudibleNotifications,
		&sub.PushNotifications, &sub.EmailNotifications, &sub.WildcardMentionsNotify); err != nil {
		return nil, err
	}
	sub.SetUid(store.EncodeUid(id))
	sub.User = store.EncodeUid(user)
	sub.Recipient = store.EncodeUid(rcpt)
	return &sub, nil
}

func (a *adapter) exec(query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	return a.db.ExecContext(ctx, query, args...)
}

// RealmCreate creates a realm record.
func (a *adapter) RealmCreate(realm *t.Realm) error {
	_, err := a.exec("INSERT INTO realms("+realmCols+") VALUES(?,?,?,?,?,?,?,?,?)",
		store.DecodeUid(realm.Uid()), realm.CreatedAt, realm.UpdatedAt, realm.Name, realm.IsZephyrMirrorRealm,
		realm.WaitingPeriodThreshold, realm.CreateStreamPolicy, realm.InviteToStreamPolicy,
		store.DecodeUid(realm.NotificationsStream))
	return err
}

// RealmGet returns realm by id.
func (a *adapter) RealmGet(id t.Uid) (*t.Realm, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	realm, err := scanRealm(a.db.QueryRowContext(ctx, "SELECT "+realmCols+" FROM realms WHERE id=?", store.DecodeUid(id)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return realm, err
}

// UserCreate creates user record.
func (a *adapter) UserCreate(user *t.User) error {
	_, err := a.exec("INSERT INTO users("+userCols+") VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		store.DecodeUid(user.Uid()), user.CreatedAt, user.UpdatedAt, store.DecodeUid(user.Realm), user.Email,
		user.FullName, int(user.Role), user.IsActive, int(user.BotType), store.DecodeUid(user.BotOwner),
		user.LongTermIdle, user.EnableStreamDesktopNotifications, user.EnableStreamAudibleNotifications,
		user.EnableStreamPushNotifications, user.EnableStreamEmailNotifications,
		user.EnableOfflineEmailNotifications, user.EnableOnlinePushNotifications, user.WildcardMentionsNotify)
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// UserGet fetches a single user by user id. If user is not found it returns (nil, nil)
func (a *adapter) UserGet(uid t.Uid) (*t.User, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	user, err := scanUser(a.db.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE id=?", store.DecodeUid(uid)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

func (a *adapter) queryUsers(query string, args ...interface{}) ([]t.User, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []t.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UserGetAll returns user records for a given list of user IDs
func (a *adapter) UserGetAll(ids ...t.Uid) ([]t.User, error) {
	q, args, err := sqlx.In("SELECT "+userCols+" FROM users WHERE id IN (?)", decodeUids(ids))
	if err != nil {
		return nil, err
	}
	return a.queryUsers(q, args...)
}

// UserGetByEmail finds a user of the realm by email.
func (a *adapter) UserGetByEmail(realm t.Uid, email string) (*t.User, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	user, err := scanUser(a.db.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE realm=? AND email=?",
		store.DecodeUid(realm), email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// UserIdsForRealm returns ids of active users of the realm.
func (a *adapter) UserIdsForRealm(realm t.Uid, roles []t.Role, includeBots bool) ([]t.Uid, error) {
	q := "SELECT id FROM users WHERE realm=? AND isactive=TRUE"
	args := []interface{}{store.DecodeUid(realm)}
	if len(roles) > 0 {
		r := make([]int, len(roles))
		for i, role := range roles {
			r[i] = int(role)
		}
		q += " AND role IN (?)"
		args = append(args, r)
	}
	if !includeBots {
		q += " AND bottype=0"
	}
	q += " ORDER BY id"
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, err
	}
	return a.queryIds(q, args...)
}

func (a *adapter) queryIds(query string, args ...interface{}) ([]t.Uid, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []t.Uid
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, store.EncodeUid(id))
	}
	return ids, rows.Err()
}

// UserUpdate updates user record
func (a *adapter) UserUpdate(uid t.Uid, update map[string]interface{}) error {
	return a.updateWhere("users", update, "id=?", store.DecodeUid(uid))
}

func (a *adapter) updateWhere(table string, update map[string]interface{}, where string, keys ...interface{}) error {
	cols, args := updateByMap(update)
	args = append(args, keys...)
	res, err := a.exec("UPDATE "+table+" SET "+strings.Join(cols, ",")+" WHERE "+where, args...)
	if err != nil {
		return err
	}
	// MySQL reports 0 affected rows when values did not change. Check existence separately.
	if n, _ := res.RowsAffected(); n == 0 {
		var count int
		ctx, cancel := a.getContext()
		if cancel != nil {
			defer cancel()
		}
		if err = a.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table+" WHERE "+where, keys...); err != nil {
			return err
		}
		if count == 0 {
			return t.ErrNotFound
		}
	}
	return nil
}

// RecipientCreate creates a recipient record.
func (a *adapter) RecipientCreate(rcpt *t.Recipient) error {
	_, err := a.exec("INSERT INTO recipients(id,createdat,updatedat,type,typeid) VALUES(?,?,?,?,?)",
		store.DecodeUid(rcpt.Uid()), rcpt.CreatedAt, rcpt.UpdatedAt, int(rcpt.Type), store.DecodeUid(rcpt.TypeId))
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// RecipientGet returns recipient by id.
func (a *adapter) RecipientGet(id t.Uid) (*t.Recipient, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	var rcpt t.Recipient
	var rid, typeId int64
	var rtype int
	err := a.db.QueryRowContext(ctx, "SELECT id,createdat,updatedat,type,typeid FROM recipients WHERE id=?",
		store.DecodeUid(id)).Scan(&rid, &rcpt.CreatedAt, &rcpt.UpdatedAt, &rtype, &typeId)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rcpt.SetUid(store.EncodeUid(rid))
	rcpt.Type = t.RecipientType(rtype)
	rcpt.TypeId = store.EncodeUid(typeId)
	return &rcpt, nil
}

// StreamGetOrCreate creates the stream and its recipient in one transaction. A duplicate key
// error on (realm, namekey) means the stream exists: it's loaded into the stream argument.
func (a *adapter) StreamGetOrCreate(stream *t.Stream, rcpt *t.Recipient) (bool, error) {
	ctx, cancel := a.getContextForTx()
	if cancel != nil {
		defer cancel()
	}
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	realm := store.DecodeUid(stream.Realm)
	nameKey := common.StreamNameKey(stream.Name)
	_, err = tx.ExecContext(ctx, "INSERT INTO streams("+streamCols+",namekey) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)",
		store.DecodeUid(stream.Uid()), stream.CreatedAt, stream.UpdatedAt, realm, stream.Name,
		stream.Description, stream.InviteOnly, int(stream.PostPolicy), stream.HistoryPublicToSubscribers,
		stream.IsInZephyrRealm, store.DecodeUid(stream.Recipient), stream.Deactivated, nameKey)
	if isDupe(err) {
		tx.Rollback()
		err = nil
		existing, err := scanStream(a.db.QueryRowContext(ctx,
			"SELECT "+streamCols+" FROM streams WHERE realm=? AND namekey=?", realm, nameKey))
		if err != nil {
			return false, err
		}
		*stream = *existing
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err = tx.ExecContext(ctx, "INSERT INTO recipients(id,createdat,updatedat,type,typeid) VALUES(?,?,?,?,?)",
		store.DecodeUid(rcpt.Uid()), rcpt.CreatedAt, rcpt.UpdatedAt, int(rcpt.Type),
		store.DecodeUid(rcpt.TypeId)); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// StreamGet returns stream by id.
func (a *adapter) StreamGet(id t.Uid) (*t.Stream, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	stream, err := scanStream(a.db.QueryRowContext(ctx, "SELECT "+streamCols+" FROM streams WHERE id=?",
		store.DecodeUid(id)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return stream, err
}

// StreamGetByName returns stream by case-insensitive name.
func (a *adapter) StreamGetByName(realm t.Uid, name string) (*t.Stream, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	stream, err := scanStream(a.db.QueryRowContext(ctx, "SELECT "+streamCols+" FROM streams WHERE realm=? AND namekey=?",
		store.DecodeUid(realm), common.StreamNameKey(name)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return stream, err
}

// StreamGetByNames returns streams of the realm matching any of the names.
func (a *adapter) StreamGetByNames(realm t.Uid, names []string) ([]t.Stream, error) {
	keys := common.StreamNameKeys(names)
	if len(keys) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In("SELECT "+streamCols+" FROM streams WHERE realm=? AND namekey IN (?)",
		store.DecodeUid(realm), keys)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streams []t.Stream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, *stream)
	}
	return streams, rows.Err()
}

// StreamUpdate updates stream record. Renaming also updates the name key.
func (a *adapter) StreamUpdate(id t.Uid, update map[string]interface{}) error {
	if name, ok := update["Name"].(string); ok {
		update["NameKey"] = common.StreamNameKey(name)
	}
	err := a.updateWhere("streams", update, "id=?", store.DecodeUid(id))
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// StreamDeactivate renames the stream, makes it private, flags it deactivated and
// deactivates all subscriptions to it in one transaction.
func (a *adapter) StreamDeactivate(id, recipient t.Uid, name string) error {
	ctx, cancel := a.getContextForTx()
	if cancel != nil {
		defer cancel()
	}
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := t.TimeNow()
	if _, err = tx.ExecContext(ctx, "UPDATE subscriptions SET active=FALSE,updatedat=? WHERE recipient=? AND active=TRUE",
		now, store.DecodeUid(recipient)); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE streams SET name=?,namekey=?,inviteonly=TRUE,deactivated=TRUE,updatedat=? "+
		"WHERE id=?", name, common.StreamNameKey(name), now, store.DecodeUid(id)); err != nil {
		if isDupe(err) {
			err = t.ErrDuplicate
		}
		return err
	}

	return tx.Commit()
}

// SubsUpsert creates subscriptions or re-activates existing ones.
func (a *adapter) SubsUpsert(subs []*t.Subscription) error {
	ctx, cancel := a.getContextForTx()
	if cancel != nil {
		defer cancel()
	}
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, sub := range subs {
		if _, err = tx.ExecContext(ctx, "INSERT INTO subscriptions("+subCols+") "+
			"VALUES(?,?,?,?,?,TRUE,?,?,?,?,?,?,?,?) "+
			"ON DUPLICATE KEY UPDATE active=TRUE, updatedat=VALUES(updatedat)",
			store.DecodeUid(sub.Uid()), sub.CreatedAt, sub.UpdatedAt, store.DecodeUid(sub.User),
			store.DecodeUid(sub.Recipient), sub.IsMuted, sub.PinToTop, sub.Color, sub.DesktopNotifications,
			sub.AudibleNotifications, sub.PushNotifications, sub.EmailNotifications,
			sub.WildcardMentionsNotify); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SubscriptionGet returns the subscription, active or not.
func (a *adapter) SubscriptionGet(user, recipient t.Uid) (*t.Subscription, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	sub, err := scanSub(a.db.QueryRowContext(ctx, "SELECT "+subCols+" FROM subscriptions WHERE userid=? AND recipient=?",
		store.DecodeUid(user), store.DecodeUid(recipient)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

func (a *adapter) querySubs(query string, args ...interface{}) ([]t.Subscription, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []t.Subscription
	for rows.Next() {
		sub, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// SubsForRecipient returns active subscriptions to the recipient.
func (a *adapter) SubsForRecipient(recipient t.Uid) ([]t.Subscription, error) {
	return a.querySubs("SELECT "+subCols+" FROM subscriptions WHERE recipient=? AND active=TRUE ORDER BY userid",
		store.DecodeUid(recipient))
}

// SubsForUser returns active subscriptions of the user.
func (a *adapter) SubsForUser(user t.Uid, recipients []t.Uid) ([]t.Subscription, error) {
	q := "SELECT " + subCols + " FROM subscriptions WHERE userid=? AND active=TRUE"
	args := []interface{}{store.DecodeUid(user)}
	if len(recipients) > 0 {
		q += " AND recipient IN (?)"
		args = append(args, decodeUids(recipients))
	}
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, err
	}
	return a.querySubs(q, args...)
}

// SubsUpdate updates one subscription.
func (a *adapter) SubsUpdate(user, recipient t.Uid, update map[string]interface{}) error {
	return a.updateWhere("subscriptions", update, "userid=? AND recipient=?",
		store.DecodeUid(user), store.DecodeUid(recipient))
}

// SubsDeactivate marks subscriptions as inactive.
func (a *adapter) SubsDeactivate(user t.Uid, recipients []t.Uid) error {
	q, args, err := sqlx.In("UPDATE subscriptions SET active=FALSE,updatedat=? WHERE userid=? AND recipient IN (?)",
		t.TimeNow(), store.DecodeUid(user), decodeUids(recipients))
	if err != nil {
		return err
	}
	_, err = a.exec(q, args...)
	return err
}

// MuteCreate saves a topic mute.
func (a *adapter) MuteCreate(mute *t.TopicMute) error {
	_, err := a.exec("INSERT INTO topicmutes(id,createdat,userid,stream,recipient,topicname,topickey) "+
		"VALUES(?,?,?,?,?,?,?)",
		store.DecodeUid(mute.Uid()), mute.CreatedAt, store.DecodeUid(mute.User), store.DecodeUid(mute.Stream),
		store.DecodeUid(mute.Recipient), mute.TopicName, common.TopicKey(mute.TopicName))
	if isDupe(err) {
		return t.ErrDuplicate
	}
	return err
}

// MuteDelete deletes a topic mute.
func (a *adapter) MuteDelete(user, recipient t.Uid, topic string) error {
	res, err := a.exec("DELETE FROM topicmutes WHERE userid=? AND recipient=? AND topickey=?",
		store.DecodeUid(user), store.DecodeUid(recipient), common.TopicKey(topic))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return t.ErrNotFound
	}
	return nil
}

// MuteExists checks if the user muted the topic.
func (a *adapter) MuteExists(user, recipient t.Uid, topic string) (bool, error) {
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	var count int
	err := a.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM topicmutes WHERE userid=? AND recipient=? AND topickey=?",
		store.DecodeUid(user), store.DecodeUid(recipient), common.TopicKey(topic))
	return count > 0, err
}

// MuteUsersForTopic returns ids of users who muted the topic.
func (a *adapter) MuteUsersForTopic(recipient t.Uid, topic string) ([]t.Uid, error) {
	return a.queryIds("SELECT userid FROM topicmutes WHERE recipient=? AND topickey=?",
		store.DecodeUid(recipient), common.TopicKey(topic))
}

func isDupe(err error) bool {
	if err == nil {
		return false
	}

	myerr, ok := err.(*ms.MySQLError)
	return ok && myerr.Number == 1062
}

func isMissingTable(err error) bool {
	if err == nil {
		return false
	}

	myerr, ok := err.(*ms.MySQLError)
	return ok && myerr.Number == 1146
}

func isMissingDb(err error) bool {
	if err == nil {
		return false
	}

	myerr, ok := err.(*ms.MySQLError)
	return ok && myerr.Number == 1049
}

func decodeUids(ids []t.Uid) []int64 {
	decoded := make([]int64, len(ids))
	for i, id := range ids {
		decoded[i] = store.DecodeUid(id)
	}
	return decoded
}

// Convert update to a list of columns and arguments.
func updateByMap(update map[string]interface{}) (cols []string, args []interface{}) {
	for col, arg := range update {
		col = strings.ToLower(col)
		switch val := arg.(type) {
		case t.Uid:
			arg = store.DecodeUid(val)
		case t.Role:
			arg = int(val)
		case t.PostPolicy:
			arg = int(val)
		case t.BotType:
			arg = int(val)
		}
		cols = append(cols, col+"=?")
		args = append(args, arg)
	}
	return
}

// GetTestAdapter returns an unopened adapter for the tests in the tests/ directory.
func GetTestAdapter() *adapter {
	return &adapter{}
}

func init() {
	store.RegisterAdapter(&adapter{})
}
