// Package cache invalidates remotely cached objects after stream, subscription and user changes.
// The engine never reads from the cache: the objects are cached by the consumers of the events.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/relaynet/streams/server/db/common"
	"github.com/relaynet/streams/server/logs"
	t "github.com/relaynet/streams/server/store/types"
)

// Invalidator removes keys from a cache.
type Invalidator interface {
	// Delete removes the keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Close releases resources.
	Close() error
}

type configType struct {
	// Name of the backend: "redis" or "none".
	Use   string          `json:"use"`
	Redis json.RawMessage `json:"redis"`
	// Invalidation timeout in milliseconds.
	TimeoutMs int `json:"timeout_ms"`
}

const defaultTimeout = 2 * time.Second

var globals struct {
	lock    sync.RWMutex
	backend Invalidator
	timeout time.Duration
}

// Init configures the cache backend. Calling Init again replaces the backend.
func Init(jsonconf json.RawMessage) error {
	var config configType
	if len(jsonconf) > 0 {
		if err := json.Unmarshal(jsonconf, &config); err != nil {
			return errors.New("cache: failed to parse config: " + err.Error())
		}
	}

	var backend Invalidator
	switch config.Use {
	case "", "none":
		backend = noneInvalidator{}
	case "redis":
		rc, err := newRedisInvalidator(config.Redis)
		if err != nil {
			return err
		}
		backend = rc
	default:
		return errors.New("cache: unknown backend '" + config.Use + "'")
	}

	timeout := defaultTimeout
	if config.TimeoutMs > 0 {
		timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	}
	setBackend(backend, timeout)
	return nil
}

// Use replaces the backend with an arbitrary Invalidator.
func Use(backend Invalidator) {
	setBackend(backend, defaultTimeout)
}

func setBackend(backend Invalidator, timeout time.Duration) {
	globals.lock.Lock()
	old := globals.backend
	globals.backend = backend
	globals.timeout = timeout
	globals.lock.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logs.Warn.Println("cache: failed to close backend", err)
		}
	}
}

// Invalidate deletes the keys from the cache. The change has already been committed
// by the time Invalidate is called, so failures are logged and not returned.
func Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}

	globals.lock.RLock()
	backend, timeout := globals.backend, globals.timeout
	globals.lock.RUnlock()

	if backend == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := backend.Delete(ctx, keys...); err != nil {
		logs.Warn.Println("cache: failed to invalidate", keys, err)
	}
}

// Close shuts down the backend.
func Close() {
	setBackend(nil, 0)
}

// DisplayRecipientKey is the key of the cached display form of a recipient.
func DisplayRecipientKey(recipient t.Uid) string {
	return "display_recipient_dict:" + recipient.String()
}

// StreamNameKey is the key of a stream cached by realm and case-folded name.
func StreamNameKey(realm t.Uid, name string) string {
	sum := sha1.Sum([]byte(common.StreamNameKey(name)))
	return "stream_by_realm_and_name:" + realm.String() + ":" + hex.EncodeToString(sum[:])
}

// UserProfileKey is the key of a cached user profile.
func UserProfileKey(uid t.Uid) string {
	return "user_profile_by_id:" + uid.String()
}

type noneInvalidator struct{}

func (noneInvalidator) Delete(context.Context, ...string) error { return nil }

func (noneInvalidator) Close() error { return nil }
