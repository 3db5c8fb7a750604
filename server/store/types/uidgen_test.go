package types

import (
	"encoding/base64"
	"testing"
)

var testKey = []byte("testkey1testkey2")

func TestUidGeneratorInit(t *testing.T) {
	ug := &UidGenerator{}

	if err := ug.Init(1, testKey); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ug.seq == nil {
		t.Error("Snowflake generator should be initialized")
	}
	if ug.cipher == nil {
		t.Error("Cipher should be initialized")
	}

	// Already initialized generator is not reinitialized.
	oldSeq := ug.seq
	oldCipher := ug.cipher
	if err := ug.Init(3, testKey); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ug.seq != oldSeq || ug.cipher != oldCipher {
		t.Error("Generator should not be reinitialized")
	}
}

func TestUidGeneratorInitKeyValidation(t *testing.T) {
	testCases := []struct {
		name string
		key  []byte
	}{
		{"nil key", nil},
		{"empty key", []byte{}},
		{"too short key", []byte("short")},
		{"15 byte key", []byte("testkey1testkey")},
		{"17 byte key", []byte("testkey1testkey22")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ug := &UidGenerator{}
			if err := ug.Init(1, tc.key); err == nil {
				t.Errorf("Expected error for %s, but got none", tc.name)
			}
		})
	}
}

func TestUidGeneratorUninitialized(t *testing.T) {
	ug := &UidGenerator{}
	if uid := ug.Get(); uid != ZeroUid {
		t.Error("Expected ZeroUid from uninitialized generator")
	}
	if str := ug.GetStr(); str != "" {
		t.Error("Expected empty string from uninitialized generator")
	}
}

func TestUidGeneratorGet(t *testing.T) {
	ug := &UidGenerator{}
	if err := ug.Init(1, testKey); err != nil {
		t.Fatalf("Failed to initialize generator: %v", err)
	}

	uids := make(map[Uid]bool)
	for i := 0; i < 1000; i++ {
		uid := ug.Get()
		if uid == ZeroUid {
			t.Fatalf("UID %d should not be zero", i)
		}
		if uids[uid] {
			t.Fatalf("Duplicate UID generated: %v", uid)
		}
		uids[uid] = true
	}

	str := ug.GetStr()
	if len(str) != uidBase64Unpadded {
		t.Errorf("Unexpected string length %d", len(str))
	}
	if _, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(str); err != nil {
		t.Errorf("Generated UID string should be valid base64: %v", err)
	}
}

func TestUidGeneratorEncodeDecodeRoundtrip(t *testing.T) {
	ug := &UidGenerator{}
	if err := ug.Init(1, testKey); err != nil {
		t.Fatalf("Failed to initialize generator: %v", err)
	}

	for _, val := range []int64{1, 42, 12345, 1000000, 9223372036854775807} {
		if decoded := ug.DecodeUid(ug.EncodeInt64(val)); decoded != val {
			t.Errorf("Roundtrip failed for %d: got %d", val, decoded)
		}
	}

	uid := ug.Get()
	decoded := ug.DecodeUid(uid)
	if decoded <= 0 {
		t.Errorf("Decoded UID should be positive, got %d", decoded)
	}
	if ug.EncodeInt64(decoded) != uid {
		t.Error("Generated UID roundtrip failed")
	}
	if ug.DecodeUid(ZeroUid) != 0 {
		t.Error("ZeroUid must decode to 0")
	}
}

func TestUidGeneratorConcurrency(t *testing.T) {
	ug := &UidGenerator{}
	if err := ug.Init(1, testKey); err != nil {
		t.Fatalf("Failed to initialize generator: %v", err)
	}

	const workers = 10
	const perWorker = 100

	uidChan := make(chan Uid, workers*perWorker)
	for i := 0; i < workers; i++ {
		go func() {
			for j := 0; j < perWorker; j++ {
				uidChan <- ug.Get()
			}
		}()
	}

	uids := make(map[Uid]bool)
	for i := 0; i < workers*perWorker; i++ {
		uid := <-uidChan
		if uid == ZeroUid {
			t.Error("Generated UID should not be zero")
		}
		if uids[uid] {
			t.Errorf("Duplicate UID generated in concurrent test: %v", uid)
		}
		uids[uid] = true
	}
}

func BenchmarkUidGeneratorGet(b *testing.B) {
	ug := &UidGenerator{}
	if err := ug.Init(1, testKey); err != nil {
		b.Fatalf("Failed to initialize generator: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ug.Get()
	}
}
