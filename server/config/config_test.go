package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testConfig struct {
	Store struct {
		Adapter  string `json:"use_adapter"`
		Password string `json:"password"`
	} `json:"store_config"`
	Notify json.RawMessage `json:"notify_config"`
}

func TestParse(t *testing.T) {
	t.Setenv("STREAMS_DB_PASSWORD", `se"cret`)

	raw := []byte(`{
	// Comments are allowed.
	"store_config": {
		"use_adapter": "sqlite", /* inline */
		"password": "$STREAMS_DB_PASSWORD"
	},
	"notify_config": [{"name": "stdout", "config": {"enabled": "$STREAMS_UNSET_VAR"}}]
}`)
	var conf testConfig
	if err := Parse(raw, &conf); err != nil {
		t.Fatal(err)
	}
	if conf.Store.Adapter != "sqlite" || conf.Store.Password != `se"cret` {
		t.Errorf("Unexpected config %+v", conf.Store)
	}
	want := `[{"name": "stdout", "config": {"enabled": ""}}]`
	if diff := cmp.Diff(want, string(conf.Notify)); diff != "" {
		t.Errorf("Raw section mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	var conf testConfig
	err := Parse([]byte("{\n\"store_config\": {\n\"use_adapter\": 5}}"), &conf)
	if err == nil || !strings.Contains(err.Error(), "at 3:") {
		t.Errorf("Expected a type error on line 3, got %v", err)
	}

	// A comma before a key is not a trailing comma, so it reaches the decoder.
	err = Parse([]byte("{\n\n  \"store_config\": , \"notify_config\": []\n}"), &conf)
	if err == nil || !strings.HasPrefix(err.Error(), "syntax error at 3:19 ") {
		t.Errorf("Expected a syntax error at 3:19, got %v", err)
	}

	// Trailing commas are removed, so the error is reported at the closing brace.
	err = Parse([]byte("{\n\n  \"store_config\": ,\n}"), &conf)
	if err == nil || !strings.HasPrefix(err.Error(), "syntax error at 4:1 ") {
		t.Errorf("Expected a syntax error at 4:1, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("STREAMS_TEST_ADAPTER=postgres\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("STREAMS_TEST_ADAPTER") })
	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}

	confFile := filepath.Join(dir, "streams.conf")
	if err := os.WriteFile(confFile, []byte(`{"store_config": {"use_adapter": "$STREAMS_TEST_ADAPTER"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	var conf testConfig
	if err := Load(confFile, &conf); err != nil {
		t.Fatal(err)
	}
	if conf.Store.Adapter != "postgres" {
		t.Errorf("Expected value from .env, got '%s'", conf.Store.Adapter)
	}

	if err := Load(filepath.Join(dir, "nope.conf"), &conf); err == nil {
		t.Error("Expected error for a missing file")
	}
}
