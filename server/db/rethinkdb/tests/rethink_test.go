//go:build rethinkdb
// +build rethinkdb

// Tests run against a live database described by ./test.conf:
//
//	go test -tags rethinkdb ./server/db/rethinkdb/tests -config ./test.conf

package tests

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"testing"

	adapter "github.com/relaynet/streams/server/db"
	"github.com/relaynet/streams/server/db/common/testsuite"
	backend "github.com/relaynet/streams/server/db/rethinkdb"
	"github.com/relaynet/streams/server/logs"
	jcr "github.com/tinode/jsonco"
)

type configType struct {
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

var config configType
var adp adapter.Adapter

// The database is always recreated: the suite expects empty tables.
func TestCreateDb(t *testing.T) {
	if err := adp.CreateDb(true); err != nil {
		t.Fatal(err)
	}
	testsuite.RunSetup(t, adp)
}

func TestStreamGetOrCreate(t *testing.T) {
	testsuite.RunStreamGetOrCreate(t, adp)
}

func TestStreamGetOrCreateRace(t *testing.T) {
	testsuite.RunStreamGetOrCreateRace(t, adp)
}

func TestStreamRename(t *testing.T) {
	testsuite.RunStreamRename(t, adp)
}

func TestSubsUpsert(t *testing.T) {
	testsuite.RunSubsUpsert(t, adp)
}

func TestStreamDeactivate(t *testing.T) {
	testsuite.RunStreamDeactivate(t, adp)
}

func init() {
	logs.Init(os.Stderr, "stdFlags")
	adp = backend.GetTestAdapter()
	conffile := flag.String("config", "./test.conf", "config of the database connection")

	if file, err := os.Open(*conffile); err != nil {
		log.Fatal("Failed to read config file:", err)
	} else if err = json.NewDecoder(jcr.New(file)).Decode(&config); err != nil {
		log.Fatal("Failed to parse config file:", err)
	}

	if adp.IsOpen() {
		log.Print("Connection is already opened")
	}
	if err := adp.Open(config.Adapters[adp.GetName()]); err != nil {
		log.Fatal(err)
	}
}
