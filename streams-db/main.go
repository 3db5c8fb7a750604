// Command streams-db creates or resets the database and optionally loads sample data.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/relaynet/streams/server/access"
	"github.com/relaynet/streams/server/config"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/notify"
	_ "github.com/relaynet/streams/server/notify/queue"
	_ "github.com/relaynet/streams/server/notify/stdout"
	"github.com/relaynet/streams/server/store"
	"github.com/relaynet/streams/server/streams"
)

type configType struct {
	StoreConfig  json.RawMessage `json:"store_config"`
	AccessConfig json.RawMessage `json:"access_config"`
	NotifyConfig json.RawMessage `json:"notify_config"`
	StreamConfig json.RawMessage `json:"stream_config"`
	Logging      struct {
		Flags string `json:"flags"`
	} `json:"logging"`
}

func main() {
	var reset = flag.Bool("reset", false, "force database reset")
	var noInit = flag.Bool("no_init", false, "check that database exists but don't create if missing")
	var datafile = flag.String("data", "", "name of file with sample data to load")
	var conffile = flag.String("config", "./streams.conf", "config of the database connection")
	var envfile = flag.String("env", ".env", "file with environment variables referenced by the config")
	flag.Parse()

	if err := config.LoadEnv(*envfile); err != nil {
		log.Fatalln(err)
	}

	var data Data
	if *datafile != "" && *datafile != "-" {
		raw, err := os.ReadFile(*datafile)
		if err != nil {
			log.Fatalln("Failed to read sample data file:", err)
		}
		if err = json.Unmarshal(raw, &data); err != nil {
			log.Fatalln("Failed to parse sample data:", err)
		}
	}

	var conf configType
	if err := config.Load(*conffile, &conf); err != nil {
		log.Fatalln("Failed to read config:", err)
	}
	logs.Init(os.Stderr, conf.Logging.Flags)

	if err := streams.Init(conf.StreamConfig); err != nil {
		log.Fatalln(err)
	}
	if err := access.Init(conf.AccessConfig); err != nil {
		log.Fatalln(err)
	}
	if len(conf.NotifyConfig) > 0 {
		enabled, err := notify.Init(conf.NotifyConfig)
		if err != nil {
			log.Fatalln("Failed to init notifications:", err)
		}
		if len(enabled) > 0 {
			log.Println("Notification handlers enabled:", strings.Join(enabled, ", "))
		}
		defer notify.Stop()
	}

	err := store.Store.Open(1, conf.StoreConfig)
	defer store.Store.Close()

	log.Println("Database", store.Store.GetAdapterName(), store.Store.GetAdapterVersion())

	if err != nil {
		if strings.Contains(err.Error(), "Database not initialized") {
			if *noInit {
				log.Fatalln("Database not found.")
			}
			log.Println("Database not found. Creating.")
		} else if strings.Contains(err.Error(), "Invalid database version") {
			if !*reset {
				log.Fatalln("Wrong DB version: expected", store.Store.GetAdapterVersion(), "got",
					store.Store.GetDbVersion(), "Use --reset to reset.")
			}
			log.Println("Wrong DB version. Dropping and recreating the database.")
		} else {
			log.Fatalln("Failed to init DB adapter:", err)
		}
	} else if *reset {
		log.Println("Database reset requested")
	} else {
		log.Println("Database exists, DB version is correct. All done.")
		return
	}

	if err = store.Store.InitDb(conf.StoreConfig, true); err != nil {
		log.Fatalln("Failed to init DB:", err)
	}
	if *reset {
		log.Println("Database reset")
	} else {
		log.Println("Database initialized")
	}

	if err := genDb(&data); err != nil {
		log.Fatalln("Failed to load sample data:", err)
	}
}
