// Command notify-worker consumes notification events enqueued by the queue handler.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/relaynet/streams/server/config"
	"github.com/relaynet/streams/server/logs"
	"github.com/relaynet/streams/server/metrics"
	"github.com/relaynet/streams/server/notify/queue"
)

type configType struct {
	NotifyConfig []struct {
		Name   string          `json:"name"`
		Config json.RawMessage `json:"config"`
	} `json:"notify_config"`
	Logging struct {
		Flags string `json:"flags"`
	} `json:"logging"`
}

// queueConfig returns the config of the queue handler.
func (c *configType) queueConfig() (json.RawMessage, error) {
	for _, nc := range c.NotifyConfig {
		if nc.Name == "queue" {
			return nc.Config, nil
		}
	}
	return nil, errors.New("notify_config has no 'queue' handler")
}

func main() {
	var conffile = flag.String("config", "./streams.conf", "path to config file")
	var envfile = flag.String("env", ".env", "file with environment variables referenced by the config")
	var concurrency = flag.Int("concurrency", 10, "maximum number of events processed concurrently")
	var listenMetrics = flag.String("metrics", ":6222", "address to serve Prometheus metrics on, empty to disable")
	flag.Parse()

	if err := config.LoadEnv(*envfile); err != nil {
		log.Fatalln(err)
	}
	var conf configType
	if err := config.Load(*conffile, &conf); err != nil {
		log.Fatalln("Failed to read config:", err)
	}
	logs.Init(os.Stderr, conf.Logging.Flags)

	qconf, err := conf.queueConfig()
	if err != nil {
		logs.Err.Fatalln(err)
	}
	redisOpt, queues, err := queue.WorkerConfig(qconf)
	if err != nil {
		logs.Err.Fatalln("Invalid queue config:", err)
	}

	if *listenMetrics != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logs.Info.Println("Serving metrics at", *listenMetrics)
			if err := http.ListenAndServe(*listenMetrics, mux); err != nil {
				logs.Err.Println("Metrics server failed:", err)
			}
		}()
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     *concurrency,
		Queues:          queues,
		ShutdownTimeout: 10 * time.Second,
		ErrorHandler:    asynq.ErrorHandlerFunc(handleError),
		Logger:          asynqLogger{},
	})

	logs.Info.Printf("Worker starting, %d queues, concurrency %d", len(queues), *concurrency)
	// Run blocks until SIGTERM or SIGINT.
	if err := srv.Run(newServeMux()); err != nil {
		logs.Err.Fatalln("Worker failed:", err)
	}
	logs.Info.Println("Worker stopped")
}
