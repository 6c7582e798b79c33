package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rakage/Chat-Bridge-sub000/config"
	"github.com/rakage/Chat-Bridge-sub000/controllers"
	dbpkg "github.com/rakage/Chat-Bridge-sub000/db"
	"github.com/rakage/Chat-Bridge-sub000/engine"
	"github.com/rakage/Chat-Bridge-sub000/locks"
	"github.com/rakage/Chat-Bridge-sub000/notify"
	"github.com/rakage/Chat-Bridge-sub000/router"
	"github.com/rakage/Chat-Bridge-sub000/tools"
	"github.com/rakage/Chat-Bridge-sub000/workers"
)

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg := config.Get(configPath)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	dbpkg.SetConfigurations(cfg)
	database, err := dbpkg.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	cipher, err := tools.NewCipher(cfg.CredentialKey)
	if err != nil {
		log.Fatal("credential key: ", err)
	}

	credStore := engine.NewCredentialStore(database, cipher, logger, nil)
	lockReg := locks.NewRegistry(locks.Options{
		TTL:         time.Duration(cfg.Locks.TTLSeconds) * time.Second,
		MaxAttempts: cfg.Locks.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Locks.BaseDelayMS) * time.Millisecond,
	})
	upsert := engine.NewUpsertService(database, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notifier.Enabled {
		amqpNotifier, err := notify.NewAMQPNotifier(ctx, notify.ConnectionOptions{
			URL: cfg.Notifier.URL,
		}, cfg.Notifier.Exchange, logger)
		if err != nil {
			log.Fatal("amqp notifier: ", err)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	processor := engine.NewProcessor(credStore, lockReg, upsert, notifier, logger)

	worker := workers.NewIngestWorker(database, processor, logger, workers.IngestOptions{
		PollInterval: time.Duration(cfg.Worker.PollIntervalMS) * time.Millisecond,
		BatchSize:    cfg.Worker.BatchSize,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryBase:    time.Duration(cfg.Worker.RetryBaseMS) * time.Millisecond,
	})
	worker.Start(ctx)

	controllers.Setup(cfg, credStore, lockReg)

	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(database))
	router.Initialize(r, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ApiPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Chat Bridge listening on :%s", cfg.ApiPort)
	log.Fatal(srv.ListenAndServe())
}
