package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"photo_syncer/internal/config"
	"photo_syncer/internal/metrics"
	"photo_syncer/internal/publisher"
	"photo_syncer/internal/service"
	"photo_syncer/internal/source/flickr"
	"photo_syncer/internal/storage/postgres"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqlx.DB
	photos   *postgres.PhotoStore
	registry *prometheus.Registry
	metrics  *metrics.Collector
	source   *flickr.Source
	sync     *service.SyncService
	rabbitMQ *publisher.RabbitMQ
}

// newApp loads config and connects to the database. The sync pipeline is
// built only when withSync is set.
func newApp(withSync bool, logOut io.Writer) (*app, error) {
	logger := setupLogger("info", logOut)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = setupLogger(cfg.LogLevel, logOut)

	if cfg.Database.Migrate {
		if err := postgres.RunMigrations(cfg.Database.URL()); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database")

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		photos:   postgres.NewPhotoStore(db),
		registry: prometheus.NewRegistry(),
	}
	a.metrics = metrics.NewCollector(a.registry)

	if withSync {
		if err := a.buildSync(); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) buildSync() error {
	cfg := a.cfg

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, a.logger)
		if err != nil {
			return err
		}
		a.rabbitMQ = rabbitMQ
		pub = rabbitMQ
	}

	fetcher := flickr.NewFetcher(
		flickr.NewHTTPClient(cfg.Flickr.Timeout, cfg.Flickr.SafeClient),
		cfg.Flickr.UserAgent,
		a.metrics,
	)

	a.source = flickr.New(flickr.Config{
		OwnerID:         cfg.Flickr.OwnerID,
		ImageHost:       cfg.Flickr.ImageHost,
		DefaultCategory: cfg.Flickr.DefaultCategory,
	}, fetcher, flickr.NewIntervalPacer(cfg.Flickr.RequestDelay), a.logger)

	a.sync = service.NewSyncService(
		a.source,
		a.photos,
		postgres.NewSyncStateStore(a.db),
		postgres.NewTransactionManager(a.db),
		pub,
		a.metrics,
		a.logger,
		cfg.Sync,
	)

	return nil
}

func (a *app) close() {
	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(); err != nil {
			a.logger.Warn("close rabbitmq", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}
