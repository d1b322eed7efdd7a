package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/cache"
	"github.com/romelikethecity/pecollective/common/cache/memory"
	"github.com/romelikethecity/pecollective/common/cache/redis"
	"github.com/romelikethecity/pecollective/common/database"
	"github.com/romelikethecity/pecollective/common/database/schema"
	"github.com/romelikethecity/pecollective/common/database/schema/migrations"
	"github.com/romelikethecity/pecollective/common/telemetry"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/aggregator"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/analytics"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/artifacts"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/config"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/enricher"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/events"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/master"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/mcpserver"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/metrics"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/normalizer"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/output"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/processor"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/scheduler"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/vocabulary"
)

const (
	serviceName    = "enrichment-service"
	serviceVersion = "1.0.0"
)

// baseOptions are shared by every command. fx only builds what a command
// asks for, so the one-shot commands never dial the optional sinks.
func baseOptions() fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		fx.Provide(
			config.LoadConfig,
			newLogger,
			newVocabulary,
			normalizer.New,
			newEnricher,
			newAggregator,
			newStore,
			newWriter,
			newCache,
			newNATSConnection,
			newPublisher,
			newAnalytics,
			newUploader,
			metrics.NewRegistry,
			newPipelineOptions,
			processor.NewPipeline,
			mcpserver.NewSnapshot,
			newMCPServer,
		),
		fx.Invoke(initTracing),
	)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) error {
	shutdown, err := telemetry.InitTracer(context.Background(), serviceName, serviceVersion, cfg.OTELCollectorURL, logger)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			shutdown(ctx)
			return nil
		},
	})
	return nil
}

func newVocabulary(cfg *config.Config) (*vocabulary.Vocabulary, error) {
	if cfg.VocabularyFile == "" {
		return vocabulary.Default()
	}
	return vocabulary.Load(cfg.VocabularyFile)
}

func newEnricher(n *normalizer.Normalizer) *enricher.Enricher {
	return enricher.New(n, time.Now)
}

func newAggregator(vocab *vocabulary.Vocabulary, cfg *config.Config) *aggregator.Aggregator {
	return aggregator.New(vocab, aggregator.Options{
		SkillsTop:             cfg.SkillsTop,
		MetrosTop:             cfg.MetrosTop,
		BenchmarkMinSamples:   cfg.BenchmarkMinSamples,
		BenchmarkTopCompanies: cfg.BenchmarkTopCompanies,
	})
}

func newStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (master.Store, error) {
	var (
		store master.Store
		err   error
	)
	ctx := context.Background()
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		store, err = master.NewSQLiteStore(ctx, cfg.SQLitePath, logger)
	case config.StorePostgres:
		store, err = master.OpenPostgres(ctx, cfg.PostgresDSN, logger)
	default:
		store = master.NewFileStore(cfg.MasterFile, cfg.TrendFile, logger)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("master store ready", zap.String("backend", cfg.StoreBackend))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func newWriter(cfg *config.Config, logger *zap.Logger) *output.Writer {
	return output.NewWriter(cfg.DataDir, logger)
}

func newCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) cache.Cache {
	opts := cache.DefaultOptions()
	opts.DefaultTTL = cfg.CacheTTL

	var c cache.Cache
	if cfg.RedisAddr == "" {
		c = memory.New(opts)
	} else {
		opts.RedisURL = cfg.RedisAddr
		opts.RedisPassword = cfg.RedisPassword
		opts.RedisDB = cfg.RedisDB
		c = redis.New(opts)
		logger.Info("using redis snapshot cache", zap.String("addr", cfg.RedisAddr))
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c
}

// newNATSConnection returns nil when no NATS URL is configured.
func newNATSConnection(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Timeout(cfg.NATSConnTimeout),
		nats.Name(serviceName),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to NATS", zap.String("url", cfg.NATSURL))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			nc.Close()
			return nil
		},
	})
	return nc, nil
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, nc *nats.Conn, logger *zap.Logger) events.Publisher {
	var pubs []events.Publisher
	if nc != nil {
		pubs = append(pubs, events.NewNATSPublisher(nc, cfg.NATSEventSubject, logger))
	}
	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger))
	}
	if len(pubs) == 0 {
		return nil
	}

	publisher := events.MultiPublisher(pubs...)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}

// newAnalytics migrates the ClickHouse schema and returns the sink, or nil
// when no DSN is configured.
func newAnalytics(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (processor.AnalyticsSink, error) {
	if cfg.ClickHouseDSN == "" {
		return nil, nil
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.Options{
		DSN:             cfg.ClickHouseDSN,
		MaxOpenConns:    cfg.ClickHouseMaxOpenConns,
		MaxIdleConns:    cfg.ClickHouseMaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouseConnMaxLife,
		Username:        cfg.ClickHouseUsername,
		Password:        cfg.ClickHousePassword,
		Database:        cfg.ClickHouseDatabase,
		DialTimeout:     cfg.ClickHouseDialTimeout,
		AsyncInsert:     cfg.ClickHouseAsyncInsert,
	}, logger)
	if err != nil {
		return nil, errors.Unavailable("connecting to clickhouse", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})

	if _, err := schema.NewMigrator(db.Conn(), logger).Migrate(ctx, migrations.All); err != nil {
		return nil, err
	}
	return analytics.NewClickHouseSink(db.Conn(), logger), nil
}

// newUploader returns nil when no bucket is configured.
func newUploader(cfg *config.Config, logger *zap.Logger) (processor.ArtifactUploader, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	client, err := artifacts.NewS3Client(context.Background(), artifacts.ClientOptions{
		Region:      cfg.AWSRegion,
		Endpoint:    cfg.AWSEndpoint,
		AccessKeyID: cfg.AWSAccessKeyID,
		SecretKey:   cfg.AWSSecretKey,
	})
	if err != nil {
		return nil, err
	}
	return artifacts.NewUploader(client, cfg.S3Bucket, cfg.S3Prefix, logger), nil
}

func newPipelineOptions(cfg *config.Config) processor.Options {
	return processor.Options{
		DataDir:        cfg.DataDir,
		RawGlob:        cfg.RawGlob,
		SimilarLimit:   cfg.SimilarLimit,
		CacheTTL:       cfg.CacheTTL,
		PushgatewayURL: cfg.PushgatewayURL,
	}
}

func newMCPServer(snapshot *mcpserver.Snapshot, e *enricher.Enricher, cfg *config.Config, logger *zap.Logger) *mcpserver.Server {
	return mcpserver.New(snapshot, e, cfg.SimilarLimit, logger)
}

// registerServe wires the long-running mode: the periodic scheduler, the
// NATS run trigger when NATS is configured, and the metrics endpoint.
func registerServe(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	pipeline *processor.Pipeline,
	registry *metrics.Registry,
	nc *nats.Conn,
	logger *zap.Logger,
) error {
	run := func(ctx context.Context) error {
		_, err := pipeline.Run(ctx)
		return err
	}

	if nc != nil {
		trigger := events.NewTrigger(logger, nc, cfg.NATSTriggerSubject, cfg.RunTimeout, run)
		if err := trigger.RegisterSubscriptions(lc); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	sched := scheduler.NewScheduler(run, cfg.PollingInterval, cfg.RunTimeout, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			go func() {
				defer close(done)
				_ = sched.Start(ctx)
			}()
			logger.Info("enrichment service started",
				zap.String("metrics_addr", cfg.MetricsAddr),
				zap.Duration("polling_interval", cfg.PollingInterval))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			runs, failures := sched.Stats()
			logger.Info("enrichment service stopped", zap.Int("runs", runs), zap.Int("failures", failures))
			return srv.Shutdown(stopCtx)
		},
	})
	return nil
}
