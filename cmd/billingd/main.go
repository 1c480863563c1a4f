// Command billingd runs the billing HTTP API, the Asaas webhook endpoint and
// the payment reconciliation sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"

	"github.com/dmitrymomot/billingkit/migrations"
	"github.com/dmitrymomot/billingkit/modules/billing"
	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/file"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/locker"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/notify"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/pixqr"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/requestid"
	"github.com/dmitrymomot/billingkit/pkg/retry"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

var errUnknownStorage = errors.New("unknown storage driver")

func main() {
	var app appConfig
	config.MustLoad(&app)

	log := logger.New(
		logger.WithEnvironment(app.Env, app.ServiceName),
		logger.WithLevelName(app.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, log); err != nil {
		log.Error("billingd stopped", logger.Error(err))
		os.Exit(1)
	}
}

type stores struct {
	profiles subscription.ProfileStore
	payments payment.Store
	locker   locker.Locker
	dedup    reconcile.Deduplicator
	probes   []httpserver.Probe
	close    func()
}

func run(ctx context.Context, app appConfig, log *slog.Logger) error {
	var (
		gwCfg     asaas.Config
		notifyCfg notify.Config
		recCfg    reconcile.Config
		httpCfg   httpserver.Config
		apiCfg    billing.Config
		s3Cfg     file.S3Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&gwCfg) },
		func() error { return config.Load(&notifyCfg) },
		func() error { return config.Load(&recCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&apiCfg) },
		func() error { return config.Load(&s3Cfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	st, err := openStores(ctx, app, recCfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	gateway, err := asaas.New(gwCfg,
		asaas.WithLogger(log),
		asaas.WithGetRetry(app.GatewayGetRetries, retry.DefaultBackoff()),
	)
	if err != nil {
		return fmt.Errorf("asaas client: %w", err)
	}

	store, err := pixStorage(ctx, app, s3Cfg)
	if err != nil {
		return err
	}
	publisher := pixqr.NewPublisher(store,
		pixqr.WithPrefix(app.PixPrefix),
		pixqr.WithLogger(log),
	)

	svc := subscription.NewService(gateway, st.profiles, st.payments,
		subscription.WithLogger(log),
		subscription.WithLocker(st.locker),
		subscription.WithNotifier(newDispatcher(notifyCfg, log)),
		subscription.WithQRCodePublisher(publisher),
		subscription.WithQRCodeRetry(app.QRCodeAttempts, app.QRCodeDelay),
	)
	recorder := payment.NewRecorder(st.payments, subscription.Resolver{Profiles: st.profiles},
		payment.WithRecorderLogger(log),
	)
	reconciler := reconcile.NewReconciler(gwCfg.WebhookToken, svc, st.profiles, recorder,
		reconcile.WithDeduplicator(st.dedup),
		reconcile.WithLogger(log),
	)
	sweeper := reconcile.NewSweeper(reconciler, gateway, st.payments,
		reconcile.WithSweepLocker(st.locker),
		reconcile.WithSweepWindow(recCfg.SweepHorizon, recCfg.SweepBatch),
		reconcile.WithSweepTimeout(recCfg.SweepTimeout),
		reconcile.WithSweepLogger(log),
	)

	if recCfg.SweepEnabled {
		scheduler := cron.New()
		if _, err := sweeper.Schedule(scheduler, recCfg.SweepSchedule); err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	module := billing.New(apiCfg, svc, reconciler, sweeper,
		billing.WithLogger(log),
		billing.WithProbes(st.probes...),
	)

	log.InfoContext(ctx, "billingd starting",
		slog.String("addr", httpCfg.Addr),
		slog.String("storage", app.StorageDriver),
		slog.Bool("sweep", recCfg.SweepEnabled),
	)
	return httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log)).Run(ctx, module.Router())
}

func openStores(ctx context.Context, app appConfig, recCfg reconcile.Config, log *slog.Logger) (*stores, error) {
	switch app.StorageDriver {
	case storageMemory:
		log.WarnContext(ctx, "memory storage selected, state is lost on restart")
		return &stores{
			profiles: subscription.NewMemoryStore(),
			payments: payment.NewMemoryStore(),
			locker:   locker.NewLocal(),
			dedup:    reconcile.NewMemoryDeduplicator(recCfg.DedupProcessingTTL, recCfg.DedupDoneTTL),
			close:    func() {},
		}, nil

	case storagePostgres:
		var (
			pgCfg    pg.Config
			redisCfg redis.Config
		)
		if err := config.Load(&pgCfg); err != nil {
			return nil, err
		}
		if err := config.Load(&redisCfg); err != nil {
			return nil, err
		}

		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, migrations.FS, pgCfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		rdb, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			pool.Close()
			return nil, err
		}

		return &stores{
			profiles: subscription.NewPGStore(pool),
			payments: payment.NewPGStore(pool),
			locker:   locker.NewRedis(rdb, locker.WithPrefix(redisCfg.KeyPrefix+"lock:")),
			dedup:    reconcile.NewRedisDeduplicator(rdb, redisCfg.KeyPrefix, recCfg.DedupProcessingTTL, recCfg.DedupDoneTTL),
			probes: []httpserver.Probe{
				{Name: "postgres", Check: pg.Healthcheck(pool)},
				{Name: "redis", Check: redis.Healthcheck(rdb)},
			},
			close: func() {
				if err := rdb.Close(); err != nil {
					log.Error("redis close", logger.Error(err))
				}
				pool.Close()
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownStorage, app.StorageDriver)
}

// pixStorage prefers S3, then a local directory. A nil Storage makes the
// publisher fall back to data URIs.
func pixStorage(ctx context.Context, app appConfig, s3Cfg file.S3Config) (file.Storage, error) {
	if s3Cfg.Enabled() {
		s, err := file.NewS3Storage(ctx, s3Cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if app.FileDir != "" {
		s, err := file.NewLocalStorage(app.FileDir, app.FileBaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

func newDispatcher(cfg notify.Config, log *slog.Logger) *notify.Dispatcher {
	var channels []notify.Channel
	if cfg.WebhookURL != "" {
		sender := webhook.NewSender(
			webhook.WithSecret(cfg.WebhookSecret),
			webhook.WithTimeout(cfg.Timeout),
			webhook.WithRetry(cfg.MaxAttempts, retry.DefaultBackoff()),
			webhook.WithLogger(log),
		)
		channels = append(channels, notify.NewWebhookChannel(cfg.WebhookURL, sender))
	}
	if cfg.LogChannel {
		channels = append(channels, notify.NewLogChannel(log))
	}
	return notify.NewDispatcher(channels,
		notify.WithLogger(log),
		notify.WithTimeout(cfg.Timeout),
	)
}
