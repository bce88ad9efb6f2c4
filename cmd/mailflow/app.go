package main

import (
	"context"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskinity/example-email/config"
	"github.com/taskinity/example-email/internal/events"
	"github.com/taskinity/example-email/internal/handler"
	"github.com/taskinity/example-email/internal/mailbox"
	"github.com/taskinity/example-email/internal/orchestrator"
	"github.com/taskinity/example-email/internal/repository"
	"github.com/taskinity/example-email/internal/responder"
	"github.com/taskinity/example-email/pkg/db"
	"github.com/taskinity/example-email/pkg/dedup"
	"github.com/taskinity/example-email/pkg/metrics"
	"github.com/taskinity/example-email/pkg/mq"
	redisclient "github.com/taskinity/example-email/pkg/redis"
	"github.com/taskinity/example-email/pkg/retry"
)

// app 一次进程生命周期内的全部依赖
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	responder *responder.Responder
	smtp      *responder.SMTPTransport
	orch      *orchestrator.Orchestrator
	closers   []io.Closer
	cleanups  []func()
}

// newApp wires the pipeline. Redis, Postgres and AMQP are optional and only
// connected when configured; a configured backend that cannot be reached
// is a startup error.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		rdb = client
		a.closers = append(a.closers, client)
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var cache mailbox.Cache
	if cfg.CacheTTL() > 0 {
		if rdb != nil {
			cache = mailbox.NewRedisCache(rdb, cfg.CacheTTL(), logger)
		} else {
			cache = mailbox.NewMemoryCache(cfg.CacheTTL())
		}
	}
	reader := mailbox.NewReader(mailbox.NewIMAPStore(logger), cache, logger)

	a.smtp = responder.NewSMTPTransport(logger)
	a.responder = responder.New(responderConfig(cfg), a.smtp, logger)

	observers := events.Multi{
		events.NewLogObserver(logger),
		events.NewMetricsObserver(),
	}

	if cfg.MQ.Enabled() {
		pub, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to MQ: %w", err)
		}
		a.cleanups = append(a.cleanups, pub.Close)
		observers = append(observers, events.NewPublishObserver(pub, logger))
		logger.Info("MQ publisher ready", zap.String("exchange", mq.ExchangeName))
	}

	if cfg.DB.Enabled() {
		pool, err := db.NewConnection(ctx, cfg.DB, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.cleanups = append(a.cleanups, pool.Close)

		runs := repository.NewRunRepository(pool)
		if err := runs.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		observers = append(observers, events.NewRunRecorder(runs, logger))
	}

	deps := orchestrator.Deps{
		Reader:    reader,
		Processor: orchestrator.NewHandlerProcessor(handler.NewSet(handlerTemplates(cfg))),
		Sender:    a.responder,
		Observer:  observers,
		Logger:    logger,
	}
	if cfg.DedupTTLSeconds > 0 && rdb != nil {
		deps.Guard = dedup.NewDeduper(rdb, cfg.DedupTTL(), logger)
	}

	a.orch = orchestrator.New(deps, orchestratorOptions(cfg))
	return a, nil
}

// pushMetrics 推送到 Pushgateway；失败只记日志
func (a *app) pushMetrics() {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		a.logger.Warn("Failed to push metrics", zap.Error(err))
	}
}

func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.cleanups, a.closers = nil, nil
}

// Validate 已检查过 security 取值
func responderConfig(cfg *config.Config) responder.Config {
	security, _ := responder.ParseSecurity(cfg.SMTPSecurity)
	return responder.Config{
		Server:    cfg.SMTPServer,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.FromEmail,
		ReplyTo:   cfg.ReplyTo,
		Security:  security,
		Timeout:   cfg.SendTimeout(),
	}
}

func handlerTemplates(cfg *config.Config) handler.Templates {
	return handler.Templates{
		UrgentBody:        cfg.Templates.UrgentBody,
		AttachmentSubject: cfg.Templates.AttachmentSubject,
		AttachmentBody:    cfg.Templates.AttachmentBody,
		RegularBody:       cfg.Templates.RegularBody,
	}
}

func orchestratorOptions(cfg *config.Config) orchestrator.Options {
	security, _ := mailbox.ParseSecurity(cfg.IMAPSecurity)
	opts := orchestrator.DefaultOptions(mailbox.ConnectionParams{
		Server:   cfg.IMAPServer,
		Port:     cfg.IMAPPort,
		Username: cfg.IMAPUsername,
		Password: cfg.IMAPPassword,
		Folder:   cfg.IMAPFolder,
		Security: security,
		Timeout:  cfg.FetchTimeout(),
	})
	opts.Limit = cfg.FetchLimit
	opts.FetchPolicy = retry.NewPolicy(cfg.RetryCount, cfg.RetryDelay())
	opts.BranchPolicy = retry.NewPolicy(cfg.RetryCount, cfg.RetryDelay())
	opts.SendPolicy = retry.NewPolicy(cfg.SendAttempts(), cfg.RetryDelay())
	opts.Workers = cfg.Workers
	opts.ProcessAttachments = cfg.AttachmentsEnabled()
	opts.ProcessRegular = cfg.RegularEnabled()
	return opts
}
