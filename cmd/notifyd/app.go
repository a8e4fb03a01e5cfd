package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/api"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/notify"
	"github.com/dmitrymomot/notifykit/pkg/outbox"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/registry"
	"github.com/dmitrymomot/notifykit/pkg/render"
	"github.com/dmitrymomot/notifykit/pkg/store/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/store/sqlitestore"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

var (
	//go:embed catalog/notifications.yaml
	notificationsYAML []byte

	//go:embed catalog/templates.yaml
	templatesYAML []byte
)

// recordStore is what every store implementation provides.
type recordStore interface {
	outbox.Repository
	dispatcher.Repository
	notify.Repository
}

type app struct {
	dispatcher *dispatcher.Dispatcher
	server     *httpserver.Server
	handler    http.Handler
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg appConfig, log *slog.Logger) (*app, error) {
	a := &app{}
	if err := a.wire(ctx, cfg, log); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	checks := make(map[string]httpserver.Check)

	store, err := openStore(ctx, cfg, log, a, checks)
	if err != nil {
		return err
	}

	reg, err := loadRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	catalog, err := loadTemplates(ctx, cfg, log)
	if err != nil {
		return err
	}

	router, err := buildRouter(ctx, cfg, log, a, checks)
	if err != nil {
		return err
	}

	a.dispatcher, err = dispatcher.New(store, catalog, router,
		dispatcher.WithConfig(cfg.Dispatcher),
		dispatcher.WithLogger(log),
	)
	if err != nil {
		return err
	}

	writer, err := outbox.NewWriter(reg, store,
		outbox.WithConfig(cfg.Outbox),
		outbox.WithProcessor(a.dispatcher),
		outbox.WithLogger(log),
	)
	if err != nil {
		return err
	}

	svc, err := notify.New(writer, store, notify.WithLogger(log))
	if err != nil {
		return err
	}

	opts := []api.Option{api.WithLogger(log), api.WithClientIPHeaders(cfg.ClientIPHeaders...)}
	for name, check := range checks {
		opts = append(opts, api.WithHealthCheck(name, check))
	}
	a.handler, err = api.New(svc, opts...)
	if err != nil {
		return err
	}

	a.server = httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	log.InfoContext(ctx, "notifyd ready",
		slog.String("store", cfg.Store),
		slog.Int("types", reg.Len()),
		slog.Any("channels", router.Channels()),
		slog.Any("locales", catalog.Locales()))
	return nil
}

func openStore(ctx context.Context, cfg appConfig, log *slog.Logger, a *app, checks map[string]httpserver.Check) (recordStore, error) {
	switch strings.ToLower(cfg.Store) {
	case storePostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)

		if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
			return nil, err
		}
		checks["postgres"] = pg.Healthcheck(pool)
		return pgstore.New(pool), nil

	case storeSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := s.Close(); err != nil {
				log.Error("close sqlite store", logger.Error(err))
			}
		})
		checks["sqlite"] = s.Ping
		return s, nil
	}
	return nil, fmt.Errorf("unknown store %q: use %s or %s", cfg.Store, storePostgres, storeSQLite)
}

func loadRegistry(ctx context.Context, cfg appConfig) (*registry.Registry, error) {
	if cfg.CatalogPath != "" {
		return registry.LoadFile(ctx, cfg.CatalogPath)
	}
	return registry.Load(ctx, bytes.NewReader(notificationsYAML))
}

func loadTemplates(ctx context.Context, cfg appConfig, log *slog.Logger) (*render.Catalog, error) {
	opts := []render.Option{
		render.WithDefaultLocale(cfg.Outbox.FallbackLocale),
		render.WithLogger(log),
	}
	if cfg.TemplatesPath != "" {
		return render.LoadFile(ctx, cfg.TemplatesPath, opts...)
	}
	return render.Load(ctx, render.YAMLParser{}, bytes.NewReader(templatesYAML), opts...)
}

// buildRouter registers a sender for every channel whose backend is configured.
// Records for an unrouted channel are dead-lettered by the dispatcher.
func buildRouter(ctx context.Context, cfg appConfig, log *slog.Logger, a *app, checks map[string]httpserver.Check) (*channel.Router, error) {
	router := channel.NewRouter()

	var mailer email.EmailSender
	if cfg.Email.UsePostmark() {
		m, err := email.NewPostmarkClient(cfg.Email)
		if err != nil {
			return nil, err
		}
		mailer = m
	} else {
		log.WarnContext(ctx, "postmark not configured, writing emails to disk", slog.String("dir", cfg.Email.DevDir))
		mailer = email.NewDevSender(cfg.Email.DevDir)
	}
	router.Handle(notification.ChannelEmail, channel.NewEmailSender(mailer, channel.WithEmailLayout(render.EmailLayout)))

	hooks := webhook.NewSender()
	router.Handle(notification.ChannelWebhook, channel.NewWebhookSender(hooks, cfg.Webhook))

	if cfg.SMS.GatewayURL != "" {
		router.Handle(notification.ChannelSMS, channel.NewSMSSender(hooks, cfg.SMS))
	}

	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("close redis client", logger.Error(err))
			}
		})
		checks["redis"] = redis.Healthcheck(client)
		router.Handle(notification.ChannelPush, channel.NewPushSender(client, cfg.Push))
	}

	return router, nil
}
