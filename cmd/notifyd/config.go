package main

import (
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/outbox"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

const (
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
)

// appConfig composes every component's Config. Nested structs are parsed by
// their own env tags.
type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"NOTIFY_SERVICE_NAME" envDefault:"notifyd"`

	Store      string `env:"NOTIFY_STORE" envDefault:"postgres"`
	SQLitePath string `env:"NOTIFY_SQLITE_PATH" envDefault:"./notifykit.db"`

	// Empty paths use the catalogs embedded in the binary.
	CatalogPath   string `env:"NOTIFY_CATALOG_PATH"`
	TemplatesPath string `env:"NOTIFY_TEMPLATES_PATH"`

	// ClientIPHeaders lists proxy headers trusted for the caller address.
	ClientIPHeaders []string `env:"NOTIFY_CLIENT_IP_HEADERS" envSeparator:"," envDefault:"X-Forwarded-For,X-Real-IP"`

	Postgres   pg.Config
	Redis      redis.Config
	Dispatcher dispatcher.Config
	Outbox     outbox.Config
	HTTP       httpserver.Config
	Email      email.Config
	Webhook    channel.WebhookConfig
	SMS        channel.SMSConfig
	Push       channel.PushConfig
}
