package outbox

// Config holds the enqueue defaults.
type Config struct {
	MaxAttempts    int    `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
	FallbackLocale string `env:"NOTIFY_FALLBACK_LOCALE" envDefault:"en"`
}
