package email

// Config holds email delivery settings.
// Postmark tokens may be empty in development, where DevDir is used instead.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"NOTIFY_EMAIL_FROM" envDefault:"no-reply@example.com"`
	SupportEmail         string `env:"NOTIFY_EMAIL_REPLY_TO" envDefault:"support@example.com"`
	DevDir               string `env:"NOTIFY_EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

// UsePostmark reports whether both Postmark tokens are configured.
func (c Config) UsePostmark() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
