package config

import "slices"

const redacted = "***"

// Redacted returns a copy of c with credentials masked, for logging the
// active configuration.
func (c *Config) Redacted() Config {
	out := *c

	redact(&out.Venues.Backpack.APIKey)
	redact(&out.Venues.Backpack.APISecret)
	redact(&out.Venues.Hyperliquid.PrivateKey)
	redact(&out.Venues.Hyperliquid.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = slices.Clone(c.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(c.Notify.Events)
	out.Notify.Critical = slices.Clone(c.Notify.Critical)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
