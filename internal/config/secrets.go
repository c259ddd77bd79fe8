package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Server.APIKey)
	redact(&out.Webhook.HashKey)
	redact(&out.Database.DSN)
	redact(&out.Database.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Crypto.Passphrase)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Maps and slices are copied so mutations to the redacted copy do not
	// reach the original.
	out.Crypto.Keys = make(map[string]string, len(cfg.Crypto.Keys))
	for v := range cfg.Crypto.Keys {
		out.Crypto.Keys[v] = redacted
	}
	out.Exchanges = make(map[string]ExchangeConfig, len(cfg.Exchanges))
	for id, ex := range cfg.Exchanges {
		out.Exchanges[id] = ex
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
