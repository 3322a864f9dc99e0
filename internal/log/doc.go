// Package log builds slog loggers that never print the Web API key.
//
// The SecureHandler masks:
//   - attributes named like credentials (key, api_key, token, cookie, ...)
//   - values that look like keys or bearer tokens
//   - the key= query parameter inside URLs and error strings
//
// Usage:
//
//	logger := log.New(os.Stderr, "text", verbose)
//	logger.Info("request", "url", u) // key=***REDACTED***
//	slog.SetDefault(logger)
package log
