package log

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testAPIKey = "0123456789ABCDEF0123456789ABCDEF"

func TestSecureHandler_SanitizesSensitiveKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		value    string
		wantMask bool
	}{
		{name: "key is sanitized", key: "key", value: "abc123", wantMask: true},
		{name: "api_key is sanitized", key: "api_key", value: "abc123", wantMask: true},
		{name: "API key with uppercase is sanitized", key: "APIKey", value: "abc123", wantMask: true},
		{name: "steam_api_key is sanitized", key: "steam_api_key", value: "abc123", wantMask: true},
		{name: "cookie is sanitized", key: "cookie", value: "session=abc123", wantMask: true},
		{name: "authorization is sanitized", key: "authorization", value: "xyz", wantMask: true},
		{name: "token is sanitized", key: "token", value: "tok", wantMask: true},
		{name: "seed is NOT sanitized", key: "seed", value: "76561199199514290", wantMask: false},
		{name: "id is NOT sanitized", key: "id", value: "76561197960287930", wantMask: false},
		{name: "endpoint is NOT sanitized", key: "endpoint", value: "GetFriendList", wantMask: false},
		{name: "state path is NOT sanitized", key: "path", value: "/tmp/players.json", wantMask: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, true)
			logger.Info("test message", tt.key, tt.value)
			output := buf.String()

			if tt.wantMask {
				if strings.Contains(output, tt.value) {
					t.Errorf("expected value %q to be masked, but found in output: %s", tt.value, output)
				}
				if !strings.Contains(output, MaskValue) {
					t.Errorf("expected mask value %q in output, but not found: %s", MaskValue, output)
				}
				return
			}
			if !strings.Contains(output, tt.value) {
				t.Errorf("expected value %q to be present in output, but not found: %s", tt.value, output)
			}
		})
	}
}

func TestSecureHandler_SanitizesValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		value  any
		secret string
	}{
		{name: "bare API key under a harmless name", value: testAPIKey, secret: testAPIKey},
		{name: "bearer token", value: "Bearer abc.def", secret: "abc.def"},
		{
			name:   "request URL",
			value:  "https://api.steampowered.com/ISteamUser/GetFriendList/v1/?format=json&key=" + testAPIKey + "&steamid=1",
			secret: testAPIKey,
		},
		{
			name:   "error wrapping a URL",
			value:  fmt.Errorf("Get \"https://api.steampowered.com/?key=%s&format=json\": EOF", testAPIKey),
			secret: testAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, true)
			logger.Warn("request failed", "detail", tt.value)
			output := buf.String()

			if strings.Contains(output, tt.secret) {
				t.Errorf("expected %q to be masked, got: %s", tt.secret, output)
			}
			if !strings.Contains(output, MaskValue) {
				t.Errorf("expected mask value in output, got: %s", output)
			}
		})
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://x/?key=abc&steamid=1", "https://x/?key=" + MaskValue + "&steamid=1"},
		{"https://x/?steamid=1&key=abc", "https://x/?steamid=1&key=" + MaskValue},
		{"https://x/?steamid=1", "https://x/?steamid=1"},
		{"no url here", "no url here"},
		{"https://x/?monkey=1", "https://x/?monkey=1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			if got := RedactURL(tt.in); got != tt.want {
				t.Errorf("RedactURL(%q) = %q, expected %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSecureHandler_LogLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		verbose    bool
		level      slog.Level
		shouldShow bool
	}{
		{"debug shown in verbose mode", true, slog.LevelDebug, true},
		{"debug hidden in quiet mode", false, slog.LevelDebug, false},
		{"info hidden in quiet mode", false, slog.LevelInfo, false},
		{"warn shown in quiet mode", false, slog.LevelWarn, true},
		{"error shown in quiet mode", false, slog.LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewSecureLogger(&buf, tt.verbose)
			const msg = "test_unique_message_12345"
			logger.Log(t.Context(), tt.level, msg)

			if got := strings.Contains(buf.String(), msg); got != tt.shouldShow {
				t.Errorf("expected shown=%v, got output: %q", tt.shouldShow, buf.String())
			}
		})
	}
}

func TestSecureHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureLogger(&buf, true).With("api_key", "secret123")
	logger.Info("test message")

	if strings.Contains(buf.String(), "secret123") {
		t.Errorf("expected api_key to be masked in WithAttrs, got: %s", buf.String())
	}
}

func TestSecureHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureLogger(&buf, true).WithGroup("request")
	logger.Info("test message", "endpoint", "GetPlayerSummaries", "key", "abc")
	output := buf.String()

	if !strings.Contains(output, "GetPlayerSummaries") {
		t.Errorf("expected endpoint to be visible, got: %s", output)
	}
	if strings.Contains(output, "=abc") {
		t.Errorf("expected key to be masked, got: %s", output)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		New(&buf, "json", false).Warn("test", "key", "abc")
		if !strings.HasPrefix(buf.String(), "{") {
			t.Errorf("expected JSON output, got: %s", buf.String())
		}
		if strings.Contains(buf.String(), `"abc"`) {
			t.Errorf("expected key to be masked, got: %s", buf.String())
		}
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		New(&buf, "text", false).Warn("test")
		if !strings.Contains(buf.String(), "level=WARN") {
			t.Errorf("expected text output, got: %s", buf.String())
		}
	})
}

func TestContainsSensitiveKeyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key      string
		expected bool
	}{
		{"user_password", true},
		{"api_token", true},
		{"client_secret", true},
		{"auth_header", true},
		{"steam_apikey", true},
		{"seed", false},
		{"steamid", false},
		{"primary_key", false},
		{"cache_key", false},
		{"monkey", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()

			if got := containsSensitiveKeyword(tt.key); got != tt.expected {
				t.Errorf("containsSensitiveKeyword(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestSecureHandler_NilErrorAndHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureLogger(&buf, true)
	var nilErr error
	logger.Info("ok", "error", nilErr, "other", errors.New("plain failure"))
	if !strings.Contains(buf.String(), "plain failure") {
		t.Errorf("expected plain error to pass through, got: %s", buf.String())
	}

	slog.New(NewSecureHandler(nil)).Info("test message")
}
