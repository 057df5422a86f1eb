package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grez-lucas/iframe-bridge/internal/iframe"
)

var allKeys = []string{
	"BRIDGE_POLL_INTERVAL", "BRIDGE_TIMEOUT", "BRIDGE_TIE_BREAK",
	"BROWSER_BIN", "BROWSER_CONTROL_URL", "BROWSER_HEADLESS", "BROWSER_STEALTH", "BROWSER_HUMAN_TYPING",
	"DISCORD_WEBHOOK_URL", "ALERT_ICON_URL", "ALERT_CLICK_URL", "ENV", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Bridge.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Bridge.Timeout)
	assert.Equal(t, iframe.LastMatch, cfg.Bridge.TieBreak)
	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.Stealth)
	assert.False(t, cfg.Browser.HumanTyping)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, "dev", cfg.Logger.Env)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Len(t, cfg.BridgeOptions(), 3)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BRIDGE_POLL_INTERVAL", "250ms")
	t.Setenv("BRIDGE_TIMEOUT", "0")
	t.Setenv("BRIDGE_TIE_BREAK", "first")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("BROWSER_HUMAN_TYPING", "yes")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.test/api/webhooks/1/x")
	t.Setenv("ENV", "prod")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.PollInterval)
	assert.Zero(t, cfg.Bridge.Timeout, "zero means unbounded")
	assert.Equal(t, iframe.FirstMatch, cfg.Bridge.TieBreak)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.HumanTyping)
	assert.Equal(t, "https://discord.test/api/webhooks/1/x", cfg.Notify.WebhookURL)
	assert.Equal(t, "prod", cfg.Logger.Env)
}

func TestFromEnv_MillisecondIntegers(t *testing.T) {
	clearEnv(t)
	t.Setenv("BRIDGE_POLL_INTERVAL", "1500")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.Bridge.PollInterval)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value, msg string
	}{
		{"BRIDGE_POLL_INTERVAL", "soon", "BRIDGE_POLL_INTERVAL"},
		{"BRIDGE_POLL_INTERVAL", "0s", "must be positive"},
		{"BRIDGE_TIMEOUT", "-1s", "must not be negative"},
		{"BRIDGE_TIE_BREAK", "middle", "BRIDGE_TIE_BREAK"},
		{"BROWSER_HEADLESS", "ture", "BROWSER_HEADLESS: invalid boolean"},
		{"BROWSER_STEALTH", "on", "BROWSER_STEALTH: invalid boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()

			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestFromEnv_Booleans(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"false", false},
		{"0", false},
		{"no", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("BROWSER_HUMAN_TYPING", tt.value)

			cfg, err := FromEnv()

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Browser.HumanTyping)
		})
	}
}
