// Package config loads runtime settings from the environment, after an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/grez-lucas/iframe-bridge/internal/iframe"
)

type Cfg struct {
	Bridge  Bridge
	Browser Browser
	Notify  Notify
	Alert   Alert
	Logger  Logger
}

type Bridge struct {
	PollInterval time.Duration
	// Timeout of zero waits until the context is cancelled.
	Timeout  time.Duration
	TieBreak iframe.TieBreak
}

type Browser struct {
	Bin         string
	ControlURL  string
	Headless    bool
	Stealth     bool
	HumanTyping bool
}

type Notify struct {
	WebhookURL string
}

type Alert struct {
	IconURL  string
	ClickURL string
}

type Logger struct {
	Env   string
	Level string
}

// Load reads .env (if present) and the environment.
func Load() (*Cfg, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*Cfg, error) {
	interval, err := envDuration("BRIDGE_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("BRIDGE_POLL_INTERVAL must be positive, got %s", interval)
	}

	timeout, err := envDuration("BRIDGE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, fmt.Errorf("BRIDGE_TIMEOUT must not be negative, got %s", timeout)
	}

	tieBreak, err := iframe.ParseTieBreak(os.Getenv("BRIDGE_TIE_BREAK"))
	if err != nil {
		return nil, fmt.Errorf("BRIDGE_TIE_BREAK: %w", err)
	}

	browser := Browser{
		Bin:        os.Getenv("BROWSER_BIN"),
		ControlURL: os.Getenv("BROWSER_CONTROL_URL"),
	}
	if browser.Headless, err = envBool("BROWSER_HEADLESS", true); err != nil {
		return nil, err
	}
	if browser.Stealth, err = envBool("BROWSER_STEALTH", true); err != nil {
		return nil, err
	}
	if browser.HumanTyping, err = envBool("BROWSER_HUMAN_TYPING", false); err != nil {
		return nil, err
	}

	cfg := &Cfg{
		Bridge: Bridge{
			PollInterval: interval,
			Timeout:      timeout,
			TieBreak:     tieBreak,
		},
		Browser: browser,
		Notify: Notify{
			WebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		},
		Alert: Alert{
			IconURL:  env("ALERT_ICON_URL", "https://example.com/icon.png"),
			ClickURL: env("ALERT_CLICK_URL", "https://example.com"),
		},
		Logger: Logger{
			Env:   env("ENV", "dev"),
			Level: env("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// BridgeOptions turns the Bridge section into iframe options.
func (c *Cfg) BridgeOptions() []iframe.Option {
	return []iframe.Option{
		iframe.WithInterval(c.Bridge.PollInterval),
		iframe.WithTimeout(c.Bridge.Timeout),
		iframe.WithTieBreak(c.Bridge.TieBreak),
	}
}

func env(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// envDuration accepts Go durations ("1500ms") and bare integers as
// milliseconds.
func envDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

// envBool accepts strconv.ParseBool values plus yes/no.
func envBool(key string, defaultValue bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return defaultValue, nil
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
