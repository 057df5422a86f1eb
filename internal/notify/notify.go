// Package notify posts messages to a Discord-compatible webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/redact"
)

const (
	successPrefix = ":white_check_mark: "
	errorPrefix   = ":x: "

	// Discord rejects content longer than this.
	maxContentRunes = 2000

	defaultSendTimeout = 10 * time.Second
)

// Notifier is what callers depend on. Both Webhook and Nop implement it.
type Notifier interface {
	Notify(ctx context.Context, message string)
	NotifySuccess(ctx context.Context, message string)
	NotifyError(ctx context.Context, message string)
}

// CodeBlock wraps message in a plain fenced code block.
func CodeBlock(message string) string {
	return "```\n" + message + "```"
}

// MarkdownBlock wraps message in a fenced block with markdown highlighting.
func MarkdownBlock(message string) string {
	return "```md\n" + message + "```"
}

// Webhook sends messages to one webhook URL.
type Webhook struct {
	url     string
	http    *http.Client
	timeout time.Duration
	log     *zap.Logger

	wg sync.WaitGroup
}

var _ Notifier = (*Webhook)(nil)

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		w.http = c
	}
}

// WithSendTimeout bounds each fire-and-forget delivery.
func WithSendTimeout(d time.Duration) Option {
	return func(w *Webhook) {
		w.timeout = d
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Webhook) {
		w.log = l.Named("notify")
	}
}

// NewWebhook returns a Webhook posting to url.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:     url,
		http:    http.DefaultClient,
		timeout: defaultSendTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// New returns a Webhook for url, or Nop when url is empty.
func New(url string, opts ...Option) Notifier {
	if url == "" {
		return Nop{}
	}
	return NewWebhook(url, opts...)
}

type payload struct {
	Content string `json:"content"`
}

// Send posts message and waits for the response. Secrets are redacted and
// overly long messages are truncated first.
func (w *Webhook) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(payload{Content: truncate(redact.Text(message), maxContentRunes)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected message: %s", resp.Status)
	}
	return nil
}

// Notify sends message in the background. Failures are logged, never
// returned. The delivery outlives ctx cancellation but not the send
// timeout.
func (w *Webhook) Notify(ctx context.Context, message string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()

		if err := w.Send(sendCtx, message); err != nil {
			w.log.Warn("notification not delivered", zap.Error(err))
			return
		}
		w.log.Debug("notification delivered")
	}()
}

func (w *Webhook) NotifySuccess(ctx context.Context, message string) {
	w.Notify(ctx, successPrefix+message)
}

func (w *Webhook) NotifyError(ctx context.Context, message string) {
	w.Notify(ctx, errorPrefix+message)
}

// Wait blocks until every background delivery has finished.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

// Nop drops every message.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) Notify(context.Context, string)        {}
func (Nop) NotifySuccess(context.Context, string) {}
func (Nop) NotifyError(context.Context, string)   {}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
