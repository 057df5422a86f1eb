// Package alert shows desktop notifications through the page's Notification
// API.
package alert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/dom"
)

// Permission is the page's notification permission at the time of a Show.
type Permission string

const (
	Granted     Permission = "granted"
	Denied      Permission = "denied"
	Default     Permission = "default"
	Unsupported Permission = "unsupported"
)

// showJS shows the notification when permission is granted. With the
// "default" permission it asks the user and shows on approval; the prompt is
// never awaited. The permission seen before any prompt is returned.
const showJS = `(title, body, icon, url) => {
	if (!('Notification' in window)) return 'unsupported';

	const show = () => {
		const n = new Notification(title, { body: body, icon: icon });
		n.onclick = () => window.open(url);
	};

	const permission = Notification.permission;
	if (permission === 'granted') {
		show();
	} else if (permission !== 'denied') {
		Notification.requestPermission().then((p) => { if (p === 'granted') show(); });
	}
	return permission;
}`

// Alerter shows notifications in one page.
type Alerter struct {
	eval     dom.Evaluator
	iconURL  string
	clickURL string
	log      *zap.Logger
}

// New returns an Alerter evaluating in eval. A nil logger is replaced by a
// no-op one.
func New(eval dom.Evaluator, iconURL, clickURL string, log *zap.Logger) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{
		eval:     eval,
		iconURL:  iconURL,
		clickURL: clickURL,
		log:      log.Named("alert"),
	}
}

// Show displays title and body. Denied and unsupported permissions are
// silent no-ops; only a failure to evaluate in the page is an error.
func (a *Alerter) Show(ctx context.Context, title, body string) (Permission, error) {
	res, err := a.eval.EvalString(ctx, showJS, title, body, a.iconURL, a.clickURL)
	if err != nil {
		return "", fmt.Errorf("show notification: %w", err)
	}

	perm := Permission(res)
	switch perm {
	case Granted:
		a.log.Info("notification shown", zap.String("title", title))
	case Default:
		a.log.Info("notification permission requested", zap.String("title", title))
	case Denied, Unsupported:
		a.log.Debug("notification skipped", zap.String("title", title), zap.String("permission", res))
	default:
		return "", fmt.Errorf("show notification: unexpected permission %q", res)
	}
	return perm, nil
}
