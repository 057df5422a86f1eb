// Package iframe resolves iframes and the elements inside them on pages that
// render their frames late, replace them, or fill them asynchronously. Every
// operation re-scans the live DOM on a fixed interval until it succeeds, its
// timeout elapses or its context is cancelled.
package iframe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/dom"
	"github.com/grez-lucas/iframe-bridge/internal/poll"
)

// Locator finds iframes in a document.
type Locator struct {
	doc dom.Document
	settings
	log *zap.Logger
}

// NewLocator returns a Locator scanning doc.
func NewLocator(doc dom.Document, opts ...Option) *Locator {
	s := newSettings(opts)
	return &Locator{
		doc:      doc,
		settings: s,
		log:      s.logger.Named("locator"),
	}
}

// FindIframe performs a single scan for the element with the given id and
// returns nil when it is absent.
func (l *Locator) FindIframe(ctx context.Context, id string) (dom.Element, error) {
	return l.doc.FindByID(ctx, id)
}

// MatchIframe performs a single scan over every iframe in the document and
// returns the one whose id contains partial, chosen by the tie-break policy.
// It returns nil when nothing matches.
func (l *Locator) MatchIframe(ctx context.Context, partial string) (dom.Element, error) {
	m, err := l.match(ctx, partial)
	return m.el, err
}

// iframeMatch keeps the id read during the scan, since the handle may go
// stale right after.
type iframeMatch struct {
	el dom.Element
	id string
}

func (l *Locator) match(ctx context.Context, partial string) (iframeMatch, error) {
	frames, err := l.doc.QueryAll(ctx, "iframe")
	if err != nil {
		return iframeMatch{}, err
	}

	var m iframeMatch
	for _, frame := range frames {
		id, err := frame.ID(ctx)
		if errors.Is(err, dom.ErrStale) {
			// detached between the query and the read
			continue
		}
		if err != nil {
			return iframeMatch{}, err
		}
		if !strings.Contains(id, partial) {
			continue
		}
		m = iframeMatch{el: frame, id: id}
		if l.tieBreak == FirstMatch {
			break
		}
	}
	return m, nil
}

// WaitForIframe blocks until an element with the given id is present.
func (l *Locator) WaitForIframe(ctx context.Context, id string) error {
	res := poll.Until(ctx, l.poll, func(ctx context.Context) (struct{}, bool, error) {
		el, err := l.FindIframe(ctx, id)
		if err != nil {
			l.log.Debug("scan failed", zap.String("iframe", id), zap.Error(err))
			return struct{}{}, false, err
		}
		return struct{}{}, el != nil, nil
	})
	return finish(l.log, "WaitForIframe", id, "", res)
}

// WaitForDynamicIframe blocks until at least one iframe id contains partial
// and returns the match selected by the tie-break policy.
func (l *Locator) WaitForDynamicIframe(ctx context.Context, partial string) (dom.Element, error) {
	m, err := l.waitForMatch(ctx, "WaitForDynamicIframe", partial)
	return m.el, err
}

// WaitForDynamicIframeID is WaitForDynamicIframe returning the id the match
// had when it was found.
func (l *Locator) WaitForDynamicIframeID(ctx context.Context, partial string) (string, error) {
	m, err := l.waitForMatch(ctx, "WaitForDynamicIframeID", partial)
	return m.id, err
}

func (l *Locator) waitForMatch(ctx context.Context, op, partial string) (iframeMatch, error) {
	res := poll.Until(ctx, l.poll, func(ctx context.Context) (iframeMatch, bool, error) {
		m, err := l.match(ctx, partial)
		if err != nil {
			l.log.Debug("scan failed", zap.String("partial", partial), zap.Error(err))
			return iframeMatch{}, false, err
		}
		return m, m.el != nil, nil
	})
	if err := finish(l.log, op, "*"+partial+"*", "", res); err != nil {
		return iframeMatch{}, err
	}
	return res.Value, nil
}

func finish[T any](log *zap.Logger, op, iframeID, elementID string, res poll.Result[T]) error {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("iframe", iframeID),
		zap.Int("attempts", res.Attempts),
		zap.Stringer("state", res.State),
	}
	if elementID != "" {
		fields = append(fields, zap.String("element", elementID))
	}

	if res.State == poll.Found {
		log.Debug("resolved", fields...)
		return nil
	}

	cause := res.Err
	if res.State == poll.TimedOut {
		cause = fmt.Errorf("%w: %w", ErrNotFoundWithinDeadline, res.Err)
	}
	if res.LastErr != nil {
		fields = append(fields, zap.NamedError("last_error", res.LastErr))
	}
	log.Warn("resolution failed", append(fields, zap.Error(cause))...)

	return &ResolveError{
		Operation: op,
		Iframe:    iframeID,
		Element:   elementID,
		Attempts:  res.Attempts,
		Cause:     cause,
	}
}
