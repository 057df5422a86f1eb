package iframe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/grez-lucas/iframe-bridge/internal/dom"
	"github.com/grez-lucas/iframe-bridge/internal/poll"
	"github.com/grez-lucas/iframe-bridge/internal/redact"
)

// Bridge reads and writes elements that live inside an iframe's document.
// Each call polls until both the iframe and the element exist on the same
// scan, then acts exactly once.
type Bridge struct {
	loc *Locator
	log *zap.Logger
}

// NewBridge returns a Bridge over the top-level document doc.
func NewBridge(doc dom.Document, opts ...Option) *Bridge {
	loc := NewLocator(doc, opts...)
	return &Bridge{
		loc: loc,
		log: loc.logger.Named("bridge"),
	}
}

// Locator returns the Locator the bridge resolves iframes with.
func (b *Bridge) Locator() *Locator {
	return b.loc
}

// GetValue returns the element's value property when it is non-empty and its
// text content otherwise. An empty string is a valid result.
func (b *Bridge) GetValue(ctx context.Context, iframeID, elementID string) (string, error) {
	return withElement(ctx, b, "GetValue", iframeID, elementID, readValue)
}

// Click invokes the element's click behaviour once. An error from the click
// itself is returned as is, even a stale one, since the page may have acted
// on it.
func (b *Bridge) Click(ctx context.Context, iframeID, buttonID string) error {
	_, err := withElement(ctx, b, "Click", iframeID, buttonID, func(ctx context.Context, el dom.Element) (struct{}, error) {
		// the handler may already have run, so a failed click is never retried
		return struct{}{}, poll.Permanent(el.Click(ctx))
	})
	if err == nil {
		b.log.Info("clicked", zap.String("iframe", iframeID), zap.String("element", buttonID))
	}
	return err
}

// Fill writes value into a form control the way validation-heavy frameworks
// expect: focus, assign, input, change, blur. The order is part of the
// contract.
func (b *Bridge) Fill(ctx context.Context, iframeID, inputID, value string) error {
	_, err := withElement(ctx, b, "Fill", iframeID, inputID, func(ctx context.Context, el dom.Element) (struct{}, error) {
		if err := requireFormControl(ctx, el); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fill(ctx, el, value)
	})
	if err == nil {
		b.log.Info("filled",
			zap.String("iframe", iframeID),
			zap.String("element", inputID),
			zap.String("value", redact.Value(inputID, value)))
	}
	return err
}

// Type enters value with real keyboard events. Elements whose driver cannot
// produce keyboard input fail with ErrElementTypeMismatch.
func (b *Bridge) Type(ctx context.Context, iframeID, inputID, value string) error {
	_, err := withElement(ctx, b, "Type", iframeID, inputID, func(ctx context.Context, el dom.Element) (struct{}, error) {
		if err := requireFormControl(ctx, el); err != nil {
			return struct{}{}, err
		}
		typist, ok := el.(dom.Typist)
		if !ok {
			return struct{}{}, fmt.Errorf("%w: keyboard input unavailable", ErrElementTypeMismatch)
		}
		if err := el.Focus(ctx); err != nil {
			return struct{}{}, fmt.Errorf("focus: %w", err)
		}
		if err := typist.TypeText(ctx, value); err != nil {
			if errors.Is(err, dom.ErrUnsupported) {
				return struct{}{}, fmt.Errorf("%w: %w", ErrElementTypeMismatch, err)
			}
			return struct{}{}, poll.Permanent(fmt.Errorf("type: %w", err))
		}
		return struct{}{}, blurAfterWrite(ctx, el)
	})
	if err == nil {
		b.log.Info("typed",
			zap.String("iframe", iframeID),
			zap.String("element", inputID),
			zap.String("value", redact.Value(inputID, value)))
	}
	return err
}

// withElement is the poll loop shared by every bridge operation: resolve the
// iframe, its document and the element on one scan, then run found once.
// A stale error from found is retried on the next scan, so found must wrap
// its errors with poll.Permanent once it has changed the page. Any other
// error is terminal.
func withElement[T any](ctx context.Context, b *Bridge, op, iframeID, elementID string, found func(context.Context, dom.Element) (T, error)) (T, error) {
	res := poll.Until(ctx, b.loc.poll, func(ctx context.Context) (T, bool, error) {
		var zero T

		el, err := b.lookup(ctx, iframeID, elementID)
		if err != nil {
			b.log.Debug("scan failed", zap.String("iframe", iframeID), zap.String("element", elementID), zap.Error(err))
			return zero, false, err
		}
		if el == nil {
			return zero, false, nil
		}

		v, err := found(ctx, el)
		switch {
		case err == nil:
			return v, true, nil
		case poll.IsPermanent(err), errors.Is(err, dom.ErrStale):
			return zero, false, err
		default:
			return zero, false, poll.Permanent(err)
		}
	})

	if err := finish(b.log, op, iframeID, elementID, res); err != nil {
		var zero T
		return zero, err
	}
	return res.Value, nil
}

func (b *Bridge) lookup(ctx context.Context, iframeID, elementID string) (dom.Element, error) {
	frame, err := b.loc.FindIframe(ctx, iframeID)
	if err != nil || frame == nil {
		return nil, err
	}

	doc, err := frame.ContentDocument(ctx)
	if errors.Is(err, dom.ErrNoContentDocument) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return doc.FindByID(ctx, elementID)
}

func readValue(ctx context.Context, el dom.Element) (string, error) {
	value, ok, err := el.Value(ctx)
	if err != nil {
		return "", err
	}
	if ok && value != "" {
		return value, nil
	}
	return el.TextContent(ctx)
}

// fill may be retried only up to the focus. From the value assignment on,
// every error is permanent.
func fill(ctx context.Context, el dom.Element, value string) error {
	if err := el.Focus(ctx); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	if err := el.SetValue(ctx, value); err != nil {
		return poll.Permanent(fmt.Errorf("set value: %w", err))
	}
	for _, event := range []string{dom.EventInput, dom.EventChange} {
		if err := el.DispatchEvent(ctx, event, true); err != nil {
			return poll.Permanent(fmt.Errorf("dispatch %s: %w", event, err))
		}
	}
	return blurAfterWrite(ctx, el)
}

// blurAfterWrite ends a write. A stale element here means a change handler
// already replaced the frame, so the write is complete.
func blurAfterWrite(ctx context.Context, el dom.Element) error {
	err := el.Blur(ctx)
	if err == nil || errors.Is(err, dom.ErrStale) {
		return nil
	}
	return poll.Permanent(fmt.Errorf("blur: %w", err))
}

var formControls = map[string]bool{
	"INPUT":    true,
	"TEXTAREA": true,
	"SELECT":   true,
}

func requireFormControl(ctx context.Context, el dom.Element) error {
	tag, err := el.TagName(ctx)
	if err != nil {
		return err
	}
	if !formControls[strings.ToUpper(tag)] {
		return fmt.Errorf("%w: <%s> is not a form control", ErrElementTypeMismatch, strings.ToLower(tag))
	}
	return nil
}
