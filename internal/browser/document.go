package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"

	"github.com/grez-lucas/iframe-bridge/internal/dom"
)

// Document is a page or frame context. Every call goes to the live DOM;
// nothing is cached between calls.
type Document struct {
	page        *rod.Page
	humanTyping bool
}

var (
	_ dom.Document  = (*Document)(nil)
	_ dom.Evaluator = (*Document)(nil)
)

// NewDocument wraps page. humanTyping selects TypeHuman over TypeFast for
// keyboard input.
func NewDocument(page *rod.Page, humanTyping bool) *Document {
	return &Document{page: page, humanTyping: humanTyping}
}

// Page returns the underlying Rod page or frame.
func (d *Document) Page() *rod.Page {
	return d.page
}

// FindByID returns the element with the given id, or nil when absent. It
// does not wait.
func (d *Document) FindByID(ctx context.Context, id string) (dom.Element, error) {
	ok, el, err := d.page.Context(ctx).Has(idSelector(id))
	if err != nil {
		return nil, classify(err)
	}
	if !ok {
		return nil, nil
	}
	return d.wrap(el), nil
}

// QueryAll returns every element matching the CSS selector in document
// order.
func (d *Document) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = d.wrap(el)
	}
	return out, nil
}

// EvalString evaluates a JS function in the page and returns its result as
// a string.
func (d *Document) EvalString(ctx context.Context, js string, args ...any) (string, error) {
	res, err := d.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", classify(err)
	}
	return res.Value.Str(), nil
}

func (d *Document) wrap(el *rod.Element) *Element {
	return &Element{el: el, humanTyping: d.humanTyping}
}

// Element is a live Rod element.
type Element struct {
	el          *rod.Element
	humanTyping bool
}

var (
	_ dom.Element = (*Element)(nil)
	_ dom.Typist  = (*Element)(nil)
)

// Rod returns the underlying element.
func (e *Element) Rod() *rod.Element {
	return e.el
}

func (e *Element) ID(ctx context.Context) (string, error) {
	return e.stringProperty(ctx, "id")
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	return e.stringProperty(ctx, "tagName")
}

func (e *Element) Value(ctx context.Context) (string, bool, error) {
	v, err := e.el.Context(ctx).Property("value")
	if err != nil {
		return "", false, classify(err)
	}
	if v.Nil() {
		return "", false, nil
	}
	return v.Str(), true, nil
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	return e.stringProperty(ctx, "textContent")
}

// ContentDocument returns the frame context of an iframe element.
func (e *Element) ContentDocument(ctx context.Context) (dom.Document, error) {
	frame, err := e.el.Context(ctx).Frame()
	if err != nil {
		if stale := classify(err); errors.Is(stale, dom.ErrStale) {
			return nil, stale
		}
		return nil, fmt.Errorf("%w: %w", dom.ErrNoContentDocument, err)
	}
	return &Document{page: frame, humanTyping: e.humanTyping}, nil
}

func (e *Element) Focus(ctx context.Context) error {
	return classify(e.el.Context(ctx).Focus())
}

func (e *Element) Blur(ctx context.Context) error {
	return classify(e.el.Context(ctx).Blur())
}

// Click calls the element's click() method. No mouse events are synthesized,
// so covered or off-screen buttons still fire.
func (e *Element) Click(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.click()`)
	return classify(err)
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	_, err := e.el.Context(ctx).Eval(`(v) => { this.value = v }`, value)
	return classify(err)
}

func (e *Element) DispatchEvent(ctx context.Context, eventType string, bubbles bool) error {
	_, err := e.el.Context(ctx).Eval(
		`(type, bubbles) => { this.dispatchEvent(new Event(type, { bubbles: bubbles })) }`,
		eventType, bubbles,
	)
	return classify(err)
}

// TypeText sends real key events for every character of text.
func (e *Element) TypeText(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if e.humanTyping {
		return classify(TypeHuman(ctx, el, text))
	}
	return classify(TypeFast(el, text))
}

func (e *Element) stringProperty(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Property(name)
	if err != nil {
		return "", classify(err)
	}
	return v.Str(), nil
}

// idSelector builds an attribute selector so ids that are not valid CSS
// identifiers (leading digits, "$", ":") still match.
func idSelector(id string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `[id="` + r.Replace(id) + `"]`
}

// classify marks errors caused by a node or execution context that went away
// as dom.ErrStale.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cdp.ErrCtxNotFound) ||
		errors.Is(err, cdp.ErrCtxDestroyed) ||
		errors.Is(err, cdp.ErrObjNotFound) ||
		errors.Is(err, &rod.ObjectNotFoundError{}) {
		return fmt.Errorf("%w: %w", dom.ErrStale, err)
	}

	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) && strings.Contains(cdpErr.Message, "node with given id") {
		return fmt.Errorf("%w: %w", dom.ErrStale, err)
	}
	return err
}
