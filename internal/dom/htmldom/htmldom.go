// Package htmldom runs the iframe bridge against a captured HTML snapshot
// instead of a live browser. Iframes appear in a snapshot as
// <div data-captured-iframe="true" data-iframe-id="..."> containers holding
// the frame's body; each container is a document of its own.
//
// Writes change the snapshot in memory and are recorded as events, so a flow
// can be dry-run offline and its effects inspected.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/grez-lucas/iframe-bridge/internal/dom"
)

const (
	capturedAttr   = "data-captured-iframe"
	iframeIDAttr   = "data-iframe-id"
	iframeErrAttr  = "data-iframe-error"
	capturedSelect = "[" + capturedAttr + "]"
)

// Event is one interaction applied to the snapshot.
type Event struct {
	Target string
	Op     string
	Detail string
}

func (e Event) String() string {
	if e.Detail == "" {
		return e.Target + ":" + e.Op
	}
	return fmt.Sprintf("%s:%s=%q", e.Target, e.Op, e.Detail)
}

// Snapshot is a parsed capture. It is safe for concurrent use.
type Snapshot struct {
	mu     sync.Mutex
	doc    *goquery.Document
	events []Event
}

// Parse reads an HTML snapshot.
func Parse(r io.Reader) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &Snapshot{doc: doc}, nil
}

// ParseString reads an HTML snapshot from a string.
func ParseString(html string) (*Snapshot, error) {
	return Parse(strings.NewReader(html))
}

// Load reads an HTML snapshot file.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Document returns the top-level document.
func (s *Snapshot) Document() *Document {
	return &Document{snap: s, scope: s.doc.Selection}
}

// Events returns the interactions applied so far.
func (s *Snapshot) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// HTML renders the snapshot including every applied write.
func (s *Snapshot) HTML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Html()
}

func (s *Snapshot) record(e Event) {
	s.events = append(s.events, e)
}

// Document is the top-level snapshot or one captured iframe.
type Document struct {
	snap  *Snapshot
	scope *goquery.Selection
}

var _ dom.Document = (*Document)(nil)

// FindByID implements dom.Document. Captured iframes are found by their
// original iframe id.
func (d *Document) FindByID(ctx context.Context, id string) (dom.Element, error) {
	d.snap.mu.Lock()
	defer d.snap.mu.Unlock()

	var found *goquery.Selection
	d.own(d.scope.Find("[id], "+capturedSelect)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if elementID(s) == id {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return nil, nil
	}
	return d.wrap(found), nil
}

// QueryAll implements dom.Document. "iframe" matches captured iframe
// containers as well as iframe tags that were not inlined.
func (d *Document) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	d.snap.mu.Lock()
	defer d.snap.mu.Unlock()

	var sel *goquery.Selection
	if strings.EqualFold(strings.TrimSpace(selector), "iframe") {
		sel = d.own(d.scope.Find("iframe, " + capturedSelect))
	} else {
		sel = d.own(d.scope.Find(selector))
	}

	out := make([]dom.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.wrap(s))
	})
	return out, nil
}

// own keeps the nodes whose nearest enclosing captured iframe is this
// document's scope, so lookups never leak into nested frames.
func (d *Document) own(sel *goquery.Selection) *goquery.Selection {
	scopeNode := d.scope.Get(0)
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		owner := s.ParentsFiltered(capturedSelect).First()
		if owner.Length() == 0 {
			return !d.isFrame()
		}
		return owner.Get(0) == scopeNode
	})
}

func (d *Document) isFrame() bool {
	_, ok := d.scope.Attr(capturedAttr)
	return ok
}

func (d *Document) wrap(s *goquery.Selection) *Element {
	return &Element{snap: d.snap, sel: s}
}

// Element is one node of the snapshot.
type Element struct {
	snap *Snapshot
	sel  *goquery.Selection
}

var (
	_ dom.Element = (*Element)(nil)
	_ dom.Typist  = (*Element)(nil)
)

func elementID(s *goquery.Selection) string {
	if _, ok := s.Attr(capturedAttr); ok {
		return s.AttrOr(iframeIDAttr, "")
	}
	return s.AttrOr("id", "")
}

func (e *Element) isCapturedFrame() bool {
	_, ok := e.sel.Attr(capturedAttr)
	return ok
}

func (e *Element) tag() string {
	if e.isCapturedFrame() {
		return "IFRAME"
	}
	return strings.ToUpper(goquery.NodeName(e.sel))
}

func (e *Element) id() string {
	return elementID(e.sel)
}

func (e *Element) ID(ctx context.Context) (string, error) {
	e.snap.mu.Lock()
	defer e.snap.mu.Unlock()
	return e.id(), nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	e.snap.mu.Lock()
	defer e.snap.mu.Unlock()
	return e.tag(), nil
}

// Value reports the value property the way a browser would for the
// element's tag.
func (e *Element) Value(ctx context.Context) (string, bool, error) {
	e.snap.mu.Lock()
	defer e.snap.mu.Unlock()

	switch e.tag() {
	case "INPUT", "BUTTON", "OPTION":
		return e.sel.AttrOr("value", ""), true, nil
	case "TEXTAREA":
		return e.sel.Text(), true, nil
	case "SELECT":
		opt := e.sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = e.sel.Find("option").First()
		}
		if v, ok := opt.Attr("value"); ok {
			return v, true, nil
		}
		return strings.TrimSpace(opt.Text()), true, nil
	default:
		return "", false, nil
	}
}

func (e *Element) TextContent(ctx context.Context) (string, error) {
	e.snap.mu.Lock()
	defer e.snap.mu.Unlock()
	if e.isCapturedFrame() {
		// an iframe element has no text of its own
		return "", nil
	}
	return e.sel.Text(), nil
}

// ContentDocument returns the captured document of an inlined iframe. Iframes
// the capture could not read have none.
func (e *Element) ContentDocument(ctx context.Context) (dom.Document, error) {
	e.snap.mu.Lock()
	defer e.snap.mu.Unlock()

	if !e.isCapturedFrame() {
		return nil, dom.ErrNoContentDocument
	}
	if msg, failed := e.sel.Attr(iframeErrAttr); failed {
		return nil, fmt.Errorf("%w: %s", dom.ErrNoContentDocument, msg)
	}
	return &Document{snap: e.snap, scope: e.sel}, nil
}

func (e *Element) Focus(ctx context.Context) error {
	return e.apply(ctx, Event{Op: "focus"}, nil)
}

func (e *Element) Blur(ctx context.Context) error {
	return e.apply(ctx, Event{Op: "blur"}, nil)
}

func (e *Element) Click(ctx context.Context) error {
	return e.apply(ctx, Event{Op: "click"}, nil)
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	return e.apply(ctx, Event{Op: "set-value", Detail: value}, func() { e.setValue(value) })
}

func (e *Element) DispatchEvent(ctx context.Context, eventType string, bubbles bool) error {
	return e.apply(ctx, Event{Op: "dispatch", Detail: eventType}, nil)
}

// TypeText appends text to the value, as keystrokes would.
func (e *Element) TypeText(ctx context.Context, text string) error {
	return e.apply(ctx, Event{Op: "type", Detail: text}, func() {
		e.setValue(e.currentValue() + text)
	})
}

func (e *Element) currentValue() string {
	if e.tag() == "TEXTAREA" {
		return e.sel.Text()
	}
	return e.sel.AttrOr("value", "")
}

func (e *Element) setValue(value string) {
	switch e.tag() {
	case "TEXTAREA":
		e.sel.SetText(value)
	case "SELECT":
		e.sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
			v, ok := opt.Attr("value")
			if !ok {
				v = strings.TrimSpace(opt.Text())
			}
			if v == value {
				opt.SetAttr("selected", "selected")
			} else {
				opt.RemoveAttr("selected")
			}
		})
	default:
		e.sel.SetAttr("value", value)
	}
}

func (e *Element) apply(ctx context.Context, ev Event, mutate func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.snap.mu.Lock()
	defer e.snap.mu.Unlock()
	if mutate != nil {
		mutate()
	}
	ev.Target = e.id()
	e.snap.record(ev)
	return nil
}
