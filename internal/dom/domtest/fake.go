// Package domtest provides an in-memory DOM for exercising the iframe bridge
// without a browser. Documents count their scans so tests can mutate the
// tree at an exact polling attempt, and elements record every interaction.
package domtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/grez-lucas/iframe-bridge/internal/dom"
)

// Interaction kinds recorded by Element.
const (
	OpFocus    = "focus"
	OpBlur     = "blur"
	OpClick    = "click"
	OpSetValue = "set-value"
	OpType     = "type"
	OpDispatch = "dispatch"
	// OpID fails ID reads; it is never recorded.
	OpID = "id"
)

// Event is one recorded interaction.
type Event struct {
	Target string
	Op     string
	// Detail holds the assigned value for OpSetValue/OpType and the event
	// type for OpDispatch.
	Detail  string
	Bubbles bool
}

func (e Event) String() string {
	switch e.Op {
	case OpDispatch:
		return e.Target + ":" + e.Detail
	case OpSetValue, OpType:
		return fmt.Sprintf("%s:%s=%q", e.Target, e.Op, e.Detail)
	default:
		return e.Target + ":" + e.Op
	}
}

// Document is a flat, ordered list of elements. Order of insertion is
// document order.
type Document struct {
	mu       sync.Mutex
	elements []*Element
	scans    int
	hooks    map[int][]func(*Document)
	findErr  error
}

var _ dom.Document = (*Document)(nil)

// NewDocument returns a document holding els in order.
func NewDocument(els ...*Element) *Document {
	d := &Document{hooks: make(map[int][]func(*Document))}
	d.Append(els...)
	return d
}

// Append attaches elements at the end of the document.
func (d *Document) Append(els ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, el := range els {
		el.mu.Lock()
		el.detached = false
		el.mu.Unlock()
		d.elements = append(d.elements, el)
	}
}

// Remove detaches every element with the given id. Handles already held by
// callers become stale.
func (d *Document) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.elements[:0]
	for _, el := range d.elements {
		if el.id == id {
			el.mu.Lock()
			el.detached = true
			el.mu.Unlock()
			continue
		}
		kept = append(kept, el)
	}
	d.elements = kept
}

// BeforeScan registers fn to run right before scan number n (1-based). A
// scan is one FindByID or QueryAll call on this document.
func (d *Document) BeforeScan(n int, fn func(*Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[n] = append(d.hooks[n], fn)
}

// FailScans makes every following lookup return err until cleared with nil.
func (d *Document) FailScans(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.findErr = err
}

// Scans returns how many lookups have been performed.
func (d *Document) Scans() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}

func (d *Document) beginScan() error {
	d.mu.Lock()
	d.scans++
	hooks := d.hooks[d.scans]
	delete(d.hooks, d.scans)
	d.mu.Unlock()

	for _, fn := range hooks {
		fn(d)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findErr
}

// FindByID implements dom.Document.
func (d *Document) FindByID(ctx context.Context, id string) (dom.Element, error) {
	if err := d.beginScan(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, el := range d.elements {
		if el.id == id {
			return el, nil
		}
	}
	return nil, nil
}

// QueryAll implements dom.Document. Supported selectors are "*", a tag name
// and "#id".
func (d *Document) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	if err := d.beginScan(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dom.Element
	for _, el := range d.elements {
		if el.matches(selector) {
			out = append(out, el)
		}
	}
	return out, nil
}

// Element is a fake node. Fields are guarded by mu; use the accessors.
type Element struct {
	mu       sync.Mutex
	id       string
	tag      string
	value    string
	hasValue bool
	text     string
	content  *Document
	detached bool
	typist   bool
	failOps  map[string]error
	failPost map[string]error
	events   *[]Event
	eventsMu *sync.Mutex
}

var (
	_ dom.Element = (*Element)(nil)
	_ dom.Typist  = (*Element)(nil)
)

func newElement(tag, id string) *Element {
	return &Element{
		id:       id,
		tag:      strings.ToUpper(tag),
		failOps:  make(map[string]error),
		failPost: make(map[string]error),
		events:   &[]Event{},
		eventsMu: &sync.Mutex{},
	}
}

// Iframe returns an iframe element whose content document is content. A nil
// content models an iframe that has not loaded yet.
func Iframe(id string, content *Document) *Element {
	el := newElement("iframe", id)
	el.content = content
	return el
}

// Input returns an INPUT element with the given value.
func Input(id, value string) *Element {
	el := newElement("input", id)
	el.value = value
	el.hasValue = true
	el.typist = true
	return el
}

// Button returns a BUTTON element with a text label.
func Button(id, label string) *Element {
	el := newElement("button", id)
	el.text = label
	el.hasValue = true
	return el
}

// Text returns a display element without a value property.
func Text(tag, id, text string) *Element {
	el := newElement(tag, id)
	el.text = text
	return el
}

// WithoutKeyboard disables the dom.Typist capability of an input.
func (el *Element) WithoutKeyboard() *Element {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.typist = false
	return el
}

// SetContent loads (or replaces) the content document of an iframe.
func (el *Element) SetContent(content *Document) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.content = content
}

// Fail makes the given interaction return err.
func (el *Element) Fail(op string, err error) *Element {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.failOps[op] = err
	return el
}

// FailAfter makes the given interaction take effect and be recorded, then
// return err. It models a handler that replaces the frame while the driver
// call is still returning.
func (el *Element) FailAfter(op string, err error) *Element {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.failPost[op] = err
	return el
}

// CurrentValue returns the value property as last assigned.
func (el *Element) CurrentValue() string {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.value
}

// Events returns a copy of the recorded interactions.
func (el *Element) Events() []Event {
	el.eventsMu.Lock()
	defer el.eventsMu.Unlock()
	return append([]Event(nil), (*el.events)...)
}

// EventStrings returns Events rendered with Event.String.
func (el *Element) EventStrings() []string {
	events := el.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

// Count returns how many recorded events have the given op and detail. An
// empty detail matches any.
func (el *Element) Count(op, detail string) int {
	n := 0
	for _, e := range el.Events() {
		if e.Op == op && (detail == "" || e.Detail == detail) {
			n++
		}
	}
	return n
}

func (el *Element) matches(selector string) bool {
	switch {
	case selector == "*":
		return true
	case strings.HasPrefix(selector, "#"):
		return el.id == selector[1:]
	default:
		return strings.EqualFold(el.tag, selector)
	}
}

func (el *Element) check(op string) error {
	if el.detached {
		return dom.ErrStale
	}
	return el.failOps[op]
}

func (el *Element) record(e Event) {
	e.Target = el.id
	el.eventsMu.Lock()
	defer el.eventsMu.Unlock()
	*el.events = append(*el.events, e)
}

// ID implements dom.Element.
func (el *Element) ID(ctx context.Context) (string, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if err := el.check(OpID); err != nil {
		return "", err
	}
	return el.id, nil
}

// TagName implements dom.Element.
func (el *Element) TagName(ctx context.Context) (string, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.detached {
		return "", dom.ErrStale
	}
	return el.tag, nil
}

// Value implements dom.Element.
func (el *Element) Value(ctx context.Context) (string, bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.detached {
		return "", false, dom.ErrStale
	}
	return el.value, el.hasValue, nil
}

// TextContent implements dom.Element.
func (el *Element) TextContent(ctx context.Context) (string, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.detached {
		return "", dom.ErrStale
	}
	return el.text, nil
}

// ContentDocument implements dom.Element.
func (el *Element) ContentDocument(ctx context.Context) (dom.Document, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.detached {
		return nil, dom.ErrStale
	}
	if el.content == nil {
		return nil, dom.ErrNoContentDocument
	}
	return el.content, nil
}

func (el *Element) interact(op string, e Event, apply func()) error {
	el.mu.Lock()
	if err := el.check(op); err != nil {
		el.mu.Unlock()
		return err
	}
	if apply != nil {
		apply()
	}
	post := el.failPost[op]
	el.mu.Unlock()
	el.record(e)
	return post
}

// Focus implements dom.Element.
func (el *Element) Focus(ctx context.Context) error {
	return el.interact(OpFocus, Event{Op: OpFocus}, nil)
}

// Blur implements dom.Element.
func (el *Element) Blur(ctx context.Context) error {
	return el.interact(OpBlur, Event{Op: OpBlur}, nil)
}

// Click implements dom.Element.
func (el *Element) Click(ctx context.Context) error {
	return el.interact(OpClick, Event{Op: OpClick}, nil)
}

// SetValue implements dom.Element.
func (el *Element) SetValue(ctx context.Context, value string) error {
	return el.interact(OpSetValue, Event{Op: OpSetValue, Detail: value}, func() {
		el.value = value
		el.hasValue = true
	})
}

// DispatchEvent implements dom.Element.
func (el *Element) DispatchEvent(ctx context.Context, eventType string, bubbles bool) error {
	return el.interact(OpDispatch, Event{Op: OpDispatch, Detail: eventType, Bubbles: bubbles}, nil)
}

// TypeText implements dom.Typist for inputs created with Input.
func (el *Element) TypeText(ctx context.Context, text string) error {
	el.mu.Lock()
	supported := el.typist
	el.mu.Unlock()
	if !supported {
		return fmt.Errorf("%s: keyboard input: %w", el.id, dom.ErrUnsupported)
	}
	return el.interact(OpType, Event{Op: OpType, Detail: text}, func() {
		el.value += text
		el.hasValue = true
	})
}
