// Package dom defines the small DOM capability surface the iframe bridge is
// written against. Drivers implement it for a live browser (internal/browser),
// for captured HTML snapshots (htmldom) and for tests (domtest).
package dom

import (
	"context"
	"errors"
)

// Synthetic event names dispatched by the write path.
const (
	EventInput  = "input"
	EventChange = "change"
)

var (
	// ErrNoContentDocument is returned by ContentDocument when the element is
	// not a frame or its document has not been created yet.
	ErrNoContentDocument = errors.New("element has no content document")

	// ErrStale indicates the element reference no longer points at a node
	// attached to the document, usually because the frame was replaced.
	ErrStale = errors.New("element is stale or detached from the document")

	// ErrUnsupported is returned by optional capabilities the driver or the
	// element cannot provide.
	ErrUnsupported = errors.New("operation not supported")
)

// Document is a single DOM document: the top-level page or the content
// document of an iframe.
type Document interface {
	// FindByID returns the first element whose id equals id, in document
	// order, or nil when there is none. Absence is not an error.
	FindByID(ctx context.Context, id string) (Element, error)

	// QueryAll returns every element matching the CSS selector in document
	// order. An empty result is not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Element is a handle to one node. Handles are only valid while the node
// stays attached; callers re-query instead of caching them.
type Element interface {
	ID(ctx context.Context) (string, error)
	TagName(ctx context.Context) (string, error)

	// Value returns the element's value property. ok is false when the
	// element has no value property at all.
	Value(ctx context.Context) (value string, ok bool, err error)
	TextContent(ctx context.Context) (string, error)

	// ContentDocument returns the document of a frame element.
	ContentDocument(ctx context.Context) (Document, error)

	Focus(ctx context.Context) error
	Blur(ctx context.Context) error

	// Click invokes the element's activation behaviour once.
	Click(ctx context.Context) error

	// SetValue assigns the value property directly, without simulating
	// keyboard input.
	SetValue(ctx context.Context, value string) error

	// DispatchEvent fires a synthetic event of the given type on the element.
	DispatchEvent(ctx context.Context, eventType string, bubbles bool) error
}

// Typist is implemented by elements that can produce real keyboard events.
type Typist interface {
	TypeText(ctx context.Context, text string) error
}

// Evaluator is implemented by documents that can run a JavaScript function
// in the page and return its result as a string.
type Evaluator interface {
	EvalString(ctx context.Context, js string, args ...any) (string, error)
}
