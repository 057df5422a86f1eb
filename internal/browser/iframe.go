package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
)

// stable DOM: no more than 1% change over 300ms
const (
	domStableWindow = 300 * time.Millisecond
	domStableDiff   = 0.01
)

// WaitForIFrames waits for DOM stability on the page and then, recursively,
// on every visible iframe.
func WaitForIFrames(page *rod.Page) error {
	if err := page.WaitDOMStable(domStableWindow, domStableDiff); err != nil {
		return fmt.Errorf("wait dom stable: %w", err)
	}

	iframes, err := page.Elements("iframe")
	if err != nil {
		return nil
	}

	for _, iframe := range iframes {
		visible, _ := iframe.Visible()
		if !visible {
			continue
		}

		frame, err := iframe.Frame()
		if err != nil {
			continue
		}

		// A frame that never settles must not block its siblings.
		_ = WaitForIFrames(frame)
	}
	return nil
}

// FrameNode describes one iframe and the iframes nested inside it.
type FrameNode struct {
	// Path is the chain of labels from the top-level page, e.g.
	// "main > iframe#ptifrmtgtframe".
	Path     string
	ID       string
	Name     string
	Src      string
	Visible  bool
	Err      error
	Children []FrameNode
}

// Label returns the shortest readable identifier of the iframe.
func (n FrameNode) Label(index int) string {
	switch {
	case n.ID != "":
		return "iframe#" + n.ID
	case n.Name != "":
		return fmt.Sprintf("iframe[name=%s]", n.Name)
	default:
		return fmt.Sprintf("iframe[%d]", index)
	}
}

// FrameTree walks every iframe reachable from page, depth first.
func FrameTree(page *rod.Page) ([]FrameNode, error) {
	return frameTree(page, "main", 0)
}

const maxFrameDepth = 10

func frameTree(page *rod.Page, path string, depth int) ([]FrameNode, error) {
	iframes, err := page.Elements("iframe")
	if err != nil {
		return nil, fmt.Errorf("list iframes in %s: %w", path, err)
	}

	nodes := make([]FrameNode, 0, len(iframes))
	for i, iframe := range iframes {
		var n FrameNode
		n.ID = attr(iframe, "id")
		n.Name = attr(iframe, "name")
		n.Src = attr(iframe, "src")
		n.Visible, _ = iframe.Visible()
		n.Path = path + " > " + n.Label(i)

		if depth < maxFrameDepth {
			frame, err := iframe.Frame()
			if err != nil {
				n.Err = err
			} else if n.Children, err = frameTree(frame, n.Path, depth+1); err != nil {
				n.Err = err
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func attr(el *rod.Element, name string) string {
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}
