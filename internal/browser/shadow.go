package browser

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
)

// flattenShadowDOMJS walks the DOM depth first and inlines shadow roots and
// same-origin iframe documents so that page.HTML() returns everything a
// user sees.
//
// Shadow content is wrapped in <div data-shadow-root="true">. Each iframe is
// replaced by <div data-captured-iframe="true" data-iframe-id="..."> holding
// its body. The htmldom driver resolves iframe ids against those
// containers.
//
// Iframes inside a shadow root are inlined before that root is serialized:
// once shadow content is read as innerHTML, live contentDocument references
// are gone.
const flattenShadowDOMJS = `() => {
	const MAX_DEPTH = 100;
	const stats = { shadow: 0, iframe: 0 };

	const visitChildren = (node, depth) => {
		for (const child of Array.from(node.childNodes)) {
			if (child.nodeType === Node.ELEMENT_NODE) visit(child, depth);
		}
	};

	const visit = (el, depth) => {
		if (depth > MAX_DEPTH) return;
		if (el.tagName === 'IFRAME') return inlineFrame(el, depth);
		if (el.shadowRoot) return inlineShadow(el, depth);
		visitChildren(el, depth + 1);
	};

	const copyStyles = (from, into, marker) => {
		from.querySelectorAll('style').forEach((style) => {
			const s = into.ownerDocument.createElement('style');
			s.setAttribute(marker, 'true');
			s.textContent = style.textContent;
			into.appendChild(s);
		});
	};

	const inlineShadow = (host, depth) => {
		const root = host.shadowRoot;
		visitChildren(root, depth + 1);
		// slotted light DOM children may host their own shadow roots
		visitChildren(host, depth + 1);

		const box = host.ownerDocument.createElement('div');
		box.setAttribute('data-shadow-root', 'true');
		box.setAttribute('data-shadow-host', host.tagName.toLowerCase());
		copyStyles(root, box, 'data-from-shadow');
		for (const child of Array.from(root.childNodes)) {
			if (child.nodeType === Node.ELEMENT_NODE && child.tagName === 'STYLE') continue;
			try { box.appendChild(child.cloneNode(true)); } catch (e) {}
		}
		host.appendChild(box);
		stats.shadow++;
	};

	const frameBox = (iframe) => {
		const box = iframe.ownerDocument.createElement('div');
		box.setAttribute('data-captured-iframe', 'true');
		box.setAttribute('data-iframe-id', iframe.id || '');
		box.setAttribute('data-iframe-name', iframe.name || '');
		box.setAttribute('data-iframe-src', iframe.src || '');
		return box;
	};

	const inlineFrame = (iframe, depth) => {
		let box;
		try {
			const doc = iframe.contentDocument || (iframe.contentWindow && iframe.contentWindow.document);
			if (!doc || !doc.documentElement) throw new Error('no contentDocument available');
			visitChildren(doc.documentElement, depth + 1);

			box = frameBox(iframe);
			if (doc.head) copyStyles(doc.head, box, 'data-from-iframe');
			if (doc.body) box.insertAdjacentHTML('beforeend', doc.body.innerHTML);
			stats.iframe++;
		} catch (e) {
			box = frameBox(iframe);
			box.setAttribute('data-iframe-error', e.message);
			box.textContent = '[iframe not accessible: ' + e.message + ']';
		}
		try { iframe.parentNode.replaceChild(box, iframe); } catch (e) {}
	};

	visitChildren(document.documentElement, 0);

	return JSON.stringify({
		html: document.documentElement.outerHTML,
		shadowCount: stats.shadow,
		iframeCount: stats.iframe,
	});
}`

// Snapshot is the result of FlattenShadowDOM.
type Snapshot struct {
	HTML        string `json:"html"`
	ShadowCount int    `json:"shadowCount"`
	IframeCount int    `json:"iframeCount"`
}

// FlattenShadowDOM inlines all shadow DOM content and iframe documents into
// one HTML string. It modifies the live DOM, so the page should be reloaded
// before it is driven again.
//
// When the script cannot run, the plain page HTML is returned with zero
// counts.
func FlattenShadowDOM(page *rod.Page) (*Snapshot, error) {
	res, evalErr := page.Eval(flattenShadowDOMJS)
	if evalErr != nil {
		return plainSnapshot(page, evalErr)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(res.Value.Str()), &snap); err != nil {
		return plainSnapshot(page, err)
	}
	return &snap, nil
}

func plainSnapshot(page *rod.Page, cause error) (*Snapshot, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("flatten failed (%v) and fallback HTML failed: %w", cause, err)
	}
	return &Snapshot{HTML: html}, nil
}
