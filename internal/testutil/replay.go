package testutil

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const maxRedirects = 10

// Replayer answers hijacked requests from a HARLog.
type Replayer struct {
	exact       map[string]*HAREntry
	byPath      map[string]*HAREntry // first entry per URL without query
	passthrough bool
	log         *zap.Logger

	mu     sync.Mutex
	served map[string]int
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithPassthrough lets unmatched requests reach the network. By default
// they get a 404.
func WithPassthrough(enabled bool) ReplayerOption {
	return func(r *Replayer) {
		r.passthrough = enabled
	}
}

// WithLogger logs every match and miss at Debug.
func WithLogger(l *zap.Logger) ReplayerOption {
	return func(r *Replayer) {
		r.log = l.Named("replayer")
	}
}

// NewReplayer indexes har for lookup.
func NewReplayer(har *HARLog, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		exact:  make(map[string]*HAREntry),
		byPath: make(map[string]*HAREntry),
		log:    zap.NewNop(),
		served: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range har.Entries {
		entry := &har.Entries[i]
		r.exact[entry.Request.URL] = entry
		if key, ok := pathKey(entry.Request.URL); ok {
			if _, exists := r.byPath[key]; !exists {
				r.byPath[key] = entry
			}
		}
	}
	return r
}

// Middleware returns the Rod hijack handler.
func (r *Replayer) Middleware() func(*rod.Hijack) {
	return func(h *rod.Hijack) {
		reqURL := h.Request.URL().String()

		entry, ok := r.lookup(reqURL)
		if !ok {
			r.log.Debug("no match", zap.String("url", reqURL))
			if r.passthrough {
				_ = h.LoadResponse(http.DefaultClient, true)
				return
			}
			r.serve(h, reqURL, http.StatusNotFound,
				[]*proto.FetchHeaderEntry{{Name: "Content-Type", Value: "application/json"}},
				[]byte(`{"error": "no recording found for URL"}`))
			return
		}

		final := r.followRedirects(entry)
		r.log.Debug("matched", zap.String("url", reqURL), zap.Int("status", final.Response.Status))
		r.serve(h, reqURL, final.Response.Status, responseHeaders(final.Response), decodeBody(final.Response.Content))
	}
}

// Served reports how many times url was answered, 404s included.
func (r *Replayer) Served(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.served[url]
}

func (r *Replayer) serve(h *rod.Hijack, reqURL string, status int, headers []*proto.FetchHeaderEntry, body []byte) {
	r.mu.Lock()
	r.served[reqURL]++
	r.mu.Unlock()

	payload := h.Response.Payload()
	payload.ResponseCode = status
	payload.ResponseHeaders = headers
	payload.Body = body
}

func (r *Replayer) lookup(rawURL string) (*HAREntry, bool) {
	if entry, ok := r.exact[rawURL]; ok {
		return entry, true
	}
	if key, ok := pathKey(rawURL); ok {
		entry, found := r.byPath[key]
		return entry, found
	}
	return nil, false
}

// followRedirects resolves a 3xx chain inside the HAR. The browser never
// sees the redirect; it gets the final response for the original URL.
func (r *Replayer) followRedirects(entry *HAREntry) *HAREntry {
	current := entry
	for i := 0; i < maxRedirects; i++ {
		if current.Response.Status < 300 || current.Response.Status >= 400 {
			return current
		}

		location := header(current.Response.Headers, "location")
		if location == "" {
			return current
		}

		target, ok := r.lookup(location)
		if !ok {
			r.log.Debug("redirect target not recorded", zap.String("location", location))
			return current
		}
		current = target
	}
	return current
}

func responseHeaders(resp HARResponse) []*proto.FetchHeaderEntry {
	var out []*proto.FetchHeaderEntry
	for _, h := range resp.Headers {
		switch strings.ToLower(h.Name) {
		case "content-encoding", "content-length", "location":
			continue
		}
		out = append(out, &proto.FetchHeaderEntry{Name: h.Name, Value: h.Value})
	}
	if header(resp.Headers, "content-type") == "" && resp.Content.MimeType != "" {
		out = append(out, &proto.FetchHeaderEntry{Name: "Content-Type", Value: resp.Content.MimeType})
	}
	return out
}

func decodeBody(c HARContent) []byte {
	if c.Encoding == "base64" {
		if b, err := base64.StdEncoding.DecodeString(c.Text); err == nil {
			return b
		}
	}
	return []byte(c.Text)
}

func header(headers []HARHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func pathKey(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return u.Scheme + "://" + u.Host + u.Path, true
}
