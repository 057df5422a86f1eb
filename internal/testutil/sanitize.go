package testutil

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/grez-lucas/iframe-bridge/internal/redact"
)

// sensitiveHeaders are always redacted, whatever redact.IsSensitiveKey says.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-csrf-token":        true,
	"x-xsrf-token":        true,
}

// Sanitize returns a copy of har with credentials and session material
// replaced by redact.Placeholder. The input is not modified.
func Sanitize(har *HARLog) *HARLog {
	out := &HARLog{Entries: make([]HAREntry, len(har.Entries))}
	for i, e := range har.Entries {
		out.Entries[i] = HAREntry{
			Request: HARRequest{
				Method:  e.Request.Method,
				URL:     sanitizeURL(e.Request.URL),
				Headers: sanitizeHeaders(e.Request.Headers),
				Body:    sanitizeBody(e.Request.Body),
			},
			Response: HARResponse{
				Status:  e.Response.Status,
				Headers: sanitizeHeaders(e.Response.Headers),
				Content: sanitizeContent(e.Response.Content),
			},
		}
	}
	return out
}

// Redactions counts the values Sanitize would replace in har.
func Redactions(har *HARLog) int {
	clean := Sanitize(har)
	n := 0
	for i := range clean.Entries {
		before, after := har.Entries[i], clean.Entries[i]
		n += changed(before.Request.URL, after.Request.URL)
		n += changed(before.Request.Body, after.Request.Body)
		n += changed(before.Response.Content.Text, after.Response.Content.Text)
		for j := range after.Request.Headers {
			n += changed(before.Request.Headers[j].Value, after.Request.Headers[j].Value)
		}
		for j := range after.Response.Headers {
			n += changed(before.Response.Headers[j].Value, after.Response.Headers[j].Value)
		}
	}
	return n
}

func changed(a, b string) int {
	if a != b {
		return 1
	}
	return 0
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	dirty := false
	for key := range q {
		if redact.IsSensitiveKey(key) {
			q.Set(key, redact.Placeholder)
			dirty = true
		}
	}
	if dirty {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func sanitizeHeaders(headers []HARHeader) []HARHeader {
	if headers == nil {
		return nil
	}
	out := make([]HARHeader, len(headers))
	for i, h := range headers {
		out[i] = h
		if sensitiveHeaders[strings.ToLower(h.Name)] || redact.IsSensitiveKey(h.Name) {
			out[i].Value = redact.Placeholder
		}
	}
	return out
}

// sanitizeContent leaves base64 bodies alone; they are images and fonts in
// practice.
func sanitizeContent(c HARContent) HARContent {
	if c.Encoding == "base64" {
		return c
	}
	c.Text = sanitizeBody(c.Text)
	return c
}

func sanitizeBody(body string) string {
	trimmed := strings.TrimSpace(body)
	switch {
	case trimmed == "":
		return body
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return sanitizeJSON(body)
	case strings.HasPrefix(trimmed, "<"):
		if html, err := redact.HTML(body); err == nil {
			return html
		}
	case strings.Contains(trimmed, "=") && !strings.ContainsAny(trimmed, " \n"):
		return sanitizeForm(body)
	}
	return redact.Text(body)
}

func sanitizeForm(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return redact.Text(body)
	}
	for key := range values {
		if redact.IsSensitiveKey(key) {
			values.Set(key, redact.Placeholder)
		}
	}
	return values.Encode()
}

func sanitizeJSON(body string) string {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return redact.Text(body)
	}
	data, err := json.Marshal(redactJSON(v))
	if err != nil {
		return redact.Text(body)
	}
	return string(data)
}

func redactJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if redact.IsSensitiveKey(k) {
				t[k] = redact.Placeholder
				continue
			}
			t[k] = redactJSON(child)
		}
	case []any:
		for i, child := range t {
			t[i] = redactJSON(child)
		}
	case string:
		return redact.Text(t)
	}
	return v
}
