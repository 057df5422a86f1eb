// Package testutil serves recorded or hand-built HTTP traffic to a Rod page
// so browser tests run without the network.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
)

// HARLog is a reduced HAR (HTTP Archive) holding only what replay needs.
type HARLog struct {
	Entries []HAREntry `json:"entries"`
}

// HAREntry is one request/response pair.
type HAREntry struct {
	Request  HARRequest  `json:"request"`
	Response HARResponse `json:"response"`
}

type HARRequest struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers []HARHeader `json:"headers,omitempty"`
	Body    string      `json:"body,omitempty"`
}

type HARResponse struct {
	Status  int         `json:"status"`
	Headers []HARHeader `json:"headers,omitempty"`
	Content HARContent  `json:"content"`
}

type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARContent is a response body. Text is base64 when Encoding is "base64".
type HARContent struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
	Encoding string `json:"encoding,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// chromeHAR is the HAR 1.2 layout exported by Chrome DevTools: entries sit
// under "log" and request bodies under postData.
type chromeHAR struct {
	Log struct {
		Entries []struct {
			Request struct {
				Method   string      `json:"method"`
				URL      string      `json:"url"`
				Headers  []HARHeader `json:"headers,omitempty"`
				PostData *struct {
					Text string `json:"text"`
				} `json:"postData,omitempty"`
			} `json:"request"`
			Response HARResponse `json:"response"`
		} `json:"entries"`
	} `json:"log"`
}

// Page adds a 200 text/html response for url.
func (h *HARLog) Page(url, html string) *HARLog {
	h.Entries = append(h.Entries, HAREntry{
		Request: HARRequest{Method: "GET", URL: url},
		Response: HARResponse{
			Status:  200,
			Content: HARContent{MimeType: "text/html; charset=utf-8", Text: html},
		},
	})
	return h
}

// Redirect adds a 302 from url to location.
func (h *HARLog) Redirect(url, location string) *HARLog {
	h.Entries = append(h.Entries, HAREntry{
		Request: HARRequest{Method: "GET", URL: url},
		Response: HARResponse{
			Status:  302,
			Headers: []HARHeader{{Name: "Location", Value: location}},
		},
	})
	return h
}

// ParseHAR decodes either the Chrome DevTools format or the reduced one.
func ParseHAR(data []byte) (*HARLog, error) {
	var chrome chromeHAR
	if err := json.Unmarshal(data, &chrome); err == nil && len(chrome.Log.Entries) > 0 {
		har := &HARLog{Entries: make([]HAREntry, len(chrome.Log.Entries))}
		for i, e := range chrome.Log.Entries {
			req := HARRequest{Method: e.Request.Method, URL: e.Request.URL, Headers: e.Request.Headers}
			if e.Request.PostData != nil {
				req.Body = e.Request.PostData.Text
			}
			har.Entries[i] = HAREntry{Request: req, Response: e.Response}
		}
		return har, nil
	}

	var har HARLog
	if err := json.Unmarshal(data, &har); err != nil {
		return nil, fmt.Errorf("parse HAR JSON: %w", err)
	}
	return &har, nil
}

// LoadHAR reads and parses a HAR file.
func LoadHAR(path string) (*HARLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read HAR file: %w", err)
	}
	return ParseHAR(data)
}

// SaveHAR writes har as indented JSON.
func SaveHAR(path string, har *HARLog) error {
	data, err := json.MarshalIndent(har, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal HAR: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write HAR file: %w", err)
	}
	return nil
}

// MustLoadHAR loads a HAR file and fails the test if it cannot be loaded.
func MustLoadHAR(t *testing.T, path string) *HARLog {
	t.Helper()

	har, err := LoadHAR(path)
	if err != nil {
		t.Fatalf("failed to load HAR file %s: %v", path, err)
	}
	return har
}
