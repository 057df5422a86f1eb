package testutil

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHAR_ChromeFormat(t *testing.T) {
	data := []byte(`{
		"log": {
			"version": "1.2",
			"creator": {"name": "WebInspector", "version": "537.36"},
			"entries": [{
				"request": {
					"method": "POST",
					"url": "https://portal.test/login?x=1",
					"postData": {"mimeType": "application/x-www-form-urlencoded", "text": "user=a"}
				},
				"response": {
					"status": 200,
					"content": {"mimeType": "text/html", "text": "<p>ok</p>"}
				}
			}]
		}
	}`)

	har, err := ParseHAR(data)

	require.NoError(t, err)
	require.Len(t, har.Entries, 1)
	assert.Equal(t, "POST", har.Entries[0].Request.Method)
	assert.Equal(t, "user=a", har.Entries[0].Request.Body)
	assert.Equal(t, "<p>ok</p>", har.Entries[0].Response.Content.Text)
}

func TestParseHAR_ReducedFormat(t *testing.T) {
	har, err := ParseHAR([]byte(`{"entries": [{"request": {"method": "GET", "url": "https://portal.test/"}, "response": {"status": 204}}]}`))

	require.NoError(t, err)
	require.Len(t, har.Entries, 1)
	assert.Equal(t, 204, har.Entries[0].Response.Status)
}

func TestParseHAR_Invalid(t *testing.T) {
	_, err := ParseHAR([]byte(`not json`))
	assert.ErrorContains(t, err, "parse HAR JSON")
}

func TestSaveAndLoadHAR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.har.json")
	har := (&HARLog{}).Page("https://portal.test/", "<h1>hi</h1>")

	require.NoError(t, SaveHAR(path, har))
	loaded := MustLoadHAR(t, path)

	assert.Equal(t, har, loaded)
}

func TestReplayer_Lookup(t *testing.T) {
	har := (&HARLog{}).
		Page("https://portal.test/app?tab=1", "first").
		Page("https://portal.test/app?tab=2", "second")
	r := NewReplayer(har)

	entry, ok := r.lookup("https://portal.test/app?tab=2")
	require.True(t, ok)
	assert.Equal(t, "second", entry.Response.Content.Text)

	entry, ok = r.lookup("https://portal.test/app?tab=9")
	require.True(t, ok, "falls back to the first entry with the same path")
	assert.Equal(t, "first", entry.Response.Content.Text)

	_, ok = r.lookup("https://other.test/app")
	assert.False(t, ok)
}

func TestReplayer_FollowRedirects(t *testing.T) {
	har := (&HARLog{}).
		Redirect("https://portal.test/", "https://portal.test/login").
		Redirect("https://portal.test/login", "https://portal.test/home").
		Page("https://portal.test/home", "home")
	r := NewReplayer(har)

	entry, _ := r.lookup("https://portal.test/")
	final := r.followRedirects(entry)

	assert.Equal(t, 200, final.Response.Status)
	assert.Equal(t, "home", final.Response.Content.Text)
}

func TestReplayer_RedirectLoopStops(t *testing.T) {
	har := (&HARLog{}).
		Redirect("https://portal.test/a", "https://portal.test/b").
		Redirect("https://portal.test/b", "https://portal.test/a")
	r := NewReplayer(har)

	entry, _ := r.lookup("https://portal.test/a")
	final := r.followRedirects(entry)

	assert.Equal(t, 302, final.Response.Status)
}

func TestResponseHeaders(t *testing.T) {
	resp := HARResponse{
		Headers: []HARHeader{
			{Name: "Content-Encoding", Value: "gzip"},
			{Name: "Content-Length", Value: "12"},
			{Name: "Set-Cookie", Value: "a=b"},
		},
		Content: HARContent{MimeType: "text/html"},
	}

	headers := responseHeaders(resp)

	require.Len(t, headers, 2)
	assert.Equal(t, "Set-Cookie", headers[0].Name)
	assert.Equal(t, "Content-Type", headers[1].Name)
	assert.Equal(t, "text/html", headers[1].Value)
}

func TestDecodeBody(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, decodeBody(HARContent{Text: encoded, Encoding: "base64"}))
	assert.Equal(t, []byte("plain"), decodeBody(HARContent{Text: "plain"}))
	assert.Equal(t, []byte("%%%"), decodeBody(HARContent{Text: "%%%", Encoding: "base64"}))
}
