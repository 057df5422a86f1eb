// Package redact hides credentials and session material before values reach
// logs, webhook messages or captured fixtures.
package redact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// sensitiveKeys match identifiers (input ids, query keys, JSON fields) whose
// values must never be written out.
var sensitiveKeys = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`passw(or)?d`,
	`pwd`,
	`clave`,
	`contrase`,
	`secret`,
	`pin`,
	`otp`,
	`token`,
	`session`,
	`sess_`,
	`auth`,
	`jwt`,
	`bearer`,
	`api_?key`,
	`credential`,
	`access_key`,
	`private_key`,
	`cookie`,
}, "|"))

// textPatterns rewrite sensitive fragments inside free text.
var textPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	// bearer tokens
	{
		regexp.MustCompile(`(?i)\b(bearer)\s+[a-z0-9._~+/-]+=*`),
		`$1 ` + Placeholder,
	},
	// key=value and key: value pairs with a sensitive key
	{
		regexp.MustCompile(`(?i)\b([a-z0-9_-]*(?:password|passwd|clave|secret|token|session|api_?key|auth)[a-z0-9_-]*)(["']?\s*[:=]\s*["']?)[^\s"'&,}]+`),
		`$1$2` + Placeholder,
	},
	// cookies assigned from inline scripts
	{
		regexp.MustCompile(`(?i)document\.cookie\s*=\s*["'][^"']+["']`),
		`document.cookie="` + Placeholder + `"`,
	},
}

// IsSensitiveKey reports whether values stored under key should be hidden.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys.MatchString(key)
}

// Value returns value, or Placeholder when key is sensitive.
func Value(key, value string) string {
	if value != "" && IsSensitiveKey(key) {
		return Placeholder
	}
	return value
}

// Text redacts sensitive key/value pairs and tokens embedded in free text.
func Text(s string) string {
	for _, p := range textPatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// HTML redacts a captured page: values of inputs whose id or name is
// sensitive, then sensitive pairs anywhere in the markup. Markup without
// such inputs is returned unparsed apart from the text patterns.
func HTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	hits := 0
	doc.Find("input[value], textarea").Each(func(_ int, s *goquery.Selection) {
		if !IsSensitiveKey(s.AttrOr("id", "")) && !IsSensitiveKey(s.AttrOr("name", "")) {
			return
		}
		hits++
		if goquery.NodeName(s) == "textarea" {
			s.SetText(Placeholder)
			return
		}
		s.SetAttr("value", Placeholder)
	})
	if hits == 0 {
		return Text(html), nil
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return Text(out), nil
}
