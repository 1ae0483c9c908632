package catalog

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	descriptionRenderer = goldmark.New()
	descriptionPolicy   = newDescriptionPolicy()
)

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// RenderDescription converts a Markdown description to sanitised HTML.
func RenderDescription(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := descriptionRenderer.Convert([]byte(src), &buf); err != nil {
		return descriptionPolicy.Sanitize(src)
	}
	return strings.TrimSpace(string(descriptionPolicy.SanitizeBytes(buf.Bytes())))
}
