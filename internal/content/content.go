// Package content renders and sanitizes the HTML shown on public sites.
package content

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithXHTML(), gmhtml.WithUnsafe()),
	)

	embedSrcPattern = regexp.MustCompile(`^https://(?:www\.)?(?:youtube\.com/embed/|youtube-nocookie\.com/embed/|player\.vimeo\.com/video/)`)
	embedLine       = regexp.MustCompile(`^\s*<?(https?://[^\s>]+)>?\s*$`)

	policy = buildPolicy()
)

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("iframe")
	p.AllowAttrs("class", "data-video-embed").OnElements("div")
	p.AllowAttrs("src").Matching(embedSrcPattern).OnElements("iframe")
	p.AllowAttrs("title", "allow", "allowfullscreen", "frameborder", "loading").OnElements("iframe")
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	return p
}

// Sanitize strips everything from raw HTML that is not safe to serve.
func Sanitize(raw string) string {
	return policy.Sanitize(raw)
}

// RenderMarkdown converts markdown to sanitized HTML. A line holding only a
// YouTube or Vimeo link becomes an embedded player.
func RenderMarkdown(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(applyEmbeds(markdown)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return Sanitize(buf.String()), nil
}

func applyEmbeds(markdown string) string {
	lines := strings.Split(markdown, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			continue
		}
		match := embedLine.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		if src, ok := embedURL(match[1]); ok {
			lines[i] = fmt.Sprintf(
				`<div class="video-embed" data-video-embed="true"><iframe src="%s" title="Embedded video" loading="lazy" allowfullscreen frameborder="0"></iframe></div>`,
				html.EscapeString(src),
			)
		}
	}
	return strings.Join(lines, "\n")
}

func embedURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.Trim(u.Path, "/")

	var id string
	switch host {
	case "youtu.be":
		id = path
	case "youtube.com", "m.youtube.com":
		switch {
		case path == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "shorts/"):
			id = strings.TrimPrefix(path, "shorts/")
		case strings.HasPrefix(path, "embed/"):
			id = strings.TrimPrefix(path, "embed/")
		}
	case "vimeo.com":
		if path != "" && !strings.Contains(path, "/") {
			return "https://player.vimeo.com/video/" + path, true
		}
		return "", false
	default:
		return "", false
	}

	id, _, _ = strings.Cut(id, "/")
	if id == "" {
		return "", false
	}
	return "https://www.youtube.com/embed/" + url.PathEscape(id), true
}
