// ABOUTME: Markdown rendering for outbound Matrix messages
// ABOUTME: Produces the HTML formatted_body alongside the plain-text body

package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
	"maunium.net/go/mautrix/event"
)

var markdown = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))

// textContent builds a text message with an HTML rendering of body. Raw HTML
// in body is not passed through.
func textContent(body string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return content
	}
	rendered := strings.TrimSpace(buf.String())
	if rendered == "" {
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = rendered
	return content
}

// stripReplyFallback splits a reply body into the quoted fallback text and the
// message the sender actually typed.
func stripReplyFallback(body string) (quoted, text string) {
	lines := strings.Split(body, "\n")
	i := 0
	var q []string
	for ; i < len(lines) && strings.HasPrefix(lines[i], ">"); i++ {
		q = append(q, strings.TrimSpace(strings.TrimPrefix(lines[i], ">")))
	}
	if i == 0 {
		return "", body
	}
	if i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return strings.Join(q, "\n"), strings.Join(lines[i:], "\n")
}
