// Package templates renders the HTML views of the web UI as templ
// components.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// html writes markup and remembers the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

// text writes s escaped for element content and attribute values.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// num writes a formatted number. Only use with numeric verbs.
func (h *html) num(format string, v any) {
	h.raw(fmt.Sprintf(format, v))
}

func (h *html) render(ctx context.Context, c templ.Component) {
	if h.err == nil {
		h.err = c.Render(ctx, h.w)
	}
}

func component(fn func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		fn(ctx, h)
		return h.err
	})
}

const styles = `
body { font-family: system-ui, sans-serif; margin: 0; background: #f5f6f8; color: #1f2933; }
header { background: #1f2933; color: #fff; padding: 0.75rem 1.5rem; }
header a { color: #fff; text-decoration: none; font-weight: 600; }
main { max-width: 960px; margin: 1.5rem auto; padding: 0 1rem; }
section { background: #fff; border-radius: 6px; padding: 1rem 1.25rem; margin-bottom: 1.25rem; box-shadow: 0 1px 2px rgba(0,0,0,.08); }
label { display: block; font-size: .85rem; margin: .5rem 0 .2rem; }
input, select { padding: .35rem; width: 100%; box-sizing: border-box; }
.grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: .75rem; }
button { margin-top: 1rem; padding: .5rem 1rem; border: 0; border-radius: 4px; background: #2563eb; color: #fff; cursor: pointer; }
button.secondary { background: #6b7280; }
table { width: 100%; border-collapse: collapse; font-size: .85rem; }
th, td { text-align: left; padding: .35rem .5rem; border-bottom: 1px solid #e5e7eb; }
pre { background: #f3f4f6; padding: .5rem; overflow-x: auto; font-size: .8rem; }
.alert { border-left: 4px solid #dc2626; background: #fef2f2; padding: .75rem 1rem; }
.alert small { color: #6b7280; }
.bar { height: .75rem; background: #e5e7eb; border-radius: 4px; overflow: hidden; }
.bar div { height: 100%; background: #2563eb; width: 0; }
.status-complete { color: #15803d; }
.status-failed { color: #dc2626; }
.status-cancelled { color: #b45309; }
`

// Page wraps body in the site layout.
func Page(title string, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		h.raw("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\"><title>")
		h.text(title)
		h.raw(" | txtfix</title><style>")
		h.raw(styles)
		h.raw("</style></head><body><header><a href=\"/\">txtfix</a></header><main>")
		h.render(ctx, body)
		h.raw("</main></body></html>")
	})
}

// ErrorAlert renders an error message with its suggested action and
// support code.
func ErrorAlert(message, action, code string) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.raw(`<div class="alert" role="alert"><strong>`)
		h.text(message)
		h.raw("</strong>")
		if action != "" {
			h.raw("<p>")
			h.text(action)
			h.raw("</p>")
		}
		h.raw("<small>Code: ")
		h.text(code)
		h.raw("</small></div>")
	})
}
