package render

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Layout wraps a rendered HTML body into a full document.
type Layout func(subject string, body templ.Component) templ.Component

// EmailLayout is a minimal table-free email shell. The subject becomes the
// document title; the body is inserted verbatim.
func EmailLayout(subject string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(subject)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</title></head><body style="margin:0;padding:24px;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;line-height:1.5;color:#111">`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// ToString renders a templ component into a string.
func ToString(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
