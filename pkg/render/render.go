package render

import (
	"context"
	"encoding/json"
	"fmt"
)

// Content is a rendered notification, ready for a channel sender.
// Channels use the parts they understand: email takes all three, SMS and
// push take Subject and Text, webhooks forward everything.
type Content struct {
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// IsZero reports whether nothing was rendered.
func (c Content) IsZero() bool {
	return c.Subject == "" && c.Text == "" && c.HTML == ""
}

// Renderer turns a template code, locale and payload into Content.
// Any error it returns is treated as permanent by the dispatcher.
type Renderer interface {
	Render(ctx context.Context, templateCode, locale string, payload json.RawMessage) (Content, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, templateCode, locale string, payload json.RawMessage) (Content, error)

func (f RendererFunc) Render(ctx context.Context, templateCode, locale string, payload json.RawMessage) (Content, error) {
	return f(ctx, templateCode, locale, payload)
}

// Error wraps every rendering failure with the template and locale involved.
type Error struct {
	TemplateCode string
	Locale       string
	Err          error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s (%s): %v", e.TemplateCode, e.Locale, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrRender.
func (e *Error) Is(target error) bool { return target == ErrRender }
