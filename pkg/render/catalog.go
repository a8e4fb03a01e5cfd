package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/locale"
)

// Catalog renders templates held in memory. It is immutable after
// construction and safe for concurrent use.
type Catalog struct {
	templates     Templates
	defaultLocale string
	logger        *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithDefaultLocale sets the last-resort locale. Default is locale.DefaultFallback.
func WithDefaultLocale(l string) Option {
	return func(c *Catalog) {
		if l = locale.Normalize(l); l != "" {
			c.defaultLocale = l
		}
	}
}

// WithLogger sets the logger used to report locale fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog builds a catalog. Locale keys are normalized so "fr_ca" and
// "fr-CA" address the same entry.
func NewCatalog(t Templates, opts ...Option) (*Catalog, error) {
	if err := validateTemplates(t); err != nil {
		return nil, err
	}

	c := &Catalog{
		templates:     make(Templates, len(t)),
		defaultLocale: locale.DefaultFallback,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	for loc, codes := range t {
		key := locale.Normalize(loc)
		if c.templates[key] == nil {
			c.templates[key] = make(map[string]Template, len(codes))
		}
		for code, tpl := range codes {
			c.templates[key][code] = tpl
		}
	}
	return c, nil
}

// Load reads a catalog with the given parser.
func Load(ctx context.Context, p Parser, r io.Reader, opts ...Option) (*Catalog, error) {
	if p == nil {
		return nil, ErrUnsupportedFormat
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Join(ErrFailedToParse, err)
	}
	t, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return NewCatalog(t, opts...)
}

// LoadFile reads a YAML or JSON catalog picked by extension.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Catalog, error) {
	p := NewParserForFile(path)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToParse, err)
	}
	defer f.Close()
	return Load(ctx, p, f, opts...)
}

// Locales lists the locales that have at least one template.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.templates))
	for l := range c.templates {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// Has reports whether any locale in the fallback chain has templateCode.
func (c *Catalog) Has(templateCode, loc string) bool {
	_, _, ok := c.lookup(templateCode, loc)
	return ok
}

// Render implements Renderer.
// The template is looked up along the chain requested -> parents -> default
// locale, so "fr-CA" falls back to "fr" and then to the default.
func (c *Catalog) Render(ctx context.Context, templateCode, loc string, payload json.RawMessage) (Content, error) {
	fail := func(err error) (Content, error) {
		return Content{}, &Error{TemplateCode: templateCode, Locale: loc, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	tpl, used, ok := c.lookup(templateCode, loc)
	if !ok {
		return fail(ErrTemplateNotFound)
	}
	if used != locale.Normalize(loc) {
		c.logger.DebugContext(ctx, "template locale fallback",
			slog.String("template", templateCode),
			slog.String("requested", loc),
			slog.String("used", used))
	}

	params, err := flatten(payload)
	if err != nil {
		return fail(err)
	}

	var missing []string
	var content Content
	var m []string

	content.Subject, m = substitute(tpl.Subject, params, false)
	missing = append(missing, m...)
	content.Text, m = substitute(tpl.Text, params, false)
	missing = append(missing, m...)
	content.HTML, m = substitute(tpl.HTML, params, true)
	missing = append(missing, m...)

	if len(missing) > 0 {
		slices.Sort(missing)
		return fail(fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(slices.Compact(missing), ", ")))
	}
	if content.IsZero() {
		return fail(ErrEmptyTemplate)
	}

	return content, nil
}

func (c *Catalog) lookup(templateCode, loc string) (Template, string, bool) {
	chain := locale.Parents(loc)
	for _, l := range locale.Parents(c.defaultLocale) {
		if !slices.Contains(chain, l) {
			chain = append(chain, l)
		}
	}

	for _, l := range chain {
		if tpl, ok := c.templates[l][templateCode]; ok {
			return tpl, l, true
		}
	}
	return Template{}, "", false
}
