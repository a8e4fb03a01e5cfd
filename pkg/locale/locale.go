package locale

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// DefaultFallback is used when the caller does not supply a fallback locale.
const DefaultFallback = "en"

// Input carries the already-fetched locale candidates.
// A recipient's country or region is deliberately not an input: country is a
// data attribute of the recipient, not a locale source.
type Input struct {
	Explicit string // forceLocale or request-scoped locale parameter
	Tenant   string // locale configured on the owning tenant
	User     string // locale on the recipient's profile
	Fallback string // caller default, DefaultFallback when blank
}

// Result is the resolved locale and where it came from.
type Result struct {
	Locale string
	Source notification.LocaleSource
}

// Resolve walks the cascade explicit -> tenant -> user -> fallback and returns
// the first non-blank value. It is pure and deterministic.
func Resolve(in Input) Result {
	switch {
	case strings.TrimSpace(in.Explicit) != "":
		return Result{Locale: Normalize(in.Explicit), Source: notification.LocaleSourceParams}
	case strings.TrimSpace(in.Tenant) != "":
		return Result{Locale: Normalize(in.Tenant), Source: notification.LocaleSourceTenant}
	case strings.TrimSpace(in.User) != "":
		return Result{Locale: Normalize(in.User), Source: notification.LocaleSourceUser}
	}

	fallback := in.Fallback
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallback
	}
	return Result{Locale: Normalize(fallback), Source: notification.LocaleSourceFallback}
}

// Normalize canonicalizes a BCP 47 tag ("en_us" -> "en-US").
// Values that do not parse are returned trimmed but otherwise untouched so a
// caller-supplied value still wins its cascade level.
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}

	t, err := language.Parse(strings.ReplaceAll(tag, "_", "-"))
	if err != nil {
		return tag
	}
	return t.String()
}

// Parents returns tag followed by its less specific parents, ending before the root.
// "fr-CA" yields ["fr-CA", "fr"]. Renderers use it to find the closest template.
func Parents(tag string) []string {
	tag = Normalize(tag)
	if tag == "" {
		return nil
	}

	out := []string{tag}
	t, err := language.Parse(tag)
	if err != nil {
		return out
	}

	for p := t.Parent(); p != language.Und; p = p.Parent() {
		s := p.String()
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
