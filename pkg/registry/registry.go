package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/validator"
)

// Field describes one payload field in a descriptor's shape.
type Field struct {
	Name     string         `yaml:"name"`
	Kind     validator.Kind `yaml:"kind"`
	Required bool           `yaml:"required"`
}

// Descriptor maps a notification type to everything needed to enqueue it.
type Descriptor struct {
	Type         string                 `yaml:"type"`
	TemplateCode string                 `yaml:"template"`
	Channels     []notification.Channel `yaml:"channels"`
	Priority     notification.Priority  `yaml:"priority"`
	Shape        []Field                `yaml:"payload"`
}

// DefaultChannel is the first allowed channel.
func (d Descriptor) DefaultChannel() notification.Channel {
	return d.Channels[0]
}

// Allows reports whether ch is in the descriptor's channel set.
func (d Descriptor) Allows(ch notification.Channel) bool {
	return slices.Contains(d.Channels, ch)
}

// Registry is an immutable catalog of notification types.
// Build it once at startup and share it; reads need no synchronization.
type Registry struct {
	descriptors map[string]Descriptor
}

// New validates the descriptors and builds a Registry.
func New(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}

	var errs []error
	for _, d := range descriptors {
		if err := validateDescriptor(d); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, exists := r.descriptors[d.Type]; exists {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateType, d.Type))
			continue
		}
		r.descriptors[d.Type] = cloneDescriptor(d)
	}

	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrInvalidDescriptor}, errs...)...)
	}

	return r, nil
}

// MustNew is like New but panics on an invalid catalog.
func MustNew(descriptors ...Descriptor) *Registry {
	r, err := New(descriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

// DescriptorFor returns the descriptor registered for the type.
func (r *Registry) DescriptorFor(typ string) (Descriptor, error) {
	d, ok := r.descriptors[typ]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownNotificationType, typ)
	}
	return cloneDescriptor(d), nil
}

// ValidatePayload checks payload against the type's shape: required fields must be
// present and non-null, and present fields must match their declared kind.
// Fields not declared in the shape are allowed through.
func (r *Registry) ValidatePayload(typ string, payload map[string]any) error {
	d, ok := r.descriptors[typ]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNotificationType, typ)
	}

	rules := make([]validator.Rule, 0, len(d.Shape)*2)
	for _, f := range d.Shape {
		if f.Required {
			rules = append(rules, validator.RequiredKey(f.Name, payload))
		}
		rules = append(rules, validator.ValueKind(f.Name, payload[f.Name], f.Kind))
	}

	if err := validator.Apply(rules...); err != nil {
		verrs := validator.ExtractValidationErrors(err)
		return &InvalidPayloadError{Type: typ, Fields: verrs.Fields(), Errors: verrs}
	}

	return nil
}

// Types returns the registered type keys in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.descriptors))
	for t := range r.descriptors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

func validateDescriptor(d Descriptor) error {
	var problems []string

	if strings.TrimSpace(d.Type) == "" {
		problems = append(problems, "type is required")
	}
	if strings.TrimSpace(d.TemplateCode) == "" {
		problems = append(problems, "template code is required")
	}
	if len(d.Channels) == 0 {
		problems = append(problems, "at least one channel is required")
	}

	seen := make(map[notification.Channel]bool, len(d.Channels))
	for _, ch := range d.Channels {
		if !ch.Valid() {
			problems = append(problems, fmt.Sprintf("unknown channel %q", ch))
		}
		if seen[ch] {
			problems = append(problems, fmt.Sprintf("duplicate channel %q", ch))
		}
		seen[ch] = true
	}

	if !d.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("invalid priority %d", int8(d.Priority)))
	}

	fields := make(map[string]bool, len(d.Shape))
	for _, f := range d.Shape {
		if f.Name == "" {
			problems = append(problems, "payload field name is required")
		}
		if fields[f.Name] {
			problems = append(problems, fmt.Sprintf("duplicate payload field %q", f.Name))
		}
		fields[f.Name] = true
		if !f.Kind.Valid() {
			problems = append(problems, fmt.Sprintf("field %q has unknown kind %q", f.Name, f.Kind))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("descriptor %q: %s", d.Type, strings.Join(problems, "; "))
	}
	return nil
}

func cloneDescriptor(d Descriptor) Descriptor {
	d.Channels = slices.Clone(d.Channels)
	d.Shape = slices.Clone(d.Shape)
	return d
}
