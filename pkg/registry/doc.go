// Package registry is the static catalog of notification types.
//
// Each Descriptor binds a namespaced type key ("crm.lead.confirmation") to the
// template code handed to the renderer, the ordered set of channels the type may
// use, its priority tier and the structural shape its payload must satisfy.
//
// A Registry is built once at process start, either in code with New or from a
// YAML catalog with Load/LoadFile, and is immutable afterwards. Pass it to the
// components that need it instead of keeping it in a package variable.
//
//	reg, err := registry.New(registry.Descriptor{
//	    Type:         "crm.lead.confirmation",
//	    TemplateCode: "lead_confirmation",
//	    Channels:     []notification.Channel{notification.ChannelEmail},
//	    Priority:     notification.PriorityHigh,
//	    Shape:        []registry.Field{{Name: "lead_name", Kind: validator.KindString, Required: true}},
//	})
//
// Lookups of unknown types fail with ErrUnknownNotificationType; payload shape
// violations return *InvalidPayloadError, which matches ErrInvalidPayload and
// lists every offending field.
package registry
