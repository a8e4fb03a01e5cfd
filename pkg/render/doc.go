// Package render produces notification content from localized templates.
//
// A Catalog holds templates keyed by locale and template code. Placeholders
// use the %{name} syntax; dotted names reach into nested payload objects:
//
//	en:
//	  order.shipped:
//	    subject: "Order %{order.id} shipped"
//	    text: "Hi %{name}, your order is on its way."
//	    html: "<p>Hi %{name}, your order is on its way.</p>"
//
// Lookup walks the locale chain requested -> parents -> default, so a record
// resolved to "fr-CA" renders the "fr" template when no "fr-CA" one exists.
// Values substituted into HTML are escaped. A placeholder with no matching
// payload field is an error rather than literal output.
//
// Every failure is returned as *Error, which matches ErrRender; callers treat
// it as permanent because retrying cannot fix a template/payload mismatch.
package render
