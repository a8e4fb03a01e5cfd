// Package locale resolves the locale a notification is rendered with.
//
// Resolution is a strict four-level cascade, first non-blank value wins:
//
//  1. explicit locale from the caller   -> PARAMS
//  2. locale configured on the tenant   -> TENANT
//  3. locale on the recipient's profile -> USER
//  4. caller fallback, "en" by default  -> FALLBACK
//
// The recipient's country never takes part. A German phone number with no
// locale set anywhere resolves to the fallback, not to "de".
//
// Callers fetch tenant and user locales themselves; Resolve performs no I/O.
package locale
