// Package clientip resolves the caller address of an HTTP request.
//
// Only list headers set by a proxy you control. A client can put anything in
// X-Forwarded-For when the service is reachable directly.
package clientip
