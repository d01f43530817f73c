// Package httputil provides shared JSON response and request helpers for
// the API handlers, so every endpoint answers with the same envelope.
package httputil
