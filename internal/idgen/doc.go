// Package idgen wraps the UUID generator so that job and worker identifiers
// can be stubbed in tests. Callers treat identifiers as opaque strings.
package idgen
