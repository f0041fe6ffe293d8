// Package stores provides persistence for the managed configuration
// values the control plane plans against and applies to. The file store
// keeps the values in a single YAML document with atomic replace-on-write
// and optional reload when the file changes out-of-band.
package stores
