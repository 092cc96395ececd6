// Package dispatch maps inbound message ids to typed routes.
//
// A route decodes the payload into its message kind, applies the side effect
// to the host, and optionally builds a response. Lookup is a case-insensitive
// exact match. A payload that fails to decode never reaches the side effect.
package dispatch
