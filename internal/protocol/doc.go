// Package protocol owns the control-plane wire contract shared by its
// subpackages.
//
// Ownership boundary:
// - wire: protobuf field primitives
// - schema: message ids, field numbers, required-field rules
// - codec: typed messages and their encode/decode pairs
// - frame: three-part envelope framing over a multi-part socket
package protocol
