package protocol

import "errors"

var (
	ErrDecode           = errors.New("protocol: decode failed")
	ErrFramingViolation = errors.New("protocol: framing violation")
)
