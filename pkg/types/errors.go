package types

import "errors"

// Domain errors shared across packages
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInputUnreadable   = errors.New("input directory is not readable")
	ErrPluginRequired    = errors.New("required plugin unavailable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrUnsupportedMedia  = errors.New("unsupported media file")
)
