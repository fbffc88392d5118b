package qsip

import (
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/transport"
)

// Error represents a client error.
// See [errorutil.Error].
type Error = errorutil.Error

// Client errors.
const (
	ErrInvalidArgument = errorutil.ErrInvalidArgument
	ErrNotSupported    = errorutil.ErrNotSupported

	// ErrClientClosed is returned by a closed client.
	ErrClientClosed Error = "client closed"
	// ErrTimeout is returned when a request could not be sent within the transaction timeout.
	ErrTimeout Error = "transaction timed out"

	ErrBind        = transport.ErrBind
	ErrConnect     = transport.ErrConnect
	ErrPartialSend = transport.ErrPartialSend
)
