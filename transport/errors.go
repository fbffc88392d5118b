package transport

import (
	"errors"

	"github.com/ghettovoice/qsip/internal/errorutil"
)

// Error represents a transport error.
// See [errorutil.Error].
type Error = errorutil.Error

// Transport errors.
const (
	// ErrBind is returned when the local socket address cannot be bound.
	ErrBind Error = "bind failed"
	// ErrConnect is returned when the socket cannot be connected to the destination.
	ErrConnect Error = "connect failed"
	// ErrPartialSend is returned when the message was not written completely.
	// The socket is closed and evicted, the next send to the destination uses a new one.
	ErrPartialSend Error = "partial send"
	// ErrClosed is returned by a closed manager.
	ErrClosed Error = "transport closed"

	ErrInvalidArgument = errorutil.ErrInvalidArgument
)

// classifyDialErr maps a dial failure to ErrBind or ErrConnect
// by the failed system call.
func classifyDialErr(err error) error {
	if errors.Is(err, ErrBind) || errors.Is(err, ErrConnect) {
		return err //errtrace:skip
	}
	if name, ok := errorutil.SyscallName(err); ok && name == "bind" {
		return errorutil.NewWrapperError(ErrBind, err) //errtrace:skip
	}
	return errorutil.NewWrapperError(ErrConnect, err) //errtrace:skip
}
