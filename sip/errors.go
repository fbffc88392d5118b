package sip

import "github.com/ghettovoice/qsip/internal/errorutil"

// Error represents a SIP error.
// See [errorutil.Error].
type Error = errorutil.Error

// Common errors.
const (
	ErrInvalidArgument = errorutil.ErrInvalidArgument
)

// Message errors.
const (
	ErrInvalidMessage     Error = "invalid message"
	ErrMalformedChallenge Error = "malformed challenge"

	errMissHdr Error = "missing mandatory header"
)

// NewInvalidArgumentError creates a new error with [ErrInvalidArgument] or
// wraps provided error with [ErrInvalidArgument].
func NewInvalidArgumentError(args ...any) error {
	return errorutil.NewInvalidArgumentError(args...) //errtrace:skip
}

// NewInvalidMessageError creates a new error with [ErrInvalidMessage] or
// wraps provided error with [ErrInvalidMessage].
func NewInvalidMessageError(args ...any) error {
	return errorutil.NewWrapperError(ErrInvalidMessage, args...) //errtrace:skip
}

func newMissHdrErr(name any) error {
	return errorutil.NewWrapperError(errMissHdr, "%v", name) //errtrace:skip
}
