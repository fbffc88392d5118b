package header

import "github.com/ghettovoice/qsip/internal/errorutil"

const (
	ErrInvalidHeaderKind errorutil.Error = "invalid header kind"
	ErrParameterExists   errorutil.Error = "parameter exists"
	ErrMalformedHeader   errorutil.Error = "malformed header"

	ErrInvalidArgument = errorutil.ErrInvalidArgument
)

func newInvalidKindErr(args ...any) error {
	return errorutil.NewWrapperError(ErrInvalidHeaderKind, args...) //errtrace:skip
}

func newMalformedErr(args ...any) error {
	return errorutil.NewWrapperError(ErrMalformedHeader, args...) //errtrace:skip
}
