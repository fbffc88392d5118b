package sip

import (
	"errors"
	"io"
	"slices"
	"strconv"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/ioutil"
	"github.com/ghettovoice/qsip/internal/util"
)

// Response represents a SIP response message.
type Response struct {
	Status  ResponseStatus
	Reason  string
	Headers *header.List
	Body    []byte
}

// RenderTo renders the SIP response to the given writer.
func (res *Response) RenderTo(w io.Writer) (num int, err error) {
	if res == nil {
		return 0, nil
	}
	return errtrace.Wrap2(renderMessage(w, res.renderStartLine, res.Headers, res.Body))
}

func (res *Response) renderStartLine(w io.Writer) (num int, err error) {
	reason := res.Reason
	if reason == "" {
		reason = res.Status.Reason()
	}
	cw := ioutil.GetCountingWriter(w)
	defer ioutil.FreeCountingWriter(cw)
	cw.Fprint(ProtoVersion, " ", strconv.Itoa(int(res.Status)), " ", reason)
	return errtrace.Wrap2(cw.Result())
}

// Render renders the SIP response to a string.
func (res *Response) Render() string {
	if res == nil {
		return ""
	}
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	res.RenderTo(sb) //nolint:errcheck
	return sb.String()
}

// Bytes renders the SIP response to a byte slice.
func (res *Response) Bytes() []byte {
	if res == nil {
		return nil
	}
	buf := util.GetBytesBuffer()
	defer util.FreeBytesBuffer(buf)
	res.RenderTo(buf) //nolint:errcheck
	return slices.Clone(buf.Bytes())
}

// String returns the status line of the response.
func (res *Response) String() string {
	if res == nil {
		return "<nil>"
	}
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	res.renderStartLine(sb) //nolint:errcheck
	return sb.String()
}

// MessageHeaders implements [Message].
func (res *Response) MessageHeaders() *header.List { return res.Headers }

// MessageBody implements [Message].
func (res *Response) MessageBody() []byte { return res.Body }

// Clone returns a deep copy of the response.
func (res *Response) Clone() *Response {
	if res == nil {
		return nil
	}
	res2 := *res
	res2.Headers = res.Headers.Clone()
	res2.Body = slices.Clone(res.Body)
	return &res2
}

// Validate checks the status code, presence of mandatory headers
// and that Content-Length matches the body.
func (res *Response) Validate() error {
	if res == nil {
		return errtrace.Wrap(NewInvalidArgumentError("invalid response"))
	}

	var errs []error
	if !res.Status.IsValid() {
		errs = append(errs, errorutil.Errorf("invalid status %d", res.Status))
	}
	errs = append(errs, validateHdrs(res.Headers, res.Body, resMandatoryHdrs)...)
	if len(errs) > 0 {
		return errtrace.Wrap(NewInvalidMessageError(errors.Join(errs...)))
	}
	return nil
}
