package sip

import (
	"errors"
	"io"
	"log/slog"
	"slices"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/ioutil"
	"github.com/ghettovoice/qsip/internal/util"
)

// Request represents a SIP request message.
type Request struct {
	Method  RequestMethod
	URI     string
	Headers *header.List
	Body    []byte
}

// RenderTo renders the SIP request to the given writer.
func (req *Request) RenderTo(w io.Writer) (num int, err error) {
	if req == nil {
		return 0, nil
	}
	return errtrace.Wrap2(renderMessage(w, req.renderStartLine, req.Headers, req.Body))
}

func (req *Request) renderStartLine(w io.Writer) (num int, err error) {
	cw := ioutil.GetCountingWriter(w)
	defer ioutil.FreeCountingWriter(cw)
	cw.Fprint(req.Method, " ", req.URI, " ", ProtoVersion)
	return errtrace.Wrap2(cw.Result())
}

// Render renders the SIP request to a string.
func (req *Request) Render() string {
	if req == nil {
		return ""
	}
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	req.RenderTo(sb) //nolint:errcheck
	return sb.String()
}

// Bytes renders the SIP request to a byte slice.
func (req *Request) Bytes() []byte {
	if req == nil {
		return nil
	}
	buf := util.GetBytesBuffer()
	defer util.FreeBytesBuffer(buf)
	req.RenderTo(buf) //nolint:errcheck
	return slices.Clone(buf.Bytes())
}

// String returns the start line of the request.
func (req *Request) String() string {
	if req == nil {
		return "<nil>"
	}
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	req.renderStartLine(sb) //nolint:errcheck
	return sb.String()
}

// MessageHeaders implements [Message].
func (req *Request) MessageHeaders() *header.List { return req.Headers }

// MessageBody implements [Message].
func (req *Request) MessageBody() []byte { return req.Body }

// LogValue implements [slog.LogValuer] for structured logging.
func (req *Request) LogValue() slog.Value {
	if req == nil {
		return slog.Value{}
	}

	attrs := make([]slog.Attr, 0, 7)
	attrs = append(attrs, slog.String("method", string(req.Method)), slog.String("uri", req.URI))
	for _, k := range []header.Kind{header.KindVia, header.KindFrom, header.KindTo, header.KindCallID, header.KindCSeq} {
		if h, ok := req.Headers.First(k.Name()); ok {
			attrs = append(attrs, slog.String(string(k.Name()), h.RenderValue()))
		}
	}
	return slog.GroupValue(attrs...)
}

// Clone returns a deep copy of the request.
func (req *Request) Clone() *Request {
	if req == nil {
		return nil
	}
	req2 := *req
	req2.Headers = req.Headers.Clone()
	req2.Body = slices.Clone(req.Body)
	return &req2
}

// Validate checks the method, the request URI, presence of mandatory headers
// and that Content-Length matches the body.
func (req *Request) Validate() error {
	if req == nil {
		return errtrace.Wrap(NewInvalidArgumentError("invalid request"))
	}

	var errs []error
	if !req.Method.IsValid() {
		errs = append(errs, errorutil.Errorf("invalid method %q", req.Method))
	}
	if req.URI == "" {
		errs = append(errs, errorutil.Errorf("empty request URI"))
	}
	errs = append(errs, validateHdrs(req.Headers, req.Body, reqMandatoryHdrs)...)
	if len(errs) > 0 {
		return errtrace.Wrap(NewInvalidMessageError(errors.Join(errs...)))
	}
	return nil
}
