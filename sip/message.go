package sip

//go:generate go tool errtrace -w .

import (
	"io"
	"strconv"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/ioutil"
)

// ProtoVersion is the protocol name and version written in start lines.
const ProtoVersion = "SIP/2.0"

// Message is a complete SIP message ready to be written to the wire.
type Message interface {
	// RenderTo writes the message in wire format.
	RenderTo(w io.Writer) (num int, err error)
	// Render returns the message in wire format.
	Render() string
	// Bytes returns the message in wire format.
	Bytes() []byte
	// MessageHeaders returns the message headers.
	MessageHeaders() *header.List
	// MessageBody returns the message body.
	MessageBody() []byte
}

func renderMessage(w io.Writer, startLine func(io.Writer) (int, error), hdrs *header.List, body []byte) (num int, err error) {
	cw := ioutil.GetCountingWriter(w)
	defer ioutil.FreeCountingWriter(cw)
	cw.Call(startLine)
	cw.Fprint("\r\n")
	if hdrs != nil {
		cw.Call(hdrs.RenderTo)
	}
	cw.Fprint("\r\n")
	cw.Write(body)
	return errtrace.Wrap2(cw.Result())
}

var (
	reqMandatoryHdrs = []header.Kind{
		header.KindVia,
		header.KindMaxForwards,
		header.KindFrom,
		header.KindTo,
		header.KindCallID,
		header.KindCSeq,
		header.KindContact,
	}
	resMandatoryHdrs = []header.Kind{
		header.KindVia,
		header.KindFrom,
		header.KindTo,
		header.KindCallID,
		header.KindCSeq,
	}
)

func validateHdrs(hdrs *header.List, body []byte, kinds []header.Kind) []error {
	var errs []error
	for _, k := range kinds {
		if !hdrs.Has(k.Name()) {
			errs = append(errs, newMissHdrErr(k.Name()))
		}
	}
	if h, ok := hdrs.First(header.KindContentLength.Name()); ok {
		n, err := strconv.Atoi(h.Value())
		if err != nil || n != len(body) {
			errs = append(errs, NewInvalidMessageError("content length mismatch: got %q, want %d", h.Value(), len(body)))
		}
	}
	return errs
}
