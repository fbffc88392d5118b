package sip

import (
	"net"
	"slices"
	"strconv"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/randutil"
	"github.com/ghettovoice/qsip/internal/util"
)

const (
	// BranchMagicCookie starts every RFC 3261 compliant Via branch.
	BranchMagicCookie = "z9hG4bK"
	// DefaultMaxForwards is the Max-Forwards value of generated requests.
	DefaultMaxForwards = 70
	// DefaultContentType is added to requests with a body and no Content-Type.
	DefaultContentType = "text/plain"
)

// Binding is the local transport address a message is sent from.
type Binding struct {
	Host string
	Port uint16
}

func (b Binding) String() string {
	if b.Port == 0 {
		return b.Host
	}
	return net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port)))
}

// BuilderOptions configures a [Builder].
type BuilderOptions struct {
	// Generator produces branches, tags, Call-IDs and CSeq numbers.
	// Defaults to [randutil.Default].
	Generator randutil.Generator
	// MaxForwards overrides [DefaultMaxForwards].
	MaxForwards uint
	// UserAgent is added as User-Agent header when not empty.
	UserAgent string
	// CallIDPrefix is prepended to generated Call-IDs.
	CallIDPrefix string
}

func (o *BuilderOptions) generator() randutil.Generator {
	if o == nil || o.Generator == nil {
		return randutil.Default()
	}
	return o.Generator
}

func (o *BuilderOptions) maxForwards() uint {
	if o == nil || o.MaxForwards == 0 {
		return DefaultMaxForwards
	}
	return o.MaxForwards
}

func (o *BuilderOptions) userAgent() string {
	if o == nil {
		return ""
	}
	return o.UserAgent
}

func (o *BuilderOptions) callIDPrefix() string {
	if o == nil {
		return ""
	}
	return o.CallIDPrefix
}

// Builder assembles requests and responses, inserting mandatory headers
// the caller did not provide. It is safe for concurrent use if the generator is.
type Builder struct {
	gen    randutil.Generator
	maxFwd uint
	ua     string
	cidPfx string
}

// NewBuilder creates a new builder. Options may be nil.
func NewBuilder(opts *BuilderOptions) *Builder {
	return &Builder{
		gen:    opts.generator(),
		maxFwd: opts.maxForwards(),
		ua:     opts.userAgent(),
		cidPfx: opts.callIDPrefix(),
	}
}

// RequestDraft is a request whose transport dependent headers are not known yet.
// Call [RequestDraft.Finalize] to get a [Request].
type RequestDraft struct {
	method   RequestMethod
	uri      string
	fromUser string
	branch   string
	body     []byte

	via, contact []*header.Header
	maxFwd       *header.Header
	from, to     *header.Header
	callID, cseq *header.Header
	ctype        *header.Header
	extra        []*header.Header
}

// BuildRequest creates a draft request.
// Request URI defaults to the To URI. Headers given in hdrs are never overwritten:
// Via, Max-Forwards, From, To, Call-ID, CSeq, Contact and Content-Type replace the
// generated ones, other headers follow them in the given order. Content-Length is
// always computed from the body.
func (b *Builder) BuildRequest(
	method RequestMethod,
	requestURI string,
	from, to Address,
	body []byte,
	hdrs ...*header.Header,
) (*RequestDraft, error) {
	method = method.ToUpper()
	if !method.IsValid() {
		return nil, errtrace.Wrap(NewInvalidArgumentError("invalid method %q", method))
	}
	if to.NormURI() == "" {
		return nil, errtrace.Wrap(NewInvalidArgumentError("empty To URI"))
	}
	if requestURI = (Address{URI: requestURI}).NormURI(); requestURI == "" {
		requestURI = to.NormURI()
	}

	d := &RequestDraft{
		method:   method,
		uri:      requestURI,
		fromUser: from.User(),
		branch:   BranchMagicCookie + b.gen.NextToken(),
		body:     slices.Clone(body),
	}

	for _, h := range hdrs {
		if h == nil {
			continue
		}
		h = h.Clone()
		switch header.KindOf(h.Name()) {
		case header.KindVia:
			d.via = append(d.via, h)
		case header.KindContact:
			d.contact = append(d.contact, h)
		case header.KindMaxForwards:
			d.maxFwd = h
		case header.KindFrom:
			d.from = h
		case header.KindTo:
			d.to = h
		case header.KindCallID:
			d.callID = h
		case header.KindCSeq:
			d.cseq = h
		case header.KindContentType:
			d.ctype = h
		case header.KindContentLength:
		default:
			d.extra = append(d.extra, h)
		}
	}

	var err error
	if d.from == nil {
		if d.from, err = from.Header(header.KindFrom); err != nil {
			return nil, errtrace.Wrap(NewInvalidArgumentError(err))
		}
	}
	if !d.from.Params().Has("tag") {
		if err = d.from.AddParam("tag", b.gen.NextToken(), false); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	if d.to == nil {
		if d.to, err = to.Header(header.KindTo); err != nil {
			return nil, errtrace.Wrap(NewInvalidArgumentError(err))
		}
	}
	if d.callID == nil {
		if d.callID, err = header.NewSimple(header.KindCallID, b.cidPfx+b.gen.NextToken()); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	if d.cseq == nil {
		if d.cseq, err = header.NewRandomCSeq(string(method), b.gen); err != nil {
			return nil, errtrace.Wrap(err)
		}
	} else if d.cseq.Shape() == header.ShapeCSeq && !method.Equal(RequestMethod(d.cseq.Method())) {
		return nil, errtrace.Wrap(NewInvalidArgumentError("CSeq method %q does not match %q", d.cseq.Method(), method))
	}
	if d.maxFwd == nil {
		if d.maxFwd, err = header.NewSimple(header.KindMaxForwards, strconv.FormatUint(uint64(b.maxFwd), 10)); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	if b.ua != "" && !slices.ContainsFunc(d.extra, isUserAgent) {
		ua, err := header.NewSimple(header.KindUserAgent, b.ua)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		d.extra = append(d.extra, ua)
	}
	return d, nil
}

func isUserAgent(h *header.Header) bool { return header.KindOf(h.Name()) == header.KindUserAgent }

// Method returns the request method.
func (d *RequestDraft) Method() RequestMethod { return d.method }

// URI returns the request URI.
func (d *RequestDraft) URI() string { return d.uri }

// CallID returns the Call-ID value.
func (d *RequestDraft) CallID() string { return d.callID.RenderValue() }

// Branch returns the Via branch used when the draft generates the Via header.
func (d *RequestDraft) Branch() string { return d.branch }

// Body returns the request body.
func (d *RequestDraft) Body() []byte { return d.body }

// Finalize completes the draft with the local transport binding.
// Via and Contact are generated only when the caller did not provide them.
// The draft is not modified, so it may be finalized again with another binding,
// e.g. after the transport replaced a broken socket.
func (d *RequestDraft) Finalize(bind Binding) (*Request, error) {
	if d == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("invalid draft"))
	}
	if bind.Host == "" {
		return nil, errtrace.Wrap(NewInvalidArgumentError("empty binding host"))
	}

	hdrs := new(header.List)
	if len(d.via) > 0 {
		for _, h := range d.via {
			hdrs.Add(h.Clone(), false)
		}
	} else {
		via, err := header.NewSimple(header.KindVia, ProtoVersion+"/UDP "+bind.String())
		if err != nil {
			return nil, errtrace.Wrap(NewInvalidArgumentError(err))
		}
		via.AddParam("rport", "", false)        //nolint:errcheck
		via.AddParam("branch", d.branch, false) //nolint:errcheck
		hdrs.Add(via, false)
	}
	hdrs.Add(d.maxFwd.Clone(), false).
		Add(d.from.Clone(), false).
		Add(d.to.Clone(), false).
		Add(d.callID.Clone(), false).
		Add(d.cseq.Clone(), false)
	if len(d.contact) > 0 {
		for _, h := range d.contact {
			hdrs.Add(h.Clone(), false)
		}
	} else {
		uri := "sip:" + bind.String()
		if d.fromUser != "" {
			uri = "sip:" + d.fromUser + "@" + bind.String()
		}
		contact, err := header.NewNameAddr(header.KindContact, "", uri)
		if err != nil {
			return nil, errtrace.Wrap(NewInvalidArgumentError(err))
		}
		hdrs.Add(contact, false)
	}
	for _, h := range d.extra {
		hdrs.Add(h.Clone(), false)
	}
	if err := addBodyHdrs(hdrs, d.ctype, d.body); err != nil {
		return nil, errtrace.Wrap(err)
	}

	return &Request{
		Method:  d.method,
		URI:     d.uri,
		Headers: hdrs,
		Body:    slices.Clone(d.body),
	}, nil
}

func addBodyHdrs(hdrs *header.List, ctype *header.Header, body []byte) error {
	if ctype != nil {
		hdrs.Add(ctype.Clone(), false)
	} else if len(body) > 0 {
		h, err := header.NewSimple(header.KindContentType, DefaultContentType)
		if err != nil {
			return errtrace.Wrap(err)
		}
		hdrs.Add(h, false)
	}
	clen, err := header.NewSimple(header.KindContentLength, strconv.Itoa(len(body)))
	if err != nil {
		return errtrace.Wrap(err)
	}
	hdrs.Set(clen)
	return nil
}

var resCopyHdrs = []header.Kind{
	header.KindVia,
	header.KindFrom,
	header.KindTo,
	header.KindCallID,
	header.KindCSeq,
}

// BuildResponse creates a response to req copying Via, From, To, Call-ID and CSeq.
// To gets a local tag for all statuses except 100 Trying. An empty reason
// means the default reason phrase of the status.
func (b *Builder) BuildResponse(req *Request, status ResponseStatus, reason string, body []byte) (*Response, error) {
	if req == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("invalid request"))
	}
	if req.Method.Equal(RequestMethodAck) {
		return nil, errtrace.Wrap(NewInvalidArgumentError("ACK cannot be responded"))
	}
	if !status.IsValid() {
		return nil, errtrace.Wrap(NewInvalidArgumentError("invalid status %d", status))
	}

	hdrs := new(header.List)
	for _, k := range resCopyHdrs {
		hs := req.Headers.Get(k.Name())
		if len(hs) == 0 {
			return nil, errtrace.Wrap(NewInvalidMessageError(newMissHdrErr(k.Name())))
		}
		for _, h := range hs {
			hdrs.Add(h.Clone(), false)
		}
	}
	if to, ok := hdrs.First(header.KindTo.Name()); ok && status != ResponseStatusTrying && !to.Params().Has("tag") {
		if err := to.AddParam("tag", b.gen.NextToken(), false); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	if b.ua != "" {
		srv, err := header.NewSimple(header.KindServer, b.ua)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		hdrs.Add(srv, false)
	}
	if err := addBodyHdrs(hdrs, nil, body); err != nil {
		return nil, errtrace.Wrap(err)
	}

	return &Response{
		Status:  status,
		Reason:  util.TrimSP(reason),
		Headers: hdrs,
		Body:    slices.Clone(body),
	}, nil
}
