package header

//go:generate go tool errtrace -w .

import (
	"io"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/grammar"
	"github.com/ghettovoice/qsip/internal/ioutil"
	"github.com/ghettovoice/qsip/internal/util"
)

// Shape tags the kind of value a [Header] holds.
type Shape uint8

const (
	ShapeSimple Shape = iota
	ShapeNameAddr
	ShapeCSeq
	ShapeCustom
)

func (s Shape) String() string {
	switch s {
	case ShapeSimple:
		return "Simple"
	case ShapeNameAddr:
		return "NameAddr"
	case ShapeCSeq:
		return "CSeq"
	case ShapeCustom:
		return "Custom"
	default:
		return "Shape(" + strconv.Itoa(int(s)) + ")"
	}
}

// NumberSource provides random sequence numbers.
type NumberSource interface {
	NextNumber() uint32
}

// Header is a single SIP header.
// Which fields are meaningful depends on [Header.Shape].
type Header struct {
	kind   Kind
	shape  Shape
	name   Name
	value  string
	dname  string
	uri    string
	method string
	seq    uint32
	values []string
	params Params
}

func checkValue(s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("header value contains line break"))
	}
	return nil
}

// NewSimple creates a header of the given kind holding a raw value.
// Custom headers must be created with [NewCustom], CSeq with [NewCSeq].
// Values of name-address kinds must hold exactly one valid name-address
// (or "*" for Contact).
func NewSimple(kind Kind, value string) (*Header, error) {
	if kind == KindCustom || kind == KindCSeq || !kind.IsValid() {
		return nil, errtrace.Wrap(newInvalidKindErr("%s cannot hold a simple value", kind))
	}
	if err := checkValue(value); err != nil {
		return nil, errtrace.Wrap(err)
	}
	value = util.TrimSP(value)
	if kind.AllowsNameAddr() && !(kind == KindContact && value == "*") {
		if _, err := ParseNameAddr(kind, value); err != nil {
			return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
		}
	}
	return &Header{kind: kind, shape: ShapeSimple, value: value}, nil
}

// NewNameAddr creates a name-address header, e.g. From or Contact.
// Kinds that do not carry name-addresses yield [ErrInvalidHeaderKind].
// A URI without scheme is prefixed with "sip:".
func NewNameAddr(kind Kind, displayName, uri string) (*Header, error) {
	if !kind.AllowsNameAddr() {
		return nil, errtrace.Wrap(newInvalidKindErr("%s cannot hold a name-address", kind))
	}
	if kind == KindCustom {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("custom name-address requires a header name"))
	}
	return errtrace.Wrap2(newNameAddr(kind, "", displayName, uri))
}

// NewCustomNameAddr creates an extension header with a name-address value.
func NewCustomNameAddr(name, displayName, uri string) (*Header, error) {
	n, err := customName(name)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return errtrace.Wrap2(newNameAddr(KindCustom, n, displayName, uri))
}

func newNameAddr(kind Kind, name Name, displayName, uri string) (*Header, error) {
	if err := checkValue(displayName); err != nil {
		return nil, errtrace.Wrap(err)
	}
	if err := checkValue(uri); err != nil {
		return nil, errtrace.Wrap(err)
	}
	uri = normalizeURI(uri)
	if uri == "" {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("empty URI"))
	}
	if strings.ContainsAny(uri, "<>") {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("angle bracket inside URI %q", uri))
	}
	return &Header{
		kind:  kind,
		shape: ShapeNameAddr,
		name:  name,
		dname: util.TrimSP(displayName),
		uri:   uri,
	}, nil
}

func normalizeURI(uri string) string {
	uri = util.TrimSP(uri)
	if len(uri) >= 2 && uri[0] == '<' && uri[len(uri)-1] == '>' {
		uri = util.TrimSP(uri[1 : len(uri)-1])
	}
	if uri == "" || hasScheme(uri) {
		return uri
	}
	return "sip:" + uri
}

func hasScheme(uri string) bool {
	for _, s := range []string{"sip:", "sips:", "tel:"} {
		if len(uri) >= len(s) && util.EqFold(uri[:len(s)], s) {
			return true
		}
	}
	return false
}

// NewCSeq creates a CSeq header. The method is upper cased.
func NewCSeq(method string, seq uint32) (*Header, error) {
	method = util.UCase(util.TrimSP(method))
	if !grammar.IsToken(method) {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid method %q", method))
	}
	return &Header{kind: KindCSeq, shape: ShapeCSeq, method: method, seq: seq}, nil
}

// NewRandomCSeq creates a CSeq header with a sequence number drawn from src.
func NewRandomCSeq(method string, src NumberSource) (*Header, error) {
	return errtrace.Wrap2(NewCSeq(method, src.NextNumber()))
}

// NewCustom creates an extension header with one or more values.
// Values are rendered joined by ", ".
func NewCustom(name string, values ...string) (*Header, error) {
	n, err := customName(name)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if len(values) == 0 {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("header %q has no values", n))
	}
	vals := make([]string, len(values))
	for i, v := range values {
		if err := checkValue(v); err != nil {
			return nil, errtrace.Wrap(err)
		}
		vals[i] = util.TrimSP(v)
	}
	return &Header{kind: KindCustom, shape: ShapeCustom, name: n, values: vals}, nil
}

func customName(name string) (Name, error) {
	n := CanonicName(name)
	if !n.IsValid() {
		return "", errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid header name %q", name))
	}
	return n, nil
}

// Kind returns the header kind.
func (h *Header) Kind() Kind { return h.kind }

// Shape returns the value shape.
func (h *Header) Shape() Shape { return h.shape }

// Name returns the wire name of the header.
func (h *Header) Name() Name {
	if h.kind == KindCustom {
		return h.name
	}
	return h.kind.Name()
}

// Value returns the raw value of a simple header.
func (h *Header) Value() string { return h.value }

// DisplayName returns the display name of a name-address header.
func (h *Header) DisplayName() string { return h.dname }

// URI returns the URI of a name-address header.
func (h *Header) URI() string { return h.uri }

// SetURI replaces the URI of a name-address header.
func (h *Header) SetURI(uri string) error {
	if h.shape != ShapeNameAddr {
		return errtrace.Wrap(newInvalidKindErr("%s has no URI", h.Name()))
	}
	if err := checkValue(uri); err != nil {
		return errtrace.Wrap(err)
	}
	uri = normalizeURI(uri)
	if uri == "" {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("empty URI"))
	}
	if strings.ContainsAny(uri, "<>") {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("angle bracket inside URI %q", uri))
	}
	h.uri = uri
	return nil
}

// Method returns the method of a CSeq header.
func (h *Header) Method() string { return h.method }

// SeqNum returns the sequence number of a CSeq header.
func (h *Header) SeqNum() uint32 { return h.seq }

// Values returns the values of a custom header.
func (h *Header) Values() []string { return h.values }

// Params returns the header parameters.
func (h *Header) Params() *Params { return &h.params }

// Param returns the value of the named parameter.
func (h *Header) Param(name string) (string, bool) { return h.params.Get(name) }

// AddParam adds a header parameter. See [Params.Add].
func (h *Header) AddParam(name, value string, allowUpdate bool) error {
	return errtrace.Wrap(h.params.Add(name, value, allowUpdate))
}

// RenderTo writes the header line without the trailing CRLF.
func (h *Header) RenderTo(w io.Writer) (num int, err error) {
	cw := ioutil.GetCountingWriter(w)
	defer ioutil.FreeCountingWriter(cw)
	cw.Fprint(h.Name(), ": ")
	cw.Call(h.RenderValueTo)
	return errtrace.Wrap2(cw.Result())
}

// RenderValueTo writes the header value with parameters.
func (h *Header) RenderValueTo(w io.Writer) (num int, err error) {
	cw := ioutil.GetCountingWriter(w)
	defer ioutil.FreeCountingWriter(cw)
	switch h.shape {
	case ShapeNameAddr:
		if h.dname != "" {
			cw.Fprint(grammar.Quote(h.dname), " ")
		}
		if h.needsBrackets() {
			cw.Fprint("<", h.uri, ">")
		} else {
			cw.Fprint(h.uri)
		}
	case ShapeCSeq:
		cw.Fprint(strconv.FormatUint(uint64(h.seq), 10), " ", h.method)
	case ShapeCustom:
		cw.Fprint(strings.Join(h.values, ", "))
	default:
		cw.Fprint(h.value)
	}
	cw.Call(h.params.RenderTo)
	return errtrace.Wrap2(cw.Result())
}

func (h *Header) needsBrackets() bool {
	return h.params.Len() > 0 || h.dname != "" || strings.ContainsAny(h.uri, ",;?")
}

// Render returns the header line without the trailing CRLF.
func (h *Header) Render() string {
	if h == nil {
		return ""
	}
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	h.RenderTo(sb) //nolint:errcheck
	return sb.String()
}

// RenderValue returns the header value with parameters.
func (h *Header) RenderValue() string {
	if h == nil {
		return ""
	}
	sb := util.GetStringBuilder()
	defer util.FreeStringBuilder(sb)
	h.RenderValueTo(sb) //nolint:errcheck
	return sb.String()
}

func (h *Header) String() string { return h.Render() }

// Equal reports whether both headers render identically.
func (h *Header) Equal(other *Header) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.Render() == other.Render()
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	if h == nil {
		return nil
	}
	h2 := *h
	h2.values = append([]string(nil), h.values...)
	h2.params = h.params.Clone()
	return &h2
}
