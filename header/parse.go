package header

import (
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/internal/grammar"
	"github.com/ghettovoice/qsip/internal/util"
)

// Parse parses a single header line, e.g. "From: <sip:alice@atlanta.com>;tag=1928301774".
// A trailing CRLF is allowed.
func Parse[T ~string | ~[]byte](line T) (*Header, error) {
	s := strings.TrimSuffix(string(line), "\r\n")
	name, value, err := grammar.ParseHeaderLine(s)
	if err != nil {
		return nil, errtrace.Wrap(newMalformedErr(err))
	}

	kind := KindOf(name)
	switch {
	case kind == KindCSeq:
		return errtrace.Wrap2(parseCSeq(value))
	case kind == KindContact && value == "*":
		return errtrace.Wrap2(NewSimple(kind, value))
	case kind != KindCustom && kind.AllowsNameAddr():
		h, err := ParseNameAddr(kind, value)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		// non-canonical forms are kept verbatim
		if h.RenderValue() != value {
			return errtrace.Wrap2(NewSimple(kind, value))
		}
		return h, nil
	case kind == KindCustom:
		if value == "" {
			return nil, errtrace.Wrap(newMalformedErr("empty value of header %q", name))
		}
		// the joined form is kept as one value, splitting it back is ambiguous
		h, err := NewCustom(name, value)
		if err != nil {
			return nil, errtrace.Wrap(newMalformedErr(err))
		}
		return h, nil
	default:
		return errtrace.Wrap2(parseSimple(kind, value))
	}
}

func parseSimple(kind Kind, value string) (*Header, error) {
	// list values keep their parameters inline
	if len(util.SplitQuoted(value, ',')) > 1 {
		return errtrace.Wrap2(NewSimple(kind, value))
	}

	parts := util.SplitQuoted(value, ';')
	h, err := NewSimple(kind, parts[0])
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if len(parts) > 1 {
		ps, err := parseParams(strings.Join(parts[1:], ";"))
		if err != nil {
			return errtrace.Wrap2(NewSimple(kind, value))
		}
		h.params = ps
	}
	if h.RenderValue() != value {
		return errtrace.Wrap2(NewSimple(kind, value))
	}
	return h, nil
}

func parseCSeq(value string) (*Header, error) {
	parts := util.SplitQuoted(value, ';')
	seq, method, ok := strings.Cut(util.TrimSP(parts[0]), " ")
	if !ok {
		return nil, errtrace.Wrap(newMalformedErr("invalid CSeq %q", value))
	}
	num, err := strconv.ParseUint(util.TrimSP(seq), 10, 32)
	if err != nil {
		return nil, errtrace.Wrap(newMalformedErr("invalid CSeq number: %v", err))
	}
	h, err := NewCSeq(method, uint32(num))
	if err != nil {
		return nil, errtrace.Wrap(newMalformedErr(err))
	}
	if len(parts) > 1 {
		if h.params, err = parseParams(strings.Join(parts[1:], ";")); err != nil {
			return nil, errtrace.Wrap(newMalformedErr(err))
		}
	}
	return h, nil
}

// ParseNameAddr parses a single name-address value of the given kind,
// e.g. `"Bob" <sip:bob@biloxi.com>;tag=a6c85cf`.
func ParseNameAddr(kind Kind, value string) (*Header, error) {
	if kind == KindCustom || !kind.AllowsNameAddr() {
		return nil, errtrace.Wrap(newInvalidKindErr("%s cannot hold a name-address", kind))
	}
	return errtrace.Wrap2(parseNameAddr(kind, "", util.TrimSP(value)))
}

func parseNameAddr(kind Kind, name Name, value string) (*Header, error) {
	if len(util.SplitQuoted(value, ',')) > 1 {
		return nil, errtrace.Wrap(newMalformedErr("multiple name-addresses in one %s header", kind))
	}

	var dname, uri, rest string
	if i := indexUnquoted(value, '<'); i >= 0 {
		j := strings.IndexByte(value[i:], '>')
		if j < 0 {
			return nil, errtrace.Wrap(newMalformedErr("unclosed angle bracket in %q", value))
		}
		dname = grammar.Unquote(util.TrimSP(value[:i]))
		uri = value[i+1 : i+j]
		rest = util.TrimSP(value[i+j+1:])
		if rest != "" && rest[0] != ';' {
			return nil, errtrace.Wrap(newMalformedErr("unexpected %q after URI", rest))
		}
	} else {
		uri, rest, _ = strings.Cut(value, ";")
	}

	h, err := newNameAddr(kind, name, dname, uri)
	if err != nil {
		return nil, errtrace.Wrap(newMalformedErr(err))
	}
	ps, err := parseParams(rest)
	if err != nil {
		return nil, errtrace.Wrap(newMalformedErr(err))
	}
	h.params = ps
	return h, nil
}

func indexUnquoted(s string, c byte) int {
	var quoted bool
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && quoted:
			i++
		case s[i] == '"':
			quoted = !quoted
		case s[i] == c && !quoted:
			return i
		}
	}
	return -1
}
