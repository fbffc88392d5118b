// Package grammar implements the part of the RFC 3261 ABNF used to recognise
// tokens and split raw header lines.
package grammar

//go:generate go tool errtrace -w .

import (
	"strings"

	"braces.dev/errtrace"
	"github.com/ghettovoice/abnf"

	"github.com/ghettovoice/qsip/internal/errorutil"
)

type Error string

func (e Error) Error() string { return string(e) }

func (Error) Grammar() bool { return true }

const (
	ErrEmptyInput     Error = "empty input"
	ErrMalformedInput Error = "malformed input"
)

func newMalformedInputErr(args ...any) error {
	return errorutil.NewWrapperError(ErrMalformedInput, args...) //errtrace:skip
}

func lit(s string) abnf.Operator { return abnf.Literal(s, []byte(s)) }

var (
	alpha = abnf.Alt(
		"ALPHA",
		abnf.Range("ALPHA", []byte("A"), []byte("Z")),
		abnf.Range("ALPHA", []byte("a"), []byte("z")),
	)
	digit = abnf.Range("DIGIT", []byte("0"), []byte("9"))
	wsp   = abnf.Alt("WSP", lit(" "), lit("\t"))
	sws   = abnf.Repeat0Inf("SWS", wsp)

	// token = 1*(alphanum / "-" / "." / "!" / "%" / "*" / "_" / "+" / "`" / "'" / "~")
	tokenChar = abnf.Alt(
		"token-char",
		alpha, digit,
		lit("-"), lit("."), lit("!"), lit("%"), lit("*"),
		lit("_"), lit("+"), lit("`"), lit("'"), lit("~"),
	)
	token = abnf.Repeat1Inf("token", tokenChar)

	hcolon = abnf.Concat("HCOLON", sws, lit(":"), sws)

	valueChar = abnf.Alt(
		"value-char",
		abnf.Range("VCHAR", []byte{0x20}, []byte{0x7e}),
		abnf.Range("UTF8-CONT", []byte{0x80}, []byte{0xff}),
		lit("\t"),
	)

	headerLine = abnf.Concat(
		"header",
		abnf.Repeat1Inf("header-name", tokenChar),
		hcolon,
		abnf.Repeat0Inf("header-value", valueChar),
	)
)

func matchAll(op abnf.Operator, s []byte) bool {
	if len(s) == 0 {
		return false
	}

	ns := abnf.NewNodes()
	defer ns.Free()

	if err := op(s, 0, ns); err != nil {
		return false
	}
	n := ns.Best()
	return n != nil && n.Len() == len(s)
}

// IsToken reports whether s is a non-empty RFC 3261 token.
func IsToken[T ~string | ~[]byte](s T) bool { return matchAll(token, []byte(s)) }

// ParseHeaderLine splits a single unfolded header line into its name and value.
// Whitespace around the colon and trailing whitespace of the value are not part of the result.
func ParseHeaderLine[T ~string | ~[]byte](s T) (name, value string, err error) {
	if len(s) == 0 {
		return "", "", errtrace.Wrap(ErrEmptyInput)
	}

	ns := abnf.NewNodes()
	defer ns.Free()

	if err := headerLine([]byte(s), 0, ns); err != nil {
		return "", "", errtrace.Wrap(newMalformedInputErr(err))
	}

	n := ns.Best()
	if n == nil {
		return "", "", errtrace.Wrap(newMalformedInputErr("no match"))
	}
	if nl, il := n.Len(), len(s); nl < il {
		return "", "", errtrace.Wrap(newMalformedInputErr("unexpected character at position %d", nl))
	}

	nameNode, ok := n.GetNode("header-name")
	if !ok {
		return "", "", errtrace.Wrap(newMalformedInputErr("missing header name"))
	}
	name = nameNode.String()
	if valNode, ok := n.GetNode("header-value"); ok {
		value = trimWSP(valNode.String())
	}
	return name, value, nil
}

func trimWSP(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}

// Quote returns s as a quoted-string, escaping backslashes and double quotes.
func Quote(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return `"` + s + `"`
	}

	var sb strings.Builder
	sb.Grow(len(s) + 4)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}

// Unquote removes surrounding double quotes and resolves quoted-pairs.
// It returns s as is when it is not quoted.
func Unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}

	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
