package sip

import (
	"net"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/grammar"
	"github.com/ghettovoice/qsip/internal/util"
)

// Address is a SIP identity: an optional display name and a URI.
// The URI may omit the "sip:" scheme.
type Address struct {
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty" mapstructure:"display_name"`
	URI         string `json:"uri" yaml:"uri" mapstructure:"uri"`
}

// ParseAddress parses `"Alice" <sip:alice@atlanta.com>`, `<sip:alice@atlanta.com>`
// or a bare URI.
func ParseAddress(s string) (Address, error) {
	h, err := header.ParseNameAddr(header.KindTo, s)
	if err != nil {
		return Address{}, errtrace.Wrap(NewInvalidArgumentError(err))
	}
	return Address{DisplayName: h.DisplayName(), URI: h.URI()}, nil
}

// NormURI returns the URI with the "sip:" scheme added when missing.
func (a Address) NormURI() string {
	uri := util.TrimSP(a.URI)
	if uri == "" || hasScheme(uri) {
		return uri
	}
	return "sip:" + uri
}

func hasScheme(uri string) bool {
	i := strings.IndexByte(uri, ':')
	if i <= 0 {
		return false
	}
	switch util.LCase(uri[:i]) {
	case "sip", "sips", "tel":
		return true
	}
	return false
}

// Header creates a name-address header of the given kind from the address.
func (a Address) Header(kind header.Kind) (*header.Header, error) {
	return errtrace.Wrap2(header.NewNameAddr(kind, a.DisplayName, a.URI))
}

// User returns the user part of the URI.
func (a Address) User() string {
	rest := stripScheme(a.NormURI())
	if i := strings.IndexAny(rest, ";?"); i >= 0 {
		rest = rest[:i]
	}
	user, _, ok := strings.Cut(rest, "@")
	if !ok {
		return ""
	}
	user, _, _ = strings.Cut(user, ":")
	return user
}

// HostPort returns the host and the port of the URI.
// Port is zero when the URI does not carry one.
func (a Address) HostPort() (host string, port uint16, err error) {
	rest := stripScheme(a.NormURI())
	if i := strings.IndexAny(rest, ";?"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		rest = rest[i+1:]
	}
	if rest == "" {
		return "", 0, errtrace.Wrap(NewInvalidArgumentError("no host in URI %q", a.URI))
	}

	h, p, err := net.SplitHostPort(rest)
	if err != nil {
		// no port
		return strings.Trim(rest, "[]"), 0, nil
	}
	n, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return "", 0, errtrace.Wrap(NewInvalidArgumentError("invalid port in URI %q", a.URI))
	}
	return h, uint16(n), nil
}

func (a Address) String() string {
	if a.DisplayName == "" {
		return a.NormURI()
	}
	return grammar.Quote(a.DisplayName) + " <" + a.NormURI() + ">"
}

func stripScheme(uri string) string {
	if i := strings.IndexByte(uri, ':'); i >= 0 && hasScheme(uri) {
		return uri[i+1:]
	}
	return uri
}
