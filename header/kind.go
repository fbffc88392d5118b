package header

import (
	"net/textproto"
	"strconv"

	"github.com/ghettovoice/qsip/internal/grammar"
	"github.com/ghettovoice/qsip/internal/util"
)

// Name represents a SIP header name.
type Name string

// ToCanonic converts the Name to its canonical form.
func (n Name) ToCanonic() Name { return CanonicName(n) }

// IsValid checks whether the Name is syntactically valid.
func (n Name) IsValid() bool { return grammar.IsToken(n) }

// Kind identifies a header from the closed set the library knows how to build.
// Any other header is represented by [KindCustom].
type Kind uint8

const (
	KindCustom Kind = iota
	KindCallID
	KindTo
	KindFrom
	KindVia
	KindCSeq
	KindContact
	KindRoute
	KindRecordRoute
	KindReferTo
	KindExpires
	KindSupported
	KindWarning
	KindAccept
	KindServer
	KindSubject
	KindUserAgent
	KindMaxForwards
	KindContentType
	KindContentLength
	KindAuthorization
	KindProxyAuthorization

	numKinds
)

var kindNames = [numKinds]Name{
	KindCustom:             "",
	KindCallID:             "Call-ID",
	KindTo:                 "To",
	KindFrom:               "From",
	KindVia:                "Via",
	KindCSeq:               "CSeq",
	KindContact:            "Contact",
	KindRoute:              "Route",
	KindRecordRoute:        "Record-Route",
	KindReferTo:            "Refer-To",
	KindExpires:            "Expires",
	KindSupported:          "Supported",
	KindWarning:            "Warning",
	KindAccept:             "Accept",
	KindServer:             "Server",
	KindSubject:            "Subject",
	KindUserAgent:          "User-Agent",
	KindMaxForwards:        "Max-Forwards",
	KindContentType:        "Content-Type",
	KindContentLength:      "Content-Length",
	KindAuthorization:      "Authorization",
	KindProxyAuthorization: "Proxy-Authorization",
}

var nameKinds = func() map[Name]Kind {
	m := make(map[Name]Kind, numKinds)
	for k := KindCallID; k < numKinds; k++ {
		m[kindNames[k]] = k
	}
	return m
}()

// Name returns the canonical wire name of the kind.
// It is empty for [KindCustom].
func (k Kind) Name() Name {
	if k >= numKinds {
		return ""
	}
	return kindNames[k]
}

func (k Kind) String() string {
	switch {
	case k == KindCustom:
		return "Custom"
	case k >= numKinds:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	default:
		return string(kindNames[k])
	}
}

// IsValid reports whether k is one of the declared kinds.
func (k Kind) IsValid() bool { return k < numKinds }

// AllowsNameAddr reports whether a header of kind k may carry a name-address value.
func (k Kind) AllowsNameAddr() bool {
	switch k {
	case KindFrom, KindTo, KindRoute, KindRecordRoute, KindContact, KindReferTo, KindCustom:
		return true
	default:
		return false
	}
}

// KindOf returns the kind with the given wire name.
// Lookup is case-insensitive and understands compact forms.
// Unknown names yield [KindCustom].
func KindOf[T ~string](name T) Kind {
	if k, ok := nameKinds[CanonicName(name)]; ok {
		return k
	}
	return KindCustom
}

var hdrNames = map[string]Name{
	"c":                "Content-Type",
	"e":                "Content-Encoding",
	"f":                "From",
	"i":                "Call-ID",
	"k":                "Supported",
	"l":                "Content-Length",
	"m":                "Contact",
	"r":                "Refer-To",
	"s":                "Subject",
	"t":                "To",
	"v":                "Via",
	"Call-Id":          "Call-ID",
	"Cseq":             "CSeq",
	"Mime-Version":     "MIME-Version",
	"Www-Authenticate": "WWW-Authenticate",
}

// CanonicName converts name to the canonical form.
// The first letter and any letter following a hyphen are upper cased, the rest lower cased,
// so "record-route" becomes "Record-Route". Compact names are expanded: "v" becomes "Via".
func CanonicName[T ~string](name T) Name {
	name = util.TrimSP(name)
	if len(name) == 1 {
		name = util.LCase(name)
	}
	if n, ok := hdrNames[string(name)]; ok {
		return n
	}

	name = T(textproto.CanonicalMIMEHeaderKey(string(name)))
	if n, ok := hdrNames[string(name)]; ok {
		return n
	}
	return Name(name)
}
