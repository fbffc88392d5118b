package sip

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/grammar"
	"github.com/ghettovoice/qsip/internal/util"
)

const (
	digestScheme = "Digest"
	digestAlgMD5 = "MD5"
	digestQOP    = "auth"
)

func md5Hex(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":"))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// DigestHA1 returns MD5(username:realm:password) as lowercase hex.
func DigestHA1(username, realm, password string) string {
	return md5Hex(username, realm, password)
}

// DigestHA2 returns MD5(method:uri) as lowercase hex.
func DigestHA2(method, uri string) string {
	return md5Hex(method, uri)
}

// DigestResponse computes the RFC 2617 request-digest for qop=auth.
// It is a pure function and safe for concurrent use.
func DigestResponse(username, realm, password, method, uri, nonce, nonceCount, clientNonce string) string {
	return md5Hex(
		DigestHA1(username, realm, password),
		nonce,
		nonceCount,
		clientNonce,
		digestQOP,
		DigestHA2(method, uri),
	)
}

// DigestChallenge is a parsed WWW-Authenticate or Proxy-Authenticate digest challenge.
type DigestChallenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Algorithm string
	QOP       []string
	Stale     bool
	// Proxy is set for challenges taken from Proxy-Authenticate.
	Proxy bool
}

// ParseDigestChallenge parses a challenge value like
// `Digest realm="atlanta.com", nonce="84a4cc6f3082121f32b42a2187831a9e", qop="auth"`.
func ParseDigestChallenge(value string) (*DigestChallenge, error) {
	value = util.TrimSP(value)
	scheme, rest, _ := strings.Cut(value, " ")
	if !util.EqFold(scheme, digestScheme) {
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrMalformedChallenge, "unsupported scheme %q", scheme))
	}

	ch := new(DigestChallenge)
	for _, part := range util.SplitQuoted(rest, ',') {
		part = util.TrimSP(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrMalformedChallenge, "invalid parameter %q", part))
		}
		v = grammar.Unquote(util.TrimSP(v))
		switch util.LCase(util.TrimSP(k)) {
		case "realm":
			ch.Realm = v
		case "nonce":
			ch.Nonce = v
		case "opaque":
			ch.Opaque = v
		case "algorithm":
			ch.Algorithm = v
		case "stale":
			ch.Stale = util.EqFold(v, "true")
		case "qop":
			for _, q := range strings.Split(v, ",") {
				if q = util.LCase(util.TrimSP(q)); q != "" {
					ch.QOP = append(ch.QOP, q)
				}
			}
		}
	}
	if ch.Realm == "" || ch.Nonce == "" {
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrMalformedChallenge, "realm and nonce are required"))
	}
	return ch, nil
}

// DigestChallengeFromResponse extracts the challenge of a 401 or 407 response.
func DigestChallengeFromResponse(res *Response) (*DigestChallenge, error) {
	if res == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("invalid response"))
	}

	var name header.Name
	switch res.Status {
	case ResponseStatusUnauthorized:
		name = "WWW-Authenticate"
	case ResponseStatusProxyAuthenticationRequired:
		name = "Proxy-Authenticate"
	default:
		return nil, errtrace.Wrap(NewInvalidArgumentError("response %d is not a challenge", res.Status))
	}
	h, ok := res.Headers.First(name)
	if !ok {
		return nil, errtrace.Wrap(NewInvalidMessageError(newMissHdrErr(name)))
	}
	ch, err := ParseDigestChallenge(h.RenderValue())
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	ch.Proxy = res.Status == ResponseStatusProxyAuthenticationRequired
	return ch, nil
}

// DigestCredentials are the user credentials answering a digest challenge.
type DigestCredentials struct {
	Username string
	Password string
}

// IsZero reports whether no credentials are set.
func (c DigestCredentials) IsZero() bool { return c.Username == "" && c.Password == "" }

// Authorize computes the answer to ch and returns it as Authorization header,
// or Proxy-Authorization for proxy challenges.
// Challenges without qop are answered in RFC 2069 compatibility mode.
func (c DigestCredentials) Authorize(
	ch *DigestChallenge,
	method RequestMethod,
	uri string,
	nonceCount uint32,
	clientNonce string,
) (*header.Header, error) {
	if ch == nil {
		return nil, errtrace.Wrap(NewInvalidArgumentError("invalid challenge"))
	}
	if ch.Algorithm != "" && !util.EqFold(ch.Algorithm, digestAlgMD5) {
		return nil, errtrace.Wrap(errorutil.NewNotSupportedError("digest algorithm %q", ch.Algorithm))
	}

	method = method.ToUpper()
	fields := []string{
		fmt.Sprintf("username=%s", grammar.Quote(c.Username)),
		fmt.Sprintf("realm=%s", grammar.Quote(ch.Realm)),
		fmt.Sprintf("nonce=%s", grammar.Quote(ch.Nonce)),
		fmt.Sprintf("uri=%s", grammar.Quote(uri)),
	}

	switch {
	case len(ch.QOP) == 0:
		resp := md5Hex(DigestHA1(c.Username, ch.Realm, c.Password), ch.Nonce, DigestHA2(string(method), uri))
		fields = append(fields, fmt.Sprintf("response=%s", grammar.Quote(resp)))
	case slices.Contains(ch.QOP, digestQOP):
		if clientNonce == "" {
			return nil, errtrace.Wrap(NewInvalidArgumentError("empty client nonce"))
		}
		nc := fmt.Sprintf("%08x", nonceCount)
		resp := DigestResponse(c.Username, ch.Realm, c.Password, string(method), uri, ch.Nonce, nc, clientNonce)
		fields = append(fields,
			fmt.Sprintf("response=%s", grammar.Quote(resp)),
			fmt.Sprintf("cnonce=%s", grammar.Quote(clientNonce)),
			"qop="+digestQOP,
			"nc="+nc,
		)
	default:
		return nil, errtrace.Wrap(errorutil.NewNotSupportedError("digest qop %q", strings.Join(ch.QOP, ",")))
	}
	fields = append(fields, "algorithm="+digestAlgMD5)
	if ch.Opaque != "" {
		fields = append(fields, fmt.Sprintf("opaque=%s", grammar.Quote(ch.Opaque)))
	}

	kind := header.KindAuthorization
	if ch.Proxy {
		kind = header.KindProxyAuthorization
	}
	return errtrace.Wrap2(header.NewSimple(kind, digestScheme+" "+strings.Join(fields, ", ")))
}
