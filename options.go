package qsip

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ghettovoice/qsip/internal/log"
	"github.com/ghettovoice/qsip/internal/randutil"
	"github.com/ghettovoice/qsip/sip"
	"github.com/ghettovoice/qsip/transport"
)

// DefaultT1 is the RFC 3261 round-trip time estimate.
const DefaultT1 = 500 * time.Millisecond

// Encryption is a signaling transport security mode.
type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionStartTLS Encryption = "starttls"
	EncryptionTLS      Encryption = "tls"
)

// IsValid checks whether the mode is known.
func (e Encryption) IsValid() bool {
	switch Encryption(strings.ToLower(string(e))) {
	case "", EncryptionNone, EncryptionStartTLS, EncryptionTLS:
		return true
	default:
		return false
	}
}

// ClientOptions configures a [Client].
type ClientOptions struct {
	// From is the address of the user agent. The URI is required.
	From sip.Address
	// OutboundProxy is the host every request is sent to.
	// Requests get a loose Route header pointing to the proxy.
	OutboundProxy string
	// OutboundProxyPort is the outbound proxy port.
	// Zero locates the proxy via DNS.
	OutboundProxyPort uint16
	// Encryption must be empty or [EncryptionNone], other modes are not supported.
	Encryption Encryption
	// T1 is the round-trip time estimate. Defaults to [DefaultT1].
	T1 time.Duration
	// Timeout bounds each request. Defaults to 64*T1.
	Timeout time.Duration
	// UserAgent is added to requests as User-Agent header when not empty.
	UserAgent string
	// MaxForwards overrides [sip.DefaultMaxForwards].
	MaxForwards uint
	// CallIDPrefix is prepended to generated Call-IDs.
	CallIDPrefix string
	// Generator produces branches, tags, Call-IDs and CSeq numbers.
	Generator randutil.Generator
	// Transport configures the socket manager.
	Transport *transport.Options
	// Logger defaults to [log.Noop].
	Logger *slog.Logger
}

func (o *ClientOptions) t1() time.Duration {
	if o == nil || o.T1 <= 0 {
		return DefaultT1
	}
	return o.T1
}

func (o *ClientOptions) timeout() time.Duration {
	if o == nil || o.Timeout <= 0 {
		return 64 * o.t1()
	}
	return o.Timeout
}

func (o *ClientOptions) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Noop
	}
	return o.Logger
}

func (o *ClientOptions) transport() *transport.Options {
	var opts transport.Options
	if o != nil && o.Transport != nil {
		opts = *o.Transport
	}
	if opts.Logger == nil {
		opts.Logger = o.log()
	}
	return &opts
}

func (o *ClientOptions) builder() *sip.BuilderOptions {
	if o == nil {
		return nil
	}
	return &sip.BuilderOptions{
		Generator:    o.Generator,
		MaxForwards:  o.MaxForwards,
		UserAgent:    o.UserAgent,
		CallIDPrefix: o.CallIDPrefix,
	}
}
