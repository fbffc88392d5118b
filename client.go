// Package qsip is a minimal SIP user agent client.
//
// A [Client] assembles requests, sends them over UDP and reports the
// transaction outcome. Responses are not awaited, so the client is suited
// for fire-and-forget signaling such as MESSAGE notifications and OPTIONS probes.
package qsip

//go:generate go tool errtrace -w .

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/header"
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/util"
	"github.com/ghettovoice/qsip/sip"
	"github.com/ghettovoice/qsip/transport"
)

// Version is the current qsip package version.
var Version = "0.1.0"

// Result describes a sent request.
type Result struct {
	// State is the final transaction state.
	State TxState
	// Request is the last request written to the transport.
	// Nil when the transport failed before the request was finalized.
	Request *sip.Request
	// Destination is the host:port the request was sent to.
	// Port 0 means the destination was located via DNS.
	Destination string
	// Local is the local address the request was sent from.
	Local sip.Binding
	// Written is the number of bytes written by the last attempt.
	Written int
	// Attempts is the number of send attempts, at most 2.
	Attempts int
}

// Client sends SIP requests on behalf of a single user.
// All methods are safe for concurrent use.
type Client struct {
	from      sip.Address
	proxyHost string
	proxyPort uint16
	route     *header.Header
	t1        time.Duration
	timeout   time.Duration
	builder   *sip.Builder
	tp        *transport.Manager
	log       *slog.Logger

	mu     sync.RWMutex
	creds  sip.DigestCredentials
	closed atomic.Bool
}

// NewClient creates a new client.
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil || opts.From.NormURI() == "" {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("empty From address"))
	}
	if !opts.Encryption.IsValid() {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid encryption mode %q", opts.Encryption))
	}
	if enc := opts.Encryption; enc != "" && !util.EqFold(enc, EncryptionNone) {
		return nil, errtrace.Wrap(errorutil.NewNotSupportedError("encryption mode %q", enc))
	}

	tp, err := transport.NewManager(opts.transport())
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	c := &Client{
		from:      opts.From,
		proxyHost: opts.OutboundProxy,
		proxyPort: opts.OutboundProxyPort,
		t1:        opts.t1(),
		timeout:   opts.timeout(),
		builder:   sip.NewBuilder(opts.builder()),
		tp:        tp,
		log:       opts.log(),
	}
	if c.proxyHost != "" {
		uri := "sip:" + c.proxyHost
		if c.proxyPort != 0 {
			uri = "sip:" + net.JoinHostPort(c.proxyHost, strconv.Itoa(int(c.proxyPort)))
		}
		c.route, err = header.NewNameAddr(header.KindRoute, "", uri+";lr")
		if err != nil {
			return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
		}
	}
	return c, nil
}

// From returns the address requests are sent from.
func (c *Client) From() sip.Address { return c.from }

// T1 returns the round-trip time estimate.
func (c *Client) T1() time.Duration { return c.t1 }

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// RegisterUser stores credentials used to answer digest challenges.
// It does not send a REGISTER request.
func (c *Client) RegisterUser(username, password string) {
	c.mu.Lock()
	c.creds = sip.DigestCredentials{Username: username, Password: password}
	c.mu.Unlock()
	c.log.LogAttrs(context.Background(), slog.LevelDebug, "user credentials stored", slog.String("username", username))
}

// Credentials returns the stored credentials.
func (c *Client) Credentials() sip.DigestCredentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// Register would register the stored user at the registrar.
// Registration is not implemented yet, it always returns [ErrNotSupported].
func (c *Client) Register(context.Context) error {
	return errtrace.Wrap(errorutil.NewNotSupportedError("REGISTER"))
}

// Probe sends an OPTIONS request to the target.
func (c *Client) Probe(ctx context.Context, target sip.Address) (*Result, error) {
	return errtrace.Wrap2(c.SendRequest(ctx, sip.RequestMethodOptions, target, nil))
}

// Send sends a MESSAGE request with the body to the recipient.
// Empty content type means [sip.DefaultContentType].
func (c *Client) Send(
	ctx context.Context,
	to sip.Address,
	contentType string,
	body []byte,
	hdrs ...*header.Header,
) (*Result, error) {
	if contentType != "" {
		ctype, err := header.NewSimple(header.KindContentType, contentType)
		if err != nil {
			return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
		}
		hdrs = append([]*header.Header{ctype}, hdrs...)
	}
	return errtrace.Wrap2(c.SendRequest(ctx, sip.RequestMethodMessage, to, body, hdrs...))
}

// SendRequest assembles a request of the given method and sends it to the target
// or to the outbound proxy when configured.
//
// Malformed arguments fail with [ErrInvalidArgument] and a nil result. Transport
// failures are returned together with the result that carries the final state.
// A partial send is retried once over a new socket.
func (c *Client) SendRequest(
	ctx context.Context,
	method sip.RequestMethod,
	target sip.Address,
	body []byte,
	hdrs ...*header.Header,
) (*Result, error) {
	if c.closed.Load() {
		return nil, errtrace.Wrap(ErrClientClosed)
	}

	host, port, err := c.destination(target)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if c.route != nil {
		hdrs = append([]*header.Header{c.route.Clone()}, hdrs...)
	}
	draft, err := c.builder.BuildRequest(method, "", c.from, target, body, hdrs...)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tx := newClientTx(c.log)
	res := &Result{Destination: net.JoinHostPort(host, strconv.Itoa(int(port)))}
	for {
		res.Attempts++
		err = c.attempt(ctx, draft, host, port, res)
		tx.req = res.Request
		if err == nil {
			break
		}
		if res.Attempts == 1 && errors.Is(err, ErrPartialSend) && ctx.Err() == nil {
			c.log.LogAttrs(ctx, slog.LevelWarn, "retrying request after partial send",
				slog.String("destination", res.Destination),
				slog.Any("error", err),
			)
			continue
		}

		if ferr := tx.fail(ctx, err); ferr != nil {
			return res, errtrace.Wrap(errors.Join(err, ferr))
		}
		res.State = tx.State()
		if res.State == TxStateTimedOut {
			err = errorutil.NewWrapperError(ErrTimeout, err)
		}
		c.log.LogAttrs(ctx, slog.LevelWarn, "failed to send request",
			slog.String("method", string(draft.Method())),
			slog.String("destination", res.Destination),
			slog.String("state", res.State.String()),
			slog.Any("error", err),
		)
		return res, errtrace.Wrap(err)
	}

	if err := tx.sent(ctx); err != nil {
		return res, errtrace.Wrap(err)
	}
	res.State = tx.State()
	c.log.LogAttrs(ctx, slog.LevelDebug, "request sent",
		slog.String("method", string(draft.Method())),
		slog.String("destination", res.Destination),
		slog.String("local", res.Local.String()),
		slog.Int("size", res.Written),
		slog.Int("attempts", res.Attempts),
	)
	return res, nil
}

// attempt finalizes the draft for the socket it is written to,
// so Via and Contact always name the sending address.
func (c *Client) attempt(ctx context.Context, draft *sip.RequestDraft, host string, port uint16, res *Result) error {
	var err error
	res.Written, err = c.tp.SendFunc(ctx, host, port, func(local netip.AddrPort) ([]byte, error) {
		res.Local = sip.Binding{Host: local.Addr().String(), Port: local.Port()}
		req, err := draft.Finalize(res.Local)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		res.Request = req
		return req.Bytes(), nil
	})
	return errtrace.Wrap(err)
}

// destination returns where requests to the target are sent.
func (c *Client) destination(target sip.Address) (string, uint16, error) {
	if c.proxyHost != "" {
		return c.proxyHost, c.proxyPort, nil
	}
	host, port, err := target.HostPort()
	if err != nil {
		return "", 0, errtrace.Wrap(err)
	}
	return host, port, nil
}

// Close closes all sockets. The client cannot be used afterwards.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errtrace.Wrap(c.tp.CloseAll())
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errorutil.IsTimeoutErr(err) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}
