// Package transport sends SIP messages over UDP.
//
// A [Manager] owns one connected UDP socket per destination. The socket is
// created on the first send to a destination and reused afterwards; connecting
// it lets the operating system pick the local address, which is then reported
// as the binding used for Via and Contact headers.
package transport

//go:generate go tool errtrace -w .

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/qsip/dns"
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/log"
)

// DefaultPort is the SIP port used when the destination port is unknown.
const DefaultPort uint16 = 5060

// Dialer creates connected sockets. [net.Dialer] implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Locator resolves a host without a port to a SIP server address.
// [dns.Resolver] implements it.
type Locator interface {
	LocateUDP(ctx context.Context, host string, defPort uint16) (dns.Target, error)
}

// Options configures a [Manager].
type Options struct {
	// LocalHost is the address sockets are bound to. Empty means any address.
	LocalHost string
	// LocalPort is the port sockets are bound to. Zero means an ephemeral port.
	// A fixed port allows a single destination socket only.
	LocalPort uint16
	// Dialer overrides the default [net.Dialer] bound to LocalHost:LocalPort.
	Dialer Dialer
	// Resolver locates destinations given with port 0.
	// Defaults to [dns.DefaultResolver].
	Resolver Locator
	// DefaultPort is used when a destination cannot be located.
	// Defaults to [DefaultPort].
	DefaultPort uint16
	// Logger defaults to [log.Noop].
	Logger *slog.Logger
}

func (o *Options) localAddr() (*net.UDPAddr, error) {
	if o == nil || (o.LocalHost == "" && o.LocalPort == 0) {
		return nil, nil
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(o.LocalHost, strconv.Itoa(int(o.LocalPort))))
	if err != nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	return addr, nil
}

func (o *Options) dialer() Dialer {
	if o == nil || o.Dialer == nil {
		return nil
	}
	return o.Dialer
}

func (o *Options) locator() Locator {
	if o == nil || o.Resolver == nil {
		return dns.DefaultResolver()
	}
	return o.Resolver
}

func (o *Options) defPort() uint16 {
	if o == nil || o.DefaultPort == 0 {
		return DefaultPort
	}
	return o.DefaultPort
}

func (o *Options) log() *slog.Logger {
	if o == nil || o.Logger == nil {
		return log.Noop
	}
	return o.Logger
}

type destKey struct {
	host string
	port uint16
}

func (k destKey) String() string { return net.JoinHostPort(k.host, strconv.Itoa(int(k.port))) }

type socket struct {
	key    destKey
	conn   net.Conn
	local  netip.AddrPort
	remote string

	// wmu guards the write deadline together with the write it bounds.
	wmu sync.Mutex
}

func (s *socket) write(ctx context.Context, msg []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return 0, errtrace.Wrap(err)
		}
		defer s.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}
	return errtrace.Wrap2(s.conn.Write(msg))
}

// Manager keeps one UDP socket per destination.
// All methods are safe for concurrent use.
type Manager struct {
	dialer  Dialer
	loc     Locator
	defPort uint16
	log     *slog.Logger

	// mu serializes create-on-miss and eviction,
	// concurrent first sends to a destination share one socket.
	mu     sync.Mutex
	socks  map[destKey]*socket
	closed bool
}

// NewManager creates a new transport manager. Options may be nil.
func NewManager(opts *Options) (*Manager, error) {
	laddr, err := opts.localAddr()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	d := opts.dialer()
	if d == nil {
		nd := &net.Dialer{}
		if laddr != nil {
			nd.LocalAddr = laddr
		}
		d = nd
	}
	return &Manager{
		dialer:  d,
		loc:     opts.locator(),
		defPort: opts.defPort(),
		log:     opts.log(),
		socks:   make(map[destKey]*socket),
	}, nil
}

// Bind returns the local address of the socket for the destination,
// creating the socket when needed. Port 0 locates the destination via DNS.
// Socket creation failures are reported as [ErrBind] or [ErrConnect].
func (m *Manager) Bind(ctx context.Context, host string, port uint16) (netip.AddrPort, error) {
	s, err := m.acquire(ctx, host, port)
	if err != nil {
		return netip.AddrPort{}, errtrace.Wrap(err)
	}
	return s.local, nil
}

// Send writes msg to the destination socket and returns the number of bytes written.
// A failed or short write closes and evicts the socket and yields [ErrPartialSend].
// The context deadline, if any, bounds the write.
func (m *Manager) Send(ctx context.Context, host string, port uint16, msg []byte) (int, error) {
	return errtrace.Wrap2(m.SendFunc(ctx, host, port, func(netip.AddrPort) ([]byte, error) {
		return msg, nil
	}))
}

// SendFunc is like [Manager.Send] but renders the message with build, which receives
// the local address of the very socket the message is written to.
// Errors returned by build are passed through and leave the socket open.
func (m *Manager) SendFunc(
	ctx context.Context,
	host string,
	port uint16,
	build func(local netip.AddrPort) ([]byte, error),
) (int, error) {
	s, err := m.acquire(ctx, host, port)
	if err != nil {
		return 0, errtrace.Wrap(err)
	}

	msg, err := build(s.local)
	if err != nil {
		return 0, errtrace.Wrap(err)
	}

	n, err := s.write(ctx, msg)
	if err != nil || n < len(msg) {
		m.evict(s)
		m.log.LogAttrs(ctx, slog.LevelWarn, "socket evicted after failed send",
			slog.String("destination", s.key.String()),
			slog.String("local", s.local.String()),
			slog.Int("written", n),
			slog.Int("size", len(msg)),
			slog.Any("error", err),
		)
		if err != nil {
			return n, errtrace.Wrap(errorutil.NewWrapperError(ErrPartialSend, err))
		}
		return n, errtrace.Wrap(errorutil.NewWrapperError(ErrPartialSend, "wrote %d of %d bytes", n, len(msg)))
	}
	return n, nil
}

func (m *Manager) acquire(ctx context.Context, host string, port uint16) (*socket, error) {
	if host == "" {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("empty destination host"))
	}
	key := destKey{host, port}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errtrace.Wrap(ErrClosed)
	}
	if s, ok := m.socks[key]; ok {
		return s, nil
	}

	s, err := m.dial(ctx, key)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	m.socks[key] = s
	return s, nil
}

func (m *Manager) dial(ctx context.Context, key destKey) (*socket, error) {
	host, port := key.host, key.port
	if port == 0 {
		t, err := m.loc.LocateUDP(ctx, host, m.defPort)
		if err != nil {
			return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrConnect, err))
		}
		host, port = t.DialHost(), t.Port
	}
	remote := net.JoinHostPort(host, strconv.Itoa(int(port)))

	conn, err := m.dialer.DialContext(ctx, "udp", remote)
	if err != nil {
		err = classifyDialErr(err)
		m.log.LogAttrs(ctx, slog.LevelWarn, "failed to create socket",
			slog.String("destination", key.String()),
			slog.String("remote", remote),
			slog.Any("error", err),
		)
		return nil, errtrace.Wrap(err)
	}

	local, err := localAddrPort(conn)
	if err != nil {
		conn.Close()
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrBind, err))
	}

	s := &socket{
		key:    key,
		conn:   newCloseOnceConn(newLogConn(conn, m.log)),
		local:  local,
		remote: remote,
	}
	m.log.LogAttrs(ctx, slog.LevelDebug, "socket created",
		slog.String("destination", key.String()),
		slog.String("remote", remote),
		slog.String("local", local.String()),
	)
	return s, nil
}

func localAddrPort(c net.Conn) (netip.AddrPort, error) {
	switch addr := c.LocalAddr().(type) {
	case *net.UDPAddr:
		ap := addr.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
	case nil:
		return netip.AddrPort{}, errtrace.Wrap(errorutil.Errorf("socket has no local address"))
	default:
		ap, err := netip.ParseAddrPort(addr.String())
		if err != nil {
			return netip.AddrPort{}, errtrace.Wrap(err)
		}
		return ap, nil
	}
}

func (m *Manager) evict(s *socket) {
	m.mu.Lock()
	if cur, ok := m.socks[s.key]; ok && cur == s {
		delete(m.socks, s.key)
	}
	m.mu.Unlock()
	s.conn.Close()
}

// Close closes and forgets the socket of the destination.
// Closing an unknown destination is a no-op.
func (m *Manager) Close(host string, port uint16) error {
	key := destKey{host, port}
	m.mu.Lock()
	s, ok := m.socks[key]
	delete(m.socks, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return errtrace.Wrap(s.conn.Close())
}

// CloseAll closes every socket. The manager cannot be used afterwards.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	socks := m.socks
	m.socks = make(map[destKey]*socket)
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for _, s := range socks {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errtrace.Wrap(errors.Join(errs...))
}

// Len returns the number of open sockets.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.socks)
}
