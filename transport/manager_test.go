package transport_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/ghettovoice/qsip/dns"
	"github.com/ghettovoice/qsip/internal/testutil/netmock"
	"github.com/ghettovoice/qsip/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingDialer struct {
	calls atomic.Int32
	dial  func(ctx context.Context, network, address string) (net.Conn, error)
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls.Add(1)
	if d.dial != nil {
		return d.dial(ctx, network, address)
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, address)
}

type stubLocator struct {
	target dns.Target
	err    error
	host   string
}

func (l *stubLocator) LocateUDP(_ context.Context, host string, _ uint16) (dns.Target, error) {
	l.host = host
	return l.target, l.err
}

func listen(t *testing.T) (net.PacketConn, netip.AddrPort) {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v, want nil", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc, pc.LocalAddr().(*net.UDPAddr).AddrPort() //nolint:forcetypeassert
}

func recv(t *testing.T, pc net.PacketConn) (string, netip.AddrPort) {
	t.Helper()

	buf := make([]byte, 4096)
	pc.SetReadDeadline(time.Now().Add(time.Second)) //nolint:errcheck
	n, addr, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v, want nil", err)
	}
	return string(buf[:n]), addr.(*net.UDPAddr).AddrPort() //nolint:forcetypeassert
}

func newManager(t *testing.T, opts *transport.Options) *transport.Manager {
	t.Helper()

	m, err := transport.NewManager(opts)
	if err != nil {
		t.Fatalf("NewManager() error = %v, want nil", err)
	}
	t.Cleanup(func() { m.CloseAll() })
	return m
}

func TestManager_Send_ReusesSocket(t *testing.T) {
	t.Parallel()

	pc, dst := listen(t)
	d := &countingDialer{}
	m := newManager(t, &transport.Options{Dialer: d})

	ctx := context.Background()
	host, port := dst.Addr().String(), dst.Port()

	local, err := m.Bind(ctx, host, port)
	if err != nil {
		t.Fatalf("m.Bind() error = %v, want nil", err)
	}
	if !local.Addr().IsLoopback() || local.Port() == 0 {
		t.Errorf("m.Bind() = %v, want loopback address with non-zero port", local)
	}

	for _, msg := range []string{"first", "second"} {
		n, err := m.Send(ctx, host, port, []byte(msg))
		if err != nil {
			t.Fatalf("m.Send(%q) error = %v, want nil", msg, err)
		}
		if n != len(msg) {
			t.Errorf("m.Send(%q) = %d, want %d", msg, n, len(msg))
		}

		got, from := recv(t, pc)
		if got != msg {
			t.Errorf("received %q, want %q", got, msg)
		}
		if from != local {
			t.Errorf("received from %v, want %v", from, local)
		}
	}

	if got := d.calls.Load(); got != 1 {
		t.Errorf("dial calls = %d, want 1", got)
	}
	if got := m.Len(); got != 1 {
		t.Errorf("m.Len() = %d, want 1", got)
	}
}

func TestManager_Send_SocketPerDestination(t *testing.T) {
	t.Parallel()

	pc1, dst1 := listen(t)
	pc2, dst2 := listen(t)
	m := newManager(t, nil)

	ctx := context.Background()
	if _, err := m.Send(ctx, dst1.Addr().String(), dst1.Port(), []byte("one")); err != nil {
		t.Fatalf("m.Send(dst1) error = %v, want nil", err)
	}
	if _, err := m.Send(ctx, dst2.Addr().String(), dst2.Port(), []byte("two")); err != nil {
		t.Fatalf("m.Send(dst2) error = %v, want nil", err)
	}

	_, from1 := recv(t, pc1)
	_, from2 := recv(t, pc2)
	if from1 == from2 {
		t.Errorf("both destinations received from %v, want distinct sockets", from1)
	}
	if got := m.Len(); got != 2 {
		t.Errorf("m.Len() = %d, want 2", got)
	}
}

func TestManager_Send_ConcurrentFirstSend(t *testing.T) {
	t.Parallel()

	pc, dst := listen(t)
	d := &countingDialer{}
	m := newManager(t, &transport.Options{Dialer: d})

	const num = 10
	var wg sync.WaitGroup
	errs := make(chan error, num)
	for range num {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Send(context.Background(), dst.Addr().String(), dst.Port(), []byte("ping"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("m.Send() error = %v, want nil", err)
		}
	}
	for range num {
		if got, _ := recv(t, pc); got != "ping" {
			t.Errorf("received %q, want %q", got, "ping")
		}
	}
	if got := d.calls.Load(); got != 1 {
		t.Errorf("dial calls = %d, want 1", got)
	}
}

func TestManager_Send_WithDeadline(t *testing.T) {
	t.Parallel()

	pc, dst := listen(t)
	m := newManager(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := m.Send(ctx, dst.Addr().String(), dst.Port(), []byte("hello")); err != nil {
		t.Fatalf("m.Send() error = %v, want nil", err)
	}
	if got, _ := recv(t, pc); got != "hello" {
		t.Errorf("received %q, want %q", got, "hello")
	}
}

func TestManager_Send_ConcurrentDeadlines(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	var (
		mu        sync.Mutex
		deadline  time.Time
		unbounded atomic.Int32
	)
	conn := netmock.NewMockConn(ctrl)
	conn.EXPECT().LocalAddr().Return(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50600}).AnyTimes()
	conn.EXPECT().RemoteAddr().Return(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5060}).AnyTimes()
	conn.EXPECT().SetWriteDeadline(gomock.Any()).DoAndReturn(func(d time.Time) error {
		mu.Lock()
		deadline = d
		mu.Unlock()
		return nil
	}).AnyTimes()
	conn.EXPECT().Write(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
		mu.Lock()
		if deadline.IsZero() {
			unbounded.Add(1)
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return len(b), nil
	}).Times(8)
	conn.EXPECT().Close().Return(nil).Times(1)

	m := newManager(t, &transport.Options{
		Dialer: &countingDialer{
			dial: func(context.Context, string, string) (net.Conn, error) { return conn, nil },
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Send(ctx, "127.0.0.1", 5060, []byte("hello")); err != nil {
				t.Errorf("m.Send() error = %v, want nil", err)
			}
		}()
	}
	wg.Wait()

	if got := unbounded.Load(); got != 0 {
		t.Errorf("writes without deadline = %d, want 0", got)
	}
}

func TestManager_SendFunc_SameSocket(t *testing.T) {
	t.Parallel()

	pc, dst := listen(t)
	d := &countingDialer{}
	m := newManager(t, &transport.Options{Dialer: d})

	ctx := context.Background()
	host, port := dst.Addr().String(), dst.Port()

	if _, err := m.Bind(ctx, host, port); err != nil {
		t.Fatalf("m.Bind() error = %v, want nil", err)
	}
	// the socket learned by Bind is gone before the message is written
	if err := m.Close(host, port); err != nil {
		t.Fatalf("m.Close() error = %v, want nil", err)
	}

	var local netip.AddrPort
	n, err := m.SendFunc(ctx, host, port, func(l netip.AddrPort) ([]byte, error) {
		local = l
		return []byte("via " + l.String()), nil
	})
	if err != nil {
		t.Fatalf("m.SendFunc() error = %v, want nil", err)
	}

	got, from := recv(t, pc)
	if want := "via " + local.String(); got != want || n != len(want) {
		t.Errorf("received %q (%d bytes), want %q", got, n, want)
	}
	if from != local {
		t.Errorf("message rendered for %v went out from %v", local, from)
	}
	if got := d.calls.Load(); got != 2 {
		t.Errorf("dial calls = %d, want 2", got)
	}
}

func TestManager_SendFunc_BuildError(t *testing.T) {
	t.Parallel()

	_, dst := listen(t)
	m := newManager(t, nil)

	wantErr := errors.New("render failed")
	n, err := m.SendFunc(context.Background(), dst.Addr().String(), dst.Port(), func(netip.AddrPort) ([]byte, error) {
		return nil, wantErr
	})
	if diff := cmp.Diff(err, wantErr, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("m.SendFunc() error = %v, want %v\ndiff (-got +want):\n%v", err, wantErr, diff)
	}
	if n != 0 {
		t.Errorf("m.SendFunc() = %d, want 0", n)
	}
	if got := m.Len(); got != 1 {
		t.Errorf("m.Len() = %d, want 1", got)
	}
}

func TestManager_Send_PartialSend(t *testing.T) {
	t.Parallel()

	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50600}
	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5060}
	msg := []byte("0123456789")

	cases := []struct {
		name    string
		n       int
		err     error
		wantN   int
		wantErr error
	}{
		{"short write", 5, nil, 5, transport.ErrPartialSend},
		{"write error", 0, syscall.ECONNREFUSED, 0, transport.ErrPartialSend},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)

			bad := netmock.NewMockConn(ctrl)
			bad.EXPECT().LocalAddr().Return(local).AnyTimes()
			bad.EXPECT().RemoteAddr().Return(remote).AnyTimes()
			bad.EXPECT().Write(msg).Return(c.n, c.err)
			bad.EXPECT().Close().Return(nil).Times(1)

			good := netmock.NewMockConn(ctrl)
			good.EXPECT().LocalAddr().Return(local).AnyTimes()
			good.EXPECT().RemoteAddr().Return(remote).AnyTimes()
			good.EXPECT().Write(msg).Return(len(msg), nil)
			good.EXPECT().Close().Return(nil).Times(1)

			conns := []net.Conn{bad, good}
			d := &countingDialer{
				dial: func(context.Context, string, string) (net.Conn, error) {
					conn := conns[0]
					conns = conns[1:]
					return conn, nil
				},
			}
			m := newManager(t, &transport.Options{Dialer: d})

			ctx := context.Background()
			n, err := m.Send(ctx, "127.0.0.1", 5060, msg)
			if diff := cmp.Diff(err, c.wantErr, cmpopts.EquateErrors()); diff != "" {
				t.Errorf("m.Send() error = %v, want %v\ndiff (-got +want):\n%v", err, c.wantErr, diff)
			}
			if n != c.wantN {
				t.Errorf("m.Send() = %d, want %d", n, c.wantN)
			}
			if got := m.Len(); got != 0 {
				t.Errorf("m.Len() after failed send = %d, want 0", got)
			}

			if _, err := m.Send(ctx, "127.0.0.1", 5060, msg); err != nil {
				t.Fatalf("m.Send() retry error = %v, want nil", err)
			}
			if got := d.calls.Load(); got != 2 {
				t.Errorf("dial calls = %d, want 2", got)
			}
		})
	}
}

func TestManager_Bind_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		dialErr error
		wantErr error
	}{
		{
			"bind",
			&net.OpError{Op: "dial", Net: "udp", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)},
			transport.ErrBind,
		},
		{
			"connect",
			&net.OpError{Op: "dial", Net: "udp", Err: os.NewSyscallError("connect", syscall.ENETUNREACH)},
			transport.ErrConnect,
		},
		{
			"resolve",
			&net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true},
			transport.ErrConnect,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			d := &countingDialer{
				dial: func(context.Context, string, string) (net.Conn, error) { return nil, c.dialErr },
			}
			m := newManager(t, &transport.Options{Dialer: d})

			_, err := m.Bind(context.Background(), "example.com", 5060)
			if diff := cmp.Diff(err, c.wantErr, cmpopts.EquateErrors()); diff != "" {
				t.Errorf("m.Bind() error = %v, want %v\ndiff (-got +want):\n%v", err, c.wantErr, diff)
			}
			if !errors.Is(err, c.dialErr) {
				t.Errorf("m.Bind() error = %v, want it to wrap %v", err, c.dialErr)
			}
			if got := m.Len(); got != 0 {
				t.Errorf("m.Len() = %d, want 0", got)
			}
		})
	}
}

func TestManager_Bind_AddressInUse(t *testing.T) {
	t.Parallel()

	_, busy := listen(t)
	_, dst := listen(t)
	m := newManager(t, &transport.Options{LocalHost: "127.0.0.1", LocalPort: busy.Port()})

	_, err := m.Bind(context.Background(), dst.Addr().String(), dst.Port())
	if !errors.Is(err, transport.ErrBind) {
		t.Errorf("m.Bind() error = %v, want %v", err, transport.ErrBind)
	}
}

func TestManager_Bind_LocalAddress(t *testing.T) {
	t.Parallel()

	_, dst := listen(t)
	m := newManager(t, &transport.Options{LocalHost: "127.0.0.1"})

	local, err := m.Bind(context.Background(), dst.Addr().String(), dst.Port())
	if err != nil {
		t.Fatalf("m.Bind() error = %v, want nil", err)
	}
	if want := netip.MustParseAddr("127.0.0.1"); local.Addr() != want {
		t.Errorf("m.Bind() addr = %v, want %v", local.Addr(), want)
	}
}

func TestManager_Bind_LocatesZeroPort(t *testing.T) {
	t.Parallel()

	pc, dst := listen(t)
	loc := &stubLocator{target: dns.Target{Host: dst.Addr().String(), Port: dst.Port()}}
	m := newManager(t, &transport.Options{Resolver: loc})

	ctx := context.Background()
	if _, err := m.Send(ctx, "sip.example.com", 0, []byte("located")); err != nil {
		t.Fatalf("m.Send() error = %v, want nil", err)
	}
	if loc.host != "sip.example.com" {
		t.Errorf("located host = %q, want %q", loc.host, "sip.example.com")
	}
	if got, _ := recv(t, pc); got != "located" {
		t.Errorf("received %q, want %q", got, "located")
	}

	loc.err = context.Canceled
	m2 := newManager(t, &transport.Options{Resolver: loc})
	_, err := m2.Bind(ctx, "sip.example.com", 0)
	if !errors.Is(err, transport.ErrConnect) || !errors.Is(err, context.Canceled) {
		t.Errorf("m.Bind() error = %v, want %v wrapping %v", err, transport.ErrConnect, context.Canceled)
	}
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	_, dst1 := listen(t)
	_, dst2 := listen(t)
	m := newManager(t, nil)

	ctx := context.Background()
	for _, dst := range []netip.AddrPort{dst1, dst2} {
		if _, err := m.Bind(ctx, dst.Addr().String(), dst.Port()); err != nil {
			t.Fatalf("m.Bind(%v) error = %v, want nil", dst, err)
		}
	}

	if err := m.Close(dst1.Addr().String(), dst1.Port()); err != nil {
		t.Errorf("m.Close() error = %v, want nil", err)
	}
	if err := m.Close("unknown", 1); err != nil {
		t.Errorf("m.Close(unknown) error = %v, want nil", err)
	}
	if got := m.Len(); got != 1 {
		t.Errorf("m.Len() = %d, want 1", got)
	}

	if err := m.CloseAll(); err != nil {
		t.Errorf("m.CloseAll() error = %v, want nil", err)
	}
	if got := m.Len(); got != 0 {
		t.Errorf("m.Len() = %d, want 0", got)
	}

	_, err := m.Send(ctx, dst1.Addr().String(), dst1.Port(), []byte("late"))
	if diff := cmp.Diff(err, transport.ErrClosed, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("m.Send() error = %v, want %v\ndiff (-got +want):\n%v", err, transport.ErrClosed, diff)
	}
}

func TestManager_InvalidArgument(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil)
	_, err := m.Bind(context.Background(), "", 5060)
	if diff := cmp.Diff(err, transport.ErrInvalidArgument, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("m.Bind() error = %v, want %v\ndiff (-got +want):\n%v", err, transport.ErrInvalidArgument, diff)
	}

	_, err = transport.NewManager(&transport.Options{LocalHost: "not an address"})
	if diff := cmp.Diff(err, transport.ErrInvalidArgument, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("NewManager() error = %v, want %v\ndiff (-got +want):\n%v", err, transport.ErrInvalidArgument, diff)
	}
}
