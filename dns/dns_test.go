package dns_test

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"testing"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/ghettovoice/qsip/dns"
)

func startServer(t *testing.T, zone ...string) string {
	t.Helper()

	recs := make(map[string][]mdns.RR)
	for _, z := range zone {
		rr, err := mdns.NewRR(z)
		if err != nil {
			t.Fatalf("NewRR(%q) error = %v, want nil", z, err)
		}
		recs[mdns.CanonicalName(rr.Header().Name)] = append(recs[mdns.CanonicalName(rr.Header().Name)], rr)
	}

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v, want nil", err)
	}

	started := make(chan struct{})
	srv := &mdns.Server{
		PacketConn: pc,
		Handler: mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
			m := new(mdns.Msg)
			m.SetReply(req)
			m.Authoritative = true
			q := req.Question[0]
			rrs, ok := recs[mdns.CanonicalName(q.Name)]
			if !ok {
				m.Rcode = mdns.RcodeNameError
			}
			for _, rr := range rrs {
				if rr.Header().Rrtype == q.Qtype {
					m.Answer = append(m.Answer, rr)
				}
			}
			w.WriteMsg(m) //nolint:errcheck
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go srv.ActivateAndServe() //nolint:errcheck
	<-started
	t.Cleanup(func() { srv.Shutdown() }) //nolint:errcheck

	return pc.LocalAddr().String()
}

func newResolver(addr string) *dns.Resolver {
	r := &dns.Resolver{NameServer: addr, Timeout: time.Second}
	r.PreferGo = true
	r.Dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "udp", addr)
	}
	return r
}

func TestResolver_LookupNAPTR(t *testing.T) {
	t.Parallel()

	addr := startServer(t,
		`example.com. 60 IN NAPTR 20 10 "s" "SIP+D2T" "" _sip._tcp.example.com.`,
		`example.com. 60 IN NAPTR 10 50 "s" "SIP+D2U" "" _sip._udp.example.com.`,
		`example.com. 60 IN NAPTR 10 20 "s" "SIPS+D2T" "" _sips._tcp.example.com.`,
	)
	recs, err := newResolver(addr).LookupNAPTR(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupNAPTR() error = %v, want nil", err)
	}

	want := []string{"SIPS+D2T", "SIP+D2U", "SIP+D2T"}
	if len(recs) != len(want) {
		t.Fatalf("LookupNAPTR() returned %d records, want %d", len(recs), len(want))
	}
	for i, rec := range recs {
		if rec.Service != want[i] {
			t.Errorf("recs[%d].Service = %q, want %q", i, rec.Service, want[i])
		}
	}
}

func TestResolver_LocateUDP(t *testing.T) {
	t.Parallel()

	addr := startServer(t,
		`naptr.example.com. 60 IN NAPTR 10 50 "s" "SIP+D2U" "" _sip._udp.srv.naptr.example.com.`,
		`_sip._udp.srv.naptr.example.com. 60 IN SRV 10 60 5070 sip1.naptr.example.com.`,
		`_sip._udp.srv.example.com. 60 IN SRV 10 60 5080 sip2.srv.example.com.`,
		`sip1.naptr.example.com. 60 IN A 192.0.2.10`,
		`plain.example.com. 60 IN AAAA 2001:db8::1`,
		`plain.example.com. 60 IN A 192.0.2.20`,
	)
	r := newResolver(addr)

	cases := []struct {
		host string
		want dns.Target
	}{
		{
			"naptr.example.com",
			dns.Target{Host: "sip1.naptr.example.com", Port: 5070, Addr: netip.MustParseAddr("192.0.2.10")},
		},
		{"srv.example.com", dns.Target{Host: "sip2.srv.example.com", Port: 5080}},
		{"plain.example.com", dns.Target{Host: "plain.example.com", Port: 5060, Addr: netip.MustParseAddr("192.0.2.20")}},
		{"none.example.com", dns.Target{Host: "none.example.com", Port: 5060}},
		{"192.0.2.1", dns.Target{Host: "192.0.2.1", Port: 5060, Addr: netip.MustParseAddr("192.0.2.1")}},
	}
	for _, c := range cases {
		got, err := r.LocateUDP(context.Background(), c.host, 5060)
		if err != nil {
			t.Errorf("LocateUDP(%q) error = %v, want nil", c.host, err)
			continue
		}
		if got != c.want {
			t.Errorf("LocateUDP(%q) = %+v, want %+v", c.host, got, c.want)
		}
	}
}

func TestResolver_LookupAddrs(t *testing.T) {
	t.Parallel()

	addr := startServer(t,
		`dual.example.com. 60 IN AAAA 2001:db8::1`,
		`dual.example.com. 60 IN A 192.0.2.30`,
	)
	got, err := newResolver(addr).LookupAddrs(context.Background(), "dual.example.com")
	if err != nil {
		t.Fatalf("LookupAddrs() error = %v, want nil", err)
	}
	want := []netip.Addr{netip.MustParseAddr("192.0.2.30"), netip.MustParseAddr("2001:db8::1")}
	if !slices.Equal(got, want) {
		t.Errorf("LookupAddrs() = %v, want %v", got, want)
	}
}

func TestTarget_DialHost(t *testing.T) {
	t.Parallel()

	if got := (dns.Target{Host: "sip.example.com"}).DialHost(); got != "sip.example.com" {
		t.Errorf("DialHost() = %q, want %q", got, "sip.example.com")
	}
	tg := dns.Target{Host: "sip.example.com", Addr: netip.MustParseAddr("192.0.2.1")}
	if got := tg.DialHost(); got != "192.0.2.1" {
		t.Errorf("DialHost() = %q, want %q", got, "192.0.2.1")
	}
}

func TestResolver_LocateUDP_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newResolver("127.0.0.1:1")
	if _, err := r.LocateUDP(ctx, "example.com", 5060); err == nil {
		t.Error("LocateUDP(canceled) error = nil, want error")
	}
}
