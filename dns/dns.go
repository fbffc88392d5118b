// Package dns resolves SIP destinations: A/AAAA, SRV and NAPTR lookups and
// the UDP subset of RFC 3263 server location.
package dns

//go:generate go tool errtrace -w .

import (
	"cmp"
	"context"
	"net"
	"net/netip"
	"slices"
	"strings"
	"time"

	"braces.dev/errtrace"
	"github.com/miekg/dns"
)

const defTimeout = 5 * time.Second

// Resolver is a [net.Resolver] that can also query NAPTR records.
// NAPTR queries go to NameServer, or to the first server of /etc/resolv.conf.
type Resolver struct {
	net.Resolver

	// NameServer is the "host[:port]" of the server NAPTR queries are sent to.
	NameServer string
	// Timeout bounds a NAPTR exchange. Defaults to 5s.
	Timeout time.Duration
}

// LookupAddrs returns the addresses of host, IPv4 first.
// IPv4-mapped IPv6 addresses are unmapped.
func (r *Resolver) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := r.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	slices.SortStableFunc(addrs, func(a, b netip.Addr) int {
		switch {
		case a.Is4() == b.Is4():
			return 0
		case a.Is4():
			return -1
		default:
			return 1
		}
	})
	return addrs, nil
}

// SRV is a DNS SRV record.
type SRV = net.SRV

// LookupSRV returns "_service._proto.host" records ordered by priority and weight.
// Empty service and proto query host itself.
func (r *Resolver) LookupSRV(ctx context.Context, service, proto, host string) ([]*SRV, error) {
	_, srvs, err := r.Resolver.LookupSRV(ctx, service, proto, host)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return srvs, nil
}

// NAPTR is a naming authority pointer record (RFC 3403).
// Flags "s" means Replacement names an SRV record, Service "SIP+D2U" means SIP over UDP.
type NAPTR struct {
	Order       uint16
	Preference  uint16
	Flags       string
	Service     string
	Regexp      string
	Replacement string
}

// LookupNAPTR returns the NAPTR records of host ordered by order and preference.
func (r *Resolver) LookupNAPTR(ctx context.Context, host string) ([]*NAPTR, error) {
	server, err := r.server()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(host), dns.TypeNAPTR)
	q.RecursionDesired = true

	c := &dns.Client{Timeout: cmp.Or(r.Timeout, defTimeout)}
	resp, _, err := c.ExchangeContext(ctx, q, server)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, errtrace.Wrap(&net.DNSError{
			Err:        dns.RcodeToString[resp.Rcode],
			Name:       host,
			Server:     server,
			IsNotFound: resp.Rcode == dns.RcodeNameError,
		})
	}

	var recs []*NAPTR
	for _, ans := range resp.Answer {
		rr, ok := ans.(*dns.NAPTR)
		if !ok {
			continue
		}
		recs = append(recs, &NAPTR{
			Order:       rr.Order,
			Preference:  rr.Preference,
			Flags:       rr.Flags,
			Service:     rr.Service,
			Regexp:      rr.Regexp,
			Replacement: rr.Replacement,
		})
	}
	slices.SortStableFunc(recs, func(a, b *NAPTR) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.Preference, b.Preference))
	})
	return recs, nil
}

func (r *Resolver) server() (string, error) {
	if r.NameServer != "" {
		if _, _, err := net.SplitHostPort(r.NameServer); err != nil {
			return net.JoinHostPort(r.NameServer, "53"), nil //nolint:nilerr
		}
		return r.NameServer, nil
	}

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return "", errtrace.Wrap(err)
	}
	if len(conf.Servers) == 0 {
		return "", errtrace.Wrap(&net.DNSError{Err: "no name servers", Name: "resolv.conf"})
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}

// Target is a located SIP server.
// Addr is the resolved address of Host, invalid when Host did not resolve.
type Target struct {
	Host string
	Port uint16
	Addr netip.Addr
}

// DialHost returns the host to connect to: Addr when known, Host otherwise.
func (t Target) DialHost() string {
	if t.Addr.IsValid() {
		return t.Addr.String()
	}
	return t.Host
}

const (
	naptrServiceUDP = "SIP+D2U"
	naptrFlagSRV    = "s"
)

// LocateUDP locates the UDP SIP server of host following RFC 3263:
// a SIP+D2U NAPTR record names the SRV record to query, otherwise
// "_sip._udp.host" is queried. Without SRV records the server is host:defPort.
// The chosen server name is resolved to Addr.
// Lookup failures fall back to defaults, only context errors are returned.
func (r *Resolver) LocateUDP(ctx context.Context, host string, defPort uint16) (Target, error) {
	t := Target{Host: host, Port: defPort}
	if ip, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		t.Addr = ip.Unmap()
		return t, nil
	}
	if host == "" {
		return t, nil
	}

	var srvName string
	if recs, err := r.LookupNAPTR(ctx, host); err == nil {
		i := slices.IndexFunc(recs, func(rec *NAPTR) bool {
			return strings.EqualFold(rec.Service, naptrServiceUDP) && strings.EqualFold(rec.Flags, naptrFlagSRV)
		})
		if i >= 0 {
			srvName = recs[i].Replacement
		}
	}
	if err := ctx.Err(); err != nil {
		return t, errtrace.Wrap(err)
	}

	var (
		srvs []*SRV
		err  error
	)
	if srvName != "" {
		srvs, err = r.LookupSRV(ctx, "", "", srvName)
	} else {
		srvs, err = r.LookupSRV(ctx, "sip", "udp", host)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return t, errtrace.Wrap(ctxErr)
	}
	if err == nil && len(srvs) > 0 {
		t.Host, t.Port = strings.TrimSuffix(srvs[0].Target, "."), srvs[0].Port
	}

	if addrs, err := r.LookupAddrs(ctx, t.Host); err == nil && len(addrs) > 0 {
		t.Addr = addrs[0]
	}
	if err := ctx.Err(); err != nil {
		return t, errtrace.Wrap(err)
	}
	return t, nil
}

var defResolver = &Resolver{}

// DefaultResolver returns the resolver used when none is configured.
func DefaultResolver() *Resolver { return defResolver }
