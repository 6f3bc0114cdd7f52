package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	// OpenDNS answers queries for this name with the address of the client.
	openDNSMyIP = "myip.opendns.com."

	DefaultIPv4Nameserver = "208.67.222.222:53"
	DefaultIPv6Nameserver = "[2620:119:35::35]:53"
)

// DNSResolver constructs a resolver which looks up this host's public IP with a DNS query.
//
// The nameservers must answer A and AAAA queries for myip.opendns.com with the
// querying client's address, as resolver1.opendns.com does.
// Queries are sent over udp4 or udp6 so each family is checked independently.
// Empty nameservers fall back to DefaultIPv4Nameserver and DefaultIPv6Nameserver.
func DNSResolver(ipv4Nameserver, ipv6Nameserver string) Resolver {
	if ipv4Nameserver == "" {
		ipv4Nameserver = DefaultIPv4Nameserver
	}
	if ipv6Nameserver == "" {
		ipv6Nameserver = DefaultIPv6Nameserver
	}
	return &dnsResolver{
		nameservers: map[AddressFamily]string{
			IPv4: ipv4Nameserver,
			IPv6: ipv6Nameserver,
		},
		timeout: 5 * time.Second,
	}
}

type dnsResolver struct {
	nameservers map[AddressFamily]string
	timeout     time.Duration
}

// DetectAddress implements ddns.Resolver.
func (r *dnsResolver) DetectAddress(ctx context.Context, family AddressFamily) (string, error) {
	server, ok := r.nameservers[family]
	if !ok {
		return "", fmt.Errorf("no nameserver configured for %s", family)
	}
	op := "detect " + family.String()

	qtype := dns.TypeA
	if family == IPv6 {
		qtype = dns.TypeAAAA
	}
	m := new(dns.Msg)
	m.SetQuestion(openDNSMyIP, qtype)
	m.RecursionDesired = false

	c := &dns.Client{
		Net:     familyNetwork(family, "udp"),
		Timeout: r.timeout,
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	in, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return "", newTransportError(ctx, nil, op, "dns://"+server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", statusError(op, "dns://"+server, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		var ip net.IP
		switch rr := rr.(type) {
		case *dns.A:
			ip = rr.A
		case *dns.AAAA:
			ip = rr.AAAA
		default:
			continue
		}
		addr := ip.String()
		if err := checkFamily(addr, family); err != nil {
			return "", &DecodeError{Op: op, Err: err}
		}
		return addr, nil
	}
	return "", &DecodeError{Op: op, Err: errors.New("no address in answer section")}
}
