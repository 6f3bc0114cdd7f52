package ddns

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

const (
	DefaultIPv4URL = "https://ipv4.icanhazip.com/"
	DefaultIPv6URL = "https://ipv6.icanhazip.com/"
)

// WebResolver constructs a resolver which asks an external web service for this host's public IP.
//
// Each family has its own service URL,
// and each is requested over a connection that can only use that family,
// so a host without IPv6 connectivity fails only the IPv6 lookup.
// Each service must speak http, return status "200 OK",
// and put the caller's address on the first line of the response body.
//
// Empty URLs fall back to DefaultIPv4URL and DefaultIPv6URL.
func WebResolver(ipv4URL, ipv6URL string) (Resolver, error) {
	if ipv4URL == "" {
		ipv4URL = DefaultIPv4URL
	}
	if ipv6URL == "" {
		ipv6URL = DefaultIPv6URL
	}
	wr := &webResolver{
		serviceURLs: map[AddressFamily]*url.URL{},
		httpClients: map[AddressFamily]*http.Client{},
	}
	for family, u := range map[AddressFamily]string{IPv4: ipv4URL, IPv6: ipv6URL} {
		pu, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s URL: %w", family, err)
		}
		wr.serviceURLs[family] = pu
		wr.httpClients[family] = newFamilyClient(family)
	}
	return wr, nil
}

type webResolver struct {
	httpClients map[AddressFamily]*http.Client
	serviceURLs map[AddressFamily]*url.URL
}

// DetectAddress implements ddns.Resolver.
func (wr *webResolver) DetectAddress(ctx context.Context, family AddressFamily) (string, error) {
	u, ok := wr.serviceURLs[family]
	if !ok {
		return "", fmt.Errorf("no lookup service configured for %s", family)
	}

	// 15 seconds is an eternity for the size of the request we're making,
	// but this ensures that every lookup eventually completes even if the caller supplied context.Background.
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	traced, dt := withDialTrace(ctx)
	req, err := http.NewRequestWithContext(traced, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := wr.httpClients[family].Do(req)
	if err != nil {
		return "", newTransportError(ctx, dt, "detect "+family.String(), u.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("detect "+family.String(), u.String(), resp.Status)
	}

	reader := bufio.NewReader(io.LimitReader(resp.Body, 1024))
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", newTransportError(ctx, dt, "detect "+family.String(), u.String(), err)
	}
	addr := strings.TrimSpace(line)
	if err := checkFamily(addr, family); err != nil {
		return "", &DecodeError{Op: "detect " + family.String(), Err: err}
	}
	return addr, nil
}

// checkFamily verifies that addr is a literal address of the given family.
func checkFamily(addr string, family AddressFamily) error {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("error parsing IP address: %w", err)
	}
	if family == IPv4 && !ip.Is4() || family == IPv6 && (!ip.Is6() || ip.Is4In6()) {
		return fmt.Errorf("%s is not an %s address", addr, family)
	}
	return nil
}
