package ddns

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// familyNetwork returns the dial network that only reaches addresses of family.
func familyNetwork(family AddressFamily, base string) string {
	if family == IPv6 {
		return base + "6"
	}
	return base + "4"
}

// dialTimeout must stay below lookupTimeout
// so a connect that never completes surfaces as a failed dial.
const (
	dialTimeout   = 10 * time.Second
	lookupTimeout = 15 * time.Second
)

// newFamilyClient returns an HTTP client whose connections are pinned to one address family.
//
// Proxies are disabled: a lookup through a proxy would report the proxy's address.
func newFamilyClient(family AddressFamily) *http.Client {
	transport := cleanhttp.DefaultPooledTransport()
	transport.Proxy = nil
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	network := familyNetwork(family, "tcp")
	transport.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return &http.Client{Transport: transport}
}

// dialTrace records whether a request got as far as a connection.
// A nil *dialTrace knows nothing.
type dialTrace struct {
	dialing   atomic.Bool
	connected atomic.Bool
}

// withDialTrace attaches a dialTrace to the requests made with ctx.
func withDialTrace(ctx context.Context) (context.Context, *dialTrace) {
	dt := &dialTrace{}
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		ConnectStart: func(string, string) { dt.dialing.Store(true) },
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				dt.connected.Store(true)
			}
		},
		GotConn: func(httptrace.GotConnInfo) { dt.connected.Store(true) },
	}), dt
}

// stuckDialing reports whether a connect attempt started and none succeeded.
func (dt *dialTrace) stuckDialing() bool {
	return dt != nil && dt.dialing.Load() && !dt.connected.Load()
}

// classifyNetworkError maps an error from the network stack to a NetworkKind.
//
// A failed dial is reported as NetworkConnectionUnavailable, and so is a
// deadline that expired while dt shows the request still dialing.
// A cancelled context is never reported that way,
// since the dialer also fails when it is cancelled.
func classifyNetworkError(ctx context.Context, dt *dialTrace, err error) NetworkKind {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if !errors.Is(ctxErr, context.DeadlineExceeded) {
			return NetworkOther
		}
		if dt.stuckDialing() {
			return NetworkConnectionUnavailable
		}
		return NetworkTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NetworkDNS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return NetworkConnectionUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NetworkTimeout
	}
	return NetworkOther
}

func newTransportError(ctx context.Context, dt *dialTrace, op, url string, err error) *TransportError {
	return &TransportError{
		Op:   op,
		URL:  url,
		Kind: classifyNetworkError(ctx, dt, err),
		Err:  err,
	}
}

func statusError(op, url, status string) *TransportError {
	return &TransportError{
		Op:     op,
		URL:    url,
		Kind:   NetworkStatus,
		Status: status,
		Err:    errors.New(status),
	}
}
