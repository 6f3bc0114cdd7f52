//go:build linux

package ddns_test

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travis-Britz/cfddns"
)

// stalledListener returns the address of a loopback listener that never
// accepts and whose accept queue is full, so new connects hang in SYN_SENT.
func stalledListener(t *testing.T) string {
	t.Helper()
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { syscall.Close(fd) })
	require.NoError(t, syscall.Bind(fd, &syscall.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, syscall.Listen(fd, 0))
	sa, err := syscall.Getsockname(fd)
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", sa.(*syscall.SockaddrInet4).Port)

	for i := 0; i < 8; i++ {
		c, err := net.DialTimeout("tcp4", addr, 250*time.Millisecond)
		if err != nil {
			return addr
		}
		t.Cleanup(func() { c.Close() })
	}
	t.Skip("accept queue did not fill up")
	return ""
}

func TestLookupStalledConnectIsUnavailable(t *testing.T) {
	addr := stalledListener(t)
	wr, err := ddns.WebResolver("http://"+addr+"/", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = wr.DetectAddress(ctx, ddns.IPv4)
	require.Error(t, err)
	assert.True(t, ddns.IsConnectionUnavailable(err), "got %v", err)
}

func TestStalledConnectSkipsRecord(t *testing.T) {
	addr := stalledListener(t)
	wr, err := ddns.WebResolver("http://"+addr+"/", "")
	require.NoError(t, err)
	p := &fakeProvider{records: map[string]ddns.Record{
		"R1": {ID: "R1", ZoneID: "Z", Type: "A", Content: "192.0.2.1"},
	}}
	c, err := ddns.New("Z", []string{"R1"}, ddns.UsingProvider(p), ddns.UsingResolver(wr))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	report, err := c.RunDDNS(ctx)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ddns.StatusSkipped, report.Outcomes[0].Status)
	assert.Empty(t, p.updates)
}
