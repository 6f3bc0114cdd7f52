package ddns_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travis-Britz/cfddns"
)

func TestMetricsCountOutcomes(t *testing.T) {
	p := twoRecords()
	r := &fakeResolver{answers: map[ddns.AddressFamily]lookup{
		ddns.IPv4: {addr: "2.2.2.2"},
		ddns.IPv6: {err: unreachable(ddns.IPv6)},
	}}
	m := ddns.NewMetrics()
	c, err := ddns.New("Z", []string{"R1", "R2"}, ddns.UsingProvider(p), ddns.UsingResolver(r), ddns.WithMetrics(m))
	require.NoError(t, err)

	_, err = c.RunDDNS(context.Background())
	require.NoError(t, err)

	expected := `
# HELP ddns_record_outcomes_total Records processed, by outcome and address family.
# TYPE ddns_record_outcomes_total counter
ddns_record_outcomes_total{family="ipv4",status="updated"} 1
ddns_record_outcomes_total{family="ipv6",status="skipped"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "ddns_record_outcomes_total"))

	expectedErrors := `
# HELP ddns_errors_total Errors that aborted a pass, by kind, or skipped a record (kind connection_unavailable).
# TYPE ddns_errors_total counter
ddns_errors_total{kind="connection_unavailable"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expectedErrors), "ddns_errors_total"))
}

func TestMetricsAbortedPass(t *testing.T) {
	p := &fakeProvider{records: map[string]ddns.Record{
		"R1": {ID: "R1", ZoneID: "Z", Type: "TXT", Content: "hello"},
	}}
	m := ddns.NewMetrics()
	c, err := ddns.New("Z", []string{"R1"}, ddns.UsingProvider(p), ddns.UsingResolver(&fakeResolver{}), ddns.WithMetrics(m))
	require.NoError(t, err)

	_, err = c.RunDDNS(context.Background())
	require.Error(t, err)

	expected := `
# HELP ddns_last_run_aborted 1 if the last pass aborted, 0 otherwise.
# TYPE ddns_last_run_aborted gauge
ddns_last_run_aborted 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expected), "ddns_last_run_aborted"))

	expectedErrors := `
# HELP ddns_errors_total Errors that aborted a pass, by kind, or skipped a record (kind connection_unavailable).
# TYPE ddns_errors_total counter
ddns_errors_total{kind="unsupported_record_type"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expectedErrors), "ddns_errors_total"))

	expectedOutcomes := `
# HELP ddns_record_outcomes_total Records processed, by outcome and address family.
# TYPE ddns_record_outcomes_total counter
ddns_record_outcomes_total{family="none",status="aborted"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(expectedOutcomes), "ddns_record_outcomes_total"))
}

func TestMetricsTextfile(t *testing.T) {
	p := twoRecords()
	r := &fakeResolver{answers: map[ddns.AddressFamily]lookup{
		ddns.IPv4: {addr: "1.1.1.1"},
		ddns.IPv6: {addr: "::1"},
	}}
	m := ddns.NewMetrics()
	c, err := ddns.New("Z", []string{"R1", "R2"}, ddns.UsingProvider(p), ddns.UsingResolver(r), ddns.WithMetrics(m))
	require.NoError(t, err)
	_, err = c.RunDDNS(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ddns.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ddns_record_outcomes_total{family="ipv6",status="unchanged"} 1`)
	assert.Contains(t, string(data), "ddns_last_success_timestamp_seconds")
}

func TestNilMetricsIsValid(t *testing.T) {
	p := twoRecords()
	r := &fakeResolver{answers: map[ddns.AddressFamily]lookup{ddns.IPv4: {addr: "1.1.1.1"}}}
	c, err := ddns.New("Z", []string{"R1"}, ddns.UsingProvider(p), ddns.UsingResolver(r), ddns.WithMetrics(nil))
	require.NoError(t, err)
	_, err = c.RunDDNS(context.Background())
	assert.NoError(t, err)
}
