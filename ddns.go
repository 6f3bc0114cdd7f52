package ddns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// New constructs a client which reconciles the given records of zoneID.
//
// Record IDs are processed in the order given.
// A DNS provider must be registered with UsingCloudflare or UsingProvider.
// Without a resolver option the public web resolvers are used.
func New(zoneID string, recordIDs []string, options ...clientOption) (DDNSClient, error) {
	zoneID = strings.TrimSpace(zoneID)
	if zoneID == "" {
		return nil, fmt.Errorf("ddns.New: %w", &MissingConfigError{Field: "zone id"})
	}
	if len(recordIDs) == 0 {
		return nil, fmt.Errorf("ddns.New: %w", &MissingConfigError{Field: "record ids"})
	}
	ids := make([]string, 0, len(recordIDs))
	for i, id := range recordIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("ddns.New: record id %d is empty: %w", i, &MissingConfigError{Field: "record ids"})
		}
		ids = append(ids, id)
	}

	c := &client{
		zoneID:    zoneID,
		recordIDs: ids,
		logger:    logr.Discard(),
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %w", i, err)
		}
	}

	if c.Provider == nil {
		return nil, fmt.Errorf("ddns.New: no DNS provider was registered and there is no default option - use ddns.UsingCloudflare or similar")
	}
	if c.Resolver == nil {
		r, err := WebResolver(DefaultIPv4URL, DefaultIPv6URL)
		if err != nil {
			return nil, fmt.Errorf("ddns.New: error creating default resolver: %w", err)
		}
		c.Resolver = r
	}

	// this lets us propagate the logger and http client to dependencies if their options were given before the dependencies were registered
	withLogger(c.logger)(c)
	if c.httpClient != nil {
		withHTTPClient(c.httpClient)(c)
	}
	return c, nil
}

type clientOption func(*client) error

func UsingCloudflare(token string) clientOption {
	return func(c *client) (err error) {
		if c.Provider, err = NewCloudflare(token); err != nil {
			return fmt.Errorf("ddns.UsingCloudflare: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

func UsingProvider(provider Provider) clientOption {
	return func(c *client) error {
		if provider == nil {
			return errors.New("ddns.UsingProvider: provider is nil")
		}
		c.Provider = provider
		return nil
	}
}

func UsingResolver(resolver Resolver) clientOption {
	return func(c *client) error {
		c.Resolver = resolver
		return nil
	}
}

// UsingWebResolver detects addresses with one web service per address family.
func UsingWebResolver(ipv4URL, ipv6URL string) clientOption {
	return func(c *client) (err error) {
		c.Resolver, err = WebResolver(ipv4URL, ipv6URL)
		return err
	}
}

// UsingDNSResolver detects addresses by asking OpenDNS-compatible nameservers.
func UsingDNSResolver(ipv4Nameserver, ipv6Nameserver string) clientOption {
	return func(c *client) error {
		c.Resolver = DNSResolver(ipv4Nameserver, ipv6Nameserver)
		return nil
	}
}

func withLogger(logger logr.Logger) clientOption {
	return func(c *client) error {
		type setLogger interface {
			SetLogger(logr.Logger)
		}
		if p, ok := c.Provider.(setLogger); ok {
			p.SetLogger(logger)
		}
		if r, ok := c.Resolver.(setLogger); ok {
			r.SetLogger(logger)
		}
		return nil
	}
}

func WithLogger(logger logr.Logger) clientOption {
	return func(c *client) error {
		c.logger = logger
		return nil
	}
}

// UsingHTTPClient sets the HTTP client used for provider API calls.
// Address lookups keep their own family-pinned clients.
func UsingHTTPClient(httpclient *http.Client) clientOption {
	return func(c *client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		c.httpClient = httpclient
		return nil
	}
}

func withHTTPClient(httpclient *http.Client) clientOption {
	return func(c *client) error {
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if p, ok := c.Provider.(setHTTPClient); ok {
			p.SetHTTPClient(httpclient)
		}
		return nil
	}
}

// WithDryRun reports records that would change without updating them.
func WithDryRun(dryRun bool) clientOption {
	return func(c *client) error {
		c.dryRun = dryRun
		return nil
	}
}

func WithMetrics(m *Metrics) clientOption {
	return func(c *client) error {
		c.metrics = m
		return nil
	}
}

type DDNSClient interface {
	RunDDNS(ctx context.Context) (*Report, error)
}

type client struct {
	Resolver
	Provider
	logger     logr.Logger
	httpClient *http.Client
	metrics    *Metrics
	zoneID     string
	recordIDs  []string
	dryRun     bool
}

// RunDDNS performs one reconciliation pass over the configured records.
//
// A record whose address family cannot be reached from this host is skipped.
// Any other failure stops the pass: the returned report holds the outcomes
// up to and including the failing record, and the error is an *AbortError.
func (c *client) RunDDNS(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:  uuid.NewString(),
		ZoneID: c.zoneID,
	}
	logger := c.logger.WithValues("run", report.RunID, "zone", c.zoneID)
	logger.V(1).Info("starting reconciliation pass", "records", len(c.recordIDs), "dryRun", c.dryRun)
	start := time.Now()

	for _, id := range c.recordIDs {
		outcome, err := c.reconcile(ctx, id)
		if err != nil {
			outcome.Status = StatusAborted
			outcome.Err = err
		}
		report.Outcomes = append(report.Outcomes, outcome)
		logOutcome(logger, outcome)
		c.metrics.observeOutcome(outcome)

		if err != nil {
			c.metrics.observePass(time.Since(start), true)
			return report, &AbortError{RecordID: id, Err: err}
		}
	}

	c.metrics.observePass(time.Since(start), false)
	logger.V(1).Info("reconciliation pass complete",
		"updated", report.Count(StatusUpdated),
		"unchanged", report.Count(StatusUnchanged),
		"skipped", report.Count(StatusSkipped),
	)
	return report, nil
}

func (c *client) reconcile(ctx context.Context, recordID string) (Outcome, error) {
	outcome := Outcome{RecordID: recordID}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}

	record, err := c.GetRecord(ctx, c.zoneID, recordID)
	if err != nil {
		return outcome, fmt.Errorf("error fetching record: %w", err)
	}
	outcome.Name = record.Name
	outcome.Old = record.Content

	family, err := FamilyForRecordType(record.Type)
	if err != nil {
		return outcome, &UnsupportedRecordTypeError{RecordID: recordID, Type: record.Type}
	}
	outcome.Family = family

	addr, err := c.DetectAddress(ctx, family)
	if IsConnectionUnavailable(err) {
		outcome.Status = StatusSkipped
		outcome.Err = err
		return outcome, nil
	}
	if err != nil {
		return outcome, fmt.Errorf("error detecting %s address: %w", family, err)
	}
	outcome.New = addr

	if addr == record.Content {
		outcome.Status = StatusUnchanged
		return outcome, nil
	}
	if c.dryRun {
		outcome.Status = StatusWouldUpdate
		return outcome, nil
	}

	updated, err := c.UpdateRecord(ctx, record.ZoneID, record.ID, UpdateRequest{Content: addr})
	if err != nil {
		return outcome, fmt.Errorf("error updating record: %w", err)
	}
	if updated.Content != "" {
		outcome.New = updated.Content
	}
	outcome.Status = StatusUpdated
	return outcome, nil
}

func logOutcome(logger logr.Logger, o Outcome) {
	logger = logger.WithValues("record", o.RecordID)
	if o.Name != "" {
		logger = logger.WithValues("name", o.Name)
	}
	switch o.Status {
	case StatusUpdated:
		logger.Info("updated record address", "family", o.Family.String(), "from", o.Old, "to", o.New)
	case StatusUnchanged:
		logger.Info("record already has the address", "family", o.Family.String(), "address", o.Old)
	case StatusSkipped:
		logger.Info("address not available, skipping record", "family", o.Family.String(), "reason", o.Err.Error())
	case StatusWouldUpdate:
		logger.Info("record would be updated (dry run)", "family", o.Family.String(), "from", o.Old, "to", o.New)
	case StatusAborted:
		kv := []any{"kind", ErrorKind(o.Err)}
		var re *RemoteError
		if errors.As(o.Err, &re) {
			kv = append(kv, "code", re.Code, "message", re.Message)
		}
		logger.Error(o.Err, "aborting reconciliation pass", kv...)
	}
}
