package ddns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-cleanhttp"
)

const DefaultCloudflareAPI = "https://api.cloudflare.com/client/v4"

// maxResponseSize bounds how much of an API response is read.
const maxResponseSize = 1 << 20

// NewCloudflare constructs a Provider for the Cloudflare v4 API authenticated with an API token.
//
// The token needs the Zone.DNS edit permission for every zone it will touch.
func NewCloudflare(token string) (*CloudflareProvider, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &MissingConfigError{Field: "cloudflare api token"}
	}
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 30 * time.Second
	return &CloudflareProvider{
		baseURL:    DefaultCloudflareAPI,
		token:      token,
		httpClient: httpClient,
		logger:     logr.Discard(),
	}, nil
}

// CloudflareProvider implements ddns.Provider.
//
// It should be constructed using NewCloudflare.
type CloudflareProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logr.Logger
}

// SetBaseURL points the provider at a different API root, e.g. a test server.
func (cf *CloudflareProvider) SetBaseURL(u string) {
	cf.baseURL = strings.TrimRight(u, "/")
}

func (cf *CloudflareProvider) SetHTTPClient(c *http.Client) {
	cf.httpClient = c
}

func (cf *CloudflareProvider) SetLogger(l logr.Logger) {
	cf.logger = l
}

// GetRecord implements ddns.Provider.
func (cf *CloudflareProvider) GetRecord(ctx context.Context, zoneID, recordID string) (Record, error) {
	return cf.do(ctx, "get record", http.MethodGet, zoneID, recordID, nil)
}

// UpdateRecord implements ddns.Provider.
//
// The request is a PATCH, so fields other than those in update keep their values.
func (cf *CloudflareProvider) UpdateRecord(ctx context.Context, zoneID, recordID string, update UpdateRequest) (Record, error) {
	return cf.do(ctx, "update record", http.MethodPatch, zoneID, recordID, update)
}

func (cf *CloudflareProvider) do(ctx context.Context, op, method, zoneID, recordID string, body any) (Record, error) {
	if cf.httpClient == nil {
		return Record{}, errors.New("ddns.CloudflareProvider should be constructed with ddns.NewCloudflare")
	}
	endpoint := fmt.Sprintf("%s/zones/%s/dns_records/%s", cf.baseURL, url.PathEscape(zoneID), url.PathEscape(recordID))

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Record{}, fmt.Errorf("%s: error encoding request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return Record{}, fmt.Errorf("%s: error creating request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+cf.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	cf.logger.V(1).Info("calling cloudflare", "op", op, "method", method, "zone", zoneID, "record", recordID)
	resp, err := cf.httpClient.Do(req)
	if err != nil {
		return Record{}, newTransportError(ctx, nil, op, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Record{}, newTransportError(ctx, nil, op, endpoint, err)
	}
	record, err := decodeRecordEnvelope(op, endpoint, resp, data)
	if err != nil {
		return Record{}, err
	}
	// Older API versions echo zone_id, newer ones may not.
	// The record belongs to the zone it was addressed through.
	if record.ZoneID == "" {
		record.ZoneID = zoneID
	}
	if record.ID == "" {
		record.ID = recordID
	}
	cf.logger.V(1).Info("cloudflare responded", "op", op, "status", resp.StatusCode, "record", record.ID, "type", record.Type, "content", record.Content)
	return record, nil
}

// envelope is the wrapper around every v4 API response.
type envelope struct {
	Result   json.RawMessage           `json:"result"`
	Success  *bool                     `json:"success"`
	Errors   []cloudflare.ResponseInfo `json:"errors"`
	Messages []cloudflare.ResponseInfo `json:"messages"`
}

// decodeRecordEnvelope unwraps a DNS record from an API response.
//
// A well formed envelope is honored whatever the HTTP status,
// because the API reports rejected calls with a 4xx status and success=false.
func decodeRecordEnvelope(op, endpoint string, resp *http.Response, data []byte) (Record, error) {
	var env envelope
	err := json.Unmarshal(data, &env)
	if err == nil && env.Success == nil {
		err = errors.New(`missing "success" field`)
	}
	if err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return Record{}, statusError(op, endpoint, resp.Status)
		}
		return Record{}, &DecodeError{Op: op, Err: err}
	}

	if !*env.Success {
		return Record{}, firstRemoteError(env.Errors)
	}

	if len(env.Result) == 0 || string(env.Result) == "null" {
		return Record{}, &DecodeError{Op: op, Err: errors.New(`missing "result" field`)}
	}
	var record Record
	if err := json.Unmarshal(env.Result, &record); err != nil {
		return Record{}, &DecodeError{Op: op, Err: err}
	}
	return record, nil
}

// firstRemoteError reports the first error of an unsuccessful envelope.
// Further entries are counted but not aggregated.
func firstRemoteError(infos []cloudflare.ResponseInfo) *RemoteError {
	if len(infos) == 0 {
		return &RemoteError{Message: "request was not successful and no error was reported"}
	}
	return &RemoteError{
		Code:    infos[0].Code,
		Message: infos[0].Message,
		Extra:   len(infos) - 1,
	}
}
