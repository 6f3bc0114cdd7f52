package ddns

import (
	"context"
	"fmt"
)

// AddressFamily is the IP version a record holds.
type AddressFamily int

const (
	IPv4 AddressFamily = iota + 1
	IPv6
)

func (f AddressFamily) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	}
	return fmt.Sprintf("AddressFamily(%d)", int(f))
}

// Record is a single DNS record as stored by the provider.
type Record struct {
	ID      string `json:"id"`
	ZoneID  string `json:"zone_id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// UpdateRequest holds the record fields a reconciliation pass may overwrite.
// Fields not present here are left untouched by the provider.
type UpdateRequest struct {
	Content string `json:"content"`
}

// FamilyForRecordType maps a DNS record type to the address family it stores.
// Only A and AAAA records can be reconciled.
func FamilyForRecordType(recordType string) (AddressFamily, error) {
	switch recordType {
	case "A":
		return IPv4, nil
	case "AAAA":
		return IPv6, nil
	}
	return 0, &UnsupportedRecordTypeError{Type: recordType}
}

// Resolver looks up the public address of this host for one address family.
//
// Implementations must report a dial failure as a *TransportError with
// Kind NetworkConnectionUnavailable so the reconciler can skip records
// whose family has no route from this host.
type Resolver interface {
	DetectAddress(ctx context.Context, family AddressFamily) (string, error)
}

// Provider reads and updates records addressed by zone and record ID.
type Provider interface {
	GetRecord(ctx context.Context, zoneID, recordID string) (Record, error)
	UpdateRecord(ctx context.Context, zoneID, recordID string, update UpdateRequest) (Record, error)
}
