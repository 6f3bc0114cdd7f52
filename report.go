package ddns

// Status is the result of reconciling one record.
type Status int

const (
	StatusUpdated Status = iota + 1
	// StatusUnchanged means the record already held the detected address.
	StatusUnchanged
	// StatusSkipped means the record's address family is not reachable from this host.
	StatusSkipped
	StatusWouldUpdate
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusUpdated:
		return "updated"
	case StatusUnchanged:
		return "unchanged"
	case StatusSkipped:
		return "skipped"
	case StatusWouldUpdate:
		return "would-update"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// Outcome describes what a pass did with one record.
type Outcome struct {
	RecordID string
	Name     string
	Family   AddressFamily // zero if the pass stopped before the type was known
	Status   Status
	Old      string // record content before the pass
	New      string // detected address; the stored content after an update
	Err      error  // the skip reason or the error that aborted the pass
}

// Report lists the outcomes of a pass in processing order.
type Report struct {
	RunID    string
	ZoneID   string
	Outcomes []Outcome
}

func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
