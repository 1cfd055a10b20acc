package types

import "fmt"

// Direction selects which side of the fax traffic an operation targets.
// Inbound and outbound faxes live behind different provider endpoints and
// carry different raw field names for the same logical data.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection validates a direction string from a URL path segment.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionInbound, DirectionOutbound:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction %q", s)
}

// Status is the normalized transmission state of a fax. Provider responses
// carry either numeric codes or free-form tokens; anything unrecognized
// degrades to StatusUnknown rather than failing the record.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusBusy       Status = "busy"
	StatusNoAnswer   Status = "no_answer"
	StatusRejected   Status = "rejected"
	StatusRetrying   Status = "retrying"
	StatusPending    Status = "pending"
	StatusUnknown    Status = "unknown"
)

// KnownStatus reports whether s is one of the fixed status tokens.
func KnownStatus(s Status) bool {
	switch s {
	case StatusCompleted, StatusInProgress, StatusFailed, StatusCancelled,
		StatusBusy, StatusNoAnswer, StatusRejected, StatusRetrying,
		StatusPending, StatusUnknown:
		return true
	}
	return false
}

// FaxRecord is the canonical internal representation of a fax. All provider
// response variants are reconciled into this shape; downstream code never
// sees raw provider fields except through RawMetadata.
type FaxRecord struct {
	ID                 string         `json:"id"`
	Direction          Direction      `json:"direction"`
	Status             Status         `json:"status"`
	CounterpartyNumber string         `json:"counterparty_number"`
	PageCount          *int           `json:"page_count"`
	DurationSeconds    *int           `json:"duration_seconds"`
	SubmitTime         string         `json:"submit_time,omitempty"`
	CompletionTime     string         `json:"completion_time,omitempty"`
	CostPerUnit        *float64       `json:"cost_per_unit"`
	CSID               string         `json:"csid,omitempty"`
	Subject            string         `json:"subject,omitempty"`
	ReplyEmail         string         `json:"reply_email,omitempty"`
	RawMetadata        map[string]any `json:"raw_metadata"`
}

// Disposition is the content-disposition policy for a served document.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// ContentBlob is the result of resolving a fax document's binary content.
// Produced per request and never cached.
type ContentBlob struct {
	Bytes       []byte
	MimeType    string
	Disposition Disposition
	SizeBytes   int
	// Degraded is set when a format conversion was attempted but the
	// original bytes were served instead. Not an error.
	Degraded bool
}
