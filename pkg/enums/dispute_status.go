package enums

import "fmt"

// DisputeStatus tracks the dispute sub-state nested inside an order.
type DisputeStatus string

const (
	DisputeStatusNone      DisputeStatus = "none"
	DisputeStatusProposed  DisputeStatus = "proposed"
	DisputeStatusAccepted  DisputeStatus = "accepted"
	DisputeStatusDeclined  DisputeStatus = "declined"
	DisputeStatusCancelled DisputeStatus = "cancelled"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusNone,
	DisputeStatusProposed,
	DisputeStatusAccepted,
	DisputeStatusDeclined,
	DisputeStatusCancelled,
}

// String implements fmt.Stringer.
func (d DisputeStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisputeStatus.
func (d DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDisputeStatus converts raw input into a DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}
