package enums

// DisputeAction identifies an entry in a dispute's append-only history.
type DisputeAction string

const (
	DisputeActionProposed  DisputeAction = "proposed"
	DisputeActionAccepted  DisputeAction = "accepted"
	DisputeActionDeclined  DisputeAction = "declined"
	DisputeActionCancelled DisputeAction = "cancelled"
)

// String implements fmt.Stringer.
func (d DisputeAction) String() string {
	return string(d)
}
