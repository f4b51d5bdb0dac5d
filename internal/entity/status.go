package entity

// Status is the lifecycle state of a purchase order.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

// Trigger names a requested status transition.
type Trigger string

const (
	TriggerSubmit  Trigger = "submit"
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
)

// transitions lists the statuses each trigger may fire from. Submit is only
// legal from draft; rejected orders stay editable for rework but do not
// re-enter the pipeline on their own.
var transitions = map[Trigger]map[Status]struct{}{
	TriggerSubmit:  {StatusDraft: {}},
	TriggerApprove: {StatusPendingApproval: {}},
	TriggerReject:  {StatusPendingApproval: {}},
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Allows reports whether the trigger is legal from the current status.
func (s Status) Allows(t Trigger) bool {
	from, ok := transitions[t]
	if !ok {
		return false
	}
	_, ok = from[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}
