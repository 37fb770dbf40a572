package entitlement

import (
	"encoding/json"
	"time"
)

type State int

const (
	StateNone State = iota
	StateActive
	StateCancelled
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	case StateExpired:
		return "expired"
	default:
		return "none"
	}
}

// Status is derived from a record and an instant. It is never stored.
type Status struct {
	State  State
	Record *Record
}

// GrantsAccess is true while the record is inside its window, cancelled or not.
func (s Status) GrantsAccess() bool {
	return s.State == StateActive || s.State == StateCancelled
}

// Same reports whether both statuses describe the same state of the same record.
func (s Status) Same(o Status) bool {
	if s.State != o.State {
		return false
	}
	if s.Record == nil || o.Record == nil {
		return s.Record == nil && o.Record == nil
	}
	return s.Record.ID == o.Record.ID
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State        string  `json:"state"`
		GrantsAccess bool    `json:"grants_access"`
		Record       *Record `json:"record,omitempty"`
	}{
		State:        s.State.String(),
		GrantsAccess: s.GrantsAccess(),
		Record:       s.Record,
	})
}

// DeriveStatus maps a record to its status at now. Expiry wins over
// cancellation; the window end itself still grants access.
func DeriveStatus(r *Record, now time.Time) Status {
	switch {
	case r == nil:
		return Status{State: StateNone}
	case now.After(r.ExpiresAt):
		return Status{State: StateExpired, Record: r}
	case r.CancelledAt != nil:
		return Status{State: StateCancelled, Record: r}
	default:
		return Status{State: StateActive, Record: r}
	}
}
