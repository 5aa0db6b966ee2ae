package calls

import "time"

// Call is the authoritative record of one outbound call origination.
//
// Immutability invariants:
// - ID, Source, Destination and DialInstruction never change after Create.
// - Status changes only through Store.Transition (see status.go for the table).
// - UpdatedAt moves only on a committed transition and is monotonically
//   non-decreasing.
//
// NOTE: Voice*/APIVersion/Account*/ExternalSID are requester-supplied
// pass-through metadata. They are stored on the record and echoed to the
// status callback endpoint, but the lifecycle never interprets them.

type Call struct {
	ID string `json:"id" db:"id"`

	Source      string `json:"from" db:"source"`
	Destination string `json:"to" db:"destination"`

	// DialInstruction is the switch-specific dial string resolved at
	// origination time, e.g. "85512334667@sip-gw.internal".
	DialInstruction string `json:"-" db:"dial_instruction"`

	Status CallStatus `json:"status" db:"status"`

	StatusCallbackURL    string `json:"status_callback_url,omitempty" db:"status_callback_url"`
	StatusCallbackMethod string `json:"status_callback_method,omitempty" db:"status_callback_method"`

	VoiceURL    string `json:"voice_url,omitempty" db:"voice_url"`
	VoiceMethod string `json:"voice_method,omitempty" db:"voice_method"`

	// ExternalSID is the requester's own identifier for this call
	// (the "sid" field of the origination request).
	ExternalSID      string `json:"sid,omitempty" db:"external_sid"`
	AccountSID       string `json:"account_sid,omitempty" db:"account_sid"`
	AccountAuthToken string `json:"-" db:"account_auth_token"`
	APIVersion       string `json:"api_version,omitempty" db:"api_version"`

	Direction string `json:"direction" db:"direction"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DirectionOutboundAPI is the only direction this core originates.
const DirectionOutboundAPI = "outbound-api"

// Snapshot returns the public view of the call: the field set carried on
// status callbacks and returned by the HTTP API. The auth token and the
// dial instruction never leave the process.
func (c Call) Snapshot() Snapshot {
	return Snapshot{
		ID:          c.ID,
		From:        c.Source,
		To:          c.Destination,
		Status:      c.Status,
		Direction:   c.Direction,
		ExternalSID: c.ExternalSID,
		AccountSID:  c.AccountSID,
		APIVersion:  c.APIVersion,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// Snapshot is the externally visible projection of a Call.
type Snapshot struct {
	ID          string     `json:"id"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	Status      CallStatus `json:"status"`
	Direction   string     `json:"direction"`
	ExternalSID string     `json:"sid,omitempty"`
	AccountSID  string     `json:"account_sid,omitempty"`
	APIVersion  string     `json:"api_version,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
