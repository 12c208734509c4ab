package domain

import "time"

type CallID string

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

type CallStatus string

// Status is advisory text; the enforced state machine is active-or-ended.
const (
	CallInitiating CallStatus = "initiating"
	CallActive     CallStatus = "active"
	CallEnded      CallStatus = "ended"
)

// CallSession is one call and its fixed participant set. Participants are
// decided at creation; there are no late invites.
type CallSession struct {
	ID           CallID     `json:"id"`
	CallerID     UserID     `json:"caller_id"`
	Participants []UserID   `json:"participants"`
	Type         CallType   `json:"type"`
	Status       CallStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (s *CallSession) HasParticipant(id UserID) bool {
	for _, p := range s.Participants {
		if p == id {
			return true
		}
	}
	return false
}
