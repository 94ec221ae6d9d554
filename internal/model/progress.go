package model

import "time"

// ProgressState is the per-contact position in the sequencing state machine.
type ProgressState string

const (
	StateEnrolled          ProgressState = "enrolled"
	StateAwaitingCondition ProgressState = "awaiting_condition"
	StateScheduled         ProgressState = "scheduled"
	StateSent              ProgressState = "sent"
	StateTerminated        ProgressState = "terminated"
)

// ContactProgress tracks one contact's position within one campaign's
// sequence. CurrentNodeID is empty while the contact is still on the initial
// message.
type ContactProgress struct {
	CampaignID       int           `db:"campaign_id" json:"campaign_id"`
	ContactID        int           `db:"contact_id" json:"contact_id"`
	State            ProgressState `db:"state" json:"state"`
	CurrentNodeID    string        `db:"current_node_id" json:"current_node_id,omitempty"`
	PendingNodeID    string        `db:"pending_node_id" json:"pending_node_id,omitempty"`
	VariantID        string        `db:"variant_id" json:"variant_id,omitempty"`
	EnrolledAt       time.Time     `db:"enrolled_at" json:"enrolled_at"`
	LastSentAt       *time.Time    `db:"last_sent_at" json:"last_sent_at,omitempty"`
	LastResponseAt   *time.Time    `db:"last_response_at" json:"last_response_at,omitempty"`
	LastResponseType ResponseType  `db:"last_response_type" json:"last_response_type,omitempty"`
	LastInboundBody  string        `db:"last_inbound_body" json:"-"`
}

// History is the response-history view the condition evaluator consumes.
type ContactHistory struct {
	ReferenceSentAt  time.Time
	LastResponseAt   *time.Time
	LastResponseType ResponseType
	LastInboundBody  string
}

// History builds the evaluator view anchored at the last send. Contacts that
// have never been sent anything anchor at enrollment.
func (p *ContactProgress) History() ContactHistory {
	ref := p.EnrolledAt
	if p.LastSentAt != nil {
		ref = *p.LastSentAt
	}
	return ContactHistory{
		ReferenceSentAt:  ref,
		LastResponseAt:   p.LastResponseAt,
		LastResponseType: p.LastResponseType,
		LastInboundBody:  p.LastInboundBody,
	}
}

// Responded reports whether an inbound response arrived after the reference
// send.
func (h ContactHistory) Responded() bool {
	return h.LastResponseAt != nil && h.LastResponseAt.After(h.ReferenceSentAt)
}
