package model

import "time"

type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

// ResponseType is the sentiment classification attached to an inbound message
// by the upstream classifier. Outbound messages carry no response type.
type ResponseType string

const (
	ResponsePositive ResponseType = "positive"
	ResponseNegative ResponseType = "negative"
	ResponseNeutral  ResponseType = "neutral"
)

func (t ResponseType) IsValid() bool {
	switch t {
	case ResponsePositive, ResponseNegative, ResponseNeutral:
		return true
	default:
		return false
	}
}

type Message struct {
	ID           int              `db:"id" json:"id"`
	CampaignID   int              `db:"campaign_id" json:"campaign_id"`
	ContactID    int              `db:"contact_id" json:"contact_id"`
	Direction    MessageDirection `db:"direction" json:"direction"`
	NodeID       string           `db:"node_id" json:"node_id,omitempty"`         // outbound only
	TemplateID   string           `db:"template_id" json:"template_id,omitempty"` // outbound only
	Body         string           `db:"body" json:"body"`
	ResponseType ResponseType     `db:"response_type" json:"response_type,omitempty"`
	SentAt       time.Time        `db:"sent_at" json:"sent_at"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}
