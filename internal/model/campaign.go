package model

import "time"

// CampaignStatus is the lifecycle state of a campaign. The follow-up graph is
// only editable while the campaign is in draft.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted:
		return true
	default:
		return false
	}
}

type Campaign struct {
	ID                int            `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Channel           string         `db:"channel" json:"channel"`
	Status            CampaignStatus `db:"status" json:"status"`
	Timezone          string         `db:"timezone" json:"timezone"` // IANA zone name
	InitialTemplateID string         `db:"initial_template_id" json:"initial_template_id"`
	SendingWindow     *TimeWindow    `db:"sending_window" json:"sending_window,omitempty"`
	ABTest            *ABTest        `db:"ab_test" json:"ab_test,omitempty"`
	AttentionRequired bool           `db:"attention_required" json:"attention_required"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Location resolves the campaign timezone, defaulting to UTC when unset.
func (c *Campaign) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
