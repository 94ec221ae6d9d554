package model

import "time"

type ABTestStatus string

const (
	ABTestInProgress ABTestStatus = "in-progress"
	ABTestCompleted  ABTestStatus = "completed"
)

// WinnerCriteria is the metric used to auto-pick a winning variant. Manual
// tests never auto-complete.
type WinnerCriteria string

const (
	CriteriaResponseRate         WinnerCriteria = "response-rate"
	CriteriaPositiveResponseRate WinnerCriteria = "positive-response-rate"
	CriteriaManual               WinnerCriteria = "manual"
)

func (c WinnerCriteria) IsValid() bool {
	switch c {
	case CriteriaResponseRate, CriteriaPositiveResponseRate, CriteriaManual:
		return true
	default:
		return false
	}
}

// TemplateVariant is one template arm of an A/B test. Rates are running
// weighted averages over ContactCount sends.
type TemplateVariant struct {
	ID                   string  `json:"id"`
	TemplateID           string  `json:"template_id"`
	ContactPercentage    float64 `json:"contact_percentage"`
	ContactCount         int     `json:"contact_count"`
	ResponseRate         float64 `json:"response_rate"`
	PositiveResponseRate float64 `json:"positive_response_rate"`
	NegativeResponseRate float64 `json:"negative_response_rate"`
	IsWinner             bool    `json:"is_winner"`
}

type ABTest struct {
	Status           ABTestStatus       `json:"status"`
	DurationHours    int                `json:"duration_hours"`
	Criteria         WinnerCriteria     `json:"winner_criteria"`
	StartedAt        time.Time          `json:"started_at"`
	WinnerTemplateID string             `json:"winner_template_id,omitempty"`
	Variants         []*TemplateVariant `json:"variants"`
}

// Variant looks up a variant by id.
func (t *ABTest) Variant(id string) *TemplateVariant {
	for _, v := range t.Variants {
		if v.ID == id {
			return v
		}
	}
	return nil
}
