package model

import "strconv"

// ConditionKind is the closed set of trigger condition variants. The evaluator
// switches exhaustively over these; unknown kinds never match.
type ConditionKind string

const (
	ConditionAll              ConditionKind = "all"
	ConditionNoResponse       ConditionKind = "no-response"
	ConditionPositiveResponse ConditionKind = "positive-response"
	ConditionNegativeResponse ConditionKind = "negative-response"
	ConditionKeyword          ConditionKind = "keyword"
)

func (k ConditionKind) IsValid() bool {
	switch k {
	case ConditionAll, ConditionNoResponse, ConditionPositiveResponse,
		ConditionNegativeResponse, ConditionKeyword:
		return true
	default:
		return false
	}
}

// Condition gates whether a follow-up node is logically triggered. The
// optional window and excluded days constrain when a triggered node may fire,
// not whether it triggers.
type Condition struct {
	Kind         ConditionKind `json:"kind"`
	Keywords     []string      `json:"keywords,omitempty"`
	Window       *TimeWindow   `json:"time_window,omitempty"`
	ExcludedDays []string      `json:"excluded_days,omitempty"` // day names, e.g. "saturday"
}

// TimeWindow is a local-clock sending window. StartTime and EndTime are
// "HH:MM" strings; StartTime must be strictly before EndTime (no overnight
// wraparound). An empty DaysOfWeek permits every day.
type TimeWindow struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	DaysOfWeek []int  `json:"days_of_week,omitempty"` // 0 = Sunday
}

// Minutes parses an "HH:MM" clock string into minutes after midnight.
func Minutes(clock string) (int, bool) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, false
	}
	h, err := strconv.Atoi(clock[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(clock[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// Valid reports whether the window parses and start precedes end.
func (w *TimeWindow) Valid() bool {
	start, ok := Minutes(w.StartTime)
	if !ok {
		return false
	}
	end, ok := Minutes(w.EndTime)
	if !ok {
		return false
	}
	for _, d := range w.DaysOfWeek {
		if d < 0 || d > 6 {
			return false
		}
	}
	return start < end
}

// PermitsDay reports whether the given weekday (0 = Sunday) is allowed.
func (w *TimeWindow) PermitsDay(weekday int) bool {
	if len(w.DaysOfWeek) == 0 {
		return true
	}
	for _, d := range w.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

type BranchKind string

const (
	OnResponse   BranchKind = "onResponse"
	OnNoResponse BranchKind = "onNoResponse"
)

// Connections are explicit branch overrides of the default sequence order.
// Empty target means fall through to the next node by sequence.
type Connections struct {
	OnResponse   string `json:"on_response,omitempty"`
	OnNoResponse string `json:"on_no_response,omitempty"`
}

// FollowUpNode is one step in an outreach sequence. The initial message is
// sequence 0; follow-ups are numbered contiguously from 1.
type FollowUpNode struct {
	ID          string      `json:"id"`
	TemplateID  string      `json:"template_id"`
	DelayDays   int         `json:"delay_days"`
	Enabled     bool        `json:"enabled"`
	Sequence    int         `json:"sequence"`
	Priority    int         `json:"priority"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Connections Connections `json:"connections"`
}

// EffectiveConditions returns the node's conditions, falling back to a single
// no-response condition when none are configured. The fallback is the
// documented default, not an accident of nil handling.
func (n *FollowUpNode) EffectiveConditions() []Condition {
	if len(n.Conditions) == 0 {
		return []Condition{{Kind: ConditionNoResponse}}
	}
	return n.Conditions
}
