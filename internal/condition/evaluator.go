// Package condition evaluates follow-up trigger conditions against a
// contact's response history.
package condition

import (
	"strings"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// Evaluate reports whether a single condition is satisfied by the contact's
// history since the reference send. Time windows and excluded days attached
// to the condition are scheduling constraints and are not consulted here.
func Evaluate(c model.Condition, h model.ContactHistory) bool {
	switch c.Kind {
	case model.ConditionAll:
		return true
	case model.ConditionNoResponse:
		return !h.Responded()
	case model.ConditionPositiveResponse:
		return h.Responded() && h.LastResponseType == model.ResponsePositive
	case model.ConditionNegativeResponse:
		return h.Responded() && h.LastResponseType == model.ResponseNegative
	case model.ConditionKeyword:
		return matchKeyword(c.Keywords, h)
	default:
		return false
	}
}

// AnySatisfied applies OR semantics across a node's conditions.
func AnySatisfied(conds []model.Condition, h model.ContactHistory) bool {
	for _, c := range conds {
		if Evaluate(c, h) {
			return true
		}
	}
	return false
}

func matchKeyword(keywords []string, h model.ContactHistory) bool {
	if !h.Responded() || h.LastInboundBody == "" || len(keywords) == 0 {
		return false
	}
	body := strings.ToLower(h.LastInboundBody)
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(body, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
