// Package abtest manages template variant allocation and winner selection
// for campaign A/B tests.
package abtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type Manager struct {
	now    func() time.Time
	logger zerolog.Logger
}

func NewManager() *Manager {
	return &Manager{
		now:    time.Now,
		logger: logging.Component("abtest"),
	}
}

// NewManagerAt pins the clock, for tests.
func NewManagerAt(now func() time.Time) *Manager {
	m := NewManager()
	m.now = now
	return m
}

// SetupTest creates a test over the given variants, assigning ids where
// missing. Percentages are taken as given; the caller owns making them sum
// to 100.
func (m *Manager) SetupTest(variants []*model.TemplateVariant, durationHours int, criteria model.WinnerCriteria) (*model.ABTest, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("at least one variant is required")
	}
	if !criteria.IsValid() {
		return nil, fmt.Errorf("invalid winner criteria %q", criteria)
	}
	if durationHours <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d hours", durationHours)
	}
	for _, v := range variants {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.TemplateID == "" {
			return nil, fmt.Errorf("variant %s has no template", v.ID)
		}
		if v.ContactPercentage < 0 || v.ContactPercentage > 100 {
			return nil, fmt.Errorf("variant %s percentage %.1f out of range", v.ID, v.ContactPercentage)
		}
	}

	return &model.ABTest{
		Status:        model.ABTestInProgress,
		DurationHours: durationHours,
		Criteria:      criteria,
		StartedAt:     m.now(),
		Variants:      variants,
	}, nil
}

// RemoveVariant deletes a variant and redistributes its percentage equally
// across the survivors. The last variant cannot be removed.
func (m *Manager) RemoveVariant(test *model.ABTest, variantID string) error {
	if len(test.Variants) <= 1 {
		return fmt.Errorf("a test must retain at least one variant")
	}
	idx := -1
	for i, v := range test.Variants {
		if v.ID == variantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return appErrors.NewVariantNotFound(variantID)
	}

	test.Variants = append(test.Variants[:idx], test.Variants[idx+1:]...)

	// Equal split of the full budget, not proportional scaling.
	share := 100.0 / float64(len(test.Variants))
	for _, v := range test.Variants {
		v.ContactPercentage = share
	}
	return nil
}

// RecordOutcome folds a batch of send results into a variant's running rates
// using weighted incremental averaging.
func (m *Manager) RecordOutcome(test *model.ABTest, variantID string, sent, responded, positive, negative int) error {
	v := test.Variant(variantID)
	if v == nil {
		return appErrors.NewVariantNotFound(variantID)
	}
	if sent <= 0 {
		return fmt.Errorf("sent count must be positive, got %d", sent)
	}

	old := float64(v.ContactCount)
	total := old + float64(sent)
	v.ResponseRate = (v.ResponseRate*old + float64(responded)) / total
	v.PositiveResponseRate = (v.PositiveResponseRate*old + float64(positive)) / total
	v.NegativeResponseRate = (v.NegativeResponseRate*old + float64(negative)) / total
	v.ContactCount += sent
	return nil
}

// SelectWinner marks the given variant as the manual winner and completes
// the test.
func (m *Manager) SelectWinner(campaign *model.Campaign, variantID string) error {
	if campaign.ABTest == nil {
		return appErrors.NewConfigurationError(campaign.ID, "no A/B test configured")
	}
	winner := campaign.ABTest.Variant(variantID)
	if winner == nil {
		return appErrors.NewVariantNotFound(variantID)
	}

	for _, v := range campaign.ABTest.Variants {
		v.IsWinner = v.ID == variantID
	}
	campaign.ABTest.WinnerTemplateID = winner.TemplateID
	campaign.ABTest.Status = model.ABTestCompleted

	m.logger.Info().
		Int("campaign_id", campaign.ID).
		Str("variant_id", variantID).
		Str("template_id", winner.TemplateID).
		Msg("winner selected")
	return nil
}

// AutoSelectWinner picks a winner by the configured criteria once the test
// duration has elapsed. Manual tests and unfinished tests are left alone.
func (m *Manager) AutoSelectWinner(campaign *model.Campaign) (*model.TemplateVariant, error) {
	test := campaign.ABTest
	if test == nil || test.Status != model.ABTestInProgress {
		return nil, nil
	}
	if test.Criteria == model.CriteriaManual {
		return nil, nil
	}
	deadline := test.StartedAt.Add(time.Duration(test.DurationHours) * time.Hour)
	if m.now().Before(deadline) {
		return nil, nil
	}
	if len(test.Variants) == 0 {
		return nil, appErrors.NewConfigurationError(campaign.ID, "A/B test has no variants")
	}

	ranked := make([]*model.TemplateVariant, len(test.Variants))
	copy(ranked, test.Variants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return m.metric(test.Criteria, ranked[i]) > m.metric(test.Criteria, ranked[j])
	})

	winner := ranked[0]
	if err := m.SelectWinner(campaign, winner.ID); err != nil {
		return nil, err
	}
	return winner, nil
}

// AssignVariant picks the arm a newly enrolled contact belongs to, steering
// actual allocation toward the configured percentages. assigned holds the
// contacts already allocated per variant id. Deterministic: the variant
// furthest below its target share wins.
func (m *Manager) AssignVariant(test *model.ABTest, assigned map[string]int) *model.TemplateVariant {
	if test == nil || len(test.Variants) == 0 {
		return nil
	}

	total := 0
	for _, n := range assigned {
		total += n
	}

	var best *model.TemplateVariant
	bestDeficit := 0.0
	for _, v := range test.Variants {
		target := v.ContactPercentage / 100 * float64(total+1)
		deficit := target - float64(assigned[v.ID])
		if best == nil || deficit > bestDeficit {
			best = v
			bestDeficit = deficit
		}
	}
	return best
}

func (m *Manager) metric(criteria model.WinnerCriteria, v *model.TemplateVariant) float64 {
	if criteria == model.CriteriaPositiveResponseRate {
		return v.PositiveResponseRate
	}
	return v.ResponseRate
}
