package appErrors

import "fmt"

// ConfigurationError marks an invalid campaign setup discovered either at
// edit time (rejected mutation) or at evaluation time (dangling reference in
// a graph that should have been validated). Fatal only to the affected
// campaign's evaluation.
type ConfigurationError struct {
	CampaignID int
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("campaign %d configuration error: %s", e.CampaignID, e.Reason)
}

func NewConfigurationError(campaignID int, format string, args ...any) error {
	return &ConfigurationError{CampaignID: campaignID, Reason: fmt.Sprintf(format, args...)}
}

// SchedulingError means no valid send day was found within the bounded search
// window. The affected contact is retried on the next tick.
type SchedulingError struct {
	Reason string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling error: %s", e.Reason)
}

func NewSchedulingError(format string, args ...any) error {
	return &SchedulingError{Reason: fmt.Sprintf(format, args...)}
}

// DispatchError is reported by the external transport against a send
// decision. The engine only marks the contact eligible for re-evaluation;
// retry policy belongs to the transport.
type DispatchError struct {
	IdempotencyKey string
	Reason         string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s failed: %s", e.IdempotencyKey, e.Reason)
}

func NewDispatchError(key, reason string) error {
	return &DispatchError{IdempotencyKey: key, Reason: reason}
}

type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrContactNotFound struct {
	CampaignID int
	ContactID  int
}

func (e *ErrContactNotFound) Error() string {
	return fmt.Sprintf("contact %d not enrolled in campaign %d", e.ContactID, e.CampaignID)
}

func NewContactNotFound(campaignID, contactID int) error {
	return &ErrContactNotFound{CampaignID: campaignID, ContactID: contactID}
}

type ErrVariantNotFound struct {
	VariantID string
}

func (e *ErrVariantNotFound) Error() string {
	return fmt.Sprintf("variant %s not found", e.VariantID)
}

func NewVariantNotFound(id string) error {
	return &ErrVariantNotFound{VariantID: id}
}
