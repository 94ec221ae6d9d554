package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type ProgressRepositoryInterface interface {
	Create(p *model.ContactProgress) error
	Get(campaignID, contactID int) (*model.ContactProgress, error)
	ListByCampaign(campaignID int) ([]*model.ContactProgress, error)
	Update(p *model.ContactProgress) error
	Delete(campaignID, contactID int) error
	DeleteByCampaign(campaignID int) error
}

type ProgressRepository struct {
	DB *sql.DB
}

var _ ProgressRepositoryInterface = (*ProgressRepository)(nil)

const progressColumns = `campaign_id, contact_id, state, current_node_id, pending_node_id, variant_id, enrolled_at, last_sent_at, last_response_at, last_response_type, last_inbound_body`

func (r *ProgressRepository) Create(p *model.ContactProgress) error {
	if p.EnrolledAt.IsZero() {
		p.EnrolledAt = time.Now()
	}
	if p.State == "" {
		p.State = model.StateEnrolled
	}
	query := `
        INSERT INTO contact_progress (` + progressColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
    `
	_, err := r.DB.Exec(query, p.CampaignID, p.ContactID, p.State, p.CurrentNodeID,
		p.PendingNodeID, p.VariantID, p.EnrolledAt, p.LastSentAt, p.LastResponseAt,
		nullableString(string(p.LastResponseType)), p.LastInboundBody)
	return err
}

func (r *ProgressRepository) Get(campaignID, contactID int) (*model.ContactProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM contact_progress WHERE campaign_id=$1 AND contact_id=$2`
	p, err := scanProgress(r.DB.QueryRow(query, campaignID, contactID))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewContactNotFound(campaignID, contactID)
	}
	return p, err
}

func (r *ProgressRepository) ListByCampaign(campaignID int) ([]*model.ContactProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM contact_progress WHERE campaign_id=$1 ORDER BY contact_id`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.ContactProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProgressRepository) Update(p *model.ContactProgress) error {
	query := `
        UPDATE contact_progress
        SET state=$1, current_node_id=$2, pending_node_id=$3, variant_id=$4,
            last_sent_at=$5, last_response_at=$6, last_response_type=$7, last_inbound_body=$8
        WHERE campaign_id=$9 AND contact_id=$10
    `
	_, err := r.DB.Exec(query, p.State, p.CurrentNodeID, p.PendingNodeID, p.VariantID,
		p.LastSentAt, p.LastResponseAt, nullableString(string(p.LastResponseType)),
		p.LastInboundBody, p.CampaignID, p.ContactID)
	return err
}

func (r *ProgressRepository) Delete(campaignID, contactID int) error {
	_, err := r.DB.Exec(`DELETE FROM contact_progress WHERE campaign_id=$1 AND contact_id=$2`, campaignID, contactID)
	return err
}

func (r *ProgressRepository) DeleteByCampaign(campaignID int) error {
	_, err := r.DB.Exec(`DELETE FROM contact_progress WHERE campaign_id=$1`, campaignID)
	return err
}

func scanProgress(row rowScanner) (*model.ContactProgress, error) {
	var p model.ContactProgress
	var responseType sql.NullString
	err := row.Scan(&p.CampaignID, &p.ContactID, &p.State, &p.CurrentNodeID,
		&p.PendingNodeID, &p.VariantID, &p.EnrolledAt, &p.LastSentAt,
		&p.LastResponseAt, &responseType, &p.LastInboundBody)
	if err != nil {
		return nil, err
	}
	if responseType.Valid {
		p.LastResponseType = model.ResponseType(responseType.String)
	}
	return &p, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
