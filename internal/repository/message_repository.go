package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/outreach-engine/internal/model"
)

type MessageRepositoryInterface interface {
	Create(m *model.Message) error
	LatestInbound(campaignID, contactID int) (*model.Message, error)
	ListByContact(campaignID, contactID int) ([]*model.Message, error)
}

// MessageRepository is an append-only record of inbound and outbound
// messages per contact per campaign.
type MessageRepository struct {
	DB *sql.DB
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)

func (r *MessageRepository) Create(m *model.Message) error {
	m.CreatedAt = time.Now()
	if m.SentAt.IsZero() {
		m.SentAt = m.CreatedAt
	}
	query := `
        INSERT INTO messages (campaign_id, contact_id, direction, node_id, template_id, body, response_type, sent_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(query, m.CampaignID, m.ContactID, m.Direction, m.NodeID, m.TemplateID,
		m.Body, nullableString(string(m.ResponseType)), m.SentAt, m.CreatedAt).Scan(&m.ID)
}

func (r *MessageRepository) LatestInbound(campaignID, contactID int) (*model.Message, error) {
	query := `
        SELECT id, campaign_id, contact_id, direction, node_id, template_id, body, response_type, sent_at, created_at
        FROM messages
        WHERE campaign_id=$1 AND contact_id=$2 AND direction=$3
        ORDER BY sent_at DESC
        LIMIT 1
    `
	m, err := scanMessage(r.DB.QueryRow(query, campaignID, contactID, model.MessageInbound))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepository) ListByContact(campaignID, contactID int) ([]*model.Message, error) {
	query := `
        SELECT id, campaign_id, contact_id, direction, node_id, template_id, body, response_type, sent_at, created_at
        FROM messages
        WHERE campaign_id=$1 AND contact_id=$2
        ORDER BY sent_at
    `
	rows, err := r.DB.Query(query, campaignID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var responseType sql.NullString
	err := row.Scan(&m.ID, &m.CampaignID, &m.ContactID, &m.Direction, &m.NodeID,
		&m.TemplateID, &m.Body, &responseType, &m.SentAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if responseType.Valid {
		m.ResponseType = model.ResponseType(responseType.String)
	}
	return &m, nil
}
