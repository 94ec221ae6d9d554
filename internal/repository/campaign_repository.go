package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, channel string, status model.CampaignStatus) ([]*model.Campaign, int, error)
	ListActiveIDs() ([]int, error)
	Update(c *model.Campaign) error
	UpdateStatus(campaignID int, status model.CampaignStatus) error
	SetAttentionRequired(campaignID int, required bool) error
	Delete(campaignID int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	window, test, err := marshalCampaignJSON(c)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (name, channel, status, timezone, initial_template_id, sending_window, ab_test, attention_required, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.Name, c.Channel, c.Status, c.Timezone,
		c.InitialTemplateID, window, test, c.AttentionRequired, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, name, channel, status, timezone, initial_template_id, sending_window, ab_test, attention_required, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, err
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, channel string, status model.CampaignStatus) ([]*model.Campaign, int, error) {
	query := `SELECT id, name, channel, status, timezone, initial_template_id, sending_window, ab_test, attention_required, created_at, updated_at FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if channel != "" {
		query += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	countArgs := []interface{}{}
	pos := 1
	if channel != "" {
		countQuery += fmt.Sprintf(" AND channel=$%d", pos)
		countArgs = append(countArgs, channel)
		pos++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", pos)
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) ListActiveIDs() ([]int, error) {
	rows, err := r.DB.Query(`SELECT id FROM campaigns WHERE status=$1 ORDER BY id`, model.CampaignActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	window, test, err := marshalCampaignJSON(c)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaigns
        SET name=$1, channel=$2, status=$3, timezone=$4, initial_template_id=$5,
            sending_window=$6, ab_test=$7, attention_required=$8, updated_at=NOW()
        WHERE id=$9
    `
	_, err = r.DB.Exec(query, c.Name, c.Channel, c.Status, c.Timezone,
		c.InitialTemplateID, window, test, c.AttentionRequired, c.ID)
	return err
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`, status, campaignID)
	return err
}

func (r *CampaignRepository) SetAttentionRequired(campaignID int, required bool) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET attention_required=$1, updated_at=NOW() WHERE id=$2`, required, campaignID)
	return err
}

func (r *CampaignRepository) Delete(campaignID int) error {
	_, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, campaignID)
	return err
}

func marshalCampaignJSON(c *model.Campaign) ([]byte, []byte, error) {
	var window, test []byte
	var err error
	if c.SendingWindow != nil {
		if window, err = json.Marshal(c.SendingWindow); err != nil {
			return nil, nil, err
		}
	}
	if c.ABTest != nil {
		if test, err = json.Marshal(c.ABTest); err != nil {
			return nil, nil, err
		}
	}
	return window, test, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var window, test []byte
	err := row.Scan(&c.ID, &c.Name, &c.Channel, &c.Status, &c.Timezone,
		&c.InitialTemplateID, &window, &test, &c.AttentionRequired, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(window) > 0 {
		c.SendingWindow = &model.TimeWindow{}
		if err := json.Unmarshal(window, c.SendingWindow); err != nil {
			return nil, err
		}
	}
	if len(test) > 0 {
		c.ABTest = &model.ABTest{}
		if err := json.Unmarshal(test, c.ABTest); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
