package repository

import (
	"database/sql"

	"github.com/unclebandit/outreach-engine/internal/model"
)

type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	ListAll() ([]model.Contact, error)
}

type ContactRepository struct {
	DB *sql.DB
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)

func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `
        SELECT id, phone, email, first_name, last_name, company
        FROM contacts
        WHERE id = $1
    `
	var c model.Contact
	err := r.DB.QueryRow(query, id).Scan(&c.ID, &c.Phone, &c.Email, &c.FirstName, &c.LastName, &c.Company)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepository) ListAll() ([]model.Contact, error) {
	query := `
        SELECT id, phone, email, first_name, last_name, company
        FROM contacts
    `
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Phone, &c.Email, &c.FirstName, &c.LastName, &c.Company); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
