package database

import (
	"database/sql"
	"fmt"

	"github.com/smarttransit/taxi-booking-backend/internal/models"
)

// EmailTemplateRepository reads notification templates
type EmailTemplateRepository struct {
	db DB
}

// NewEmailTemplateRepository creates a new EmailTemplateRepository
func NewEmailTemplateRepository(db DB) *EmailTemplateRepository {
	return &EmailTemplateRepository{db: db}
}

// GetActiveByCode returns the active template for code, nil if there is none
func (r *EmailTemplateRepository) GetActiveByCode(code string) (*models.EmailTemplate, error) {
	var template models.EmailTemplate
	query := `
		SELECT code, subject, body, is_html, is_active
		FROM email_templates
		WHERE code = $1 AND is_active = true
	`

	err := r.db.Get(&template, query, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email template: %w", err)
	}

	return &template, nil
}
