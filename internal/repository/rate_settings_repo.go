package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/l2laihub/love2learn-tutoring-app-sub002/internal/models"
)

type RateSettingsRepository struct {
	db DBTX
}

func NewRateSettingsRepository(db DBTX) *RateSettingsRepository {
	return &RateSettingsRepository{db: db}
}

func (r *RateSettingsRepository) GetByTutorID(ctx context.Context, tutorID int64) (*models.TutorRateSettings, error) {
	query := `
		SELECT tutor_id, default_rate, default_base_min, subject_rates, combined_session_rate, updated_at
		FROM tutor_rate_settings
		WHERE tutor_id = $1
	`
	var settings models.TutorRateSettings
	var subjectRates []byte
	err := r.db.QueryRow(ctx, query, tutorID).Scan(
		&settings.TutorID,
		&settings.DefaultRate,
		&settings.DefaultBaseMin,
		&subjectRates,
		&settings.CombinedSessionRate,
		&settings.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(subjectRates) > 0 {
		if err := json.Unmarshal(subjectRates, &settings.SubjectRates); err != nil {
			return nil, fmt.Errorf("decode subject_rates for tutor %d: %w", tutorID, err)
		}
	}
	return &settings, nil
}

func (r *RateSettingsRepository) Upsert(ctx context.Context, settings *models.TutorRateSettings) (*models.TutorRateSettings, error) {
	subjectRates, err := json.Marshal(settings.SubjectRates)
	if err != nil {
		return nil, fmt.Errorf("encode subject_rates: %w", err)
	}

	query := `
		INSERT INTO tutor_rate_settings (tutor_id, default_rate, default_base_min, subject_rates, combined_session_rate)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tutor_id) DO UPDATE
		SET default_rate = EXCLUDED.default_rate,
		    default_base_min = EXCLUDED.default_base_min,
		    subject_rates = EXCLUDED.subject_rates,
		    combined_session_rate = EXCLUDED.combined_session_rate,
		    updated_at = NOW()
		RETURNING tutor_id, default_rate, default_base_min, subject_rates, combined_session_rate, updated_at
	`
	var out models.TutorRateSettings
	var rawRates []byte
	err = r.db.QueryRow(ctx, query,
		settings.TutorID,
		settings.DefaultRate,
		settings.DefaultBaseMin,
		subjectRates,
		settings.CombinedSessionRate,
	).Scan(
		&out.TutorID,
		&out.DefaultRate,
		&out.DefaultBaseMin,
		&rawRates,
		&out.CombinedSessionRate,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawRates) > 0 {
		if err := json.Unmarshal(rawRates, &out.SubjectRates); err != nil {
			return nil, fmt.Errorf("decode subject_rates for tutor %d: %w", out.TutorID, err)
		}
	}
	return &out, nil
}
