package repository

import (
	"context"

	"github.com/spec-kit/support-agent/internal/domain"
)

// StoreRepository reads storefront records.
type StoreRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Store, error)
}

// SettingsRepository reads per-store policy. Values are never cached.
type SettingsRepository interface {
	// GetPolicy returns DefaultStoreSettings when the store has no settings row.
	GetPolicy(ctx context.Context, storeID string) (domain.StoreSettings, error)
}

type storeRepository struct {
	db DB
}

// NewStoreRepository instantiates repository.
func NewStoreRepository(db DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	const query = `SELECT id, name, COALESCE(support_email, '') FROM stores WHERE id=$1`
	var store domain.Store
	if err := r.db.QueryRow(ctx, query, id).Scan(&store.ID, &store.Name, &store.SupportEmail); err != nil {
		return nil, err
	}
	return &store, nil
}

type settingsRepository struct {
	db DB
}

// NewSettingsRepository instantiates repository.
func NewSettingsRepository(db DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetPolicy(ctx context.Context, storeID string) (domain.StoreSettings, error) {
	const query = `
        SELECT store_id, return_window_days, cancel_allowed, tone, escalation_threshold
        FROM store_settings WHERE store_id=$1`
	settings := domain.DefaultStoreSettings(storeID)
	err := r.db.QueryRow(ctx, query, storeID).Scan(
		&settings.StoreID,
		&settings.ReturnWindowDays,
		&settings.CancelAllowed,
		&settings.Tone,
		&settings.EscalationThreshold,
	)
	if IsNotFound(err) {
		return domain.DefaultStoreSettings(storeID), nil
	}
	if err != nil {
		return domain.StoreSettings{}, err
	}
	return settings, nil
}
