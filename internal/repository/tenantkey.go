package repository

import (
	"context"
	"errors"

	"fetchflow/internal/model"

	"gorm.io/gorm"
)

// TenantKeyRepository defines the interface for tenant API key validation
type TenantKeyRepository interface {
	ResolveAPIKey(ctx context.Context, apiKey string) (string, error)
}

type TenantKeyStore struct {
	db *gorm.DB
}

func NewTenantKeyStore(db *gorm.DB) *TenantKeyStore {
	return &TenantKeyStore{db: db}
}

// ResolveAPIKey returns the tenant id owning an active API key, or "" when
// the key is unknown or disabled.
func (r *TenantKeyStore) ResolveAPIKey(ctx context.Context, apiKey string) (string, error) {
	var key model.TenantKey
	err := r.db.WithContext(ctx).
		Where("api_key = ? AND status = 1", apiKey).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return key.TenantID, nil
}
