package model

type TenantKey struct {
	ID       uint64 `gorm:"primaryKey"`
	TenantID string `gorm:"size:64;not null;index"`
	APIKey   string `gorm:"size:64;not null;uniqueIndex"`
	Status   int    `gorm:"default:1"`
}
