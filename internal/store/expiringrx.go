package store

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meridianrx/fillengine/internal/resolver"
)

// ExpiringRx flags a matched prescription inside the 30-day pre-expiration
// window. The notification cron advances Step as each SMS/cancellation action
// completes. Unique per (crm_type, crm_id, crm_order, crm_purchase_id);
// re-insertion replaces the existing row.
type ExpiringRx struct {
	ID         uint   `gorm:"primaryKey"`
	CRMType    string `gorm:"column:crm_type;size:8;uniqueIndex:ux_expiring_rx"`
	CRMID      string `gorm:"column:crm_id;size:32;uniqueIndex:ux_expiring_rx"`
	CRMOrder   string `gorm:"column:crm_order;size:32;uniqueIndex:ux_expiring_rx"`
	PurchaseID string `gorm:"column:crm_purchase_id;size:32;uniqueIndex:ux_expiring_rx"`
	RxID       int    `gorm:"column:rx_id"`
	Step       int    `gorm:"column:step"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName keeps the legacy table name.
func (ExpiringRx) TableName() string { return "pharmacy_rx_expiring" }

// ExpiringRxStore persists expiring-prescription flags.
type ExpiringRxStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewExpiringRxStore creates an expiring-prescription store.
func NewExpiringRxStore(db *gorm.DB, logger *zap.Logger) *ExpiringRxStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiringRxStore{db: db, logger: logger}
}

// Replace inserts the flag, overwriting any existing row for the same
// (crm_type, crm_id, crm_order, crm_purchase_id) and resetting its step.
func (s *ExpiringRxStore) Replace(ctx context.Context, flag resolver.ExpiringFlag) error {
	row := ExpiringRx{
		CRMType:    flag.CRMType,
		CRMID:      flag.CRMID,
		CRMOrder:   flag.CRMOrder,
		PurchaseID: flag.PurchaseID,
		RxID:       flag.RxID,
		Step:       0,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "crm_type"}, {Name: "crm_id"}, {Name: "crm_order"}, {Name: "crm_purchase_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"rx_id", "step", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("replace expiring rx: %w", err)
	}
	return nil
}

// ListAtStep returns all flags currently at a step, oldest first.
func (s *ExpiringRxStore) ListAtStep(ctx context.Context, step int) ([]ExpiringRx, error) {
	var rows []ExpiringRx
	err := s.db.WithContext(ctx).
		Where("step = ?", step).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expiring rx: %w", err)
	}
	return rows, nil
}

// Advance moves one flag to the next step.
func (s *ExpiringRxStore) Advance(ctx context.Context, id uint, step int) error {
	res := s.db.WithContext(ctx).Model(&ExpiringRx{}).Where("id = ?", id).Update("step", step)
	if res.Error != nil {
		return fmt.Errorf("advance expiring rx: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountingFlagStore decorates a flag store, counting each recorded flag.
type CountingFlagStore struct {
	Store   resolver.ExpiringFlagStore
	Counter prometheus.Counter
}

// Replace records the flag and bumps the counter.
func (s CountingFlagStore) Replace(ctx context.Context, flag resolver.ExpiringFlag) error {
	if err := s.Store.Replace(ctx, flag); err != nil {
		return err
	}
	s.Counter.Inc()
	return nil
}

// Remove deletes one flag once its notification sequence has finished.
func (s *ExpiringRxStore) Remove(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&ExpiringRx{}, id).Error; err != nil {
		return fmt.Errorf("remove expiring rx: %w", err)
	}
	return nil
}
