package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// List identifies which work queue a fill error belongs to.
type List string

const (
	ListFill     List = "fill"
	ListOutbound List = "outbound"
	ListAdhoc    List = "adhoc"
)

// FillError is a persisted resolution failure awaiting retry. One active row
// exists per (crm_type, crm_id, crm_order, list); repeated failures update
// the row in place. The Ready flag gates whether the next sweep retries it —
// an external actor flips it after fixing the underlying cause.
type FillError struct {
	ID        uint   `gorm:"primaryKey"`
	CRMType   string `gorm:"column:crm_type;size:8;uniqueIndex:ux_fill_error"`
	CRMID     string `gorm:"column:crm_id;size:32;uniqueIndex:ux_fill_error"`
	CRMOrder  string `gorm:"column:crm_order;size:32;uniqueIndex:ux_fill_error"`
	List      List   `gorm:"column:list;size:16;uniqueIndex:ux_fill_error"`
	Reason    string `gorm:"column:reason;size:255"`
	FailCount int    `gorm:"column:fail_count"`
	Ready     bool   `gorm:"column:ready"`
	RxNumber  string `gorm:"column:rx_number;size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the legacy table name.
func (FillError) TableName() string { return "pharmacy_fill_error" }

// FillErrorStore persists fill errors.
type FillErrorStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewFillErrorStore creates a fill error store.
func NewFillErrorStore(db *gorm.DB, logger *zap.Logger) *FillErrorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FillErrorStore{db: db, logger: logger}
}

// Upsert records a failure. The first failure for a key creates a row with
// fail_count 1; subsequent failures increment fail_count, overwrite the
// reason, and clear the ready flag.
func (s *FillErrorStore) Upsert(ctx context.Context, crmType, crmID, crmOrder string, list List, reason string) error {
	var existing FillError
	err := s.db.WithContext(ctx).
		Where("crm_type = ? AND crm_id = ? AND crm_order = ? AND list = ?", crmType, crmID, crmOrder, list).
		First(&existing).Error

	switch {
	case err == nil:
		updates := map[string]interface{}{
			"fail_count": gorm.Expr("fail_count + 1"),
			"reason":     reason,
			"ready":      false,
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("update fill error: %w", err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec := FillError{
			CRMType:   crmType,
			CRMID:     crmID,
			CRMOrder:  crmOrder,
			List:      list,
			Reason:    reason,
			FailCount: 1,
		}
		if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return fmt.Errorf("create fill error: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("lookup fill error: %w", err)
	}
}

// Delete removes the error row for a key after a successful resolution.
func (s *FillErrorStore) Delete(ctx context.Context, crmType, crmID, crmOrder string, list List) error {
	err := s.db.WithContext(ctx).
		Where("crm_type = ? AND crm_id = ? AND crm_order = ? AND list = ?", crmType, crmID, crmOrder, list).
		Delete(&FillError{}).Error
	if err != nil {
		return fmt.Errorf("delete fill error: %w", err)
	}
	return nil
}

// ListReady returns the rows on a list whose ready flag is set.
func (s *FillErrorStore) ListReady(ctx context.Context, list List) ([]FillError, error) {
	var rows []FillError
	err := s.db.WithContext(ctx).
		Where("list = ? AND ready = ?", list, true).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list ready fill errors: %w", err)
	}
	return rows, nil
}

// All returns every fill error, newest first, for the admin API.
func (s *FillErrorStore) All(ctx context.Context, limit int) ([]FillError, error) {
	var rows []FillError
	q := s.db.WithContext(ctx).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list fill errors: %w", err)
	}
	return rows, nil
}

// Get returns one fill error by id.
func (s *FillErrorStore) Get(ctx context.Context, id uint) (*FillError, error) {
	var row FillError
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fill error: %w", err)
	}
	return &row, nil
}

// MarkReady sets the ready flag so the next sweep retries the row.
func (s *FillErrorStore) MarkReady(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&FillError{}).Where("id = ?", id).Update("ready", true)
	if res.Error != nil {
		return fmt.Errorf("mark ready: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Remove deletes one fill error by id, for the admin API.
func (s *FillErrorStore) Remove(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&FillError{}, id)
	if res.Error != nil {
		return fmt.Errorf("remove fill error: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
