package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atelierhq/marketplace/shipping"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManagerOptions contains the configuration for the order Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Manager handles the database operations relating to Orders
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for orders
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Order{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize order.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// Create inserts a new order with its economics already frozen
func (m *Manager) Create(ctx context.Context, o *Order) error {
	result := m.DB.WithContext(ctx).Create(o)
	if result.Error != nil {
		m.Logger.Error("Unable to create new order in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create order")
	}
	return nil
}

// GetByID will try to return the order in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Order, error) {
	var o Order
	result := m.DB.WithContext(ctx).First(&o, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get order by id")
	}
	return &o, nil
}

// ListOption contains the conditions for listing orders
type ListOption struct {
	BuyerID      string
	SellerID     string
	Status       Status
	ReturnStatus ReturnStatus
	Before       time.Time
	Limit        int
}

// List returns orders matching the conditions, most recent first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Order, error) {
	baseQuery := m.DB.WithContext(ctx).Order("created_at desc")
	if len(opt.BuyerID) > 0 {
		baseQuery = baseQuery.Where("buyer_id = ?", opt.BuyerID)
	}
	if len(opt.SellerID) > 0 {
		baseQuery = baseQuery.Where("seller_id = ?", opt.SellerID)
	}
	if len(opt.Status) > 0 {
		baseQuery = baseQuery.Where("status = ?", opt.Status)
	}
	if len(opt.ReturnStatus) > 0 {
		baseQuery = baseQuery.Where("return_status = ?", opt.ReturnStatus)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("created_at < ?", opt.Before)
	}
	results := make([]Order, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// SaveTracking persists the tracking fields of a purchased label without
// touching the status. Used when the label purchase succeeded but the
// shipped transition could not commit, so a later mark-shipped only needs
// to retry the status flip
func (m *Manager) SaveTracking(ctx context.Context, id string, label *shipping.Label) error {
	result := m.DB.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"carrier":         label.Carrier,
			"tracking_number": label.TrackingNumber,
			"tracking_url":    label.TrackingURL,
			"label_url":       label.LabelURL,
		})
	if result.Error != nil {
		m.Logger.Error("Unable to persist tracking data",
			zap.String("OrderID", id),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save tracking data")
	}
	return nil
}

// SaveTransfer records the payment reference of the released seller earnings
func (m *Manager) SaveTransfer(ctx context.Context, id string, transferRef string) error {
	result := m.DB.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", id).
		Update("transfer_ref", transferRef)
	if result.Error != nil {
		m.Logger.Error("Unable to persist transfer reference",
			zap.String("OrderID", id),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save transfer reference")
	}
	return nil
}

// SaveRefund records the payment reference of an initiated refund
func (m *Manager) SaveRefund(ctx context.Context, id string, refundRef string) error {
	result := m.DB.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", id).
		Update("refund_ref", refundRef)
	if result.Error != nil {
		m.Logger.Error("Unable to persist refund reference",
			zap.String("OrderID", id),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save refund reference")
	}
	return nil
}

// LambdaUpdateFunc is used when transaction is required for update. Return
// value determines if the Manager should commit the changes. Note that
// current and desired may be nil if no Order with given id was found
type LambdaUpdateFunc func(current *Order, desired *Order) (shouldSave bool, returnValue interface{})

// LambdaResult is the result of a LambdaUpdate invocation
type LambdaResult struct {
	Order       *Order
	ReturnValue interface{}
	TxError     error
}

// LambdaUpdate will perform a transactional update based on the lambda
// function, locking the selected row with FOR UPDATE so concurrent
// transitions are resolved against the stored state, not a stale read
func (m *Manager) LambdaUpdate(ctx context.Context, id string, lambda LambdaUpdateFunc) LambdaResult {
	var lambdaResult LambdaResult
	var saved bool
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Order
		lookupRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "id = ?", id)
		if lookupRes.Error == nil {
			desired := current
			shouldSave, returnValue := lambda(&current, &desired)
			lambdaResult.ReturnValue = returnValue
			if shouldSave {
				if saveRes := tx.Save(&desired); saveRes.Error != nil {
					return saveRes.Error
				}
				lambdaResult.Order = &desired
				saved = true
			}
			return nil
		} else if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			_, returnValue := lambda(nil, nil)
			lambdaResult.ReturnValue = returnValue
			return nil
		}
		return lookupRes.Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		lambdaResult.TxError = err
		return lambdaResult
	}
	if !saved {
		lambdaResult.Order = nil
	}
	return lambdaResult
}
