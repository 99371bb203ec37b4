package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Manager handles the database operations relating to Listings
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for listings
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Listing{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize listing.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

func (m *Manager) Create(ctx context.Context, l *Listing) error {
	result := m.db.WithContext(ctx).Create(l)
	if result.Error != nil {
		m.logger.Error("Unable to create new listing in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create listing")
	}
	return nil
}

// GetByID will try to return the listing in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Listing, error) {
	var l Listing
	result := m.db.WithContext(ctx).First(&l, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get listing by id")
	}
	return &l, nil
}

// ListBySeller returns the seller's listings, most recent first
func (m *Manager) ListBySeller(ctx context.Context, sellerID string) ([]Listing, error) {
	results := make([]Listing, 0, 1)
	result := m.db.WithContext(ctx).
		Order("created_at desc").
		Find(&results, "seller_id = ?", sellerID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// CountActive returns the number of the seller's currently active listings,
// the figure that quota enforcement compares against
func (m *Manager) CountActive(ctx context.Context, sellerID string) (int, error) {
	var count int64
	result := m.db.WithContext(ctx).
		Model(&Listing{}).
		Where("seller_id = ?", sellerID).
		Where("status = ?", StatusActive).
		Count(&count)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return 0, result.Error
	}
	return int(count), nil
}

// admitActivation decides whether the locked listing row may flip to
// active given the active count observed in the same transaction. A
// non-empty reason means the quota blocked it
func admitActivation(l *Listing, activeCount, maxListings int) (shouldSave bool, reason string) {
	if l.Status == StatusActive {
		return false, ""
	}
	if activeCount >= maxListings {
		return false, fmt.Sprintf("Listing quota reached (%d of %d)", activeCount, maxListings)
	}
	return true, ""
}

// Activate flips the listing to active, recounting the seller's active
// listings inside one serializable transaction with the row locked so two
// concurrent activations cannot both slip under the quota
func (m *Manager) Activate(ctx context.Context, id string, maxListings int) (*Listing, string, error) {
	var updated *Listing
	var denyReason string
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l Listing
		lookupRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&l, "id = ?", id)
		if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		if lookupRes.Error != nil {
			return lookupRes.Error
		}
		var activeCount int64
		countRes := tx.Model(&Listing{}).
			Where("seller_id = ?", l.SellerID).
			Where("status = ?", StatusActive).
			Count(&activeCount)
		if countRes.Error != nil {
			return countRes.Error
		}
		shouldSave, reason := admitActivation(&l, int(activeCount), maxListings)
		denyReason = reason
		if !shouldSave {
			if len(reason) == 0 {
				// Already active, idempotent
				updated = &l
			}
			return nil
		}
		l.Status = StatusActive
		if saveRes := tx.Save(&l); saveRes.Error != nil {
			return saveRes.Error
		}
		updated = &l
		return nil
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		m.logger.Error("Database returned error",
			zap.Error(err),
		)
		return nil, "", extErrors.Wrap(err, "Cannot activate listing")
	}
	return updated, denyReason, nil
}

// SetStatus flips the listing's visibility
func (m *Manager) SetStatus(ctx context.Context, id string, status Status) (*Listing, error) {
	l, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, nil
	}
	l.Status = status
	result := m.db.WithContext(ctx).Save(l)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot update listing status")
	}
	return l, nil
}
