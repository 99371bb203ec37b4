package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManagerOptions contains the configuration for the subscription Manager
type ManagerOptions struct {
	DB             *gorm.DB
	Logger         *zap.Logger
	PathToPlanJSON string
}

// Manager handles the database operations relating to Plans and Subscriptions
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions, seeding the plan
// catalog from the JSON file when one is configured
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Plan{}, &Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize subscription.Manager")
	}

	m := &Manager{
		ManagerOptions: option,
	}

	if len(option.PathToPlanJSON) > 0 {
		plans, err := loadPlansFromFile(option.PathToPlanJSON)
		if err != nil {
			return nil, extErrors.Wrap(err, "Cannot populate defined Plans")
		}
		if err := m.seedPlans(context.Background(), plans); err != nil {
			return nil, extErrors.Wrap(err, "Cannot seed Plans in database")
		}
	}

	return m, nil
}

// seedPlans inserts catalog entries that don't exist yet, keyed by name.
// Existing rows are left alone so admin edits survive restarts
func (m *Manager) seedPlans(ctx context.Context, plans []Plan) error {
	for _, p := range plans {
		if len(p.ID) == 0 {
			p.ID = uuid.New().String()
		}
		result := m.DB.WithContext(ctx).
			Where("name = ?", p.Name).
			FirstOrCreate(&Plan{}, p)
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

// ListPlans returns the catalog ordered for display
func (m *Manager) ListPlans(ctx context.Context, includeInactive bool) ([]Plan, error) {
	baseQuery := m.DB.WithContext(ctx).Order("display_order asc")
	if !includeInactive {
		baseQuery = baseQuery.Where("active = ?", true)
	}
	results := make([]Plan, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// GetPlan will try to return the plan in the database by id
func (m *Manager) GetPlan(ctx context.Context, id string) (*Plan, error) {
	var plan Plan
	result := m.DB.WithContext(ctx).First(&plan, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get plan by id")
	}
	return &plan, nil
}

// SavePlan creates or updates a catalog entry (admin CRUD)
func (m *Manager) SavePlan(ctx context.Context, plan *Plan) error {
	if len(plan.ID) == 0 {
		plan.ID = uuid.New().String()
	}
	result := m.DB.WithContext(ctx).Save(plan)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save plan")
	}
	return nil
}

// Create inserts a new subscription row. Prior rows for the user are kept
// as history, never overwritten
func (m *Manager) Create(ctx context.Context, sub *Subscription) error {
	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return nil
}

// GetByID will try to return the subscription in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	result := m.DB.WithContext(ctx).First(&sub, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by id")
	}
	return &sub, nil
}

// Current returns the user's current subscription (most recent by start
// date), lazily resolved against the clock. Expiry and renewal computed at
// read time are persisted best-effort so subsequent reads agree
func (m *Manager) Current(ctx context.Context, userID string) (*Subscription, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("userID is required")
	}
	var sub Subscription
	result := m.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date desc").
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get current subscription")
	}

	if sub.Resolve(time.Now()) {
		if saveRes := m.DB.WithContext(ctx).Save(&sub); saveRes.Error != nil {
			// fail through: the resolved value is still returned, the next
			// read will retry the persistence
			m.Logger.Error("Unable to persist lazily resolved subscription",
				zap.String("SubscriptionID", sub.ID),
				zap.Error(saveRes.Error),
			)
		}
	}

	return &sub, nil
}

// ListOption contains the conditions for listing subscriptions
type ListOption struct {
	UserID string
	Before time.Time
	Limit  int
}

// List returns subscription history, most recent first. Rows are resolved
// against the clock before returning so a date-expired subscription is
// never reported active
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Subscription, error) {
	baseQuery := m.DB.WithContext(ctx).Order("start_date desc")
	if len(opt.UserID) > 0 {
		baseQuery = baseQuery.Where("user_id = ?", opt.UserID)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("start_date < ?", opt.Before)
	}
	results := make([]Subscription, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	for _, i := range resolveAll(results, time.Now()) {
		if saveRes := m.DB.WithContext(ctx).Save(&results[i]); saveRes.Error != nil {
			// fail through: the resolved value is still returned, the next
			// read will retry the persistence
			m.Logger.Error("Unable to persist lazily resolved subscription",
				zap.String("SubscriptionID", results[i].ID),
				zap.Error(saveRes.Error),
			)
		}
	}
	return results, nil
}

// QuotaFor returns the listing quota granted by the user's current
// subscription. No subscription, or one without access, grants zero quota
func (m *Manager) QuotaFor(ctx context.Context, userID string, now time.Time) (int, bool, error) {
	sub, err := m.Current(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if sub == nil || !sub.HasAccess(now) {
		return 0, false, nil
	}
	return sub.MaxListings, true, nil
}

// LambdaUpdateFunc is used when transaction is required for update. Return
// value determines if the Manager should commit the changes. Note that
// current and desired may be nil if no Subscription with given id was found
type LambdaUpdateFunc func(current *Subscription, desired *Subscription) (shouldSave bool, returnValue interface{})

// LambdaResult is the result of a LambdaUpdate invocation
type LambdaResult struct {
	Subscription *Subscription
	ReturnValue  interface{}
	TxError      error
}

// LambdaUpdate will perform a transactional update based on the lambda
// function, locking the selected row with FOR UPDATE so concurrent
// transitions are resolved against the stored state, not a stale read
func (m *Manager) LambdaUpdate(ctx context.Context, id string, lambda LambdaUpdateFunc) LambdaResult {
	var lambdaResult LambdaResult
	var saved bool
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Subscription
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
				lambdaResult.Subscription = &desired
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
		lambdaResult.Subscription = nil
	}
	return lambdaResult
}
