package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/common/logger"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// ThresholdService is the per-enterprise threshold registry. At most one
// threshold is active per enterprise; activating one deactivates the others
// in the same unit of work.
type ThresholdService struct {
	store repository.Store
	clock func() time.Time
	log   *logger.Logger
}

// NewThresholdService creates a new threshold service
func NewThresholdService(store repository.Store, log *logger.Logger) *ThresholdService {
	return &ThresholdService{store: store, clock: time.Now, log: log}
}

func (s *ThresholdService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func requireDirector(actor Actor) error {
	if actor.Role != repository.RoleDirector {
		return errors.Unauthorized("only DIRECTOR may manage thresholds")
	}
	return nil
}

// Create registers a threshold, optionally making it the active one.
func (s *ThresholdService) Create(ctx context.Context, actor Actor, amount decimal.Decimal, activate bool) (*repository.Threshold, error) {
	if err := requireDirector(actor); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}

	now := s.now()
	th := &repository.Threshold{
		EnterpriseID: actor.EnterpriseID,
		Amount:       amount,
		Active:       activate,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if activate {
			if err := tx.DeactivateThresholds(ctx, actor.EnterpriseID, 0, now); err != nil {
				return err
			}
		}
		return tx.InsertThreshold(ctx, th)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("threshold_id", th.ID).
		Str("enterprise_id", th.EnterpriseID).
		Str("amount", th.Amount.StringFixed(2)).
		Bool("active", th.Active).
		Msg("Threshold created")

	return th, nil
}

// Activate makes a threshold the enterprise's active one.
func (s *ThresholdService) Activate(ctx context.Context, actor Actor, id int64) (*repository.Threshold, error) {
	return s.setActive(ctx, actor, id, true)
}

// Deactivate clears a threshold's active flag. The enterprise then routes
// everything on the default path.
func (s *ThresholdService) Deactivate(ctx context.Context, actor Actor, id int64) (*repository.Threshold, error) {
	return s.setActive(ctx, actor, id, false)
}

func (s *ThresholdService) setActive(ctx context.Context, actor Actor, id int64, active bool) (*repository.Threshold, error) {
	if err := requireDirector(actor); err != nil {
		return nil, err
	}

	now := s.now()
	var th *repository.Threshold
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		if th, err = tx.LockThreshold(ctx, id); err != nil {
			return err
		}
		if th.EnterpriseID != actor.EnterpriseID {
			return errors.NotFound("threshold", id)
		}
		if th.Active == active {
			return nil
		}
		if active {
			if err := tx.DeactivateThresholds(ctx, th.EnterpriseID, th.ID, now); err != nil {
				return err
			}
		}
		if err := tx.SetThresholdActive(ctx, th.ID, active, now); err != nil {
			return err
		}
		th.Active = active
		th.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("threshold_id", th.ID).
		Str("enterprise_id", th.EnterpriseID).
		Bool("active", th.Active).
		Msg("Threshold active flag set")

	return th, nil
}

// Active returns the actor's enterprise active threshold.
func (s *ThresholdService) Active(ctx context.Context, actor Actor) (*repository.Threshold, error) {
	var th *repository.Threshold
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		th, err = tx.ActiveThreshold(ctx, actor.EnterpriseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if th == nil {
		return nil, errors.NotFound("active threshold for enterprise", actor.EnterpriseID)
	}
	return th, nil
}
