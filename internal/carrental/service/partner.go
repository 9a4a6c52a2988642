package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
)

// PartnerOptions are the directory defaults taken from configuration.
type PartnerOptions struct {
	DefaultCommissionRate decimal.Decimal
	RegistrationFee       decimal.Decimal
	// AutoSyncOnApprove grants or revokes isPartner whenever Review changes
	// the status.
	AutoSyncOnApprove bool
}

// PartnerService manages partner applications and the isPartner privilege.
type PartnerService struct {
	repo repository.Repository
	opts PartnerOptions
	log  logrus.FieldLogger
}

// NewPartnerService creates a new partner service
func NewPartnerService(repo repository.Repository, opts PartnerOptions, log logrus.FieldLogger) *PartnerService {
	return &PartnerService{repo: repo, opts: opts, log: log}
}

// Apply files a partner application for the actor. A rejected applicant may
// apply again.
func (s *PartnerService) Apply(ctx context.Context, actor models.Actor) (*models.Partner, error) {
	existing, err := s.repo.GetPartnerByUserID(ctx, actor.UserID)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		p := &models.Partner{
			UserID:          actor.UserID,
			Status:          models.PartnerPending,
			CommissionRate:  s.opts.DefaultCommissionRate,
			RegistrationFee: s.opts.RegistrationFee,
		}
		if err := s.repo.CreatePartner(ctx, p); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"partner_id": p.ID, "actor_id": actor.UserID}).Info("partner application filed")
		return p, nil
	case err != nil:
		return nil, err
	}

	p, err := s.repo.UpdatePartner(ctx, existing.ID, func(p *models.Partner) error {
		if p.Status != models.PartnerRejected {
			return apperr.Conflict("user %d already has a %s partner application", actor.UserID, p.Status)
		}
		p.Status = models.PartnerPending
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"partner_id": p.ID, "actor_id": actor.UserID}).Info("partner application re-filed")
	return p, nil
}

// Review approves or rejects an application. isPartner is left alone unless
// AutoSyncOnApprove is set.
func (s *PartnerService) Review(ctx context.Context, actor models.Actor, partnerID int64, status models.PartnerStatus) (*models.Partner, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if status != models.PartnerApproved && status != models.PartnerRejected {
		return nil, apperr.Validation("status", "must be approved or rejected")
	}

	p, err := s.repo.UpdatePartner(ctx, partnerID, func(p *models.Partner) error {
		p.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"partner_id": p.ID, "status": status, "actor_id": actor.UserID}).Info("partner reviewed")

	if s.opts.AutoSyncOnApprove {
		if err := s.repo.SetUserPartnerFlag(ctx, p.UserID, p.Status == models.PartnerApproved); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SyncPrivileges sets the user's isPartner flag from the partner status.
func (s *PartnerService) SyncPrivileges(ctx context.Context, actor models.Actor, partnerID int64) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	p, err := s.repo.GetPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	granted := p.Status == models.PartnerApproved
	if err := s.repo.SetUserPartnerFlag(ctx, p.UserID, granted); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"partner_id": p.ID, "user_id": p.UserID, "is_partner": granted}).Info("partner privileges synced")
	return s.repo.GetUserByID(ctx, p.UserID)
}

// SetCommissionRate changes the platform percentage. Balances are derived on
// read, so the new rate applies to every paid booking of the partner.
func (s *PartnerService) SetCommissionRate(ctx context.Context, actor models.Actor, partnerID int64, rate decimal.Decimal) (*models.Partner, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return nil, apperr.Validation("commission_rate", "must be between 0 and 100")
	}

	p, err := s.repo.UpdatePartner(ctx, partnerID, func(p *models.Partner) error {
		p.CommissionRate = rate.Round(2)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"partner_id": p.ID, "commission_rate": rate.String()}).Info("commission rate changed")
	return p, nil
}

// Get returns a partner visible to actor
func (s *PartnerService) Get(ctx context.Context, actor models.Actor, partnerID int64) (*models.Partner, error) {
	return authorizePartner(ctx, s.repo, actor, partnerID)
}

// GetMine returns the actor's own partner record.
func (s *PartnerService) GetMine(ctx context.Context, actor models.Actor) (*models.Partner, error) {
	return s.repo.GetPartnerByUserID(ctx, actor.UserID)
}

// List returns all partners; admin only
func (s *PartnerService) List(ctx context.Context, actor models.Actor) ([]models.Partner, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.repo.ListPartners(ctx)
}
