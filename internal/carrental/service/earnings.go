package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
)

// Split divides a paid booking total. The platform share is rounded to the
// cent and the partner gets the exact remainder, so the two always add up
// to total.
func Split(total, commissionRate decimal.Decimal) (partnerShare, platformShare decimal.Decimal) {
	platformShare = total.Mul(commissionRate).Div(hundred).Round(2)
	partnerShare = total.Sub(platformShare)
	return partnerShare, platformShare
}

// ComputeBalance derives a partner's balance from its paid earnings and
// payment requests. Nothing here is ever stored.
func ComputeBalance(partnerID int64, commissionRate decimal.Decimal, entries []models.EarningEntry, requests []models.PaymentRequest) models.PartnerBalance {
	bal := models.PartnerBalance{
		PartnerID:        partnerID,
		CommissionRate:   commissionRate,
		PartnerEarnings:  decimal.Zero,
		PlatformEarnings: decimal.Zero,
		TotalRedeemed:    decimal.Zero,
		PendingBalance:   decimal.Zero,
		AvailableBalance: decimal.Zero,
	}
	for _, e := range entries {
		partner, platform := Split(e.TotalAmount, commissionRate)
		bal.PartnerEarnings = bal.PartnerEarnings.Add(partner)
		bal.PlatformEarnings = bal.PlatformEarnings.Add(platform)
	}
	for _, r := range requests {
		switch {
		case r.Status == models.RedemptionPaid:
			bal.TotalRedeemed = bal.TotalRedeemed.Add(r.Amount)
		case r.Status.IsOpen():
			bal.PendingBalance = bal.PendingBalance.Add(r.Amount)
		}
	}
	available := bal.PartnerEarnings.Sub(bal.TotalRedeemed).Sub(bal.PendingBalance)
	if available.IsPositive() {
		bal.AvailableBalance = available
	}
	return bal
}

// Lines applies the split to every entry, using each partner's rate.
func Lines(entries []models.EarningEntry, rates map[int64]decimal.Decimal) []models.EarningLine {
	lines := make([]models.EarningLine, 0, len(entries))
	for _, e := range entries {
		rate := rates[e.PartnerID]
		partner, platform := Split(e.TotalAmount, rate)
		lines = append(lines, models.EarningLine{
			EarningEntry:   e,
			CommissionRate: rate,
			PartnerShare:   partner,
			PlatformShare:  platform,
		})
	}
	return lines
}

// EarningsService is the read side of the partner ledger.
type EarningsService struct {
	repo repository.Repository
	log  logrus.FieldLogger
}

// NewEarningsService creates a new earnings service
func NewEarningsService(repo repository.Repository, log logrus.FieldLogger) *EarningsService {
	return &EarningsService{repo: repo, log: log}
}

// Balance returns the balance of an approved partner to the partner itself
// or an admin.
func (s *EarningsService) Balance(ctx context.Context, actor models.Actor, partnerID int64) (*models.PartnerBalance, error) {
	p, err := authorizePartner(ctx, s.repo, actor, partnerID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PartnerApproved {
		return nil, apperr.Conflict("partner %d is %s", p.ID, p.Status)
	}

	entries, err := s.repo.ListEarningEntries(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	requests, err := s.repo.ListPaymentRequests(ctx, p.ID, "")
	if err != nil {
		return nil, err
	}
	bal := ComputeBalance(p.ID, p.CommissionRate, entries, requests)
	return &bal, nil
}

// Report is the admin earnings view over all partners.
type Report struct {
	Lines    []models.EarningLine    `json:"lines"`
	Balances []models.PartnerBalance `json:"balances"`
}

// Breakdown returns the per-booking split of every paid partner booking and
// the balance of every partner.
func (s *EarningsService) Breakdown(ctx context.Context, actor models.Actor) (*Report, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	partners, err := s.repo.ListPartners(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEarningEntries(ctx, 0)
	if err != nil {
		return nil, err
	}
	requests, err := s.repo.ListPaymentRequests(ctx, 0, "")
	if err != nil {
		return nil, err
	}

	rates := make(map[int64]decimal.Decimal, len(partners))
	for _, p := range partners {
		rates[p.ID] = p.CommissionRate
	}
	byPartnerEntries := make(map[int64][]models.EarningEntry)
	for _, e := range entries {
		byPartnerEntries[e.PartnerID] = append(byPartnerEntries[e.PartnerID], e)
	}
	byPartnerRequests := make(map[int64][]models.PaymentRequest)
	for _, r := range requests {
		byPartnerRequests[r.PartnerID] = append(byPartnerRequests[r.PartnerID], r)
	}

	report := &Report{
		Lines:    Lines(entries, rates),
		Balances: make([]models.PartnerBalance, 0, len(partners)),
	}
	for _, p := range partners {
		report.Balances = append(report.Balances,
			ComputeBalance(p.ID, p.CommissionRate, byPartnerEntries[p.ID], byPartnerRequests[p.ID]))
	}
	s.log.WithFields(logrus.Fields{"lines": len(report.Lines), "partners": len(partners)}).Debug("earnings breakdown computed")
	return report, nil
}
