package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/logger"
	"github.com/25x8/carrental/internal/carrental/models"
)

func TestPartnerService_ApplyAndReview(t *testing.T) {
	f := newFixture(t)

	p, err := f.partners.Apply(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, models.PartnerPending, p.Status)
	assert.True(t, dec("10").Equal(p.CommissionRate))

	_, err = f.partners.Apply(f.ctx, owner)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "one application per user")

	_, err = f.partners.Review(f.ctx, owner, p.ID, models.PartnerApproved)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = f.partners.Review(f.ctx, admin, p.ID, models.PartnerPending)
	assert.Equal(t, "status", apperr.FieldOf(err))
	_, err = f.partners.Review(f.ctx, admin, 404, models.PartnerApproved)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	p, err = f.partners.Review(f.ctx, admin, p.ID, models.PartnerRejected)
	require.NoError(t, err)
	assert.Equal(t, models.PartnerRejected, p.Status)

	again, err := f.partners.Apply(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, models.PartnerPending, again.Status)
}

func TestPartnerService_ApprovalDoesNotGrantPrivileges(t *testing.T) {
	f := newFixture(t)
	p, err := f.partners.Apply(f.ctx, owner)
	require.NoError(t, err)
	_, err = f.partners.Review(f.ctx, admin, p.ID, models.PartnerApproved)
	require.NoError(t, err)

	user, err := f.repo.GetUserByID(f.ctx, owner.UserID)
	require.NoError(t, err)
	assert.False(t, user.IsPartner)

	_, err = f.catalog.AddCar(f.ctx, owner, NewCar{Model: "Swift", PricePerDay: dec("50")})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization), "listing needs synced privileges")

	_, err = f.partners.SyncPrivileges(f.ctx, owner, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	user, err = f.partners.SyncPrivileges(f.ctx, admin, p.ID)
	require.NoError(t, err)
	assert.True(t, user.IsPartner)

	_, err = f.partners.Review(f.ctx, admin, p.ID, models.PartnerRejected)
	require.NoError(t, err)
	user, err = f.partners.SyncPrivileges(f.ctx, admin, p.ID)
	require.NoError(t, err)
	assert.False(t, user.IsPartner)
}

func TestPartnerService_AutoSync(t *testing.T) {
	f := newFixture(t)
	f.partners = NewPartnerService(f.repo, PartnerOptions{
		DefaultCommissionRate: decimal.NewFromInt(15),
		AutoSyncOnApprove:     true,
	}, logger.Discard())

	p, err := f.partners.Apply(f.ctx, owner)
	require.NoError(t, err)
	_, err = f.partners.Review(f.ctx, admin, p.ID, models.PartnerApproved)
	require.NoError(t, err)

	user, err := f.repo.GetUserByID(f.ctx, owner.UserID)
	require.NoError(t, err)
	assert.True(t, user.IsPartner)

	_, err = f.partners.Review(f.ctx, admin, p.ID, models.PartnerRejected)
	require.NoError(t, err)
	user, err = f.repo.GetUserByID(f.ctx, owner.UserID)
	require.NoError(t, err)
	assert.False(t, user.IsPartner)
}

func TestPartnerService_SetCommissionRate(t *testing.T) {
	f := newFixture(t)
	p := f.approvedPartner(t)

	for _, rate := range []string{"-1", "100.01"} {
		_, err := f.partners.SetCommissionRate(f.ctx, admin, p.ID, dec(rate))
		assert.Equal(t, "commission_rate", apperr.FieldOf(err), rate)
	}
	_, err := f.partners.SetCommissionRate(f.ctx, owner, p.ID, dec("5"))
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	got, err := f.partners.SetCommissionRate(f.ctx, admin, p.ID, dec("12.5"))
	require.NoError(t, err)
	assert.True(t, dec("12.5").Equal(got.CommissionRate))
}

func TestPartnerService_Reads(t *testing.T) {
	f := newFixture(t)
	p := f.approvedPartner(t)

	mine, err := f.partners.GetMine(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, p.ID, mine.ID)

	_, err = f.partners.GetMine(f.ctx, stranger)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.partners.Get(f.ctx, owner, p.ID)
	assert.NoError(t, err)
	_, err = f.partners.Get(f.ctx, stranger, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.partners.List(f.ctx, owner)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	all, err := f.partners.List(f.ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
