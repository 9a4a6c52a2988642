package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/models"
	"github.com/25x8/carrental/internal/carrental/repository"
)

// NewCar is the input of CatalogService.AddCar.
type NewCar struct {
	Model       string
	Location    string
	PricePerDay decimal.Decimal
}

// CatalogService manages car listings and their availability flags.
type CatalogService struct {
	repo repository.Repository
	log  logrus.FieldLogger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo repository.Repository, log logrus.FieldLogger) *CatalogService {
	return &CatalogService{repo: repo, log: log}
}

// AddCar lists a car. Admins add platform-owned cars; approved partners add
// cars they own.
func (s *CatalogService) AddCar(ctx context.Context, actor models.Actor, in NewCar) (*models.Car, error) {
	in.Model = strings.TrimSpace(in.Model)
	if in.Model == "" {
		return nil, apperr.Validation("model", "is required")
	}
	if err := validMoney("price_per_day", in.PricePerDay); err != nil {
		return nil, err
	}

	car := &models.Car{
		Model:       in.Model,
		Location:    strings.TrimSpace(in.Location),
		PricePerDay: in.PricePerDay,
		Available:   true,
	}

	if !actor.IsAdmin() {
		user, err := s.repo.GetUserByID(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		p, err := actorPartner(ctx, s.repo, actor)
		if err != nil {
			return nil, err
		}
		if p.Status != models.PartnerApproved || !user.IsPartner {
			return nil, apperr.Forbidden("partner privileges are not granted")
		}
		car.OwnerID = &p.ID
	}

	if err := s.repo.CreateCar(ctx, car); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"car_id": car.ID, "actor_id": actor.UserID}).Info("car listed")
	return car, nil
}

// authorizeOwner returns the partner id the actor acts for; admins get 0.
func (s *CatalogService) authorizeOwner(ctx context.Context, actor models.Actor) (int64, error) {
	if actor.IsAdmin() {
		return 0, nil
	}
	p, err := actorPartner(ctx, s.repo, actor)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (s *CatalogService) updateOwned(ctx context.Context, actor models.Actor, carID int64, fn func(*models.Car) error) (*models.Car, error) {
	partnerID, err := s.authorizeOwner(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateCar(ctx, carID, func(car *models.Car) error {
		if !actor.IsAdmin() && !car.OwnedBy(partnerID) {
			return apperr.Forbidden("car belongs to another owner")
		}
		return fn(car)
	})
}

// SetPrice changes the daily price. Existing bookings keep their total.
func (s *CatalogService) SetPrice(ctx context.Context, actor models.Actor, carID int64, price decimal.Decimal) (*models.Car, error) {
	if err := validMoney("price_per_day", price); err != nil {
		return nil, err
	}
	car, err := s.updateOwned(ctx, actor, carID, func(car *models.Car) error {
		car.PricePerDay = price
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"car_id": carID, "price": price.String()}).Info("car price changed")
	return car, nil
}

// SetAvailability toggles the owner-controlled flag. It cannot re-enable a
// car an admin has deactivated.
func (s *CatalogService) SetAvailability(ctx context.Context, actor models.Actor, carID int64, available bool) (*models.Car, error) {
	car, err := s.updateOwned(ctx, actor, carID, func(car *models.Car) error {
		if available && car.AdminDeactivated {
			return apperr.Conflict("car %d is deactivated by an admin", car.ID)
		}
		car.Available = available
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"car_id": carID, "available": available}).Info("car availability changed")
	return car, nil
}

// SetAdminDeactivated sets the admin override. Deactivating forces the car
// unavailable; reactivating leaves it unavailable until its owner enables it.
func (s *CatalogService) SetAdminDeactivated(ctx context.Context, actor models.Actor, carID int64, deactivated bool) (*models.Car, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	car, err := s.repo.UpdateCar(ctx, carID, func(car *models.Car) error {
		car.AdminDeactivated = deactivated
		if deactivated {
			car.Available = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"car_id": carID, "deactivated": deactivated}).Info("car admin flag changed")
	return car, nil
}

// GetCar returns a car by id
func (s *CatalogService) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	return s.repo.GetCar(ctx, id)
}

// ListCars returns the catalog, optionally only available cars
func (s *CatalogService) ListCars(ctx context.Context, onlyAvailable bool) ([]models.Car, error) {
	return s.repo.ListCars(ctx, onlyAvailable)
}
