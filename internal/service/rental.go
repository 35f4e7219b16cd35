package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/repo"
)

// RentalService answers read-only rental queries.
type RentalService struct {
	repo repo.RentalRepo
}

// NewRentalService constructs a RentalService backed by the provided RentalRepo.
func NewRentalService(r repo.RentalRepo) *RentalService {
	return &RentalService{repo: r}
}

// GetByID returns a single rental. Returns domain.ErrNotFound if absent.
func (s *RentalService) GetByID(ctx context.Context, id int64) (domain.Rental, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Rental{}, fmt.Errorf("service.RentalService.GetByID: %w", classify(err))
	}
	return r, nil
}

// List returns every rental.
func (s *RentalService) List(ctx context.Context) ([]domain.Rental, error) {
	rs, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.RentalService.List: %w", classify(err))
	}
	return rs, nil
}

// ListByCar returns the rentals of one car, any status.
func (s *RentalService) ListByCar(ctx context.Context, carID int64) ([]domain.Rental, error) {
	if carID <= 0 {
		return nil, fmt.Errorf("service.RentalService.ListByCar: %w: car id must be positive", domain.ErrValidation)
	}
	rs, err := s.repo.FindByCarID(ctx, carID)
	if err != nil {
		return nil, fmt.Errorf("service.RentalService.ListByCar: %w", classify(err))
	}
	return rs, nil
}

// ListByClient returns the rentals of one client.
func (s *RentalService) ListByClient(ctx context.Context, clientID string) ([]domain.Rental, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("service.RentalService.ListByClient: %w: client id is required", domain.ErrValidation)
	}
	rs, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("service.RentalService.ListByClient: %w", classify(err))
	}
	return rs, nil
}
