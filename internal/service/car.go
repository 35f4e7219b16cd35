package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/repo"
)

// CarService is the read-only view of the car directory.
type CarService struct {
	repo repo.CarRepo
}

// NewCarService constructs a CarService backed by the provided CarRepo.
func NewCarService(r repo.CarRepo) *CarService {
	return &CarService{repo: r}
}

// GetByID returns a single car. Returns domain.ErrNotFound if absent.
func (s *CarService) GetByID(ctx context.Context, id int64) (domain.Car, error) {
	if id <= 0 {
		return domain.Car{}, fmt.Errorf("service.CarService.GetByID: %w: car id must be positive", domain.ErrValidation)
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Car{}, fmt.Errorf("service.CarService.GetByID: %w", classify(err))
	}
	return c, nil
}

// List returns the cars matching f, ordered by id.
func (s *CarService) List(ctx context.Context, f domain.CarFilter) ([]domain.Car, error) {
	status := domain.CarStatus(strings.ToUpper(strings.TrimSpace(f.Status)))
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("service.CarService.List: %w: unknown car status %q", domain.ErrValidation, f.Status)
	}
	brand := strings.TrimSpace(f.Brand)

	cars, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.CarService.List: %w", classify(err))
	}

	out := make([]domain.Car, 0, len(cars))
	for _, c := range cars {
		if status != "" && c.Status != status {
			continue
		}
		if brand != "" && !strings.EqualFold(c.Brand, brand) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
