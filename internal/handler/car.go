package handler

import (
	"encoding/json"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// Car is the JSON representation of a car.
type Car struct {
	ID          int64       `json:"id"`
	Brand       string      `json:"brand"`
	Model       string      `json:"model"`
	Year        int         `json:"year"`
	Status      string      `json:"status"`
	PricePerDay json.Number `json:"pricePerDay"`
}

// ListCars handles GET /api/cars.
// Optional ?status= and ?brand= query params narrow the list.
func (s *Server) ListCars(w http.ResponseWriter, r *http.Request) {
	var filter domain.CarFilter
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "status", q, &filter.Status); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "brand", q, &filter.Brand); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cars, err := s.cars.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, s.log, err, "")
		return
	}
	out := make([]Car, 0, len(cars))
	for _, c := range cars {
		out = append(out, carToResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCar handles GET /api/cars/{id}.
func (s *Server) GetCar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	car, err := s.cars.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, s.log, err, "car not found")
		return
	}
	writeJSON(w, http.StatusOK, carToResponse(car))
}

func carToResponse(c domain.Car) Car {
	return Car{
		ID:          c.ID,
		Brand:       c.Brand,
		Model:       c.Model,
		Year:        c.Year,
		Status:      string(c.Status),
		PricePerDay: json.Number(c.PricePerDay.StringFixed(2)),
	}
}
