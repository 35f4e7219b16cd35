package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/middleware"
)

// CreateRentalRequest is the body of POST /api/rentals.
type CreateRentalRequest struct {
	CarID         int64               `json:"carId"`
	ClientID      string              `json:"clientId"`
	StartDate     *openapi_types.Date `json:"startDate"`
	EndDate       *openapi_types.Date `json:"endDate"`
	PaymentMethod string              `json:"paymentMethod,omitempty"`
}

// Rental is the JSON representation of a rental.
type Rental struct {
	ID          int64              `json:"id"`
	CarID       int64              `json:"carId"`
	ClientID    string             `json:"clientId"`
	StartDate   openapi_types.Date `json:"startDate"`
	EndDate     openapi_types.Date `json:"endDate"`
	Status      string             `json:"status"`
	PaymentID   string             `json:"paymentId,omitempty"`
	TotalAmount json.Number        `json:"totalAmount"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// CreateRental handles POST /api/rentals.
// The optional Idempotency-Key header is forwarded as the payment key.
func (s *Server) CreateRental(w http.ResponseWriter, r *http.Request) {
	var body CreateRentalRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.StartDate == nil || body.EndDate == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "startDate and endDate are required")
		return
	}

	created, err := s.reservations.CreateReservation(r.Context(), domain.ReservationRequest{
		CarID:          body.CarID,
		ClientID:       body.ClientID,
		StartDate:      body.StartDate.Time,
		EndDate:        body.EndDate.Time,
		PaymentMethod:  body.PaymentMethod,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyHeader),
	})
	if err != nil {
		writeDomainError(w, r, s.log, err, "car not found")
		return
	}
	writeJSON(w, http.StatusCreated, rentalToResponse(created))
}

// ListRentals handles GET /api/rentals.
func (s *Server) ListRentals(w http.ResponseWriter, r *http.Request) {
	rentals, err := s.rentals.List(r.Context())
	if err != nil {
		writeDomainError(w, r, s.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, rentalsToResponse(rentals))
}

// GetRental handles GET /api/rentals/{id}.
func (s *Server) GetRental(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	rental, err := s.rentals.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, s.log, err, "rental not found")
		return
	}
	writeJSON(w, http.StatusOK, rentalToResponse(rental))
}

// ListRentalsByClient handles GET /api/rentals/client/{clientId}.
func (s *Server) ListRentalsByClient(w http.ResponseWriter, r *http.Request) {
	var clientID string
	err := runtime.BindStyledParameterWithOptions("simple", "clientId", chi.URLParam(r, "clientId"), &clientID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rentals, err := s.rentals.ListByClient(r.Context(), clientID)
	if err != nil {
		writeDomainError(w, r, s.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, rentalsToResponse(rentals))
}

// ListRentalsByCar handles GET /api/rentals/car/{carId}.
func (s *Server) ListRentalsByCar(w http.ResponseWriter, r *http.Request) {
	carID, ok := pathInt64(w, r, "carId")
	if !ok {
		return
	}
	rentals, err := s.rentals.ListByCar(r.Context(), carID)
	if err != nil {
		writeDomainError(w, r, s.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, rentalsToResponse(rentals))
}

// pathInt64 binds an integer path parameter, rendering a 400 on failure.
func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	var v int64
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return 0, false
	}
	return v, true
}

func rentalToResponse(r domain.Rental) Rental {
	return Rental{
		ID:          r.ID,
		CarID:       r.CarID,
		ClientID:    r.ClientID,
		StartDate:   openapi_types.Date{Time: r.StartDate},
		EndDate:     openapi_types.Date{Time: r.EndDate},
		Status:      string(r.Status),
		PaymentID:   r.PaymentID,
		TotalAmount: json.Number(r.TotalAmount.StringFixed(2)),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// rentalsToResponse always returns a JSON array, never null.
func rentalsToResponse(rs []domain.Rental) []Rental {
	out := make([]Rental, 0, len(rs))
	for _, r := range rs {
		out = append(out, rentalToResponse(r))
	}
	return out
}
