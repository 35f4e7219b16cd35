// Package handler implements the HTTP handlers for the car rental API and the
// payment service. Handlers decode requests, call the service layer through
// the small interfaces below, and encode JSON responses.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// ReservationServicer runs the reservation workflow.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type ReservationServicer interface {
	CreateReservation(ctx context.Context, req domain.ReservationRequest) (domain.Rental, error)
}

// RentalServicer answers rental queries.
type RentalServicer interface {
	GetByID(ctx context.Context, id int64) (domain.Rental, error)
	List(ctx context.Context) ([]domain.Rental, error)
	ListByCar(ctx context.Context, carID int64) ([]domain.Rental, error)
	ListByClient(ctx context.Context, clientID string) ([]domain.Rental, error)
}

// CarServicer reads the car directory.
type CarServicer interface {
	GetByID(ctx context.Context, id int64) (domain.Car, error)
	List(ctx context.Context, f domain.CarFilter) ([]domain.Car, error)
}

// OccupancyServicer computes occupancy reports.
type OccupancyServicer interface {
	GetOccupancy(ctx context.Context, start, end *time.Time) ([]domain.OccupancyRecord, error)
	GetOccupancyForCar(ctx context.Context, carID int64, start, end *time.Time) (domain.OccupancyRecord, error)
}

// Server holds the dependencies shared by every API handler.
// Methods are in domain-specific files but all operate on this struct.
type Server struct {
	reservations ReservationServicer
	rentals      RentalServicer
	cars         CarServicer
	occupancy    OccupancyServicer
	openapi      []byte
	log          *slog.Logger
}

// NewServer constructs the Server with all its dependencies. openapi is the
// API document served at /openapi.yaml.
func NewServer(reservations ReservationServicer, rentals RentalServicer, cars CarServicer, occupancy OccupancyServicer, openapi []byte, log *slog.Logger) *Server {
	return &Server{
		reservations: reservations,
		rentals:      rentals,
		cars:         cars,
		occupancy:    occupancy,
		openapi:      openapi,
		log:          log,
	}
}

// Routes mounts every API endpoint on r. idempotent wraps the reservation
// endpoint; pass nil to disable response replay.
func (s *Server) Routes(r chi.Router, idempotent func(http.Handler) http.Handler) {
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/api/rentals", func(r chi.Router) {
		create := http.Handler(http.HandlerFunc(s.CreateRental))
		if idempotent != nil {
			create = idempotent(create)
		}
		r.Method(http.MethodPost, "/", create)
		r.Get("/", s.ListRentals)
		r.Get("/{id}", s.GetRental)
		r.Get("/client/{clientId}", s.ListRentalsByClient)
		r.Get("/car/{carId}", s.ListRentalsByCar)
	})

	r.Route("/api/cars", func(r chi.Router) {
		r.Get("/", s.ListCars)
		r.Get("/{id}", s.GetCar)
	})

	r.Route("/api/analytics/occupancy", func(r chi.Router) {
		r.Get("/", s.GetOccupancy)
		r.Get("/car/{carId}", s.GetCarOccupancy)
	})
}

// GetHealth handles GET /healthz.
// It returns HTTP 200 with {"status":"ok"} when the server is running.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// GetOpenAPI handles GET /openapi.yaml.
func (s *Server) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(s.openapi)
}

type healthResponse struct {
	Status string `json:"status"`
}
