package handler

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// csvHeaders defines the column names written as the first row of a CSV report.
var csvHeaders = []string{
	"car_id", "brand", "model", "year",
	"total_days_in_period", "rented_days", "occupancy_percentage", "rental_count",
}

// GetOccupancy handles GET /api/analytics/occupancy.
// Optional ?startDate= and ?endDate= default to the last 30 days.
// Use ?format=csv to receive CSV; default is JSON.
func (s *Server) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	start, end, ok := periodParams(w, r)
	if !ok {
		return
	}
	records, err := s.occupancy.GetOccupancy(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, r, s.log, err, "")
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		writeOccupancyCSV(w, records)
		return
	}
	if records == nil {
		records = []domain.OccupancyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetCarOccupancy handles GET /api/analytics/occupancy/car/{carId}.
func (s *Server) GetCarOccupancy(w http.ResponseWriter, r *http.Request) {
	carID, ok := pathInt64(w, r, "carId")
	if !ok {
		return
	}
	start, end, ok := periodParams(w, r)
	if !ok {
		return
	}
	record, err := s.occupancy.GetOccupancyForCar(r.Context(), carID, start, end)
	if err != nil {
		writeDomainError(w, r, s.log, err, "car not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// periodParams binds the optional startDate and endDate query parameters.
func periodParams(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	var start, end *openapi_types.Date
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "startDate", q, &start); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "startDate must be a date (YYYY-MM-DD)")
		return nil, nil, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "endDate", q, &end); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "endDate must be a date (YYYY-MM-DD)")
		return nil, nil, false
	}
	return dateTime(start), dateTime(end), true
}

func dateTime(d *openapi_types.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func writeOccupancyCSV(w http.ResponseWriter, records []domain.OccupancyRecord) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(csvHeaders)
	for _, rec := range records {
		_ = cw.Write([]string{
			strconv.FormatInt(rec.CarID, 10),
			rec.Brand,
			rec.Model,
			strconv.Itoa(rec.Year),
			strconv.Itoa(rec.TotalDaysInPeriod),
			strconv.Itoa(rec.RentedDays),
			strconv.FormatFloat(rec.OccupancyPercentage, 'f', 2, 64),
			strconv.Itoa(rec.RentalCount),
		})
	}
	cw.Flush()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="occupancy.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
