package domain

// OccupancyRecord is the derived occupancy of one car over a reporting period.
// It is computed on demand and never stored.
type OccupancyRecord struct {
	CarID               int64   `json:"carId"`
	Brand               string  `json:"brand"`
	Model               string  `json:"model"`
	Year                int     `json:"year"`
	TotalDaysInPeriod   int     `json:"totalDaysInPeriod"`
	RentedDays          int     `json:"rentedDays"`
	OccupancyPercentage float64 `json:"occupancyPercentage"`
	RentalCount         int     `json:"rentalCount"`
}
