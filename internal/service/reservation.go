package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/events"
	"github.com/pkordes/car-rental/backend/internal/lock"
	"github.com/pkordes/car-rental/backend/internal/payment"
	"github.com/pkordes/car-rental/backend/internal/repo"
)

// ReservationDeps are the collaborators of ReservationService.
type ReservationDeps struct {
	Cars        repo.CarRepo
	Rentals     repo.RentalRepo
	Payments    payment.Gateway
	Locker      lock.Locker
	Compensator *Compensator
	Events      events.Publisher
	Log         *slog.Logger
}

// ReservationOptions tune the workflow. Zero values pick the defaults.
type ReservationOptions struct {
	// UpstreamTimeout bounds each remote call.
	UpstreamTimeout time.Duration
	// PaymentRetries is how many extra authorizations are attempted, with the
	// same idempotency key, when the gateway is unreachable or times out.
	PaymentRetries int
	// LockWait bounds how long a request queues for the per-car lock.
	// Defaults to UpstreamTimeout.
	LockWait time.Duration
	Clock          Clock
	NewKey         func() string
}

// ReservationService books a car: validate, check availability, price,
// authorize payment, commit. It is the only writer of rentals.
type ReservationService struct {
	cars     repo.CarRepo
	rentals  repo.RentalRepo
	payments payment.Gateway
	locker   lock.Locker
	comp     *Compensator
	events   events.Publisher
	log      *slog.Logger
	gate     *AvailabilityGate

	timeout  time.Duration
	lockWait time.Duration
	retries  int
	now      Clock
	newKey  func() string
}

// NewReservationService constructs a ReservationService.
func NewReservationService(deps ReservationDeps, opts ReservationOptions) *ReservationService {
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if opts.LockWait <= 0 {
		opts.LockWait = opts.UpstreamTimeout
	}
	if opts.PaymentRetries < 0 {
		opts.PaymentRetries = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewKey == nil {
		opts.NewKey = uuid.NewString
	}
	return &ReservationService{
		cars:     deps.Cars,
		rentals:  deps.Rentals,
		payments: deps.Payments,
		locker:   deps.Locker,
		comp:     deps.Compensator,
		events:   deps.Events,
		log:      deps.Log,
		gate:     NewAvailabilityGate(deps.Cars, deps.Rentals, opts.UpstreamTimeout, opts.Clock),
		timeout:  opts.UpstreamTimeout,
		lockWait: opts.LockWait,
		retries:  opts.PaymentRetries,
		now:      opts.Clock,
		newKey:   opts.NewKey,
	}
}

// reservation carries one run of the workflow.
type reservation struct {
	req    domain.ReservationRequest
	dates  domain.DateRange
	method domain.PaymentMethod
	key    string
	state  domain.ReservationState
}

// CreateReservation runs the reservation workflow.
//
// On success the rental is ACTIVE, the car is RENTED and exactly one payment
// was captured. Errors before payment (ErrValidation, ErrNotFound,
// ErrConflict, ErrPaymentDeclined, ErrUpstreamUnavailable) leave no trace. An
// error wrapping ErrNeedsCompensation means a payment was captured but the
// commit failed; its reversal has already been attempted and, if needed,
// queued for retry.
func (s *ReservationService) CreateReservation(ctx context.Context, req domain.ReservationRequest) (domain.Rental, error) {
	run := &reservation{req: req, state: domain.StateValidating}
	s.enter(ctx, run, domain.StateValidating)

	dates, method, err := validateReservation(req, domain.Day(s.now()))
	if err != nil {
		return domain.Rental{}, s.reject(ctx, run, err)
	}
	run.dates, run.method = dates, method
	run.key = strings.TrimSpace(req.IdempotencyKey)
	clientKey := run.key != ""
	if !clientKey {
		run.key = s.newKey()
	}

	release, err := s.acquire(ctx, req.CarID)
	if err != nil {
		return domain.Rental{}, s.reject(ctx, run, err)
	}
	defer release()

	if clientKey {
		if err := s.checkKey(ctx, run.key); err != nil {
			return domain.Rental{}, s.reject(ctx, run, err)
		}
	}

	s.enter(ctx, run, domain.StateCheckingAvailability)
	car, err := s.gate.Check(ctx, req.CarID, dates)
	if err != nil {
		return domain.Rental{}, s.reject(ctx, run, err)
	}

	s.enter(ctx, run, domain.StatePricing)
	amount := car.PricePerDay.Mul(decimal.NewFromInt(int64(dates.Days())))
	description := fmt.Sprintf("Rental for car %d (%s %s)", car.ID, car.Brand, car.Model)

	// Last point where the caller may walk away without side effects.
	if err := ctx.Err(); err != nil {
		return domain.Rental{}, s.reject(ctx, run, err)
	}
	ctx = context.WithoutCancel(ctx)

	s.enter(ctx, run, domain.StateAuthorizingPayment)
	result, err := s.authorize(ctx, payment.AuthorizeRequest{
		IdempotencyKey: run.key,
		Amount:         amount,
		ClientID:       strings.TrimSpace(req.ClientID),
		Description:    description,
		Method:         string(method),
	})
	if err != nil {
		return domain.Rental{}, s.reject(ctx, run, err)
	}
	if !result.Succeeded() {
		return domain.Rental{}, s.reject(ctx, run, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, result.Message))
	}

	s.enter(ctx, run, domain.StateCommitting)
	rental, err := s.commit(ctx, run, car, result)
	if err != nil {
		return domain.Rental{}, err
	}

	s.enter(ctx, run, domain.StateDone)
	s.publishCreated(ctx, rental)
	return rental, nil
}

// acquire takes the per-car lock, waiting at most lockWait. Running out of
// time is reported as ErrUpstreamUnavailable; caller cancellation is kept.
func (s *ReservationService) acquire(ctx context.Context, carID int64) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	release, err := s.locker.Acquire(waitCtx, carLockKey(carID))
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: car %d is busy, lock wait of %s exceeded",
				domain.ErrUpstreamUnavailable, carID, s.lockWait)
		}
		return nil, classify(err)
	}
	return release, nil
}

// checkKey refuses a client key whose earlier reservation failed after
// payment. Its charge is being refunded, so a replay of that payment must
// not back a new rental.
func (s *ReservationService) checkKey(ctx context.Context, key string) error {
	retired, err := s.comp.KeyRetired(ctx, key)
	if err != nil {
		return err
	}
	if retired {
		return fmt.Errorf("%w: idempotency key %q belongs to a failed reservation, use a new key",
			domain.ErrConflict, key)
	}
	return nil
}

// authorize calls the gateway, retrying only on upstream unavailability.
// Every attempt reuses the same idempotency key so at most one charge exists.
func (s *ReservationService) authorize(ctx context.Context, req payment.AuthorizeRequest) (domain.PaymentResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		result, err := call(ctx, s.timeout, func(ctx context.Context) (domain.PaymentResult, error) {
			return s.payments.Authorize(ctx, req)
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			return domain.PaymentResult{}, fmt.Errorf("service.ReservationService.authorize: %w", err)
		}
		lastErr = err
		s.log.WarnContext(ctx, "payment authorization attempt failed",
			"attempt", attempt+1, "idempotency_key", req.IdempotencyKey, "err", err)
	}
	return domain.PaymentResult{}, fmt.Errorf("service.ReservationService.authorize: %w", lastErr)
}

// commit persists the rental and flips the car to RENTED. Any failure here
// comes after a captured payment and is handed to the compensator.
func (s *ReservationService) commit(ctx context.Context, run *reservation, car domain.Car, paid domain.PaymentResult) (domain.Rental, error) {
	comp := domain.Compensation{
		CarID:          car.ID,
		PaymentID:      paid.PaymentID,
		IdempotencyKey: run.key,
		Amount:         paid.Amount,
		Refund:         true,
	}

	if err := s.gate.Revalidate(ctx, car.ID, run.dates); err != nil {
		return domain.Rental{}, s.fail(ctx, run, comp, err)
	}

	rental, err := call(ctx, s.timeout, func(ctx context.Context) (domain.Rental, error) {
		return s.rentals.Save(ctx, domain.Rental{
			CarID:       car.ID,
			ClientID:    strings.TrimSpace(run.req.ClientID),
			StartDate:   run.dates.Start,
			EndDate:     run.dates.End,
			Status:      domain.RentalActive,
			PaymentID:   paid.PaymentID,
			TotalAmount: paid.Amount,
		})
	})
	if err != nil {
		// Only a definite rejection proves no row was written. Otherwise the
		// insert may still have landed and is found by its payment id.
		comp.CancelRental = !errors.Is(err, domain.ErrConflict) &&
			!errors.Is(err, domain.ErrNotFound) &&
			!errors.Is(err, domain.ErrValidation)
		return domain.Rental{}, s.fail(ctx, run, comp, err)
	}

	comp.RentalID = rental.ID
	comp.CancelRental = true
	_, err = call(ctx, s.timeout, func(ctx context.Context) (domain.Car, error) {
		return s.cars.UpdateStatus(ctx, car.ID, domain.CarAvailable, domain.CarRented)
	})
	if err != nil {
		// A timeout leaves the outcome unknown, so the car may need reverting.
		comp.RevertCar = !errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrNotFound)
		return domain.Rental{}, s.fail(ctx, run, comp, err)
	}
	return rental, nil
}

func (s *ReservationService) enter(ctx context.Context, run *reservation, next domain.ReservationState) {
	run.state = next
	s.log.DebugContext(ctx, "reservation state",
		"state", next.String(), "car_id", run.req.CarID, "idempotency_key", run.key)
}

// reject ends the workflow with no side effects.
func (s *ReservationService) reject(ctx context.Context, run *reservation, err error) error {
	from := run.state
	run.state = domain.StateRejected
	s.log.InfoContext(ctx, "reservation rejected",
		"from", from.String(), "car_id", run.req.CarID, "client_id", run.req.ClientID, "err", err)
	return fmt.Errorf("service.ReservationService.CreateReservation: %w", err)
}

// fail ends the workflow after payment; cause is kept in the chain so a late
// conflict still matches domain.ErrConflict.
func (s *ReservationService) fail(ctx context.Context, run *reservation, comp domain.Compensation, cause error) error {
	run.state = domain.StateFailedNeedsCompensation
	comp.Reason = cause.Error()
	if err := s.comp.Compensate(ctx, comp); err != nil {
		s.log.ErrorContext(ctx, "automatic compensation incomplete", "car_id", comp.CarID, "err", err)
	}
	return fmt.Errorf("service.ReservationService.CreateReservation: %w: %w", domain.ErrNeedsCompensation, cause)
}

func (s *ReservationService) publishCreated(ctx context.Context, r domain.Rental) {
	ev := events.RentalCreatedEvent{
		RentalID:    r.ID,
		CarID:       r.CarID,
		ClientID:    r.ClientID,
		StartDate:   r.StartDate.Format(domain.DateLayout),
		EndDate:     r.EndDate.Format(domain.DateLayout),
		PaymentID:   r.PaymentID,
		TotalAmount: r.TotalAmount,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.events.Publish(ctx, events.RentalCreated, ev); err != nil {
		s.log.WarnContext(ctx, "event publish failed", "routing_key", events.RentalCreated, "err", err)
	}
}

// validateReservation checks everything that needs no remote call.
func validateReservation(req domain.ReservationRequest, today time.Time) (domain.DateRange, domain.PaymentMethod, error) {
	switch {
	case req.CarID <= 0:
		return domain.DateRange{}, "", fmt.Errorf("%w: car id must be positive", domain.ErrValidation)
	case strings.TrimSpace(req.ClientID) == "":
		return domain.DateRange{}, "", fmt.Errorf("%w: client id is required", domain.ErrValidation)
	case req.StartDate.IsZero():
		return domain.DateRange{}, "", fmt.Errorf("%w: start date is required", domain.ErrValidation)
	case req.EndDate.IsZero():
		return domain.DateRange{}, "", fmt.Errorf("%w: end date is required", domain.ErrValidation)
	}

	dates, err := domain.NewDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return domain.DateRange{}, "", err
	}
	if dates.Start.Before(today) {
		return domain.DateRange{}, "", fmt.Errorf("%w: start date %s is in the past",
			domain.ErrValidation, dates.Start.Format(domain.DateLayout))
	}

	method := domain.DefaultPaymentMethod
	if strings.TrimSpace(req.PaymentMethod) != "" {
		if method, err = domain.ParsePaymentMethod(req.PaymentMethod); err != nil {
			return domain.DateRange{}, "", err
		}
	}
	return dates, method, nil
}

func carLockKey(carID int64) string { return "car:" + strconv.FormatInt(carID, 10) }
