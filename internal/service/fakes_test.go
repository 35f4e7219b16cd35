package service_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pkordes/car-rental/backend/internal/domain"
	"github.com/pkordes/car-rental/backend/internal/events"
	"github.com/pkordes/car-rental/backend/internal/lock"
	"github.com/pkordes/car-rental/backend/internal/payment"
	"github.com/pkordes/car-rental/backend/internal/repo"
	"github.com/pkordes/car-rental/backend/internal/service"
)

// In-memory stand-ins for the repos. They keep real state so concurrent
// workflow tests can observe invariants; the *Err fields inject failures.

// ---- cars ------------------------------------------------------------------

type memCars struct {
	mu        sync.Mutex
	cars      map[int64]domain.Car
	getErr    error
	listErr   error
	updateErr func(id int64, expected, next domain.CarStatus) error
	updates   int
}

func newMemCars(cars ...domain.Car) *memCars {
	m := &memCars{cars: make(map[int64]domain.Car)}
	for _, c := range cars {
		m.cars[c.ID] = c
	}
	return m
}

func (m *memCars) GetByID(_ context.Context, id int64) (domain.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Car{}, m.getErr
	}
	c, ok := m.cars[id]
	if !ok {
		return domain.Car{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *memCars) List(_ context.Context) ([]domain.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Car, 0, len(m.cars))
	for _, c := range m.cars {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCars) UpdateStatus(_ context.Context, id int64, expected, next domain.CarStatus) (domain.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		if err := m.updateErr(id, expected, next); err != nil {
			return domain.Car{}, err
		}
	}
	c, ok := m.cars[id]
	if !ok {
		return domain.Car{}, domain.ErrNotFound
	}
	if c.Status != expected {
		return domain.Car{}, domain.ErrConflict
	}
	c.Status = next
	m.cars[id] = c
	return c, nil
}

func (m *memCars) status(id int64) domain.CarStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cars[id].Status
}

var _ repo.CarRepo = (*memCars)(nil)

// ---- rentals ---------------------------------------------------------------

type memRentals struct {
	mu        sync.Mutex
	rentals   []domain.Rental
	nextID    int64
	saveErr   error
	findErr   error
	updateErr error
	// overlapCalls counts FindActiveOverlapping; onOverlap runs before each.
	overlapCalls int
	onOverlap    func(call int) error
}

func newMemRentals(rs ...domain.Rental) *memRentals {
	m := &memRentals{}
	for _, r := range rs {
		m.nextID++
		r.ID = m.nextID
		m.rentals = append(m.rentals, r)
	}
	return m
}

// Save enforces the same no-overlap rule as the database constraint.
func (m *memRentals) Save(_ context.Context, r domain.Rental) (domain.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return domain.Rental{}, m.saveErr
	}
	for _, existing := range m.rentals {
		if existing.CarID == r.CarID && existing.BlocksCar() && r.BlocksCar() && existing.Range().Overlaps(r.Range()) {
			return domain.Rental{}, domain.ErrConflict
		}
	}
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.rentals = append(m.rentals, r)
	return r, nil
}

func (m *memRentals) GetByID(_ context.Context, id int64) (domain.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rentals {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Rental{}, domain.ErrNotFound
}

func (m *memRentals) FindAll(_ context.Context) ([]domain.Rental, error) {
	return m.filter(func(domain.Rental) bool { return true })
}

func (m *memRentals) FindByCarID(_ context.Context, carID int64) ([]domain.Rental, error) {
	return m.filter(func(r domain.Rental) bool { return r.CarID == carID })
}

func (m *memRentals) FindByClientID(_ context.Context, clientID string) ([]domain.Rental, error) {
	return m.filter(func(r domain.Rental) bool { return r.ClientID == clientID })
}

func (m *memRentals) FindByPaymentID(_ context.Context, paymentID string) ([]domain.Rental, error) {
	return m.filter(func(r domain.Rental) bool { return r.PaymentID == paymentID })
}

func (m *memRentals) FindActiveOverlapping(_ context.Context, carID int64, dr domain.DateRange) ([]domain.Rental, error) {
	m.mu.Lock()
	m.overlapCalls++
	n, hook := m.overlapCalls, m.onOverlap
	m.mu.Unlock()
	if hook != nil {
		if err := hook(n); err != nil {
			return nil, err
		}
	}
	return m.filter(func(r domain.Rental) bool {
		return r.CarID == carID && r.BlocksCar() && r.Range().Overlaps(dr)
	})
}

func (m *memRentals) UpdateStatus(_ context.Context, id int64, status domain.RentalStatus) (domain.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return domain.Rental{}, m.updateErr
	}
	for i, r := range m.rentals {
		if r.ID == id {
			m.rentals[i].Status = status
			return m.rentals[i], nil
		}
	}
	return domain.Rental{}, domain.ErrNotFound
}

func (m *memRentals) filter(keep func(domain.Rental) bool) ([]domain.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	out := []domain.Rental{}
	for _, r := range m.rentals {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRentals) active(carID int64) []domain.Rental {
	out, _ := m.filter(func(r domain.Rental) bool { return r.CarID == carID && r.Status == domain.RentalActive })
	return out
}

func (m *memRentals) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rentals)
}

var _ repo.RentalRepo = (*memRentals)(nil)

// committedButSlow writes the rental and then stalls until the caller gives
// up, so the caller sees a timeout for an insert that landed.
type committedButSlow struct {
	*memRentals
}

func (c committedButSlow) Save(ctx context.Context, r domain.Rental) (domain.Rental, error) {
	if _, err := c.memRentals.Save(ctx, r); err != nil {
		return domain.Rental{}, err
	}
	<-ctx.Done()
	return domain.Rental{}, ctx.Err()
}

// ---- compensations ---------------------------------------------------------

type memCompensations struct {
	mu        sync.Mutex
	items     map[int64]domain.Compensation
	nextID    int64
	createErr error
	existsErr error
}

func newMemCompensations() *memCompensations {
	return &memCompensations{items: make(map[int64]domain.Compensation)}
}

func (m *memCompensations) Create(_ context.Context, c domain.Compensation) (domain.Compensation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.Compensation{}, m.createErr
	}
	m.nextID++
	c.ID = m.nextID
	m.items[c.ID] = c
	return c, nil
}

func (m *memCompensations) ListPending(_ context.Context, limit int) ([]domain.Compensation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Compensation{}
	for id := int64(1); id <= m.nextID && len(out) < limit; id++ {
		if c, ok := m.items[id]; ok && c.Status == domain.CompensationPending {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCompensations) Update(_ context.Context, c domain.Compensation) (domain.Compensation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[c.ID]; !ok {
		return domain.Compensation{}, domain.ErrNotFound
	}
	m.items[c.ID] = c
	return c, nil
}

func (m *memCompensations) ExistsForKey(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, c := range m.items {
		if c.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCompensations) all() []domain.Compensation {
	out, _ := m.ListPending(context.Background(), 1000)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.Status != domain.CompensationPending {
			out = append(out, c)
		}
	}
	return out
}

var _ repo.CompensationRepo = (*memCompensations)(nil)

// ---- payment gateway -------------------------------------------------------

// mockGateway is a hand-written test double for payment.Gateway.
// Unset function fields fall back to an approving simulator.
type mockGateway struct {
	authorize func(ctx context.Context, req payment.AuthorizeRequest) (domain.PaymentResult, error)
	refund    func(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error)

	mu          sync.Mutex
	authCalls   []payment.AuthorizeRequest
	refundCalls []payment.RefundRequest
	sim         *payment.Simulator
}

func newMockGateway() *mockGateway {
	return &mockGateway{sim: payment.NewSimulator(payment.Always(true))}
}

func (m *mockGateway) Authorize(ctx context.Context, req payment.AuthorizeRequest) (domain.PaymentResult, error) {
	m.mu.Lock()
	m.authCalls = append(m.authCalls, req)
	fn := m.authorize
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return m.sim.Authorize(ctx, req)
}

func (m *mockGateway) Refund(ctx context.Context, req payment.RefundRequest) (payment.RefundResult, error) {
	m.mu.Lock()
	m.refundCalls = append(m.refundCalls, req)
	fn := m.refund
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return m.sim.Refund(ctx, req)
}

func (m *mockGateway) authorizations() []payment.AuthorizeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.AuthorizeRequest(nil), m.authCalls...)
}

func (m *mockGateway) refunds() []payment.RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.RefundRequest(nil), m.refundCalls...)
}

var _ payment.Gateway = (*mockGateway)(nil)

// ---- events ----------------------------------------------------------------

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

var _ events.Publisher = (*recordingPublisher)(nil)

// ---- locks -----------------------------------------------------------------

// noLock grants every Acquire immediately; it lets tests exercise the
// backstops behind the per-car lock.
type noLock struct{}

func (noLock) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

var _ lock.Locker = noLock{}

// ---- harness ---------------------------------------------------------------

// today is the fixed clock every workflow test runs at.
var today = time.Date(2023, 12, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return today }

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func camry() domain.Car {
	return domain.Car{ID: 1, Brand: "Toyota", Model: "Camry", Year: 2023,
		Status: domain.CarAvailable, PricePerDay: decimal.RequireFromString("50.00")}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	cars    *memCars
	rentals *memRentals
	comps   *memCompensations
	gateway *mockGateway
	events  *recordingPublisher
	logs    *bytes.Buffer
	locker  lock.Locker
	comp    *service.Compensator
	svc     *service.ReservationService

	// wrapRentals, when set, decorates the rental repo the services see.
	wrapRentals func(*memRentals) repo.RentalRepo
}

type harnessOption func(*harness, *service.ReservationOptions)

func withLocker(l lock.Locker) harnessOption {
	return func(h *harness, _ *service.ReservationOptions) { h.locker = l }
}

func withRetries(n int) harnessOption {
	return func(_ *harness, o *service.ReservationOptions) { o.PaymentRetries = n }
}

func withRentals(rs ...domain.Rental) harnessOption {
	return func(h *harness, _ *service.ReservationOptions) { h.rentals = newMemRentals(rs...) }
}

func withTimeout(d time.Duration) harnessOption {
	return func(_ *harness, o *service.ReservationOptions) { o.UpstreamTimeout = d }
}

func withLockWait(d time.Duration) harnessOption {
	return func(_ *harness, o *service.ReservationOptions) { o.LockWait = d }
}

func withRentalRepo(wrap func(*memRentals) repo.RentalRepo) harnessOption {
	return func(h *harness, _ *service.ReservationOptions) { h.wrapRentals = wrap }
}

func newHarness(t *testing.T, cars []domain.Car, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		cars:    newMemCars(cars...),
		rentals: newMemRentals(),
		comps:   newMemCompensations(),
		gateway: newMockGateway(),
		events:  &recordingPublisher{},
		logs:    &bytes.Buffer{},
		locker:  lock.NewKeyedMutex(),
	}
	ro := service.ReservationOptions{
		UpstreamTimeout: time.Second,
		PaymentRetries:  1,
		Clock:           fixedClock,
	}
	for _, opt := range opts {
		opt(h, &ro)
	}

	var rentals repo.RentalRepo = h.rentals
	if h.wrapRentals != nil {
		rentals = h.wrapRentals(h.rentals)
	}

	log := slog.New(slog.NewJSONHandler(&syncWriter{w: h.logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.comp = service.NewCompensator(rentals, h.cars, h.gateway, h.comps, h.events, log, ro.UpstreamTimeout)
	h.svc = service.NewReservationService(service.ReservationDeps{
		Cars:        h.cars,
		Rentals:     rentals,
		Payments:    h.gateway,
		Locker:      h.locker,
		Compensator: h.comp,
		Events:      h.events,
		Log:         log,
	}, ro)
	return h
}

func request(carID int64, start, end string) domain.ReservationRequest {
	return domain.ReservationRequest{
		CarID:     carID,
		ClientID:  "client-42",
		StartDate: date(start),
		EndDate:   date(end),
	}
}

// syncWriter serialises writes from concurrent workflow goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
