package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/database"
	"github.com/smarttransit/taxi-booking-backend/internal/metrics"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/pkg/events"
	"github.com/smarttransit/taxi-booking-backend/pkg/mailer"
	"github.com/smarttransit/taxi-booking-backend/pkg/refclient"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func strPtr(s string) *string { return &s }

// systemActor records rows that no request drove
func systemActor() models.Actor {
	return models.Actor{Type: models.ActorTypeSystem, ID: "system"}
}

func float64Ptr(v float64) *float64 { return &v }

// ============================================================================
// IN-MEMORY STORAGE
// ============================================================================

// fakeDB keeps bookings, cancellations, history and outbox rows in memory.
// InTx restores the previous state when fn fails.
type fakeDB struct {
	mu            sync.Mutex
	bookings      map[int64]models.Booking
	cancellations map[int64]models.BookingCancellation
	history       []models.BookingStatusHistory
	events        []models.BookingEvent
	nextID        int64

	collisions int   // Insert calls that report a duplicate booking id
	appendErr  error // error returned by history Append
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		bookings:      make(map[int64]models.Booking),
		cancellations: make(map[int64]models.BookingCancellation),
	}
}

type fakeBookings struct{ *fakeDB }
type fakeCancellations struct{ *fakeDB }
type fakeHistory struct{ *fakeDB }
type fakeOutbox struct{ *fakeDB }

func (db *fakeDB) InTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	db.mu.Lock()
	bookings := make(map[int64]models.Booking, len(db.bookings))
	for k, v := range db.bookings {
		bookings[k] = v
	}
	cancellations := make(map[int64]models.BookingCancellation, len(db.cancellations))
	for k, v := range db.cancellations {
		cancellations[k] = v
	}
	history := append([]models.BookingStatusHistory(nil), db.history...)
	evts := append([]models.BookingEvent(nil), db.events...)
	db.mu.Unlock()

	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.bookings, db.cancellations, db.history, db.events = bookings, cancellations, history, evts
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *fakeDB) historyFor(bookingID int64) []models.BookingStatusHistory {
	db.mu.Lock()
	defer db.mu.Unlock()

	var rows []models.BookingStatusHistory
	for i := len(db.history) - 1; i >= 0; i-- {
		if db.history[i].BookingID == bookingID {
			rows = append(rows, db.history[i])
		}
	}
	return rows
}

func (db *fakeDB) stored(id int64) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bookings[id]
}

func (db *fakeDB) cancellationCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.cancellations)
}

func (db *fakeDB) eventCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.events)
}

func (f fakeBookings) Insert(ctx context.Context, tx sqlx.ExtContext, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.collisions > 0 {
		f.collisions--
		return database.ErrDuplicateBookingID
	}
	for _, existing := range f.bookings {
		if existing.BookingID == b.BookingID {
			return database.ErrDuplicateBookingID
		}
	}

	f.nextID++
	b.ID = f.nextID
	b.Version = 1
	f.bookings[b.ID] = *b
	return nil
}

func (f fakeBookings) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f fakeBookings) GetByBookingID(ctx context.Context, bookingID string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range f.bookings {
		if b.BookingID == bookingID {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (f fakeBookings) Update(ctx context.Context, tx sqlx.ExtContext, b *models.Booking, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, ok := f.bookings[b.ID]
	if !ok || current.Version != expectedVersion {
		return database.ErrVersionConflict
	}
	for id, existing := range f.bookings {
		if id != b.ID && existing.BookingID == b.BookingID {
			return database.ErrDuplicateBookingID
		}
	}

	b.Version = expectedVersion + 1
	f.bookings[b.ID] = *b
	return nil
}

func (f fakeCancellations) Create(ctx context.Context, tx sqlx.ExtContext, c *models.BookingCancellation) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.cancellations[c.BookingID]; exists {
		return database.ErrAlreadyCancelled
	}
	c.ID = int64(len(f.cancellations) + 1)
	f.cancellations[c.BookingID] = *c
	return nil
}

func (f fakeCancellations) GetByBookingID(ctx context.Context, bookingID int64) (*models.BookingCancellation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.cancellations[bookingID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f fakeHistory) Append(ctx context.Context, tx sqlx.ExtContext, h *models.BookingStatusHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		return f.appendErr
	}
	h.ID = int64(len(f.history) + 1)
	f.history = append(f.history, *h)
	return nil
}

func (f fakeHistory) ListByBooking(ctx context.Context, bookingID int64) ([]models.BookingStatusHistory, error) {
	return f.historyFor(bookingID), nil
}

func (f fakeOutbox) Enqueue(ctx context.Context, tx sqlx.ExtContext, event *models.BookingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, *event)
	return nil
}

// ============================================================================
// REFERENCE SERVICES
// ============================================================================

var errLookupDown = errors.New("connection refused")

// fakeRefs serves reference data from maps; ids missing from a map are not found.
// failing names a resource whose every lookup errors.
type fakeRefs struct {
	classes    map[int64]*refclient.VehicleClass
	drivers    map[int64]*refclient.Driver
	vehicles   map[int64]*refclient.Vehicle
	fares      map[int64]*refclient.FareScheme
	corporates map[int64]*refclient.Corporate
	promos     map[int64]*refclient.PromoCode
	users      map[uuid.UUID]*refclient.User
	failing    map[string]bool
}

func newFakeRefs() *fakeRefs {
	return &fakeRefs{
		classes:    make(map[int64]*refclient.VehicleClass),
		drivers:    make(map[int64]*refclient.Driver),
		vehicles:   make(map[int64]*refclient.Vehicle),
		fares:      make(map[int64]*refclient.FareScheme),
		corporates: make(map[int64]*refclient.Corporate),
		promos:     make(map[int64]*refclient.PromoCode),
		users:      make(map[uuid.UUID]*refclient.User),
		failing:    make(map[string]bool),
	}
}

func lookup[K comparable, V any](r *fakeRefs, resource string, m map[K]*V, id K) (*V, error) {
	if r.failing[resource] {
		return nil, errLookupDown
	}
	v, ok := m[id]
	if !ok {
		return nil, refclient.ErrNotFound
	}
	return v, nil
}

func (r *fakeRefs) GetVehicleClass(ctx context.Context, id int64) (*refclient.VehicleClass, error) {
	return lookup(r, "vehicle_class", r.classes, id)
}

func (r *fakeRefs) GetDriver(ctx context.Context, id int64) (*refclient.Driver, error) {
	return lookup(r, "driver", r.drivers, id)
}

func (r *fakeRefs) GetVehicle(ctx context.Context, id int64) (*refclient.Vehicle, error) {
	return lookup(r, "vehicle", r.vehicles, id)
}

func (r *fakeRefs) GetFareScheme(ctx context.Context, id int64) (*refclient.FareScheme, error) {
	return lookup(r, "fare_scheme", r.fares, id)
}

func (r *fakeRefs) GetCorporate(ctx context.Context, id int64) (*refclient.Corporate, error) {
	return lookup(r, "corporate", r.corporates, id)
}

func (r *fakeRefs) GetPromoCode(ctx context.Context, id int64) (*refclient.PromoCode, error) {
	return lookup(r, "promo_code", r.promos, id)
}

func (r *fakeRefs) GetUser(ctx context.Context, id uuid.UUID) (*refclient.User, error) {
	return lookup(r, "user", r.users, id)
}

// ============================================================================
// NOTIFICATION AND EVENT SINKS
// ============================================================================

type sentNotification struct {
	bookingID    string
	templateCode string
	view         *models.BookingView
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, view *models.BookingView, templateCode string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{bookingID: view.BookingID, templateCode: templateCode, view: view})
}

func (n *recordingNotifier) codes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	codes := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		codes = append(codes, s.templateCode)
	}
	return codes
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail map[string]error // by recipient address
}

func (m *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail[msg.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type fakeTemplates struct {
	templates map[string]*models.EmailTemplate
	err       error
}

func (t *fakeTemplates) GetActiveByCode(code string) (*models.EmailTemplate, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.templates[code], nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []events.Message
	failKeys  map[string]bool // message ids that fail
}

func (p *fakePublisher) Publish(ctx context.Context, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failKeys[msg.MessageID] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }
