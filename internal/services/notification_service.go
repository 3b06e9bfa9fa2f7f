package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"sync"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/metrics"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/pkg/mailer"
)

// Notifier sends the email that belongs to a lifecycle event. It never
// reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, view *models.BookingView, templateCode string)
}

// NopNotifier discards every notification
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *models.BookingView, string) {}

// TemplateStore reads email templates
type TemplateStore interface {
	GetActiveByCode(code string) (*models.EmailTemplate, error)
}

const timeLayout = "2006-01-02 15:04"

// NotificationService renders booking templates and emails the customer
// and the assigned driver
type NotificationService struct {
	templates TemplateStore
	refs      ReferenceLookup
	mailer    mailer.Mailer
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(
	templates TemplateStore,
	refs ReferenceLookup,
	mail mailer.Mailer,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *NotificationService {
	return &NotificationService{
		templates: templates,
		refs:      refs,
		mailer:    mail,
		metrics:   m,
		logger:    logger,
	}
}

// Notify sends templateCode to every recipient it can resolve
func (s *NotificationService) Notify(ctx context.Context, view *models.BookingView, templateCode string) {
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": view.BookingID,
		"template":   templateCode,
	})

	// 1. Load template
	tmpl, err := s.templates.GetActiveByCode(templateCode)
	if err != nil {
		s.fail(log.WithError(err), "template", "Failed to load email template")
		return
	}
	if tmpl == nil {
		s.fail(log, "template", "No active email template")
		return
	}

	vars := NotificationVariables(view)

	// 2. Customer
	if view.CustomerEmail != nil && *view.CustomerEmail != "" {
		s.send(ctx, log, tmpl, vars, *view.CustomerEmail, view.CustomerName, "customer")
	}

	// 3. Driver, through the driver's user account
	if view.DriverID == nil {
		return
	}
	driver, err := s.refs.GetDriver(ctx, *view.DriverID)
	if err != nil {
		s.fail(log.WithError(err), "driver_lookup", "Failed to resolve driver for notification")
		return
	}
	if driver.UserID == nil {
		log.WithField("driver_id", driver.ID).Debug("Driver has no linked user account")
		return
	}
	user, err := s.refs.GetUser(ctx, *driver.UserID)
	if err != nil {
		s.fail(log.WithError(err), "driver_lookup", "Failed to resolve driver user account")
		return
	}
	if user.Email == "" {
		return
	}
	s.send(ctx, log, tmpl, vars, user.Email, user.FullName(), "driver")
}

func (s *NotificationService) send(
	ctx context.Context,
	log *logrus.Entry,
	tmpl *models.EmailTemplate,
	vars map[string]string,
	to, name, recipient string,
) {
	log = log.WithField("recipient", recipient)

	recipientVars := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		recipientVars[k] = v
	}
	recipientVars["RecipientName"] = name

	msg, err := renderTemplate(tmpl, recipientVars)
	if err != nil {
		s.fail(log.WithError(err), "render", "Failed to render email template")
		return
	}
	msg.To = to
	msg.ToName = name

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.fail(log.WithError(err), "send", "Failed to send booking email")
		return
	}

	s.metrics.NotificationsSentTotal.WithLabelValues(tmpl.Code, recipient).Inc()
	log.Info("Booking email sent")
}

func (s *NotificationService) fail(log *logrus.Entry, stage, msg string) {
	s.metrics.NotificationFailuresTotal.WithLabelValues(stage).Inc()
	log.WithField("stage", stage).Warn(msg)
}

// NotificationVariables builds the template variables for a booking.
// Unresolved values are empty strings.
func NotificationVariables(view *models.BookingView) map[string]string {
	vars := map[string]string{
		"BookingID":          view.BookingID,
		"CustomerName":       view.CustomerName,
		"PickupAddress":      view.PickupAddress,
		"DropAddress":        deref(view.DropAddress),
		"PickupTime":         "",
		"VehicleClass":       deref(view.VehicleClassName),
		"DriverName":         deref(view.DriverName),
		"DriverContact":      deref(view.DriverContact),
		"VehicleRegNumber":   deref(view.VehicleRegNumber),
		"ETA":                "",
		"TotalFare":          "",
		"TotalDistance":      "",
		"CancellationReason": "",
	}

	if view.PickupTime != nil {
		vars["PickupTime"] = view.PickupTime.Format(timeLayout)
	} else {
		vars["PickupTime"] = view.BookingTime.Format(timeLayout)
	}
	if view.ETAMinutes != nil {
		vars["ETA"] = strconv.Itoa(*view.ETAMinutes)
	}
	if view.TotalFare != nil {
		vars["TotalFare"] = strconv.FormatFloat(*view.TotalFare, 'f', 2, 64)
	}
	if view.TotalDistance != nil {
		vars["TotalDistance"] = strconv.FormatFloat(*view.TotalDistance, 'f', 1, 64)
	}
	if view.Cancellation != nil {
		vars["CancellationReason"] = view.Cancellation.Reason
	}

	return vars
}

func renderTemplate(tmpl *models.EmailTemplate, vars map[string]string) (mailer.Message, error) {
	subject, err := renderText(tmpl.Code+":subject", tmpl.Subject, vars)
	if err != nil {
		return mailer.Message{}, err
	}

	var body string
	if tmpl.IsHTML {
		body, err = renderHTML(tmpl.Code+":body", tmpl.Body, vars)
	} else {
		body, err = renderText(tmpl.Code+":body", tmpl.Body, vars)
	}
	if err != nil {
		return mailer.Message{}, err
	}

	return mailer.Message{Subject: subject, Body: body, HTML: tmpl.IsHTML}, nil
}

func renderText(name, text string, vars map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderHTML(name, text string, vars map[string]string) (string, error) {
	t, err := htmltemplate.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ============================================================================
// ASYNC DISPATCH
// ============================================================================

type notification struct {
	view         *models.BookingView
	templateCode string
}

// AsyncNotifier queues notifications for a fixed pool of workers so the
// lifecycle operation returns without waiting for the mail server
type AsyncNotifier struct {
	next    Notifier
	queue   chan notification
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *logrus.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

// NewAsyncNotifier starts workers goroutines draining a queue of queueSize
func NewAsyncNotifier(next Notifier, workers, queueSize int, timeout time.Duration, m *metrics.Metrics, logger *logrus.Logger) *AsyncNotifier {
	n := &AsyncNotifier{
		next:    next,
		queue:   make(chan notification, queueSize),
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}

	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	return n
}

// Notify enqueues the notification, dropping it when the queue is full
func (n *AsyncNotifier) Notify(_ context.Context, view *models.BookingView, templateCode string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	log := n.logger.WithFields(logrus.Fields{
		"booking_id": view.BookingID,
		"template":   templateCode,
	})

	if n.closed {
		n.metrics.NotificationsDropped.Inc()
		log.Warn("Notifier closed, dropping notification")
		return
	}

	select {
	case n.queue <- notification{view: view, templateCode: templateCode}:
		n.metrics.NotificationQueueDepth.Inc()
	default:
		n.metrics.NotificationsDropped.Inc()
		log.Warn("Notification queue full, dropping notification")
	}
}

// Close stops accepting notifications and waits for queued ones to finish
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *AsyncNotifier) worker() {
	defer n.wg.Done()

	for item := range n.queue {
		n.metrics.NotificationQueueDepth.Dec()

		// The request context is gone by now
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		n.next.Notify(ctx, item.view, item.templateCode)
		cancel()
	}
}
