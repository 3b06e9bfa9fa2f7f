package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/domain"
	"github.com/smarttransit/taxi-booking-backend/internal/middleware"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/internal/utils"
)

// BookingLifecycle is the booking service as seen by the HTTP layer
type BookingLifecycle interface {
	Create(ctx context.Context, req *models.CreateBookingRequest, actor models.Actor) (*models.BookingView, error)
	Update(ctx context.Context, ref string, req *models.UpdateBookingRequest, actor models.Actor) (*models.BookingView, error)
	Dispatch(ctx context.Context, ref string, req *models.DispatchBookingRequest, actor models.Actor) (*models.BookingView, error)
	UpdateStatus(ctx context.Context, ref string, req *models.UpdateStatusRequest, actor models.Actor) (*models.BookingView, error)
	Complete(ctx context.Context, ref string, req *models.CompleteBookingRequest, actor models.Actor) (*models.BookingView, error)
	Cancel(ctx context.Context, ref string, req *models.CancelBookingRequest, actor models.Actor) error
	GetBooking(ctx context.Context, ref string) (*models.BookingView, error)
	GetStatusHistory(ctx context.Context, ref string) ([]models.BookingStatusHistory, error)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BookingHandler handles taxi booking endpoints
type BookingHandler struct {
	bookings BookingLifecycle
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingLifecycle, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// RegisterRoutes mounts the booking endpoints on group
func (h *BookingHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.CreateBooking)
	group.GET("/:id", h.GetBooking)
	group.PUT("/:id", h.UpdateBooking)
	group.POST("/:id/dispatch", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleDispatcher), h.DispatchBooking)
	group.PATCH("/:id/status", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleDispatcher, middleware.RoleDriver), h.UpdateStatus)
	group.POST("/:id/complete", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleDispatcher, middleware.RoleDriver), h.CompleteBooking)
	group.POST("/:id/cancel", h.CancelBooking)
	group.GET("/:id/history", h.GetStatusHistory)
}

// ============================================================================
// CREATE - POST /api/v1/bookings
// ============================================================================

// CreateBooking creates a new taxi booking
// @Summary Create a taxi booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.BookingView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse "Vehicle class or corporate not found"
// @Security BearerAuth
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if !h.bind(c, &req) {
		return
	}

	view, err := h.bookings.Create(c.Request.Context(), &req, actor)
	if err != nil {
		h.respondError(c, "create", err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

// ============================================================================
// GET - GET /api/v1/bookings/:id
// ============================================================================

// GetBooking returns a booking by numeric id or booking id
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Numeric id or BK- booking id"
// @Success 200 {object} models.BookingView
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	view, err := h.bookings.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ============================================================================
// UPDATE - PUT /api/v1/bookings/:id
// ============================================================================

// UpdateBooking edits trip details of an open booking
// @Summary Update a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Numeric id or BK- booking id"
// @Param request body models.UpdateBookingRequest true "Fields to change"
// @Success 200 {object} models.BookingView
// @Failure 404 {object} ErrorResponse "Unknown booking, or another customer's booking"
// @Failure 409 {object} ErrorResponse "Booking closed or modified concurrently"
// @Security BearerAuth
// @Router /bookings/{id} [put]
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req models.UpdateBookingRequest
	if !h.bind(c, &req) {
		return
	}

	view, err := h.bookings.Update(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		h.respondError(c, "update", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ============================================================================
// DISPATCH - POST /api/v1/bookings/:id/dispatch
// ============================================================================

// DispatchBooking assigns a driver and vehicle
// @Summary Dispatch a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Numeric id or BK- booking id"
// @Param request body models.DispatchBookingRequest true "Driver and vehicle"
// @Success 200 {object} models.BookingView
// @Failure 422 {object} ErrorResponse "Driver blocked or inactive"
// @Security BearerAuth
// @Router /bookings/{id}/dispatch [post]
func (h *BookingHandler) DispatchBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req models.DispatchBookingRequest
	if !h.bind(c, &req) {
		return
	}

	view, err := h.bookings.Dispatch(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		h.respondError(c, "dispatch", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ============================================================================
// STATUS - PATCH /api/v1/bookings/:id/status
// ============================================================================

// UpdateStatus moves the booking to an in-trip status
// @Summary Change booking status
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Numeric id or BK- booking id"
// @Param request body models.UpdateStatusRequest true "Target status"
// @Success 200 {object} models.BookingView
// @Failure 403 {object} ErrorResponse "Customers cannot change trip status"
// @Security BearerAuth
// @Router /bookings/{id}/status [patch]
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if !h.bind(c, &req) {
		return
	}

	actor, ok = h.override(c, actor, req.ActorType, req.ActorID)
	if !ok {
		return
	}

	view, err := h.bookings.UpdateStatus(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		h.respondError(c, "update status", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ============================================================================
// COMPLETE - POST /api/v1/bookings/:id/complete
// ============================================================================

// CompleteBooking closes the trip with its fare figures
// @Summary Complete a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Numeric id or BK- booking id"
// @Param request body models.CompleteBookingRequest true "Trip figures"
// @Success 200 {object} models.BookingView
// @Security BearerAuth
// @Router /bookings/{id}/complete [post]
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req models.CompleteBookingRequest
	if !h.bind(c, &req) {
		return
	}

	view, err := h.bookings.Complete(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		h.respondError(c, "complete", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ============================================================================
// CANCEL - POST /api/v1/bookings/:id/cancel
// ============================================================================

// CancelBooking cancels the booking
// @Summary Cancel a booking
// @Tags Bookings
// @Accept json
// @Param id path string true "Numeric id or BK- booking id"
// @Param request body models.CancelBookingRequest true "Cancellation"
// @Success 204
// @Failure 409 {object} ErrorResponse "Already completed or cancelled"
// @Security BearerAuth
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if !h.bind(c, &req) {
		return
	}

	actor, ok = h.override(c, actor, req.CancelledByType, req.CancelledByID)
	if !ok {
		return
	}

	if err := h.bookings.Cancel(c.Request.Context(), c.Param("id"), &req, actor); err != nil {
		h.respondError(c, "cancel", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ============================================================================
// HISTORY - GET /api/v1/bookings/:id/history
// ============================================================================

// GetStatusHistory lists the booking's transitions, newest first
// @Summary Booking status history
// @Tags Bookings
// @Produce json
// @Param id path string true "Numeric id or BK- booking id"
// @Success 200 {array} models.BookingStatusHistory
// @Security BearerAuth
// @Router /bookings/{id}/history [get]
func (h *BookingHandler) GetStatusHistory(c *gin.Context) {
	history, err := h.bookings.GetStatusHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// actor builds the acting party from the authenticated user and the request
func (h *BookingHandler) actor(c *gin.Context) (models.Actor, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User not authenticated",
		})
		return models.Actor{}, false
	}

	userID := userCtx.UserID
	actorType := userCtx.ActorType()
	return models.Actor{
		Type:            actorType,
		ID:              userID.String(),
		UserID:          &userID,
		ClientIP:        utils.GetRealIP(c),
		UserAgent:       utils.GetUserAgent(c),
		OwnBookingsOnly: actorType == models.ActorTypeCustomer,
	}, true
}

// override lets dispatch staff record a change on behalf of a driver or
// customer, e.g. a status phoned in by the driver
func (h *BookingHandler) override(c *gin.Context, actor models.Actor, actorType *models.ActorType, actorID *string) (models.Actor, bool) {
	if actorType == nil && actorID == nil {
		return actor, true
	}

	if actor.Type != models.ActorTypeSystemUser {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Only dispatch staff may act on behalf of another party",
		})
		return actor, false
	}

	if actorType != nil {
		if !actorType.IsValid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "invalid actor type: " + string(*actorType),
			})
			return actor, false
		}
		actor.Type = *actorType
	}
	if actorID != nil {
		actor.ID = *actorID
	}

	return actor, true
}

func (h *BookingHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return false
	}
	return true
}

// respondError maps service errors to HTTP responses
func (h *BookingHandler) respondError(c *gin.Context, operation string, err error) {
	var (
		notFound     domain.NotFoundError
		invalidState domain.InvalidStateError
		conflict     domain.ConflictError
		unavailable  domain.UnavailableError
		validation   domain.ValidationError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: validation.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: notFound.Error()})
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid_state", Message: invalidState.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Message: conflict.Error()})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "unavailable", Message: unavailable.Error()})
	default:
		h.logger.WithFields(logrus.Fields{
			"operation":  operation,
			"booking_id": c.Param("id"),
		}).WithError(err).Error("Booking request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to " + operation + " booking",
		})
	}
}
