package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/taxi-booking-backend/internal/domain"
	"github.com/smarttransit/taxi-booking-backend/internal/middleware"
	"github.com/smarttransit/taxi-booking-backend/internal/models"
	"github.com/smarttransit/taxi-booking-backend/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// stubLifecycle returns err, or a view echoing the ref, and remembers the last call
type stubLifecycle struct {
	err       error
	lastRef   string
	lastActor models.Actor
	lastReq   interface{}
}

func (s *stubLifecycle) result(ref string, req interface{}, actor models.Actor) (*models.BookingView, error) {
	s.lastRef, s.lastReq, s.lastActor = ref, req, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.BookingView{Booking: models.Booking{ID: 42, BookingID: "BK-GEN-1767225600000ABCD", Status: models.BookingStatusPending}}, nil
}

func (s *stubLifecycle) Create(ctx context.Context, req *models.CreateBookingRequest, actor models.Actor) (*models.BookingView, error) {
	return s.result("", req, actor)
}

func (s *stubLifecycle) Update(ctx context.Context, ref string, req *models.UpdateBookingRequest, actor models.Actor) (*models.BookingView, error) {
	return s.result(ref, req, actor)
}

func (s *stubLifecycle) Dispatch(ctx context.Context, ref string, req *models.DispatchBookingRequest, actor models.Actor) (*models.BookingView, error) {
	return s.result(ref, req, actor)
}

func (s *stubLifecycle) UpdateStatus(ctx context.Context, ref string, req *models.UpdateStatusRequest, actor models.Actor) (*models.BookingView, error) {
	return s.result(ref, req, actor)
}

func (s *stubLifecycle) Complete(ctx context.Context, ref string, req *models.CompleteBookingRequest, actor models.Actor) (*models.BookingView, error) {
	return s.result(ref, req, actor)
}

func (s *stubLifecycle) Cancel(ctx context.Context, ref string, req *models.CancelBookingRequest, actor models.Actor) error {
	_, err := s.result(ref, req, actor)
	return err
}

func (s *stubLifecycle) GetBooking(ctx context.Context, ref string) (*models.BookingView, error) {
	return s.result(ref, nil, models.Actor{})
}

func (s *stubLifecycle) GetStatusHistory(ctx context.Context, ref string) ([]models.BookingStatusHistory, error) {
	s.lastRef = ref
	if s.err != nil {
		return nil, s.err
	}
	return []models.BookingStatusHistory{
		{ID: 2, BookingID: 42, NewStatus: models.BookingStatusDispatched},
		{ID: 1, BookingID: 42, NewStatus: models.BookingStatusPending},
	}, nil
}

type handlerFixture struct {
	router  *gin.Engine
	service *stubLifecycle
	jwt     *jwt.Service
	userID  uuid.UUID
}

func newHandlerFixture() *handlerFixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	fx := &handlerFixture{
		router:  gin.New(),
		service: &stubLifecycle{},
		jwt:     jwt.NewService("test-secret", time.Hour),
		userID:  uuid.New(),
	}

	group := fx.router.Group("/api/v1/bookings")
	group.Use(middleware.AuthMiddleware(fx.jwt, logger))
	NewBookingHandler(fx.service, logger).RegisterRoutes(group)

	return fx
}

func (fx *handlerFixture) do(t *testing.T, method, path string, body interface{}, roles ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if len(roles) > 0 {
		token, err := fx.jwt.GenerateAccessToken(fx.userID, roles)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBookingHandler_Create(t *testing.T) {
	t.Run("Created by a customer", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPost, "/api/v1/bookings", map[string]interface{}{
			"customer_name":  "Kamal Silva",
			"customer_phone": "0771234567",
			"pickup_address": "Galle Face Green",
		}, middleware.RoleCustomer)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, models.ActorTypeCustomer, fx.service.lastActor.Type)
		assert.Equal(t, fx.userID.String(), fx.service.lastActor.ID)
		assert.Equal(t, fx.userID, *fx.service.lastActor.UserID)
		assert.Equal(t, "203.0.113.9", fx.service.lastActor.ClientIP)
		assert.Contains(t, fx.service.lastActor.UserAgent, "iPhone")

		var view models.BookingView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, "BK-GEN-1767225600000ABCD", view.BookingID)
	})

	t.Run("Missing token", func(t *testing.T) {
		fx := newHandlerFixture()
		w := fx.do(t, http.MethodPost, "/api/v1/bookings", map[string]interface{}{"customer_name": "Kamal"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Binding failures", func(t *testing.T) {
		fx := newHandlerFixture()

		cases := []map[string]interface{}{
			{"pickup_address": "Galle Face Green"},
			{"customer_name": "Kamal", "pickup_address": "Fort", "customer_phone": "0731234567"},
			{"customer_name": "Kamal", "pickup_address": "Fort", "customer_email": "not-an-email"},
			{"customer_name": "Kamal", "pickup_address": "Fort", "passenger_count": 11},
			{"customer_name": "Kamal", "pickup_address": "Fort", "pickup_latitude": 123.4},
		}
		for _, body := range cases {
			w := fx.do(t, http.MethodPost, "/api/v1/bookings", body, middleware.RoleCustomer)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			assert.Equal(t, "invalid_request", decodeError(t, w).Error)
		}
	})
}

func TestBookingHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Validation", domain.ValidationError{Field: "status", Msg: "use the complete operation"}, http.StatusBadRequest, "validation_error"},
		{"Not found", domain.NotFoundError{Resource: "booking", ID: "99"}, http.StatusNotFound, "not_found"},
		{"Invalid state", domain.InvalidStateError{Operation: "update", Status: "COMPLETED"}, http.StatusConflict, "invalid_state"},
		{"Conflict", domain.ConflictError{Resource: "booking", Msg: "booking was modified concurrently"}, http.StatusConflict, "conflict"},
		{"Unavailable", domain.UnavailableError{Resource: "driver", Reason: "driver is blocked"}, http.StatusUnprocessableEntity, "unavailable"},
		{"Wrapped not found", fmt.Errorf("lookup: %w", domain.NotFoundError{Resource: "driver"}), http.StatusNotFound, "not_found"},
		{"Internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newHandlerFixture()
			fx.service.err = tt.err

			w := fx.do(t, http.MethodGet, "/api/v1/bookings/BK-GEN-1ABCD", nil, middleware.RoleCustomer)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Error)
			assert.NotContains(t, resp.Message, "pq:")
		})
	}
}

func TestBookingHandler_Dispatch(t *testing.T) {
	body := map[string]interface{}{"driver_id": 1, "vehicle_id": 100, "eta_minutes": 7}

	t.Run("Dispatcher", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/dispatch", body, middleware.RoleDispatcher)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "42", fx.service.lastRef)
		assert.Equal(t, models.ActorTypeSystemUser, fx.service.lastActor.Type)
		req := fx.service.lastReq.(*models.DispatchBookingRequest)
		assert.Equal(t, int64(100), req.VehicleID)
		assert.Equal(t, 7, *req.ETAMinutes)
	})

	t.Run("Customer is forbidden", func(t *testing.T) {
		fx := newHandlerFixture()
		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/dispatch", body, middleware.RoleCustomer)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Nil(t, fx.service.lastReq)
	})

	t.Run("Driver id required", func(t *testing.T) {
		fx := newHandlerFixture()
		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/dispatch", map[string]interface{}{"vehicle_id": 100}, middleware.RoleAdmin)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBookingHandler_UpdateStatus(t *testing.T) {
	t.Run("Driver reports arrival", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPatch, "/api/v1/bookings/BK-GEN-1ABCD/status", map[string]interface{}{
			"status": "waiting_for_customer",
		}, middleware.RoleDriver)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "BK-GEN-1ABCD", fx.service.lastRef)
		assert.Equal(t, models.ActorTypeDriver, fx.service.lastActor.Type)
	})

	t.Run("Unknown status", func(t *testing.T) {
		fx := newHandlerFixture()
		w := fx.do(t, http.MethodPatch, "/api/v1/bookings/42/status", map[string]interface{}{"status": "FLYING"}, middleware.RoleDriver)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Staff acting for the driver", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPatch, "/api/v1/bookings/42/status", map[string]interface{}{
			"status":     "ENROUTE",
			"actor_type": "DRIVER",
			"actor_id":   "driver-1",
		}, middleware.RoleDispatcher)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.ActorTypeDriver, fx.service.lastActor.Type)
		assert.Equal(t, "driver-1", fx.service.lastActor.ID)
		assert.Equal(t, fx.userID, *fx.service.lastActor.UserID)
	})

	t.Run("Customer cannot impersonate", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPatch, "/api/v1/bookings/42/status", map[string]interface{}{
			"status":     "ENROUTE",
			"actor_type": "DRIVER",
		}, middleware.RoleCustomer)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Nil(t, fx.service.lastReq)
	})

	t.Run("Invalid override actor type", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPatch, "/api/v1/bookings/42/status", map[string]interface{}{
			"status":     "ENROUTE",
			"actor_type": "ROBOT",
		}, middleware.RoleAdmin)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", decodeError(t, w).Error)
	})
}

func TestBookingHandler_Cancel(t *testing.T) {
	t.Run("No content", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/cancel", map[string]interface{}{
			"reason":           "found another ride",
			"cancellation_fee": 150,
		}, middleware.RoleCustomer)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.Bytes())
		req := fx.service.lastReq.(*models.CancelBookingRequest)
		assert.Equal(t, 150.0, *req.CancellationFee)
	})

	t.Run("Reason required", func(t *testing.T) {
		fx := newHandlerFixture()
		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/cancel", map[string]interface{}{}, middleware.RoleCustomer)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Already completed", func(t *testing.T) {
		fx := newHandlerFixture()
		fx.service.err = domain.InvalidStateError{Operation: "cancel", Status: "COMPLETED"}

		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/cancel", map[string]interface{}{"reason": "late"}, middleware.RoleCustomer)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "invalid_state", decodeError(t, w).Error)
	})
}

func TestBookingHandler_CompleteAndHistory(t *testing.T) {
	fx := newHandlerFixture()

	w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/complete", map[string]interface{}{
		"total_distance": 12.4,
		"total_fare":     1850,
	}, middleware.RoleDriver)
	assert.Equal(t, http.StatusOK, w.Code)

	w = fx.do(t, http.MethodPost, "/api/v1/bookings/42/complete", map[string]interface{}{"total_fare": -5}, middleware.RoleDriver)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = fx.do(t, http.MethodPost, "/api/v1/bookings/42/complete", map[string]interface{}{}, middleware.RoleCustomer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.do(t, http.MethodGet, "/api/v1/bookings/42/history", nil, middleware.RoleCustomer)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		History []models.BookingStatusHistory `json:"history"`
		Count   int                           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, models.BookingStatusDispatched, resp.History[0].NewStatus)
}

func TestBookingHandler_Update(t *testing.T) {
	fx := newHandlerFixture()

	w := fx.do(t, http.MethodPut, "/api/v1/bookings/42", map[string]interface{}{
		"pickup_address": "Colombo Fort",
		"version":        3,
	}, middleware.RoleDispatcher)

	assert.Equal(t, http.StatusOK, w.Code)
	req := fx.service.lastReq.(*models.UpdateBookingRequest)
	assert.Equal(t, "Colombo Fort", *req.PickupAddress)
	assert.Equal(t, int64(3), *req.Version)
}

func TestBookingHandler_AccessRules(t *testing.T) {
	t.Run("Customer cannot move trip status", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPatch, "/api/v1/bookings/42/status", map[string]interface{}{
			"status": "PASSENGER_ONBOARD",
		}, middleware.RoleCustomer)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Nil(t, fx.service.lastReq)
	})

	t.Run("Customer edits are limited to their own bookings", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPut, "/api/v1/bookings/42", map[string]interface{}{"pickup_address": "Kandy"}, middleware.RoleCustomer)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, fx.service.lastActor.OwnBookingsOnly)

		w = fx.do(t, http.MethodPost, "/api/v1/bookings/42/cancel", map[string]interface{}{"reason": "late"}, middleware.RoleCustomer)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, fx.service.lastActor.OwnBookingsOnly)
	})

	t.Run("Another customer's booking is not found", func(t *testing.T) {
		fx := newHandlerFixture()
		fx.service.err = domain.NotFoundError{Resource: "booking", ID: "42"}

		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/cancel", map[string]interface{}{"reason": "prank"}, middleware.RoleCustomer)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w).Error)
	})

	t.Run("Staff and drivers are not limited", func(t *testing.T) {
		fx := newHandlerFixture()

		w := fx.do(t, http.MethodPost, "/api/v1/bookings/42/cancel", map[string]interface{}{
			"reason":            "customer phoned in",
			"cancelled_by_type": "CUSTOMER",
		}, middleware.RoleDispatcher)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, models.ActorTypeCustomer, fx.service.lastActor.Type)
		assert.False(t, fx.service.lastActor.OwnBookingsOnly)

		w = fx.do(t, http.MethodPut, "/api/v1/bookings/42", map[string]interface{}{"special_remarks": "gate 2"}, middleware.RoleDriver)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, fx.service.lastActor.OwnBookingsOnly)
	})
}
