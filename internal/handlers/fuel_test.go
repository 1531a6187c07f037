package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-fuel/internal/auth"
	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/fuel"
	"github.com/ukydev/fleet-fuel/internal/metrics"
	"github.com/ukydev/fleet-fuel/internal/middleware"
	"github.com/ukydev/fleet-fuel/internal/models"
	"github.com/ukydev/fleet-fuel/internal/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testServer struct {
	handler http.Handler
	auth    *auth.Service
	store   *db.MemoryStore
	service *fuel.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	log := logrus.NewEntry(logger)

	store := db.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	notifier := notify.New(store, nil, m, log)
	service := fuel.NewService(store.Stores(), notifier, m, log, fuel.Options{})

	authService, err := auth.NewService("test-secret", time.Hour)
	require.NoError(t, err)

	handler := NewRouter(Router{
		Fuel:          NewFuelHandler(service, log),
		Notifications: NewNotificationHandler(notifier, log),
		Auth:          middleware.NewAuthMiddleware(authService),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:           log,
	})
	return &testServer{handler: handler, auth: authService, store: store, service: service}
}

func (s *testServer) do(t *testing.T, role models.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		token, err := s.auth.GenerateToken("u-"+string(role), string(role), role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) seed(t *testing.T) {
	t.Helper()
	w := s.do(t, models.RoleAdmin, "PUT", "/api/config", models.ConfigSet{
		Routes: []models.RouteConfig{{
			Destination: "DAR",
			TotalLiters: 2400,
			GoingPlan:   models.CheckpointLiters{models.CheckpointDarYard: 550, models.CheckpointMbeyaGoing: 450, models.CheckpointZambiaGoing: 600},
			ReturnPlan:  models.CheckpointLiters{models.CheckpointZambiaReturn: 400, models.CheckpointTundumaReturn: 100, models.CheckpointMbeyaReturn: 400},
		}},
		Batches: []models.TruckBatchConfig{{Suffix: "DXY", ExtraLiters: 100}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func deliveryOrder(do string, leg models.JourneyLeg, from, to string, date time.Time) DeliveryOrderRequest {
	return DeliveryOrderRequest{DeliveryOrder: models.DeliveryOrder{
		DONumber:    do,
		TruckNumber: "T699 DXY",
		Leg:         leg,
		From:        from,
		To:          to,
		Date:        date,
	}}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestFuelAPI_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)
	going := time.Date(2025, time.March, 5, 8, 0, 0, 0, time.UTC)

	w := s.do(t, models.RoleFuelOrderMaker, "POST", "/api/delivery-orders",
		deliveryOrder("6038", models.LegGoing, "MOMBASA", "DAR", going))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decodeBody[models.FuelRecord](t, w)
	assert.Equal(t, 900.0, rec.Balance)

	w = s.do(t, models.RoleYardPersonnel, "POST", "/api/yard-dispenses", models.YardDispense{
		TruckNumber: "T699 DXY", Yard: "DAR YARD", Liters: 50, Timestamp: going.AddDate(0, 0, 1),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ev := decodeBody[fuel.EventResult](t, w)
	assert.Equal(t, models.EventLinked, ev.Status)

	d, err := s.store.FindYardDispenseByID(context.Background(), ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, "yard_personnel", d.EnteredBy)

	w = s.do(t, models.RoleFuelOrderMaker, "POST", "/api/delivery-orders",
		deliveryOrder("7001", models.LegReturn, "DAR", "MOMBASA", going.AddDate(0, 0, 7)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[fuel.LinkResult](t, w)
	assert.Equal(t, fuel.LinkLinked, res.Status)
	assert.Equal(t, -50.0, res.Record.Balance)

	w = s.do(t, models.RoleViewer, "GET", "/api/records/"+rec.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, "complete", details["status"])
	assert.NotNil(t, details["return"])

	w = s.do(t, models.RoleViewer, "GET", "/api/records?truck=t699%20dxy&status=complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.FuelRecord](t, w), 1)
}

func TestFuelAPI_ReturnOutcomes(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)
	going := time.Date(2025, time.March, 5, 8, 0, 0, 0, time.UTC)

	w := s.do(t, models.RoleFuelOrderMaker, "POST", "/api/delivery-orders",
		deliveryOrder("7001", models.LegReturn, "DAR", "MOMBASA", going))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	orphaned := decodeBody[fuel.LinkResult](t, w)
	assert.Equal(t, fuel.LinkOrphaned, orphaned.Status)

	w = s.do(t, models.RoleFuelOrderMaker, "POST", "/api/delivery-orders",
		deliveryOrder("6038", models.LegGoing, "MOMBASA", "DAR", going.AddDate(0, 0, -3)))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "7001", decodeBody[models.FuelRecord](t, w).ReturnDO)

	w = s.do(t, models.RoleFuelOrderMaker, "POST", "/api/delivery-orders",
		deliveryOrder("7002", models.LegReturn, "DAR", "MOMBASA", going.AddDate(0, 0, 1)))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	conflict := decodeBody[fuel.LinkResult](t, w)
	assert.Equal(t, fuel.LinkConflict, conflict.Status)
	require.NotNil(t, conflict.Orphan)
	assert.Equal(t, models.OrphanConflict, conflict.Orphan.Reason)

	w = s.do(t, models.RoleSupervisor, "GET", "/api/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[fuel.Pending](t, w).Orphans, 1)
}

func TestFuelAPI_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		role   models.Role
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid json", models.RoleFuelOrderMaker, "POST", "/api/delivery-orders", "not an object", http.StatusBadRequest},
		{"unknown leg", models.RoleFuelOrderMaker, "POST", "/api/delivery-orders", map[string]string{"leg": "sideways"}, http.StatusBadRequest},
		{"missing fields", models.RoleFuelOrderMaker, "POST", "/api/delivery-orders", map[string]string{"leg": "going"}, http.StatusBadRequest},
		{"zero liters lpo", models.RoleStationAttendant, "POST", "/api/lpos", models.LPOEntry{LPONumber: "1", Date: time.Now(), Station: "MBEYA", TruckNumber: "T1 AAA", JourneyType: models.JourneyGoing}, http.StatusBadRequest},
		{"bad record id", models.RoleViewer, "GET", "/api/records/nope", nil, http.StatusBadRequest},
		{"unknown record", models.RoleViewer, "GET", "/api/records/" + primitive.NewObjectID().Hex(), nil, http.StatusNotFound},
		{"bad limit", models.RoleViewer, "GET", "/api/records?limit=-1", nil, http.StatusBadRequest},
		{"bad from date", models.RoleViewer, "GET", "/api/records?from=yesterday", nil, http.StatusBadRequest},
		{"bad status", models.RoleViewer, "GET", "/api/records?status=archived", nil, http.StatusBadRequest},
		{"cancel without reason", models.RoleManager, "POST", "/api/records/" + primitive.NewObjectID().Hex() + "/cancel", map[string]string{}, http.StatusBadRequest},
		{"orphan link without record", models.RoleSupervisor, "POST", "/api/orphans/" + primitive.NewObjectID().Hex() + "/link", map[string]string{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.role, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestFuelAPI_Permissions(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		role   models.Role
		method string
		path   string
		want   int
	}{
		{"no token", "", "GET", "/api/records", http.StatusUnauthorized},
		{"viewer cannot create orders", models.RoleViewer, "POST", "/api/delivery-orders", http.StatusForbidden},
		{"yard personnel cannot enter lpos", models.RoleYardPersonnel, "POST", "/api/lpos", http.StatusForbidden},
		{"supervisor cannot cancel", models.RoleSupervisor, "POST", "/api/records/" + primitive.NewObjectID().Hex() + "/cancel", http.StatusForbidden},
		{"manager cannot seed config", models.RoleManager, "PUT", "/api/config", http.StatusForbidden},
		{"viewer cannot read notifications", models.RoleViewer, "GET", "/api/notifications", http.StatusForbidden},
		{"health is public", "", "GET", "/health", http.StatusOK},
		{"metrics are public", "", "GET", "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.role, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestFuelAPI_EventsAndManualLinks(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)
	going := time.Date(2025, time.March, 5, 8, 0, 0, 0, time.UTC)

	w := s.do(t, models.RoleFuelOrderMaker, "POST", "/api/delivery-orders",
		deliveryOrder("6038", models.LegGoing, "MOMBASA", "DAR", going))
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decodeBody[models.FuelRecord](t, w)

	w = s.do(t, models.RoleStationAttendant, "POST", "/api/lpos", models.LPOEntry{
		LPONumber: "LPO-7", Date: going.AddDate(0, 0, 2), Station: "NAKONDE", TruckNumber: "T699 DXY",
		DONumber: "6038", Liters: 80, PricePerLiter: 3100, JourneyType: models.JourneyGoing,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	pending := decodeBody[fuel.EventResult](t, w)

	w = s.do(t, models.RoleSupervisor, "POST", "/api/lpos/"+pending.EventID.Hex()+"/link", fuel.ManualLink{
		RecordID: rec.ID, Leg: models.LegGoing, Checkpoint: models.CheckpointTdmGoing,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, models.RoleSupervisor, "POST", "/api/lpos/"+pending.EventID.Hex()+"/link", fuel.ManualLink{
		RecordID: rec.ID, Leg: models.LegGoing, Checkpoint: models.CheckpointTdmGoing,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, models.RoleYardPersonnel, "POST", "/api/yard-dispenses", models.YardDispense{
		TruckNumber: "T9 ZZZ", Yard: "DAR YARD", Liters: 30, Timestamp: going,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	dispense := decodeBody[fuel.EventResult](t, w)

	w = s.do(t, models.RoleSupervisor, "POST", "/api/yard-dispenses/"+dispense.EventID.Hex()+"/link", fuel.ManualLink{
		RecordID: rec.ID, Leg: models.LegGoing,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	linked := decodeBody[fuel.EventResult](t, w)
	assert.Equal(t, models.CheckpointDarYard, linked.Target.Checkpoint)

	w = s.do(t, models.RoleSupervisor, "PATCH", "/api/records/"+rec.ID.Hex()+"/checkpoints", fuel.Amendment{
		Leg: models.LegGoing, Checkpoint: models.CheckpointMoroGoing, Liters: 20, Statement: "receipt found",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	extra := 300.0
	w = s.do(t, models.RoleManager, "PATCH", "/api/records/"+rec.ID.Hex()+"/allowance", fuel.AllowanceChange{ExtraLiters: &extra})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	adjusted := decodeBody[models.FuelRecord](t, w)
	// 2400 + 300 - (550+30) - 450 - 600 - 80 - 20
	assert.Equal(t, 970.0, adjusted.Balance)

	w = s.do(t, models.RoleManager, "POST", "/api/records/"+rec.ID.Hex()+"/cancel", map[string]string{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, w.Code)
	cancelled := decodeBody[models.FuelRecord](t, w)
	assert.True(t, cancelled.Cancelled)
	assert.Equal(t, "manager", cancelled.CancelledBy)
	assert.Equal(t, 970.0, cancelled.Balance)

	w = s.do(t, models.RoleSupervisor, "PATCH", "/api/records/"+rec.ID.Hex()+"/checkpoints", fuel.Amendment{
		Leg: models.LegGoing, Checkpoint: models.CheckpointMoroGoing, Liters: 10,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, models.RoleAdmin, "POST", "/api/pending/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNotificationsAPI_RenderedByRole(t *testing.T) {
	s := newTestServer(t)
	going := time.Date(2025, time.March, 5, 8, 0, 0, 0, time.UTC)

	w := s.do(t, models.RoleFuelOrderMaker, "POST", "/api/delivery-orders",
		deliveryOrder("6038", models.LegGoing, "MOMBASA", "KOLWEZI", going))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, models.RoleAdmin, "GET", "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	adminViews := decodeBody[[]NotificationView](t, w)
	require.Len(t, adminViews, 1)
	assert.Equal(t, models.AudienceAdmin, adminViews[0].Message.Audience)
	assert.Equal(t, models.NotifyMissingBoth, adminViews[0].Type)

	w = s.do(t, models.RoleSupervisor, "GET", "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	opViews := decodeBody[[]NotificationView](t, w)
	require.Len(t, opViews, 1)
	assert.Equal(t, "Contact admin or edit the record manually.", opViews[0].Message.Action)

	w = s.do(t, models.RoleSupervisor, "GET", "/api/notifications?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, models.RoleAdmin, "PUT", "/api/config", models.ConfigSet{
		Routes:  []models.RouteConfig{{Destination: "Kolwezi", TotalLiters: 3000}},
		Batches: []models.TruckBatchConfig{{Suffix: "DXY", ExtraLiters: 100}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeBody[fuel.ConfigReport](t, w)
	assert.Equal(t, int64(1), report.Resolved)

	w = s.do(t, models.RoleAdmin, "GET", "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[[]NotificationView](t, w))

	w = s.do(t, models.RoleAdmin, "GET", "/api/notifications?status=resolved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]NotificationView](t, w), 1)
}

// MockFuelService is a mock implementation of FuelService
type MockFuelService struct {
	mock.Mock
}

func (m *MockFuelService) CreateGoing(ctx context.Context, req fuel.GoingRequest) (*models.FuelRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FuelRecord), args.Error(1)
}

func (m *MockFuelService) LinkReturn(ctx context.Context, order models.DeliveryOrder) (fuel.LinkResult, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(fuel.LinkResult), args.Error(1)
}

func (m *MockFuelService) LinkReturnManually(ctx context.Context, orphanID, recordID primitive.ObjectID, actor string) (fuel.LinkResult, error) {
	args := m.Called(ctx, orphanID, recordID, actor)
	return args.Get(0).(fuel.LinkResult), args.Error(1)
}

func (m *MockFuelService) Details(ctx context.Context, id primitive.ObjectID) (*fuel.Details, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fuel.Details), args.Error(1)
}

func (m *MockFuelService) ListRecords(ctx context.Context, filter db.FuelRecordFilter) ([]models.FuelRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FuelRecord), args.Error(1)
}

func (m *MockFuelService) AmendCheckpoint(ctx context.Context, id primitive.ObjectID, a fuel.Amendment) (*models.FuelRecord, error) {
	args := m.Called(ctx, id, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FuelRecord), args.Error(1)
}

func (m *MockFuelService) AdjustAllowance(ctx context.Context, id primitive.ObjectID, c fuel.AllowanceChange) (*models.FuelRecord, error) {
	args := m.Called(ctx, id, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FuelRecord), args.Error(1)
}

func (m *MockFuelService) Cancel(ctx context.Context, id primitive.ObjectID, reason, actor string) (*models.FuelRecord, error) {
	args := m.Called(ctx, id, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FuelRecord), args.Error(1)
}

func (m *MockFuelService) AttachLPO(ctx context.Context, lpo models.LPOEntry) (fuel.EventResult, error) {
	args := m.Called(ctx, lpo)
	return args.Get(0).(fuel.EventResult), args.Error(1)
}

func (m *MockFuelService) LinkLPO(ctx context.Context, id primitive.ObjectID, link fuel.ManualLink) (fuel.EventResult, error) {
	args := m.Called(ctx, id, link)
	return args.Get(0).(fuel.EventResult), args.Error(1)
}

func (m *MockFuelService) RecordYardDispense(ctx context.Context, d models.YardDispense) (fuel.EventResult, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(fuel.EventResult), args.Error(1)
}

func (m *MockFuelService) LinkYardDispense(ctx context.Context, id primitive.ObjectID, link fuel.ManualLink) (fuel.EventResult, error) {
	args := m.Called(ctx, id, link)
	return args.Get(0).(fuel.EventResult), args.Error(1)
}

func (m *MockFuelService) RejectYardDispense(ctx context.Context, id primitive.ObjectID, reason, actor string) (*models.YardDispense, error) {
	args := m.Called(ctx, id, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.YardDispense), args.Error(1)
}

func (m *MockFuelService) PendingQueue(ctx context.Context, truck string) (fuel.Pending, error) {
	args := m.Called(ctx, truck)
	return args.Get(0).(fuel.Pending), args.Error(1)
}

func (m *MockFuelService) RetryPending(ctx context.Context) (fuel.RetryReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(fuel.RetryReport), args.Error(1)
}

func (m *MockFuelService) ApplyConfig(ctx context.Context, set models.ConfigSet, actor string) (fuel.ConfigReport, error) {
	args := m.Called(ctx, set, actor)
	return args.Get(0).(fuel.ConfigReport), args.Error(1)
}

func TestFuelHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"version conflict", db.ErrVersionConflict, http.StatusConflict},
		{"wrapped not found", errors.Join(errors.New("load"), db.ErrNotFound), http.StatusNotFound},
		{"cancelled", fuel.ErrCancelled, http.StatusConflict},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := logtest.NewNullLogger()
			svc := new(MockFuelService)
			svc.On("RetryPending", mock.Anything).Return(fuel.RetryReport{}, tt.err)
			h := NewFuelHandler(svc, logrus.NewEntry(logger))

			w := httptest.NewRecorder()
			h.RetryPending(w, httptest.NewRequest("POST", "/api/pending/retry", nil))

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "connection reset")
				require.NotNil(t, hook.LastEntry())
				assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestFuelHandler_ListRecordsFilter(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	svc := new(MockFuelService)
	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	svc.On("ListRecords", mock.Anything, db.FuelRecordFilter{
		TruckNumber: "T699 DXY",
		Status:      models.RecordInProgress,
		From:        from,
		Limit:       10,
	}).Return(nil, nil)
	h := NewFuelHandler(svc, logrus.NewEntry(logger))

	w := httptest.NewRecorder()
	h.ListRecords(w, httptest.NewRequest("GET", "/api/records?truck=T699+DXY&status=in_progress&from=2025-03-01&limit=10", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
	svc.AssertExpectations(t)
}
