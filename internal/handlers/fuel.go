package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/fuel"
	"github.com/ukydev/fleet-fuel/internal/middleware"
	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FuelService is the reconciliation core as the HTTP layer sees it.
type FuelService interface {
	CreateGoing(ctx context.Context, req fuel.GoingRequest) (*models.FuelRecord, error)
	LinkReturn(ctx context.Context, order models.DeliveryOrder) (fuel.LinkResult, error)
	LinkReturnManually(ctx context.Context, orphanID, recordID primitive.ObjectID, actor string) (fuel.LinkResult, error)
	Details(ctx context.Context, id primitive.ObjectID) (*fuel.Details, error)
	ListRecords(ctx context.Context, filter db.FuelRecordFilter) ([]models.FuelRecord, error)
	AmendCheckpoint(ctx context.Context, id primitive.ObjectID, a fuel.Amendment) (*models.FuelRecord, error)
	AdjustAllowance(ctx context.Context, id primitive.ObjectID, c fuel.AllowanceChange) (*models.FuelRecord, error)
	Cancel(ctx context.Context, id primitive.ObjectID, reason, actor string) (*models.FuelRecord, error)
	AttachLPO(ctx context.Context, lpo models.LPOEntry) (fuel.EventResult, error)
	LinkLPO(ctx context.Context, id primitive.ObjectID, link fuel.ManualLink) (fuel.EventResult, error)
	RecordYardDispense(ctx context.Context, d models.YardDispense) (fuel.EventResult, error)
	LinkYardDispense(ctx context.Context, id primitive.ObjectID, link fuel.ManualLink) (fuel.EventResult, error)
	RejectYardDispense(ctx context.Context, id primitive.ObjectID, reason, actor string) (*models.YardDispense, error)
	PendingQueue(ctx context.Context, truck string) (fuel.Pending, error)
	RetryPending(ctx context.Context) (fuel.RetryReport, error)
	ApplyConfig(ctx context.Context, set models.ConfigSet, actor string) (fuel.ConfigReport, error)
}

// FuelHandler serves the fuel record API.
type FuelHandler struct {
	service FuelService
	log     *logrus.Entry
}

// NewFuelHandler creates a new fuel handler
func NewFuelHandler(service FuelService, log *logrus.Entry) *FuelHandler {
	return &FuelHandler{service: service, log: log.WithField("component", "http")}
}

// DeliveryOrderRequest is the body of POST /api/delivery-orders. The
// allowance fields apply to going orders only.
type DeliveryOrderRequest struct {
	models.DeliveryOrder
	StartLocation string  `json:"start_location,omitempty"`
	TotalLiters   float64 `json:"total_liters,omitempty"`
	ExtraLiters   float64 `json:"extra_liters,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type orphanLinkRequest struct {
	RecordID primitive.ObjectID `json:"record_id"`
}

// SubmitDeliveryOrder creates a record for a going DO or links a return DO.
func (h *FuelHandler) SubmitDeliveryOrder(w http.ResponseWriter, r *http.Request) {
	var req DeliveryOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	switch req.Leg {
	case models.LegGoing:
		rec, err := h.service.CreateGoing(r.Context(), fuel.GoingRequest{
			Order:         req.DeliveryOrder,
			StartLocation: req.StartLocation,
			TotalLiters:   req.TotalLiters,
			ExtraLiters:   req.ExtraLiters,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	case models.LegReturn:
		res, err := h.service.LinkReturn(r.Context(), req.DeliveryOrder)
		if errors.Is(err, fuel.ErrConflict) {
			writeJSON(w, http.StatusConflict, res)
			return
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		status := http.StatusOK
		if res.Status == fuel.LinkOrphaned {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)
	default:
		http.Error(w, "leg must be going or return", http.StatusBadRequest)
	}
}

// ListRecords lists records by truck, status and date range.
func (h *FuelHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.FuelRecordFilter{
		TruckNumber: q.Get("truck"),
		Status:      models.RecordStatus(q.Get("status")),
	}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		http.Error(w, "Invalid from date", http.StatusBadRequest)
		return
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		http.Error(w, "Invalid to date", http.StatusBadRequest)
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.ParseInt(v, 10, 64)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	records, err := h.service.ListRecords(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []models.FuelRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetRecord returns the details view of a record.
func (h *FuelHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	details, err := h.service.Details(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// AmendCheckpoint sets one checkpoint by hand.
func (h *FuelHandler) AmendCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var a fuel.Amendment
	if !h.decode(w, r, &a) {
		return
	}
	a.Actor = actor(r)
	rec, err := h.service.AmendCheckpoint(r.Context(), id, a)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// AdjustAllowance overrides total or extra liters.
func (h *FuelHandler) AdjustAllowance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var c fuel.AllowanceChange
	if !h.decode(w, r, &c) {
		return
	}
	c.Actor = actor(r)
	rec, err := h.service.AdjustAllowance(r.Context(), id, c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelRecord cancels a record.
func (h *FuelHandler) CancelRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.Cancel(r.Context(), id, req.Reason, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// SubmitLPO records an LPO.
func (h *FuelHandler) SubmitLPO(w http.ResponseWriter, r *http.Request) {
	var lpo models.LPOEntry
	if !h.decode(w, r, &lpo) {
		return
	}
	res, err := h.service.AttachLPO(r.Context(), lpo)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, eventStatus(res), res)
}

// LinkLPO links a pending LPO by hand.
func (h *FuelHandler) LinkLPO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var link fuel.ManualLink
	if !h.decode(w, r, &link) {
		return
	}
	link.Actor = actor(r)
	res, err := h.service.LinkLPO(r.Context(), id, link)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmitYardDispense records a yard dispense. EnteredBy defaults to the caller.
func (h *FuelHandler) SubmitYardDispense(w http.ResponseWriter, r *http.Request) {
	var d models.YardDispense
	if !h.decode(w, r, &d) {
		return
	}
	if d.EnteredBy == "" {
		d.EnteredBy = actor(r)
	}
	res, err := h.service.RecordYardDispense(r.Context(), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, eventStatus(res), res)
}

// LinkYardDispense links a pending yard dispense by hand.
func (h *FuelHandler) LinkYardDispense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var link fuel.ManualLink
	if !h.decode(w, r, &link) {
		return
	}
	link.Actor = actor(r)
	res, err := h.service.LinkYardDispense(r.Context(), id, link)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RejectYardDispense discards a pending yard dispense.
func (h *FuelHandler) RejectYardDispense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.service.RejectYardDispense(r.Context(), id, req.Reason, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// LinkOrphan attaches a held return DO to a chosen record.
func (h *FuelHandler) LinkOrphan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req orphanLinkRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RecordID.IsZero() {
		http.Error(w, "record_id is required", http.StatusBadRequest)
		return
	}
	res, err := h.service.LinkReturnManually(r.Context(), id, req.RecordID, actor(r))
	if errors.Is(err, fuel.ErrConflict) {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pending lists the manual-work queue.
func (h *FuelHandler) Pending(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.PendingQueue(r.Context(), r.URL.Query().Get("truck"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RetryPending reattempts every held return DO and pending event.
func (h *FuelHandler) RetryPending(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RetryPending(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ApplyConfig stores routes, truck batches and stations.
func (h *FuelHandler) ApplyConfig(w http.ResponseWriter, r *http.Request) {
	var set models.ConfigSet
	if !h.decode(w, r, &set) {
		return
	}
	report, err := h.service.ApplyConfig(r.Context(), set, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *FuelHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// fail maps service errors to status codes.
func (h *FuelHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetRequestID(r.Context()),
		}).Error("Request failed")
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fuel.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fuel.ErrConflict),
		errors.Is(err, fuel.ErrNotPending),
		errors.Is(err, fuel.ErrCancelled),
		errors.Is(err, db.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func eventStatus(res fuel.EventResult) int {
	if res.Status == models.EventPending {
		return http.StatusAccepted
	}
	return http.StatusCreated
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return primitive.NilObjectID, false
	}
	return id, true
}

func actor(r *http.Request) string {
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok {
		return claims.Username
	}
	return ""
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
