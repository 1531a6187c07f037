package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/middleware"
	"github.com/ukydev/fleet-fuel/internal/models"
)

// Router bundles what NewRouter needs.
type Router struct {
	Fuel          *FuelHandler
	Notifications *NotificationHandler
	Auth          *middleware.AuthMiddleware
	RateLimit     *middleware.RateLimitMiddleware
	Metrics       http.Handler
	Log           *logrus.Entry
}

// NewRouter builds the HTTP API.
func NewRouter(rt Router) http.Handler {
	mux := http.NewServeMux()
	allow := func(action string, h http.HandlerFunc) http.Handler {
		return rt.Auth.RequirePermission(action)(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return rt.Auth.RequireRole(models.RoleAdmin)(h)
	}
	f := rt.Fuel

	mux.HandleFunc("GET /health", Health)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	mux.Handle("POST /api/delivery-orders", allow(models.ActionCreateOrder, f.SubmitDeliveryOrder))
	mux.Handle("GET /api/records", allow(models.ActionViewRecords, f.ListRecords))
	mux.Handle("GET /api/records/{id}", allow(models.ActionViewRecords, f.GetRecord))
	mux.Handle("PATCH /api/records/{id}/checkpoints", allow(models.ActionAmendRecord, f.AmendCheckpoint))
	mux.Handle("PATCH /api/records/{id}/allowance", allow(models.ActionAmendRecord, f.AdjustAllowance))
	mux.Handle("POST /api/records/{id}/cancel", allow(models.ActionCancelRecord, f.CancelRecord))

	mux.Handle("POST /api/lpos", allow(models.ActionEnterLPO, f.SubmitLPO))
	mux.Handle("POST /api/lpos/{id}/link", allow(models.ActionLinkPending, f.LinkLPO))
	mux.Handle("POST /api/yard-dispenses", allow(models.ActionEnterYard, f.SubmitYardDispense))
	mux.Handle("POST /api/yard-dispenses/{id}/link", allow(models.ActionLinkPending, f.LinkYardDispense))
	mux.Handle("POST /api/yard-dispenses/{id}/reject", allow(models.ActionLinkPending, f.RejectYardDispense))
	mux.Handle("POST /api/orphans/{id}/link", allow(models.ActionLinkPending, f.LinkOrphan))

	mux.Handle("GET /api/pending", allow(models.ActionLinkPending, f.Pending))
	mux.Handle("POST /api/pending/retry", admin(f.RetryPending))
	mux.Handle("PUT /api/config", admin(f.ApplyConfig))
	mux.Handle("GET /api/notifications", allow(models.ActionViewNotification, rt.Notifications.List))

	var h http.Handler = rt.Auth.Authenticate(mux)
	if rt.RateLimit != nil {
		h = rt.RateLimit.RateLimit(300, 60)(h)
	}
	h = middleware.Logging(rt.Log)(h)
	return middleware.RequestID(h)
}
