package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/middleware"
	"github.com/ukydev/fleet-fuel/internal/models"
	"github.com/ukydev/fleet-fuel/internal/notify"
)

// NotificationLister reads stored deficiency notices.
type NotificationLister interface {
	List(ctx context.Context, status string) ([]models.Notification, error)
}

// NotificationView is a stored notice with its message for the caller's role.
type NotificationView struct {
	models.Notification
	Message notify.Message `json:"message"`
}

// NotificationHandler serves deficiency notices.
type NotificationHandler struct {
	lister NotificationLister
	log    *logrus.Entry
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(lister NotificationLister, log *logrus.Entry) *NotificationHandler {
	return &NotificationHandler{lister: lister, log: log.WithField("component", "http")}
}

// List returns notices phrased for the caller's role. Pending notices are
// listed unless ?status= says otherwise.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "":
		status = models.NotificationPending
	case "all":
		status = ""
	case models.NotificationPending, models.NotificationResolved:
	default:
		http.Error(w, "status must be pending, resolved or all", http.StatusBadRequest)
		return
	}

	notices, err := h.lister.List(r.Context(), status)
	if err != nil {
		h.log.WithError(err).Error("Failed to list notifications")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]NotificationView, 0, len(notices))
	for _, n := range notices {
		msg, ok := notify.Render(n, claims.Role)
		if !ok {
			continue
		}
		views = append(views, NotificationView{Notification: n, Message: msg})
	}
	writeJSON(w, http.StatusOK, views)
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
