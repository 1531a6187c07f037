// Package notify turns missing route or truck batch configuration into
// advisory notices. Reporting never fails the caller.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/metrics"
	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Deficiency describes the configuration an allocation could not find.
type Deficiency struct {
	TruckNumber  string
	TruckSuffix  string
	Destination  string
	Leg          models.JourneyLeg
	MissingRoute bool
	MissingBatch bool
	FuelRecordID *primitive.ObjectID
}

// Type returns the notice type, or false when nothing is missing.
func (d Deficiency) Type() (models.NotificationType, bool) {
	switch {
	case d.MissingRoute && d.MissingBatch:
		return models.NotifyMissingBoth, true
	case d.MissingRoute:
		return models.NotifyMissingTotalLiters, true
	case d.MissingBatch:
		return models.NotifyMissingExtraFuel, true
	default:
		return "", false
	}
}

// DedupeKey identifies the (truck, destination) or (truck, suffix) pair a
// notice is about.
func DedupeKey(t models.NotificationType, truck, destination, suffix string) string {
	truck = models.NormalizeTruck(truck)
	destination = models.NormalizePlace(destination)
	suffix = models.NormalizePlace(suffix)
	switch t {
	case models.NotifyMissingTotalLiters:
		return fmt.Sprintf("%s:%s:%s", t, truck, destination)
	case models.NotifyMissingExtraFuel:
		return fmt.Sprintf("%s:%s:%s", t, truck, suffix)
	default:
		return fmt.Sprintf("%s:%s:%s:%s", t, truck, destination, suffix)
	}
}

// Publisher delivers stored notices to the feed.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Notifier persists and publishes deficiency notices.
type Notifier struct {
	store     db.NotificationCollection
	publisher Publisher
	metrics   *metrics.Metrics
	log       *logrus.Entry
}

// New creates a notifier. publisher may be nil.
func New(store db.NotificationCollection, publisher Publisher, m *metrics.Metrics, log *logrus.Entry) *Notifier {
	return &Notifier{store: store, publisher: publisher, metrics: m, log: log.WithField("component", "notifier")}
}

// Report stores at most one pending notice per dedupe key and publishes it.
// It returns the stored notice, or nil when nothing was emitted.
func (n *Notifier) Report(ctx context.Context, d Deficiency) *models.Notification {
	requested, ok := d.Type()
	if !ok {
		return nil
	}
	d = n.uncovered(ctx, d)
	t, ok := d.Type()
	if !ok {
		n.log.WithFields(logrus.Fields{
			"type":  requested,
			"truck": models.NormalizeTruck(d.TruckNumber),
		}).Debug("Deficiency already pending")
		n.metrics.RecordNotification(string(requested), metrics.NoticeDeduplicated)
		return nil
	}
	notice := models.Notification{
		EventID:      uuid.NewString(),
		Type:         t,
		DedupeKey:    DedupeKey(t, d.TruckNumber, d.Destination, d.TruckSuffix),
		TruckNumber:  models.NormalizeTruck(d.TruckNumber),
		Leg:          d.Leg,
		FuelRecordID: d.FuelRecordID,
		Status:       models.NotificationPending,
		CreatedAt:    time.Now(),
	}
	if d.MissingRoute {
		notice.Destination = models.NormalizePlace(d.Destination)
	}
	if d.MissingBatch {
		notice.TruckSuffix = models.NormalizePlace(d.TruckSuffix)
	}

	entry := n.log.WithFields(logrus.Fields{
		"type":       notice.Type,
		"dedupe_key": notice.DedupeKey,
		"truck":      notice.TruckNumber,
	})

	inserted, err := n.store.InsertNotificationIfAbsent(ctx, &notice)
	if err != nil {
		entry.WithError(err).Error("Failed to store deficiency notification")
		n.metrics.RecordNotification(string(t), metrics.OutcomeFailed)
		return nil
	}
	if !inserted {
		entry.Debug("Deficiency already pending")
		n.metrics.RecordNotification(string(t), metrics.NoticeDeduplicated)
		return nil
	}

	entry.WithField("event_id", notice.EventID).Warn("Configuration missing for allocation")
	n.metrics.RecordNotification(string(t), metrics.NoticeEmitted)

	if n.publisher != nil {
		if err := n.publisher.Publish(ctx, notice); err != nil {
			entry.WithError(err).Error("Failed to publish deficiency notification")
			n.metrics.RecordNotification(string(t), metrics.NoticePublishFailed)
		}
	}
	return &notice
}

// uncovered clears the gaps of d that a pending notice for the same truck
// already announces, so a route or batch gap is reported once whatever
// notice type carried it.
func (n *Notifier) uncovered(ctx context.Context, d Deficiency) Deficiency {
	pending, err := n.store.FindNotifications(ctx, models.NotificationPending)
	if err != nil {
		n.log.WithError(err).Warn("Failed to load pending notifications")
		return d
	}
	truck := models.NormalizeTruck(d.TruckNumber)
	destination := models.NormalizePlace(d.Destination)
	suffix := models.NormalizePlace(d.TruckSuffix)
	for i := range pending {
		p := &pending[i]
		if p.TruckNumber != truck {
			continue
		}
		if d.MissingRoute && p.MissingRoute() && p.Destination == destination {
			d.MissingRoute = false
		}
		if d.MissingBatch && p.MissingBatch() && p.TruckSuffix == suffix {
			d.MissingBatch = false
		}
	}
	return d
}

// Resolve closes pending notices covered by newly supplied configuration.
func (n *Notifier) Resolve(ctx context.Context, filter db.NotificationFilter, actor string) (int64, error) {
	count, err := n.store.ResolveNotifications(ctx, filter, actor)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve notifications: %w", err)
	}
	if count > 0 {
		n.log.WithFields(logrus.Fields{
			"destination":  filter.Destination,
			"truck_suffix": filter.TruckSuffix,
			"resolved":     count,
		}).Info("Resolved deficiency notifications")
	}
	return count, nil
}

// List returns notices in the given status, or all when status is empty.
func (n *Notifier) List(ctx context.Context, status string) ([]models.Notification, error) {
	return n.store.FindNotifications(ctx, status)
}
