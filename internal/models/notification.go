package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType names the configuration gap a deficiency notice reports.
type NotificationType string

const (
	NotifyMissingTotalLiters NotificationType = "missing_total_liters"
	NotifyMissingExtraFuel   NotificationType = "missing_extra_fuel"
	NotifyMissingBoth        NotificationType = "both"
)

const (
	NotificationPending  = "pending"
	NotificationResolved = "resolved"
)

// Notification is an advisory event about missing route or truck batch
// configuration. It never blocks record creation.
type Notification struct {
	ID           primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	EventID      string              `json:"event_id" bson:"event_id"`
	Type         NotificationType    `json:"type" bson:"type"`
	DedupeKey    string              `json:"dedupe_key" bson:"dedupe_key"`
	TruckNumber  string              `json:"truck_number" bson:"truck_number"`
	TruckSuffix  string              `json:"truck_suffix,omitempty" bson:"truck_suffix,omitempty"`
	Destination  string              `json:"destination,omitempty" bson:"destination,omitempty"`
	Leg          JourneyLeg          `json:"leg" bson:"leg"`
	FuelRecordID *primitive.ObjectID `json:"fuel_record_id,omitempty" bson:"fuel_record_id,omitempty"`
	Status       string              `json:"status" bson:"status"`
	ResolvedBy   string              `json:"resolved_by,omitempty" bson:"resolved_by,omitempty"`
	ResolvedAt   *time.Time          `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at" bson:"created_at"`
}

// MissingRoute reports whether the notice covers a missing total-liters route.
func (n *Notification) MissingRoute() bool {
	return n.Type == NotifyMissingTotalLiters || n.Type == NotifyMissingBoth
}

// MissingBatch reports whether the notice covers a missing truck batch.
func (n *Notification) MissingBatch() bool {
	return n.Type == NotifyMissingExtraFuel || n.Type == NotifyMissingBoth
}
