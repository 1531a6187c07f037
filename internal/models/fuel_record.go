package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FuelRecord is one truck round trip: the going leg, the later-linked return
// leg and every liter that left the allowance along the way.
type FuelRecord struct {
	ID                    primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Date                  time.Time          `json:"date" bson:"date"` // going DO date
	TruckNumber           string             `json:"truck_number" bson:"truck_number"`
	GoingDO               string             `json:"going_do" bson:"going_do"`
	ReturnDO              string             `json:"return_do,omitempty" bson:"return_do"` // empty until linked
	ReturnDate            *time.Time         `json:"return_date,omitempty" bson:"return_date,omitempty"`
	StartLocation         string             `json:"start_location" bson:"start_location"`
	GoingFrom             string             `json:"going_from" bson:"going_from"`
	GoingTo               string             `json:"going_to" bson:"going_to"`
	ReturnFrom            string             `json:"return_from,omitempty" bson:"return_from,omitempty"`
	ReturnTo              string             `json:"return_to,omitempty" bson:"return_to,omitempty"`
	HasDestinationChanged bool               `json:"has_destination_changed" bson:"has_destination_changed"`
	TotalLiters           float64            `json:"total_liters" bson:"total_liters"`
	ExtraLiters           float64            `json:"extra_liters" bson:"extra_liters"`
	GoingCheckpoints      CheckpointLiters   `json:"going_checkpoints" bson:"going_checkpoints"`
	ReturnCheckpoints     CheckpointLiters   `json:"return_checkpoints" bson:"return_checkpoints"`
	Balance               float64            `json:"balance" bson:"balance"`
	BalanceAnomaly        bool               `json:"balance_anomaly" bson:"balance_anomaly"`
	Statement             string             `json:"statement,omitempty" bson:"statement,omitempty"`
	Cancelled             bool               `json:"cancelled" bson:"cancelled"`
	CancellationReason    string             `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancelledBy           string             `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelledAt           *time.Time         `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	Version               int64              `json:"version" bson:"version"`
	CreatedAt             time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at" bson:"updated_at"`
}

// RecordStatus is the lifecycle stage of a fuel record.
type RecordStatus string

const (
	RecordInProgress RecordStatus = "in_progress"
	RecordComplete   RecordStatus = "complete"
	RecordCancelled  RecordStatus = "cancelled"
)

// Status derives the record's lifecycle stage.
func (r *FuelRecord) Status() RecordStatus {
	switch {
	case r.Cancelled:
		return RecordCancelled
	case r.Linked():
		return RecordComplete
	default:
		return RecordInProgress
	}
}

// Linked reports whether a return DO has been attached.
func (r *FuelRecord) Linked() bool {
	return r.ReturnDO != ""
}

// Actionable is false for cancelled records: their totals are historical only.
func (r *FuelRecord) Actionable() bool {
	return !r.Cancelled
}

// Checkpoints returns the checkpoint map for the leg, creating it if needed.
func (r *FuelRecord) Checkpoints(leg JourneyLeg) CheckpointLiters {
	switch leg {
	case LegGoing:
		if r.GoingCheckpoints == nil {
			r.GoingCheckpoints = ZeroFilled(LegGoing)
		}
		return r.GoingCheckpoints
	case LegReturn:
		if r.ReturnCheckpoints == nil {
			r.ReturnCheckpoints = ZeroFilled(LegReturn)
		}
		return r.ReturnCheckpoints
	default:
		return nil
	}
}

// Clone returns a deep copy so callers can mutate without sharing maps.
func (r FuelRecord) Clone() FuelRecord {
	out := r
	out.GoingCheckpoints = r.GoingCheckpoints.Clone()
	out.ReturnCheckpoints = r.ReturnCheckpoints.Clone()
	if r.ReturnDate != nil {
		t := *r.ReturnDate
		out.ReturnDate = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		out.CancelledAt = &t
	}
	return out
}
