package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryOrder is the authorizing trip order for one leg of a round trip.
type DeliveryOrder struct {
	DONumber    string     `json:"do_number" bson:"do_number" validate:"required"`
	TruckNumber string     `json:"truck_number" bson:"truck_number" validate:"required"`
	Leg         JourneyLeg `json:"leg" bson:"leg" validate:"required,oneof=going return"`
	Movement    string     `json:"movement,omitempty" bson:"movement,omitempty" validate:"omitempty,oneof=IMPORT EXPORT"`
	From        string     `json:"from" bson:"from" validate:"required"`
	To          string     `json:"to" bson:"to" validate:"required"`
	Client      string     `json:"client,omitempty" bson:"client,omitempty"`
	Date        time.Time  `json:"date" bson:"date" validate:"required"`
}

// OrphanReason explains why a return DO is held.
type OrphanReason string

const (
	OrphanNoGoingRecord OrphanReason = "no_going_record"
	OrphanConflict      OrphanReason = "conflict"
)

// OrphanReturn is a return DO waiting for a going record to claim.
type OrphanReturn struct {
	ID             primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Order          DeliveryOrder       `json:"order" bson:"order"`
	TruckNumber    string              `json:"truck_number" bson:"truck_number"`
	Reason         OrphanReason        `json:"reason" bson:"reason"`
	Status         string              `json:"status" bson:"status"` // "pending", "linked"
	LinkedRecordID *primitive.ObjectID `json:"linked_record_id,omitempty" bson:"linked_record_id,omitempty"`
	Attempts       int                 `json:"attempts" bson:"attempts"`
	CreatedAt      time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" bson:"updated_at"`
}

const (
	OrphanPending = "pending"
	OrphanLinked  = "linked"
)
