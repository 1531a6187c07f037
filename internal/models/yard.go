package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// YardDispense is fuel handed out at a company yard, entered by yard staff
// independently of any fuel record.
type YardDispense struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TruckNumber     string             `json:"truck_number" bson:"truck_number" validate:"required"`
	Yard            string             `json:"yard" bson:"yard" validate:"required"`
	Liters          float64            `json:"liters" bson:"liters" validate:"gt=0"`
	EnteredBy       string             `json:"entered_by" bson:"entered_by" validate:"required"`
	Timestamp       time.Time          `json:"timestamp" bson:"timestamp" validate:"required"`
	Status          EventStatus        `json:"status" bson:"status"`
	Link            *FuelLink          `json:"link,omitempty" bson:"link,omitempty"`
	PendingReason   string             `json:"pending_reason,omitempty" bson:"pending_reason,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`
	RejectedBy      string             `json:"rejected_by,omitempty" bson:"rejected_by,omitempty"`
	Notes           string             `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}
