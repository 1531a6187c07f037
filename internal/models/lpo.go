package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JourneyType tags what an LPO was issued for.
type JourneyType string

const (
	JourneyGoing         JourneyType = "going"
	JourneyReturn        JourneyType = "return"
	JourneyCash          JourneyType = "cash"
	JourneyDriverAccount JourneyType = "driver_account"
)

// NoDO is the DO placeholder on cash and driver-account purchases.
const NoDO = "NIL"

// EventStatus is the link state of an externally sourced fuel event.
type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventLinked   EventStatus = "linked"
	EventRejected EventStatus = "rejected"
)

// FuelLink is the weak reference from an event to the record it was folded into.
type FuelLink struct {
	FuelRecordID primitive.ObjectID `json:"fuel_record_id" bson:"fuel_record_id"`
	Leg          JourneyLeg         `json:"leg" bson:"leg"`
	Checkpoint   Checkpoint         `json:"checkpoint" bson:"checkpoint"`
	LinkedAt     time.Time          `json:"linked_at" bson:"linked_at"`
	LinkedBy     string             `json:"linked_by,omitempty" bson:"linked_by,omitempty"` // empty for automatic links
}

// LPOEntry is a fuel purchase order issued at a station.
type LPOEntry struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	LPONumber     string             `json:"lpo_number" bson:"lpo_number" validate:"required"`
	Date          time.Time          `json:"date" bson:"date" validate:"required"`
	Station       string             `json:"station" bson:"station" validate:"required"`
	TruckNumber   string             `json:"truck_number" bson:"truck_number" validate:"required"`
	DONumber      string             `json:"do_number" bson:"do_number"`
	Liters        float64            `json:"liters" bson:"liters" validate:"gt=0"`
	PricePerLiter float64            `json:"price_per_liter" bson:"price_per_liter" validate:"gte=0"`
	JourneyType   JourneyType        `json:"journey_type" bson:"journey_type" validate:"required,oneof=going return cash driver_account"`
	Status        EventStatus        `json:"status" bson:"status"`
	Link          *FuelLink          `json:"link,omitempty" bson:"link,omitempty"`
	PendingReason string             `json:"pending_reason,omitempty" bson:"pending_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
}

// AccountFunded reports whether the purchase was paid in cash or from the
// driver's account rather than against a DO.
func (e *LPOEntry) AccountFunded() bool {
	return e.JourneyType == JourneyCash || e.JourneyType == JourneyDriverAccount
}

// HasDO reports whether the entry references a real DO number.
func (e *LPOEntry) HasDO() bool {
	do := strings.TrimSpace(e.DONumber)
	return do != "" && !strings.EqualFold(do, NoDO)
}

// Amount is liters times price per liter, rounded to cents.
func (e *LPOEntry) Amount() decimal.Decimal {
	return decimal.NewFromFloat(e.Liters).Mul(decimal.NewFromFloat(e.PricePerLiter)).Round(2)
}
