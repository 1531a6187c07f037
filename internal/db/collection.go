package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("record modified concurrently")
)

// MutateFunc changes a fuel record in place. Returning an error aborts the update.
type MutateFunc func(rec *models.FuelRecord) error

// FuelRecordFilter narrows FindFuelRecords. Zero values match everything.
type FuelRecordFilter struct {
	TruckNumber string
	Status      models.RecordStatus
	From        time.Time
	To          time.Time
	Limit       int64
}

// FuelRecordCollection defines the interface for fuel record operations.
// FindFuelRecordsByTruck is the truck → candidate record index the linker
// and reconciler consult.
type FuelRecordCollection interface {
	InsertFuelRecord(ctx context.Context, rec *models.FuelRecord) error
	FindFuelRecordByID(ctx context.Context, id primitive.ObjectID) (*models.FuelRecord, error)
	FindFuelRecordsByTruck(ctx context.Context, truck string) ([]models.FuelRecord, error)
	FindFuelRecords(ctx context.Context, filter FuelRecordFilter) ([]models.FuelRecord, error)
	UpdateFuelRecord(ctx context.Context, id primitive.ObjectID, mutate MutateFunc) (*models.FuelRecord, error)
}

// ConfigCollection defines the interface for administrator-owned configuration.
type ConfigCollection interface {
	FindRoute(ctx context.Context, destination string) (*models.RouteConfig, error)
	UpsertRoute(ctx context.Context, route models.RouteConfig) error
	ListRoutes(ctx context.Context) ([]models.RouteConfig, error)
	FindTruckBatch(ctx context.Context, suffix string) (*models.TruckBatchConfig, error)
	UpsertTruckBatch(ctx context.Context, batch models.TruckBatchConfig) error
	ListTruckBatches(ctx context.Context) ([]models.TruckBatchConfig, error)
	FindStation(ctx context.Context, name string) (*models.StationConfig, error)
	UpsertStation(ctx context.Context, station models.StationConfig) error
}

// OrphanCollection defines the interface for held return DOs.
type OrphanCollection interface {
	InsertOrphan(ctx context.Context, orphan *models.OrphanReturn) error
	FindOrphanByID(ctx context.Context, id primitive.ObjectID) (*models.OrphanReturn, error)
	FindPendingOrphans(ctx context.Context, truck string) ([]models.OrphanReturn, error)
	MarkOrphanLinked(ctx context.Context, id primitive.ObjectID, recordID primitive.ObjectID) error
	TouchOrphan(ctx context.Context, id primitive.ObjectID, reason models.OrphanReason) error
}

// LPOCollection defines the interface for purchase order entries.
type LPOCollection interface {
	InsertLPO(ctx context.Context, lpo *models.LPOEntry) error
	FindLPOByID(ctx context.Context, id primitive.ObjectID) (*models.LPOEntry, error)
	FindLPOsByRecord(ctx context.Context, recordID primitive.ObjectID) ([]models.LPOEntry, error)
	FindPendingLPOs(ctx context.Context, truck string) ([]models.LPOEntry, error)
	LinkLPO(ctx context.Context, id primitive.ObjectID, link models.FuelLink) error
	MarkLPOPending(ctx context.Context, id primitive.ObjectID, reason string) error
}

// YardDispenseCollection defines the interface for yard dispense events.
type YardDispenseCollection interface {
	InsertYardDispense(ctx context.Context, d *models.YardDispense) error
	FindYardDispenseByID(ctx context.Context, id primitive.ObjectID) (*models.YardDispense, error)
	FindYardDispensesByRecord(ctx context.Context, recordID primitive.ObjectID) ([]models.YardDispense, error)
	FindPendingYardDispenses(ctx context.Context, truck string) ([]models.YardDispense, error)
	LinkYardDispense(ctx context.Context, id primitive.ObjectID, link models.FuelLink) error
	MarkYardDispensePending(ctx context.Context, id primitive.ObjectID, reason string) error
	RejectYardDispense(ctx context.Context, id primitive.ObjectID, reason, actor string) error
}

// NotificationCollection defines the interface for deficiency notices.
type NotificationCollection interface {
	// InsertNotificationIfAbsent stores n unless a pending notice with the same
	// dedupe key exists. It reports whether n was stored.
	InsertNotificationIfAbsent(ctx context.Context, n *models.Notification) (bool, error)
	FindNotifications(ctx context.Context, status string) ([]models.Notification, error)
	ResolveNotifications(ctx context.Context, filter NotificationFilter, actor string) (int64, error)
}

// NotificationFilter selects pending notices to resolve.
type NotificationFilter struct {
	Destination string
	TruckSuffix string
}

// Stores bundles every collection the service needs.
type Stores struct {
	Records       FuelRecordCollection
	Config        ConfigCollection
	Orphans       OrphanCollection
	LPOs          LPOCollection
	Yards         YardDispenseCollection
	Notifications NotificationCollection
}
