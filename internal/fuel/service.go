// Package fuel is the reconciliation service. It serializes work per truck,
// keeps every record mutation on one read-modify-write path and recomputes
// the balance inside it.
package fuel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/allocation"
	"github.com/ukydev/fleet-fuel/internal/balance"
	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/linker"
	"github.com/ukydev/fleet-fuel/internal/metrics"
	"github.com/ukydev/fleet-fuel/internal/models"
	"github.com/ukydev/fleet-fuel/internal/notify"
	"github.com/ukydev/fleet-fuel/internal/reconcile"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Options tunes the service.
type Options struct {
	// YardWindow bounds how long after a going DO a date-matched event may
	// still attach to its record. Zero means unbounded.
	YardWindow time.Duration
	// RetryConcurrency caps how many trucks RetryPending works on at once.
	RetryConcurrency int
}

// Service orchestrates linking, allocation, reconciliation and notices.
type Service struct {
	stores   db.Stores
	engine   *allocation.Engine
	linker   *linker.Linker
	recon    *reconcile.Reconciler
	notifier *notify.Notifier
	locks    *TruckLocks
	metrics  *metrics.Metrics
	log      *logrus.Entry
	opts     Options
}

// NewService wires the service over the stores.
func NewService(stores db.Stores, notifier *notify.Notifier, m *metrics.Metrics, log *logrus.Entry, opts Options) *Service {
	if opts.RetryConcurrency <= 0 {
		opts.RetryConcurrency = 4
	}
	return &Service{
		stores:   stores,
		engine:   allocation.NewEngine(stores.Config),
		linker:   linker.New(stores.Records),
		recon:    reconcile.New(stores.Config, opts.YardWindow),
		notifier: notifier,
		locks:    NewTruckLocks(),
		metrics:  m,
		log:      log.WithField("component", "fuel"),
		opts:     opts,
	}
}

// GoingRequest creates a fuel record from a going DO. TotalLiters and
// ExtraLiters are the caller's defaults, stored only when no route or truck
// batch is configured.
type GoingRequest struct {
	Order         models.DeliveryOrder `json:"order"`
	StartLocation string               `json:"start_location,omitempty"`
	TotalLiters   float64              `json:"total_liters,omitempty" validate:"gte=0"`
	ExtraLiters   float64              `json:"extra_liters,omitempty" validate:"gte=0"`
}

// CreateGoing opens a fuel record for a going DO. Missing configuration is
// reported as a notice and never fails the call. Replaying the same going DO
// returns the existing record.
func (s *Service) CreateGoing(ctx context.Context, req GoingRequest) (*models.FuelRecord, error) {
	defer s.metrics.ObserveSince("create_going", time.Now())

	if err := check(req); err != nil {
		return nil, err
	}
	order := req.Order
	if order.Leg != models.LegGoing {
		return nil, malformed("delivery order %s is a %s leg", order.DONumber, order.Leg)
	}
	truck := models.NormalizeTruck(order.TruckNumber)

	unlock := s.locks.Lock(truck)
	defer unlock()

	existing, err := s.stores.Records.FindFuelRecordsByTruck(ctx, truck)
	if err != nil {
		return nil, fmt.Errorf("failed to load records for %s: %w", truck, err)
	}
	for i := range existing {
		if existing[i].GoingDO == order.DONumber {
			return &existing[i], nil
		}
	}

	alloc, err := s.engine.Allocate(ctx, models.LegGoing, order.To)
	if err != nil {
		return nil, err
	}
	extra, suffix, missingBatch, err := s.engine.Extra(ctx, truck)
	if err != nil {
		return nil, err
	}

	start := req.StartLocation
	if start == "" {
		start = order.From
	}
	rec := &models.FuelRecord{
		Date:              order.Date,
		TruckNumber:       truck,
		GoingDO:           order.DONumber,
		StartLocation:     models.NormalizePlace(start),
		GoingFrom:         models.NormalizePlace(order.From),
		GoingTo:           models.NormalizePlace(order.To),
		TotalLiters:       req.TotalLiters,
		ExtraLiters:       req.ExtraLiters,
		GoingCheckpoints:  alloc.Checkpoints,
		ReturnCheckpoints: models.ZeroFilled(models.LegReturn),
	}
	if alloc.TotalLiters != nil {
		rec.TotalLiters = *alloc.TotalLiters
	}
	if !missingBatch {
		rec.ExtraLiters = extra
	}
	if balance.Apply(rec) {
		s.metrics.RecordAnomaly()
	}

	if err := s.stores.Records.InsertFuelRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to insert fuel record: %w", err)
	}
	s.metrics.RecordEvent(metrics.KindGoingDO, metrics.OutcomeCreated)
	s.log.WithFields(logrus.Fields{
		"record_id":     rec.ID.Hex(),
		"truck":         truck,
		"going_do":      rec.GoingDO,
		"destination":   rec.GoingTo,
		"missing_route": alloc.MissingRoute,
		"missing_batch": missingBatch,
	}).Info("Fuel record created")

	if alloc.MissingRoute || missingBatch {
		id := rec.ID
		s.notifier.Report(ctx, notify.Deficiency{
			TruckNumber:  truck,
			TruckSuffix:  suffix,
			Destination:  rec.GoingTo,
			Leg:          models.LegGoing,
			MissingRoute: alloc.MissingRoute,
			MissingBatch: missingBatch,
			FuelRecordID: &id,
		})
	}

	// held return DOs and pending events may now have a home
	if _, err := s.retryTruckLocked(ctx, truck); err != nil {
		s.log.WithError(err).WithField("truck", truck).Warn("Retry of pending work failed")
	}
	return s.stores.Records.FindFuelRecordByID(ctx, rec.ID)
}

// Record returns one fuel record.
func (s *Service) Record(ctx context.Context, id primitive.ObjectID) (*models.FuelRecord, error) {
	return s.stores.Records.FindFuelRecordByID(ctx, id)
}

// update is the only way records change after insert. The balance is
// recomputed on every attempt of the read-modify-write. An anomaly is counted
// once, when a live record first goes negative.
func (s *Service) update(ctx context.Context, id primitive.ObjectID, mutate db.MutateFunc) (*models.FuelRecord, error) {
	var wasAnomalous bool
	rec, err := s.stores.Records.UpdateFuelRecord(ctx, id, func(r *models.FuelRecord) error {
		wasAnomalous = r.BalanceAnomaly
		if err := mutate(r); err != nil {
			return err
		}
		balance.Apply(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec.BalanceAnomaly && !wasAnomalous && !rec.Cancelled {
		s.metrics.RecordAnomaly()
		s.log.WithFields(logrus.Fields{
			"record_id": rec.ID.Hex(),
			"truck":     rec.TruckNumber,
			"balance":   rec.Balance,
		}).Warn("Fuel record over-consumed")
	}
	return rec, nil
}

// recordTruck loads a record and returns its truck for locking.
func (s *Service) recordTruck(ctx context.Context, id primitive.ObjectID) (string, error) {
	rec, err := s.stores.Records.FindFuelRecordByID(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.TruckNumber, nil
}

func isRecoverable(err error) bool {
	return errors.Is(err, reconcile.ErrNoFuelRecord) || errors.Is(err, reconcile.ErrUnknownStation)
}
