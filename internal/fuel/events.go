package fuel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/metrics"
	"github.com/ukydev/fleet-fuel/internal/models"
	"github.com/ukydev/fleet-fuel/internal/reconcile"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventResult reports where an LPO or yard dispense landed.
type EventResult struct {
	EventID primitive.ObjectID `json:"event_id"`
	Status  models.EventStatus `json:"status"`
	Reason  string             `json:"reason,omitempty"`
	Target  *reconcile.Target  `json:"target,omitempty"`
	Record  *models.FuelRecord `json:"record,omitempty"`
}

// ManualLink is an operator's choice of target for a pending event.
// An empty checkpoint is derived from the event's station or yard.
type ManualLink struct {
	RecordID   primitive.ObjectID `json:"record_id"`
	Leg        models.JourneyLeg  `json:"leg" validate:"required,oneof=going return"`
	Checkpoint models.Checkpoint  `json:"checkpoint,omitempty"`
	Actor      string             `json:"-"`
}

// AttachLPO stores an LPO and folds it into its record. An LPO with no
// matching record or station stays pending and is not an error.
func (s *Service) AttachLPO(ctx context.Context, lpo models.LPOEntry) (EventResult, error) {
	defer s.metrics.ObserveSince("attach_lpo", time.Now())

	lpo.TruckNumber = models.NormalizeTruck(lpo.TruckNumber)
	lpo.Station = models.NormalizePlace(lpo.Station)
	lpo.DONumber = strings.TrimSpace(lpo.DONumber)
	if lpo.AccountFunded() && lpo.DONumber == "" {
		lpo.DONumber = models.NoDO
	}
	if err := check(lpo); err != nil {
		return EventResult{}, err
	}
	lpo.ID = primitive.NilObjectID
	lpo.Status = models.EventPending
	lpo.Link = nil

	unlock := s.locks.Lock(lpo.TruckNumber)
	defer unlock()

	if err := s.stores.LPOs.InsertLPO(ctx, &lpo); err != nil {
		return EventResult{}, fmt.Errorf("failed to insert LPO: %w", err)
	}
	return s.reconcileLPOLocked(ctx, &lpo)
}

func (s *Service) reconcileLPOLocked(ctx context.Context, lpo *models.LPOEntry) (EventResult, error) {
	candidates, err := s.stores.Records.FindFuelRecordsByTruck(ctx, lpo.TruckNumber)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to load records for %s: %w", lpo.TruckNumber, err)
	}
	target, err := s.recon.TargetForLPO(ctx, candidates, *lpo)
	if isRecoverable(err) {
		reason := err.Error()
		if lpo.PendingReason != reason {
			if err := s.stores.LPOs.MarkLPOPending(ctx, lpo.ID, reason); err != nil {
				return EventResult{}, fmt.Errorf("failed to mark LPO pending: %w", err)
			}
		}
		s.metrics.RecordEvent(metrics.KindLPO, metrics.OutcomePending)
		s.log.WithFields(logrus.Fields{
			"lpo_id":     lpo.ID.Hex(),
			"lpo_number": lpo.LPONumber,
			"truck":      lpo.TruckNumber,
			"reason":     reason,
		}).Info("LPO pending")
		return EventResult{EventID: lpo.ID, Status: models.EventPending, Reason: reason}, nil
	}
	if err != nil {
		return EventResult{}, err
	}
	return s.linkLPO(ctx, lpo, target, "")
}

func (s *Service) linkLPO(ctx context.Context, lpo *models.LPOEntry, target reconcile.Target, actor string) (EventResult, error) {
	rec, err := s.consume(ctx, target, lpo.Liters)
	if err != nil {
		return EventResult{}, err
	}
	link := models.FuelLink{
		FuelRecordID: target.RecordID,
		Leg:          target.Leg,
		Checkpoint:   target.Checkpoint,
		LinkedAt:     time.Now(),
		LinkedBy:     actor,
	}
	if err := s.stores.LPOs.LinkLPO(ctx, lpo.ID, link); err != nil {
		return EventResult{}, fmt.Errorf("failed to link LPO: %w", err)
	}
	s.metrics.RecordEvent(metrics.KindLPO, metrics.OutcomeLinked)
	s.log.WithFields(logrus.Fields{
		"lpo_id":     lpo.ID.Hex(),
		"lpo_number": lpo.LPONumber,
		"record_id":  target.RecordID.Hex(),
		"leg":        target.Leg,
		"checkpoint": target.Checkpoint,
		"liters":     lpo.Liters,
	}).Info("LPO linked")
	return EventResult{EventID: lpo.ID, Status: models.EventLinked, Target: &target, Record: rec}, nil
}

// RecordYardDispense stores a yard dispense and folds it into the record it
// falls on by date. Without a match it stays pending for manual linking.
func (s *Service) RecordYardDispense(ctx context.Context, d models.YardDispense) (EventResult, error) {
	defer s.metrics.ObserveSince("record_yard_dispense", time.Now())

	d.TruckNumber = models.NormalizeTruck(d.TruckNumber)
	d.Yard = models.NormalizePlace(d.Yard)
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	if err := check(d); err != nil {
		return EventResult{}, err
	}
	d.ID = primitive.NilObjectID
	d.Status = models.EventPending
	d.Link = nil

	unlock := s.locks.Lock(d.TruckNumber)
	defer unlock()

	if err := s.stores.Yards.InsertYardDispense(ctx, &d); err != nil {
		return EventResult{}, fmt.Errorf("failed to insert yard dispense: %w", err)
	}
	return s.reconcileYardLocked(ctx, &d)
}

func (s *Service) reconcileYardLocked(ctx context.Context, d *models.YardDispense) (EventResult, error) {
	candidates, err := s.stores.Records.FindFuelRecordsByTruck(ctx, d.TruckNumber)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to load records for %s: %w", d.TruckNumber, err)
	}
	target, err := s.recon.TargetForYard(ctx, candidates, *d)
	if isRecoverable(err) {
		reason := err.Error()
		if d.PendingReason != reason {
			if err := s.stores.Yards.MarkYardDispensePending(ctx, d.ID, reason); err != nil {
				return EventResult{}, fmt.Errorf("failed to mark yard dispense pending: %w", err)
			}
		}
		s.metrics.RecordEvent(metrics.KindYardDispense, metrics.OutcomePending)
		s.log.WithFields(logrus.Fields{
			"dispense_id": d.ID.Hex(),
			"truck":       d.TruckNumber,
			"yard":        d.Yard,
			"reason":      reason,
		}).Info("Yard dispense pending")
		return EventResult{EventID: d.ID, Status: models.EventPending, Reason: reason}, nil
	}
	if err != nil {
		return EventResult{}, err
	}
	return s.linkYard(ctx, d, target, "")
}

func (s *Service) linkYard(ctx context.Context, d *models.YardDispense, target reconcile.Target, actor string) (EventResult, error) {
	rec, err := s.consume(ctx, target, d.Liters)
	if err != nil {
		return EventResult{}, err
	}
	link := models.FuelLink{
		FuelRecordID: target.RecordID,
		Leg:          target.Leg,
		Checkpoint:   target.Checkpoint,
		LinkedAt:     time.Now(),
		LinkedBy:     actor,
	}
	if err := s.stores.Yards.LinkYardDispense(ctx, d.ID, link); err != nil {
		return EventResult{}, fmt.Errorf("failed to link yard dispense: %w", err)
	}
	s.metrics.RecordEvent(metrics.KindYardDispense, metrics.OutcomeLinked)
	s.log.WithFields(logrus.Fields{
		"dispense_id": d.ID.Hex(),
		"record_id":   target.RecordID.Hex(),
		"leg":         target.Leg,
		"checkpoint":  target.Checkpoint,
		"liters":      d.Liters,
	}).Info("Yard dispense linked")
	return EventResult{EventID: d.ID, Status: models.EventLinked, Target: &target, Record: rec}, nil
}

// LinkLPO links a pending LPO to the record an operator chose.
func (s *Service) LinkLPO(ctx context.Context, id primitive.ObjectID, link ManualLink) (EventResult, error) {
	if err := checkManual(link); err != nil {
		return EventResult{}, err
	}
	lpo, err := s.stores.LPOs.FindLPOByID(ctx, id)
	if err != nil {
		return EventResult{}, err
	}
	truck, err := s.recordTruck(ctx, link.RecordID)
	if err != nil {
		return EventResult{}, err
	}

	unlock := s.locks.Lock(lpo.TruckNumber, truck)
	defer unlock()

	if lpo, err = s.stores.LPOs.FindLPOByID(ctx, id); err != nil {
		return EventResult{}, err
	}
	if lpo.Status != models.EventPending {
		return EventResult{}, fmt.Errorf("%w: LPO %s is %s", ErrNotPending, lpo.LPONumber, lpo.Status)
	}
	target, err := s.manualTarget(ctx, link, lpo.Station)
	if err != nil {
		return EventResult{}, err
	}
	return s.linkLPO(ctx, lpo, target, link.Actor)
}

// LinkYardDispense links a pending yard dispense to the record an operator
// chose.
func (s *Service) LinkYardDispense(ctx context.Context, id primitive.ObjectID, link ManualLink) (EventResult, error) {
	if err := checkManual(link); err != nil {
		return EventResult{}, err
	}
	d, err := s.stores.Yards.FindYardDispenseByID(ctx, id)
	if err != nil {
		return EventResult{}, err
	}
	truck, err := s.recordTruck(ctx, link.RecordID)
	if err != nil {
		return EventResult{}, err
	}

	unlock := s.locks.Lock(d.TruckNumber, truck)
	defer unlock()

	if d, err = s.stores.Yards.FindYardDispenseByID(ctx, id); err != nil {
		return EventResult{}, err
	}
	if d.Status != models.EventPending {
		return EventResult{}, fmt.Errorf("%w: yard dispense %s is %s", ErrNotPending, id.Hex(), d.Status)
	}
	target, err := s.manualTarget(ctx, link, d.Yard)
	if err != nil {
		return EventResult{}, err
	}
	return s.linkYard(ctx, d, target, link.Actor)
}

// RejectYardDispense discards a pending yard dispense.
func (s *Service) RejectYardDispense(ctx context.Context, id primitive.ObjectID, reason, actor string) (*models.YardDispense, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, malformed("rejection reason is required")
	}
	d, err := s.stores.Yards.FindYardDispenseByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(d.TruckNumber)
	defer unlock()

	if d, err = s.stores.Yards.FindYardDispenseByID(ctx, id); err != nil {
		return nil, err
	}
	if d.Status != models.EventPending {
		return nil, fmt.Errorf("%w: yard dispense %s is %s", ErrNotPending, id.Hex(), d.Status)
	}
	if err := s.stores.Yards.RejectYardDispense(ctx, id, reason, actor); err != nil {
		return nil, fmt.Errorf("failed to reject yard dispense: %w", err)
	}
	s.metrics.RecordEvent(metrics.KindYardDispense, metrics.OutcomeRejected)
	s.log.WithFields(logrus.Fields{
		"dispense_id": id.Hex(),
		"actor":       actor,
		"reason":      reason,
	}).Info("Yard dispense rejected")
	return s.stores.Yards.FindYardDispenseByID(ctx, id)
}

func (s *Service) manualTarget(ctx context.Context, link ManualLink, station string) (reconcile.Target, error) {
	cp := link.Checkpoint
	if cp == "" {
		var err error
		cp, err = s.recon.Checkpoint(ctx, station, link.Leg)
		if errors.Is(err, reconcile.ErrUnknownStation) {
			return reconcile.Target{}, malformed("no checkpoint for %s on %s leg, choose one", station, link.Leg)
		}
		if err != nil {
			return reconcile.Target{}, err
		}
	}
	if leg, ok := cp.Leg(); !ok || leg != link.Leg {
		return reconcile.Target{}, malformed("checkpoint %s is not on the %s leg", cp, link.Leg)
	}
	return reconcile.Target{RecordID: link.RecordID, Leg: link.Leg, Checkpoint: cp}, nil
}

func (s *Service) consume(ctx context.Context, target reconcile.Target, liters float64) (*models.FuelRecord, error) {
	return s.update(ctx, target.RecordID, func(r *models.FuelRecord) error {
		return reconcile.Consume(r, target.Leg, target.Checkpoint, liters)
	})
}

func checkManual(link ManualLink) error {
	if link.RecordID.IsZero() {
		return malformed("record_id is required")
	}
	return check(link)
}
