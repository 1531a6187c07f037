package fuel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/allocation"
	"github.com/ukydev/fleet-fuel/internal/linker"
	"github.com/ukydev/fleet-fuel/internal/metrics"
	"github.com/ukydev/fleet-fuel/internal/models"
	"github.com/ukydev/fleet-fuel/internal/notify"
	"github.com/ukydev/fleet-fuel/internal/reconcile"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LinkStatus is the outcome of presenting a return DO.
type LinkStatus string

const (
	LinkLinked   LinkStatus = "linked"
	LinkOrphaned LinkStatus = "orphaned"
	LinkConflict LinkStatus = "conflict"
)

// LinkResult reports where a return DO ended up.
type LinkResult struct {
	Status LinkStatus           `json:"status"`
	Record *models.FuelRecord   `json:"record,omitempty"`
	Orphan *models.OrphanReturn `json:"orphan,omitempty"`
}

var errReturnApplied = errors.New("return already applied")

// LinkReturn attaches a return DO to its going record. With no going record
// the DO is held as an orphan and no error is returned. When the truck's
// latest going record already carries another return DO, the DO is held
// with reason conflict and ErrConflict is returned.
func (s *Service) LinkReturn(ctx context.Context, order models.DeliveryOrder) (LinkResult, error) {
	defer s.metrics.ObserveSince("link_return", time.Now())

	if err := check(order); err != nil {
		return LinkResult{}, err
	}
	if order.Leg != models.LegReturn {
		return LinkResult{}, malformed("delivery order %s is a %s leg", order.DONumber, order.Leg)
	}
	order.TruckNumber = models.NormalizeTruck(order.TruckNumber)

	unlock := s.locks.Lock(order.TruckNumber)
	defer unlock()

	res, err := s.linkLocked(ctx, order, nil)
	if err != nil || res.Status != LinkLinked {
		return res, err
	}
	if _, err := s.retryEventsLocked(ctx, order.TruckNumber); err != nil {
		s.log.WithError(err).WithField("truck", order.TruckNumber).Warn("Retry of pending events failed")
	}
	if rec, err := s.stores.Records.FindFuelRecordByID(ctx, res.Record.ID); err == nil {
		res.Record = rec
	}
	return res, nil
}

// LinkReturnManually attaches a held return DO to a chosen record.
func (s *Service) LinkReturnManually(ctx context.Context, orphanID, recordID primitive.ObjectID, actor string) (LinkResult, error) {
	defer s.metrics.ObserveSince("link_return_manual", time.Now())

	orphan, err := s.stores.Orphans.FindOrphanByID(ctx, orphanID)
	if err != nil {
		return LinkResult{}, err
	}
	truck, err := s.recordTruck(ctx, recordID)
	if err != nil {
		return LinkResult{}, err
	}

	unlock := s.locks.Lock(orphan.TruckNumber, truck)
	defer unlock()

	orphan, err = s.stores.Orphans.FindOrphanByID(ctx, orphanID)
	if err != nil {
		return LinkResult{}, err
	}
	if orphan.Status != models.OrphanPending {
		return LinkResult{}, fmt.Errorf("%w: orphan %s is %s", ErrNotPending, orphanID.Hex(), orphan.Status)
	}

	rec, err := s.attachReturn(ctx, recordID, orphan.Order)
	if errors.Is(err, linker.ErrAlreadyLinked) {
		s.metrics.RecordEvent(metrics.KindReturnDO, metrics.OutcomeConflict)
		return LinkResult{Status: LinkConflict, Orphan: orphan}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return LinkResult{}, err
	}
	if err := s.stores.Orphans.MarkOrphanLinked(ctx, orphan.ID, rec.ID); err != nil {
		return LinkResult{}, fmt.Errorf("failed to mark orphan linked: %w", err)
	}
	orphan.Status = models.OrphanLinked
	orphan.LinkedRecordID = &rec.ID

	for _, plate := range uniqueTrucks(orphan.TruckNumber, rec.TruckNumber) {
		if _, err := s.retryEventsLocked(ctx, plate); err != nil {
			s.log.WithError(err).WithField("truck", plate).Warn("Retry of pending events failed")
		}
	}
	if fresh, err := s.stores.Records.FindFuelRecordByID(ctx, rec.ID); err == nil {
		rec = fresh
	}

	s.metrics.RecordEvent(metrics.KindReturnDO, metrics.OutcomeLinked)
	s.log.WithFields(logrus.Fields{
		"record_id": rec.ID.Hex(),
		"return_do": orphan.Order.DONumber,
		"actor":     actor,
	}).Info("Return DO linked manually")
	return LinkResult{Status: LinkLinked, Record: rec, Orphan: orphan}, nil
}

// linkLocked runs one link attempt. held is the stored orphan when the DO is
// being retried. The truck lock must be held.
func (s *Service) linkLocked(ctx context.Context, order models.DeliveryOrder, held *models.OrphanReturn) (LinkResult, error) {
	rec, err := s.linker.Resolve(ctx, order)
	switch {
	case errors.Is(err, linker.ErrNoGoingRecord):
		return s.hold(ctx, order, models.OrphanNoGoingRecord, held)
	case errors.Is(err, linker.ErrAlreadyLinked):
		res, herr := s.hold(ctx, order, models.OrphanConflict, held)
		if herr != nil {
			return res, herr
		}
		res.Status = LinkConflict
		return res, fmt.Errorf("%w: %v", ErrConflict, err)
	case err != nil:
		return LinkResult{}, err
	}

	if rec.ReturnDO != order.DONumber {
		rec, err = s.attachReturn(ctx, rec.ID, order)
		if errors.Is(err, linker.ErrAlreadyLinked) {
			res, herr := s.hold(ctx, order, models.OrphanConflict, held)
			if herr != nil {
				return res, herr
			}
			res.Status = LinkConflict
			return res, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		if err != nil {
			return LinkResult{}, err
		}
	}

	res := LinkResult{Status: LinkLinked, Record: rec}
	if held != nil {
		if err := s.stores.Orphans.MarkOrphanLinked(ctx, held.ID, rec.ID); err != nil {
			return LinkResult{}, fmt.Errorf("failed to mark orphan linked: %w", err)
		}
		linked := *held
		linked.Status = models.OrphanLinked
		linked.LinkedRecordID = &rec.ID
		res.Orphan = &linked
	}
	s.metrics.RecordEvent(metrics.KindReturnDO, metrics.OutcomeLinked)
	s.log.WithFields(logrus.Fields{
		"record_id":           rec.ID.Hex(),
		"truck":               rec.TruckNumber,
		"going_do":            rec.GoingDO,
		"return_do":           rec.ReturnDO,
		"destination_changed": rec.HasDestinationChanged,
	}).Info("Return DO linked")
	return res, nil
}

// attachReturn applies the return DO and its reverse-route allocation to
// the record in one update.
func (s *Service) attachReturn(ctx context.Context, id primitive.ObjectID, order models.DeliveryOrder) (*models.FuelRecord, error) {
	alloc, err := s.engine.Allocate(ctx, models.LegReturn, order.From)
	if err != nil {
		return nil, err
	}
	rec, err := s.update(ctx, id, func(r *models.FuelRecord) error {
		if r.Linked() {
			if r.ReturnDO == order.DONumber {
				return errReturnApplied
			}
			return linker.ErrAlreadyLinked
		}
		if err := linker.ApplyReturn(r, order); err != nil {
			return err
		}
		return mergeAllocation(r, alloc)
	})
	if errors.Is(err, errReturnApplied) {
		return s.stores.Records.FindFuelRecordByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if alloc.MissingRoute {
		recID := rec.ID
		s.notifier.Report(ctx, notify.Deficiency{
			TruckNumber:  rec.TruckNumber,
			TruckSuffix:  allocation.TruckSuffix(rec.TruckNumber),
			Destination:  alloc.Anchor,
			Leg:          models.LegReturn,
			MissingRoute: true,
			FuelRecordID: &recID,
		})
	}
	return rec, nil
}

// mergeAllocation adds planned deductions on top of anything already
// recorded, such as yard fuel entered before the return DO arrived.
func mergeAllocation(r *models.FuelRecord, alloc allocation.Allocation) error {
	for _, cp := range alloc.Leg.Checkpoints() {
		v := alloc.Checkpoints[cp]
		if v == 0 {
			continue
		}
		if err := reconcile.Consume(r, alloc.Leg, cp, math.Abs(v)); err != nil {
			return err
		}
	}
	r.Checkpoints(alloc.Leg)
	return nil
}

func (s *Service) hold(ctx context.Context, order models.DeliveryOrder, reason models.OrphanReason, held *models.OrphanReturn) (LinkResult, error) {
	outcome := metrics.OutcomeOrphaned
	if reason == models.OrphanConflict {
		outcome = metrics.OutcomeConflict
	}
	entry := s.log.WithFields(logrus.Fields{
		"truck":     order.TruckNumber,
		"return_do": order.DONumber,
		"reason":    reason,
	})

	if held == nil {
		existing, err := s.pendingOrphan(ctx, order)
		if err != nil {
			return LinkResult{}, err
		}
		held = existing
	}
	if held != nil {
		if err := s.stores.Orphans.TouchOrphan(ctx, held.ID, reason); err != nil {
			return LinkResult{}, fmt.Errorf("failed to update orphan: %w", err)
		}
		held.Reason = reason
		entry.Debug("Return DO still held")
		return LinkResult{Status: LinkOrphaned, Orphan: held}, nil
	}

	orphan := &models.OrphanReturn{
		Order:       order,
		TruckNumber: order.TruckNumber,
		Reason:      reason,
	}
	if err := s.stores.Orphans.InsertOrphan(ctx, orphan); err != nil {
		return LinkResult{}, fmt.Errorf("failed to store orphan: %w", err)
	}
	s.metrics.RecordEvent(metrics.KindReturnDO, outcome)
	entry.WithField("orphan_id", orphan.ID.Hex()).Warn("Return DO held as orphan")
	return LinkResult{Status: LinkOrphaned, Orphan: orphan}, nil
}

// pendingOrphan returns the orphan already holding this return DO, if any.
func (s *Service) pendingOrphan(ctx context.Context, order models.DeliveryOrder) (*models.OrphanReturn, error) {
	orphans, err := s.stores.Orphans.FindPendingOrphans(ctx, order.TruckNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load orphans: %w", err)
	}
	for i := range orphans {
		if orphans[i].Order.DONumber == order.DONumber {
			return &orphans[i], nil
		}
	}
	return nil, nil
}

func uniqueTrucks(a, b string) []string {
	if a == b {
		return []string{a}
	}
	return []string{a, b}
}
