package fuel

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Amendment sets one checkpoint to an observed quantity. Liters is the
// magnitude drawn; it replaces the current value.
type Amendment struct {
	Leg        models.JourneyLeg `json:"leg" validate:"required,oneof=going return"`
	Checkpoint models.Checkpoint `json:"checkpoint" validate:"required"`
	Liters     float64           `json:"liters" validate:"gte=0"`
	Statement  string            `json:"statement,omitempty"`
	Actor      string            `json:"-"`
}

// AllowanceChange overrides the record's allowance. Nil fields are kept.
// Fuel added mid-route is recorded here as extra liters, never as a
// positive checkpoint.
type AllowanceChange struct {
	TotalLiters *float64 `json:"total_liters,omitempty" validate:"omitempty,gte=0"`
	ExtraLiters *float64 `json:"extra_liters,omitempty" validate:"omitempty,gte=0"`
	Statement   string   `json:"statement,omitempty"`
	Actor       string   `json:"-"`
}

// AmendCheckpoint corrects a checkpoint by hand, e.g. after a deficiency
// notice left it zero.
func (s *Service) AmendCheckpoint(ctx context.Context, id primitive.ObjectID, a Amendment) (*models.FuelRecord, error) {
	if err := check(a); err != nil {
		return nil, err
	}
	if math.IsNaN(a.Liters) || math.IsInf(a.Liters, 0) {
		return nil, malformed("liters must be a number")
	}
	if leg, ok := a.Checkpoint.Leg(); !ok || leg != a.Leg {
		return nil, malformed("checkpoint %s is not on the %s leg", a.Checkpoint, a.Leg)
	}
	truck, err := s.recordTruck(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(truck)
	defer unlock()

	rec, err := s.update(ctx, id, func(r *models.FuelRecord) error {
		if r.Cancelled {
			return ErrCancelled
		}
		r.Checkpoints(a.Leg)[a.Checkpoint] = models.Deduction(a.Liters)
		if a.Statement != "" {
			r.Statement = a.Statement
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"record_id":  id.Hex(),
		"leg":        a.Leg,
		"checkpoint": a.Checkpoint,
		"liters":     a.Liters,
		"actor":      a.Actor,
	}).Info("Checkpoint amended")
	return rec, nil
}

// AdjustAllowance overrides total or extra liters on a record.
func (s *Service) AdjustAllowance(ctx context.Context, id primitive.ObjectID, c AllowanceChange) (*models.FuelRecord, error) {
	if err := check(c); err != nil {
		return nil, err
	}
	if c.TotalLiters == nil && c.ExtraLiters == nil {
		return nil, malformed("nothing to adjust")
	}
	truck, err := s.recordTruck(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(truck)
	defer unlock()

	rec, err := s.update(ctx, id, func(r *models.FuelRecord) error {
		if r.Cancelled {
			return ErrCancelled
		}
		if c.TotalLiters != nil {
			r.TotalLiters = *c.TotalLiters
		}
		if c.ExtraLiters != nil {
			r.ExtraLiters = *c.ExtraLiters
		}
		if c.Statement != "" {
			r.Statement = c.Statement
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"record_id": id.Hex(),
		"total":     rec.TotalLiters,
		"extra":     rec.ExtraLiters,
		"actor":     c.Actor,
	}).Info("Allowance adjusted")
	return rec, nil
}

// Cancel marks a record cancelled. The stored balance is left as it was;
// the record only stops being actionable. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, id primitive.ObjectID, reason, actor string) (*models.FuelRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, malformed("cancellation reason is required")
	}
	truck, err := s.recordTruck(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(truck)
	defer unlock()

	rec, err := s.stores.Records.UpdateFuelRecord(ctx, id, func(r *models.FuelRecord) error {
		if r.Cancelled {
			return nil
		}
		now := time.Now()
		r.Cancelled = true
		r.CancellationReason = reason
		r.CancelledBy = actor
		r.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"record_id": id.Hex(),
		"truck":     rec.TruckNumber,
		"actor":     actor,
	}).Info("Fuel record cancelled")
	return rec, nil
}

// ListRecords returns records newest first.
func (s *Service) ListRecords(ctx context.Context, filter db.FuelRecordFilter) ([]models.FuelRecord, error) {
	filter.TruckNumber = models.NormalizeTruck(filter.TruckNumber)
	switch filter.Status {
	case "", models.RecordInProgress, models.RecordComplete, models.RecordCancelled:
	default:
		return nil, malformed("unknown status %q", filter.Status)
	}
	return s.stores.Records.FindFuelRecords(ctx, filter)
}

// Pending is the manual-work queue.
type Pending struct {
	Orphans       []models.OrphanReturn `json:"orphans"`
	LPOs          []models.LPOEntry     `json:"lpos"`
	YardDispenses []models.YardDispense `json:"yard_dispenses"`
}

// PendingQueue lists held return DOs and unlinked events. An empty truck
// lists every truck.
func (s *Service) PendingQueue(ctx context.Context, truck string) (Pending, error) {
	truck = models.NormalizeTruck(truck)
	var (
		out Pending
		err error
	)
	if out.Orphans, err = s.stores.Orphans.FindPendingOrphans(ctx, truck); err != nil {
		return Pending{}, fmt.Errorf("failed to load orphans: %w", err)
	}
	if out.LPOs, err = s.stores.LPOs.FindPendingLPOs(ctx, truck); err != nil {
		return Pending{}, fmt.Errorf("failed to load pending LPOs: %w", err)
	}
	if out.YardDispenses, err = s.stores.Yards.FindPendingYardDispenses(ctx, truck); err != nil {
		return Pending{}, fmt.Errorf("failed to load pending yard dispenses: %w", err)
	}
	return out, nil
}

// ConfigReport summarizes an ApplyConfig call.
type ConfigReport struct {
	Routes   int   `json:"routes"`
	Batches  int   `json:"truck_batches"`
	Stations int   `json:"stations"`
	Resolved int64 `json:"notifications_resolved"`
}

// ApplyConfig stores route, truck batch and station configuration and
// resolves the notices it answers. Existing records are not reallocated.
func (s *Service) ApplyConfig(ctx context.Context, set models.ConfigSet, actor string) (ConfigReport, error) {
	var report ConfigReport
	for _, route := range set.Routes {
		if strings.TrimSpace(route.Destination) == "" || route.TotalLiters < 0 {
			return report, malformed("route %q needs a destination and non-negative total", route.Destination)
		}
		if err := validPlan(route.GoingPlan, models.LegGoing); err != nil {
			return report, err
		}
		if err := validPlan(route.ReturnPlan, models.LegReturn); err != nil {
			return report, err
		}
		if err := s.stores.Config.UpsertRoute(ctx, route); err != nil {
			return report, fmt.Errorf("failed to store route %s: %w", route.Destination, err)
		}
		report.Routes++
		n, err := s.notifier.Resolve(ctx, db.NotificationFilter{Destination: route.Destination}, actor)
		if err != nil {
			return report, err
		}
		report.Resolved += n
	}
	for _, batch := range set.Batches {
		if strings.TrimSpace(batch.Suffix) == "" || batch.ExtraLiters < 0 {
			return report, malformed("truck batch %q needs a suffix and non-negative extra", batch.Suffix)
		}
		if err := s.stores.Config.UpsertTruckBatch(ctx, batch); err != nil {
			return report, fmt.Errorf("failed to store truck batch %s: %w", batch.Suffix, err)
		}
		report.Batches++
		n, err := s.notifier.Resolve(ctx, db.NotificationFilter{TruckSuffix: batch.Suffix}, actor)
		if err != nil {
			return report, err
		}
		report.Resolved += n
	}
	for _, st := range set.Stations {
		if strings.TrimSpace(st.Name) == "" {
			return report, malformed("station needs a name")
		}
		if st.GoingCheckpoint != "" {
			if _, ok := st.CheckpointFor(models.LegGoing); !ok {
				return report, malformed("station %s: %s is not a going checkpoint", st.Name, st.GoingCheckpoint)
			}
		}
		if st.ReturnCheckpoint != "" {
			if _, ok := st.CheckpointFor(models.LegReturn); !ok {
				return report, malformed("station %s: %s is not a return checkpoint", st.Name, st.ReturnCheckpoint)
			}
		}
		if err := s.stores.Config.UpsertStation(ctx, st); err != nil {
			return report, fmt.Errorf("failed to store station %s: %w", st.Name, err)
		}
		report.Stations++
	}
	s.log.WithFields(logrus.Fields{
		"routes":   report.Routes,
		"batches":  report.Batches,
		"stations": report.Stations,
		"resolved": report.Resolved,
		"actor":    actor,
	}).Info("Configuration applied")
	return report, nil
}

func validPlan(plan models.CheckpointLiters, leg models.JourneyLeg) error {
	for cp := range plan {
		if l, ok := cp.Leg(); !ok || l != leg {
			return malformed("%s is not a %s checkpoint", cp, leg)
		}
	}
	return nil
}
