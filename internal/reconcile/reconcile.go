// Package reconcile decides which fuel record, leg and checkpoint an LPO or
// yard dispense belongs to, and folds its liters into that checkpoint.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/linker"
	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNoFuelRecord   = errors.New("no matching fuel record")
	ErrUnknownStation = errors.New("station has no checkpoint for leg")
	ErrInvalidLiters  = errors.New("liters must be positive")
	ErrWrongLeg       = errors.New("checkpoint does not belong to leg")
)

// StationSource looks up administrator-configured stations and yards.
type StationSource interface {
	FindStation(ctx context.Context, name string) (*models.StationConfig, error)
}

// Target is where an event's liters land.
type Target struct {
	RecordID   primitive.ObjectID `json:"record_id"`
	Leg        models.JourneyLeg  `json:"leg"`
	Checkpoint models.Checkpoint  `json:"checkpoint"`
}

// Reconciler matches events to records. It never writes; the caller applies
// Consume inside a record update.
type Reconciler struct {
	stations StationSource
	defaults map[string]models.StationConfig
	window   time.Duration
}

// New creates a reconciler. window bounds how long after a going record's
// date a date-matched event may still attach to it; zero disables the bound.
func New(stations StationSource, window time.Duration) *Reconciler {
	defaults := make(map[string]models.StationConfig)
	for _, st := range DefaultStations() {
		defaults[models.NormalizePlace(st.Name)] = st
	}
	return &Reconciler{stations: stations, defaults: defaults, window: window}
}

// TargetForLPO resolves an LPO against the truck's records. Going and return
// LPOs follow their tag and DO number; cash and driver-account LPOs carry no
// DO and are placed by date like a yard dispense.
func (r *Reconciler) TargetForLPO(ctx context.Context, candidates []models.FuelRecord, lpo models.LPOEntry) (Target, error) {
	var (
		rec *models.FuelRecord
		leg models.JourneyLeg
	)
	switch lpo.JourneyType {
	case models.JourneyGoing, models.JourneyReturn:
		leg = models.JourneyLeg(lpo.JourneyType)
		if lpo.HasDO() {
			rec = byDO(candidates, leg, lpo.DONumber)
		} else {
			rec = r.byDate(candidates, lpo.Date, leg == models.LegReturn)
		}
	case models.JourneyCash, models.JourneyDriverAccount:
		rec = r.byDate(candidates, lpo.Date, false)
		if rec != nil {
			leg = LegAt(rec, lpo.Date)
		}
	default:
		return Target{}, fmt.Errorf("unknown journey type %q", lpo.JourneyType)
	}
	if rec == nil {
		return Target{}, ErrNoFuelRecord
	}

	cp, err := r.Checkpoint(ctx, lpo.Station, leg)
	if err != nil {
		return Target{}, err
	}
	return Target{RecordID: rec.ID, Leg: leg, Checkpoint: cp}, nil
}

// TargetForYard resolves a yard dispense: the newest record dated on or
// before the dispense, on the return leg once the dispense is not before the
// return DO date.
func (r *Reconciler) TargetForYard(ctx context.Context, candidates []models.FuelRecord, d models.YardDispense) (Target, error) {
	rec := r.byDate(candidates, d.Timestamp, false)
	if rec == nil {
		return Target{}, ErrNoFuelRecord
	}
	leg := LegAt(rec, d.Timestamp)
	cp, err := r.Checkpoint(ctx, d.Yard, leg)
	if err != nil {
		return Target{}, err
	}
	return Target{RecordID: rec.ID, Leg: leg, Checkpoint: cp}, nil
}

// Checkpoint maps a station or yard name to its checkpoint on the leg.
// Stored configuration wins over the built-in table.
func (r *Reconciler) Checkpoint(ctx context.Context, station string, leg models.JourneyLeg) (models.Checkpoint, error) {
	key := models.NormalizePlace(station)
	st, err := r.stations.FindStation(ctx, key)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("failed to load station %s: %w", key, err)
	}
	if st == nil {
		if def, ok := r.defaults[key]; ok {
			st = &def
		}
	}
	if st == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownStation, key)
	}
	cp, ok := st.CheckpointFor(leg)
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrUnknownStation, key, leg)
	}
	return cp, nil
}

// LegAt is the leg a dated event falls on for the record.
func LegAt(rec *models.FuelRecord, at time.Time) models.JourneyLeg {
	if rec.Linked() && rec.ReturnDate != nil && !dayOf(at).Before(dayOf(*rec.ReturnDate)) {
		return models.LegReturn
	}
	return models.LegGoing
}

// Consume adds liters to the checkpoint's consumed total. It never replaces
// what is already there.
func Consume(rec *models.FuelRecord, leg models.JourneyLeg, cp models.Checkpoint, liters float64) error {
	if liters <= 0 || math.IsNaN(liters) || math.IsInf(liters, 0) {
		return ErrInvalidLiters
	}
	if l, ok := cp.Leg(); !ok || l != leg {
		return fmt.Errorf("%w: %s on %s", ErrWrongLeg, cp, leg)
	}
	cps := rec.Checkpoints(leg)
	consumed := decimal.NewFromFloat(cps[cp]).Abs().Add(decimal.NewFromFloat(liters))
	cps[cp], _ = consumed.Neg().Float64()
	return nil
}

func byDO(candidates []models.FuelRecord, leg models.JourneyLeg, do string) *models.FuelRecord {
	for i := range candidates {
		rec := &candidates[i]
		if leg == models.LegGoing && rec.GoingDO == do {
			return rec
		}
		if leg == models.LegReturn && rec.ReturnDO == do {
			return rec
		}
	}
	return nil
}

func (r *Reconciler) byDate(candidates []models.FuelRecord, at time.Time, linkedOnly bool) *models.FuelRecord {
	var eligible []*models.FuelRecord
	for i := range candidates {
		rec := &candidates[i]
		if dayOf(rec.Date).After(dayOf(at)) {
			continue
		}
		if r.window > 0 && at.Sub(rec.Date) > r.window {
			continue
		}
		if linkedOnly && !rec.Linked() {
			continue
		}
		eligible = append(eligible, rec)
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].Date.Equal(eligible[j].Date) {
			return eligible[i].Date.After(eligible[j].Date)
		}
		return linker.CompareDONumbers(eligible[i].GoingDO, eligible[j].GoingDO) > 0
	})
	return eligible[0]
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
