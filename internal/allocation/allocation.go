package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ukydev/fleet-fuel/internal/db"
	"github.com/ukydev/fleet-fuel/internal/models"
)

// ConfigSource is the read side of the route and truck batch configuration.
// Lookups return db.ErrNotFound when nothing is configured.
type ConfigSource interface {
	FindRoute(ctx context.Context, destination string) (*models.RouteConfig, error)
	FindTruckBatch(ctx context.Context, suffix string) (*models.TruckBatchConfig, error)
}

// Allocation is the planned deduction set for one leg of a record.
type Allocation struct {
	Leg          models.JourneyLeg
	Anchor       string
	Checkpoints  models.CheckpointLiters
	TotalLiters  *float64 // going leg only
	MissingRoute bool
}

// Engine apportions a route allowance across the checkpoints of a leg.
type Engine struct {
	config ConfigSource
}

// NewEngine creates an allocation engine over the configuration source.
func NewEngine(config ConfigSource) *Engine {
	return &Engine{config: config}
}

// Allocate returns the checkpoint deductions for a leg. The anchor is the
// going destination on the going leg and the return origin on the return
// leg, since the return trip runs the route in reverse. A missing route
// yields a zero-filled set with MissingRoute set; no default is guessed.
func (e *Engine) Allocate(ctx context.Context, leg models.JourneyLeg, anchor string) (Allocation, error) {
	if !leg.Valid() {
		return Allocation{}, fmt.Errorf("allocate: unknown leg %q", leg)
	}
	out := Allocation{
		Leg:         leg,
		Anchor:      models.NormalizePlace(anchor),
		Checkpoints: models.ZeroFilled(leg),
	}

	route, err := e.config.FindRoute(ctx, out.Anchor)
	if errors.Is(err, db.ErrNotFound) || (err == nil && route == nil) {
		out.MissingRoute = true
		return out, nil
	}
	if err != nil {
		return Allocation{}, fmt.Errorf("failed to load route %s: %w", out.Anchor, err)
	}

	plan := route.Plan(leg)
	for _, cp := range leg.Checkpoints() {
		out.Checkpoints[cp] = models.Deduction(plan[cp])
	}
	if leg == models.LegGoing {
		total := route.TotalLiters
		out.TotalLiters = &total
	}
	return out, nil
}

// Extra returns the extra fuel configured for the truck's batch suffix.
// missing is true when no batch exists; liters is then zero and the caller
// decides what to store.
func (e *Engine) Extra(ctx context.Context, truck string) (liters float64, suffix string, missing bool, err error) {
	suffix = TruckSuffix(truck)
	if suffix == "" {
		return 0, "", true, nil
	}
	batch, err := e.config.FindTruckBatch(ctx, suffix)
	if errors.Is(err, db.ErrNotFound) || (err == nil && batch == nil) {
		return 0, suffix, true, nil
	}
	if err != nil {
		return 0, suffix, false, fmt.Errorf("failed to load truck batch %s: %w", suffix, err)
	}
	return batch.ExtraLiters, suffix, false, nil
}

// TruckSuffix is the last whitespace-separated token of a truck number,
// e.g. "DXY" for "T699 DXY".
func TruckSuffix(truck string) string {
	fields := strings.Fields(models.NormalizeTruck(truck))
	if len(fields) < 2 {
		return ""
	}
	return fields[len(fields)-1]
}
