package models

import "time"

// RouteConfig is the administrator-maintained allowance for a destination.
type RouteConfig struct {
	Destination string           `json:"destination" bson:"destination" yaml:"destination"`
	TotalLiters float64          `json:"total_liters" bson:"total_liters" yaml:"total_liters"`
	GoingPlan   CheckpointLiters `json:"going_plan,omitempty" bson:"going_plan,omitempty" yaml:"going_plan,omitempty"`
	ReturnPlan  CheckpointLiters `json:"return_plan,omitempty" bson:"return_plan,omitempty" yaml:"return_plan,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at" bson:"updated_at" yaml:"-"`
}

// Plan returns the planned liters for the leg.
func (c *RouteConfig) Plan(leg JourneyLeg) CheckpointLiters {
	switch leg {
	case LegGoing:
		return c.GoingPlan
	case LegReturn:
		return c.ReturnPlan
	default:
		return nil
	}
}

// TruckBatchConfig maps a truck-number suffix to its extra fuel allowance.
type TruckBatchConfig struct {
	Suffix      string    `json:"suffix" bson:"suffix" yaml:"suffix"`
	ExtraLiters float64   `json:"extra_liters" bson:"extra_liters" yaml:"extra_liters"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at" yaml:"-"`
}

// StationConfig maps a fuel station or yard to the checkpoint it feeds on
// each leg. An empty checkpoint means the station is not used on that leg.
type StationConfig struct {
	Name             string     `json:"name" bson:"name" yaml:"name"`
	GoingCheckpoint  Checkpoint `json:"going_checkpoint,omitempty" bson:"going_checkpoint,omitempty" yaml:"going_checkpoint,omitempty"`
	ReturnCheckpoint Checkpoint `json:"return_checkpoint,omitempty" bson:"return_checkpoint,omitempty" yaml:"return_checkpoint,omitempty"`
	Yard             bool       `json:"yard" bson:"yard" yaml:"yard"`
}

// CheckpointFor returns the checkpoint the station feeds on the leg.
func (s *StationConfig) CheckpointFor(leg JourneyLeg) (Checkpoint, bool) {
	var cp Checkpoint
	switch leg {
	case LegGoing:
		cp = s.GoingCheckpoint
	case LegReturn:
		cp = s.ReturnCheckpoint
	}
	if cp == "" {
		return "", false
	}
	if l, ok := cp.Leg(); !ok || l != leg {
		return "", false
	}
	return cp, true
}

// ConfigSet is a batch of configuration, as loaded from a seed file.
type ConfigSet struct {
	Routes   []RouteConfig      `json:"routes" yaml:"routes"`
	Batches  []TruckBatchConfig `json:"truck_batches" yaml:"truck_batches"`
	Stations []StationConfig    `json:"stations" yaml:"stations"`
}
