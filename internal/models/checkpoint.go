package models

import (
	"math"
	"strings"
)

// JourneyLeg identifies which half of a round trip an event belongs to.
type JourneyLeg string

const (
	LegGoing  JourneyLeg = "going"
	LegReturn JourneyLeg = "return"
)

// Valid reports whether the leg is one of the two known legs.
func (l JourneyLeg) Valid() bool {
	switch l {
	case LegGoing, LegReturn:
		return true
	default:
		return false
	}
}

// Checkpoint names a yard or en-route point where fuel leaves the allowance.
type Checkpoint string

const (
	CheckpointMMSAYard    Checkpoint = "mmsa_yard"
	CheckpointTangaYard   Checkpoint = "tanga_yard"
	CheckpointDarYard     Checkpoint = "dar_yard"
	CheckpointDarGoing    Checkpoint = "dar_going"
	CheckpointMoroGoing   Checkpoint = "moro_going"
	CheckpointMbeyaGoing  Checkpoint = "mbeya_going"
	CheckpointTdmGoing    Checkpoint = "tdm_going"
	CheckpointZambiaGoing Checkpoint = "zambia_going"
	CheckpointCongoFuel   Checkpoint = "congo_fuel"

	CheckpointZambiaReturn  Checkpoint = "zambia_return"
	CheckpointTundumaReturn Checkpoint = "tunduma_return"
	CheckpointMbeyaReturn   Checkpoint = "mbeya_return"
	CheckpointMoroReturn    Checkpoint = "moro_return"
	CheckpointDarReturn     Checkpoint = "dar_return"
	CheckpointTangaReturn   Checkpoint = "tanga_return"
	CheckpointMMSAReturn    Checkpoint = "mmsa_return"
)

var goingCheckpoints = []Checkpoint{
	CheckpointMMSAYard,
	CheckpointTangaYard,
	CheckpointDarYard,
	CheckpointDarGoing,
	CheckpointMoroGoing,
	CheckpointMbeyaGoing,
	CheckpointTdmGoing,
	CheckpointZambiaGoing,
	CheckpointCongoFuel,
}

var returnCheckpoints = []Checkpoint{
	CheckpointZambiaReturn,
	CheckpointTundumaReturn,
	CheckpointMbeyaReturn,
	CheckpointMoroReturn,
	CheckpointDarReturn,
	CheckpointTangaReturn,
	CheckpointMMSAReturn,
}

// Checkpoints returns the ordered checkpoint set for the leg.
func (l JourneyLeg) Checkpoints() []Checkpoint {
	var src []Checkpoint
	switch l {
	case LegGoing:
		src = goingCheckpoints
	case LegReturn:
		src = returnCheckpoints
	default:
		return nil
	}
	out := make([]Checkpoint, len(src))
	copy(out, src)
	return out
}

// Leg returns the leg a checkpoint belongs to.
func (c Checkpoint) Leg() (JourneyLeg, bool) {
	for _, cp := range goingCheckpoints {
		if cp == c {
			return LegGoing, true
		}
	}
	for _, cp := range returnCheckpoints {
		if cp == c {
			return LegReturn, true
		}
	}
	return "", false
}

// CheckpointLiters holds the liters recorded per checkpoint for one leg.
// Values are stored as zero or negative magnitudes.
type CheckpointLiters map[Checkpoint]float64

// ZeroFilled returns a map containing every checkpoint of the leg set to zero.
func ZeroFilled(leg JourneyLeg) CheckpointLiters {
	out := make(CheckpointLiters)
	for _, cp := range leg.Checkpoints() {
		out[cp] = 0
	}
	return out
}

// Deduction normalizes a liter quantity to the stored sign convention.
func Deduction(liters float64) float64 {
	if liters == 0 {
		return 0
	}
	return -math.Abs(liters)
}

// Clone returns an independent copy of the map.
func (c CheckpointLiters) Clone() CheckpointLiters {
	if c == nil {
		return nil
	}
	out := make(CheckpointLiters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// NormalizeTruck upper-cases a truck number and collapses inner whitespace,
// so "t699  dxy" and "T699 DXY" compare equal.
func NormalizeTruck(truck string) string {
	return strings.Join(strings.Fields(strings.ToUpper(truck)), " ")
}

// NormalizePlace is the lookup key form of a destination, station or yard name.
func NormalizePlace(place string) string {
	return strings.Join(strings.Fields(strings.ToUpper(place)), " ")
}
