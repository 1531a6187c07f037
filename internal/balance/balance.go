// Package balance computes the residual fuel of a record.
//
// balance = totalLiters + extraLiters − Σ|going checkpoint| − Σ|return checkpoint|
//
// Sums run in decimal so repeated additive consumption never drifts.
package balance

import (
	"github.com/shopspring/decimal"
	"github.com/ukydev/fleet-fuel/internal/models"
)

// State classifies a balance.
type State string

const (
	Balanced      State = "balanced"
	UnderConsumed State = "under_consumed"
	OverConsumed  State = "over_consumed"
)

// tolerance below which a balance counts as zero
var tolerance = decimal.New(5, -3)

// Consumed is the total absolute liters drawn across both legs.
func Consumed(rec *models.FuelRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, cps := range []models.CheckpointLiters{rec.GoingCheckpoints, rec.ReturnCheckpoints} {
		for _, v := range cps {
			sum = sum.Add(decimal.NewFromFloat(v).Abs())
		}
	}
	return sum
}

// Allowance is total plus extra liters.
func Allowance(rec *models.FuelRecord) decimal.Decimal {
	return decimal.NewFromFloat(rec.TotalLiters).Add(decimal.NewFromFloat(rec.ExtraLiters))
}

// Compute returns the record's balance. Negative values are kept as-is.
func Compute(rec *models.FuelRecord) float64 {
	f, _ := Allowance(rec).Sub(Consumed(rec)).Float64()
	return f
}

// Apply stores the balance on the record and flags a negative one.
// It reports whether the record is anomalous.
func Apply(rec *models.FuelRecord) bool {
	rec.Balance = Compute(rec)
	rec.BalanceAnomaly = rec.Balance < 0
	return rec.BalanceAnomaly
}

// Classify maps a balance to its state.
func Classify(balance float64) State {
	b := decimal.NewFromFloat(balance)
	switch {
	case b.Abs().LessThan(tolerance):
		return Balanced
	case b.IsPositive():
		return UnderConsumed
	default:
		return OverConsumed
	}
}
