package fuel

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ukydev/fleet-fuel/internal/balance"
	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CheckpointLine is one checkpoint of a leg breakdown.
type CheckpointLine struct {
	Checkpoint models.Checkpoint `json:"checkpoint"`
	Liters     float64           `json:"liters"`
}

// LegDetails is the journey information of one leg.
type LegDetails struct {
	DONumber    string           `json:"do_number"`
	Date        *time.Time       `json:"date,omitempty"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Checkpoints []CheckpointLine `json:"checkpoints"`
	Consumed    decimal.Decimal  `json:"consumed"`
}

// LPOLine is an attached LPO with its amount.
type LPOLine struct {
	models.LPOEntry
	Cost decimal.Decimal `json:"amount"`
}

// Totals summarizes the record.
type Totals struct {
	Allowance    decimal.Decimal `json:"allowance"`
	Consumed     decimal.Decimal `json:"consumed"`
	LPOLiters    decimal.Decimal `json:"lpo_liters"`
	LPOAmount    decimal.Decimal `json:"lpo_amount"`
	YardLiters   decimal.Decimal `json:"yard_liters"`
	Balance      float64         `json:"balance"`
	BalanceState balance.State   `json:"balance_state"`
}

// Details is the full view of one record. Actionable is false for cancelled
// records; their totals are historical only.
type Details struct {
	Record        models.FuelRecord     `json:"record"`
	Status        models.RecordStatus   `json:"status"`
	Actionable    bool                  `json:"actionable"`
	Going         LegDetails            `json:"going"`
	Return        *LegDetails           `json:"return,omitempty"`
	LPOs          []LPOLine             `json:"lpos"`
	YardDispenses []models.YardDispense `json:"yard_dispenses"`
	Totals        Totals                `json:"totals"`
}

// Details builds the details view of a record.
func (s *Service) Details(ctx context.Context, id primitive.ObjectID) (*Details, error) {
	rec, err := s.stores.Records.FindFuelRecordByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lpos, err := s.stores.LPOs.FindLPOsByRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load LPOs: %w", err)
	}
	yards, err := s.stores.Yards.FindYardDispensesByRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load yard dispenses: %w", err)
	}

	goingDate := rec.Date
	out := &Details{
		Record:     *rec,
		Status:     rec.Status(),
		Actionable: rec.Actionable(),
		Going: legDetails(rec, models.LegGoing, LegDetails{
			DONumber: rec.GoingDO,
			Date:     &goingDate,
			From:     rec.GoingFrom,
			To:       rec.GoingTo,
		}),
		YardDispenses: yards,
	}
	if rec.Linked() {
		ret := legDetails(rec, models.LegReturn, LegDetails{
			DONumber: rec.ReturnDO,
			Date:     rec.ReturnDate,
			From:     rec.ReturnFrom,
			To:       rec.ReturnTo,
		})
		out.Return = &ret
	}

	totals := Totals{
		Allowance:    balance.Allowance(rec),
		Consumed:     balance.Consumed(rec),
		LPOLiters:    decimal.Zero,
		LPOAmount:    decimal.Zero,
		YardLiters:   decimal.Zero,
		Balance:      rec.Balance,
		BalanceState: balance.Classify(rec.Balance),
	}
	out.LPOs = make([]LPOLine, 0, len(lpos))
	for _, l := range lpos {
		amount := l.Amount()
		out.LPOs = append(out.LPOs, LPOLine{LPOEntry: l, Cost: amount})
		totals.LPOLiters = totals.LPOLiters.Add(decimal.NewFromFloat(l.Liters))
		totals.LPOAmount = totals.LPOAmount.Add(amount)
	}
	for _, y := range yards {
		totals.YardLiters = totals.YardLiters.Add(decimal.NewFromFloat(y.Liters))
	}
	out.Totals = totals
	return out, nil
}

func legDetails(rec *models.FuelRecord, leg models.JourneyLeg, base LegDetails) LegDetails {
	cps := rec.Checkpoints(leg)
	consumed := decimal.Zero
	for _, cp := range leg.Checkpoints() {
		v := cps[cp]
		base.Checkpoints = append(base.Checkpoints, CheckpointLine{Checkpoint: cp, Liters: v})
		consumed = consumed.Add(decimal.NewFromFloat(v).Abs())
	}
	base.Consumed = consumed
	return base
}
