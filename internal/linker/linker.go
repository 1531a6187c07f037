// Package linker attaches return delivery orders to the going fuel record
// they close.
package linker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ukydev/fleet-fuel/internal/models"
)

var (
	ErrNoGoingRecord = errors.New("no unlinked going record for truck")
	ErrAlreadyLinked = errors.New("going record already linked to a different return DO")
	ErrNotReturn     = errors.New("delivery order is not a return leg")
)

// RecordSource is the truck index over fuel records.
type RecordSource interface {
	FindFuelRecordsByTruck(ctx context.Context, truck string) ([]models.FuelRecord, error)
}

// Linker selects the going record a return DO belongs to.
type Linker struct {
	records RecordSource
}

// New creates a linker over the record index.
func New(records RecordSource) *Linker {
	return &Linker{records: records}
}

// Resolve finds the record the return DO should attach to. A record already
// holding the same return DO is returned as-is, so replays are harmless.
// Callers must hold the truck lock across Resolve and the following update.
func (l *Linker) Resolve(ctx context.Context, ret models.DeliveryOrder) (*models.FuelRecord, error) {
	if ret.Leg != models.LegReturn {
		return nil, ErrNotReturn
	}
	truck := models.NormalizeTruck(ret.TruckNumber)
	records, err := l.records.FindFuelRecordsByTruck(ctx, truck)
	if err != nil {
		return nil, fmt.Errorf("failed to load records for %s: %w", truck, err)
	}

	for i := range records {
		if records[i].ReturnDO == ret.DONumber {
			return &records[i], nil
		}
	}

	var eligible []models.FuelRecord
	for _, rec := range records {
		if rec.Cancelled || !onOrBefore(rec.Date, ret.Date) {
			continue
		}
		eligible = append(eligible, rec)
	}
	sortNewestFirst(eligible)

	for i := range eligible {
		if !eligible[i].Linked() {
			return &eligible[i], nil
		}
	}
	if len(eligible) > 0 {
		// the newest going record already closed on another return
		return nil, fmt.Errorf("%w: record %s holds return DO %s",
			ErrAlreadyLinked, eligible[0].ID.Hex(), eligible[0].ReturnDO)
	}
	return nil, ErrNoGoingRecord
}

// ApplyReturn copies the return DO onto the record. GoingTo is never
// touched; a differing return origin only raises HasDestinationChanged.
func ApplyReturn(rec *models.FuelRecord, ret models.DeliveryOrder) error {
	if rec.Linked() {
		if rec.ReturnDO == ret.DONumber {
			return nil
		}
		return ErrAlreadyLinked
	}
	date := ret.Date
	rec.ReturnDO = ret.DONumber
	rec.ReturnDate = &date
	rec.ReturnFrom = models.NormalizePlace(ret.From)
	rec.ReturnTo = models.NormalizePlace(ret.To)
	rec.HasDestinationChanged = DestinationChanged(rec.GoingTo, ret.From)
	return nil
}

// DestinationChanged reports whether the return origin differs from the
// going destination.
func DestinationChanged(goingTo, returnFrom string) bool {
	to := models.NormalizePlace(goingTo)
	from := models.NormalizePlace(returnFrom)
	if to == "" || from == "" {
		return false
	}
	return to != from
}

// Latest returns the newest going record that is not cancelled, or nil.
func Latest(records []models.FuelRecord) *models.FuelRecord {
	var live []models.FuelRecord
	for _, rec := range records {
		if !rec.Cancelled {
			live = append(live, rec)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sortNewestFirst(live)
	return &live[0]
}

func sortNewestFirst(records []models.FuelRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		di, dj := day(records[i].Date), day(records[j].Date)
		if !di.Equal(dj) {
			return di.After(dj)
		}
		if c := CompareDONumbers(records[i].GoingDO, records[j].GoingDO); c != 0 {
			return c > 0
		}
		return records[i].Date.After(records[j].Date)
	})
}

// CompareDONumbers orders DO numbers by numeric value, so "10040" sorts
// after "9999". Non-numeric parts fall back to a plain string compare.
func CompareDONumbers(a, b string) int {
	da, db := digits(a), digits(b)
	if da == "" || db == "" {
		return strings.Compare(a, b)
	}
	if len(da) != len(db) {
		if len(da) > len(db) {
			return 1
		}
		return -1
	}
	if c := strings.Compare(da, db); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func onOrBefore(a, b time.Time) bool {
	return !day(a).After(day(b))
}
