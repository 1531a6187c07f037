package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/fleet-fuel/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore implements every collection interface in process memory. It
// backs STORE=memory and the package tests of the service layer.
type MemoryStore struct {
	mu            sync.RWMutex
	records       map[primitive.ObjectID]models.FuelRecord
	routes        map[string]models.RouteConfig
	batches       map[string]models.TruckBatchConfig
	stations      map[string]models.StationConfig
	orphans       map[primitive.ObjectID]models.OrphanReturn
	lpos          map[primitive.ObjectID]models.LPOEntry
	yards         map[primitive.ObjectID]models.YardDispense
	notifications map[primitive.ObjectID]models.Notification
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:       make(map[primitive.ObjectID]models.FuelRecord),
		routes:        make(map[string]models.RouteConfig),
		batches:       make(map[string]models.TruckBatchConfig),
		stations:      make(map[string]models.StationConfig),
		orphans:       make(map[primitive.ObjectID]models.OrphanReturn),
		lpos:          make(map[primitive.ObjectID]models.LPOEntry),
		yards:         make(map[primitive.ObjectID]models.YardDispense),
		notifications: make(map[primitive.ObjectID]models.Notification),
	}
}

// Stores exposes the memory store through every collection interface.
func (s *MemoryStore) Stores() Stores {
	return Stores{
		Records:       s,
		Config:        s,
		Orphans:       s,
		LPOs:          s,
		Yards:         s,
		Notifications: s,
	}
}

func (s *MemoryStore) InsertFuelRecord(ctx context.Context, rec *models.FuelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Version = 1
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) FindFuelRecordByID(ctx context.Context, id primitive.ObjectID) (*models.FuelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec.Clone()
	return &out, nil
}

func (s *MemoryStore) FindFuelRecordsByTruck(ctx context.Context, truck string) ([]models.FuelRecord, error) {
	return s.FindFuelRecords(ctx, FuelRecordFilter{TruckNumber: truck})
}

func (s *MemoryStore) FindFuelRecords(ctx context.Context, filter FuelRecordFilter) ([]models.FuelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FuelRecord
	for _, rec := range s.records {
		if filter.TruckNumber != "" && rec.TruckNumber != filter.TruckNumber {
			continue
		}
		if filter.Status != "" && rec.Status() != filter.Status {
			continue
		}
		if !filter.From.IsZero() && rec.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && rec.Date.After(filter.To) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	if filter.Limit > 0 && int64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateFuelRecord(ctx context.Context, id primitive.ObjectID, mutate MutateFunc) (*models.FuelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()
	s.records[id] = next.Clone()
	return &next, nil
}

func (s *MemoryStore) FindRoute(ctx context.Context, destination string) (*models.RouteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	route, ok := s.routes[models.NormalizePlace(destination)]
	if !ok {
		return nil, ErrNotFound
	}
	route.GoingPlan = route.GoingPlan.Clone()
	route.ReturnPlan = route.ReturnPlan.Clone()
	return &route, nil
}

func (s *MemoryStore) UpsertRoute(ctx context.Context, route models.RouteConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	route.Destination = models.NormalizePlace(route.Destination)
	route.GoingPlan = route.GoingPlan.Clone()
	route.ReturnPlan = route.ReturnPlan.Clone()
	route.UpdatedAt = time.Now()
	s.routes[route.Destination] = route
	return nil
}

func (s *MemoryStore) ListRoutes(ctx context.Context) ([]models.RouteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RouteConfig, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out, nil
}

func (s *MemoryStore) FindTruckBatch(ctx context.Context, suffix string) (*models.TruckBatchConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[models.NormalizePlace(suffix)]
	if !ok {
		return nil, ErrNotFound
	}
	return &batch, nil
}

func (s *MemoryStore) UpsertTruckBatch(ctx context.Context, batch models.TruckBatchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch.Suffix = models.NormalizePlace(batch.Suffix)
	batch.UpdatedAt = time.Now()
	s.batches[batch.Suffix] = batch
	return nil
}

func (s *MemoryStore) ListTruckBatches(ctx context.Context) ([]models.TruckBatchConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TruckBatchConfig, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Suffix < out[j].Suffix })
	return out, nil
}

func (s *MemoryStore) FindStation(ctx context.Context, name string) (*models.StationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[models.NormalizePlace(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (s *MemoryStore) UpsertStation(ctx context.Context, station models.StationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	station.Name = models.NormalizePlace(station.Name)
	s.stations[station.Name] = station
	return nil
}

func (s *MemoryStore) InsertOrphan(ctx context.Context, orphan *models.OrphanReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if orphan.ID.IsZero() {
		orphan.ID = primitive.NewObjectID()
	}
	now := time.Now()
	orphan.CreatedAt = now
	orphan.UpdatedAt = now
	orphan.Status = models.OrphanPending
	s.orphans[orphan.ID] = *orphan
	return nil
}

func (s *MemoryStore) FindOrphanByID(ctx context.Context, id primitive.ObjectID) (*models.OrphanReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orphans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) FindPendingOrphans(ctx context.Context, truck string) ([]models.OrphanReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OrphanReturn
	for _, o := range s.orphans {
		if o.Status != models.OrphanPending || (truck != "" && o.TruckNumber != truck) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order.Date.Before(out[j].Order.Date) })
	return out, nil
}

func (s *MemoryStore) MarkOrphanLinked(ctx context.Context, id primitive.ObjectID, recordID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orphans[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = models.OrphanLinked
	o.LinkedRecordID = &recordID
	o.UpdatedAt = time.Now()
	s.orphans[id] = o
	return nil
}

func (s *MemoryStore) TouchOrphan(ctx context.Context, id primitive.ObjectID, reason models.OrphanReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orphans[id]
	if !ok {
		return nil
	}
	o.Attempts++
	o.Reason = reason
	o.UpdatedAt = time.Now()
	s.orphans[id] = o
	return nil
}

func (s *MemoryStore) InsertLPO(ctx context.Context, lpo *models.LPOEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lpo.ID.IsZero() {
		lpo.ID = primitive.NewObjectID()
	}
	lpo.CreatedAt = time.Now()
	if lpo.Status == "" {
		lpo.Status = models.EventPending
	}
	s.lpos[lpo.ID] = *lpo
	return nil
}

func (s *MemoryStore) FindLPOByID(ctx context.Context, id primitive.ObjectID) (*models.LPOEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lpo, ok := s.lpos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &lpo, nil
}

func (s *MemoryStore) FindLPOsByRecord(ctx context.Context, recordID primitive.ObjectID) ([]models.LPOEntry, error) {
	return s.filterLPOs(func(e models.LPOEntry) bool {
		return e.Status == models.EventLinked && e.Link != nil && e.Link.FuelRecordID == recordID
	}), nil
}

func (s *MemoryStore) FindPendingLPOs(ctx context.Context, truck string) ([]models.LPOEntry, error) {
	return s.filterLPOs(func(e models.LPOEntry) bool {
		return e.Status == models.EventPending && (truck == "" || e.TruckNumber == truck)
	}), nil
}

func (s *MemoryStore) filterLPOs(keep func(models.LPOEntry) bool) []models.LPOEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LPOEntry
	for _, e := range s.lpos {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *MemoryStore) LinkLPO(ctx context.Context, id primitive.ObjectID, link models.FuelLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lpo, ok := s.lpos[id]
	if !ok {
		return ErrNotFound
	}
	lpo.Status = models.EventLinked
	lpo.Link = &link
	lpo.PendingReason = ""
	s.lpos[id] = lpo
	return nil
}

func (s *MemoryStore) MarkLPOPending(ctx context.Context, id primitive.ObjectID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lpo, ok := s.lpos[id]
	if !ok {
		return ErrNotFound
	}
	lpo.Status = models.EventPending
	lpo.PendingReason = reason
	s.lpos[id] = lpo
	return nil
}

func (s *MemoryStore) InsertYardDispense(ctx context.Context, d *models.YardDispense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = models.EventPending
	}
	s.yards[d.ID] = *d
	return nil
}

func (s *MemoryStore) FindYardDispenseByID(ctx context.Context, id primitive.ObjectID) (*models.YardDispense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.yards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) FindYardDispensesByRecord(ctx context.Context, recordID primitive.ObjectID) ([]models.YardDispense, error) {
	return s.filterYards(func(d models.YardDispense) bool {
		return d.Status == models.EventLinked && d.Link != nil && d.Link.FuelRecordID == recordID
	}), nil
}

func (s *MemoryStore) FindPendingYardDispenses(ctx context.Context, truck string) ([]models.YardDispense, error) {
	return s.filterYards(func(d models.YardDispense) bool {
		return d.Status == models.EventPending && (truck == "" || d.TruckNumber == truck)
	}), nil
}

func (s *MemoryStore) filterYards(keep func(models.YardDispense) bool) []models.YardDispense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.YardDispense
	for _, d := range s.yards {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *MemoryStore) LinkYardDispense(ctx context.Context, id primitive.ObjectID, link models.FuelLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.yards[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = models.EventLinked
	d.Link = &link
	d.PendingReason = ""
	d.UpdatedAt = time.Now()
	s.yards[id] = d
	return nil
}

func (s *MemoryStore) MarkYardDispensePending(ctx context.Context, id primitive.ObjectID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.yards[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = models.EventPending
	d.PendingReason = reason
	d.UpdatedAt = time.Now()
	s.yards[id] = d
	return nil
}

func (s *MemoryStore) RejectYardDispense(ctx context.Context, id primitive.ObjectID, reason, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.yards[id]
	if !ok || d.Status != models.EventPending {
		return ErrNotFound
	}
	d.Status = models.EventRejected
	d.RejectionReason = reason
	d.RejectedBy = actor
	d.UpdatedAt = time.Now()
	s.yards[id] = d
	return nil
}

func (s *MemoryStore) InsertNotificationIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notifications {
		if existing.Status == models.NotificationPending && existing.DedupeKey == n.DedupeKey {
			return false, nil
		}
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.Status = models.NotificationPending
	s.notifications[n.ID] = *n
	return true, nil
}

func (s *MemoryStore) FindNotifications(ctx context.Context, status string) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if status == "" || n.Status == status {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ResolveNotifications(ctx context.Context, filter NotificationFilter, actor string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dest := models.NormalizePlace(filter.Destination)
	suffix := models.NormalizePlace(filter.TruckSuffix)
	var resolved int64
	now := time.Now()
	for id, n := range s.notifications {
		if n.Status != models.NotificationPending {
			continue
		}
		match := false
		switch {
		case dest != "":
			match = n.MissingRoute() && n.Destination == dest
		case suffix != "":
			match = n.MissingBatch() && n.TruckSuffix == suffix
		}
		if !match {
			continue
		}
		n.Status = models.NotificationResolved
		n.ResolvedBy = actor
		n.ResolvedAt = &now
		s.notifications[id] = n
		resolved++
	}
	return resolved, nil
}
