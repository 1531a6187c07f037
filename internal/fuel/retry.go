package fuel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-fuel/internal/models"
	"golang.org/x/sync/errgroup"
)

// RetryReport counts what a retry pass linked.
type RetryReport struct {
	Trucks        int `json:"trucks"`
	Orphans       int `json:"orphans_linked"`
	LPOs          int `json:"lpos_linked"`
	YardDispenses int `json:"yard_dispenses_linked"`
}

func (r *RetryReport) add(o RetryReport) {
	r.Trucks += o.Trucks
	r.Orphans += o.Orphans
	r.LPOs += o.LPOs
	r.YardDispenses += o.YardDispenses
}

// RetryPending reattempts every held return DO and pending event. Trucks are
// processed in parallel, each under its own lock.
func (s *Service) RetryPending(ctx context.Context) (RetryReport, error) {
	defer s.metrics.ObserveSince("retry_pending", time.Now())

	queue, err := s.PendingQueue(ctx, "")
	if err != nil {
		return RetryReport{}, err
	}
	trucks := pendingTrucks(queue)

	var (
		mu     sync.Mutex
		report RetryReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.RetryConcurrency)
	for _, truck := range trucks {
		g.Go(func() error {
			unlock := s.locks.Lock(truck)
			defer unlock()

			r, err := s.retryTruckLocked(gctx, truck)
			if err != nil {
				return fmt.Errorf("retry %s: %w", truck, err)
			}
			r.Trucks = 1
			mu.Lock()
			report.add(r)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	s.log.WithFields(logrus.Fields{
		"trucks":  report.Trucks,
		"orphans": report.Orphans,
		"lpos":    report.LPOs,
		"yard":    report.YardDispenses,
	}).Info("Pending retry finished")
	return report, err
}

// retryTruckLocked relinks held return DOs, then pending events, for one
// truck. The truck lock must be held.
func (s *Service) retryTruckLocked(ctx context.Context, truck string) (RetryReport, error) {
	var report RetryReport
	orphans, err := s.stores.Orphans.FindPendingOrphans(ctx, truck)
	if err != nil {
		return report, fmt.Errorf("failed to load orphans: %w", err)
	}
	for i := range orphans {
		res, err := s.linkLocked(ctx, orphans[i].Order, &orphans[i])
		if err != nil && !errors.Is(err, ErrConflict) {
			return report, err
		}
		if res.Status == LinkLinked {
			report.Orphans++
		}
	}

	events, err := s.retryEventsLocked(ctx, truck)
	report.add(events)
	return report, err
}

func (s *Service) retryEventsLocked(ctx context.Context, truck string) (RetryReport, error) {
	var report RetryReport
	lpos, err := s.stores.LPOs.FindPendingLPOs(ctx, truck)
	if err != nil {
		return report, fmt.Errorf("failed to load pending LPOs: %w", err)
	}
	for i := range lpos {
		res, err := s.reconcileLPOLocked(ctx, &lpos[i])
		if err != nil {
			return report, err
		}
		if res.Status == models.EventLinked {
			report.LPOs++
		}
	}

	yards, err := s.stores.Yards.FindPendingYardDispenses(ctx, truck)
	if err != nil {
		return report, fmt.Errorf("failed to load pending yard dispenses: %w", err)
	}
	for i := range yards {
		res, err := s.reconcileYardLocked(ctx, &yards[i])
		if err != nil {
			return report, err
		}
		if res.Status == models.EventLinked {
			report.YardDispenses++
		}
	}
	return report, nil
}

func pendingTrucks(p Pending) []string {
	seen := make(map[string]bool)
	for _, o := range p.Orphans {
		seen[o.TruckNumber] = true
	}
	for _, l := range p.LPOs {
		seen[l.TruckNumber] = true
	}
	for _, y := range p.YardDispenses {
		seen[y.TruckNumber] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
