package fuel

import (
	"sort"
	"sync"

	"github.com/ukydev/fleet-fuel/internal/models"
)

// TruckLocks serializes work per truck number. Entries are dropped once no
// goroutine holds or waits on them.
type TruckLocks struct {
	mu    sync.Mutex
	locks map[string]*truckLock
}

type truckLock struct {
	mu   sync.Mutex
	refs int
}

func NewTruckLocks() *TruckLocks {
	return &TruckLocks{locks: make(map[string]*truckLock)}
}

// Lock acquires the locks for every truck given and returns the release
// func. Keys are taken in sorted order so two callers locking the same pair
// cannot deadlock.
func (l *TruckLocks) Lock(trucks ...string) func() {
	keys := make([]string, 0, len(trucks))
	seen := make(map[string]bool, len(trucks))
	for _, t := range trucks {
		k := models.NormalizeTruck(t)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	held := make([]*truckLock, 0, len(keys))
	for _, k := range keys {
		held = append(held, l.acquire(k))
	}
	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			l.release(keys[i], held[i])
		}
	}
}

func (l *TruckLocks) acquire(key string) *truckLock {
	l.mu.Lock()
	tl, ok := l.locks[key]
	if !ok {
		tl = &truckLock{}
		l.locks[key] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return tl
}

func (l *TruckLocks) release(key string, tl *truckLock) {
	tl.mu.Unlock()

	l.mu.Lock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Len is the number of trucks currently locked or awaited.
func (l *TruckLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
