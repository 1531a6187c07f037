package fuel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruckLocks_SerializesSameTruck(t *testing.T) {
	locks := NewTruckLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// spelling varies, the key does not
			name := "T699 DXY"
			if i%2 == 0 {
				name = " t699  dxy"
			}
			unlock := locks.Lock(name)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locks.Len())
}

func TestTruckLocks_PairsDoNotDeadlock(t *testing.T) {
	locks := NewTruckLocks()
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				unlock := locks.Lock("T1 AAA", "T2 BBB")
				unlock()
			}()
			go func() {
				defer wg.Done()
				unlock := locks.Lock("T2 BBB", "T1 AAA")
				unlock()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock pairs deadlocked")
	}
	assert.Equal(t, 0, locks.Len())
}

func TestTruckLocks_DuplicateKeys(t *testing.T) {
	locks := NewTruckLocks()

	unlock := locks.Lock("T1 AAA", "t1 aaa")
	assert.Equal(t, 1, locks.Len())
	unlock()
	assert.Equal(t, 0, locks.Len())
}
