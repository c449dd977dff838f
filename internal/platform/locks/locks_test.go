package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "tml/pkg/domain"
)

func TestMemory_MutualExclusion(t *testing.T) {
	locker := NewMemory()
	milestoneID := id.NewMilestoneID()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), milestoneID)
			require.NoError(t, err)
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestMemory_IndependentMilestones(t *testing.T) {
	locker := NewMemory()

	releaseA, err := locker.Acquire(context.Background(), id.NewMilestoneID())
	require.NoError(t, err)
	defer releaseA()

	// A held lock on one milestone must not block another.
	done := make(chan struct{})
	go func() {
		releaseB, err := locker.Acquire(context.Background(), id.NewMilestoneID())
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent milestone lock blocked")
	}
}

func TestMemory_CancelledContext(t *testing.T) {
	locker := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := locker.Acquire(ctx, id.NewMilestoneID())
	assert.Error(t, err)
}
