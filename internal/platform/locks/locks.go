// Package locks provides per-milestone mutual exclusion. The submission
// pipeline and quorum finalization must not interleave for the same
// milestone, and selection runs must see a stable rotation round.
package locks

import (
	"context"
	"sync"

	id "tml/pkg/domain"
)

// MilestoneLocker serializes operations per milestone. Acquire blocks until
// the lock is held or ctx is done; the returned release function must be
// called exactly once.
type MilestoneLocker interface {
	Acquire(ctx context.Context, milestoneID id.MilestoneID) (release func(), err error)
}

// Memory is the in-process locker for single-instance deployments and tests.
type Memory struct {
	mu    sync.Mutex
	locks map[id.MilestoneID]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[id.MilestoneID]*sync.Mutex)}
}

func (m *Memory) Acquire(ctx context.Context, milestoneID id.MilestoneID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	lock, ok := m.locks[milestoneID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[milestoneID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}
