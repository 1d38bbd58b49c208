package service

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
)

// LocalLocker is an in-process keyed lock for single-writer deployments.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*lockSlot)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.release(key, slot)
		})
	}, nil
}

func (l *LocalLocker) release(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func jobLockKey(jobID int64) string {
	return "counting:job:" + strconv.FormatInt(jobID, 10)
}

// lockJobs takes the per-job locks in ascending id order so that overlapping
// batches cannot deadlock.
func (s *Service) lockJobs(ctx context.Context, jobIDs []int64) (func(), error) {
	ids := append([]int64(nil), jobIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unlocks := make([]func(), 0, len(ids))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, id := range ids {
		unlock, err := s.locker.Lock(ctx, jobLockKey(id))
		if err != nil {
			unlockAll()
			if ctx.Err() != nil {
				return nil, err
			}
			conflict := domain.Conflictf("job %d is being modified by another operation", id).With("job_id", id)
			conflict.Err = err
			return nil, conflict
		}
		unlocks = append(unlocks, unlock)
	}
	return unlockAll, nil
}
