package eph

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type (
	// scheduler periodically asks the lock context to flush partitions whose checkpoint interval has elapsed
	scheduler struct {
		locks        *lockContext
		tickInterval time.Duration
		now          func() time.Time
		done         func()
		stopped      chan struct{}
		mu           sync.Mutex
	}
)

func newScheduler(locks *lockContext, tickInterval time.Duration) *scheduler {
	return &scheduler{
		locks:        locks,
		tickInterval: tickInterval,
		now:          time.Now,
	}
}

// Run blocks, scanning open partitions every tick until ctx is done or Stop is called
func (s *scheduler) Run(ctx context.Context) {
	if stopped := s.start(ctx); stopped != nil {
		<-stopped
	}
}

// start launches the scan loop in the background. It returns nil if the scheduler was already started.
func (s *scheduler) start(ctx context.Context) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil
	}
	ctx, done := context.WithCancel(ctx)
	s.done = done
	s.stopped = make(chan struct{})
	go s.loop(ctx, s.stopped)
	return s.stopped
}

func (s *scheduler) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	log.Debugf("checkpoint scheduler running every %v", s.tickInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.locks.flushExpired(s.now())
		}
	}
}

// Stop ends Run and waits for the current tick to finish
func (s *scheduler) Stop() {
	s.mu.Lock()
	done, stopped := s.done, s.stopped
	s.mu.Unlock()

	if done == nil {
		return
	}
	done()
	<-stopped
}
