package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pruner drops expired intents from a store.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// IntentSweeper prunes expired intents in the background. Redis expires
// keys on its own; the in-memory store needs this.
type IntentSweeper struct {
	store    Pruner
	interval time.Duration
	log      logrus.FieldLogger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewIntentSweeper creates a sweeper running every interval
func NewIntentSweeper(store Pruner, interval time.Duration, log logrus.FieldLogger) *IntentSweeper {
	return &IntentSweeper{
		store:    store,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sweep loop
func (s *IntentSweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop()
	}()
}

// Stop stops the loop and waits for it to exit. It is safe to call more
// than once.
func (s *IntentSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *IntentSweeper) sweepLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *IntentSweeper) sweep() {
	n, err := s.store.Prune(context.Background())
	if err != nil {
		s.log.WithError(err).Error("prune payment intents")
		return
	}
	if n > 0 {
		s.log.WithField("pruned", n).Debug("expired payment intents dropped")
	}
}
