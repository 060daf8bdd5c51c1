package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/optiontrack/internal/models"
)

// Triggerer runs one guarded fetch cycle. session.Session satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context, kind models.ChainKind) bool
}

type ChainSchedulerConfig struct {
	FastInterval time.Duration // near chain, e.g. 5*time.Minute
	LeapInterval time.Duration // LEAP chain, e.g. 1*time.Hour
	LeapEnabled  bool
}

// ChainScheduler drives the near and LEAP cadences of one session. Both tickers
// share the session's guard, so a tick that lands on an in-flight cycle is dropped.
type ChainScheduler struct {
	session Triggerer
	cfg     ChainSchedulerConfig
	log     *logrus.Entry

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewChainScheduler(session Triggerer, cfg ChainSchedulerConfig) *ChainScheduler {
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 5 * time.Minute
	}
	if cfg.LeapInterval <= 0 {
		cfg.LeapInterval = 1 * time.Hour
	}
	return &ChainScheduler{
		session: session,
		cfg:     cfg,
		log:     logrus.WithField("component", "scheduler"),
	}
}

func (s *ChainScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	// Initial fetch on startup (fire-and-forget). LEAP follows near so the guard
	// does not drop it.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fire(models.KindNear)
		if s.cfg.LeapEnabled {
			s.fire(models.KindLeap)
		}
	}()

	s.wg.Add(1)
	go s.loop(stop, s.cfg.FastInterval, models.KindNear)
	if s.cfg.LeapEnabled {
		s.wg.Add(1)
		go s.loop(stop, s.cfg.LeapInterval, models.KindLeap)
	}

	s.log.WithFields(logrus.Fields{
		"fast": s.cfg.FastInterval,
		"leap": leapLabel(s.cfg),
	}).Info("started")
}

// Stop ends both cadences and waits for the loops to exit. An in-flight cycle
// runs to completion.
func (s *ChainScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("stopped")
}

func (s *ChainScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FetchNow manually triggers a cycle outside the normal schedule.
func (s *ChainScheduler) FetchNow(ctx context.Context, kind models.ChainKind) bool {
	s.log.WithField("kind", kind).Info("manual fetch triggered")
	return s.session.Trigger(ctx, kind)
}

func (s *ChainScheduler) loop(stop <-chan struct{}, every time.Duration, kind models.ChainKind) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.fire(kind)
		}
	}
}

func (s *ChainScheduler) fire(kind models.ChainKind) {
	// Cycles are bounded by the HTTP client timeout only.
	if !s.session.Trigger(context.Background(), kind) {
		s.log.WithField("kind", kind).Debug("tick skipped, cycle in flight")
	}
}

func leapLabel(cfg ChainSchedulerConfig) string {
	if !cfg.LeapEnabled {
		return "disabled"
	}
	return cfg.LeapInterval.String()
}
