package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/optiontrack/internal/analytics"
	"github.com/kjannette/optiontrack/internal/models"
	"github.com/kjannette/optiontrack/internal/volatility"
)

// ErrEmptyCapture marks a fetch that returned no contracts without an error.
var ErrEmptyCapture = errors.New("fetch returned no contracts")

type State int

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// Fetcher produces one chain capture. The source gateway satisfies it.
type Fetcher interface {
	FetchChain(ctx context.Context, symbol string, kind models.ChainKind) (*models.ChainSnapshot, error)
}

// Writer persists a capture subject to its own gating rules.
type Writer interface {
	Write(ctx context.Context, snap *models.ChainSnapshot, metrics []models.ExpiryMetrics) (bool, error)
}

// Alerter is told about sustained fetch failure and the recovery from it.
type Alerter interface {
	FetchFailing(symbol, kind string, consecutive int, err error)
	FetchRecovered(symbol, kind string, after int)
}

type Config struct {
	Symbol       string
	RiskFreeRate float64
	// AlertAfter is the run of consecutive failures that raises an alert; 0 disables alerts.
	AlertAfter int
	Now        func() time.Time
	Log        *logrus.Entry
}

// Failure describes the most recent failed cycle of one chain kind.
type Failure struct {
	At          time.Time
	Kind        models.ChainKind
	Err         error
	Consecutive int
}

// View is the retained result of the last successful cycle of one chain kind.
type View struct {
	CycleID     string
	Snapshot    *models.ChainSnapshot
	Metrics     []models.ExpiryMetrics
	CapturedAt  time.Time
	LastFailure *Failure
}

type Stats struct {
	Cycles        int64
	Dropped       int64
	Failed        int64
	Stored        int64
	PersistErrors int64
}

// Session tracks one symbol. At most one fetch cycle runs at a time across
// every chain kind; triggers that arrive while a cycle is in flight are dropped.
type Session struct {
	fetcher Fetcher
	writer  Writer
	alerter Alerter
	cfg     Config
	log     *logrus.Entry

	mu          sync.Mutex
	state       State
	views       map[models.ChainKind]View
	failures    map[models.ChainKind]*Failure
	consecutive map[models.ChainKind]int
	stats       Stats
}

func New(fetcher Fetcher, writer Writer, alerter Alerter, cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logrus.WithField("component", "session")
	}
	return &Session{
		fetcher:     fetcher,
		writer:      writer,
		alerter:     alerter,
		cfg:         cfg,
		log:         cfg.Log.WithField("symbol", cfg.Symbol),
		views:       make(map[models.ChainKind]View),
		failures:    make(map[models.ChainKind]*Failure),
		consecutive: make(map[models.ChainKind]int),
	}
}

func (s *Session) Symbol() string { return s.cfg.Symbol }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trigger runs one fetch cycle for kind and blocks until it finishes. It returns
// false without doing anything when another cycle is already in flight.
func (s *Session) Trigger(ctx context.Context, kind models.ChainKind) bool {
	s.mu.Lock()
	if s.state == Fetching {
		s.stats.Dropped++
		s.mu.Unlock()
		s.log.WithField("kind", kind).Debug("fetch in flight, trigger dropped")
		return false
	}
	s.state = Fetching
	s.stats.Cycles++
	s.mu.Unlock()

	// Deferred in reverse: the guard is back to Idle before any alert is sent.
	var alert func()
	defer func() {
		if alert != nil {
			alert()
		}
	}()
	defer func() {
		s.mu.Lock()
		s.state = Idle
		s.mu.Unlock()
	}()

	alert = s.runCycle(ctx, kind)
	return true
}

// runCycle fetches, derives and stores one capture. It returns the alert to
// send once the cycle is over, if any.
func (s *Session) runCycle(ctx context.Context, kind models.ChainKind) func() {
	id := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"cycle": id, "kind": kind})
	start := time.Now()

	snap, err := s.fetcher.FetchChain(ctx, s.cfg.Symbol, kind)
	if err == nil && snap.Empty() {
		err = ErrEmptyCapture
	}
	if err != nil {
		return s.recordFailure(kind, err, log)
	}

	now := s.cfg.Now()
	annotated := volatility.Annotate(snap, now, s.cfg.RiskFreeRate)
	metrics := analytics.ComputeAll(annotated, now)

	s.mu.Lock()
	s.views[kind] = View{
		CycleID:    id,
		Snapshot:   annotated,
		Metrics:    metrics,
		CapturedAt: snap.CapturedAt,
	}
	after := s.consecutive[kind]
	s.consecutive[kind] = 0
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"source":    annotated.Source,
		"contracts": annotated.ContractCount(),
		"expiries":  len(metrics),
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("chain refreshed")

	var alert func()
	if s.alerter != nil && s.cfg.AlertAfter > 0 && after >= s.cfg.AlertAfter {
		alert = func() { s.alerter.FetchRecovered(s.cfg.Symbol, string(kind), after) }
	}

	if s.writer == nil {
		return alert
	}
	stored, err := s.writer.Write(ctx, annotated, metrics)
	s.mu.Lock()
	switch {
	case err != nil:
		s.stats.PersistErrors++
	case stored:
		s.stats.Stored++
	}
	s.mu.Unlock()
	if err != nil {
		log.WithError(err).Error("snapshot not stored")
	}
	return alert
}

func (s *Session) recordFailure(kind models.ChainKind, err error, log *logrus.Entry) func() {
	s.mu.Lock()
	s.consecutive[kind]++
	n := s.consecutive[kind]
	s.failures[kind] = &Failure{At: s.cfg.Now(), Kind: kind, Err: err, Consecutive: n}
	s.stats.Failed++
	s.mu.Unlock()

	log.WithError(err).WithField("consecutive", n).Warn("chain fetch failed, keeping previous view")

	if s.alerter != nil && s.cfg.AlertAfter > 0 && n == s.cfg.AlertAfter {
		return func() { s.alerter.FetchFailing(s.cfg.Symbol, string(kind), n, err) }
	}
	return nil
}

// Latest returns the retained view of kind and whether a successful capture exists.
// The view carries the most recent failure even when no capture does.
func (s *Session) Latest(kind models.ChainKind) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.views[kind]
	if f, ok := s.failures[kind]; ok {
		cp := *f
		v.LastFailure = &cp
	}
	return v, v.Snapshot != nil
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
