package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/broadcast"
	"github.com/opd-ai/chatprobe/delivery"
	"github.com/opd-ai/chatprobe/store"
)

// DefaultTick is the supervisor's reconcile interval.
const DefaultTick = 5 * time.Second

// Config holds supervisor tuning.
type Config struct {
	Tick           time.Duration
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = DefaultBackoffFloor
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = DefaultBackoffCeiling
	}
	return c
}

// StatusSnapshot is the aggregate connectivity state broadcast each tick.
type StatusSnapshot struct {
	Connected int `json:"connected"`
	Listeners int `json:"listeners"`
}

// Supervisor reconciles one listener per active endpoint on a fixed tick.
type Supervisor struct {
	store   store.Store
	tracker *delivery.Tracker
	hub     *broadcast.Hub
	cfg     Config

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	scheduler gocron.Scheduler
	listeners map[string]*listener
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(st store.Store, tracker *delivery.Tracker, hub *broadcast.Hub, cfg Config) *Supervisor {
	return &Supervisor{
		store:     st,
		tracker:   tracker,
		hub:       hub,
		cfg:       cfg.withDefaults(),
		listeners: make(map[string]*listener),
	}
}

// Start launches the periodic reconcile loop and runs one reconcile
// immediately.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("supervisor is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.cfg.Tick),
		gocron.NewTask(func() { s.reconcile(runCtx) }),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create reconcile job: %w", err)
	}

	s.cancel = cancel
	s.scheduler = scheduler
	s.running = true
	scheduler.Start()

	go s.reconcile(runCtx)

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"tick":     s.cfg.Tick.String(),
	}).Info("Event bridge supervisor started")
	return nil
}

// Stop cancels every listener and halts the reconcile loop. Pending
// requests on listener channels fail with a disconnect rather than hang.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is not running")
	}
	s.running = false
	scheduler := s.scheduler
	cancel := s.cancel
	listeners := s.listeners
	s.listeners = make(map[string]*listener)
	s.mu.Unlock()

	if err := scheduler.Shutdown(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
			"error":    err.Error(),
		}).Warn("Scheduler shutdown reported an error")
	}
	cancel()
	for _, l := range listeners {
		l.stop()
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Stop",
		"listeners": len(listeners),
	}).Info("Event bridge supervisor stopped")
	return nil
}

// ConnectedCount returns a point-in-time snapshot of connected listeners.
func (s *Supervisor) ConnectedCount() int {
	s.mu.Lock()
	listeners := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	count := 0
	for _, l := range listeners {
		if l.connected.Load() {
			count++
		}
	}
	return count
}

// reconcile aligns running listeners with the store's active endpoint set
// and broadcasts a status snapshot. Any iteration error is logged and the
// next tick tries again.
func (s *Supervisor) reconcile(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "reconcile",
				"panic":    r,
			}).Error("Reconcile panicked, continuing on next tick")
		}
	}()

	endpoints, err := s.store.ListActiveEndpoints(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "reconcile",
			"error":    err.Error(),
		}).Error("Failed to list active endpoints")
		return
	}

	active := make(map[string]*store.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		active[ep.ID] = ep
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	var started, stopped []string
	for id, ep := range active {
		if _, ok := s.listeners[id]; ok {
			continue
		}
		l := newListener(ctx, id, ep.Address, s.tracker, s.cfg.BackoffFloor, s.cfg.BackoffCeiling)
		s.listeners[id] = l
		go l.run()
		started = append(started, id)
	}
	for id, l := range s.listeners {
		if _, ok := active[id]; ok {
			continue
		}
		delete(s.listeners, id)
		l.stop()
		stopped = append(stopped, id)
	}
	total := len(s.listeners)
	s.mu.Unlock()

	if len(started) > 0 || len(stopped) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "reconcile",
			"started":  started,
			"stopped":  stopped,
		}).Info("Listener set reconciled")
	}

	if s.hub != nil {
		s.hub.Publish(broadcast.KindBridgeStatus, StatusSnapshot{
			Connected: s.ConnectedCount(),
			Listeners: total,
		})
	}
}
