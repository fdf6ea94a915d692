package chatprobe

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/bridge"
	"github.com/opd-ai/chatprobe/broadcast"
	"github.com/opd-ai/chatprobe/campaign"
	"github.com/opd-ai/chatprobe/commands"
	"github.com/opd-ai/chatprobe/config"
	"github.com/opd-ai/chatprobe/delivery"
	"github.com/opd-ai/chatprobe/store"
	"github.com/opd-ai/chatprobe/transport"
)

// Service owns every bridge subsystem. It is constructed explicitly and
// passed to whatever layer needs it; there is no ambient global state.
type Service struct {
	store      store.Store
	hub        *broadcast.Hub
	pool       *transport.Pool
	tracker    *delivery.Tracker
	supervisor *bridge.Supervisor
	facade     *commands.Facade
	runner     *campaign.Runner
}

// New wires a Service against a store. A nil cfg selects the defaults.
func New(st store.Store, cfg *config.Config) *Service {
	if cfg == nil {
		cfg = config.Default()
	}

	hub := broadcast.NewHub(cfg.Broadcast.Buffer)
	tracker := delivery.NewTracker(st, hub)
	pool := transport.NewPool(st, cfg.CommandTimeout())
	facade := commands.NewFacade(st, cfg.CommandTimeout())
	runner := campaign.NewRunner(st, facade, hub)
	runner.SetDeliveryWait(cfg.DeliveryWait())
	supervisor := bridge.NewSupervisor(st, tracker, hub, bridge.Config{
		Tick:           cfg.Tick(),
		BackoffFloor:   cfg.BackoffFloor(),
		BackoffCeiling: cfg.BackoffCeiling(),
	})

	return &Service{
		store:      st,
		hub:        hub,
		pool:       pool,
		tracker:    tracker,
		supervisor: supervisor,
		facade:     facade,
		runner:     runner,
	}
}

// Start launches the event bridge supervisor.
func (s *Service) Start(ctx context.Context) error {
	if err := s.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Start",
	}).Info("Bridge service started")
	return nil
}

// Stop shuts everything down: supervisor listeners are cancelled, pooled
// connections closed (pending requests fail with a disconnect), and the
// status hub closed.
func (s *Service) Stop() {
	if err := s.supervisor.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
			"error":    err.Error(),
		}).Warn("Supervisor stop reported an error")
	}
	s.pool.DisconnectAll()
	s.hub.Close()
	logrus.WithFields(logrus.Fields{
		"function": "Stop",
	}).Info("Bridge service stopped")
}

// Store returns the backing store.
func (s *Service) Store() store.Store { return s.store }

// Hub returns the status hub observers subscribe to.
func (s *Service) Hub() *broadcast.Hub { return s.hub }

// Pool returns the standing connection pool.
func (s *Service) Pool() *transport.Pool { return s.pool }

// Tracker returns the delivery tracker.
func (s *Service) Tracker() *delivery.Tracker { return s.tracker }

// Facade returns the one-shot command facade.
func (s *Service) Facade() *commands.Facade { return s.facade }

// Runner returns the campaign runner.
func (s *Service) Runner() *campaign.Runner { return s.runner }
