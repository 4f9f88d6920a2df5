package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/negsched/config"
	"github.com/kilianp07/negsched/core/events"
	coremetrics "github.com/kilianp07/negsched/core/metrics"
	"github.com/kilianp07/negsched/core/planner"
	"github.com/kilianp07/negsched/core/scenario"
	"github.com/kilianp07/negsched/infra/logger"
	"github.com/kilianp07/negsched/infra/metrics"
	"github.com/kilianp07/negsched/infra/mqtt"
	"github.com/kilianp07/negsched/infra/runlog"
	"github.com/kilianp07/negsched/internal/eventbus"
)

// DefaultAckTimeout bounds the wait for a negotiation receipt.
const DefaultAckTimeout = 5 * time.Second

// Service wires the planner to its configured sinks, run log and publisher.
type Service struct {
	Planner *planner.Planner

	cfg        *config.Config
	publisher  mqtt.Publisher
	store      runlog.Store
	sink       coremetrics.MetricsSink
	bus        *eventbus.Bus[eventbus.Event]
	log        logger.Logger
	ackTimeout time.Duration
	gatherer   prometheus.Gatherer
	logOut     io.Writer
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher replaces the MQTT client built from the configuration.
func WithPublisher(p mqtt.Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithAckTimeout sets how long Publish waits for a receipt.
func WithAckTimeout(d time.Duration) Option { return func(s *Service) { s.ackTimeout = d } }

// WithGatherer serves g instead of the default registry on metrics.listen_addr.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Service) { s.gatherer = g } }

// WithLogOutput sends every log line to w instead of stdout.
func WithLogOutput(w io.Writer) Option { return func(s *Service) { s.logOut = w } }

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, ackTimeout: DefaultAckTimeout}
	for _, o := range opts {
		o(s)
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, s.logOut); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	s.log = logger.New("service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink
	store, err := runlog.NewStore(cfg.RunLog)
	if err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	s.store = store
	airports, err := cfg.Airports.Load()
	if err != nil {
		s.closeStore()
		return nil, fmt.Errorf("airports: %w", err)
	}
	if s.publisher == nil && cfg.MQTT.Broker != "" {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			s.closeStore()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.publisher = client
	}

	s.bus = eventbus.New()
	s.Planner = planner.New(planner.Config{
		TurnBufferMinutes: cfg.Solver.TurnBuffer(),
		Airports:          airports,
		K:                 cfg.Solver.K,
		Budget:            cfg.Solver.Budget(),
		ExcludeInfeasible: cfg.Solver.ExcludeInfeasible,
		DisableLPBound:    cfg.Solver.DisableLPBound,
	},
		planner.WithLogger(logger.New("planner")),
		planner.WithMetrics(sink),
		planner.WithEventBus(s.bus),
		planner.WithRunLog(store),
	)
	return s, nil
}

// Events returns a subscription to the planner events.
func (s *Service) Events() <-chan eventbus.Event { return s.bus.Subscribe() }

// Solve plans sc. A scenario without a policy uses the configured one; k and
// budget override the solver defaults when positive. The error mirrors the
// planner error while the report always describes the outcome.
func (s *Service) Solve(ctx context.Context, sc scenario.Scenario, k int, budget time.Duration) (Report, error) {
	policy := s.cfg.Policy
	if sc.Policy != nil {
		policy = *sc.Policy
	}
	res, err := s.Planner.Solve(ctx, planner.Request{
		Legs:   sc.Legs,
		Tails:  sc.Tails,
		Policy: policy,
		K:      k,
		Budget: budget,
	})
	return NewReport(res, err), err
}

// Publish hands rep to the negotiation workflow. It waits for a receipt
// only when an ack topic is configured.
func (s *Service) Publish(ctx context.Context, rep *Report) error {
	if s.publisher == nil {
		return errors.New("no publisher configured")
	}
	id, err := s.publisher.PublishResult(ctx, rep.RequestID, rep)
	if err != nil {
		return fmt.Errorf("publish %s: %w", rep.RequestID, err)
	}
	rep.Published = true
	if s.cfg.MQTT.AckTopic == "" {
		return nil
	}
	ok, err := s.publisher.WaitForAck(id, s.ackTimeout)
	if err != nil {
		return fmt.Errorf("ack %s: %w", rep.RequestID, err)
	}
	rep.Acked = ok
	return nil
}

// Run serves the configured HTTP endpoints and, when path is set, re-plans
// the scenario at path every interval until ctx is cancelled, publishing
// each report when a publisher is available. A failing plan is logged and
// retried on the next tick.
func (s *Service) Run(ctx context.Context, path string, interval time.Duration) error {
	if path != "" && interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if addr := s.cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, s.gatherer); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if addr := s.cfg.API.ListenAddr; addr != "" {
		go func() {
			if err := s.serveAPI(ctx, addr); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	go s.logEvents(ctx, s.bus.Subscribe())

	if path == "" {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.tick(ctx, path)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) tick(ctx context.Context, path string) {
	sc, err := scenario.Load(path)
	if err != nil {
		s.log.Errorf("load scenario: %v", err)
		return
	}
	rep, err := s.Solve(ctx, sc, 0, 0)
	if err != nil && ctx.Err() != nil {
		return
	}
	if s.publisher == nil {
		return
	}
	if err := s.Publish(ctx, &rep); err != nil {
		s.log.Errorf("%v", err)
	}
}

func (s *Service) logEvents(ctx context.Context, sub <-chan eventbus.Event) {
	defer s.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case events.LegsExcluded:
				for _, l := range e.Legs {
					s.log.Warnf("request %s: %s", e.RequestID, l)
				}
			case events.PlanCompleted:
				s.log.Debugw("plan completed", map[string]any{
					"request_id": e.RequestID,
					"status":     e.Status,
					"solutions":  e.Solutions,
					"best_cost":  e.BestCost,
				})
			}
		}
	}
}

func (s *Service) closeStore() {
	if err := s.store.Close(); err != nil {
		s.log.Errorf("close run log: %v", err)
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("run log: %w", err))
	}
	closeSink(s.sink)
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	s.bus.Close()
	if d := s.bus.Dropped(); d > 0 {
		s.log.Warnf("%d planner events dropped by slow subscribers", d)
	}
	return errors.Join(errs...)
}

func closeSink(sink coremetrics.MetricsSink) {
	switch c := sink.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range c.Sinks {
			closeSink(inner)
		}
	case interface{ Close() }:
		c.Close()
	}
}
