// Package app wires configuration, storage, transports and the dispatch
// engine into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/domtech/lifeline/api"
	"github.com/domtech/lifeline/config"
	"github.com/domtech/lifeline/core/dispatch"
	coremetrics "github.com/domtech/lifeline/core/metrics"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/push"
	"github.com/domtech/lifeline/core/session"
	"github.com/domtech/lifeline/core/store"
	"github.com/domtech/lifeline/infra/jwt"
	"github.com/domtech/lifeline/infra/logger"
	"github.com/domtech/lifeline/infra/metrics"
	"github.com/domtech/lifeline/infra/postgres"
	"github.com/domtech/lifeline/infra/webpush"
	"github.com/domtech/lifeline/infra/ws"
	"github.com/domtech/lifeline/internal/eventbus"
)

// Service orchestrates the alert dispatch engine and its transports.
type Service struct {
	cfg        *config.Config
	log        logger.Logger
	bus        eventbus.EventBus
	sink       coremetrics.Sink
	dispatcher *dispatch.Dispatcher
	handler    *session.Handler
	rest       *api.Handler
	closeStore func()
}

// discardSender drops payloads when no VAPID key pair is configured.
type discardSender struct {
	log logger.Logger
}

func (d discardSender) Send(_ context.Context, sub model.PushSubscription, _ []byte) error {
	d.log.Debugf("push to %s dropped, web push disabled", sub.UserID)
	return nil
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	var st store.Store
	closeStore := func() {}
	if cfg.Database.DSN != "" {
		pg, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st = pg
		closeStore = pg.Close
	} else {
		logg.Warnf("no database configured, using volatile in-memory store")
		st = store.NewMemoryStore()
	}

	var sender push.Sender
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		wp, err := webpush.NewSender(cfg.Push)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("web push: %w", err)
		}
		sender = wp
	} else {
		logg.Warnf("no VAPID keys configured, push delivery disabled")
		sender = discardSender{log: logg}
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusAddr != "" {
		sink, err := metrics.NewPromSinkWithRegistry(nil)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxURL != "" {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	registry := dispatch.NewRegistry()
	locks := dispatch.NewLockTable()
	roles := dispatch.NewRoleMap(cfg.Dispatch.Roles)

	dispatcher, err := dispatch.NewDispatcher(registry, locks, st, sender, roles, bus, logger.New("dispatcher"), sink)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	notifier, err := dispatch.NewNotifier(registry, st, sender, bus, logger.New("notifier"))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("notifier: %w", err)
	}
	quorum, err := dispatch.NewQuorum(st, dispatcher, cfg.Dispatch.QuorumThreshold, bus, logger.New("quorum"))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("quorum: %w", err)
	}

	verifier, err := jwt.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("verifier: %w", err)
	}
	handler, err := session.NewHandler(registry, dispatcher, notifier, quorum, st, verifier, cfg.Dispatch, bus, logger.New("session"))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("session handler: %w", err)
	}
	rest, err := api.NewHandler(st, quorum, verifier, logger.New("api"))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("rest handler: %w", err)
	}

	return &Service{
		cfg:        cfg,
		log:        logg,
		bus:        bus,
		sink:       sink,
		dispatcher: dispatcher,
		handler:    handler,
		rest:       rest,
		closeStore: closeStore,
	}, nil
}

// Run starts the HTTP listener, the lease sweeper and the metrics pipeline,
// blocking until the context is canceled or a component fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.Endpoint(s.handler, s.cfg.WebSocket, logger.New("ws")))
	s.rest.Register(mux)
	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: mux}

	g.Go(func() error {
		s.log.Infof("listening on %s", s.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if lease := time.Duration(s.cfg.Dispatch.LockLeaseSeconds) * time.Second; lease > 0 {
		g.Go(func() error {
			s.dispatcher.RunLeaseSweeper(ctx, lease, 0)
			return nil
		})
	}
	if s.cfg.Metrics.PrometheusAddr != "" {
		g.Go(func() error {
			return metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr)
		})
	}
	metrics.StartEventCollector(ctx, s.bus, s.sink)

	return g.Wait()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	s.closeStore()
	return nil
}
