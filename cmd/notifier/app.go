package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/task-notifier/internal/config"
	"github.com/jwalitptl/task-notifier/internal/handler/health"
	notificationHandler "github.com/jwalitptl/task-notifier/internal/handler/notification"
	promhandler "github.com/jwalitptl/task-notifier/internal/handler/prometheus"
	"github.com/jwalitptl/task-notifier/internal/middleware"
	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/realtime"
	"github.com/jwalitptl/task-notifier/internal/repository"
	"github.com/jwalitptl/task-notifier/internal/repository/memory"
	"github.com/jwalitptl/task-notifier/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/task-notifier/internal/repository/redis"
	"github.com/jwalitptl/task-notifier/internal/router"
	"github.com/jwalitptl/task-notifier/internal/service/consumer"
	"github.com/jwalitptl/task-notifier/internal/service/dispatcher"
	"github.com/jwalitptl/task-notifier/internal/service/lifecycle"
	notificationService "github.com/jwalitptl/task-notifier/internal/service/notification"
	"github.com/jwalitptl/task-notifier/internal/service/offline"
	"github.com/jwalitptl/task-notifier/internal/service/presence"
	"github.com/jwalitptl/task-notifier/internal/service/store"
	"github.com/jwalitptl/task-notifier/internal/worker"
	"github.com/jwalitptl/task-notifier/pkg/auth"
	"github.com/jwalitptl/task-notifier/pkg/circuitbreaker"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/messaging"
	"github.com/jwalitptl/task-notifier/pkg/messaging/amqp"
	redisbroker "github.com/jwalitptl/task-notifier/pkg/messaging/redis"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
	"github.com/jwalitptl/task-notifier/pkg/validator"
)

type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	redis    *goredis.Client
	db       *sqlx.DB
	broker   messaging.Consumer
	consumer *consumer.Consumer
	reaper   *worker.PresenceReaper
	router   *router.Router
	wg       sync.WaitGroup
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Metrics.Namespace, registry)

	if cfg.UsesRedis() {
		redisCfg := redisbroker.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}
		client, err := redisbroker.Connect(ctx, redisCfg)
		if err != nil {
			if cfg.Broker.Driver == "redis" {
				return nil, err
			}
			// stores degrade behind their breakers until Redis comes back
			log.Error(err, "Redis unreachable at startup, stores will run degraded")
			if client, err = redisbroker.NewClient(redisCfg); err != nil {
				return nil, err
			}
		}
		a.redis = client
	}

	presenceRepo, err := a.presenceRepository()
	if err != nil {
		return nil, err
	}
	offlineRepo, err := a.offlineRepository(ctx)
	if err != nil {
		return nil, err
	}

	presenceSvc := presence.NewService(presenceRepo, store.NewGuard("presence", a.breaker("presence"), m, log))
	offlineSvc := offline.NewService(offlineRepo, store.NewGuard("offline", a.breaker("offline"), m, log))

	hub := realtime.NewHub(m, log)
	d := dispatcher.New(hub, offlineSvc, dispatcher.Options{StoreOnAbsent: cfg.Offline.StoreOnAbsent}, m, log)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	gateway := realtime.NewGateway(realtime.GatewayDeps{
		Hub:        hub,
		Verifier:   jwtSvc,
		Presence:   presenceSvc,
		Offline:    offlineSvc,
		Dispatcher: d,
		Validator:  validator.New(),
		Metrics:    m,
		Logger:     log,
	}, realtime.Options{
		AllowedOrigins:  cfg.Realtime.AllowedOrigins,
		SendBuffer:      cfg.Realtime.SendBuffer,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		PingInterval:    cfg.Realtime.PingInterval,
		PongWait:        cfg.Realtime.PongWait,
		WriteWait:       cfg.Realtime.WriteWait,
		EventsPerSecond: cfg.Realtime.EventsPerSecond,
		Burst:           cfg.Realtime.EventBurst,
		TouchInterval:   cfg.Presence.TouchInterval,
	})

	a.broker = a.newBroker(log)
	a.consumer = consumer.New(a.broker, lifecycle.NewProcessor(d, log), consumer.Options{
		Concurrency:     cfg.Broker.Concurrency,
		InitialInterval: cfg.Broker.ReconnectInterval,
		MaxInterval:     cfg.Broker.ReconnectMaxInterval,
	}, m, log)
	a.reaper = worker.NewPresenceReaper(presenceSvc, cfg.Presence.ReapInterval, log)

	healthH := health.NewHandler(
		health.Check{Name: "broker", Critical: true, Ping: a.brokerReady},
		health.Check{Name: "presence_store", Ping: presenceSvc.Ping},
		health.Check{Name: "offline_store", Ping: offlineSvc.Ping},
	)

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Realtime.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Realtime.AllowedOrigins
	}
	routerCfg := router.RouterConfig{
		CORSConfig:    cors,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		WebsocketPath: cfg.Realtime.Path,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerCfg.RateBurst = cfg.RateLimit.Burst
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	a.router = router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		healthH,
		notificationHandler.NewHandler(notificationService.NewService(d, log), offlineSvc, presenceSvc),
		promhandler.New(registry).Handler(),
		gateway.ServeWS,
		m,
		routerCfg,
	)
	return a, nil
}

func (a *app) breaker(name string) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        name,
		MaxFailures: a.cfg.Breaker.MaxFailures,
		Timeout:     a.cfg.Breaker.Timeout,
	})
}

func (a *app) presenceRepository() (repository.PresenceRepository, error) {
	switch a.cfg.Presence.Store {
	case "redis":
		return redisrepo.NewPresenceRepository(a.redis, a.cfg.Presence.TTL), nil
	case "memory":
		return memory.NewPresenceRepository(a.cfg.Presence.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported presence store %q", a.cfg.Presence.Store)
	}
}

func (a *app) offlineRepository(ctx context.Context) (repository.OfflineRepository, error) {
	limits := repository.StoreLimits{MaxEntries: a.cfg.Offline.MaxEntries, TTL: a.cfg.Offline.TTL}

	switch a.cfg.Offline.Store {
	case "redis":
		return redisrepo.NewOfflineRepository(a.redis, limits), nil
	case "memory":
		return memory.NewOfflineRepository(limits, a.cfg.Presence.ReapInterval), nil
	case "postgres":
		db, err := postgres.NewDB(ctx, postgres.Config{
			Host:            a.cfg.Database.Host,
			Port:            a.cfg.Database.Port,
			User:            a.cfg.Database.User,
			Password:        a.cfg.Database.Password,
			Name:            a.cfg.Database.Name,
			SSLMode:         a.cfg.Database.SSLMode,
			MaxOpenConns:    a.cfg.Database.MaxOpenConns,
			MaxIdleConns:    a.cfg.Database.MaxIdleConns,
			ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		return postgres.NewOfflineRepository(db, limits), nil
	default:
		return nil, fmt.Errorf("unsupported offline store %q", a.cfg.Offline.Store)
	}
}

func (a *app) topology() messaging.Topology {
	return messaging.Topology{
		Exchange:     a.cfg.Broker.Exchange,
		Queue:        a.cfg.Broker.Queue,
		RoutingKeys:  model.RoutingKeys(),
		DeadLetter:   a.cfg.Broker.DeadLetterExchange,
		Prefetch:     a.cfg.Broker.Prefetch,
		ConsumerName: a.cfg.Broker.ConsumerName,
	}
}

func (a *app) newBroker(log *logger.Logger) messaging.Consumer {
	if a.cfg.Broker.Driver == "redis" {
		return redisbroker.NewStreamBroker(a.redis, a.topology(), redisbroker.StreamOptions{
			Block:  a.cfg.Broker.StreamBlock,
			MaxLen: a.cfg.Broker.StreamMaxLen,
		}, log)
	}
	return amqp.NewBroker(amqp.Config{URL: a.cfg.Broker.URL, Topology: a.topology()}, log)
}

func (a *app) brokerReady(context.Context) error {
	if state := a.consumer.State(); state != consumer.StateConsuming {
		return fmt.Errorf("consumer is %s", state)
	}
	return nil
}

func (a *app) start(ctx context.Context) {
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.consumer.Run(ctx); err != nil {
			a.logger.Error(err, "Event consumer stopped")
		}
	}()
	go func() {
		defer a.wg.Done()
		a.reaper.Start(ctx)
	}()
}

func (a *app) wait() {
	a.wg.Wait()
}

func (a *app) close() {
	var errs []error
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error(err, "Error while releasing resources")
	}
}
