package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/auth"
	"github.com/ariefcatur/go-realtime-bowls/internal/config"
	"github.com/ariefcatur/go-realtime-bowls/internal/httpx"
	kafkax "github.com/ariefcatur/go-realtime-bowls/internal/kafka"
	"github.com/ariefcatur/go-realtime-bowls/internal/memstore"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/ariefcatur/go-realtime-bowls/internal/postgres"
	"github.com/ariefcatur/go-realtime-bowls/internal/realtime"
	"github.com/ariefcatur/go-realtime-bowls/internal/redisx"
	"github.com/ariefcatur/go-realtime-bowls/internal/service"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type store interface {
	orders.UnitOfWork
	orders.Reader
	orders.Seeder
}

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	lvl, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(lvl)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("api exited")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	advance, err := auth.ParseRoles(cfg.AdvanceRoles)
	if err != nil {
		return err
	}

	// Store
	var st store
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on exit")
		st = memstore.New()
	default:
		if err := postgres.Migrate(cfg.PostgresDSN, log); err != nil {
			return err
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		st = postgres.New(db)
	}
	if n, err := st.SeedBowls(ctx, cfg.SeedBowls); err != nil {
		return err
	} else if n > 0 {
		log.WithField("created", n).Info("bowls seeded")
	}

	// Redis
	var (
		idem  httpx.IdempotencyStore
		dedup realtime.Deduper
	)
	instance := cfg.ServiceName + "-" + instanceID()
	if cfg.RedisEnabled() {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			return err
		}
		idem = &redisx.Idempotency{RDB: rdb}
		dedup = &redisx.Deduper{RDB: rdb, Consumer: instance}
	}

	hub := realtime.NewHub(cfg.HubBuffer, log)
	defer hub.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Kafka: publish to the broker and relay back into the hub; without it
	// the coordinator publishes straight into the hub.
	var publisher service.Publisher = hub
	var prod *kafkax.Producer
	if cfg.KafkaEnabled() {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, log)
		prod.Start()
		publisher = &kafkax.ChangePublisher{Producer: prod}

		relay := &realtime.Relay{Sink: hub, Dedup: dedup, Log: log.WithField("component", "relay")}
		cons := kafkax.NewConsumer(kafkax.ConsumerConfig{
			Brokers:    cfg.KafkaBrokers,
			GroupID:    cfg.KafkaGroupPrefix + "-" + instance,
			Topic:      cfg.KafkaTopic,
			Workers:    1, // keeps per-partition order
			FromLatest: true,
		}, log)
		g.Go(func() error {
			log.WithField("topic", cfg.KafkaTopic).Info("relay consumer started")
			return cons.Start(gctx, relay.HandleMessage)
		})
	}

	svc := &service.Service{
		UoW:       st,
		Reader:    st,
		Publisher: publisher,
		Policy:    auth.DefaultPolicy(advance...),
		Log:       log,
		Producer:  cfg.ServiceName,
	}

	resolver := &auth.JWTResolver{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}
	router := httpx.NewRouter(log, resolver)
	(&httpx.Handler{
		Svc:       svc,
		Feed:      &realtime.Feed{Hub: hub, Reader: st},
		Idem:      idem,
		Log:       log,
		Heartbeat: cfg.Heartbeat,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// open SSE streams end when the hub closes
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	return err
}

func instanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()[:8]
}
