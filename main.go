package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory-audit/internal/config"
	"inventory-audit/internal/publisher"
	"inventory-audit/internal/realtime"
	"inventory-audit/internal/repository"
	"inventory-audit/internal/server"
	"inventory-audit/internal/service"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

type auditRepository interface {
	service.AuditStore
	service.AuditReader
}

type stores struct {
	audit    auditRepository
	products service.ProductRepository
	db       *sql.DB
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("Invalid configuration")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStores(cfg)
	if st.db != nil {
		defer st.db.Close()
	}

	hub := realtime.NewHub(realtime.WithBufferSize(cfg.Realtime.SendBuffer))
	fanout := publisher.NewFanout()

	if cfg.Redis.URL != "" {
		client, err := publisher.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			log.WithField("error", err).Fatal("Could not connect to Redis")
		}
		defer client.Close()

		// every instance, this one included, hears its own events back from the channel
		relay := publisher.NewRedisRelay(client, cfg.Redis.Channel)
		fanout.Detached("redis", relay)
		go func() {
			if err := relay.Run(ctx, hub.Publish); err != nil {
				log.WithError(err).Error("Redis relay stopped")
			}
		}()
	} else {
		fanout.Inline("realtime", publisher.LocalSink(hub.Publish))
	}

	if cfg.Kafka.Brokers != "" {
		kafkaPublisher, err := publisher.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.WithField("error", err).Fatal("Could not create Kafka producer")
		}
		defer kafkaPublisher.Close()
		fanout.Detached("kafka", kafkaPublisher)
		log.WithField("topic", cfg.Kafka.Topic).Info("Publishing audit events to Kafka")
	}

	validator, err := server.NewTokenValidator(cfg.Auth.JWTSecret)
	if err != nil {
		log.WithField("error", err).Fatal("Invalid auth configuration")
	}

	// Create services
	auditLogger := service.NewAuditLogger(st.audit, fanout)
	auditQueryService := service.NewAuditQueryService(st.audit, cfg.Audit.TopActors)
	productService := service.NewProductService(st.products, auditLogger)
	sessionService := service.NewSessionService(auditLogger)

	var pinger server.Pinger
	if st.db != nil {
		pinger = st.db
	}

	// Setup Echo
	e := echo.New()
	e.HideBanner = true

	server.RegisterRoutes(e, server.Routes{
		Health:     server.NewServer(pinger),
		Audit:      server.NewAuditServer(auditQueryService),
		Products:   server.NewProductServer(productService),
		Auth:       server.NewAuthServer(sessionService),
		Websocket:  server.NewWebsocketServer(ctx, hub, cfg.Realtime.KeepAlive),
		Validator:  validator,
		WebOrigins: cfg.Audit.WebOrigins,
		Metrics:    promhttp.Handler(),
	})

	go func() {
		log.WithField("port", cfg.HTTP.Port).Info("Inventory audit service is starting with Echo")
		if err := e.Start(":" + cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("Echo server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Echo server did not shut down cleanly")
	}

	fanout.Wait()
	hub.Close()
}

func openStores(cfg *config.Config) stores {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("Using in-memory store; audit history is lost on restart")
		return stores{
			audit:    repository.NewMemoryAuditRepository(),
			products: repository.NewMemoryProductRepository(),
		}
	}

	log.Info("Starting database migration...")
	m, err := migrate.New(cfg.Store.MigrationsPath, cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.WithField("error", err).Fatal("Could not apply migration")
	}
	log.Info("Database migration finished successfully.")

	db, err := sql.Open("postgres", cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not connect to the database")
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.WithField("error", err).Fatal("Could not ping the database")
	}
	log.Info("Successfully connected to the PostgreSQL database.")

	return stores{
		audit:    repository.NewPostgresAuditRepository(db),
		products: repository.NewPostgresProductRepository(db),
		db:       db,
	}
}
