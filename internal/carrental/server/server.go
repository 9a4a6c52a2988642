package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/config"
	"github.com/25x8/carrental/internal/carrental/gateway"
	"github.com/25x8/carrental/internal/carrental/handlers"
	"github.com/25x8/carrental/internal/carrental/messaging"
	"github.com/25x8/carrental/internal/carrental/middleware"
	"github.com/25x8/carrental/internal/carrental/repository"
	"github.com/25x8/carrental/internal/carrental/service"
	"github.com/25x8/carrental/internal/carrental/utils"
)

const (
	kafkaClientID       = "carrental"
	intentSweepInterval = time.Minute
)

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	log        logrus.FieldLogger
	repo       repository.Repository
	redis      redis.UniversalClient
	publisher  *messaging.Publisher
	sweeper    *gateway.IntentSweeper
	handler    *handlers.Handler
	router     chi.Router
	httpServer *http.Server
}

// NewServer wires storage, the payment gateway, event publishing and the
// services from cfg. Optional backends fall back to in-process versions
// when they are not configured.
func NewServer(cfg *config.Config, log logrus.FieldLogger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}

	repo, err := s.openRepository()
	if err != nil {
		return nil, err
	}
	s.repo = repo

	store, err := s.openIntentStore()
	if err != nil {
		s.closeAll()
		return nil, err
	}

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.KafkaEnabled {
		producer, err := messaging.NewSyncProducer(cfg.KafkaBrokers, kafkaClientID)
		if err != nil {
			s.closeAll()
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		s.publisher = messaging.NewPublisher(producer, cfg.KafkaTopicPrefix, log)
		notifier = s.publisher
		log.WithField("brokers", cfg.KafkaBrokers).Info("publishing events to kafka")
	}

	gw := gateway.NewSimulated(store, cfg.IntentTTL)
	s.handler = handlers.NewHandler(handlers.Services{
		Catalog:  service.NewCatalogService(repo, log),
		Bookings: service.NewBookingService(repo, notifier, log),
		Payments: service.NewPaymentService(repo, gw, notifier, log),
		Partners: service.NewPartnerService(repo, service.PartnerOptions{
			DefaultCommissionRate: decimal.NewFromFloat(cfg.DefaultCommissionRate),
			RegistrationFee:       decimal.NewFromFloat(cfg.RegistrationFee),
			AutoSyncOnApprove:     cfg.AutoSyncOnApprove,
		}, log),
		Earnings:    service.NewEarningsService(repo, log),
		Redemptions: service.NewRedemptionService(repo, notifier, log),
	}, log)

	s.router = s.routes()
	return s, nil
}

func (s *Server) openRepository() (repository.Repository, error) {
	if s.cfg.DatabaseURI == "" {
		s.log.Warn("database.uri is not set, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}

	sealer, err := utils.NewSealerFromHex(s.cfg.PayoutEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("payouts.encryption_key: %w", err)
	}
	repo := repository.NewPostgresRepository(sealer)
	if err := repo.InitDB(s.cfg.DatabaseURI); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	return repo, nil
}

func (s *Server) openIntentStore() (gateway.IntentStore, error) {
	if s.cfg.RedisAddr == "" {
		store := gateway.NewMemoryIntentStore()
		s.sweeper = gateway.NewIntentSweeper(store, intentSweepInterval, s.log)
		return store, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := gateway.NewRedisClient(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.redis = client
	s.log.WithField("addr", s.cfg.RedisAddr).Info("payment intents stored in redis")
	return gateway.NewRedisIntentStore(client), nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.AccessLog(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.handler.Register(r, middleware.AuthMiddleware(&middleware.JWTConfig{
		SecretKey: s.cfg.JWTSecret,
		Users:     s.repo,
		Log:       s.log,
	}))
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server
func (s *Server) Run() error {
	if s.sweeper != nil {
		s.sweeper.Start()
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.RunAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", s.cfg.RunAddress).Info("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
	}
	if err := s.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) closeAll() error {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	return errors.Join(errs...)
}
