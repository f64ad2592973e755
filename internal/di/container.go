package di

import (
	"github.com/eventpass/eventpass/internal/handler"
	"github.com/eventpass/eventpass/internal/repository"
	"github.com/eventpass/eventpass/internal/service"
	"github.com/eventpass/eventpass/internal/worker"
	"github.com/eventpass/eventpass/pkg/database"
	"github.com/eventpass/eventpass/pkg/redis"
)

// Container holds all dependencies for the registration service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	RegistrationRepo repository.RegistrationRepository
	TierRepo         repository.TierRepository
	EventRepo        repository.EventRepository
	TicketRepo       repository.TicketRepository

	// Publishers
	Notifier service.Notifier

	// Services
	RegistrationService service.RegistrationService
	CheckInService      service.CheckInService
	ReconcileService    service.ReconcileService

	// Workers
	ReconcileWorker *worker.ReconcileWorker

	// Handlers
	HealthHandler       *handler.HealthHandler
	RegistrationHandler *handler.RegistrationHandler
	AdminHandler        *handler.AdminHandler
	CheckInHandler      *handler.CheckInHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB              *database.PostgresDB
	Redis           *redis.Client
	Notifier        service.Notifier
	ReconcileConfig *worker.ReconcileWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Notifier: cfg.Notifier,
	}

	pool := c.DB.Pool()

	// Initialize repositories
	c.RegistrationRepo = repository.NewPostgresRegistrationRepository(pool)
	c.TierRepo = repository.NewPostgresTierRepository(pool)
	c.EventRepo = repository.NewPostgresEventRepository(pool)
	c.TicketRepo = repository.NewPostgresTicketRepository(pool)

	// Initialize services
	c.RegistrationService = service.NewRegistrationService(c.RegistrationRepo, c.Notifier)
	c.CheckInService = service.NewCheckInService(c.TicketRepo, c.Notifier, c.Redis)
	c.ReconcileService = service.NewReconcileService(c.EventRepo, c.TierRepo)

	// Initialize workers
	c.ReconcileWorker = worker.NewReconcileWorker(c.ReconcileService, cfg.ReconcileConfig)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.RegistrationHandler = handler.NewRegistrationHandler(c.RegistrationService)
	c.AdminHandler = handler.NewAdminHandler(c.RegistrationService, c.ReconcileService, c.ReconcileWorker)
	c.CheckInHandler = handler.NewCheckInHandler(c.CheckInService)

	return c
}
