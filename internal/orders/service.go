package orders

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/BaHoon/Careflow-sub002/pkg/config"
	"github.com/BaHoon/Careflow-sub002/pkg/database"
	"github.com/BaHoon/Careflow-sub002/pkg/interfaces"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// Service implements the order-to-task scheduling and lifecycle engine
type Service struct {
	config   *config.Config
	logger   *logger.Logger
	db       *database.DB
	orders   interfaces.OrderRepository
	tasks    interfaces.TaskRepository
	factory  *TaskFactory
	duty     *DutyResolver
	stopLock *StopLockCoordinator
	notifier interfaces.TaskNotifier
	slots    []types.SlotDefinition
	sweeper  *OverdueSweeper
	server   *http.Server
	orderMu  orderLocks
}

// New creates a new order engine service
func New(cfg *config.Config, log *logger.Logger) interfaces.OrderService {
	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		panic(err)
	}

	// Initialize repository (serves orders, tasks, roster and drug catalog)
	repository := NewRepository(db, log)

	// Initialize domain collaborators
	factory := NewTaskFactory(repository, log)
	duty := NewDutyResolver(repository, log)
	stopLock := NewStopLockCoordinator(repository, log)
	notifier := NewLogNotifier(log)
	sweeper := NewOverdueSweeper(repository, &cfg.Scheduling, log)

	return &Service{
		config:   cfg,
		logger:   log,
		db:       db,
		orders:   repository,
		tasks:    repository,
		factory:  factory,
		duty:     duty,
		stopLock: stopLock,
		notifier: notifier,
		slots:    slotDefinitions(&cfg.Scheduling),
		sweeper:  sweeper,
	}
}

// slotDefinitions maps the configured slot dictionary into its domain form,
// preserving order
func slotDefinitions(cfg *config.SchedulingConfig) []types.SlotDefinition {
	slots := make([]types.SlotDefinition, 0, len(cfg.Slots))
	for _, slot := range cfg.Slots {
		slots = append(slots, types.SlotDefinition{
			Code:      slot.Code,
			Label:     slot.Label,
			ClockTime: slot.Time,
		})
	}
	return slots
}

// GetOrderTasks retrieves all execution tasks of an order
func (s *Service) GetOrderTasks(orderID int64) ([]*types.ExecutionTask, error) {
	if _, err := s.orders.GetOrderByID(orderID); err != nil {
		return nil, err
	}
	return s.tasks.GetTasksByOrder(orderID)
}

// GetStatusHistory retrieves the append-only status history of an order
func (s *Service) GetStatusHistory(orderID int64) ([]*types.StatusHistoryRecord, error) {
	if _, err := s.orders.GetOrderByID(orderID); err != nil {
		return nil, err
	}
	return s.orders.GetStatusHistory(orderID)
}

// Start starts the order engine HTTP server and the overdue sweep
func (s *Service) Start(addr string) error {
	if err := s.sweeper.Start(); err != nil {
		return err
	}

	router := mux.NewRouter()
	s.setupRoutes(router)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.Infof("Starting Order Engine on %s", addr)
	return s.server.ListenAndServe()
}

// Stop stops the order engine
func (s *Service) Stop() error {
	s.sweeper.Stop()

	if s.server != nil {
		s.logger.Info("Stopping Order Engine")
		if err := s.server.Close(); err != nil {
			return err
		}
	}

	return s.db.Close()
}
