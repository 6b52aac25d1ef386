// Package app assembles the automation components from configuration.
package app

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/nitrite-automation/internal/automation"
	"github.com/t77yq/nitrite-automation/internal/config"
	"github.com/t77yq/nitrite-automation/internal/events"
	"github.com/t77yq/nitrite-automation/internal/executor"
	"github.com/t77yq/nitrite-automation/internal/monitor"
	"github.com/t77yq/nitrite-automation/internal/scheduler"
	"github.com/t77yq/nitrite-automation/internal/script"
	"github.com/t77yq/nitrite-automation/internal/security"
	"github.com/t77yq/nitrite-automation/internal/storage"
)

// NewLogger builds the process logger from the log section
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// App holds the constructed components. Close releases them in reverse
// order of construction.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Classifier *security.Classifier
	Collector  *monitor.MetricsCollector
	Engine     *executor.Engine
	Scripts    *script.Manager
	Tasks      *scheduler.TaskScheduler
	History    *storage.SQLiteExecutionHistory
	Events     events.Publisher
	NATS       *events.NATSPublisher
	Service    *automation.Service
}

// New builds every component. NATS is dialed only when enabled.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	classifier, err := security.NewClassifier(cfg.ClassifierConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	a.Classifier = classifier

	var metrics monitor.SystemMetricsProvider = monitor.NopProvider{}
	if cfg.Metrics.Enabled {
		a.Collector = monitor.NewMetricsCollector(cfg.Metrics.SampleInterval, logger)
		metrics = a.Collector
	}

	a.Engine = executor.NewEngine(classifier, metrics, cfg.EngineConfig(), logger)

	a.Scripts, err = script.NewManager(script.Config{
		Dir:           cfg.Data.Dir,
		IndexPath:     cfg.ScriptsIndexPath(),
		AllowHighRisk: cfg.Security.AllowHighRisk,
	}, classifier, a.Engine, logger)
	if err != nil {
		return nil, err
	}

	a.Tasks, err = scheduler.NewTaskScheduler(cfg.TasksIndexPath(), logger)
	if err != nil {
		return nil, err
	}

	a.History, err = storage.NewSQLiteExecutionHistory(logger, cfg.HistoryDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open execution history: %w", err)
	}

	a.Events = events.NopPublisher{}
	if cfg.NATS.Enabled {
		a.NATS, err = events.Connect(events.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, logger)
		if err != nil {
			a.History.Close()
			return nil, err
		}
		a.Events = a.NATS
	}

	a.Service = automation.NewService(automation.Deps{
		Scripts: a.Scripts,
		Tasks:   a.Tasks,
		History: a.History,
		Events:  a.Events,
		Running: a.Engine,
	}, logger)

	return a, nil
}

// Close stops running executions and releases connections
func (a *App) Close() {
	a.Engine.Stop()
	if a.Collector != nil {
		a.Collector.Stop()
	}
	a.Events.Close()
	if err := a.History.Close(); err != nil {
		a.Logger.Error("Failed to close execution history", zap.Error(err))
	}
}
