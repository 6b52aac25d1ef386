package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/monitor"
	"github.com/t77yq/nitrite-automation/internal/security"
)

const (
	// DefaultTimeout is the wall-clock limit of a single run
	DefaultTimeout = 300 * time.Second

	defaultWaitDelay = 250 * time.Millisecond
)

// Config defines configuration for the engine
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	AllowHighRisk bool
	// Interpreters overrides entries of DefaultInvocations
	Interpreters map[model.Language]Invocation
	// WaitDelay bounds how long output pipes are drained after a kill
	WaitDelay time.Duration
}

// Engine validates and runs stored scripts as child processes
type Engine struct {
	logger      *zap.Logger
	classifier  *security.Classifier
	metrics     monitor.SystemMetricsProvider
	config      Config
	invocations map[model.Language]Invocation
	resources   *ResourceManager
}

// NewEngine creates a new engine. metrics may be nil.
func NewEngine(classifier *security.Classifier, metrics monitor.SystemMetricsProvider, config Config, logger *zap.Logger) *Engine {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.WaitDelay <= 0 {
		config.WaitDelay = defaultWaitDelay
	}
	if metrics == nil {
		metrics = monitor.NopProvider{}
	}

	invocations := DefaultInvocations()
	for lang, inv := range config.Interpreters {
		invocations[lang] = inv
	}

	logger = logger.Named("executor")
	return &Engine{
		logger:      logger,
		classifier:  classifier,
		metrics:     metrics,
		config:      config,
		invocations: invocations,
		resources:   NewResourceManager(ResourceLimits{MaxConcurrent: config.MaxConcurrent}, logger),
	}
}

// Timeout returns the configured wall-clock limit
func (e *Engine) Timeout() time.Duration {
	return e.config.Timeout
}

// Run re-validates the on-disk source of rec and, if it passes, executes it.
// Security blocks, timeouts and failed spawns are reported in the result; the
// only error is ErrUnsupportedLanguage.
func (e *Engine) Run(ctx context.Context, rec *model.ScriptRecord, onOutput func(line string)) (*model.ExecutionResult, error) {
	result := &model.ExecutionResult{
		ScriptID:   rec.ID,
		ExecutedAt: time.Now(),
		RiskLevel:  rec.Security.RiskLevel,
	}

	data, err := os.ReadFile(rec.SourcePath)
	if err != nil {
		e.logger.Error("Failed to read script source",
			zap.String("script_id", rec.ID),
			zap.String("path", rec.SourcePath),
			zap.Error(err))
		result.Error = fmt.Sprintf("failed to read script source: %v", err)
		return result, nil
	}

	assessment := e.classifier.Classify(string(data))
	result.RiskLevel = assessment.Level
	result.Warnings = assessment.Warnings
	if !assessment.Permitted(e.config.AllowHighRisk) {
		e.logger.Error("Execution blocked by security validation",
			zap.String("script_id", rec.ID),
			zap.String("risk_level", string(assessment.Level)),
			zap.Strings("warnings", assessment.Warnings))
		result.SecurityBlocked = true
		result.Error = "Security validation failed"
		return result, nil
	}

	inv, ok := e.invocations[rec.Language]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedLanguage, string(rec.Language))
	}
	name, args := inv.commandLine(rec.SourcePath)

	runID := uuid.New().String()
	if err := e.resources.Reserve(runID, rec.ID); err != nil {
		e.logger.Warn("Execution refused",
			zap.String("script_id", rec.ID),
			zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}
	defer e.resources.Release(runID)

	if snap, err := e.metrics.Snapshot(ctx); err != nil {
		e.logger.Warn("Failed to collect host snapshot", zap.Error(err))
	} else {
		result.Host = snap
	}

	// Create command context with timeout
	cmdCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Dir = filepath.Dir(rec.SourcePath)
	cmd.WaitDelay = e.config.WaitDelay
	configureProcess(cmd)

	stdout := newLineWriter(onOutput)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	e.logger.Info("Executing script",
		zap.String("script_id", rec.ID),
		zap.String("run_id", runID),
		zap.String("command", name),
		zap.Strings("args", args))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		e.logger.Error("Failed to start script",
			zap.String("script_id", rec.ID),
			zap.Error(err))
		result.Error = fmt.Sprintf("failed to start process: %v", err)
		return result, nil
	}
	result.Started = true
	release, err := trackProcess(cmd)
	if err != nil {
		e.logger.Warn("Failed to track child processes",
			zap.String("script_id", rec.ID),
			zap.Error(err))
	}
	defer release()
	e.resources.Attach(runID, cmd)

	err = cmd.Wait()
	stdout.Flush()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if cmdCtx.Err() == context.DeadlineExceeded {
		e.logger.Warn("Script execution timed out",
			zap.String("script_id", rec.ID),
			zap.Duration("timeout", e.config.Timeout))
		result.TimedOut = true
		result.Error = model.TimeoutError
		return result, nil
	}
	if ctx.Err() != nil {
		result.Error = fmt.Sprintf("execution canceled: %v", ctx.Err())
		return result, nil
	}

	if cmd.ProcessState != nil {
		code := cmd.ProcessState.ExitCode()
		result.ExitCode = &code
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
	case errors.As(err, &exitErr):
		// non-zero exit, stderr carries the detail
	default:
		result.Error = err.Error()
	}

	e.logger.Info("Script execution finished",
		zap.String("script_id", rec.ID),
		zap.Bool("success", result.Success),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// RunningExecutions returns the in-flight runs
func (e *Engine) RunningExecutions() []model.RunningExecution {
	return e.resources.Running()
}

// Stop kills running scripts and refuses new runs
func (e *Engine) Stop() {
	e.logger.Info("Stopping executor")
	e.resources.Stop()
}
