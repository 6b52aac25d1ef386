package executor

import (
	"errors"
	"os/exec"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
)

var (
	// ErrTooManyExecutions is returned when the concurrency cap is reached
	ErrTooManyExecutions = errors.New("maximum number of concurrent executions reached")
	// ErrStopped is returned once the engine has been stopped
	ErrStopped = errors.New("executor stopped")
)

// ResourceLimits defines resource limits for script execution
type ResourceLimits struct {
	MaxConcurrent int // 0 means unlimited
}

type process struct {
	info model.RunningExecution
	cmd  *exec.Cmd
}

// ResourceManager tracks running script processes
type ResourceManager struct {
	logger    *zap.Logger
	limits    ResourceLimits
	mu        sync.Mutex
	processes map[string]*process
	stopped   bool
}

// NewResourceManager creates a new resource manager
func NewResourceManager(limits ResourceLimits, logger *zap.Logger) *ResourceManager {
	return &ResourceManager{
		logger:    logger.Named("resource-manager"),
		limits:    limits,
		processes: make(map[string]*process),
	}
}

// Reserve claims an execution slot before the process is spawned
func (rm *ResourceManager) Reserve(runID, scriptID string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return ErrStopped
	}
	if rm.limits.MaxConcurrent > 0 && len(rm.processes) >= rm.limits.MaxConcurrent {
		return ErrTooManyExecutions
	}

	rm.processes[runID] = &process{
		info: model.RunningExecution{
			RunID:     runID,
			ScriptID:  scriptID,
			StartedAt: time.Now(),
		},
	}
	return nil
}

// Attach records the started command for a reserved slot. A command
// attached after Stop is killed at once.
func (rm *ResourceManager) Attach(runID string, cmd *exec.Cmd) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	p, ok := rm.processes[runID]
	if !ok {
		return
	}
	p.cmd = cmd
	if cmd.Process != nil {
		p.info.PID = cmd.Process.Pid
	}

	if rm.stopped {
		rm.logger.Warn("Process started during shutdown, killing it",
			zap.String("run_id", runID),
			zap.Int("pid", p.info.PID))
		if err := killProcess(cmd.Process); err != nil {
			rm.logger.Error("Failed to kill process",
				zap.String("run_id", runID),
				zap.Int("pid", p.info.PID),
				zap.Error(err))
		}
		return
	}

	rm.logger.Debug("Process started",
		zap.String("run_id", runID),
		zap.String("script_id", p.info.ScriptID),
		zap.Int("pid", p.info.PID))
}

// Release frees the slot
func (rm *ResourceManager) Release(runID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.processes, runID)
}

// Running lists in-flight executions, oldest first
func (rm *ResourceManager) Running() []model.RunningExecution {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	running := make([]model.RunningExecution, 0, len(rm.processes))
	for _, p := range rm.processes {
		running = append(running, p.info)
	}
	sort.Slice(running, func(i, j int) bool {
		return running[i].StartedAt.Before(running[j].StartedAt)
	})
	return running
}

// Stop kills all running processes and refuses new reservations
func (rm *ResourceManager) Stop() {
	rm.logger.Info("Stopping resource manager")

	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.stopped = true
	for id, p := range rm.processes {
		if p.cmd == nil || p.cmd.Process == nil {
			continue
		}
		if err := killProcess(p.cmd.Process); err != nil {
			rm.logger.Error("Failed to kill process",
				zap.String("run_id", id),
				zap.Int("pid", p.info.PID),
				zap.Error(err))
		}
	}
}
