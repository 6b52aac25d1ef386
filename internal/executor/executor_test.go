package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/monitor"
	"github.com/t77yq/nitrite-automation/internal/security"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests use /bin/sh")
	}

	cfg.Interpreters = map[model.Language]Invocation{
		model.LanguagePowerShell: {Command: "/bin/sh"},
	}
	return NewEngine(security.Default(), nil, cfg, zaptest.NewLogger(t))
}

func writeScript(t *testing.T, source string) *model.ScriptRecord {
	t.Helper()

	path := filepath.Join(t.TempDir(), "script_test.ps1")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return &model.ScriptRecord{
		ID:         "script_test",
		Name:       "test",
		Language:   model.LanguagePowerShell,
		SourcePath: path,
		Security:   model.SecurityInfo{RiskLevel: model.RiskLow, Validated: true},
	}
}

func TestEngine_RunSuccess(t *testing.T) {
	engine := newTestEngine(t, Config{Timeout: 10 * time.Second})
	rec := writeScript(t, "echo one\necho two\n")

	var mu sync.Mutex
	var lines []string
	result, err := engine.Run(context.Background(), rec, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.Started)
	assert.False(t, result.SecurityBlocked)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 0, *result.ExitCode)
	assert.Equal(t, "one\ntwo\n", result.Stdout)
	assert.Equal(t, []string{"one", "two"}, lines)
	assert.Equal(t, model.RiskLow, result.RiskLevel)
	assert.Empty(t, result.Error)
}

func TestEngine_HostSnapshotDoesNotDelaySpawn(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process tests use /bin/sh")
	}

	collector := monitor.NewMetricsCollector(2*time.Second, zaptest.NewLogger(t))
	engine := NewEngine(security.Default(), collector, Config{
		Timeout: 10 * time.Second,
		Interpreters: map[model.Language]Invocation{
			model.LanguagePowerShell: {Command: "/bin/sh"},
		},
	}, zaptest.NewLogger(t))
	rec := writeScript(t, "true\n")

	start := time.Now()
	result, err := engine.Run(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.NotNil(t, result.Host)
	assert.NotEmpty(t, result.Host.OS)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEngine_NonZeroExit(t *testing.T) {
	engine := newTestEngine(t, Config{Timeout: 10 * time.Second})
	rec := writeScript(t, "echo oops >&2\nexit 3\n")

	result, err := engine.Run(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.Started)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 3, *result.ExitCode)
	assert.Equal(t, "oops\n", result.Stderr)
	assert.False(t, result.TimedOut)
}

func TestEngine_Timeout(t *testing.T) {
	timeout := time.Second
	engine := newTestEngine(t, Config{Timeout: timeout})
	rec := writeScript(t, "echo started\nsleep 30\necho unreachable\n")

	start := time.Now()
	result, err := engine.Run(context.Background(), rec, nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.TimedOut)
	assert.Equal(t, model.TimeoutError, result.Error)
	assert.Equal(t, "started\n", result.Stdout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
}

func TestEngine_SecurityBlocked(t *testing.T) {
	engine := newTestEngine(t, Config{})
	rec := writeScript(t, "echo hi\nformat C:\n")

	result, err := engine.Run(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.True(t, result.SecurityBlocked)
	assert.False(t, result.Success)
	assert.False(t, result.Started)
	assert.Nil(t, result.ExitCode)
	assert.Equal(t, model.RiskCritical, result.RiskLevel)
	assert.NotEmpty(t, result.Warnings)
}

func TestEngine_HighRiskPolicy(t *testing.T) {
	source := "# bcdedit /enum\necho ok\n"

	blocked, err := newTestEngine(t, Config{}).Run(context.Background(), writeScript(t, source), nil)
	require.NoError(t, err)
	assert.True(t, blocked.SecurityBlocked)
	assert.Equal(t, model.RiskHigh, blocked.RiskLevel)

	allowed, err := newTestEngine(t, Config{AllowHighRisk: true}).Run(context.Background(), writeScript(t, source), nil)
	require.NoError(t, err)
	assert.False(t, allowed.SecurityBlocked)
	assert.True(t, allowed.Success)
	assert.Equal(t, model.RiskHigh, allowed.RiskLevel)
	assert.NotEmpty(t, allowed.Warnings)
}

func TestEngine_UnsupportedLanguage(t *testing.T) {
	engine := newTestEngine(t, Config{})
	rec := writeScript(t, "echo hi\n")
	rec.Language = "ruby"

	_, err := engine.Run(context.Background(), rec, nil)
	assert.ErrorIs(t, err, model.ErrUnsupportedLanguage)
}

func TestEngine_MissingSource(t *testing.T) {
	engine := newTestEngine(t, Config{})
	rec := writeScript(t, "echo hi\n")
	require.NoError(t, os.Remove(rec.SourcePath))

	result, err := engine.Run(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Started)
	assert.Contains(t, result.Error, "failed to read script source")
}

func TestEngine_MaxConcurrent(t *testing.T) {
	engine := newTestEngine(t, Config{Timeout: 10 * time.Second, MaxConcurrent: 1})

	slow := writeScript(t, "sleep 1\n")
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(context.Background(), slow, nil)
	}()

	require.Eventually(t, func() bool {
		return len(engine.RunningExecutions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	running := engine.RunningExecutions()[0]
	assert.Equal(t, "script_test", running.ScriptID)

	result, err := engine.Run(context.Background(), writeScript(t, "echo hi\n"), nil)
	require.NoError(t, err)
	assert.False(t, result.Started)
	assert.Equal(t, ErrTooManyExecutions.Error(), result.Error)

	<-done
	assert.Empty(t, engine.RunningExecutions())
}

func TestEngine_Stop(t *testing.T) {
	engine := newTestEngine(t, Config{Timeout: 30 * time.Second})

	slow := writeScript(t, "sleep 20\n")
	results := make(chan *model.ExecutionResult, 1)
	go func() {
		result, _ := engine.Run(context.Background(), slow, nil)
		results <- result
	}()

	require.Eventually(t, func() bool {
		running := engine.RunningExecutions()
		return len(running) == 1 && running[0].PID != 0
	}, 2*time.Second, 10*time.Millisecond)

	engine.Stop()

	select {
	case result := <-results:
		assert.False(t, result.Success)
		assert.True(t, result.Started)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after Stop")
	}

	result, err := engine.Run(context.Background(), writeScript(t, "echo hi\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, ErrStopped.Error(), result.Error)
}

func TestResourceManager_AttachAfterStopKills(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process tests use /bin/sh")
	}

	rm := NewResourceManager(ResourceLimits{}, zaptest.NewLogger(t))
	require.NoError(t, rm.Reserve("run-1", "script_test"))
	rm.Stop()

	cmd := exec.CommandContext(context.Background(), "/bin/sh", "-c", "sleep 30")
	configureProcess(cmd)
	require.NoError(t, cmd.Start())

	rm.Attach("run-1", cmd)

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	select {
	case err := <-waited:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("process attached after Stop kept running")
	}
	rm.Release("run-1")
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := newLineWriter(func(line string) { lines = append(lines, line) })

	w.Write([]byte("a\r\nb"))
	w.Write([]byte("c\n"))
	w.Write([]byte("tail"))
	assert.Equal(t, []string{"a", "bc"}, lines)

	w.Flush()
	assert.Equal(t, []string{"a", "bc", "tail"}, lines)
	assert.True(t, strings.HasPrefix(w.String(), "a\r\nbc\n"))
}

func TestInvocation_CommandLine(t *testing.T) {
	name, args := Invocation{}.commandLine("run.bat")
	assert.Equal(t, "run.bat", name)
	assert.Empty(t, args)

	ps := DefaultInvocations()[model.LanguagePowerShell]
	name, args = ps.commandLine("x.ps1")
	assert.Equal(t, "powershell", name)
	assert.Equal(t, "x.ps1", args[len(args)-1])
	assert.Contains(t, args, "Bypass")
}
