package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/nitrite-automation/internal/model"
)

type fakeRefresher struct {
	mu       sync.Mutex
	known    map[string]bool
	calls map[string]int
}

func (f *fakeRefresher) Exists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.known[id]
}

func (f *fakeRefresher) Refresh(id string) (*model.ScriptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	return &model.ScriptRecord{ID: id, Security: model.SecurityInfo{RiskLevel: model.RiskCritical}}, nil
}

func (f *fakeRefresher) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestScriptID(t *testing.T) {
	id, ok := scriptID("/data/script_abc.ps1")
	assert.True(t, ok)
	assert.Equal(t, "script_abc", id)

	_, ok = scriptID("/data/scripts_index.json")
	assert.False(t, ok)

	_, ok = scriptID("/data/.script_abc.ps1.123.tmp")
	assert.False(t, ok)
}

func TestWatcher_RefreshesKnownScripts(t *testing.T) {
	dir := t.TempDir()
	refresher := &fakeRefresher{
		known:    map[string]bool{"script_known": true},
		calls: map[string]int{},
	}

	refreshed := make(chan *model.ScriptRecord, 4)
	w, err := New(dir, refresher, zaptest.NewLogger(t),
		WithDebounce(50*time.Millisecond),
		WithHandler(func(rec *model.ScriptRecord) { refreshed <- rec }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	path := filepath.Join(dir, "script_known.ps1")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("format C:"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script_unknown.ps1"), []byte("x"), 0o644))

	select {
	case rec := <-refreshed:
		assert.Equal(t, "script_known", rec.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("no refresh")
	}

	// the burst of writes is coalesced
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, refresher.count("script_known"))
	assert.Equal(t, 0, refresher.count("script_unknown"))
}
