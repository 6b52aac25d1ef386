package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/security"
	"github.com/t77yq/nitrite-automation/internal/storage"
)

// Runner executes a stored script. *executor.Engine implements it.
type Runner interface {
	Run(ctx context.Context, rec *model.ScriptRecord, onOutput func(line string)) (*model.ExecutionResult, error)
}

// Config defines where scripts are stored and which risk levels are accepted
type Config struct {
	Dir           string
	IndexPath     string
	AllowHighRisk bool
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// CreateRequest describes a new script
type CreateRequest struct {
	Name        string
	Source      string
	Language    model.Language
	Description string
	Tags        []string
}

// Manager is the persistent script catalog. The in-memory map is a cache of
// the index file; every mutation re-reads the file under a cross-process lock
// so a CLI and a server can share one data directory.
type Manager struct {
	logger     *zap.Logger
	classifier *security.Classifier
	runner     Runner
	config     Config
	index      *storage.JSONIndex[*model.ScriptRecord]
	now        func() time.Time

	mu      sync.RWMutex
	records map[string]*model.ScriptRecord
}

// NewManager loads the index at cfg.IndexPath
func NewManager(cfg Config, classifier *security.Classifier, runner Runner, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create script directory: %w", err)
	}

	m := &Manager{
		logger:     logger.Named("script-manager"),
		classifier: classifier,
		runner:     runner,
		config:     cfg,
		index:      storage.NewJSONIndex[*model.ScriptRecord](cfg.IndexPath),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	records, err := m.index.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load script index: %w", err)
	}
	m.normalize(records)
	m.records = records

	m.logger.Info("Script index loaded",
		zap.String("path", cfg.IndexPath),
		zap.Int("scripts", len(records)))

	return m, nil
}

// Dir returns the source file directory
func (m *Manager) Dir() string {
	return m.config.Dir
}

// Classifier returns the classifier applied on create and update
func (m *Manager) Classifier() *security.Classifier {
	return m.classifier
}

// vet classifies source and converts a refused verdict into a RejectedError
func (m *Manager) vet(op string, source string) (security.Assessment, error) {
	a := m.classifier.Classify(source)
	if !a.Permitted(m.config.AllowHighRisk) {
		m.logger.Warn("Script rejected by security validation",
			zap.String("op", op),
			zap.String("risk_level", string(a.Level)),
			zap.Strings("warnings", a.Warnings))
		return a, &RejectedError{Level: a.Level, Warnings: a.Warnings}
	}
	if len(a.Warnings) > 0 {
		m.logger.Warn("Script accepted with warnings",
			zap.String("op", op),
			zap.String("risk_level", string(a.Level)),
			zap.Strings("warnings", a.Warnings))
	}
	return a, nil
}

// Create validates and stores a new script. Nothing is written when the
// source is rejected.
func (m *Manager) Create(req CreateRequest) (*model.ScriptRecord, error) {
	ext, err := req.Language.Extension()
	if err != nil {
		return nil, err
	}

	a, err := m.vet("create", req.Source)
	if err != nil {
		return nil, err
	}

	now := m.now()
	id := "script_" + uuid.New().String()
	rec := &model.ScriptRecord{
		ID:          id,
		Name:        security.SanitizeName(req.Name),
		Description: req.Description,
		Language:    req.Language,
		SourcePath:  filepath.Join(m.config.Dir, id+ext),
		Tags:        normalizeTags(req.Tags),
		Version:     1,
		CreatedAt:   now,
		ModifiedAt:  now,
		Security:    a.Snapshot(true),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := storage.WriteFileAtomic(rec.SourcePath, []byte(req.Source), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write script source: %w", err)
	}

	err = m.commit(func(entries map[string]*model.ScriptRecord) error {
		entries[id] = rec
		return nil
	})
	if err != nil {
		if rmErr := os.Remove(rec.SourcePath); rmErr != nil {
			m.logger.Error("Failed to roll back script source",
				zap.String("path", rec.SourcePath),
				zap.Error(rmErr))
		}
		return nil, err
	}

	m.logger.Info("Script created",
		zap.String("script_id", id),
		zap.String("name", rec.Name),
		zap.String("language", string(rec.Language)),
		zap.String("risk_level", string(a.Level)))

	return rec.Clone(), nil
}

// Update replaces the source of an existing script
func (m *Manager) Update(id, source string) (*model.ScriptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		a        security.Assessment
		updated  *model.ScriptRecord
		path     string
		previous []byte
		readErr  error
		wrote    bool
	)
	err := m.commit(func(entries map[string]*model.ScriptRecord) error {
		rec, ok := entries[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		var err error
		if a, err = m.vet("update", source); err != nil {
			return err
		}

		path = rec.SourcePath
		previous, readErr = os.ReadFile(path)
		if err := storage.WriteFileAtomic(path, []byte(source), 0o644); err != nil {
			return fmt.Errorf("failed to write script source: %w", err)
		}
		wrote = true

		updated = rec.Clone()
		updated.ModifiedAt = m.now()
		updated.Version++
		updated.Security = a.Snapshot(true)
		entries[id] = updated
		return nil
	})
	if err != nil {
		if wrote && readErr == nil {
			if rbErr := storage.WriteFileAtomic(path, previous, 0o644); rbErr != nil {
				m.logger.Error("Failed to roll back script source",
					zap.String("script_id", id),
					zap.Error(rbErr))
			}
		}
		return nil, err
	}

	m.logger.Info("Script updated",
		zap.String("script_id", id),
		zap.Int("version", updated.Version),
		zap.String("risk_level", string(a.Level)))

	return updated.Clone(), nil
}

// Delete removes the index entry and then, best effort, the source file
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rec *model.ScriptRecord
	err := m.commit(func(entries map[string]*model.ScriptRecord) error {
		current, ok := entries[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		rec = current
		delete(entries, id)
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Remove(rec.SourcePath); err != nil {
		m.logger.Warn("Failed to remove script source",
			zap.String("script_id", id),
			zap.String("path", rec.SourcePath),
			zap.Error(err))
	}

	m.logger.Info("Script deleted", zap.String("script_id", id))
	return nil
}

// Get returns the record with its source. An unreadable source file yields
// an empty body rather than an error.
func (m *Manager) Get(id string) (*model.Script, error) {
	m.sync()

	m.mu.RLock()
	rec, ok := m.records[id]
	if ok {
		rec = rec.Clone()
	}
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s := &model.Script{ScriptRecord: *rec}
	data, err := os.ReadFile(rec.SourcePath)
	if err != nil {
		m.logger.Error("Failed to read script source",
			zap.String("script_id", id),
			zap.String("path", rec.SourcePath),
			zap.Error(err))
		return s, nil
	}
	s.Source = string(data)
	return s, nil
}

// Exists reports whether id is in the index
func (m *Manager) Exists(id string) bool {
	m.sync()

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok
}

// List returns all records, newest first
func (m *Manager) List() []*model.ScriptRecord {
	m.sync()

	m.mu.RLock()
	list := make([]*model.ScriptRecord, 0, len(m.records))
	for _, rec := range m.records {
		list = append(list, rec.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Count returns the number of stored scripts
func (m *Manager) Count() int {
	m.sync()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Refresh re-classifies the on-disk source and stores the new snapshot
// without rejecting. Validated is false when the file would be refused.
func (m *Manager) Refresh(id string) (*model.ScriptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		a       security.Assessment
		updated *model.ScriptRecord
	)
	err := m.commit(func(entries map[string]*model.ScriptRecord) error {
		rec, ok := entries[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		data, err := os.ReadFile(rec.SourcePath)
		if err != nil {
			return fmt.Errorf("%w: failed to read script source: %v", storage.ErrIO, err)
		}

		a = m.classifier.Classify(string(data))
		updated = rec.Clone()
		updated.Security = a.Snapshot(a.Permitted(m.config.AllowHighRisk))
		entries[id] = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !updated.Security.Validated {
		m.logger.Error("Script source no longer passes security validation",
			zap.String("script_id", id),
			zap.String("risk_level", string(a.Level)),
			zap.Strings("warnings", a.Warnings))
	}
	return updated.Clone(), nil
}

// Execute runs the script through the runner and records run statistics
// for any attempt that reached the process stage. The returned result is
// non-nil even when persisting the statistics fails.
func (m *Manager) Execute(ctx context.Context, id string, onOutput func(line string)) (*model.ExecutionResult, error) {
	m.sync()

	m.mu.RLock()
	rec, ok := m.records[id]
	if ok {
		rec = rec.Clone()
	}
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	result, err := m.runner.Run(ctx, rec, onOutput)
	if err != nil {
		return nil, err
	}

	if !result.Started && !result.SecurityBlocked {
		return result, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err = m.commit(func(entries map[string]*model.ScriptRecord) error {
		current, ok := entries[id]
		if !ok {
			// deleted while running
			return nil
		}

		updated := current.Clone()
		updated.Security = model.SecurityInfo{
			RiskLevel: result.RiskLevel,
			Warnings:  append([]string{}, result.Warnings...),
			Validated: !result.SecurityBlocked,
		}
		if result.Started {
			executedAt := result.ExecutedAt
			updated.RunCount++
			updated.LastExecutedAt = &executedAt
		}
		entries[id] = updated
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to record execution: %w", err)
	}
	return result, nil
}

// commit applies fn to the freshest index under the cross-process lock and
// adopts the written result as the cache. Errors from fn are returned as is.
// Callers hold m.mu.
func (m *Manager) commit(fn func(entries map[string]*model.ScriptRecord) error) error {
	var fnErr error
	records, err := m.index.Update(func(entries map[string]*model.ScriptRecord) error {
		m.normalize(entries)
		fnErr = fn(entries)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		m.logger.Error("Failed to update script index", zap.Error(err))
		return fmt.Errorf("failed to update script index: %w", err)
	}
	m.records = records
	return nil
}

// sync reloads the cache when another process replaced the index file
func (m *Manager) sync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.index.Changed() {
		return
	}
	records, err := m.index.Load()
	if err != nil {
		m.logger.Warn("Failed to reload script index, serving cached records", zap.Error(err))
		return
	}
	m.normalize(records)
	m.records = records
}

// normalize fills in what older index files leave out: the id is taken from
// the map key, the version starts at 1 and relative source paths are
// resolved against the script directory
func (m *Manager) normalize(records map[string]*model.ScriptRecord) {
	for id, rec := range records {
		if rec == nil {
			delete(records, id)
			continue
		}
		if rec.ID == "" {
			rec.ID = id
		}
		if rec.Version == 0 {
			rec.Version = 1
		}
		if rec.SourcePath != "" && !filepath.IsAbs(rec.SourcePath) {
			rec.SourcePath = filepath.Join(m.config.Dir, rec.SourcePath)
		}
	}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
