package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/task"
)

// FileStore implements Store on the local filesystem. Every write replaces
// the whole file through a temp file and rename.
type FileStore struct {
	tasksDir      string
	executionsDir string
	archiver      Archiver
	now           func() time.Time
}

var _ Store = (*FileStore)(nil)

// Option configures a FileStore.
type Option func(*FileStore)

// WithArchiver archives executions before retention cleanup removes them.
func WithArchiver(a Archiver) Option {
	return func(s *FileStore) {
		s.archiver = a
	}
}

// WithClock overrides the time source used by retention cleanup.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore creates the store directories under dir.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	s := &FileStore{
		tasksDir:      filepath.Join(dir, tasksDirName),
		executionsDir: filepath.Join(dir, executionsDirName),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, d := range []string{s.tasksDir, s.executionsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating directory %s: %w", task.ErrStorage, d, err)
		}
	}

	return s, nil
}

// SaveTask writes t to disk.
func (s *FileStore) SaveTask(ctx context.Context, t *task.ScheduledTask) error {
	return s.write(ctx, s.tasksDir, t.ID, t)
}

// LoadTask reads a task. It returns nil, nil when the task does not exist.
func (s *FileStore) LoadTask(ctx context.Context, id string) (*task.ScheduledTask, error) {
	var t task.ScheduledTask
	found, err := s.read(ctx, s.tasksDir, id, &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

// LoadTasks returns every task, newest first.
func (s *FileStore) LoadTasks(ctx context.Context) ([]*task.ScheduledTask, error) {
	ids, err := s.list(s.tasksDir)
	if err != nil {
		return nil, err
	}

	tasks := make([]*task.ScheduledTask, 0, len(ids))
	for _, id := range ids {
		t, err := s.LoadTask(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("task_id", id).Msg("Skipping unreadable task file")
			continue
		}
		if t != nil {
			tasks = append(tasks, t)
		}
	}

	slices.SortStableFunc(tasks, func(a, b *task.ScheduledTask) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return tasks, nil
}

// DeleteTask removes a task and all of its executions.
func (s *FileStore) DeleteTask(ctx context.Context, id string) error {
	if err := s.remove(s.tasksDir, id); err != nil {
		return err
	}

	executions, err := s.LoadExecutions(ctx, id)
	if err != nil {
		return fmt.Errorf("loading executions of task %s: %w", id, err)
	}
	for _, e := range executions {
		if err := s.DeleteExecution(ctx, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// SaveExecution writes e to disk.
func (s *FileStore) SaveExecution(ctx context.Context, e *task.Execution) error {
	return s.write(ctx, s.executionsDir, e.ID, e)
}

// LoadExecution reads an execution. It returns nil, nil when the execution
// does not exist.
func (s *FileStore) LoadExecution(ctx context.Context, id string) (*task.Execution, error) {
	var e task.Execution
	found, err := s.read(ctx, s.executionsDir, id, &e)
	if err != nil || !found {
		return nil, err
	}
	return &e, nil
}

// LoadExecutions returns executions newest first, filtered by taskID when it
// is not empty.
func (s *FileStore) LoadExecutions(ctx context.Context, taskID string) ([]*task.Execution, error) {
	ids, err := s.list(s.executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*task.Execution, 0, len(ids))
	for _, id := range ids {
		e, err := s.LoadExecution(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("execution_id", id).Msg("Skipping unreadable execution file")
			continue
		}
		if e == nil || (taskID != "" && e.TaskID != taskID) {
			continue
		}
		executions = append(executions, e)
	}

	slices.SortStableFunc(executions, func(a, b *task.Execution) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return executions, nil
}

// DeleteExecution removes an execution. A missing file is not an error.
func (s *FileStore) DeleteExecution(_ context.Context, id string) error {
	return s.remove(s.executionsDir, id)
}

// CleanupOldExecutions deletes executions that started more than maxAge ago
// and returns how many were removed. A non-positive maxAge selects
// DefaultRetention.
func (s *FileStore) CleanupOldExecutions(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	cutoff := s.now().Add(-maxAge)

	executions, err := s.LoadExecutions(ctx, "")
	if err != nil {
		return 0, err
	}

	var expired []*task.Execution
	for _, e := range executions {
		if e.StartTime.Before(cutoff) {
			expired = append(expired, e)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, expired); err != nil {
			return 0, fmt.Errorf("archiving executions: %w", err)
		}
	}

	deleted := 0
	for _, e := range expired {
		if err := s.DeleteExecution(ctx, e.ID); err != nil {
			return deleted, err
		}
		deleted++
	}

	log.Info().
		Int("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Cleaned up old executions")

	return deleted, nil
}

func (s *FileStore) write(ctx context.Context, dir, id string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := entityPath(dir, id)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", task.ErrStorage, id, err)
	}

	tmp, err := os.CreateTemp(dir, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", task.ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %w", task.ErrStorage, id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %w", task.ErrStorage, id, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %w", task.ErrStorage, id, err)
	}
	return nil
}

func (s *FileStore) read(ctx context.Context, dir, id string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := entityPath(dir, id)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: reading %s: %w", task.ErrStorage, id, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decoding %s: %w", task.ErrStorage, id, err)
	}
	return true, nil
}

func (s *FileStore) remove(dir, id string) error {
	path, err := entityPath(dir, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: deleting %s: %w", task.ErrStorage, id, err)
	}
	return nil
}

func (s *FileStore) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %w", task.ErrStorage, dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// entityPath builds <dir>/<id>.json, rejecting ids that could escape dir.
func entityPath(dir, id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") {
		return "", fmt.Errorf("%w: invalid id %q", task.ErrStorage, id)
	}
	return filepath.Join(dir, id+".json"), nil
}
