package exclusions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Source serves the excluded-model substrings from a local JSON file and
// keeps them current while the file changes. An empty path means no
// exclusions.
type Source struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	models []string
}

// New creates a source for the given file path. Call Load before first use.
func New(path string, logger *zap.Logger) *Source {
	return &Source{path: path, logger: logger}
}

// fileFormat accepts either a bare JSON array of substrings or an object
// with an excludedModels field.
type fileFormat struct {
	ExcludedModels []string `json:"excludedModels"`
}

// Load reads and parses the exclusions file. A missing file is an error so
// the caller can fall back to the last known good list.
func (s *Source) Load() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read exclusions file: %w", err)
	}

	models, err := parse(raw)
	if err != nil {
		return fmt.Errorf("parse exclusions file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.models = models
	s.mu.Unlock()
	s.logger.Info("loaded model exclusions",
		zap.String("path", s.path),
		zap.Int("count", len(models)))
	return nil
}

func parse(raw []byte) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var obj fileFormat
		if objErr := json.Unmarshal(raw, &obj); objErr != nil {
			return nil, err
		}
		list = obj.ExcludedModels
	}

	cleaned := lo.FilterMap(list, func(m string, _ int) (string, bool) {
		m = strings.TrimSpace(m)
		return m, m != ""
	})
	return lo.Uniq(cleaned), nil
}

// Current returns the active exclusion list. The returned slice is shared;
// callers must not mutate it.
func (s *Source) Current() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models
}

// Watch reloads the file on filesystem changes until ctx is done. The watch
// covers the parent directory so editor rename-replace writes are seen.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create exclusions watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if err := s.Load(); err != nil {
					// Keep the previous list on a bad intermediate write.
					s.logger.Warn("exclusions reload failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("exclusions watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
