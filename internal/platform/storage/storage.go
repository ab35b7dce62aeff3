// Package storage provides a filesystem-backed capability.ResourceLoader.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/phrazzld/scribe-api/internal/capability"
)

// FileLoader reads audio objects from a directory tree. Keys are
// slash-separated paths relative to the root.
type FileLoader struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewFileLoader returns a loader rooted at dir on the host filesystem.
func NewFileLoader(dir string, logger *slog.Logger) *FileLoader {
	return NewFileLoaderFS(afero.NewBasePathFs(afero.NewOsFs(), dir), logger)
}

// NewFileLoaderFS returns a loader backed by fsys.
func NewFileLoaderFS(fsys afero.Fs, logger *slog.Logger) *FileLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLoader{
		fs:     fsys,
		logger: logger.With("component", "file_loader"),
	}
}

// Load returns the object stored under key.
func (l *FileLoader) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	info, err := l.fs.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", capability.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", capability.ErrNotReadable, key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", capability.ErrNotReadable, key)
	}

	data, err := afero.ReadFile(l.fs, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", capability.ErrNotReadable, key, err)
	}

	l.logger.DebugContext(ctx, "loaded audio object", "key", key, "bytes", len(data))
	return data, nil
}

// Save writes data under key, creating parent directories.
func (l *FileLoader) Save(key string, data []byte) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	return afero.WriteFile(l.fs, name, data, 0o644)
}

func cleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty key", capability.ErrNotFound)
	}
	cleaned := path.Clean("/" + trimmed)
	if strings.Contains(trimmed, "..") && cleaned != "/"+trimmed {
		return "", fmt.Errorf("%w: key escapes storage root: %s", capability.ErrNotReadable, key)
	}
	return cleaned, nil
}

var _ capability.ResourceLoader = (*FileLoader)(nil)
