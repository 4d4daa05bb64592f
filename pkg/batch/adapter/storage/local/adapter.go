// Package local provides a local file system implementation of the storage adapter interfaces.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	storageAdapter "github.com/tigerroll/ddbimport/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/ddbimport/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this local storage provider.
	ProviderType = "local"

	tempPrefix = ".tmp-"
)

// localAdapter implements the storage.StorageConnection interface for local file system operations.
type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

// Verify that localAdapter implements the storage.StorageConnection interface.
var _ storageAdapter.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates a new localAdapter instance.
// It validates the BaseDir configuration and attempts to create it if it doesn't exist.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir must be specified in configuration", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("local storage adapter '%s': failed to stat BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': failed to create BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir '%s' is not a directory", name, cfg.BaseDir)
	}

	return &localAdapter{cfg: cfg, name: name}, nil
}

// NewDir is a shorthand for a local adapter rooted at dir.
func NewDir(dir, name string) (storageAdapter.StorageConnection, error) {
	return NewLocalAdapter(storageConfig.StorageConfig{Type: ProviderType, BaseDir: dir}, name)
}

// Close does nothing for the local file system adapter as it holds no special resources.
func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}

// Type returns the type of the adapter, which is "local".
func (a *localAdapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *localAdapter) Name() string {
	return a.name
}

// Locate returns the file path of objectName.
func (a *localAdapter) Locate(objectName string) string {
	p, err := a.resolvePath(objectName)
	if err != nil {
		return filepath.Join(a.cfg.BaseDir, objectName)
	}
	return p
}

// Upload writes data to a temporary file next to objectName and renames it into place.
func (a *localAdapter) Upload(ctx context.Context, objectName string, data io.Reader) error {
	w, err := a.Create(ctx, objectName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Abort()
		return fmt.Errorf("failed to write data for '%s': %w", objectName, err)
	}
	return w.Close()
}

// Create opens a temporary file that is renamed to objectName on Close.
func (a *localAdapter) Create(ctx context.Context, objectName string) (storageAdapter.ObjectWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for upload: %w", err)
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+filepath.Base(fullPath)+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}
	return &atomicFile{File: tmp, target: fullPath}, nil
}

// Download opens objectName. A missing object yields storage.ErrObjectNotFound.
func (a *localAdapter) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("'%s': %w", fullPath, storageAdapter.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

// Exists reports whether objectName is a regular file.
func (a *localAdapter) Exists(ctx context.Context, objectName string) (bool, error) {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// ListObjects walks BaseDir and calls fn for every file whose relative name
// starts with prefix. Temporary files are skipped.
func (a *localAdapter) ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error {
	basePath := filepath.Clean(a.cfg.BaseDir)
	var names []string
	err := filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		objectName, err := filepath.Rel(basePath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s' from '%s': %w", path, basePath, err)
		}
		objectName = filepath.ToSlash(objectName)
		if strings.HasPrefix(objectName, prefix) {
			names = append(names, objectName)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(name); err != nil {
			return err
		}
	}
	logger.Debugf("Listed %d objects in '%s' with prefix '%s' (local adapter '%s').", len(names), basePath, prefix, a.name)
	return nil
}

// DeleteObject deletes objectName. A missing file is ignored.
func (a *localAdapter) DeleteObject(ctx context.Context, objectName string) error {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for delete: %w", err)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath joins objectName onto BaseDir and refuses names that escape it.
func (a *localAdapter) resolvePath(objectName string) (string, error) {
	base := filepath.Clean(a.cfg.BaseDir)
	full := filepath.Join(base, filepath.FromSlash(objectName))
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object name '%s' escapes base directory '%s'", objectName, base)
	}
	return full, nil
}

// atomicFile renames its temporary file onto target when closed.
type atomicFile struct {
	*os.File
	target string
}

// Close syncs the temporary file and renames it onto the target.
func (f *atomicFile) Close() error {
	if err := f.File.Sync(); err != nil {
		f.Abort()
		return fmt.Errorf("failed to sync '%s': %w", f.Name(), err)
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to close '%s': %w", f.Name(), err)
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to rename '%s' to '%s': %w", f.Name(), f.target, err)
	}
	return nil
}

// Abort closes and removes the temporary file.
func (f *atomicFile) Abort() {
	f.File.Close()
	os.Remove(f.Name())
}
