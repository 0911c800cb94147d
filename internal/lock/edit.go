// Package lock serializes edits to the azkit config directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

// FileName is the lock file kept next to config.yaml.
const FileName = ".azkit.lock"

// EditLock is held while config.yaml or .checksums is rewritten.
// The lock lives as long as the file descriptor stays open.
type EditLock struct {
	path string
	f    *os.File
}

// Acquire takes the edit lock for configDir without blocking. When another
// process holds it the error wraps errdefs.ErrConflict and names its PID.
func Acquire(configDir string) (*EditLock, error) {
	if configDir == "" {
		return nil, fmt.Errorf("%w: config directory is empty", errdefs.ErrValidation)
	}
	path := filepath.Join(configDir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(f)
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: config in %s is being edited by pid %s", errdefs.ErrConflict, configDir, holder)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}
	return &EditLock{path: path, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

func readHolder(f *os.File) string {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	if pid := strings.TrimSpace(string(buf[:n])); pid != "" {
		return pid
	}
	return "unknown"
}

func (l *EditLock) Path() string { return l.path }

// Release drops the lock. The file is left in place.
func (l *EditLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
