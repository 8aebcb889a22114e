package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend stores files flat inside a root directory.
type LocalBackend struct {
	root string
}

// NewLocalBackend creates the root directory if needed.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if root == "" {
		return nil, errors.New("upload directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalBackend{root: abs}, nil
}

// Root returns the absolute storage root.
func (b *LocalBackend) Root() string { return b.root }

// resolve maps a stored name to an absolute path strictly inside the root.
func (b *LocalBackend) resolve(name string) (string, error) {
	if !SafeName(name) {
		return "", ErrUnsafeName
	}
	p, err := filepath.Abs(filepath.Join(b.root, name))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(p, b.root+string(os.PathSeparator)) {
		return "", ErrUnsafeName
	}
	return p, nil
}

func (b *LocalBackend) Put(ctx context.Context, name string, r io.Reader) error {
	p, err := b.resolve(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return f.Close()
}

func (b *LocalBackend) Exists(ctx context.Context, name string) (bool, error) {
	p, err := b.resolve(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (b *LocalBackend) Delete(ctx context.Context, name string) error {
	p, err := b.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the regular files directly under the root.
func (b *LocalBackend) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}
	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !SafeName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ObjectInfo{Name: e.Name(), ModTime: info.ModTime()})
	}
	return out, nil
}
